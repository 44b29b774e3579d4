// Package attachments indexes attachment metadata extracted from Gmail and
// Calendar responses so AI-facing output can reference attachments by
// filename while the opaque provider identifiers stay server-side. The index
// is bounded by capacity and TTL and swept by a scheduler whose period adapts
// to write pressure.
package attachments
