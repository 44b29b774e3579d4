package attachments

import (
	"log/slog"
	"sync"
	"time"
)

const (
	// DefaultCapacity bounds the number of records the index holds.
	DefaultCapacity = 256
	// DefaultTTL is how long a record stays retrievable after insertion.
	DefaultTTL = time.Hour
)

// Attachment is the provider-facing description of one attachment as it
// appears in an API response.
type Attachment struct {
	ProviderID string
	Filename   string
	MimeType   string
	Size       int64
}

// Metadata is one indexed record. ProviderID is the opaque provider
// identifier hidden from AI-facing responses; the index lets a later request
// recover it from the (message, filename) pair alone.
type Metadata struct {
	MessageID  string
	Filename   string
	ProviderID string
	MimeType   string
	Size       int64
	InsertedAt time.Time
}

type indexKey struct {
	messageID string
	filename  string
}

// MetadataIndex is a capacity- and TTL-bounded map from (message, filename)
// to attachment metadata. Insertion past capacity purges expired records
// first, then evicts the oldest records by insertion time. Expired records
// are also deleted lazily on read.
type MetadataIndex struct {
	mu       sync.Mutex
	records  map[indexKey]*Metadata
	capacity int
	ttl      time.Duration
	logger   *slog.Logger
	now      func() time.Time
}

// NewMetadataIndex creates an index with the default capacity and TTL.
func NewMetadataIndex(logger *slog.Logger) *MetadataIndex {
	return NewMetadataIndexWith(DefaultCapacity, DefaultTTL, logger)
}

// NewMetadataIndexWith creates an index with explicit bounds, used by tests.
func NewMetadataIndexWith(capacity int, ttl time.Duration, logger *slog.Logger) *MetadataIndex {
	if logger == nil {
		logger = slog.Default()
	}
	return &MetadataIndex{
		records:  make(map[indexKey]*Metadata),
		capacity: capacity,
		ttl:      ttl,
		logger:   logger,
		now:      time.Now,
	}
}

// Add inserts or overwrites the record for (messageID, attachment filename).
func (i *MetadataIndex) Add(messageID string, att Attachment) {
	i.mu.Lock()
	defer i.mu.Unlock()

	key := indexKey{messageID: messageID, filename: att.Filename}
	now := i.now()

	// Overwrites never grow the index, so they skip the capacity check.
	if _, exists := i.records[key]; !exists && len(i.records) >= i.capacity {
		removed := i.cleanExpiredLocked(now)
		for len(i.records) >= i.capacity {
			i.evictOldestLocked()
			removed++
		}
		i.logger.Debug("attachment index at capacity, evicted records",
			slog.Int("removed", removed),
			slog.Int("size", len(i.records)))
	}

	i.records[key] = &Metadata{
		MessageID:  messageID,
		Filename:   att.Filename,
		ProviderID: att.ProviderID,
		MimeType:   att.MimeType,
		Size:       att.Size,
		InsertedAt: now,
	}
}

// Get returns the record for (messageID, filename) if present and not
// expired. An expired record is deleted on the spot.
func (i *MetadataIndex) Get(messageID, filename string) (*Metadata, bool) {
	i.mu.Lock()
	defer i.mu.Unlock()

	key := indexKey{messageID: messageID, filename: filename}
	rec, ok := i.records[key]
	if !ok {
		return nil, false
	}
	if i.now().Sub(rec.InsertedAt) > i.ttl {
		delete(i.records, key)
		return nil, false
	}
	return rec, true
}

// CleanExpired removes every expired record and returns how many were
// removed.
func (i *MetadataIndex) CleanExpired() int {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.cleanExpiredLocked(i.now())
}

// Len returns the current number of records, expired or not.
func (i *MetadataIndex) Len() int {
	i.mu.Lock()
	defer i.mu.Unlock()
	return len(i.records)
}

// Capacity returns the index's fixed capacity.
func (i *MetadataIndex) Capacity() int {
	return i.capacity
}

func (i *MetadataIndex) cleanExpiredLocked(now time.Time) int {
	removed := 0
	for key, rec := range i.records {
		if now.Sub(rec.InsertedAt) > i.ttl {
			delete(i.records, key)
			removed++
		}
	}
	return removed
}

func (i *MetadataIndex) evictOldestLocked() {
	var oldestKey indexKey
	var oldest *Metadata
	for key, rec := range i.records {
		if oldest == nil || rec.InsertedAt.Before(oldest.InsertedAt) {
			oldestKey = key
			oldest = rec
		}
	}
	if oldest != nil {
		delete(i.records, oldestKey)
	}
}
