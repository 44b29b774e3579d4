package gmail

import (
	"context"
	"encoding/base64"
	"fmt"
	"log/slog"

	gmail "google.golang.org/api/gmail/v1"

	"github.com/zooyoda/workspace-mcp/internal/attachments"
	"github.com/zooyoda/workspace-mcp/internal/logging"
)

// MaxAttachmentSize bounds attachment downloads (25MB).
const MaxAttachmentSize = 25 * 1024 * 1024

// ActivityNotifier receives a signal whenever the attachment index is
// written. Satisfied by *attachments.CleanupScheduler.
type ActivityNotifier interface {
	NotifyActivity()
}

// Client wraps the Gmail API for one account. Attachment metadata from every
// response is fed into the shared index so later requests can address
// attachments by filename instead of provider IDs.
type Client struct {
	svc      *gmail.Service
	account  string
	index    *attachments.MetadataIndex
	notifier ActivityNotifier
	logger   *slog.Logger
}

// NewClient creates a Gmail client bound to an already-authenticated service.
func NewClient(svc *gmail.Service, account string, index *attachments.MetadataIndex, notifier ActivityNotifier, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		svc:      svc,
		account:  account,
		index:    index,
		notifier: notifier,
		logger:   logging.WithService(logger, "gmail"),
	}
}

// Account returns the account this client is bound to.
func (c *Client) Account() string {
	return c.account
}

// MessageSummary is the AI-facing shape of a Gmail message. Attachments are
// listed by filename only.
type MessageSummary struct {
	ID          string   `json:"id"`
	ThreadID    string   `json:"threadId"`
	From        string   `json:"from,omitempty"`
	To          string   `json:"to,omitempty"`
	Subject     string   `json:"subject,omitempty"`
	Date        string   `json:"date,omitempty"`
	Snippet     string   `json:"snippet,omitempty"`
	Attachments []string `json:"attachments,omitempty"`
}

// SearchMessages lists messages matching a Gmail query.
func (c *Client) SearchMessages(ctx context.Context, query string, maxResults int64) ([]MessageSummary, error) {
	if maxResults <= 0 {
		maxResults = 10
	}

	res, err := c.svc.Users.Messages.List("me").Q(query).MaxResults(maxResults).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("failed to search messages: %w", err)
	}

	summaries := make([]MessageSummary, 0, len(res.Messages))
	for _, m := range res.Messages {
		summary, err := c.GetMessage(ctx, m.Id)
		if err != nil {
			return nil, err
		}
		summaries = append(summaries, *summary)
	}
	return summaries, nil
}

// GetMessage retrieves one message and indexes its attachments.
func (c *Client) GetMessage(ctx context.Context, messageID string) (*MessageSummary, error) {
	msg, err := c.svc.Users.Messages.Get("me", messageID).Format("full").Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("failed to get message %s: %w", messageID, err)
	}
	summary := c.summarize(msg)
	return &summary, nil
}

func (c *Client) summarize(msg *gmail.Message) MessageSummary {
	summary := MessageSummary{
		ID:       msg.Id,
		ThreadID: msg.ThreadId,
		Snippet:  msg.Snippet,
	}
	if msg.Payload != nil {
		for _, h := range msg.Payload.Headers {
			switch h.Name {
			case "From":
				summary.From = h.Value
			case "To":
				summary.To = h.Value
			case "Subject":
				summary.Subject = h.Value
			case "Date":
				summary.Date = h.Value
			}
		}
	}
	summary.Attachments = c.indexAttachments(msg)
	return summary
}

// indexAttachments walks the message parts, records each attachment in the
// shared index and returns the filenames for the AI-facing response. The
// provider attachment IDs never leave the server.
func (c *Client) indexAttachments(msg *gmail.Message) []string {
	var filenames []string
	walkParts(msg.Payload, func(part *gmail.MessagePart) {
		if part.Filename == "" || part.Body == nil || part.Body.AttachmentId == "" {
			return
		}
		c.index.Add(msg.Id, attachments.Attachment{
			ProviderID: part.Body.AttachmentId,
			Filename:   part.Filename,
			MimeType:   part.MimeType,
			Size:       part.Body.Size,
		})
		filenames = append(filenames, part.Filename)
	})

	if len(filenames) > 0 {
		if c.notifier != nil {
			c.notifier.NotifyActivity()
		}
		c.logger.Debug("indexed message attachments",
			slog.String("message_id", msg.Id),
			slog.Int("count", len(filenames)))
	}
	return filenames
}

// GetAttachment downloads an attachment by message ID and filename. The
// filename is resolved to the provider attachment ID through the index, so
// the message must have been listed recently enough for its metadata to
// still be indexed.
func (c *Client) GetAttachment(ctx context.Context, messageID, filename string) ([]byte, *attachments.Metadata, error) {
	rec, ok := c.index.Get(messageID, filename)
	if !ok {
		// Re-fetch the message to repopulate the index before giving up.
		if _, err := c.GetMessage(ctx, messageID); err != nil {
			return nil, nil, err
		}
		rec, ok = c.index.Get(messageID, filename)
		if !ok {
			return nil, nil, fmt.Errorf("attachment %q not found in message %s", filename, messageID)
		}
	}

	body, err := c.svc.Users.Messages.Attachments.Get("me", messageID, rec.ProviderID).Context(ctx).Do()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to get attachment %q: %w", filename, err)
	}
	if body.Size > MaxAttachmentSize {
		return nil, nil, fmt.Errorf("attachment size %d exceeds maximum %d", body.Size, MaxAttachmentSize)
	}

	data, err := decodeBody(body.Data)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to decode attachment data: %w", err)
	}
	return data, rec, nil
}

// decodeBody decodes Gmail's base64url body encoding, falling back to
// standard base64 for non-conforming providers.
func decodeBody(data string) ([]byte, error) {
	decoded, err := base64.URLEncoding.DecodeString(data)
	if err == nil {
		return decoded, nil
	}
	return base64.StdEncoding.DecodeString(data)
}

func walkParts(part *gmail.MessagePart, fn func(*gmail.MessagePart)) {
	if part == nil {
		return
	}
	fn(part)
	for _, sub := range part.Parts {
		walkParts(sub, fn)
	}
}
