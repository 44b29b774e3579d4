package calendar

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	calendar "google.golang.org/api/calendar/v3"

	"github.com/zooyoda/workspace-mcp/internal/attachments"
	"github.com/zooyoda/workspace-mcp/internal/logging"
)

// ActivityNotifier receives a signal whenever the attachment index is
// written. Satisfied by *attachments.CleanupScheduler.
type ActivityNotifier interface {
	NotifyActivity()
}

// Client wraps the Calendar API for one account. Event attachments are
// indexed the same way as Gmail attachments so the AI sees filenames, not
// Drive file IDs.
type Client struct {
	svc      *calendar.Service
	account  string
	index    *attachments.MetadataIndex
	notifier ActivityNotifier
	logger   *slog.Logger
}

// NewClient creates a Calendar client bound to an already-authenticated
// service.
func NewClient(svc *calendar.Service, account string, index *attachments.MetadataIndex, notifier ActivityNotifier, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		svc:      svc,
		account:  account,
		index:    index,
		notifier: notifier,
		logger:   logging.WithService(logger, "calendar"),
	}
}

// Account returns the account this client is bound to.
func (c *Client) Account() string {
	return c.account
}

// EventSummary is the AI-facing shape of a calendar event.
type EventSummary struct {
	ID          string   `json:"id"`
	Summary     string   `json:"summary,omitempty"`
	Description string   `json:"description,omitempty"`
	Location    string   `json:"location,omitempty"`
	Start       string   `json:"start,omitempty"`
	End         string   `json:"end,omitempty"`
	Attendees   []string `json:"attendees,omitempty"`
	Attachments []string `json:"attachments,omitempty"`
}

// ListEvents lists events in the primary calendar within a time range.
func (c *Client) ListEvents(ctx context.Context, timeMin, timeMax time.Time, query string, maxResults int64) ([]EventSummary, error) {
	if maxResults <= 0 {
		maxResults = 25
	}

	call := c.svc.Events.List("primary").
		TimeMin(timeMin.Format(time.RFC3339)).
		TimeMax(timeMax.Format(time.RFC3339)).
		SingleEvents(true).
		OrderBy("startTime").
		MaxResults(maxResults).
		Context(ctx)
	if query != "" {
		call = call.Q(query)
	}

	res, err := call.Do()
	if err != nil {
		return nil, fmt.Errorf("failed to list events: %w", err)
	}

	summaries := make([]EventSummary, 0, len(res.Items))
	for _, event := range res.Items {
		summaries = append(summaries, c.summarize(event))
	}
	return summaries, nil
}

// GetEvent retrieves one event by ID.
func (c *Client) GetEvent(ctx context.Context, eventID string) (*EventSummary, error) {
	event, err := c.svc.Events.Get("primary", eventID).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("failed to get event %s: %w", eventID, err)
	}
	summary := c.summarize(event)
	return &summary, nil
}

func (c *Client) summarize(event *calendar.Event) EventSummary {
	summary := EventSummary{
		ID:          event.Id,
		Summary:     event.Summary,
		Description: event.Description,
		Location:    event.Location,
	}
	if event.Start != nil {
		summary.Start = eventTime(event.Start)
	}
	if event.End != nil {
		summary.End = eventTime(event.End)
	}
	for _, a := range event.Attendees {
		summary.Attendees = append(summary.Attendees, a.Email)
	}
	summary.Attachments = c.indexAttachments(event)
	return summary
}

// indexAttachments records each event attachment in the shared index keyed
// by event ID, returning the titles for the AI-facing response. Drive file
// IDs stay server-side.
func (c *Client) indexAttachments(event *calendar.Event) []string {
	var titles []string
	for _, att := range event.Attachments {
		if att.Title == "" || att.FileId == "" {
			continue
		}
		c.index.Add(event.Id, attachments.Attachment{
			ProviderID: att.FileId,
			Filename:   att.Title,
			MimeType:   att.MimeType,
		})
		titles = append(titles, att.Title)
	}

	if len(titles) > 0 {
		if c.notifier != nil {
			c.notifier.NotifyActivity()
		}
		c.logger.Debug("indexed event attachments",
			slog.String("event_id", event.Id),
			slog.Int("count", len(titles)))
	}
	return titles
}

func eventTime(t *calendar.EventDateTime) string {
	if t.DateTime != "" {
		return t.DateTime
	}
	return t.Date
}
