// Package queue persists rendered certificates awaiting email delivery.
//
// Three store backends are available:
//   - MemoryStore: process-local, for tests and one-shot CLI runs
//   - SQLiteStore: single-node persistence, the CLI and server default
//   - MongoStore: shared persistence for multi-node server deployments
//
// Items move through a fixed lifecycle: pending -> sending -> sent, with
// failed as the terminal state for delivery errors. The Sender drains
// pending items against an outbound webhook; StoreSink adapts a Store to
// the batch runner's delivery interface.
package queue

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Status is the delivery state of a queued item.
type Status string

// Item lifecycle states.
const (
	StatusPending Status = "pending"
	StatusSending Status = "sending"
	StatusSent    Status = "sent"
	StatusFailed  Status = "failed"
)

// ValidStatus reports whether s is a known lifecycle state.
func ValidStatus(s Status) bool {
	switch s {
	case StatusPending, StatusSending, StatusSent, StatusFailed:
		return true
	}
	return false
}

// Item is one queued certificate email. CertificateImage is a base64 PNG
// data URI as produced by the batch runner.
type Item struct {
	ID               string     `json:"id" bson:"_id"`
	RecipientEmail   string     `json:"recipientEmail" bson:"recipient_email"`
	RecipientName    string     `json:"recipientName" bson:"recipient_name"`
	Subject          string     `json:"subject" bson:"subject"`
	Message          string     `json:"message" bson:"message"`
	CertificateImage string     `json:"certificateImage" bson:"certificate_image"`
	Status           Status     `json:"status" bson:"status"`
	ErrorMessage     string     `json:"errorMessage,omitempty" bson:"error_message,omitempty"`
	CreatedAt        time.Time  `json:"createdAt" bson:"created_at"`
	SentAt           *time.Time `json:"sentAt,omitempty" bson:"sent_at,omitempty"`
}

// Filters narrows a List call. A zero value lists everything.
type Filters struct {
	// Status restricts results to one lifecycle state when non-empty.
	Status Status

	// Search keeps items whose recipient name or email contains the term,
	// case-insensitively.
	Search string

	// From and To bound CreatedAt inclusively. Zero values leave that end
	// open.
	From time.Time
	To   time.Time

	// Limit caps the number of returned items. Zero means no cap.
	Limit int
}

// Stats is a per-status count of queued items.
type Stats struct {
	Total   int `json:"total"`
	Pending int `json:"pending"`
	Sending int `json:"sending"`
	Sent    int `json:"sent"`
	Failed  int `json:"failed"`
}

// Store is the interface queue backends implement.
//
// List returns items newest-first. UpdateStatus sets SentAt when the new
// status is sent and records errMsg (normally set for failed).
type Store interface {
	Enqueue(ctx context.Context, item *Item) error
	Get(ctx context.Context, id string) (*Item, error)
	List(ctx context.Context, f Filters) ([]Item, error)
	UpdateStatus(ctx context.Context, id string, status Status, errMsg string) error
	Delete(ctx context.Context, id string) error
	Stats(ctx context.Context) (Stats, error)
	Close() error
}

// prepare assigns the server-side fields of a new item.
func prepare(item *Item) {
	if item.ID == "" {
		item.ID = uuid.NewString()
	}
	if item.CreatedAt.IsZero() {
		item.CreatedAt = time.Now().UTC()
	}
	if item.Status == "" {
		item.Status = StatusPending
	}
}
