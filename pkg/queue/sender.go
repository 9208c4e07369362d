package queue

import (
	"context"
	"time"

	"github.com/romega/certforge/pkg/errors"
)

// Deliverer sends one queued item. *Webhook satisfies this.
type Deliverer interface {
	Deliver(ctx context.Context, item *Item) error
}

// Sender drains pending queue items through a deliverer, recording the
// outcome of every attempt back in the store.
type Sender struct {
	store     Store
	deliverer Deliverer
	delay     time.Duration
}

// SendReport summarizes one drain pass.
type SendReport struct {
	Attempted int `json:"attempted"`
	Sent      int `json:"sent"`
	Failed    int `json:"failed"`
}

// NewSender creates a sender. delay paces consecutive deliveries; zero
// disables pacing.
func NewSender(store Store, deliverer Deliverer, delay time.Duration) *Sender {
	return &Sender{store: store, deliverer: deliverer, delay: delay}
}

// ProcessPending delivers every pending item, oldest first. Items are
// marked sending before the attempt and sent or failed after it; a failed
// delivery records the error message and processing continues with the
// next item. Cancellation stops between items.
func (s *Sender) ProcessPending(ctx context.Context) (SendReport, error) {
	pending, err := s.store.List(ctx, Filters{Status: StatusPending})
	if err != nil {
		return SendReport{}, err
	}

	// List returns newest-first; deliver in arrival order.
	for i, j := 0, len(pending)-1; i < j; i, j = i+1, j-1 {
		pending[i], pending[j] = pending[j], pending[i]
	}

	var report SendReport
	for i := range pending {
		if err := ctx.Err(); err != nil {
			return report, errors.Wrap(errors.ErrCodeTimeout, err, "queue drain interrupted")
		}
		item := &pending[i]
		report.Attempted++

		if err := s.store.UpdateStatus(ctx, item.ID, StatusSending, ""); err != nil {
			report.Failed++
			continue
		}

		if err := s.deliverer.Deliver(ctx, item); err != nil {
			report.Failed++
			_ = s.store.UpdateStatus(ctx, item.ID, StatusFailed, errors.UserMessage(err))
			continue
		}

		report.Sent++
		_ = s.store.UpdateStatus(ctx, item.ID, StatusSent, "")

		if s.delay > 0 && i < len(pending)-1 {
			select {
			case <-ctx.Done():
			case <-time.After(s.delay):
			}
		}
	}
	return report, nil
}
