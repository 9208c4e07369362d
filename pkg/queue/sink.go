package queue

import (
	"context"

	"github.com/romega/certforge/pkg/batch"
	"github.com/romega/certforge/pkg/observability"
)

// StoreSink adapts a Store to the batch runner's delivery interface:
// every rendered certificate is queued as a pending email.
type StoreSink struct {
	store Store
}

// NewStoreSink creates a sink writing to store.
func NewStoreSink(store Store) *StoreSink {
	return &StoreSink{store: store}
}

// Submit queues one rendered certificate for delivery.
func (s *StoreSink) Submit(ctx context.Context, sub batch.Submission) error {
	err := s.store.Enqueue(ctx, &Item{
		RecipientEmail:   sub.RecipientEmail,
		RecipientName:    sub.RecipientName,
		Subject:          sub.Subject,
		Message:          sub.Message,
		CertificateImage: sub.CertificateImage,
	})
	observability.Queue().OnEnqueue(ctx, sub.RecipientEmail, err)
	return err
}
