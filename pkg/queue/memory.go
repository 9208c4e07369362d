package queue

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/romega/certforge/pkg/errors"
)

// MemoryStore is an in-memory queue store. Safe for concurrent use.
type MemoryStore struct {
	mu    sync.RWMutex
	items map[string]*Item
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{items: make(map[string]*Item)}
}

// Enqueue adds an item to the store.
func (s *MemoryStore) Enqueue(_ context.Context, item *Item) error {
	prepare(item)

	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *item
	s.items[item.ID] = &cp
	return nil
}

// Get returns the item with the given id.
func (s *MemoryStore) Get(_ context.Context, id string) (*Item, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	item, ok := s.items[id]
	if !ok {
		return nil, errors.New(errors.ErrCodeNotFound, "queue item %s not found", id)
	}
	cp := *item
	return &cp, nil
}

// List returns items newest-first, honoring the filters.
func (s *MemoryStore) List(_ context.Context, f Filters) ([]Item, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	items := make([]Item, 0, len(s.items))
	for _, item := range s.items {
		if !matchFilters(item, f) {
			continue
		}
		items = append(items, *item)
	}
	sort.Slice(items, func(i, j int) bool {
		if !items[i].CreatedAt.Equal(items[j].CreatedAt) {
			return items[i].CreatedAt.After(items[j].CreatedAt)
		}
		return items[i].ID > items[j].ID
	})
	if f.Limit > 0 && len(items) > f.Limit {
		items = items[:f.Limit]
	}
	return items, nil
}

// UpdateStatus transitions an item to a new lifecycle state.
func (s *MemoryStore) UpdateStatus(_ context.Context, id string, status Status, errMsg string) error {
	if !ValidStatus(status) {
		return errors.New(errors.ErrCodeInvalidInput, "invalid queue status %q", status)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	item, ok := s.items[id]
	if !ok {
		return errors.New(errors.ErrCodeNotFound, "queue item %s not found", id)
	}
	item.Status = status
	item.ErrorMessage = errMsg
	if status == StatusSent {
		now := time.Now().UTC()
		item.SentAt = &now
	}
	return nil
}

// Delete removes an item.
func (s *MemoryStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.items[id]; !ok {
		return errors.New(errors.ErrCodeNotFound, "queue item %s not found", id)
	}
	delete(s.items, id)
	return nil
}

// Stats counts items per status.
func (s *MemoryStore) Stats(_ context.Context) (Stats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var st Stats
	for _, item := range s.items {
		st.Total++
		switch item.Status {
		case StatusPending:
			st.Pending++
		case StatusSending:
			st.Sending++
		case StatusSent:
			st.Sent++
		case StatusFailed:
			st.Failed++
		}
	}
	return st, nil
}

// Close is a no-op for the in-memory store.
func (s *MemoryStore) Close() error { return nil }

// matchFilters applies every list filter except the limit.
func matchFilters(item *Item, f Filters) bool {
	if f.Status != "" && item.Status != f.Status {
		return false
	}
	if f.Search != "" {
		term := strings.ToLower(f.Search)
		if !strings.Contains(strings.ToLower(item.RecipientName), term) &&
			!strings.Contains(strings.ToLower(item.RecipientEmail), term) {
			return false
		}
	}
	if !f.From.IsZero() && item.CreatedAt.Before(f.From) {
		return false
	}
	if !f.To.IsZero() && item.CreatedAt.After(f.To) {
		return false
	}
	return true
}
