package observability

import (
	"context"
	"testing"
	"time"
)

type recordingBatchHooks struct {
	NoopBatchHooks
	starts    int
	completes int
}

func (h *recordingBatchHooks) OnItemStart(context.Context, int, string) { h.starts++ }
func (h *recordingBatchHooks) OnItemComplete(context.Context, int, string, time.Duration, error) {
	h.completes++
}

func TestSetAndGetBatchHooks(t *testing.T) {
	defer Reset()

	rec := &recordingBatchHooks{}
	SetBatchHooks(rec)

	ctx := context.Background()
	Batch().OnItemStart(ctx, 1, "Alice")
	Batch().OnItemComplete(ctx, 1, "Alice", time.Millisecond, nil)

	if rec.starts != 1 || rec.completes != 1 {
		t.Errorf("starts=%d completes=%d, want 1/1", rec.starts, rec.completes)
	}
}

func TestSetNilKeepsExisting(t *testing.T) {
	defer Reset()

	rec := &recordingBatchHooks{}
	SetBatchHooks(rec)
	SetBatchHooks(nil)

	Batch().OnItemStart(context.Background(), 1, "Bob")
	if rec.starts != 1 {
		t.Error("nil registration must not clear existing hooks")
	}
}

func TestReset(t *testing.T) {
	rec := &recordingBatchHooks{}
	SetBatchHooks(rec)
	Reset()

	Batch().OnItemStart(context.Background(), 1, "Carol")
	if rec.starts != 0 {
		t.Error("Reset should restore no-op hooks")
	}
}

func TestNoopHooksDoNotPanic(t *testing.T) {
	defer Reset()
	Reset()

	ctx := context.Background()
	Batch().OnRunStart(ctx, 10)
	Batch().OnRunComplete(ctx, 10, 0, time.Second, nil)
	Render().OnRenderStart(ctx, "t1")
	Render().OnRenderComplete(ctx, "t1", 1024, time.Second, nil)
	Queue().OnEnqueue(ctx, "a@b.com", nil)
	Queue().OnSend(ctx, "a@b.com", time.Second, nil)
	Cache().OnCacheHit(ctx, "asset")
	Cache().OnCacheMiss(ctx, "asset")
	Cache().OnCacheSet(ctx, "asset", 42)
}
