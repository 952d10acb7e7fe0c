package async

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"finxtract/internal/common"
	"finxtract/internal/document"
	"finxtract/internal/pipeline"
)

// gatedRenderer holds every render until released, so a job can be kept in
// flight deterministically. Rendering fails on purpose; the queue only cares
// that the job finished.
type gatedRenderer struct {
	calls   atomic.Int64
	release chan struct{}
}

func (r *gatedRenderer) Render(context.Context, string) ([]document.Page, error) {
	r.calls.Add(1)
	<-r.release
	return nil, errors.New("unrenderable")
}

func newTestQueue(r document.Renderer) *ProcessorQueue {
	proc := pipeline.NewProcessor(nil, common.EngineConfig{}, r, nil, nil, nil, nil, "")
	return NewProcessorQueue(proc, nil, WithWorkers(1))
}

func (q *ProcessorQueue) seenLen() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.seen)
}

func TestReenqueueAfterCompletion(t *testing.T) {
	r := &gatedRenderer{release: make(chan struct{})}
	q := newTestQueue(r)

	require.NoError(t, q.Enqueue(context.Background(), Job{Path: "inbox/report.pdf"}))
	require.Eventually(t, func() bool { return r.calls.Load() == 1 }, time.Second, 5*time.Millisecond)

	// Same path while the first run is still in flight: deduped.
	require.NoError(t, q.Enqueue(context.Background(), Job{Path: "inbox/report.pdf"}))

	r.release <- struct{}{}
	require.Eventually(t, func() bool { return q.seenLen() == 0 }, time.Second, 5*time.Millisecond)
	require.Equal(t, int64(1), r.calls.Load(), "the in-flight duplicate must not queue a second run")

	// Re-dropped after completion: processed again.
	require.NoError(t, q.Enqueue(context.Background(), Job{Path: "inbox/report.pdf"}))
	require.Eventually(t, func() bool { return r.calls.Load() == 2 }, time.Second, 5*time.Millisecond)
	r.release <- struct{}{}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	q.Shutdown(ctx)
}

func TestForceBypassesDedupe(t *testing.T) {
	r := &gatedRenderer{release: make(chan struct{})}
	q := newTestQueue(r)

	require.NoError(t, q.Enqueue(context.Background(), Job{Path: "inbox/report.pdf"}))
	require.Eventually(t, func() bool { return r.calls.Load() == 1 }, time.Second, 5*time.Millisecond)

	require.NoError(t, q.Enqueue(context.Background(), Job{Path: "inbox/report.pdf", Force: true}))

	r.release <- struct{}{}
	require.Eventually(t, func() bool { return r.calls.Load() == 2 }, time.Second, 5*time.Millisecond)
	r.release <- struct{}{}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	q.Shutdown(ctx)
}
