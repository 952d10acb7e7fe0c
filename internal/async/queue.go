package async

import (
	"context"
	"time"
)

// Job is one document to process. Force bypasses the seen-path dedupe so a
// re-dropped file can be reprocessed.
type Job struct {
	Path        string
	Force       bool
	SubmittedAt time.Time
	TraceID     string
}

type Queue interface {
	Enqueue(ctx context.Context, job Job) error
	Shutdown(ctx context.Context)
}
