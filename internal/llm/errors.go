package llm

import "fmt"

// StatusError is a non-2xx provider response. The inference client maps it
// onto the transient/terminal taxonomy by status code.
type StatusError struct {
	Status int
	Body   string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("provider status %d: %s", e.Status, truncate(e.Body, 300))
}

// Retryable reports whether the status is a transient provider condition
// (throttling or 5xx) rather than a request defect.
func (e *StatusError) Retryable() bool {
	return e.Status == 429 || e.Status/100 == 5
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
