// Package streaming defines the Bus and KV adapter contracts the core
// depends on. Concrete implementations live in the redisbus and rediskv
// subpackages; the interfaces here let the Stream Consumer Framework and
// Weighted Model Router stay storage-agnostic.
package streaming

import "context"

// Entry is one record read back from a Bus stream.
type Entry struct {
	ID      string
	Payload map[string]string
}

// Bus is a durable append-only log with cursor-friendly reads and a DLQ
// helper. Every entry id is monotonically increasing within its stream.
type Bus interface {
	// XAdd appends payload to stream and returns its new entry id, of the
	// form "{ms}-{seq}".
	XAdd(ctx context.Context, stream string, payload map[string]string) (string, error)
	// XRead returns up to count entries strictly after afterID, in
	// insertion order. An empty afterID of "0-0" reads from the start.
	XRead(ctx context.Context, stream, afterID string, count int) ([]Entry, error)
	// XLen reports the total entry count of a stream, for metrics.
	XLen(ctx context.Context, stream string) (int64, error)
}

// DLQStream returns the dead-letter stream name for an original stream.
func DLQStream(original string) string {
	return "dlq." + original
}
