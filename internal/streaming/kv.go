package streaming

import (
	"context"
	"time"
)

// KV is the TTL'd get/set/incr store backing dedup keys, counters, router
// state mirrors, and stream cursors. The dedup KV is the single source of
// truth for uniqueness — no in-process set may substitute for it.
type KV interface {
	// Get returns the value and true, or "" and false if key is absent.
	Get(ctx context.Context, key string) (string, bool, error)
	// Set writes value with an optional ttl (zero means no expiry).
	// Last-writer-wins across replicas.
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	// SetIfAbsent writes value only if key does not already exist,
	// returning true if this call won the race. Used for dedup keys.
	SetIfAbsent(ctx context.Context, key, value string, ttl time.Duration) (bool, error)
	// Incr atomically increments key (creating it at 0 if absent) and
	// returns the new value.
	Incr(ctx context.Context, key string, ttl time.Duration) (int64, error)
	// Exists reports whether key is present.
	Exists(ctx context.Context, key string) (bool, error)
	// Del removes key.
	Del(ctx context.Context, key string) error
	// Keys lists keys matching pattern. Used only by admin/inspection
	// surfaces — never on the hot path.
	Keys(ctx context.Context, pattern string) ([]string, error)
}

// Well-known key prefixes, per the external KV contract.
const (
	KeyCursorPrefix      = "cursor.stream."
	KeyModelPerfPrefix   = "model.perf."
	KeyModelCircuitPrefix = "model.circuit."
	KeyNotifyGlitch      = "notify.glitch."
	KeyNotifyUserGlitch  = "notify.user."
	KeyMetricsPrefix     = "metrics."
)

// CursorKey returns the KV key storing the committed cursor for stream.
func CursorKey(stream string) string {
	return KeyCursorPrefix + stream
}

// ModelPerfKey returns the KV key mirroring a model's performance record.
func ModelPerfKey(modelID string) string {
	return KeyModelPerfPrefix + modelID
}

// ModelCircuitKey returns the KV key mirroring a model's circuit state.
func ModelCircuitKey(modelID string) string {
	return KeyModelCircuitPrefix + modelID
}

// NotifyGlitchKey returns the glitch-level dedup key.
func NotifyGlitchKey(glitchID string) string {
	return KeyNotifyGlitch + glitchID
}

// NotifyUserGlitchKey returns the per-user-per-glitch dedup key.
func NotifyUserGlitchKey(userID, glitchID string) string {
	return KeyNotifyUserGlitch + userID + ".glitch." + glitchID
}

// ChannelLimitKey returns the per-user-per-day send-cap counter key.
func ChannelLimitKey(channel, userID, day string) string {
	return channel + ".limit." + userID + "." + day
}
