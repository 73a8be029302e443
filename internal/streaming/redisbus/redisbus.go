// Package redisbus implements streaming.Bus on top of Redis Streams.
package redisbus

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/redis/go-redis/v9"

	"github.com/clduab11/pricehawk/internal/streaming"
)

// Bus is a streaming.Bus backed by a Redis Streams client.
type Bus struct {
	rdb *redis.Client
}

// New wraps an existing redis.Client as a streaming.Bus.
func New(rdb *redis.Client) *Bus {
	return &Bus{rdb: rdb}
}

// XAdd appends payload to stream, letting Redis assign the entry id.
func (b *Bus) XAdd(ctx context.Context, stream string, payload map[string]string) (string, error) {
	values := make([]string, 0, len(payload)*2)
	for k, v := range payload {
		values = append(values, k, v)
	}
	id, err := b.rdb.XAdd(ctx, &redis.XAddArgs{
		Stream: stream,
		Values: values,
	}).Result()
	if err != nil {
		return "", fmt.Errorf("xadd %s: %w", stream, err)
	}
	return id, nil
}

// XRead returns up to count entries strictly after afterID.
func (b *Bus) XRead(ctx context.Context, stream, afterID string, count int) ([]streaming.Entry, error) {
	if afterID == "" {
		afterID = "0-0"
	}
	raw, err := b.rdb.XRangeN(ctx, stream, exclusiveStart(afterID), "+", int64(count)).Result()
	if err != nil {
		if err == redis.Nil {
			return nil, nil
		}
		return nil, fmt.Errorf("xrange %s: %w", stream, err)
	}
	entries := make([]streaming.Entry, 0, len(raw))
	for _, msg := range raw {
		payload := make(map[string]string, len(msg.Values))
		for k, v := range msg.Values {
			if s, ok := v.(string); ok {
				payload[k] = s
			} else {
				payload[k] = fmt.Sprintf("%v", v)
			}
		}
		entries = append(entries, streaming.Entry{ID: msg.ID, Payload: payload})
	}
	return entries, nil
}

// XLen reports the stream's entry count.
func (b *Bus) XLen(ctx context.Context, stream string) (int64, error) {
	n, err := b.rdb.XLen(ctx, stream).Result()
	if err != nil {
		return 0, fmt.Errorf("xlen %s: %w", stream, err)
	}
	return n, nil
}

// exclusiveStart turns a "strictly after" cursor id into the "(" exclusive
// range syntax XRANGE expects; "0-0" has no predecessor so it stays
// inclusive at the stream start.
func exclusiveStart(afterID string) string {
	if afterID == "0-0" {
		return "-"
	}
	ms, seq, ok := splitID(afterID)
	if !ok {
		return "(" + afterID
	}
	return "(" + ms + "-" + seq
}

var _ streaming.Bus = (*Bus)(nil)

func splitID(id string) (ms, seq string, ok bool) {
	parts := strings.SplitN(id, "-", 2)
	if len(parts) != 2 {
		return "", "", false
	}
	if _, err := strconv.ParseInt(parts[0], 10, 64); err != nil {
		return "", "", false
	}
	return parts[0], parts[1], true
}
