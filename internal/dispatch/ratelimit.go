package dispatch

import (
	"context"
	"time"

	"github.com/clduab11/pricehawk/internal/domain"
	"github.com/clduab11/pricehawk/internal/streaming"
)

// dailyCapWindow is the TTL on each day's send-count counter, applied on
// the day's first send. The key embeds the UTC date, so a new day always
// starts from a fresh counter; the old key lingers until its TTL runs out.
const dailyCapWindow = 24 * time.Hour

// RateLimiter implements reserve(user, channel, day) -> ok|exceeded against
// KV-backed daily counters, per §4.4's per-user daily send caps.
type RateLimiter struct {
	kv     streaming.KV
	policy *TierPolicy
}

// NewRateLimiter builds a RateLimiter over kv, capped by policy.
func NewRateLimiter(kv streaming.KV, policy *TierPolicy) *RateLimiter {
	return &RateLimiter{kv: kv, policy: policy}
}

// Reserve increments today's counter for (userID, channel) and reports
// whether the send is still within the channel's daily cap. A channel
// with no configured cap always succeeds.
func (r *RateLimiter) Reserve(ctx context.Context, userID string, ch domain.Channel) (bool, error) {
	limit := r.policy.DailyCap(ch)
	if limit <= 0 {
		return true, nil
	}

	day := time.Now().UTC().Format("2006-01-02")
	key := streaming.ChannelLimitKey(string(ch), userID, day)

	n, err := r.kv.Incr(ctx, key, dailyCapWindow)
	if err != nil {
		return false, err
	}
	return n <= int64(limit), nil
}
