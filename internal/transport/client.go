// Package transport provides a rate-limited HTTP client shared by every
// outbound integration: channel providers and the model endpoint client.
// Each caller gets its own limiter instance sized to that integration's
// published rate, independent of the KV-backed per-user daily caps
// internal/dispatch enforces — this limiter protects the upstream API
// from bursts, not the subscriber from over-notification.
package transport

import (
	"net/http"
	"time"

	"golang.org/x/time/rate"
)

// rateLimitedTransport wraps an http.RoundTripper with a token-bucket
// limiter, blocking each request until a token is available or its
// context is cancelled.
type rateLimitedTransport struct {
	next    http.RoundTripper
	limiter *rate.Limiter
}

func (t *rateLimitedTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if err := t.limiter.Wait(req.Context()); err != nil {
		return nil, err
	}
	return t.next.RoundTrip(req)
}

// NewRateLimitedClient builds an *http.Client capped at requestsPerMinute,
// with a burst of one, and the given overall request timeout.
func NewRateLimitedClient(requestsPerMinute int, timeout time.Duration) *http.Client {
	rps := float64(requestsPerMinute) / 60.0
	return &http.Client{
		Timeout: timeout,
		Transport: &rateLimitedTransport{
			next:    http.DefaultTransport,
			limiter: rate.NewLimiter(rate.Limit(rps), 1),
		},
	}
}
