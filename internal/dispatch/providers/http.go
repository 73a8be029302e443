package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/clduab11/pricehawk/internal/corerr"
	"github.com/clduab11/pricehawk/internal/transport"
)

// channelHTTPClient is shared by every channel provider. 120 requests per
// minute is comfortably under the lowest published rate limit among the
// providers this package wraps (SMS); a provider that needs a tighter cap
// relies on internal/dispatch's daily cap, not this client.
var channelHTTPClient = transport.NewRateLimitedClient(120, providerTimeout)

// postJSON issues a POST with a JSON body and an optional auth header,
// returning the response's message id field if present. HTTP 429 is
// classified corerr.KindRateLimited; any other non-2xx status or a
// transport error is classified corerr.KindTransient, so neither is
// reported as a config error.
func postJSON(ctx context.Context, url, authHeader, authValue string, body any) (string, error) {
	buf, err := json.Marshal(body)
	if err != nil {
		return "", corerr.New(corerr.KindConfig, fmt.Errorf("encode request: %w", err))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(buf))
	if err != nil {
		return "", corerr.New(corerr.KindConfig, fmt.Errorf("build request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")
	if authHeader != "" {
		req.Header.Set(authHeader, authValue)
	}

	resp, err := channelHTTPClient.Do(req)
	if err != nil {
		return "", corerr.New(corerr.KindTransient, fmt.Errorf("send: %w", err))
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		return "", corerr.New(corerr.KindRateLimited, fmt.Errorf("rate limited: status %d", resp.StatusCode))
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", corerr.New(corerr.KindTransient, fmt.Errorf("status %d", resp.StatusCode))
	}

	var parsed struct {
		MessageID string `json:"message_id"`
		ID        string `json:"id"`
	}
	_ = json.NewDecoder(resp.Body).Decode(&parsed)
	if parsed.MessageID != "" {
		return parsed.MessageID, nil
	}
	return parsed.ID, nil
}
