package dispatch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/clduab11/pricehawk/internal/transport"
)

// broadcastHTTPClient is rate-limited for the same reason the channel
// providers' client is: a misconfigured webhook must not let this process
// hammer an external endpoint.
var broadcastHTTPClient = transport.NewRateLimitedClient(60, 10*time.Second)

// postJSONPublic issues an unauthenticated JSON POST, used for broadcast
// destinations that take a bare webhook URL rather than a channel API key.
func postJSONPublic(ctx context.Context, url string, body any) (string, error) {
	buf, err := json.Marshal(body)
	if err != nil {
		return "", fmt.Errorf("encode broadcast body: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(buf))
	if err != nil {
		return "", fmt.Errorf("build broadcast request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := broadcastHTTPClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("send broadcast: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("broadcast status %d", resp.StatusCode)
	}
	return "", nil
}
