package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// ErrHandshakeFailed marks a signaling exchange rejected by the remote
// endpoint. The connection attempt is dead; the caller must re-acquire a
// fresh credential before retrying.
var ErrHandshakeFailed = errors.New("transport: handshake failed")

// maxErrorBodySnippet bounds how much of a rejection body ends up in the error.
const maxErrorBodySnippet = 256

// Signaler performs the authenticated offer/answer exchange against the
// model endpoint: it POSTs the local session description with the session
// credential as bearer auth and returns the remote description from the
// response body.
type Signaler struct {
	// Endpoint is the signaling URL. The model is appended as a query
	// parameter.
	Endpoint string

	// HTTPClient is the client used for the exchange. Nil means a client
	// with a 10 s timeout.
	HTTPClient *http.Client
}

// Exchange sends offer to the endpoint for model, authenticated with token.
// A non-2xx response fails with an error wrapping [ErrHandshakeFailed].
func (s *Signaler) Exchange(ctx context.Context, token, model, offer string) (string, error) {
	endpoint := s.Endpoint
	if model != "" {
		u, err := url.Parse(endpoint)
		if err != nil {
			return "", fmt.Errorf("transport: parse signaling endpoint: %w", err)
		}
		q := u.Query()
		q.Set("model", model)
		u.RawQuery = q.Encode()
		endpoint = u.String()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(offer))
	if err != nil {
		return "", fmt.Errorf("transport: build signaling request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/sdp")

	client := s.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}

	resp, err := client.Do(req)
	if err != nil {
		return "", fmt.Errorf("transport: signaling exchange: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("transport: read signaling response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet := string(body)
		if len(snippet) > maxErrorBodySnippet {
			snippet = snippet[:maxErrorBodySnippet]
		}
		return "", fmt.Errorf("%w: status %d: %s", ErrHandshakeFailed, resp.StatusCode, snippet)
	}

	answer := string(body)
	if strings.TrimSpace(answer) == "" {
		return "", fmt.Errorf("%w: empty remote description", ErrHandshakeFailed)
	}
	return answer, nil
}
