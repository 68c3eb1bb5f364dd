// Package gateway is the single HTTP path to the messaging service. Every
// request carries the application identifier and, when present, the bearer
// credential; an authorization-rejected response invalidates the credential
// process-wide and is surfaced as ErrCredentialRejected.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"
)

// ErrCredentialRejected is returned when the service rejects the bearer
// credential. The credential has already been invalidated and the expiry
// callback invoked; callers must not retry.
var ErrCredentialRejected = errors.New("credential rejected")

// StatusError is any other non-2xx outcome. The gateway does not interpret
// these further; the calling feature decides what to display.
type StatusError struct {
	Endpoint string
	Status   int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s: unexpected status %d", e.Endpoint, e.Status)
}

// CredentialSource provides the current bearer token and the means to drop
// it. The session store implements this; invalidation is visible across the
// whole process and forces re-authentication.
type CredentialSource interface {
	Token() string
	Invalidate()
}

// Gateway wraps outbound HTTP calls to the messaging service.
type Gateway struct {
	baseURL string
	appID   string
	client  *http.Client
	creds   CredentialSource
	expired func()
	logger  *zap.Logger
}

// New creates a gateway for the given base URL. timeout bounds every call.
func New(baseURL, appID string, timeout time.Duration, logger *zap.Logger) *Gateway {
	return &Gateway{
		baseURL: strings.TrimRight(baseURL, "/"),
		appID:   appID,
		client:  &http.Client{Timeout: timeout},
		logger:  logger,
	}
}

// SetCredentialSource registers the credential provider. Calls made without
// one are unauthenticated.
func (g *Gateway) SetCredentialSource(cs CredentialSource) {
	g.creds = cs
}

// SetOnExpired registers the callback invoked after a rejected credential
// has been invalidated.
func (g *Gateway) SetOnExpired(fn func()) {
	g.expired = fn
}

// BaseURL returns the configured service base URL.
func (g *Gateway) BaseURL() string {
	return g.baseURL
}

// doJSON issues a request with a JSON body (nil for none) and returns the
// response body bytes.
func (g *Gateway) doJSON(ctx context.Context, method, path string, query url.Values, body any) ([]byte, error) {
	var reader io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("%s: encode request: %w", path, err)
		}
		reader = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, g.requestURL(path, query), reader)
	if err != nil {
		return nil, fmt.Errorf("%s: build request: %w", path, err)
	}
	req.Header.Set("Content-Type", "application/json")
	return g.do(req, path)
}

// do applies the header contract, executes the request, and enforces the
// error taxonomy.
func (g *Gateway) do(req *http.Request, endpoint string) ([]byte, error) {
	req.Header.Set("X-App-ID", g.appID)
	if g.creds != nil {
		if token := g.creds.Token(); token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
	}

	resp, err := g.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", endpoint, err)
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%s: read response: %w", endpoint, err)
	}

	if resp.StatusCode == http.StatusUnauthorized {
		g.logger.Warn("credential rejected", zap.String("endpoint", endpoint))
		if g.creds != nil {
			g.creds.Invalidate()
		}
		if g.expired != nil {
			g.expired()
		}
		return nil, fmt.Errorf("%s: %w", endpoint, ErrCredentialRejected)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &StatusError{Endpoint: endpoint, Status: resp.StatusCode}
	}
	return data, nil
}

func (g *Gateway) requestURL(path string, query url.Values) string {
	u := g.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	return u
}

// decode unmarshals a response body into out, wrapping errors with the
// endpoint for context.
func decode(endpoint string, data []byte, out any) error {
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("%s: parse response: %w", endpoint, err)
	}
	return nil
}
