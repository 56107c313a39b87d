package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"iesb-saude-portal/config"
)

// ErrMalformedResponse marks a 2xx response whose body could not be decoded.
var ErrMalformedResponse = errors.New("malformed backend response")

// HTTPError is a non-2xx backend response.
type HTTPError struct {
	Status int
	Body   string
}

func (e *HTTPError) Error() string {
	body := e.Body
	if len(body) > 200 {
		body = body[:200] + "..."
	}
	return fmt.Sprintf("backend returned status %d: %s", e.Status, body)
}

// Messages extracts human readable messages from the usual Rails error
// bodies: {"errors": [...]}, {"errors": {"field": [...]}}, {"error": "..."}
// or {"message": "..."}. Anything else yields the raw body.
func (e *HTTPError) Messages() []string {
	var body struct {
		Errors  json.RawMessage `json:"errors"`
		Error   string          `json:"error"`
		Message string          `json:"message"`
	}
	if err := json.Unmarshal([]byte(e.Body), &body); err != nil {
		if s := strings.TrimSpace(e.Body); s != "" {
			return []string{s}
		}
		return nil
	}

	var out []string
	var list []string
	var fields map[string][]string
	switch {
	case json.Unmarshal(body.Errors, &list) == nil:
		out = append(out, list...)
	case json.Unmarshal(body.Errors, &fields) == nil:
		names := make([]string, 0, len(fields))
		for field := range fields {
			names = append(names, field)
		}
		sort.Strings(names)
		for _, field := range names {
			for _, m := range fields[field] {
				out = append(out, field+" "+m)
			}
		}
	}
	if body.Error != "" {
		out = append(out, body.Error)
	}
	if body.Message != "" {
		out = append(out, body.Message)
	}
	return out
}

// IsStatus reports whether err is an HTTPError with the given status.
func IsStatus(err error, status int) bool {
	var he *HTTPError
	return errors.As(err, &he) && he.Status == status
}

// RawText receives a non-JSON response body.
type RawText string

// NewHTTPClient builds the shared transport, routed through the configured
// proxy if any.
func NewHTTPClient(cfg config.BackendConfig, logger *zap.Logger) *http.Client {
	var transport http.RoundTripper = http.DefaultTransport
	if cfg.HTTPProxy != "" {
		proxyURL, err := url.Parse(cfg.HTTPProxy)
		if err != nil {
			logger.Warn("invalid backend proxy, connecting directly", zap.String("proxy", cfg.HTTPProxy), zap.Error(err))
		} else {
			transport = &http.Transport{Proxy: http.ProxyURL(proxyURL)}
		}
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &http.Client{
		Transport: transport,
		Timeout:   timeout,
	}
}

// Factory builds per-session clients over one shared http.Client.
type Factory struct {
	http    *http.Client
	baseURL string
	loc     *time.Location
}

func NewFactory(httpClient *http.Client, baseURL string, loc *time.Location) *Factory {
	return &Factory{http: httpClient, baseURL: strings.TrimRight(baseURL, "/"), loc: loc}
}

// For returns a client that authenticates as s. A nil session is anonymous.
func (f *Factory) For(s *Session) *Client {
	return NewClient(f.http, f.baseURL, s, f.loc)
}

// Client talks to the clinic backend on behalf of one session.
type Client struct {
	http    *http.Client
	baseURL string
	session *Session
	loc     *time.Location
}

func NewClient(httpClient *http.Client, baseURL string, s *Session, loc *time.Location) *Client {
	if loc == nil {
		loc = time.UTC
	}
	return &Client{http: httpClient, baseURL: strings.TrimRight(baseURL, "/"), session: s, loc: loc}
}

// Session returns the session the client authenticates with.
func (c *Client) Session() *Session {
	return c.session
}

// Do sends a JSON request to path and decodes the response into out.
// A 204 or empty body leaves out untouched. Non-JSON bodies are only
// accepted when out is a *RawText or *string.
func (c *Client) Do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		payload, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("failed to marshal request payload: %w", err)
		}
		body = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token := c.session.Token(); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &HTTPError{Status: resp.StatusCode, Body: string(raw)}
	}
	if resp.StatusCode == http.StatusNoContent || len(bytes.TrimSpace(raw)) == 0 || out == nil {
		return nil
	}

	if !isJSON(resp.Header.Get("Content-Type")) {
		switch dst := out.(type) {
		case *RawText:
			*dst = RawText(raw)
			return nil
		case *string:
			*dst = string(raw)
			return nil
		}
		return fmt.Errorf("%w: unexpected content type %q", ErrMalformedResponse, resp.Header.Get("Content-Type"))
	}

	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	return nil
}

func isJSON(contentType string) bool {
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return false
	}
	return mediaType == "application/json" || strings.HasSuffix(mediaType, "+json")
}
