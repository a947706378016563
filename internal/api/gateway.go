package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ravikeerthi7606/edustream/internal/logging"
)

const maxErrorBodyBytes = 64 << 10

// CredentialSource supplies the bearer credential attached to outgoing requests.
type CredentialSource interface {
	Credential(ctx context.Context) (string, bool)
}

// Options configures a Gateway.
type Options struct {
	BaseURL     string
	Timeout     time.Duration
	Credentials CredentialSource
	HTTPClient  *http.Client
	Logger      *slog.Logger
	RateLimit   float64
	RateBurst   int
}

// Gateway is the single HTTP client used to talk to the platform API.
type Gateway struct {
	base    *url.URL
	client  *http.Client
	creds   CredentialSource
	timeout time.Duration
	logger  *slog.Logger
}

// New constructs a Gateway for the API rooted at opts.BaseURL.
func New(opts Options) (*Gateway, error) {
	base, err := url.Parse(strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/"))
	if err != nil {
		return nil, fmt.Errorf("parse api base url: %w", err)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, fmt.Errorf("api base url %q: scheme must be http or https", opts.BaseURL)
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	next := http.DefaultTransport
	var jar http.CookieJar
	if opts.HTTPClient != nil {
		if opts.HTTPClient.Transport != nil {
			next = opts.HTTPClient.Transport
		}
		jar = opts.HTTPClient.Jar
	}

	return &Gateway{
		base: base,
		client: &http.Client{
			Transport: &loggingTransport{next: newThrottleTransport(next, opts.RateLimit, opts.RateBurst)},
			Jar:       jar,
		},
		creds:   opts.Credentials,
		timeout: opts.Timeout,
		logger:  logger.With(slog.String("component", "api_gateway")),
	}, nil
}

// Get issues a GET request and decodes the JSON response into out.
func (g *Gateway) Get(ctx context.Context, path string, query url.Values, out any) error {
	return g.Request(ctx, http.MethodGet, path, query, nil, out)
}

// Post issues a POST request with a JSON body.
func (g *Gateway) Post(ctx context.Context, path string, body, out any) error {
	return g.Request(ctx, http.MethodPost, path, nil, body, out)
}

// Delete issues a DELETE request.
func (g *Gateway) Delete(ctx context.Context, path string, out any) error {
	return g.Request(ctx, http.MethodDelete, path, nil, nil, out)
}

// Request performs a JSON request. A nil body sends no payload; a nil out
// discards the response body.
func (g *Gateway) Request(ctx context.Context, method, path string, query url.Values, body, out any) error {
	var (
		reader      io.Reader
		contentType string
	)
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode %s %s body: %w", method, path, err)
		}
		reader = bytes.NewReader(payload)
		contentType = "application/json"
	}

	ctx, cancel := g.withTimeout(ctx, g.timeout)
	defer cancel()

	req, err := g.newRequest(ctx, method, path, query, reader, contentType)
	if err != nil {
		return err
	}
	return g.do(req, path, out)
}

// HealthStatus is the API's health report.
type HealthStatus struct {
	Status  string `json:"status"`
	Storage string `json:"storage,omitempty"`
}

// Health calls GET /health.
func (g *Gateway) Health(ctx context.Context) (HealthStatus, error) {
	var status HealthStatus
	if err := g.Get(ctx, "/health", nil, &status); err != nil {
		return HealthStatus{}, err
	}
	return status, nil
}

func (g *Gateway) withTimeout(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if ctx == nil {
		ctx = context.Background()
	}
	if logging.FromContext(ctx) == slog.Default() {
		ctx = logging.WithLogger(ctx, g.logger)
	}
	if timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, timeout)
}

func (g *Gateway) newRequest(ctx context.Context, method, path string, query url.Values, body io.Reader, contentType string) (*http.Request, error) {
	target := g.base.JoinPath(path)
	if len(query) > 0 {
		target.RawQuery = query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, method, target.String(), body)
	if err != nil {
		return nil, fmt.Errorf("create %s %s request: %w", method, path, err)
	}
	req.Header.Set("Accept", "application/json")
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if g.creds != nil {
		if token, ok := g.creds.Credential(ctx); ok {
			req.Header.Set("Authorization", "Bearer "+token)
		}
	}
	return req, nil
}

func (g *Gateway) do(req *http.Request, path string, out any) error {
	resp, err := g.client.Do(req)
	if err != nil {
		return &TransportError{Method: req.Method, Path: path, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyBytes))
		return &Error{Status: resp.StatusCode, Detail: parseDetail(body)}
	}

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		// Only a delete or a 204 may answer without a body.
		if errors.Is(err, io.EOF) && (req.Method == http.MethodDelete || resp.StatusCode == http.StatusNoContent) {
			return nil
		}
		if req.Context().Err() != nil {
			return &TransportError{Method: req.Method, Path: path, Err: req.Context().Err()}
		}
		return &DecodeError{Path: path, Err: err}
	}
	return nil
}
