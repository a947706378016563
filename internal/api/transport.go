package api

import (
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/time/rate"

	"github.com/ravikeerthi7606/edustream/internal/logging"
)

// RequestIDHeader carries the client-generated request identifier.
const RequestIDHeader = "X-Request-ID"

// loggingTransport decorates outgoing requests with a request id and structured logging.
type loggingTransport struct {
	next http.RoundTripper
}

func (t *loggingTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	start := time.Now()

	ctx, requestID := logging.EnsureRequestID(req.Context())
	req = req.Clone(ctx)
	req.Header.Set(RequestIDHeader, requestID)

	logger := logging.FromContext(ctx).With(
		slog.String("request_id", requestID),
		slog.String("method", req.Method),
		slog.String("path", req.URL.Path),
	)

	resp, err := t.next.RoundTrip(req)
	if err != nil {
		logger.Warn("request failed", slog.Duration("duration", time.Since(start)), slog.String("error", err.Error()))
		return nil, err
	}

	logger.Debug("request completed",
		slog.Int("status", resp.StatusCode),
		slog.Duration("duration", time.Since(start)),
	)
	return resp, nil
}

// throttleTransport bounds how frequently the client calls the API.
type throttleTransport struct {
	next    http.RoundTripper
	limiter *rate.Limiter
}

func newThrottleTransport(next http.RoundTripper, requestsPerSecond float64, burst int) http.RoundTripper {
	if requestsPerSecond <= 0 {
		return next
	}
	if burst <= 0 {
		burst = 1
	}
	return &throttleTransport{next: next, limiter: rate.NewLimiter(rate.Limit(requestsPerSecond), burst)}
}

func (t *throttleTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if err := t.limiter.Wait(req.Context()); err != nil {
		if req.Body != nil {
			_ = req.Body.Close()
		}
		return nil, err
	}
	return t.next.RoundTrip(req)
}
