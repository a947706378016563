package logging

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// Span times one client operation such as a login, a catalog fetch or an
// upload, and logs its outcome when it ends.
type Span struct {
	logger *slog.Logger
	start  time.Time
	err    error
	result []any
}

// StartSpan opens a span named op under whatever span ctx already carries.
// Spans started from the same root share a trace id.
func StartSpan(ctx context.Context, op string, attrs ...slog.Attr) (context.Context, *Span) {
	if ctx == nil {
		ctx = context.Background()
	}

	parent, _ := ctx.Value(traceKey).(trace)
	current := trace{traceID: parent.traceID, spanID: uuid.NewString()}

	fields := make([]any, 0, len(attrs)+4)
	if current.traceID == "" {
		current.traceID = uuid.NewString()
		fields = append(fields, slog.String("trace_id", current.traceID))
	}
	fields = append(fields, slog.String("span_id", current.spanID), slog.String("op", op))
	if parent.spanID != "" {
		fields = append(fields, slog.String("parent_span_id", parent.spanID))
	}
	for _, attr := range attrs {
		fields = append(fields, attr)
	}

	logger := FromContext(ctx).With(fields...)
	ctx = context.WithValue(ctx, traceKey, current)
	return WithLogger(ctx, logger), &Span{logger: logger, start: time.Now()}
}

// Fail records an error to be reported when the span ends.
func (s *Span) Fail(err error) {
	if s == nil || err == nil {
		return
	}
	s.err = err
}

// Annotate adds attributes to the record written by End.
func (s *Span) Annotate(attrs ...slog.Attr) {
	if s == nil {
		return
	}
	for _, attr := range attrs {
		s.result = append(s.result, attr)
	}
}

// End logs the operation's duration and outcome.
func (s *Span) End() {
	if s == nil {
		return
	}
	fields := append([]any{slog.Duration("duration", time.Since(s.start))}, s.result...)
	if s.err != nil {
		s.logger.Warn("operation failed", append(fields, slog.String("error", s.err.Error()))...)
		return
	}
	s.logger.Info("operation completed", fields...)
}
