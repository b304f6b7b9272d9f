package api

import (
	"bytes"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// RequestIDHeader correlates a client request with the API's logs.
const RequestIDHeader = "X-Request-ID"

const tracerName = "library-client/api"

// maxLoggedBody caps how much of a response body is buffered for the debug log.
const maxLoggedBody = 64 << 10

// LoggingTransport tags every request with a request id and, at debug level,
// logs request and response bodies.
type LoggingTransport struct {
	Base   http.RoundTripper
	Logger *slog.Logger
}

func (t *LoggingTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	base := t.Base
	if base == nil {
		base = http.DefaultTransport
	}
	logger := t.Logger
	if logger == nil {
		logger = slog.Default()
	}

	req = req.Clone(req.Context())
	if req.Header.Get(RequestIDHeader) == "" {
		req.Header.Set(RequestIDHeader, uuid.NewString())
	}
	reqID := req.Header.Get(RequestIDHeader)

	if !logger.Enabled(req.Context(), slog.LevelDebug) {
		return base.RoundTrip(req)
	}

	var reqBody []byte
	if req.Body != nil {
		reqBody, _ = io.ReadAll(req.Body)
		req.Body = io.NopCloser(bytes.NewReader(reqBody))
	}
	logger.Debug("outbound request",
		slog.String("method", req.Method),
		slog.String("url", req.URL.String()),
		slog.String("request_id", reqID),
		slog.String("body", string(reqBody)))

	start := time.Now()
	resp, err := base.RoundTrip(req)
	if err != nil {
		logger.Debug("outbound request failed",
			slog.String("request_id", reqID),
			slog.Duration("elapsed", time.Since(start)),
			slog.Any("error", err))
		return resp, err
	}

	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, maxLoggedBody))
	resp.Body = readCloser{
		Reader: io.MultiReader(bytes.NewReader(respBody), resp.Body),
		Closer: resp.Body,
	}

	logger.Debug("outbound response",
		slog.Int("status", resp.StatusCode),
		slog.String("url", req.URL.String()),
		slog.String("request_id", reqID),
		slog.Duration("elapsed", time.Since(start)),
		slog.String("body", string(respBody)))

	return resp, nil
}

type readCloser struct {
	io.Reader
	io.Closer
}

// TracingTransport opens one client span per request. Without an installed
// tracer provider the otel global is a no-op.
type TracingTransport struct {
	Base     http.RoundTripper
	Provider trace.TracerProvider
}

func (t *TracingTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	base := t.Base
	if base == nil {
		base = http.DefaultTransport
	}
	provider := t.Provider
	if provider == nil {
		provider = otel.GetTracerProvider()
	}

	ctx, span := provider.Tracer(tracerName).Start(req.Context(), "HTTP "+req.Method,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("http.request.method", req.Method),
			attribute.String("url.full", req.URL.String()),
		))
	defer span.End()

	resp, err := base.RoundTrip(req.WithContext(ctx))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return resp, err
	}

	span.SetAttributes(attribute.Int("http.response.status_code", resp.StatusCode))
	if resp.StatusCode >= http.StatusBadRequest {
		span.SetStatus(codes.Error, http.StatusText(resp.StatusCode))
	}
	return resp, nil
}
