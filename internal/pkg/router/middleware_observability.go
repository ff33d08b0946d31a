package router

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/shandysiswandi/courier/internal/pkg/config"
	"github.com/shandysiswandi/courier/internal/pkg/instrument"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
)

const maxLoggedBodyBytes = 16 * 1024

// alwaysMasked are redacted whatever instrument.log_mask_fields says.
var alwaysMasked = []string{"authorization", "cookie", "x-webhook-signature", queryTokenParam}

type masker map[string]struct{}

func newMasker(cfg config.Config) masker {
	m := masker{}
	for _, k := range alwaysMasked {
		m[k] = struct{}{}
	}
	if cfg == nil {
		return m
	}
	for _, k := range cfg.GetArray("instrument.log_mask_fields") {
		if k = strings.ToLower(strings.TrimSpace(k)); k != "" {
			m[k] = struct{}{}
		}
	}
	return m
}

func (m masker) hides(key string) bool {
	_, ok := m[strings.ToLower(key)]
	return ok
}

func (m masker) headers(h http.Header) http.Header {
	out := h.Clone()
	for k := range out {
		if m.hides(k) {
			out.Set(k, "***")
		}
	}
	return out
}

func (m masker) value(v any) any {
	switch val := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, inner := range val {
			if m.hides(k) {
				out[k] = "***"
				continue
			}
			out[k] = m.value(inner)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, inner := range val {
			out[i] = m.value(inner)
		}
		return out
	default:
		return v
	}
}

// body renders a captured payload for logs: masked JSON when it parses,
// otherwise the text itself.
func (m masker) body(b []byte, truncated bool) any {
	if len(b) == 0 {
		return nil
	}

	var out any
	var parsed any
	switch {
	case json.Unmarshal(b, &parsed) == nil:
		out = m.value(parsed)
	case utf8.Valid(b):
		out = string(b)
	default:
		out = "<binary body omitted>"
	}

	if truncated {
		return map[string]any{"body": out, "truncated": true}
	}
	return out
}

func (m masker) uri(r *http.Request) string {
	q := r.URL.Query()
	if !q.Has(queryTokenParam) {
		return r.RequestURI
	}
	q.Set(queryTokenParam, "***")
	u := *r.URL
	u.RawQuery = q.Encode()
	return u.RequestURI()
}

// responseRecorder captures status and size, and the first bytes of the body
// unless the request is a stream.
type responseRecorder struct {
	http.ResponseWriter
	status    int
	bytes     int
	capture   *bytes.Buffer
	truncated bool
	err       error
}

func (w *responseRecorder) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

func (w *responseRecorder) Write(p []byte) (int, error) {
	if w.status == 0 {
		w.status = http.StatusOK
	}
	if w.capture != nil && !w.truncated {
		room := maxLoggedBodyBytes - w.capture.Len()
		if len(p) > room {
			w.capture.Write(p[:room])
			w.truncated = true
		} else {
			w.capture.Write(p)
		}
	}

	n, err := w.ResponseWriter.Write(p)
	w.bytes += n
	return n, err
}

// SetError lets the endpoint adapter attach the handler error to the span.
func (w *responseRecorder) SetError(err error) { w.err = err }

func (w *responseRecorder) Flush() {
	if f, ok := w.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

//nolint:err113 // dynamic error
func (w *responseRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := w.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("hijack not supported")
	}
	return h.Hijack()
}

func (w *responseRecorder) Unwrap() http.ResponseWriter { return w.ResponseWriter }

func (w *responseRecorder) statusCode() int {
	if w.status == 0 {
		return http.StatusOK
	}
	return w.status
}

func isStream(r *http.Request) bool {
	return strings.EqualFold(r.Header.Get("Upgrade"), "websocket") ||
		strings.Contains(r.Header.Get("Accept"), "text/event-stream")
}

func peekBody(r *http.Request) ([]byte, bool) {
	if r.Body == nil || r.Body == http.NoBody {
		return nil, false
	}

	//nolint:errcheck // logging only
	head, _ := io.ReadAll(io.LimitReader(r.Body, maxLoggedBodyBytes+1))
	r.Body = io.NopCloser(io.MultiReader(bytes.NewReader(head), r.Body))
	if len(head) > maxLoggedBodyBytes {
		return head[:maxLoggedBodyBytes], true
	}
	return head, false
}

func middlewareObservability(cfg config.Config, ins instrument.Instrumentation) Middleware {
	mask := newMasker(cfg)
	tracer := ins.Tracer("http.server")
	meter := ins.Meter("http.server")

	requests, err := meter.Int64Counter("http.server.requests", metric.WithDescription("Number of HTTP requests received"))
	if err != nil {
		slog.Error("failed to create http request counter", "error", err)
	}
	duration, err := meter.Float64Histogram("http.server.duration", metric.WithDescription("HTTP request duration in milliseconds"))
	if err != nil {
		slog.Error("failed to create http duration histogram", "error", err)
	}
	streams, err := meter.Int64UpDownCounter("http.server.open_streams", metric.WithDescription("Open SSE and WebSocket connections"))
	if err != nil {
		slog.Error("failed to create open streams counter", "error", err)
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			route := matchedRoutePath(r)
			stream := isStream(r)

			ctx, span := tracer.Start(r.Context(), r.Method+" "+route, trace.WithAttributes(
				semconv.HTTPRequestMethodKey.String(r.Method),
				semconv.HTTPRouteKey.String(route),
			))
			defer span.End()

			rec := &responseRecorder{ResponseWriter: w}
			if stream {
				slog.InfoContext(ctx, "stream opened", "path", route, "uri", mask.uri(r), "headers", mask.headers(r.Header))
				if streams != nil {
					streams.Add(ctx, 1, metric.WithAttributes(semconv.HTTPRouteKey.String(route)))
					defer streams.Add(ctx, -1, metric.WithAttributes(semconv.HTTPRouteKey.String(route)))
				}
			} else {
				body, truncated := peekBody(r)
				slog.InfoContext(ctx, "request received",
					"method", r.Method,
					"path", route,
					"uri", mask.uri(r),
					"headers", mask.headers(r.Header),
					"body", mask.body(body, truncated),
				)
				rec.capture = &bytes.Buffer{}
			}

			next.ServeHTTP(rec, r.WithContext(ctx))

			status := rec.statusCode()
			elapsed := time.Since(start)
			attrs := []attribute.KeyValue{
				semconv.HTTPRequestMethodKey.String(r.Method),
				semconv.HTTPRouteKey.String(route),
				semconv.HTTPResponseStatusCodeKey.Int(status),
			}

			if rec.err != nil {
				span.RecordError(rec.err)
			}
			switch {
			case status < http.StatusInternalServerError:
				span.SetStatus(codes.Ok, "")
			case rec.err != nil:
				span.SetStatus(codes.Error, rec.err.Error())
			default:
				span.SetStatus(codes.Error, http.StatusText(status))
			}
			span.SetAttributes(attrs...)
			span.SetAttributes(
				semconv.NetworkProtocolVersionKey.String(r.Proto),
				semconv.ServerAddressKey.String(r.Host),
				attribute.String("http.user_agent", r.UserAgent()),
				attribute.Int("http.response_content_length", rec.bytes),
			)

			if requests != nil {
				requests.Add(ctx, 1, metric.WithAttributes(attrs...))
			}
			if duration != nil && !stream {
				duration.Record(ctx, float64(elapsed.Milliseconds()), metric.WithAttributes(attrs...))
			}

			if stream {
				slog.InfoContext(ctx, "stream closed", "path", route, "status", status, "bytes", rec.bytes, "open_for", elapsed.String())
				return
			}
			slog.InfoContext(ctx, "response sent",
				"method", r.Method,
				"path", route,
				"status", status,
				"bytes", rec.bytes,
				"latency_ms", elapsed.Milliseconds(),
				"body", mask.body(rec.capture.Bytes(), rec.truncated),
			)
		})
	}
}
