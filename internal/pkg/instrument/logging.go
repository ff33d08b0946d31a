package instrument

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/samber/lo"
	"go.opentelemetry.io/contrib/bridges/otelslog"
	sdklog "go.opentelemetry.io/otel/sdk/log"
	"go.opentelemetry.io/otel/trace"
)

func initLogging(cfg *Config, lp *sdklog.LoggerProvider) {
	var sinks []slog.Handler
	sinks = append(sinks, newJSONHandler(os.Stdout, parseLevel(cfg.LogLevel)))
	if lp != nil {
		sinks = append(sinks, otelslog.NewHandler(cfg.ServiceName, otelslog.WithLoggerProvider(lp)))
	}

	var out slog.Handler = fanout(sinks)
	if len(sinks) == 1 {
		out = sinks[0]
	}

	slog.SetDefault(slog.New(&contextHandler{
		Handler: &maskHandler{next: out, keys: newMaskSet(cfg.MaskFields)},
		service: cfg.ServiceName,
	}))
}

func parseLevel(s string) slog.Level {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(strings.TrimSpace(s))); err != nil {
		return slog.LevelInfo
	}
	return lvl
}

// newJSONHandler writes ts/severity keys and reports the source as a path
// relative to internal/, dropping sources outside the module.
func newJSONHandler(w io.Writer, level slog.Level) slog.Handler {
	return slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level:     level,
		AddSource: true,
		ReplaceAttr: func(_ []string, a slog.Attr) slog.Attr {
			switch a.Key {
			case slog.TimeKey:
				a.Key = "ts"
			case slog.LevelKey:
				a.Key = "severity"
			case slog.SourceKey:
				src, ok := a.Value.Any().(*slog.Source)
				if !ok {
					return a
				}
				_, rel, found := strings.Cut(src.File, "/internal/")
				if !found {
					return slog.Attr{}
				}
				return slog.String("file", fmt.Sprintf("internal/%s:%d", rel, src.Line))
			}
			return a
		},
	})
}

// contextHandler stamps every record with the service name, the request
// correlation id and the active trace.
type contextHandler struct {
	slog.Handler
	service string
}

func (h *contextHandler) Handle(ctx context.Context, r slog.Record) error {
	if cID := GetCorrelationID(ctx); cID != "" {
		r.AddAttrs(slog.String("_cID", cID))
	}
	if sc := trace.SpanContextFromContext(ctx); sc.IsValid() {
		r.AddAttrs(slog.String("trace_id", sc.TraceID().String()), slog.String("span_id", sc.SpanID().String()))
	}
	r.AddAttrs(slog.String("service", h.service))

	return h.Handler.Handle(ctx, r)
}

func (h *contextHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &contextHandler{Handler: h.Handler.WithAttrs(attrs), service: h.service}
}

func (h *contextHandler) WithGroup(name string) slog.Handler {
	return &contextHandler{Handler: h.Handler.WithGroup(name), service: h.service}
}

type fanout []slog.Handler

func (f fanout) Enabled(ctx context.Context, level slog.Level) bool {
	return lo.SomeBy(f, func(h slog.Handler) bool { return h.Enabled(ctx, level) })
}

func (f fanout) Handle(ctx context.Context, r slog.Record) error {
	var err error
	for _, h := range f {
		if h.Enabled(ctx, r.Level) {
			err = errors.Join(err, h.Handle(ctx, r.Clone()))
		}
	}
	return err
}

func (f fanout) WithAttrs(attrs []slog.Attr) slog.Handler {
	return fanout(lo.Map(f, func(h slog.Handler, _ int) slog.Handler { return h.WithAttrs(attrs) }))
}

func (f fanout) WithGroup(name string) slog.Handler {
	return fanout(lo.Map(f, func(h slog.Handler, _ int) slog.Handler { return h.WithGroup(name) }))
}

type maskSet map[string]struct{}

func newMaskSet(fields []string) maskSet {
	set := maskSet{}
	for _, f := range fields {
		if f = strings.ToLower(strings.TrimSpace(f)); f != "" {
			set[f] = struct{}{}
		}
	}
	return set
}

func (s maskSet) has(key string) bool {
	_, ok := s[strings.ToLower(key)]
	return ok
}

// maskHandler redacts attributes named in the mask set, including keys
// nested in groups, maps and JSON payloads logged as strings or bytes.
type maskHandler struct {
	next slog.Handler
	keys maskSet
}

func (h *maskHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.next.Enabled(ctx, level)
}

func (h *maskHandler) Handle(ctx context.Context, r slog.Record) error {
	if len(h.keys) == 0 {
		return h.next.Handle(ctx, r)
	}

	out := slog.NewRecord(r.Time, r.Level, r.Message, r.PC)
	r.Attrs(func(a slog.Attr) bool {
		out.AddAttrs(h.keys.attr(a))
		return true
	})
	return h.next.Handle(ctx, out)
}

func (h *maskHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	masked := lo.Map(attrs, func(a slog.Attr, _ int) slog.Attr { return h.keys.attr(a) })
	return &maskHandler{next: h.next.WithAttrs(masked), keys: h.keys}
}

func (h *maskHandler) WithGroup(name string) slog.Handler {
	return &maskHandler{next: h.next.WithGroup(name), keys: h.keys}
}

func (s maskSet) attr(a slog.Attr) slog.Attr {
	if s.has(a.Key) {
		return slog.String(a.Key, "***")
	}

	switch a.Value.Kind() {
	case slog.KindGroup:
		group := lo.Map(a.Value.Group(), func(ga slog.Attr, _ int) slog.Attr { return s.attr(ga) })
		return slog.Attr{Key: a.Key, Value: slog.GroupValue(group...)}
	case slog.KindString:
		if masked, ok := s.json([]byte(a.Value.String())); ok {
			return slog.String(a.Key, masked)
		}
	case slog.KindAny:
		switch v := a.Value.Any().(type) {
		case map[string]any, []any:
			return slog.Any(a.Key, s.value(v))
		case map[string]string:
			return slog.Any(a.Key, s.value(lo.MapValues(v, func(val, _ string) any { return val })))
		case []byte:
			if masked, ok := s.json(v); ok {
				return slog.String(a.Key, masked)
			}
		}
	}
	return a
}

func (s maskSet) json(payload []byte) (string, bool) {
	if len(payload) == 0 || (payload[0] != '{' && payload[0] != '[') {
		return "", false
	}
	var decoded any
	if err := json.Unmarshal(payload, &decoded); err != nil {
		return "", false
	}
	out, err := json.Marshal(s.value(decoded))
	if err != nil {
		return "", false
	}
	return string(out), true
}

func (s maskSet) value(v any) any {
	switch val := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, inner := range val {
			if s.has(k) {
				out[k] = "***"
				continue
			}
			out[k] = s.value(inner)
		}
		return out
	case []any:
		return lo.Map(val, func(inner any, _ int) any { return s.value(inner) })
	default:
		return v
	}
}
