package router

import (
	"net/http"
	"strings"

	"github.com/shandysiswandi/courier/internal/pkg/instrument"
	"github.com/shandysiswandi/courier/internal/pkg/uid"
)

const (
	// HeaderCorrelationID is echoed on every response and propagated to
	// published events under the cID header.
	HeaderCorrelationID = "X-Correlation-ID"
	// HeaderRequestID is accepted from proxies that set it instead.
	HeaderRequestID = "X-Request-ID"

	maxCorrelationIDLen = 128
)

// incomingCorrelationID returns the first usable caller-supplied ID. Values
// carrying line breaks are rejected so they cannot forge log lines.
func incomingCorrelationID(h http.Header) string {
	for _, name := range []string{HeaderCorrelationID, HeaderRequestID} {
		v := h.Get(name)
		if strings.ContainsAny(v, "\r\n") {
			continue
		}
		if v = strings.TrimSpace(v); v != "" {
			return v[:min(len(v), maxCorrelationIDLen)]
		}
	}
	return ""
}

func middlewareCorrelationID(gen uid.StringID) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			cid := incomingCorrelationID(r.Header)
			if cid == "" && gen != nil {
				cid = gen.Generate()
			}
			if cid != "" {
				w.Header().Set(HeaderCorrelationID, cid)
				r = r.WithContext(instrument.SetCorrelationID(r.Context(), cid))
			}

			next.ServeHTTP(w, r)
		})
	}
}
