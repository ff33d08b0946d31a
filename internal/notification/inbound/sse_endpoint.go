package inbound

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/samber/lo"
	"github.com/shandysiswandi/courier/internal/notification/entity"
	"github.com/shandysiswandi/courier/internal/notification/usecase"
)

const (
	sseHeartbeat  = 25 * time.Second
	sseRetryDelay = 5 * time.Second
)

// sseWriter frames events. The event time doubles as the SSE id, which a
// reconnecting EventSource sends back as Last-Event-ID.
type sseWriter struct {
	w http.ResponseWriter
	f http.Flusher
}

func (s sseWriter) comment(text string) error {
	if _, err := fmt.Fprintf(s.w, ": %s\n\n", text); err != nil {
		return err
	}
	s.f.Flush()
	return nil
}

func (s sseWriter) event(evt entity.RealtimeEvent) error {
	payload, err := json.Marshal(evt)
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(s.w, "id: %s\nevent: %s\ndata: %s\n\n", evt.At.Format(time.RFC3339Nano), evt.Type, payload); err != nil {
		return err
	}
	s.f.Flush()
	return nil
}

// lastEventTime reads the resume point from Last-Event-ID, falling back to the
// since query parameter for clients that build the URL themselves.
func lastEventTime(r *http.Request) *time.Time {
	for _, raw := range []string{r.Header.Get("Last-Event-ID"), r.URL.Query().Get("since")} {
		if t, err := time.Parse(time.RFC3339Nano, raw); err == nil {
			return &t
		}
	}
	return nil
}

// StreamNotifications streams realtime events to read-only clients using SSE.
// @Summary Stream notifications
// @Description Server-Sent Events stream. The token may be passed as access_token. Reconnects with Last-Event-ID replay missed notifications.
// @Tags Notification
// @Security BearerAuth
// @Produce text/event-stream
// @Param Last-Event-ID header string false "Resume point from a previous stream"
// @Success 200 {string} string "SSE stream"
// @Failure 401 {string} string "Unauthorized"
// @Router /api/v1/notification/stream [get]
func (h *HTTPEndpoint) StreamNotifications(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}
	ctx := r.Context()

	stream, err := h.uc.Subscribe(ctx)
	if err != nil {
		http.Error(w, "Authentication required", http.StatusUnauthorized)
		return
	}

	hdr := w.Header()
	hdr.Set("Content-Type", "text/event-stream")
	hdr.Set("Cache-Control", "no-cache")
	hdr.Set("Connection", "keep-alive")
	hdr.Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	out := sseWriter{w: w, f: flusher}
	if _, err := fmt.Fprintf(w, "retry: %d\n", sseRetryDelay.Milliseconds()); err != nil {
		return
	}
	if err := out.comment("connected"); err != nil {
		slog.ErrorContext(ctx, "failed to open event stream", "error", err)
		return
	}

	if since := lastEventTime(r); since != nil {
		items, err := h.uc.ListRecent(ctx, usecase.ListRecentInput{Since: since})
		if err != nil {
			slog.WarnContext(ctx, "failed to replay missed notifications", "since", since, "error", err)
		} else if len(items) > 0 {
			_ = out.event(entity.RealtimeEvent{
				Type: entity.RealtimeRecent,
				Data: lo.Map(items, func(n entity.Notification, _ int) usecase.RealtimeNotification {
					return usecase.NewRealtimeNotification(n)
				}),
				At: time.Now().UTC(),
			})
		}
	}

	if count, err := h.uc.GetUnreadCount(ctx); err == nil {
		if err := out.event(entity.RealtimeEvent{
			Type: entity.RealtimeUnreadCount,
			Data: usecase.UnreadCount{Count: count},
			At:   time.Now().UTC(),
		}); err != nil {
			return
		}
	}

	ticker := time.NewTicker(sseHeartbeat)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := out.comment("ping"); err != nil {
				return
			}
		case evt, ok := <-stream:
			if !ok {
				return
			}
			if err := out.event(evt); err != nil {
				slog.ErrorContext(ctx, "failed to write stream event", "type", evt.Type, "error", err)
				return
			}
		}
	}
}
