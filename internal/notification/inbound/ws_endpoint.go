package inbound

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"slices"
	"time"

	"github.com/gorilla/websocket"
	"github.com/samber/lo"
	"github.com/shandysiswandi/courier/internal/notification/entity"
	"github.com/shandysiswandi/courier/internal/notification/usecase"
	"github.com/shandysiswandi/courier/internal/pkg/goerror"
	"github.com/shandysiswandi/courier/internal/pkg/instrument"
	"github.com/shandysiswandi/courier/internal/pkg/uid"
	"github.com/shandysiswandi/courier/internal/pkg/validator"
)

const (
	wsWriteWait  = 10 * time.Second
	wsPongWait   = 60 * time.Second
	wsPingPeriod = (wsPongWait * 9) / 10
	wsReadLimit  = 64 << 10
	wsSendBuffer = 32
)

// Client message types.
const (
	wsMarkRead       = "mark_read"
	wsGetUnreadCount = "get_unread_count"
	wsGetRecent      = "get_recent"
)

type wsClientMessage struct {
	Type  string     `json:"type"`
	IDs   []int64    `json:"ids"`
	Since *time.Time `json:"since"`
	Limit int32      `json:"limit"`
}

type wsError struct {
	Message string            `json:"message"`
	Fields  map[string]string `json:"fields,omitempty"`
}

type wsEndpoint struct {
	uc       ucRealtime
	uuid     uid.StringID
	upgrader websocket.Upgrader
}

func newWSEndpoint(uc ucRealtime, uuid uid.StringID, allowedOrigins []string) *wsEndpoint {
	up := websocket.Upgrader{ReadBufferSize: 1024, WriteBufferSize: 1024}
	if len(allowedOrigins) > 0 {
		up.CheckOrigin = func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			return origin == "" || slices.Contains(allowedOrigins, "*") || slices.Contains(allowedOrigins, origin)
		}
	}

	return &wsEndpoint{uc: uc, uuid: uuid, upgrader: up}
}

// wsConn serializes writes: only the write loop touches the connection for output.
type wsConn struct {
	conn *websocket.Conn
	send chan entity.RealtimeEvent
}

func (c *wsConn) enqueue(evt entity.RealtimeEvent) {
	select {
	case c.send <- evt:
	default:
	}
}

// Serve upgrades the request to a WebSocket bound to the caller's channel.
// @Summary Live notifications
// @Description Bidirectional realtime channel. The token may be passed as access_token.
// @Tags Notification
// @Security BearerAuth
// @Success 101 "Switching Protocols"
// @Failure 401 {string} string "Unauthorized"
// @Router /api/v1/notification/ws [get]
func (e *wsEndpoint) Serve(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	stream, err := e.uc.Subscribe(ctx)
	if err != nil {
		http.Error(w, "Authentication required", http.StatusUnauthorized)
		return
	}

	conn, err := e.upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.WarnContext(ctx, "failed to upgrade websocket", "error", err)
		return
	}
	defer conn.Close()

	c := &wsConn{conn: conn, send: make(chan entity.RealtimeEvent, wsSendBuffer)}

	e.sendUnreadCount(ctx, c)

	go func() {
		defer cancel()
		e.readLoop(ctx, c)
	}()

	e.writeLoop(ctx, c, stream)
}

func (e *wsEndpoint) readLoop(ctx context.Context, c *wsConn) {
	c.conn.SetReadLimit(wsReadLimit)
	_ = c.conn.SetReadDeadline(time.Now().Add(wsPongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(wsPongWait))
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				slog.WarnContext(ctx, "websocket closed unexpectedly", "error", err)
			}
			return
		}

		var msg wsClientMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			c.enqueue(errorEvent("Invalid message"))
			continue
		}

		e.handle(instrument.SetCorrelationID(ctx, e.uuid.Generate()), c, msg)
	}
}

func (e *wsEndpoint) handle(ctx context.Context, c *wsConn, msg wsClientMessage) {
	switch msg.Type {
	case wsMarkRead:
		// marked_read and unread_count come back through the subscription.
		if _, err := e.uc.MarkRead(ctx, usecase.MarkReadInput{IDs: msg.IDs}); err != nil {
			c.enqueue(errorEvent("", err))
		}

	case wsGetUnreadCount:
		e.sendUnreadCount(ctx, c)

	case wsGetRecent:
		items, err := e.uc.ListRecent(ctx, usecase.ListRecentInput{Since: msg.Since, Limit: msg.Limit})
		if err != nil {
			c.enqueue(errorEvent("", err))
			return
		}
		c.enqueue(entity.RealtimeEvent{
			Type: entity.RealtimeRecent,
			Data: lo.Map(items, func(n entity.Notification, _ int) usecase.RealtimeNotification {
				return usecase.NewRealtimeNotification(n)
			}),
			At: time.Now().UTC(),
		})

	default:
		c.enqueue(errorEvent("Unknown message type " + msg.Type))
	}
}

func (e *wsEndpoint) sendUnreadCount(ctx context.Context, c *wsConn) {
	count, err := e.uc.GetUnreadCount(ctx)
	if err != nil {
		c.enqueue(errorEvent("", err))
		return
	}
	c.enqueue(entity.RealtimeEvent{
		Type: entity.RealtimeUnreadCount,
		Data: usecase.UnreadCount{Count: count},
		At:   time.Now().UTC(),
	})
}

func (e *wsEndpoint) writeLoop(ctx context.Context, c *wsConn, stream <-chan entity.RealtimeEvent) {
	ticker := time.NewTicker(wsPingPeriod)
	defer ticker.Stop()

	write := func(evt entity.RealtimeEvent) bool {
		_ = c.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
		if err := c.conn.WriteJSON(evt); err != nil {
			slog.WarnContext(ctx, "failed to write websocket event", "type", evt.Type, "error", err)
			return false
		}
		return true
	}

	for {
		select {
		case <-ctx.Done():
			_ = c.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			_ = c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return

		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}

		case evt := <-c.send:
			if !write(evt) {
				return
			}

		case evt, ok := <-stream:
			if !ok {
				return
			}
			if !write(evt) {
				return
			}
		}
	}
}

func errorEvent(msg string, errs ...error) entity.RealtimeEvent {
	out := wsError{Message: msg}
	for _, err := range errs {
		var gerr *goerror.Error
		if errors.As(err, &gerr) {
			out.Message = gerr.Msg()
			out.Fields = gerr.Fields()
			var verr validator.V10ValidationError
			if errors.As(err, &verr) {
				out.Fields = verr.Values()
			}
			continue
		}
		out.Message = "Internal server error"
	}

	return entity.RealtimeEvent{Type: entity.RealtimeError, Data: out, At: time.Now().UTC()}
}
