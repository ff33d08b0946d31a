package usecase

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/shandysiswandi/courier/internal/notification/entity"
	"github.com/shandysiswandi/courier/internal/pkg/goerror"
	"github.com/shandysiswandi/courier/internal/shared/event"
	"go.uber.org/atomic"
)

const subscriberBuffer = 16

type subscriber struct {
	ch      chan entity.RealtimeEvent
	closed  atomic.Bool
	dropped atomic.Int64
}

// Subscribe registers a live connection for the authenticated user. The
// channel is closed once ctx is done.
func (s *Usecase) Subscribe(ctx context.Context) (<-chan entity.RealtimeEvent, error) {
	clm, err := s.requireAuth(ctx)
	if err != nil {
		return nil, err
	}

	key := entity.ChannelKey(clm.OrganizationID, clm.UserID)
	sub := &subscriber{ch: make(chan entity.RealtimeEvent, subscriberBuffer)}

	s.streamMu.Lock()
	if s.streams[key] == nil {
		s.streams[key] = make(map[*subscriber]struct{})
	}
	s.streams[key][sub] = struct{}{}
	s.streamMu.Unlock()

	go func() {
		<-ctx.Done()
		s.streamMu.Lock()
		if subs := s.streams[key]; subs != nil {
			delete(subs, sub)
			if len(subs) == 0 {
				delete(s.streams, key)
			}
		}
		sub.closed.Store(true)
		close(sub.ch)
		s.streamMu.Unlock()

		if n := sub.dropped.Load(); n > 0 {
			slog.WarnContext(context.WithoutCancel(ctx), "realtime subscriber dropped events", "channel", key, "dropped", n)
		}
	}()

	return sub.ch, nil
}

// deliverLocal never blocks: a subscriber with a full buffer misses the event.
func (s *Usecase) deliverLocal(evt entity.RealtimeEvent) {
	s.streamMu.RLock()
	defer s.streamMu.RUnlock()

	for sub := range s.streams[evt.Channel()] {
		if sub.closed.Load() {
			continue
		}

		select {
		case sub.ch <- evt:
		default:
			sub.dropped.Inc()
		}
	}
}

// push fans evt out to every instance through the bus, or locally when the bus is unavailable.
func (s *Usecase) push(ctx context.Context, evt entity.RealtimeEvent) {
	if evt.At.IsZero() {
		evt.At = s.clock.Now()
	}

	if s.repoMQ == nil {
		s.deliverLocal(evt)
		return
	}

	data, err := json.Marshal(evt.Data)
	if err != nil {
		slog.ErrorContext(ctx, "failed to marshal realtime event", "type", evt.Type, "error", err)
		return
	}

	if err := s.repoMQ.PublishRealtime(ctx, event.NotificationRealtimeMessage{
		OrganizationID: evt.OrganizationID,
		UserID:         evt.UserID,
		Type:           string(evt.Type),
		Data:           data,
		At:             evt.At,
	}); err != nil {
		slog.WarnContext(ctx, "failed to publish realtime event, delivering locally", "channel", evt.Channel(), "type", evt.Type, "error", err)
		s.deliverLocal(evt)
	}
}

// DeliverRealtime hands a broadcast event to this instance's live connections.
func (s *Usecase) DeliverRealtime(ctx context.Context, msg event.NotificationRealtimeMessage) error {
	_, span := s.startSpan(ctx, "DeliverRealtime")
	defer span.End()

	if msg.OrganizationID == 0 || msg.UserID == 0 || msg.Type == "" {
		return goerror.NewInvalidInput(nil, "message", "organization, user and type are required")
	}

	s.deliverLocal(entity.RealtimeEvent{
		Type:           entity.RealtimeEventType(msg.Type),
		OrganizationID: msg.OrganizationID,
		UserID:         msg.UserID,
		Data:           msg.Data,
		At:             msg.At,
	})

	return nil
}

func (s *Usecase) pushUnreadCount(ctx context.Context, orgID, userID int64) {
	n, err := s.repoDB.CountUnread(ctx, orgID, userID)
	if err != nil {
		slog.ErrorContext(ctx, "failed to repo count unread", "organization_id", orgID, "user_id", userID, "error", err)
		return
	}

	s.push(ctx, entity.RealtimeEvent{
		Type:           entity.RealtimeUnreadCount,
		OrganizationID: orgID,
		UserID:         userID,
		Data:           UnreadCount{Count: n},
	})
}
