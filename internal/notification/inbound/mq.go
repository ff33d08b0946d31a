package inbound

import (
	"context"
	"log/slog"
	"slices"

	"github.com/shandysiswandi/courier/internal/pkg/config"
	"github.com/shandysiswandi/courier/internal/pkg/goroutine"
	"github.com/shandysiswandi/courier/internal/pkg/instrument"
	"github.com/shandysiswandi/courier/internal/pkg/messaging"
	"github.com/shandysiswandi/courier/internal/pkg/uid"
	"github.com/shandysiswandi/courier/internal/shared/event"
)

// realtimeConsumerName is only a name for enabling the consumer; the broadcast
// itself subscribes without a shared group so every instance receives every event.
const realtimeConsumerName = "notification_realtime_broadcast"

func RegisterMQConsumer(
	ctx context.Context,
	cfg config.Config,
	routine *goroutine.Manager,
	messenger messaging.Messaging,
	uuid uid.StringID,
	uc uc,
	ins instrument.Instrumentation,
) {
	mqHandler := &MQHandler{uc: uc, uuid: uuid, ins: ins}

	enableConsumerNames := cfg.GetArray("modules.notification.consumer_names")
	concurrency := cfg.GetInt("modules.notification.consumer_concurrency")
	if concurrency <= 0 {
		concurrency = 10
	}

	var consumers = []struct {
		name              string
		topic             string // destination where publisher sent message
		natsConsumerName  string // queue group for nats, empty to broadcast
		kafkaConsumerName string // group for kafka
		handler           messaging.Handler
	}{
		{
			name:              event.NotificationDispatchConsumerNotification,
			topic:             event.NotificationDispatchDestination,
			natsConsumerName:  event.NotificationDispatchConsumerNotification,
			kafkaConsumerName: event.NotificationDispatchConsumerNotification,
			handler:           mqHandler.Dispatch,
		},
		{
			name:              realtimeConsumerName,
			topic:             event.NotificationRealtimeDestination,
			natsConsumerName:  "",
			kafkaConsumerName: realtimeConsumerName + "_" + uuid.Generate(),
			handler:           mqHandler.Realtime,
		},
	}

	for _, consumer := range consumers {
		if len(enableConsumerNames) > 0 && slices.Contains(enableConsumerNames, consumer.name) {
			routine.Go(ctx, func(pCtx context.Context) error {
				slog.InfoContext(ctx, "Running job for handling consumer", "consumer", consumer.name)
				return messenger.Consume(pCtx,
					consumer.topic,
					consumer.handler,
					messaging.WithQueueGroup(consumer.natsConsumerName),
					messaging.WithGroup(consumer.kafkaConsumerName),
					messaging.WithAutoAck(true),
					messaging.WithConcurrency(concurrency),
				)
			})
		}
	}
}
