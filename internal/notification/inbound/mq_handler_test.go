package inbound

import (
	"context"
	"errors"
	"testing"

	"github.com/shandysiswandi/courier/internal/pkg/goerror"
	"github.com/shandysiswandi/courier/internal/pkg/instrument"
	"github.com/shandysiswandi/courier/internal/pkg/messaging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeMessage struct {
	body    []byte
	headers map[string]string
}

func (m fakeMessage) Source() string             { return "notification_dispatch" }
func (m fakeMessage) Body() []byte               { return m.body }
func (m fakeMessage) Header(key string) string   { return m.headers[key] }
func (m fakeMessage) Ack(context.Context) error  { return nil }
func (m fakeMessage) Nack(context.Context) error { return nil }

var _ messaging.Message = fakeMessage{}

func newMQHandler(uc *fakeUC) *MQHandler {
	return &MQHandler{uc: uc, uuid: &seqUUID{}, ins: instrument.NewNoop()}
}

func TestMQHandler_Dispatch(t *testing.T) {
	body := []byte(`{"event_id":"evt-9","organization_id":"1","recipient_user_id":"42","category":"COMMENT","title":"New comment","entity_kind":"CASE","entity_id":"7"}`)

	t.Run("Success", func(t *testing.T) {
		// Arrange
		uc := newFakeUC()

		// Act
		err := newMQHandler(uc).Dispatch(context.Background(), fakeMessage{body: body})

		// Assert
		require.NoError(t, err)
		require.Len(t, uc.dispatched, 1)
		assert.Equal(t, int64(1), uc.dispatched[0].OrganizationID)
		assert.Equal(t, int64(7), uc.dispatched[0].EntityID)
		assert.Equal(t, "evt-9", uc.dispatched[0].EventID)
	})

	t.Run("MalformedIsDropped", func(t *testing.T) {
		// Arrange
		uc := newFakeUC()

		// Act
		err := newMQHandler(uc).Dispatch(context.Background(), fakeMessage{body: []byte("{")})

		// Assert
		require.NoError(t, err)
		assert.Empty(t, uc.dispatched)
	})

	t.Run("InvalidIsDropped", func(t *testing.T) {
		// Arrange
		uc := newFakeUC()
		uc.dispatchErr = goerror.NewInvalidInput(nil, "category", "unknown category")

		// Act
		err := newMQHandler(uc).Dispatch(context.Background(), fakeMessage{body: body})

		// Assert
		assert.NoError(t, err)
	})

	t.Run("ServerErrorIsReturned", func(t *testing.T) {
		// Arrange
		uc := newFakeUC()
		uc.dispatchErr = goerror.NewServer(errors.New("db down"))

		// Act
		err := newMQHandler(uc).Dispatch(context.Background(), fakeMessage{body: body})

		// Assert
		assert.Error(t, err)
	})
}

func TestMQHandler_Realtime(t *testing.T) {
	// Arrange
	uc := newFakeUC()
	body := []byte(`{"event_id":"evt-9","organization_id":"1","user_id":"9","type":"notification:unread_count","data":{"count":3},"at":"2026-03-10T09:00:00Z"}`)

	// Act
	err := newMQHandler(uc).Realtime(context.Background(), fakeMessage{
		body:    body,
		headers: map[string]string{keyOfCorrelationID: "cid-1"},
	})

	// Assert
	require.NoError(t, err)
	require.Len(t, uc.realtime, 1)
	assert.Equal(t, int64(9), uc.realtime[0].UserID)
	assert.JSONEq(t, `{"count":3}`, string(uc.realtime[0].Data))
}
