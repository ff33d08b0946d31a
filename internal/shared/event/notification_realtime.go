package event

import (
	"encoding/json"
	"time"
)

// NotificationRealtimeDestination is consumed by every instance without a queue group.
const NotificationRealtimeDestination string = "notification_realtime"

type NotificationRealtimeMessage struct {
	OrganizationID int64           `json:"organization_id,string"`
	UserID         int64           `json:"user_id,string"`
	Type           string          `json:"type"`
	Data           json.RawMessage `json:"data"`
	At             time.Time       `json:"at"`
}
