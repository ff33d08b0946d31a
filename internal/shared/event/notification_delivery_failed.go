package event

import "time"

const NotificationDeliveryFailedDestination string = "notification_delivery_failed"

// NotificationDeliveryFailedMessage alerts on a permanent email delivery failure.
type NotificationDeliveryFailedMessage struct {
	OrganizationID  int64     `json:"organization_id,string"`
	NotificationID  int64     `json:"notification_id,string"`
	RecipientUserID int64     `json:"recipient_user_id,string"`
	RecipientEmail  string    `json:"recipient_email"`
	Category        string    `json:"category"`
	Reason          string    `json:"reason"`
	EntityKind      string    `json:"entity_kind,omitempty"`
	EntityID        int64     `json:"entity_id,omitempty,string"`
	FailedAt        time.Time `json:"failed_at"`
}
