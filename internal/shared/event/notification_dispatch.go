package event

const NotificationDispatchDestination string = "notification_dispatch"
const NotificationDispatchConsumerNotification string = "notification_dispatch_notification"

// NotificationDispatchMessage asks the notification module to deliver an event
// to one recipient. Producers should set EventID and keep it across retries.
type NotificationDispatchMessage struct {
	EventID         string         `json:"event_id,omitempty"`
	OrganizationID  int64          `json:"organization_id,string"`
	RecipientUserID int64          `json:"recipient_user_id,string"`
	Category        string         `json:"category"`
	Urgent          bool           `json:"urgent"`
	TemplateKey     string         `json:"template_key"`
	TemplateData    map[string]any `json:"template_data,omitempty"`
	Title           string         `json:"title"`
	Body            string         `json:"body"`
	EntityKind      string         `json:"entity_kind,omitempty"`
	EntityID        int64          `json:"entity_id,omitempty,string"`
	Metadata        map[string]any `json:"metadata,omitempty"`
}
