package entity

import "time"

type DeliveryStatus int16

const (
	DeliveryStatusUnknown   DeliveryStatus = 0
	DeliveryStatusPending   DeliveryStatus = 1
	DeliveryStatusSent      DeliveryStatus = 2
	DeliveryStatusDelivered DeliveryStatus = 3
	DeliveryStatusBounced   DeliveryStatus = 4
	DeliveryStatusDeferred  DeliveryStatus = 5
	DeliveryStatusFailed    DeliveryStatus = 6
)

func (s DeliveryStatus) String() string {
	switch s {
	case DeliveryStatusPending:
		return "PENDING"
	case DeliveryStatusSent:
		return "SENT"
	case DeliveryStatusDelivered:
		return "DELIVERED"
	case DeliveryStatusBounced:
		return "BOUNCED"
	case DeliveryStatusDeferred:
		return "DEFERRED"
	case DeliveryStatusFailed:
		return "FAILED"
	default:
		return "UNKNOWN"
	}
}

var deliveryTransitions = map[DeliveryStatus][]DeliveryStatus{
	DeliveryStatusPending:  {DeliveryStatusSent, DeliveryStatusFailed},
	DeliveryStatusSent:     {DeliveryStatusSent, DeliveryStatusDelivered, DeliveryStatusBounced, DeliveryStatusDeferred, DeliveryStatusFailed},
	DeliveryStatusDeferred: {DeliveryStatusSent, DeliveryStatusDelivered, DeliveryStatusBounced, DeliveryStatusFailed},
	DeliveryStatusFailed:   {DeliveryStatusSent, DeliveryStatusFailed},
}

// CanTransitionTo reports whether a delivery may move from s to next.
// DELIVERED and BOUNCED are terminal.
func (s DeliveryStatus) CanTransitionTo(next DeliveryStatus) bool {
	for _, allowed := range deliveryTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// IsTerminal reports whether no further transition is possible.
func (s DeliveryStatus) IsTerminal() bool {
	return len(deliveryTransitions[s]) == 0
}

// Delivery tracks the provider-side lifecycle of one EMAIL notification.
type Delivery struct {
	NotificationID    int64
	OrganizationID    int64
	RecipientUserID   int64
	RecipientEmail    string
	ProviderMessageID string
	Status            DeliveryStatus
	Attempts          int
	LastAttemptAt     *time.Time
	ErrorMessage      string
	BounceClass       BounceClass
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// DeliveryUpdate moves a delivery from From to Status. It applies only while
// the stored status still equals From.
type DeliveryUpdate struct {
	OrganizationID    int64
	NotificationID    int64
	From              DeliveryStatus
	Status            DeliveryStatus
	ProviderMessageID string
	ErrorMessage      string
	BounceClass       BounceClass
	IncrementAttempts bool
	At                time.Time
}

// PermanentFailure is the input of the single permanent-failure write.
type PermanentFailure struct {
	AuditID        int64
	OrganizationID int64
	NotificationID int64
	Reason         string
	At             time.Time
}

// AuditAction names an immutable audit entry kind.
type AuditAction string

const AuditActionDeliveryPermanentFailure AuditAction = "DELIVERY_PERMANENT_FAILURE"

// AuditEntry is the compliance record written on permanent failure.
type AuditEntry struct {
	ID              int64
	OrganizationID  int64
	NotificationID  int64
	Action          AuditAction
	RecipientUserID int64
	RecipientEmail  string
	Category        Category
	Reason          string
	Entity          *EntityRef
	CreatedAt       time.Time
}

// EmailSuppression blocks future sends to an address after a hard or blocked bounce.
type EmailSuppression struct {
	OrganizationID int64
	Email          string
	BounceClass    BounceClass
	Reason         string
	CreatedAt      time.Time
}
