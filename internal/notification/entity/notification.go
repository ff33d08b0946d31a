package entity

import "time"

// Notification is one dispatched unit on one channel.
type Notification struct {
	ID             int64
	OrganizationID int64
	UserID         int64
	Channel        Channel
	Category       Category
	Status         NotificationStatus
	Title          string
	Body           string
	Entity         *EntityRef
	Metadata       Metadata
	IsRead         bool
	ReadAt         *time.Time
	CreatedAt      time.Time
	UpdatedAt      time.Time

	// DispatchKey identifies the event that produced the row. Empty for
	// rows no event owns, such as compiled digests.
	DispatchKey string
}

// ListInboxFilter selects a page of a user's in-app notifications.
type ListInboxFilter struct {
	OrganizationID int64
	UserID         int64
	Read           ReadFilter
	Limit          int32
	Offset         int32
}

// RecentFilter selects in-app notifications for the poll fallback.
type RecentFilter struct {
	OrganizationID int64
	UserID         int64
	Since          *time.Time
	Limit          int32
}

// RenderedEmail is the output of the template renderer.
type RenderedEmail struct {
	Subject string
	HTML    string
}

// Template is a stored email template; OrganizationID 0 means global.
type Template struct {
	OrganizationID int64
	Key            string
	Subject        string
	Body           string
}

// EmailJob is the payload of a send job on the work queue. The rendered
// subject and HTML live on the EMAIL notification row (Title and Body).
type EmailJob struct {
	OrganizationID int64 `json:"organizationId,string"`
	NotificationID int64 `json:"notificationId,string"`
}
