package entity

import "time"

// DigestItem is one batched event awaiting the recipient's digest.
type DigestItem struct {
	ID             int64
	OrganizationID int64
	UserID         int64
	Category       Category
	Entity         *EntityRef
	Metadata       Metadata
	Processed      bool
	ProcessedAt    *time.Time
	CreatedAt      time.Time
	DispatchKey    string
}

// DigestGroup collapses items sharing (category, entity).
type DigestGroup struct {
	Category  Category
	Entity    *EntityRef
	Count     int
	LatestAt  time.Time
	Reference string
	Summary   string
	Link      string
}

// DigestPayload is the template context of a compiled digest.
type DigestPayload struct {
	RecipientName string
	Date          string
	Groups        []DigestGroup
	Total         int
}
