package entity

import (
	"strings"
)

type Channel int16

const (
	ChannelUnknown Channel = 0
	ChannelInApp   Channel = 1
	ChannelEmail   Channel = 2
)

func ChannelFromString(raw string) Channel {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "in_app":
		return ChannelInApp
	case "email":
		return ChannelEmail
	default:
		return ChannelUnknown
	}
}

func (c Channel) String() string {
	switch c {
	case ChannelInApp:
		return "in_app"
	case ChannelEmail:
		return "email"
	default:
		return "unknown"
	}
}

type NotificationStatus int16

const (
	NotificationStatusUnknown   NotificationStatus = 0
	NotificationStatusQueued    NotificationStatus = 1
	NotificationStatusSent      NotificationStatus = 2
	NotificationStatusDelivered NotificationStatus = 3
	NotificationStatusFailed    NotificationStatus = 4
	NotificationStatusArchived  NotificationStatus = 5
)

func (s NotificationStatus) String() string {
	switch s {
	case NotificationStatusQueued:
		return "QUEUED"
	case NotificationStatusSent:
		return "SENT"
	case NotificationStatusDelivered:
		return "DELIVERED"
	case NotificationStatusFailed:
		return "FAILED"
	case NotificationStatusArchived:
		return "ARCHIVED"
	default:
		return "UNKNOWN"
	}
}

// ReadFilter narrows an inbox listing.
type ReadFilter string

const (
	ReadFilterAll    ReadFilter = "all"
	ReadFilterUnread ReadFilter = "unread"
	ReadFilterRead   ReadFilter = "read"
)

// BounceClass is the provider's classification of a bounce.
type BounceClass string

const (
	BounceClassNone    BounceClass = ""
	BounceClassHard    BounceClass = "hard"
	BounceClassSoft    BounceClass = "soft"
	BounceClassBlocked BounceClass = "blocked"
	BounceClassUnknown BounceClass = "unknown"
)

// Suppresses reports whether future sends to the address must stop.
func (b BounceClass) Suppresses() bool {
	return b == BounceClassHard || b == BounceClassBlocked
}
