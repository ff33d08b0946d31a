package entity

import (
	"fmt"
	"time"
)

// RealtimeEventType is the name of a server push event.
type RealtimeEventType string

const (
	RealtimeNotificationNew RealtimeEventType = "notification:new"
	RealtimeUnreadCount     RealtimeEventType = "notification:unread_count"
	RealtimeMarkedRead      RealtimeEventType = "notification:marked_read"
	RealtimeRecent          RealtimeEventType = "notification:recent"
	RealtimeError           RealtimeEventType = "error"
)

// ChannelKey isolates live connections by organization and user.
func ChannelKey(orgID, userID int64) string {
	return fmt.Sprintf("org:%d:user:%d", orgID, userID)
}

// RealtimeEvent is pushed to the live connections of one channel.
type RealtimeEvent struct {
	Type           RealtimeEventType `json:"type"`
	OrganizationID int64             `json:"-"`
	UserID         int64             `json:"-"`
	Data           any               `json:"data"`
	At             time.Time         `json:"at"`
}

// Channel is the fan-out key of the event.
func (e RealtimeEvent) Channel() string {
	return ChannelKey(e.OrganizationID, e.UserID)
}
