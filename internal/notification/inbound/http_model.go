package inbound

import (
	"time"

	"github.com/shandysiswandi/courier/internal/notification/entity"
)

type DispatchRequest struct {
	EventID         string         `json:"event_id"`
	RecipientUserID int64          `json:"recipient_user_id,string"`
	Category        string         `json:"category"`
	Urgent          bool           `json:"urgent"`
	TemplateKey     string         `json:"template_key"`
	TemplateData    map[string]any `json:"template_data"`
	Title           string         `json:"title"`
	Body            string         `json:"body"`
	EntityKind      string         `json:"entity_kind"`
	EntityID        int64          `json:"entity_id,string"`
	Metadata        map[string]any `json:"metadata"`
}

type WebhookResponse struct {
	Received  int `json:"received"`
	Processed int `json:"processed"`
}

type NotificationResponse struct {
	ID         int64           `json:"id,string"`
	Category   string          `json:"category"`
	Status     string          `json:"status"`
	Title      string          `json:"title"`
	Body       string          `json:"body"`
	EntityKind string          `json:"entity_kind,omitempty"`
	EntityID   int64           `json:"entity_id,omitempty,string"`
	Metadata   entity.Metadata `json:"metadata,omitempty" swaggertype:"object"`
	IsRead     bool            `json:"is_read"`
	ReadAt     *time.Time      `json:"read_at,omitempty"`
	CreatedAt  time.Time       `json:"created_at"`
}

type NotificationsResponse struct {
	Notifications []NotificationResponse `json:"notifications"`
}

type UnreadCountResponse struct {
	Count int64 `json:"count"`
}

type MarkReadRequest struct {
	IDs []int64 `json:"ids"`
}

type MarkReadResponse struct {
	IDs []int64 `json:"ids"`
}

type ChannelPreferenceModel struct {
	Email bool `json:"email"`
	InApp bool `json:"in_app"`
}

type QuietHoursModel struct {
	Start string `json:"start"`
	End   string `json:"end"`
}

type PreferencesResponse struct {
	Categories   map[string]ChannelPreferenceModel `json:"categories"`
	QuietHours   *QuietHoursModel                  `json:"quiet_hours,omitempty"`
	Timezone     string                            `json:"timezone,omitempty"`
	BackupUserID *int64                            `json:"backup_user_id,omitempty,string"`
	OOOUntil     *time.Time                        `json:"ooo_until,omitempty"`
	UpdatedAt    time.Time                         `json:"updated_at"`
}

type UpdatePreferencesRequest struct {
	Categories map[string]ChannelPreferenceModel `json:"categories"`
	QuietHours *QuietHoursModel                  `json:"quiet_hours"`
	Timezone   string                            `json:"timezone"`
}

type SetOOORequest struct {
	Until        time.Time `json:"until"`
	BackupUserID int64     `json:"backup_user_id,string"`
}

type OrgSettingsResponse struct {
	EnforcedCategories []string         `json:"enforced_categories"`
	QuietHours         *QuietHoursModel `json:"quiet_hours,omitempty"`
	DigestHour         int              `json:"digest_hour"`
	Timezone           string           `json:"timezone"`
	UpdatedAt          time.Time        `json:"updated_at"`
}

type UpdateOrgSettingsRequest struct {
	EnforcedCategories []string         `json:"enforced_categories"`
	QuietHours         *QuietHoursModel `json:"quiet_hours"`
	DigestHour         int              `json:"digest_hour"`
	Timezone           string           `json:"timezone"`
}

func toNotificationResponse(n entity.Notification) NotificationResponse {
	resp := NotificationResponse{
		ID:        n.ID,
		Category:  n.Category.String(),
		Status:    n.Status.String(),
		Title:     n.Title,
		Body:      n.Body,
		Metadata:  n.Metadata,
		IsRead:    n.IsRead,
		ReadAt:    n.ReadAt,
		CreatedAt: n.CreatedAt,
	}
	if n.Entity != nil {
		resp.EntityKind = n.Entity.Kind.String()
		resp.EntityID = n.Entity.ID
	}
	return resp
}

func toNotificationsResponse(items []entity.Notification) NotificationsResponse {
	resp := make([]NotificationResponse, 0, len(items))
	for _, item := range items {
		resp = append(resp, toNotificationResponse(item))
	}
	return NotificationsResponse{Notifications: resp}
}

func toQuietHoursModel(q *entity.QuietHours) *QuietHoursModel {
	if q == nil {
		return nil
	}
	return &QuietHoursModel{Start: q.Start.String(), End: q.End.String()}
}

func toPreferencesResponse(p *entity.Preference) PreferencesResponse {
	cats := make(map[string]ChannelPreferenceModel, len(entity.PreferenceCategories()))
	for _, c := range entity.PreferenceCategories() {
		cp := p.Channels(c)
		cats[c.String()] = ChannelPreferenceModel{Email: cp.Email, InApp: cp.InApp}
	}

	return PreferencesResponse{
		Categories:   cats,
		QuietHours:   toQuietHoursModel(p.QuietHours),
		Timezone:     p.Timezone,
		BackupUserID: p.BackupUserID,
		OOOUntil:     p.OOOUntil,
		UpdatedAt:    p.UpdatedAt,
	}
}

func toOrgSettingsResponse(s *entity.OrgSettings) OrgSettingsResponse {
	enforced := make([]string, 0, len(s.EnforcedCategories))
	for _, c := range s.EnforcedCategories {
		enforced = append(enforced, c.String())
	}

	return OrgSettingsResponse{
		EnforcedCategories: enforced,
		QuietHours:         toQuietHoursModel(s.QuietHours),
		DigestHour:         s.DigestHour,
		Timezone:           s.Timezone,
		UpdatedAt:          s.UpdatedAt,
	}
}
