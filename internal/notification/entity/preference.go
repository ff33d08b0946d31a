package entity

import (
	"time"
)

// ChannelPreference is the per-category channel switch.
type ChannelPreference struct {
	Email bool `json:"email"`
	InApp bool `json:"inApp"`
}

// DefaultChannels is used for categories with no stored entry:
// urgent categories get both channels, informational ones in-app only.
func DefaultChannels(c Category) ChannelPreference {
	return ChannelPreference{Email: c.IsUrgent(), InApp: true}
}

// Preference is a user's notification settings within one organization.
type Preference struct {
	OrganizationID int64                          `json:"organizationId,string"`
	UserID         int64                          `json:"userId,string"`
	Categories     map[Category]ChannelPreference `json:"categories"`
	QuietHours     *QuietHours                    `json:"quietHours,omitempty"`
	Timezone       string                         `json:"timezone,omitempty"`
	BackupUserID   *int64                         `json:"backupUserId,omitempty,string"`
	OOOUntil       *time.Time                     `json:"oooUntil,omitempty"`
	UpdatedAt      time.Time                      `json:"updatedAt"`
}

// DefaultPreference is returned when the user has no stored record.
func DefaultPreference(orgID, userID int64) *Preference {
	cats := make(map[Category]ChannelPreference, len(preferenceCategories))
	for _, c := range preferenceCategories {
		cats[c] = DefaultChannels(c)
	}
	return &Preference{OrganizationID: orgID, UserID: userID, Categories: cats}
}

// Channels returns the stored switch for c or its default.
func (p *Preference) Channels(c Category) ChannelPreference {
	if cp, ok := p.Categories[c]; ok {
		return cp
	}
	return DefaultChannels(c)
}

// IsOOO reports whether the out-of-office window is still open at now.
func (p *Preference) IsOOO(now time.Time) bool {
	return p.OOOUntil != nil && p.OOOUntil.After(now)
}

// OrgSettings is the organization-wide policy layer.
type OrgSettings struct {
	OrganizationID     int64       `json:"organizationId,string"`
	EnforcedCategories []Category  `json:"enforcedCategories"`
	QuietHours         *QuietHours `json:"quietHours,omitempty"`
	DigestHour         int         `json:"digestHour"`
	Timezone           string      `json:"timezone"`
	UpdatedAt          time.Time   `json:"updatedAt"`
}

const (
	DefaultDigestHour = 8
	DefaultTimezone   = "UTC"
)

// DefaultOrgSettings is returned when the organization has no stored settings.
func DefaultOrgSettings(orgID int64) *OrgSettings {
	return &OrgSettings{OrganizationID: orgID, DigestHour: DefaultDigestHour, Timezone: DefaultTimezone}
}

func (s *OrgSettings) IsEnforced(c Category) bool {
	for _, ec := range s.EnforcedCategories {
		if ec == c {
			return true
		}
	}
	return false
}

// Location resolves the organization timezone; empty means UTC.
func (s *OrgSettings) Location() (*time.Location, error) {
	if s.Timezone == "" {
		return time.UTC, nil
	}
	return time.LoadLocation(s.Timezone)
}

// EffectiveDecision is the resolved delivery plan for one (user, org, category).
type EffectiveDecision struct {
	Email        bool
	InApp        bool
	IsOOO        bool
	BackupUserID *int64
	IsQuietHours bool
	IsEnforced   bool
	// QuietHoursSuppressed is set when quiet hours alone turned email off.
	QuietHoursSuppressed bool
}

// EmailRecipient is the user who should receive email: the backup when redirected.
func (d EffectiveDecision) EmailRecipient(userID int64) int64 {
	if d.BackupUserID != nil {
		return *d.BackupUserID
	}
	return userID
}

// DirectoryUser is the read-only view of a user from the organization directory.
type DirectoryUser struct {
	ID             int64
	OrganizationID int64
	Email          string
	FullName       string
	IsActive       bool
	Timezone       string
}
