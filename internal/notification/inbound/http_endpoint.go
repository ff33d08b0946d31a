package inbound

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/shandysiswandi/courier/internal/notification/entity"
	"github.com/shandysiswandi/courier/internal/notification/usecase"
	"github.com/shandysiswandi/courier/internal/notification/webhook"
	"github.com/shandysiswandi/courier/internal/pkg/goerror"
	"github.com/shandysiswandi/courier/internal/pkg/hash"
	"github.com/shandysiswandi/courier/internal/pkg/jwt"
	"github.com/shandysiswandi/courier/internal/pkg/router"
)

const (
	headerWebhookSignature = "X-Webhook-Signature"
	maxWebhookBody         = 5 << 20
)

type HTTPEndpoint struct {
	uc       uc
	webhooks *webhook.Registry
	signers  map[string]*hash.HMACSHA256
}

type acceptedResponse struct{}

func (acceptedResponse) StatusCode() int { return http.StatusAccepted }

func (acceptedResponse) Message() string { return "notification accepted" }

// Dispatch accepts a notification event from an internal service.
// @Summary Dispatch notification
// @Description Routes one event to its recipient within the caller's organization.
// @Tags Notification
// @Security BearerAuth
// @Accept json
// @Param request body DispatchRequest true "Dispatch payload"
// @Success 202 {object} router.successResponse "Accepted"
// @Failure 400 {object} router.errorResponse "Invalid request body"
// @Failure 401 {object} router.errorResponse "Unauthorized"
// @Failure 422 {object} router.errorResponse "Validation error"
// @Failure 500 {object} router.errorResponse "Internal server error"
// @Router /api/v1/notification/dispatch [post]
func (h *HTTPEndpoint) Dispatch(r *router.Request) (any, error) {
	clm := jwt.GetAuth(r.Context())
	if clm == nil || clm.OrganizationID == 0 {
		return nil, goerror.NewBusiness("Authentication required", goerror.CodeUnauthorized)
	}

	var req DispatchRequest
	if err := r.DecodeBody(&req); err != nil {
		return nil, err
	}

	err := h.uc.Dispatch(r.Context(), usecase.DispatchInput{
		EventID:         req.EventID,
		OrganizationID:  clm.OrganizationID,
		RecipientUserID: req.RecipientUserID,
		Category:        req.Category,
		Urgent:          req.Urgent,
		TemplateKey:     req.TemplateKey,
		TemplateData:    req.TemplateData,
		Title:           req.Title,
		Body:            req.Body,
		EntityKind:      req.EntityKind,
		EntityID:        req.EntityID,
		Metadata:        req.Metadata,
	})
	if err != nil {
		return nil, err
	}

	return acceptedResponse{}, nil
}

// ReceiveWebhook ingests a batch of email provider callbacks.
// @Summary Receive provider webhook
// @Description Normalizes and applies delivery events. One bad event never fails the batch.
// @Tags Webhook
// @Accept json
// @Param provider path string true "Provider (sendgrid|ses)"
// @Param X-Webhook-Signature header string false "HMAC-SHA256 of the body when a secret is configured"
// @Success 200 {object} router.successResponse{data=WebhookResponse} "Batch processed"
// @Failure 400 {object} router.errorResponse "Invalid request body"
// @Failure 401 {object} router.errorResponse "Invalid signature"
// @Failure 404 {object} router.errorResponse "Unknown provider"
// @Router /api/v1/notification/webhooks/{provider} [post]
func (h *HTTPEndpoint) ReceiveWebhook(r *router.Request) (any, error) {
	provider := strings.ToLower(r.GetParam("provider"))
	normalizer, err := h.webhooks.Get(provider)
	if err != nil {
		return nil, goerror.NewBusiness("Unknown webhook provider", goerror.CodeNotFound)
	}

	body, err := r.RawBody(maxWebhookBody)
	if err != nil {
		return nil, err
	}

	if signer, ok := h.signers[provider]; ok && !signer.Verify(body, r.Header.Get(headerWebhookSignature)) {
		slog.WarnContext(r.Context(), "webhook signature mismatch", "provider", provider)
		return nil, goerror.NewBusiness("Invalid webhook signature", goerror.CodeUnauthorized)
	}

	events, err := normalizer.Normalize(body)
	if err != nil {
		slog.WarnContext(r.Context(), "failed to normalize webhook body", "provider", provider, "error", err)
		return nil, goerror.NewInvalidFormat()
	}

	resp := WebhookResponse{Received: len(events)}
	for _, evt := range events {
		if err := h.uc.ProcessWebhookEvent(r.Context(), evt); err != nil {
			slog.ErrorContext(r.Context(), "failed to process webhook event",
				"provider", provider, "provider_message_id", evt.ProviderMessageID, "event_type", evt.EventType, "error", err)
			continue
		}
		resp.Processed++
	}

	return resp, nil
}

// ListRecent is the poll fallback for clients without a live connection.
// @Summary List recent notifications
// @Description Returns in-app notifications created after since, newest first. Limit is capped at 50.
// @Tags Inbox
// @Security BearerAuth
// @Produce json
// @Param since query string false "RFC 3339 timestamp"
// @Param limit query int false "Maximum items"
// @Success 200 {object} router.successResponse{data=NotificationsResponse} "Notification list"
// @Failure 400 {object} router.errorResponse "Invalid query parameters"
// @Failure 401 {object} router.errorResponse "Unauthorized"
// @Failure 500 {object} router.errorResponse "Internal server error"
// @Router /api/v1/notification/recent [get]
func (h *HTTPEndpoint) ListRecent(r *router.Request) (any, error) {
	since, err := r.GetQueryTime("since")
	if err != nil {
		return nil, err
	}
	limit, err := r.GetQueryInt32("limit")
	if err != nil {
		return nil, err
	}

	items, err := h.uc.ListRecent(r.Context(), usecase.ListRecentInput{Since: since, Limit: limit})
	if err != nil {
		return nil, err
	}

	return toNotificationsResponse(items), nil
}

// GetUnreadCount returns the number of unread in-app notifications.
// @Summary Unread count
// @Tags Inbox
// @Security BearerAuth
// @Produce json
// @Success 200 {object} router.successResponse{data=UnreadCountResponse} "Unread count"
// @Failure 401 {object} router.errorResponse "Unauthorized"
// @Failure 500 {object} router.errorResponse "Internal server error"
// @Router /api/v1/notification/unread-count [get]
func (h *HTTPEndpoint) GetUnreadCount(r *router.Request) (any, error) {
	count, err := h.uc.GetUnreadCount(r.Context())
	if err != nil {
		return nil, err
	}

	return UnreadCountResponse{Count: count}, nil
}

// ListInbox returns user notifications.
// @Summary List inbox
// @Description Returns inbox notifications for the authenticated user.
// @Tags Inbox
// @Security BearerAuth
// @Produce json
// @Param status query string false "Filter by status (all|read|unread)"
// @Param limit query int false "Pagination limit"
// @Param offset query int false "Pagination offset"
// @Success 200 {object} router.successResponse{data=NotificationsResponse} "Notification list"
// @Failure 400 {object} router.errorResponse "Invalid query parameters"
// @Failure 401 {object} router.errorResponse "Unauthorized"
// @Failure 422 {object} router.errorResponse "Validation error"
// @Failure 500 {object} router.errorResponse "Internal server error"
// @Router /api/v1/notification/inbox [get]
func (h *HTTPEndpoint) ListInbox(r *router.Request) (any, error) {
	limit, err := r.GetQueryInt32("limit")
	if err != nil {
		return nil, err
	}
	offset, err := r.GetQueryInt32("offset")
	if err != nil {
		return nil, err
	}

	items, err := h.uc.ListInbox(r.Context(), usecase.ListInboxInput{
		Read:   r.GetQuery("status"),
		Limit:  limit,
		Offset: offset,
	})
	if err != nil {
		return nil, err
	}

	return toNotificationsResponse(items), nil
}

// MarkInboxRead marks a notification as read.
// @Summary Mark inbox read
// @Tags Inbox
// @Security BearerAuth
// @Param id path int true "Notification ID"
// @Success 200 {object} router.successResponse{data=MarkReadResponse} "Changed ids"
// @Failure 400 {object} router.errorResponse "Invalid notification id"
// @Failure 401 {object} router.errorResponse "Unauthorized"
// @Failure 500 {object} router.errorResponse "Internal server error"
// @Router /api/v1/notification/inbox/{id}/read [patch]
func (h *HTTPEndpoint) MarkInboxRead(r *router.Request) (any, error) {
	id, err := r.GetParamInt64("id")
	if err != nil {
		return nil, err
	}

	ids, err := h.uc.MarkRead(r.Context(), usecase.MarkReadInput{IDs: []int64{id}})
	if err != nil {
		return nil, err
	}

	return MarkReadResponse{IDs: ids}, nil
}

// MarkAllInboxRead marks all notifications as read.
// @Summary Mark all inbox read
// @Tags Inbox
// @Security BearerAuth
// @Success 204 "No Content"
// @Failure 401 {object} router.errorResponse "Unauthorized"
// @Failure 500 {object} router.errorResponse "Internal server error"
// @Router /api/v1/notification/inbox/read-all [put]
func (h *HTTPEndpoint) MarkAllInboxRead(r *router.Request) (any, error) {
	return nil, h.uc.MarkAllRead(r.Context())
}

// ArchiveInbox hides a notification from the inbox.
// @Summary Archive inbox
// @Tags Inbox
// @Security BearerAuth
// @Param id path int true "Notification ID"
// @Success 204 "No Content"
// @Failure 400 {object} router.errorResponse "Invalid notification id"
// @Failure 401 {object} router.errorResponse "Unauthorized"
// @Failure 404 {object} router.errorResponse "Notification not found"
// @Failure 500 {object} router.errorResponse "Internal server error"
// @Router /api/v1/notification/inbox/{id} [delete]
func (h *HTTPEndpoint) ArchiveInbox(r *router.Request) (any, error) {
	id, err := r.GetParamInt64("id")
	if err != nil {
		return nil, err
	}

	return nil, h.uc.Archive(r.Context(), usecase.ArchiveInput{ID: id})
}

// GetPreferences returns the caller's preferences with defaults filled in.
// @Summary Get preferences
// @Tags Preference
// @Security BearerAuth
// @Produce json
// @Success 200 {object} router.successResponse{data=PreferencesResponse} "Preferences"
// @Failure 401 {object} router.errorResponse "Unauthorized"
// @Failure 500 {object} router.errorResponse "Internal server error"
// @Router /api/v1/notification/preferences [get]
func (h *HTTPEndpoint) GetPreferences(r *router.Request) (any, error) {
	pref, err := h.uc.GetPreferences(r.Context())
	if err != nil {
		return nil, err
	}

	return toPreferencesResponse(pref), nil
}

// UpdatePreferences merges category switches and replaces quiet hours and timezone.
// @Summary Update preferences
// @Tags Preference
// @Security BearerAuth
// @Accept json
// @Produce json
// @Param request body UpdatePreferencesRequest true "Preferences payload"
// @Success 200 {object} router.successResponse{data=PreferencesResponse} "Preferences"
// @Failure 400 {object} router.errorResponse "Invalid request body"
// @Failure 401 {object} router.errorResponse "Unauthorized"
// @Failure 422 {object} router.errorResponse "Validation error"
// @Failure 500 {object} router.errorResponse "Internal server error"
// @Router /api/v1/notification/preferences [put]
func (h *HTTPEndpoint) UpdatePreferences(r *router.Request) (any, error) {
	var req UpdatePreferencesRequest
	if err := r.DecodeBody(&req); err != nil {
		return nil, err
	}

	in := usecase.UpdatePreferencesInput{Timezone: req.Timezone}
	if len(req.Categories) > 0 {
		in.Categories = make(map[string]entity.ChannelPreference, len(req.Categories))
		for k, v := range req.Categories {
			in.Categories[k] = entity.ChannelPreference{Email: v.Email, InApp: v.InApp}
		}
	}
	if req.QuietHours != nil {
		in.QuietHoursStart, in.QuietHoursEnd = req.QuietHours.Start, req.QuietHours.End
	}

	pref, err := h.uc.UpdatePreferences(r.Context(), in)
	if err != nil {
		return nil, err
	}

	return toPreferencesResponse(pref), nil
}

// SetOOO opens an out-of-office window with an optional backup.
// @Summary Set out of office
// @Tags Preference
// @Security BearerAuth
// @Accept json
// @Produce json
// @Param request body SetOOORequest true "Out of office payload"
// @Success 200 {object} router.successResponse{data=PreferencesResponse} "Preferences"
// @Failure 400 {object} router.errorResponse "Invalid request body"
// @Failure 401 {object} router.errorResponse "Unauthorized"
// @Failure 422 {object} router.errorResponse "Validation error"
// @Failure 500 {object} router.errorResponse "Internal server error"
// @Router /api/v1/notification/preferences/ooo [put]
func (h *HTTPEndpoint) SetOOO(r *router.Request) (any, error) {
	var req SetOOORequest
	if err := r.DecodeBody(&req); err != nil {
		return nil, err
	}

	pref, err := h.uc.SetOOO(r.Context(), usecase.SetOOOInput{Until: req.Until, BackupUserID: req.BackupUserID})
	if err != nil {
		return nil, err
	}

	return toPreferencesResponse(pref), nil
}

// ClearOOO closes the out-of-office window.
// @Summary Clear out of office
// @Tags Preference
// @Security BearerAuth
// @Success 204 "No Content"
// @Failure 401 {object} router.errorResponse "Unauthorized"
// @Failure 500 {object} router.errorResponse "Internal server error"
// @Router /api/v1/notification/preferences/ooo [delete]
func (h *HTTPEndpoint) ClearOOO(r *router.Request) (any, error) {
	return nil, h.uc.ClearOOO(r.Context())
}

// GetOrgSettings returns the caller's organization notification policy.
// @Summary Get organization settings
// @Tags Preference
// @Security BearerAuth
// @Produce json
// @Success 200 {object} router.successResponse{data=OrgSettingsResponse} "Organization settings"
// @Failure 401 {object} router.errorResponse "Unauthorized"
// @Failure 500 {object} router.errorResponse "Internal server error"
// @Router /api/v1/notification/org-settings [get]
func (h *HTTPEndpoint) GetOrgSettings(r *router.Request) (any, error) {
	settings, err := h.uc.GetOrgSettings(r.Context())
	if err != nil {
		return nil, err
	}

	return toOrgSettingsResponse(settings), nil
}

// UpdateOrgSettings replaces the organization notification policy.
// @Summary Update organization settings
// @Tags Preference
// @Security BearerAuth
// @Accept json
// @Produce json
// @Param request body UpdateOrgSettingsRequest true "Organization settings payload"
// @Success 200 {object} router.successResponse{data=OrgSettingsResponse} "Organization settings"
// @Failure 400 {object} router.errorResponse "Invalid request body"
// @Failure 401 {object} router.errorResponse "Unauthorized"
// @Failure 403 {object} router.errorResponse "Forbidden"
// @Failure 422 {object} router.errorResponse "Validation error"
// @Failure 500 {object} router.errorResponse "Internal server error"
// @Router /api/v1/notification/org-settings [put]
func (h *HTTPEndpoint) UpdateOrgSettings(r *router.Request) (any, error) {
	var req UpdateOrgSettingsRequest
	if err := r.DecodeBody(&req); err != nil {
		return nil, err
	}

	in := usecase.UpdateOrgSettingsInput{
		EnforcedCategories: req.EnforcedCategories,
		DigestHour:         req.DigestHour,
		Timezone:           req.Timezone,
	}
	if req.QuietHours != nil {
		in.QuietHoursStart, in.QuietHoursEnd = req.QuietHours.Start, req.QuietHours.End
	}

	settings, err := h.uc.UpdateOrgSettings(r.Context(), in)
	if err != nil {
		return nil, err
	}

	return toOrgSettingsResponse(settings), nil
}
