package inbound

import (
	"net/http"
	"strings"

	"github.com/shandysiswandi/courier/internal/notification/webhook"
	"github.com/shandysiswandi/courier/internal/pkg/config"
	"github.com/shandysiswandi/courier/internal/pkg/hash"
	"github.com/shandysiswandi/courier/internal/pkg/router"
	"github.com/shandysiswandi/courier/internal/pkg/uid"
)

const routeWebhook = "/api/v1/notification/webhooks/:provider"

// PublicEndpoints lists the routes served without a bearer token. Providers
// cannot authenticate with our JWT, so webhook callbacks are verified by signature.
func PublicEndpoints() map[string][]string {
	return map[string][]string{
		http.MethodPost: {routeWebhook},
	}
}

func RegisterHTTPEndpoint(r *router.Router, cfg config.Config, uuid uid.StringID, hooks *webhook.Registry, uc uc) {
	end := &HTTPEndpoint{
		uc:       uc,
		webhooks: hooks,
		signers:  newSigners(cfg.GetMap("modules.notification.webhook_secrets")),
	}

	r.POST("/api/v1/notification/dispatch", end.Dispatch)
	r.POST(routeWebhook, end.ReceiveWebhook)

	r.GET("/api/v1/notification/recent", end.ListRecent)
	r.GET("/api/v1/notification/unread-count", end.GetUnreadCount)

	r.GET("/api/v1/notification/inbox", end.ListInbox)
	r.PATCH("/api/v1/notification/inbox/:id/read", end.MarkInboxRead)
	r.PUT("/api/v1/notification/inbox/read-all", end.MarkAllInboxRead)
	r.DELETE("/api/v1/notification/inbox/:id", end.ArchiveInbox)

	r.GET("/api/v1/notification/preferences", end.GetPreferences)
	r.PUT("/api/v1/notification/preferences", end.UpdatePreferences)
	r.PUT("/api/v1/notification/preferences/ooo", end.SetOOO)
	r.DELETE("/api/v1/notification/preferences/ooo", end.ClearOOO)

	r.GET("/api/v1/notification/org-settings", end.GetOrgSettings)
	r.PUT("/api/v1/notification/org-settings", end.UpdateOrgSettings)

	r.GETRaw("/api/v1/notification/stream", http.HandlerFunc(end.StreamNotifications))

	ws := newWSEndpoint(uc, uuid, cfg.GetArray("modules.notification.ws_allowed_origins"))
	r.GETRaw("/api/v1/notification/ws", http.HandlerFunc(ws.Serve))
}

func newSigners(secrets map[string]string) map[string]*hash.HMACSHA256 {
	signers := make(map[string]*hash.HMACSHA256, len(secrets))
	for provider, secret := range secrets {
		if secret = strings.TrimSpace(secret); secret != "" {
			signers[strings.ToLower(strings.TrimSpace(provider))] = hash.NewHMACSHA256(secret)
		}
	}
	return signers
}
