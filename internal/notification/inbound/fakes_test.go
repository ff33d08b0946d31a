package inbound

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/shandysiswandi/courier/internal/notification/entity"
	"github.com/shandysiswandi/courier/internal/notification/usecase"
	"github.com/shandysiswandi/courier/internal/notification/webhook"
	"github.com/shandysiswandi/courier/internal/pkg/config"
	"github.com/shandysiswandi/courier/internal/pkg/goerror"
	"github.com/shandysiswandi/courier/internal/pkg/instrument"
	"github.com/shandysiswandi/courier/internal/pkg/jwt"
	"github.com/shandysiswandi/courier/internal/pkg/router"
	"github.com/shandysiswandi/courier/internal/pkg/workqueue"
	"github.com/shandysiswandi/courier/internal/shared/event"
	"github.com/stretchr/testify/require"
)

type fixedClock struct{ now time.Time }

func (c fixedClock) Now() time.Time { return c.now }

type seqUUID struct {
	mu sync.Mutex
	n  int
}

func (s *seqUUID) Generate() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.n++
	return fmt.Sprintf("id-%d", s.n)
}

type fakeUC struct {
	mu sync.Mutex

	dispatched  []usecase.DispatchInput
	dispatchErr error

	webhookEvents []entity.WebhookEvent
	webhookErrFor string

	realtime    []event.NotificationRealtimeMessage
	stream      chan entity.RealtimeEvent
	unread      int64
	recent      []entity.Notification
	recentIn    []usecase.ListRecentInput
	markReadIn  []usecase.MarkReadInput
	prefIn      []usecase.UpdatePreferencesInput
	orgIn       []usecase.UpdateOrgSettingsInput
	digestTicks int
	sendJobs    []workqueue.Job
}

func newFakeUC() *fakeUC {
	return &fakeUC{stream: make(chan entity.RealtimeEvent, 8)}
}

func requireClaims(ctx context.Context) (*jwt.Claims, error) {
	clm := jwt.GetAuth(ctx)
	if clm == nil {
		return nil, goerror.NewBusiness("Authentication required", goerror.CodeUnauthorized)
	}
	return clm, nil
}

func (f *fakeUC) Dispatch(_ context.Context, in usecase.DispatchInput) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.dispatched = append(f.dispatched, in)
	return f.dispatchErr
}

func (f *fakeUC) Subscribe(ctx context.Context) (<-chan entity.RealtimeEvent, error) {
	if _, err := requireClaims(ctx); err != nil {
		return nil, err
	}
	return f.stream, nil
}

func (f *fakeUC) DeliverRealtime(_ context.Context, msg event.NotificationRealtimeMessage) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.realtime = append(f.realtime, msg)
	return nil
}

func (f *fakeUC) ListRecent(_ context.Context, in usecase.ListRecentInput) ([]entity.Notification, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.recentIn = append(f.recentIn, in)
	return f.recent, nil
}

func (f *fakeUC) GetUnreadCount(ctx context.Context) (int64, error) {
	if _, err := requireClaims(ctx); err != nil {
		return 0, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.unread, nil
}

func (f *fakeUC) MarkRead(_ context.Context, in usecase.MarkReadInput) ([]int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.markReadIn = append(f.markReadIn, in)
	if len(in.IDs) == 0 {
		return nil, goerror.NewInvalidInput(nil, "ids", "ids is required")
	}
	return in.IDs, nil
}

func (f *fakeUC) ProcessSendJob(_ context.Context, job workqueue.Job) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sendJobs = append(f.sendJobs, job)
	return nil
}

func (f *fakeUC) RunDigestTick(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.digestTicks++
	return nil
}

func (f *fakeUC) ProcessWebhookEvent(_ context.Context, evt entity.WebhookEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.webhookEvents = append(f.webhookEvents, evt)
	if f.webhookErrFor != "" && evt.ProviderMessageID == f.webhookErrFor {
		return goerror.NewServer(context.DeadlineExceeded)
	}
	return nil
}

func (f *fakeUC) ListInbox(context.Context, usecase.ListInboxInput) ([]entity.Notification, error) {
	return f.recent, nil
}

func (f *fakeUC) MarkAllRead(context.Context) error { return nil }

func (f *fakeUC) Archive(_ context.Context, in usecase.ArchiveInput) error {
	if in.ID == 404 {
		return goerror.NewBusiness("Notification not found", goerror.CodeNotFound)
	}
	return nil
}

func (f *fakeUC) GetPreferences(ctx context.Context) (*entity.Preference, error) {
	clm, err := requireClaims(ctx)
	if err != nil {
		return nil, err
	}
	return entity.DefaultPreference(clm.OrganizationID, clm.UserID), nil
}

func (f *fakeUC) UpdatePreferences(ctx context.Context, in usecase.UpdatePreferencesInput) (*entity.Preference, error) {
	f.mu.Lock()
	f.prefIn = append(f.prefIn, in)
	f.mu.Unlock()
	return f.GetPreferences(ctx)
}

func (f *fakeUC) SetOOO(ctx context.Context, _ usecase.SetOOOInput) (*entity.Preference, error) {
	return f.GetPreferences(ctx)
}

func (f *fakeUC) ClearOOO(context.Context) error { return nil }

func (f *fakeUC) GetOrgSettings(ctx context.Context) (*entity.OrgSettings, error) {
	clm, err := requireClaims(ctx)
	if err != nil {
		return nil, err
	}
	return entity.DefaultOrgSettings(clm.OrganizationID), nil
}

func (f *fakeUC) UpdateOrgSettings(ctx context.Context, in usecase.UpdateOrgSettingsInput) (*entity.OrgSettings, error) {
	f.mu.Lock()
	f.orgIn = append(f.orgIn, in)
	f.mu.Unlock()
	return f.GetOrgSettings(ctx)
}

const testSecret = "0123456789abcdef0123456789abcdef0123456789abcdef0123456789abcdef"

type harness struct {
	uc      *fakeUC
	handler http.Handler
	jwt     *jwt.Symmetric
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	cfg, err := config.NewViperFromBytes("yaml", []byte(`
modules:
  notification:
    webhook_secrets: "sendgrid:topsecret"
`))
	require.NoError(t, err)

	uuid := &seqUUID{}
	signer, err := jwt.NewHS512(jwt.Config{
		Secret:    []byte(testSecret),
		Issuer:    "courier-test",
		Audiences: []string{"courier-test"},
		TTL:       time.Hour,
		Clock:     fixedClock{now: time.Now()},
		UUID:      uuid,
	})
	require.NoError(t, err)

	r := router.NewRouter(router.Config{
		Config:          cfg,
		UUID:            uuid,
		JWT:             signer,
		Instrument:      instrument.NewNoop(),
		PublicEndpoints: PublicEndpoints(),
	})

	uc := newFakeUC()
	RegisterHTTPEndpoint(r, cfg, uuid, webhook.NewRegistry(webhook.NewSendGrid(), webhook.NewSES()), uc)

	return &harness{uc: uc, handler: r, jwt: signer}
}

func (h *harness) token(t *testing.T, orgID, userID int64) string {
	t.Helper()
	tok, err := h.jwt.Generate(jwt.Subject{UserID: userID, OrganizationID: orgID, Email: "u@example.com", Role: "member"})
	require.NoError(t, err)
	return tok
}
