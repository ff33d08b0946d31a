package usecase

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/shandysiswandi/courier/internal/notification/entity"
	"github.com/shandysiswandi/courier/internal/pkg/goerror"
	"github.com/shandysiswandi/courier/internal/pkg/idempotency"
	"github.com/shandysiswandi/courier/internal/pkg/instrument"
	"github.com/shandysiswandi/courier/internal/pkg/jwt"
	"github.com/shandysiswandi/courier/internal/pkg/validator"
	"github.com/shandysiswandi/courier/internal/pkg/workqueue"
	"github.com/shandysiswandi/courier/internal/shared/event"
	"github.com/stretchr/testify/require"
)

type fixedClock struct{ now time.Time }

func (c *fixedClock) Now() time.Time { return c.now }

type seqID struct {
	mu   sync.Mutex
	next int64
}

func (s *seqID) Generate() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.next++
	return 1000 + s.next
}

type seqUUID struct{ n int }

func (s *seqUUID) Generate() string {
	s.n++
	return fmt.Sprintf("job-%d", s.n)
}

// fakeStore is an in-memory repoDB, repoDirectory and repoEntityLookup.
type fakeStore struct {
	mu            sync.Mutex
	prefs         map[[2]int64]entity.Preference
	settings      map[int64]entity.OrgSettings
	users         map[[2]int64]entity.DirectoryUser
	references    map[entity.EntityRef]string
	notifications map[int64]entity.Notification
	deliveries    map[int64]entity.Delivery
	digest        []entity.DigestItem
	audits        map[int64]entity.AuditEntry
	suppressions  map[string]entity.EmailSuppression

	errGetPreference error
	errCreateEmail   error
	// errUpdateDelivery fails that many UpdateDelivery calls before succeeding; -1 fails them all.
	errUpdateDelivery int
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		prefs:         map[[2]int64]entity.Preference{},
		settings:      map[int64]entity.OrgSettings{},
		users:         map[[2]int64]entity.DirectoryUser{},
		references:    map[entity.EntityRef]string{},
		notifications: map[int64]entity.Notification{},
		deliveries:    map[int64]entity.Delivery{},
		audits:        map[int64]entity.AuditEntry{},
		suppressions:  map[string]entity.EmailSuppression{},
	}
}

func (f *fakeStore) addUser(u entity.DirectoryUser) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.users[[2]int64{u.OrganizationID, u.ID}] = u
}

func (f *fakeStore) GetPreference(_ context.Context, orgID, userID int64) (*entity.Preference, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.errGetPreference != nil {
		return nil, f.errGetPreference
	}
	p, ok := f.prefs[[2]int64{orgID, userID}]
	if !ok {
		return nil, goerror.ErrNotFound
	}
	return &p, nil
}

func (f *fakeStore) UpsertPreference(_ context.Context, p entity.Preference) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.prefs[[2]int64{p.OrganizationID, p.UserID}] = p
	return nil
}

func (f *fakeStore) GetOrgSettings(_ context.Context, orgID int64) (*entity.OrgSettings, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	st, ok := f.settings[orgID]
	if !ok {
		return nil, goerror.ErrNotFound
	}
	return &st, nil
}

func (f *fakeStore) UpsertOrgSettings(_ context.Context, st entity.OrgSettings) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.settings[st.OrganizationID] = st
	return nil
}

// byDispatchKey mirrors the (organization, channel, dispatch key) unique index.
func (f *fakeStore) byDispatchKey(n entity.Notification) (entity.Notification, bool) {
	if n.DispatchKey == "" {
		return entity.Notification{}, false
	}
	for _, stored := range f.notifications {
		if stored.OrganizationID == n.OrganizationID && stored.Channel == n.Channel && stored.DispatchKey == n.DispatchKey {
			return stored, true
		}
	}
	return entity.Notification{}, false
}

func (f *fakeStore) CreateNotification(_ context.Context, n entity.Notification) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, dup := f.byDispatchKey(n); dup {
		return false, nil
	}
	f.notifications[n.ID] = n
	return true, nil
}

func (f *fakeStore) CreateEmailNotification(_ context.Context, n entity.Notification, d entity.Delivery) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.errCreateEmail != nil {
		return 0, f.errCreateEmail
	}
	if stored, dup := f.byDispatchKey(n); dup {
		return stored.ID, nil
	}
	f.notifications[n.ID] = n
	f.deliveries[d.NotificationID] = d
	return n.ID, nil
}

func (f *fakeStore) GetNotification(_ context.Context, orgID, id int64) (*entity.Notification, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	n, ok := f.notifications[id]
	if !ok || n.OrganizationID != orgID {
		return nil, goerror.ErrNotFound
	}
	return &n, nil
}

func (f *fakeStore) GetDelivery(_ context.Context, orgID, notificationID int64) (*entity.Delivery, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	d, ok := f.deliveries[notificationID]
	if !ok || d.OrganizationID != orgID {
		return nil, goerror.ErrNotFound
	}
	return &d, nil
}

func (f *fakeStore) GetDeliveryByProviderMessageID(_ context.Context, orgID int64, providerMessageID string) (*entity.Delivery, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, d := range f.deliveries {
		if d.OrganizationID == orgID && d.ProviderMessageID == providerMessageID {
			return &d, nil
		}
	}
	return nil, goerror.ErrNotFound
}

func (f *fakeStore) UpdateDelivery(_ context.Context, u entity.DeliveryUpdate, ns entity.NotificationStatus) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.errUpdateDelivery != 0 {
		if f.errUpdateDelivery > 0 {
			f.errUpdateDelivery--
		}
		return false, errors.New("conn reset by peer")
	}
	d, ok := f.deliveries[u.NotificationID]
	if !ok || d.OrganizationID != u.OrganizationID || d.Status != u.From {
		return false, nil
	}
	d.Status = u.Status
	if u.ProviderMessageID != "" {
		d.ProviderMessageID = u.ProviderMessageID
	}
	d.ErrorMessage = u.ErrorMessage
	if u.BounceClass != "" {
		d.BounceClass = u.BounceClass
	}
	if u.IncrementAttempts {
		d.Attempts++
		at := u.At
		d.LastAttemptAt = &at
	}
	f.deliveries[u.NotificationID] = d

	if ns != entity.NotificationStatusUnknown {
		n := f.notifications[u.NotificationID]
		n.Status = ns
		f.notifications[u.NotificationID] = n
	}
	return true, nil
}

func (f *fakeStore) RecordPermanentFailure(_ context.Context, pf entity.PermanentFailure) (*entity.AuditEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	d, ok := f.deliveries[pf.NotificationID]
	if !ok || d.OrganizationID != pf.OrganizationID {
		return nil, goerror.ErrNotFound
	}
	if _, done := f.audits[pf.NotificationID]; done {
		return nil, nil
	}

	n := f.notifications[pf.NotificationID]
	entry := entity.AuditEntry{
		ID:              pf.AuditID,
		OrganizationID:  pf.OrganizationID,
		NotificationID:  pf.NotificationID,
		Action:          entity.AuditActionDeliveryPermanentFailure,
		RecipientUserID: d.RecipientUserID,
		RecipientEmail:  d.RecipientEmail,
		Category:        n.Category,
		Reason:          pf.Reason,
		Entity:          n.Entity,
		CreatedAt:       pf.At,
	}
	f.audits[pf.NotificationID] = entry

	n.Status = entity.NotificationStatusFailed
	f.notifications[pf.NotificationID] = n
	if d.Status != entity.DeliveryStatusBounced {
		d.Status = entity.DeliveryStatusFailed
		d.ErrorMessage = pf.Reason
		f.deliveries[pf.NotificationID] = d
	}

	return &entry, nil
}

func (f *fakeStore) IsEmailSuppressed(_ context.Context, orgID int64, email string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.suppressions[fmt.Sprintf("%d:%s", orgID, email)]
	return ok, nil
}

func (f *fakeStore) CreateEmailSuppression(_ context.Context, sup entity.EmailSuppression) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.suppressions[fmt.Sprintf("%d:%s", sup.OrganizationID, sup.Email)] = sup
	return nil
}

func (f *fakeStore) CreateDigestItem(_ context.Context, item entity.DigestItem) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, it := range f.digest {
		if item.DispatchKey != "" && it.OrganizationID == item.OrganizationID && it.DispatchKey == item.DispatchKey {
			return nil
		}
	}
	f.digest = append(f.digest, item)
	return nil
}

func (f *fakeStore) ListOrganizationsWithPendingDigest(context.Context) ([]int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	seen := map[int64]bool{}
	var out []int64
	for _, it := range f.digest {
		if !it.Processed && !seen[it.OrganizationID] {
			seen[it.OrganizationID] = true
			out = append(out, it.OrganizationID)
		}
	}
	return out, nil
}

func (f *fakeStore) ListUsersWithPendingDigest(_ context.Context, orgID int64) ([]int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	seen := map[int64]bool{}
	var out []int64
	for _, it := range f.digest {
		if it.OrganizationID == orgID && !it.Processed && !seen[it.UserID] {
			seen[it.UserID] = true
			out = append(out, it.UserID)
		}
	}
	return out, nil
}

func (f *fakeStore) ListPendingDigestItems(_ context.Context, orgID, userID int64) ([]entity.DigestItem, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []entity.DigestItem
	for _, it := range f.digest {
		if it.OrganizationID == orgID && it.UserID == userID && !it.Processed {
			out = append(out, it)
		}
	}
	return out, nil
}

func (f *fakeStore) MarkUserItemsProcessed(_ context.Context, orgID, userID int64, ids []int64, at time.Time) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	want := map[int64]bool{}
	for _, id := range ids {
		want[id] = true
	}
	var n int64
	for i, it := range f.digest {
		if it.OrganizationID == orgID && it.UserID == userID && want[it.ID] && !it.Processed {
			f.digest[i].Processed = true
			f.digest[i].ProcessedAt = &at
			n++
		}
	}
	return n, nil
}

func (f *fakeStore) inApp(orgID, userID int64) []entity.Notification {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []entity.Notification
	for _, n := range f.notifications {
		if n.OrganizationID == orgID && n.UserID == userID && n.Channel == entity.ChannelInApp && n.Status != entity.NotificationStatusArchived {
			out = append(out, n)
		}
	}
	return out
}

func (f *fakeStore) emails() []entity.Notification {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []entity.Notification
	for _, n := range f.notifications {
		if n.Channel == entity.ChannelEmail {
			out = append(out, n)
		}
	}
	return out
}

func (f *fakeStore) ListInbox(_ context.Context, fl entity.ListInboxFilter) ([]entity.Notification, error) {
	var out []entity.Notification
	for _, n := range f.inApp(fl.OrganizationID, fl.UserID) {
		switch fl.Read {
		case entity.ReadFilterRead:
			if !n.IsRead {
				continue
			}
		case entity.ReadFilterUnread:
			if n.IsRead {
				continue
			}
		}
		out = append(out, n)
	}
	return out, nil
}

func (f *fakeStore) ListRecent(_ context.Context, fl entity.RecentFilter) ([]entity.Notification, error) {
	var out []entity.Notification
	for _, n := range f.inApp(fl.OrganizationID, fl.UserID) {
		if fl.Since != nil && !n.CreatedAt.After(*fl.Since) {
			continue
		}
		out = append(out, n)
		if int32(len(out)) == fl.Limit {
			break
		}
	}
	return out, nil
}

func (f *fakeStore) CountUnread(_ context.Context, orgID, userID int64) (int64, error) {
	var n int64
	for _, it := range f.inApp(orgID, userID) {
		if !it.IsRead {
			n++
		}
	}
	return n, nil
}

func (f *fakeStore) MarkRead(_ context.Context, orgID, userID int64, ids []int64, at time.Time) ([]int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []int64
	for _, id := range ids {
		n, ok := f.notifications[id]
		if !ok || n.OrganizationID != orgID || n.UserID != userID || n.IsRead || n.Channel != entity.ChannelInApp {
			continue
		}
		n.IsRead = true
		n.ReadAt = &at
		f.notifications[id] = n
		out = append(out, id)
	}
	return out, nil
}

func (f *fakeStore) MarkAllRead(_ context.Context, orgID, userID int64, at time.Time) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var cnt int64
	for id, n := range f.notifications {
		if n.OrganizationID == orgID && n.UserID == userID && n.Channel == entity.ChannelInApp && !n.IsRead {
			n.IsRead = true
			n.ReadAt = &at
			f.notifications[id] = n
			cnt++
		}
	}
	return cnt, nil
}

func (f *fakeStore) ArchiveNotification(_ context.Context, orgID, userID, id int64, _ time.Time) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	n, ok := f.notifications[id]
	if !ok || n.OrganizationID != orgID || n.UserID != userID || n.Status == entity.NotificationStatusArchived {
		return false, nil
	}
	n.Status = entity.NotificationStatusArchived
	f.notifications[id] = n
	return true, nil
}

func (f *fakeStore) GetDirectoryUser(_ context.Context, orgID, userID int64) (*entity.DirectoryUser, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[[2]int64{orgID, userID}]
	if !ok {
		return nil, goerror.ErrNotFound
	}
	return &u, nil
}

func (f *fakeStore) GetEntityReference(_ context.Context, _ int64, ref entity.EntityRef) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.references[ref]
	if !ok {
		return "", goerror.ErrNotFound
	}
	return r, nil
}

// missCache never holds anything, so every read goes to the store.
type missCache struct {
	mu      sync.Mutex
	deleted []string
}

func (*missCache) GetPreference(context.Context, int64, int64) (*entity.Preference, error) {
	return nil, goerror.ErrNotFound
}
func (*missCache) SetPreference(context.Context, *entity.Preference) error { return nil }
func (c *missCache) DeletePreference(_ context.Context, orgID, userID int64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.deleted = append(c.deleted, fmt.Sprintf("pref:%d:%d", orgID, userID))
	return nil
}
func (*missCache) GetOrgSettings(context.Context, int64) (*entity.OrgSettings, error) {
	return nil, goerror.ErrNotFound
}
func (*missCache) SetOrgSettings(context.Context, *entity.OrgSettings) error { return nil }
func (c *missCache) DeleteOrgSettings(_ context.Context, orgID int64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.deleted = append(c.deleted, fmt.Sprintf("org:%d", orgID))
	return nil
}

type fakeRenderer struct {
	err   error
	calls []string
	data  []map[string]any
}

func (r *fakeRenderer) Render(_ context.Context, key string, data map[string]any, _ int64) (*entity.RenderedEmail, error) {
	r.calls = append(r.calls, key)
	r.data = append(r.data, data)
	if r.err != nil {
		return nil, r.err
	}
	return &entity.RenderedEmail{Subject: "subject:" + key, HTML: "<p>" + key + "</p>"}, nil
}

type fakeMail struct {
	err  error
	sent []OutboundEmail
}

func (m *fakeMail) Send(_ context.Context, msg OutboundEmail) (string, error) {
	if m.err != nil {
		return "", m.err
	}
	m.sent = append(m.sent, msg)
	return fmt.Sprintf("provider-%d", msg.NotificationID), nil
}

type fakeMQ struct {
	mu       sync.Mutex
	err      error
	realtime []event.NotificationRealtimeMessage
	failed   []event.NotificationDeliveryFailedMessage
}

func (m *fakeMQ) PublishRealtime(_ context.Context, msg event.NotificationRealtimeMessage) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.realtime = append(m.realtime, msg)
	return nil
}

func (m *fakeMQ) PublishDeliveryFailed(_ context.Context, msg event.NotificationDeliveryFailedMessage) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failed = append(m.failed, msg)
	return nil
}

type queuedJob struct {
	job   workqueue.Job
	delay time.Duration
}

type fakeQueue struct {
	mu       sync.Mutex
	enqueued []queuedJob
	retried  []queuedJob
	acked    []string

	// enqueueErrs are returned by the next Enqueue calls, in order.
	enqueueErrs []error
}

func (q *fakeQueue) Enqueue(_ context.Context, job workqueue.Job, delay time.Duration) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.enqueueErrs) > 0 {
		err := q.enqueueErrs[0]
		q.enqueueErrs = q.enqueueErrs[1:]
		return err
	}
	q.enqueued = append(q.enqueued, queuedJob{job: job, delay: delay})
	return nil
}

func (q *fakeQueue) Dequeue(context.Context) (*workqueue.Job, error) { return nil, workqueue.ErrEmpty }

func (q *fakeQueue) Ack(_ context.Context, job workqueue.Job) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.acked = append(q.acked, job.ID)
	return nil
}

func (q *fakeQueue) Retry(_ context.Context, job workqueue.Job, delay time.Duration) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.retried = append(q.retried, queuedJob{job: job, delay: delay})
	return nil
}

func (q *fakeQueue) Reap(context.Context) (int, error) { return 0, nil }

func (q *fakeQueue) Backoff(attempt int) time.Duration { return time.Duration(attempt) * time.Minute }

// memGuard tracks keys in process with the Redis tracker's outcomes: a
// completed key answers ErrAlreadyCompleted and a failed run releases the key.
type memGuard struct {
	mu   sync.Mutex
	keys map[string]idempotency.State
	runs int
}

func (g *memGuard) Exec(ctx context.Context, key string, fn func(context.Context) error, _ ...idempotency.Option) error {
	g.mu.Lock()
	switch g.keys[key] {
	case idempotency.StateCompleted:
		g.mu.Unlock()
		return idempotency.ErrAlreadyCompleted
	case idempotency.StateInProgress:
		g.mu.Unlock()
		return idempotency.ErrAlreadyInProgress
	}
	g.keys[key] = idempotency.StateInProgress
	g.runs++
	g.mu.Unlock()

	err := fn(ctx)

	g.mu.Lock()
	defer g.mu.Unlock()
	if err != nil {
		delete(g.keys, key)
		return err
	}
	g.keys[key] = idempotency.StateCompleted
	return nil
}

type fakeAuthz map[string]bool

func (a fakeAuthz) Allow(sub, obj, act string) (bool, error) {
	if sub == "" {
		return false, errors.New("empty subject")
	}
	return a[sub+","+obj+","+act], nil
}

type harness struct {
	uc       *Usecase
	store    *fakeStore
	cache    *missCache
	renderer *fakeRenderer
	mail     *fakeMail
	mq       *fakeMQ
	queue    *fakeQueue
	guard    *memGuard
	clock    *fixedClock
}

const (
	orgA int64 = 1
	orgB int64 = 2
)

// newHarness builds a usecase whose bus delivers realtime events straight back to it.
func newHarness(t *testing.T, now time.Time) *harness {
	t.Helper()

	v, err := validator.NewV10Validator()
	require.NoError(t, err)

	h := &harness{
		store:    newFakeStore(),
		cache:    &missCache{},
		renderer: &fakeRenderer{},
		mail:     &fakeMail{},
		mq:       &fakeMQ{},
		queue:    &fakeQueue{},
		guard:    &memGuard{keys: map[string]idempotency.State{}},
		clock:    &fixedClock{now: now},
	}
	h.uc = NewNotification(Dependency{
		RepoDB:        h.store,
		RepoDirectory: h.store,
		RepoEntity:    h.store,
		RepoRenderer:  h.renderer,
		RepoMail:      h.mail,
		RepoCache:     h.cache,
		RepoMQ:        h.mq,
		Queue:         h.queue,
		Guard:         h.guard,
		Authorizer:    fakeAuthz{"org_admin,notification.org_settings,write": true},
		UID:           &seqID{},
		UUID:          &seqUUID{},
		Clock:         h.clock,
		Validator:     v,
		Instrument:    instrument.NewNoop(),
	})
	h.uc.opts.recordBackoff = time.Millisecond

	return h
}

func (h *harness) addUser(orgID, userID int64, email string) {
	h.store.addUser(entity.DirectoryUser{
		ID: userID, OrganizationID: orgID, Email: email, FullName: fmt.Sprintf("User %d", userID), IsActive: true,
	})
}

func authCtx(orgID, userID int64, role string) context.Context {
	return jwt.SetAuth(context.Background(), jwt.Claims{UserID: userID, OrganizationID: orgID, Role: role})
}

func ptr[T any](v T) *T { return &v }
