package application

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/menofreact/whatsapp-sending-engine/dispatch/domain"
	"github.com/menofreact/whatsapp-sending-engine/dispatch/repository"
	pkgError "github.com/menofreact/whatsapp-sending-engine/pkg/error"
	sessionDomain "github.com/menofreact/whatsapp-sending-engine/session/domain"
)

type sent struct {
	tenant, mobile, text, file string
}

type fakeChannel struct {
	mu      sync.Mutex
	states  map[string]sessionDomain.State
	sends   []sent
	failFor map[string]error
	block   chan struct{}
	// hold blocks the sends of one tenant only
	hold map[string]chan struct{}
}

func newFakeChannel() *fakeChannel {
	return &fakeChannel{
		states:  map[string]sessionDomain.State{},
		failFor: map[string]error{},
		hold:    map[string]chan struct{}{},
	}
}

func (c *fakeChannel) setState(tenant string, s sessionDomain.State) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.states[tenant] = s
}

func (c *fakeChannel) Status(tenant string) sessionDomain.State {
	c.mu.Lock()
	defer c.mu.Unlock()
	if s, ok := c.states[tenant]; ok {
		return s
	}
	return sessionDomain.StateOffline
}

func (c *fakeChannel) record(s sent) error {
	c.mu.Lock()
	block := c.block
	if h, ok := c.hold[s.tenant]; ok {
		block = h
	}
	c.mu.Unlock()
	if block != nil {
		<-block
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sends = append(c.sends, s)
	return c.failFor[s.mobile]
}

func (c *fakeChannel) SendText(ctx context.Context, tenant, mobile, text string) error {
	return c.record(sent{tenant: tenant, mobile: mobile, text: text})
}

func (c *fakeChannel) SendDocument(ctx context.Context, tenant, mobile string, doc sessionDomain.Document, caption string) error {
	return c.record(sent{tenant: tenant, mobile: mobile, text: caption, file: doc.FileName})
}

func (c *fakeChannel) sent() []sent {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]sent(nil), c.sends...)
}

type fakeExtractor struct {
	result domain.Extraction
	err    error
}

func (e fakeExtractor) Extract(ctx context.Context, path string) (domain.Extraction, error) {
	return e.result, e.err
}

type fixture struct {
	repo       *repository.ItemGormRepository
	channel    *fakeChannel
	dispatcher *Dispatcher
	service    *Service
}

func newFixture(t *testing.T, ext domain.DocumentExtractor) *fixture {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	repo := repository.NewItemGormRepository(db)
	require.NoError(t, repo.InitSchema(context.Background()))

	ch := newFakeChannel()
	if ext == nil {
		ext = fakeExtractor{}
	}
	dispatcher := NewDispatcher(repo, ch, Options{MaxRetries: 3})
	t.Cleanup(dispatcher.Stop)
	return &fixture{
		repo:       repo,
		channel:    ch,
		dispatcher: dispatcher,
		service:    NewService(repo, ext, 500),
	}
}

func (f *fixture) runPass(t *testing.T, tenant, template string) domain.PassResult {
	t.Helper()
	ch, ok := f.dispatcher.RunPass(tenant, template)
	require.True(t, ok, "pass should be accepted")
	select {
	case res := <-ch:
		return res
	case <-time.After(5 * time.Second):
		t.Fatal("pass did not finish")
	}
	return domain.PassResult{}
}

func (f *fixture) item(t *testing.T, tenant string, id uint) *domain.Item {
	t.Helper()
	item, err := f.repo.Get(context.Background(), tenant, id)
	require.NoError(t, err)
	return item
}

func TestPass_SkippedWhenSessionNotWorking(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	item, err := f.service.EnqueueManual(ctx, "a", domain.ManualItemRequest{Name: "Asha", Mobile: "9876543210", Message: "hi"}, nil)
	require.NoError(t, err)

	f.channel.setState("a", sessionDomain.StateScanQRCode)
	res := f.runPass(t, "a", "")
	assert.True(t, res.Skipped)
	assert.Contains(t, res.Reason, "SCAN_QR_CODE")

	got := f.item(t, "a", item.ID)
	assert.Equal(t, domain.StatusPending, got.Status)
	assert.Zero(t, got.Retries)
	assert.Empty(t, f.channel.sent())
}

func TestPass_StagedItemsAreNeverSent(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	f.channel.setState("a", sessionDomain.StateWorking)

	staged, err := f.service.EnqueueManual(ctx, "a", domain.ManualItemRequest{Name: "No number"}, nil)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusStaged, staged.Status)

	f.dispatcher.Tick(ctx)
	res := f.runPass(t, "a", "hello")
	assert.Zero(t, res.Processed)
	assert.Empty(t, f.channel.sent())
	assert.Equal(t, domain.StatusStaged, f.item(t, "a", staged.ID).Status)
}

func TestScenario_ExtractedItemEditedApprovedAndSent(t *testing.T) {
	name := "John"
	f := newFixture(t, fakeExtractor{result: domain.Extraction{Name: &name}})
	ctx := context.Background()
	f.channel.setState("a", sessionDomain.StateWorking)

	doc := filepath.Join(t.TempDir(), "report.pdf")
	require.NoError(t, os.WriteFile(doc, []byte("%PDF"), 0644))

	item, err := f.service.EnqueueDocument(ctx, "a", domain.Upload{Path: doc, FileName: "report.pdf"})
	require.NoError(t, err)
	assert.Equal(t, domain.StatusStaged, item.Status)
	assert.Empty(t, item.Mobile)

	edited, err := f.service.Edit(ctx, "a", domain.EditItemRequest{ID: item.ID, Name: "John", Mobile: "98765 43210"})
	require.NoError(t, err)
	assert.Equal(t, "919876543210", edited.Mobile)
	assert.Equal(t, domain.StatusStaged, f.item(t, "a", item.ID).Status)

	n, err := f.service.ApproveStaged(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	res := f.runPass(t, "a", "Dear {name}, your report is attached")
	assert.Equal(t, 1, res.Completed)

	got := f.item(t, "a", item.ID)
	assert.Equal(t, domain.StatusCompleted, got.Status)
	assert.Equal(t, []sent{{tenant: "a", mobile: "919876543210", text: "Dear John, your report is attached", file: "report.pdf"}}, f.channel.sent())
}

func TestScenario_RetryCeiling(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	f.channel.setState("a", sessionDomain.StateWorking)
	f.channel.failFor["919876543210"] = errors.New("network down")

	item, err := f.service.EnqueueManual(ctx, "a", domain.ManualItemRequest{Name: "Asha", Mobile: "9876543210", Message: "hi"}, nil)
	require.NoError(t, err)

	var statuses []domain.Status
	for i := 0; i < 3; i++ {
		f.runPass(t, "a", "")
		statuses = append(statuses, f.item(t, "a", item.ID).Status)
	}
	assert.Equal(t, []domain.Status{domain.StatusPending, domain.StatusPending, domain.StatusFailed}, statuses)

	got := f.item(t, "a", item.ID)
	assert.Equal(t, 3, got.Retries)
	assert.Equal(t, "network down", got.Error)

	// terminal: no longer eligible
	res := f.runPass(t, "a", "")
	assert.Zero(t, res.Processed)
	assert.Len(t, f.channel.sent(), 3)
}

func TestPass_OneFailureDoesNotAbortBatch(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	f.channel.setState("a", sessionDomain.StateWorking)
	f.channel.failFor["911111111111"] = errors.New("bad number")

	bad, _ := f.service.EnqueueManual(ctx, "a", domain.ManualItemRequest{Name: "Bad", Mobile: "911111111111"}, nil)
	good, _ := f.service.EnqueueManual(ctx, "a", domain.ManualItemRequest{Name: "Good", Mobile: "9876543210"}, nil)

	res := f.runPass(t, "a", "Hello {{name}}")
	assert.Equal(t, 2, res.Processed)
	assert.Equal(t, 1, res.Completed)
	assert.Equal(t, 1, res.Retried)

	assert.Equal(t, domain.StatusPending, f.item(t, "a", bad.ID).Status)
	assert.Equal(t, 1, f.item(t, "a", bad.ID).Retries)
	assert.Equal(t, domain.StatusCompleted, f.item(t, "a", good.ID).Status)

	sends := f.channel.sent()
	require.Len(t, sends, 2)
	assert.Equal(t, "Hello Bad", sends[0].text, "oldest first")
	assert.Equal(t, "Hello Good", sends[1].text)
}

func TestPass_MissingAddressReturnsToStaging(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	f.channel.setState("a", sessionDomain.StateWorking)

	item := &domain.Item{TenantID: "a", Name: "Ghost", Status: domain.StatusFailed, Retries: 1}
	require.NoError(t, f.repo.Create(ctx, item))

	res := f.runPass(t, "a", "hi")
	assert.Equal(t, 1, res.Staged)
	assert.Zero(t, res.Processed)

	got := f.item(t, "a", item.ID)
	assert.Equal(t, domain.StatusStaged, got.Status)
	assert.Equal(t, 1, got.Retries)
	assert.Equal(t, pkgError.RecipientAddressMissingError("").Error(), got.Error)
	assert.Empty(t, f.channel.sent())
}

func TestPass_TemplatePrecedence(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	f.channel.setState("a", sessionDomain.StateWorking)

	_, _ = f.service.EnqueueManual(ctx, "a", domain.ManualItemRequest{Name: "Own", Mobile: "9000000001", Message: "own text {name}"}, nil)
	_, _ = f.service.EnqueueManual(ctx, "a", domain.ManualItemRequest{Name: "Bare", Mobile: "9000000002"}, nil)

	// remembered template only fills items without their own message
	f.dispatcher.mu.Lock()
	f.dispatcher.templates["a"] = "remembered {{name}}"
	f.dispatcher.mu.Unlock()

	f.runPass(t, "a", "")
	sends := f.channel.sent()
	require.Len(t, sends, 2)
	assert.Equal(t, "own text Own", sends[0].text)
	assert.Equal(t, "remembered Bare", sends[1].text)
}

func TestRunPass_SingleFlight(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	f.channel.setState("a", sessionDomain.StateWorking)
	f.channel.block = make(chan struct{})
	_, _ = f.service.EnqueueManual(ctx, "a", domain.ManualItemRequest{Mobile: "9876543210", Message: "x"}, nil)

	first, ok := f.dispatcher.RunPass("a", "")
	require.True(t, ok)
	require.Eventually(t, func() bool {
		st, _ := f.dispatcher.State(ctx, "a")
		return st.StatusCounts[domain.StatusProcessing] == 1
	}, 2*time.Second, 5*time.Millisecond)

	_, ok = f.dispatcher.RunPass("a", "")
	assert.False(t, ok, "second request while running is dropped")

	st, err := f.dispatcher.State(ctx, "a")
	require.NoError(t, err)
	assert.True(t, st.Processing)

	f.channel.mu.Lock()
	close(f.channel.block)
	f.channel.block = nil
	f.channel.mu.Unlock()

	res := <-first
	assert.Equal(t, 1, res.Completed)

	_, ok = f.dispatcher.RunPass("a", "")
	assert.True(t, ok, "flag is released after the pass")
}

func TestStartPauseAndTick(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	f.channel.setState("a", sessionDomain.StateWorking)

	var mu sync.Mutex
	var results []domain.PassResult
	f.dispatcher.OnPassResult(func(r domain.PassResult) {
		mu.Lock()
		results = append(results, r)
		mu.Unlock()
	})

	f.dispatcher.Pause("a")
	_, _ = f.service.EnqueueManual(ctx, "a", domain.ManualItemRequest{Name: "Asha", Mobile: "9876543210"}, nil)
	f.dispatcher.Tick(ctx)
	time.Sleep(50 * time.Millisecond)
	assert.Empty(t, f.channel.sent(), "paused tenants are not ticked")

	ch, ok := f.dispatcher.Start("a", "Hi {name}")
	require.True(t, ok)
	res := <-ch
	assert.Equal(t, 1, res.Completed)
	assert.False(t, f.dispatcher.IsPaused("a"))

	st, err := f.dispatcher.State(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, "Hi {name}", st.Template)
	assert.Equal(t, int64(1), st.StatusCounts[domain.StatusCompleted])

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(results) == 1
	}, time.Second, 5*time.Millisecond)
}

func TestRecoverStale(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	item := &domain.Item{TenantID: "a", Mobile: "919876543210", Status: domain.StatusProcessing}
	require.NoError(t, f.repo.Create(ctx, item))

	n, err := f.dispatcher.RecoverStale(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	assert.Equal(t, domain.StatusPending, f.item(t, "a", item.ID).Status)
}

func TestPass_MissingDocumentFallsBackToText(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	f.channel.setState("a", sessionDomain.StateWorking)

	_, err := f.service.EnqueueManual(ctx, "a", domain.ManualItemRequest{Name: "Asha", Mobile: "9876543210"},
		&domain.Upload{Path: filepath.Join(t.TempDir(), "gone.pdf"), FileName: "gone.pdf"})
	require.NoError(t, err)

	res := f.runPass(t, "a", "text only")
	assert.Equal(t, 1, res.Completed)
	assert.Equal(t, []sent{{tenant: "a", mobile: "919876543210", text: "text only"}}, f.channel.sent())
}

func TestRunPass_TenantsProgressIndependently(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	f.channel.setState("a", sessionDomain.StateWorking)
	f.channel.setState("b", sessionDomain.StateWorking)

	release := make(chan struct{})
	f.channel.mu.Lock()
	f.channel.hold["a"] = release
	f.channel.mu.Unlock()

	_, err := f.service.EnqueueManual(ctx, "a", domain.ManualItemRequest{Mobile: "9000000001", Message: "slow"}, nil)
	require.NoError(t, err)
	fast, err := f.service.EnqueueManual(ctx, "b", domain.ManualItemRequest{Mobile: "9000000002", Message: "fast"}, nil)
	require.NoError(t, err)

	slow, ok := f.dispatcher.RunPass("a", "")
	require.True(t, ok)
	require.Eventually(t, func() bool {
		st, _ := f.dispatcher.State(ctx, "a")
		return st.StatusCounts[domain.StatusProcessing] == 1
	}, 2*time.Second, 5*time.Millisecond)

	// b finishes while a is still stuck in its send
	res := f.runPass(t, "b", "")
	assert.Equal(t, 1, res.Completed)
	assert.Equal(t, domain.StatusCompleted, f.item(t, "b", fast.ID).Status)

	close(release)
	assert.Equal(t, 1, (<-slow).Completed)
}

func TestRunPass_ReleasedBeforeResultIsDelivered(t *testing.T) {
	f := newFixture(t, nil)
	f.channel.setState("a", sessionDomain.StateWorking)

	unblock := make(chan struct{})
	f.dispatcher.OnPassResult(func(domain.PassResult) { <-unblock })
	defer close(unblock)

	first, ok := f.dispatcher.RunPass("a", "")
	require.True(t, ok)
	<-first

	// the listener is still blocked, the tenant must be free already
	next, ok := f.dispatcher.RunPass("a", "")
	require.True(t, ok)
	assert.NotNil(t, next)
}

type panickingChannel struct {
	*fakeChannel
}

func (panickingChannel) SendText(ctx context.Context, tenant, mobile, text string) error {
	panic("provider exploded")
}

func TestRunPass_PanicStillYieldsOneResult(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	f.channel.setState("a", sessionDomain.StateWorking)
	_, _ = f.service.EnqueueManual(ctx, "a", domain.ManualItemRequest{Mobile: "9876543210", Message: "x"}, nil)

	d := NewDispatcher(f.repo, panickingChannel{f.channel}, Options{MaxRetries: 3})
	t.Cleanup(d.Stop)

	out, ok := d.RunPass("a", "")
	require.True(t, ok)
	select {
	case res, open := <-out:
		require.True(t, open)
		assert.True(t, res.Skipped)
		assert.Contains(t, res.Reason, "provider exploded")
	case <-time.After(2 * time.Second):
		t.Fatal("no result after a panicking pass")
	}
	_, open := <-out
	assert.False(t, open, "exactly one result")

	_, ok = d.RunPass("a", "")
	assert.True(t, ok, "tenant is released after a panic")
}

func TestDispatcher_StopRefusesNewPasses(t *testing.T) {
	f := newFixture(t, nil)
	f.dispatcher.Stop()

	_, ok := f.dispatcher.RunPass("a", "")
	assert.False(t, ok)
}
