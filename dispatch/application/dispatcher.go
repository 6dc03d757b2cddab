package application

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/menofreact/whatsapp-sending-engine/dispatch/domain"
	pkgError "github.com/menofreact/whatsapp-sending-engine/pkg/error"
	"github.com/menofreact/whatsapp-sending-engine/pkg/phone"
	sessionDomain "github.com/menofreact/whatsapp-sending-engine/session/domain"
)

const sendTimeout = 2 * time.Minute

// Channel is what the dispatcher needs from the session layer.
type Channel interface {
	Status(tenantID string) sessionDomain.State
	SendText(ctx context.Context, tenantID, mobile, text string) error
	SendDocument(ctx context.Context, tenantID, mobile string, doc sessionDomain.Document, caption string) error
}

type Options struct {
	MessageDelay time.Duration
	MaxRetries   int
}

// Dispatcher runs at most one pass per tenant at a time. Each pass owns its
// goroutine so a long pass never holds back another tenant.
type Dispatcher struct {
	repo    domain.ItemRepository
	channel Channel
	opts    Options

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu        sync.Mutex
	stopped   bool
	inFlight  map[string]bool
	paused    map[string]bool
	templates map[string]string
	limiters  map[string]*rate.Limiter
	listeners []func(domain.PassResult)
}

func NewDispatcher(repo domain.ItemRepository, channel Channel, opts Options) *Dispatcher {
	if opts.MaxRetries <= 0 {
		opts.MaxRetries = 3
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Dispatcher{
		repo:      repo,
		channel:   channel,
		opts:      opts,
		ctx:       ctx,
		cancel:    cancel,
		inFlight:  make(map[string]bool),
		paused:    make(map[string]bool),
		templates: make(map[string]string),
		limiters:  make(map[string]*rate.Limiter),
	}
}

// OnPassResult registers a listener called after every finished pass.
func (d *Dispatcher) OnPassResult(fn func(domain.PassResult)) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.listeners = append(d.listeners, fn)
}

func (d *Dispatcher) MaxRetries() int {
	return d.opts.MaxRetries
}

// RunPass requests a pass for the tenant. It returns false when a pass is
// already running or the dispatcher is stopped; the request is dropped, not queued.
// The channel yields exactly one result.
func (d *Dispatcher) RunPass(tenantID, template string) (<-chan domain.PassResult, bool) {
	d.mu.Lock()
	if d.stopped || d.inFlight[tenantID] {
		d.mu.Unlock()
		passesTotal.WithLabelValues("busy").Inc()
		return nil, false
	}
	d.inFlight[tenantID] = true
	d.wg.Add(1)
	d.mu.Unlock()

	out := make(chan domain.PassResult, 1)
	go func() {
		defer d.wg.Done()
		res := d.guardedPass(tenantID, template)
		// released before delivery so a caller reading out can request the next pass
		d.release(tenantID)
		out <- res
		close(out)
		d.publish(res)
	}()
	return out, true
}

// guardedPass turns a panic inside a pass into a skipped result.
func (d *Dispatcher) guardedPass(tenantID, template string) (res domain.PassResult) {
	defer func() {
		if r := recover(); r != nil {
			logrus.Errorf("[DISPATCH] %s: pass aborted by panic: %v", tenantID, r)
			passesTotal.WithLabelValues("panic").Inc()
			res = domain.PassResult{TenantID: tenantID, Skipped: true, Reason: fmt.Sprintf("pass aborted: %v", r)}
		}
	}()
	return d.pass(d.ctx, tenantID, template)
}

// Stop cancels running passes between items and waits for them to return.
func (d *Dispatcher) Stop() {
	d.mu.Lock()
	d.stopped = true
	d.mu.Unlock()
	d.cancel()
	d.wg.Wait()
	logrus.Info("[DISPATCH] All passes stopped")
}

func (d *Dispatcher) release(tenantID string) {
	d.mu.Lock()
	delete(d.inFlight, tenantID)
	d.mu.Unlock()
}

func (d *Dispatcher) publish(res domain.PassResult) {
	d.mu.Lock()
	listeners := append([]func(domain.PassResult){}, d.listeners...)
	d.mu.Unlock()
	for _, fn := range listeners {
		fn(res)
	}
}

// Start unpauses the tenant, remembers the template for ticker passes and runs a pass now.
func (d *Dispatcher) Start(tenantID, template string) (<-chan domain.PassResult, bool) {
	d.mu.Lock()
	delete(d.paused, tenantID)
	if template != "" {
		d.templates[tenantID] = template
	}
	d.mu.Unlock()
	logrus.Infof("[DISPATCH] %s: queue started", tenantID)
	return d.RunPass(tenantID, template)
}

// Pause stops ticker passes for the tenant and ends a running pass after its current item.
func (d *Dispatcher) Pause(tenantID string) {
	d.mu.Lock()
	d.paused[tenantID] = true
	d.mu.Unlock()
	logrus.Infof("[DISPATCH] %s: queue paused", tenantID)
}

func (d *Dispatcher) IsPaused(tenantID string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.paused[tenantID]
}

func (d *Dispatcher) State(ctx context.Context, tenantID string) (domain.QueueState, error) {
	counts, err := d.repo.CountByStatus(ctx, tenantID)
	if err != nil {
		return domain.QueueState{}, err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	return domain.QueueState{
		Paused:       d.paused[tenantID],
		Processing:   d.inFlight[tenantID],
		Template:     d.templates[tenantID],
		StatusCounts: counts,
	}, nil
}

// Tick requests a pass for every unpaused tenant with eligible items.
func (d *Dispatcher) Tick(ctx context.Context) {
	tenants, err := d.repo.TenantsWithEligible(ctx, d.opts.MaxRetries)
	if err != nil {
		logrus.WithError(err).Error("[DISPATCH] Failed to list tenants with eligible items")
		return
	}
	for _, tenantID := range tenants {
		if d.IsPaused(tenantID) {
			continue
		}
		if _, ok := d.RunPass(tenantID, ""); !ok {
			logrus.Debugf("[DISPATCH] %s: pass already running, tick dropped", tenantID)
		}
	}
}

// RecoverStale returns items left in processing by a crash to pending.
func (d *Dispatcher) RecoverStale(ctx context.Context) (int64, error) {
	n, err := d.repo.ResetProcessing(ctx)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		logrus.Warnf("[DISPATCH] Reset %d item(s) stuck in processing", n)
	}
	return n, nil
}

func (d *Dispatcher) limiter(tenantID string) *rate.Limiter {
	d.mu.Lock()
	defer d.mu.Unlock()
	if l, ok := d.limiters[tenantID]; ok {
		return l
	}
	limit := rate.Inf
	if d.opts.MessageDelay > 0 {
		limit = rate.Every(d.opts.MessageDelay)
	}
	// burst 1: the first send of an idle tenant goes out immediately
	l := rate.NewLimiter(limit, 1)
	d.limiters[tenantID] = l
	return l
}

func (d *Dispatcher) rememberedTemplate(tenantID string) string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.templates[tenantID]
}

func (d *Dispatcher) pass(ctx context.Context, tenantID, passTemplate string) domain.PassResult {
	res := domain.PassResult{TenantID: tenantID}
	started := time.Now()
	defer func() { passDuration.Observe(time.Since(started).Seconds()) }()

	if state := d.channel.Status(tenantID); state != sessionDomain.StateWorking {
		res.Skipped = true
		res.Reason = pkgError.ChannelNotReadyError(state).Error()
		passesTotal.WithLabelValues("skipped").Inc()
		logrus.Debugf("[DISPATCH] %s: pass skipped, %s", tenantID, res.Reason)
		return res
	}
	passesTotal.WithLabelValues("run").Inc()

	items, err := d.repo.Eligible(ctx, tenantID, d.opts.MaxRetries)
	if err != nil {
		res.Skipped = true
		res.Reason = err.Error()
		logrus.WithError(err).Errorf("[DISPATCH] %s: failed to load eligible items", tenantID)
		return res
	}
	if len(items) == 0 {
		return res
	}
	logrus.Infof("[DISPATCH] %s: pass started with %d item(s)", tenantID, len(items))

	remembered := d.rememberedTemplate(tenantID)
	limiter := d.limiter(tenantID)

	for _, item := range items {
		if ctx.Err() != nil {
			res.Reason = "shutting down"
			break
		}
		if d.IsPaused(tenantID) {
			res.Reason = "paused"
			break
		}

		if phone.Normalize(item.Mobile) == "" {
			msg := pkgError.RecipientAddressMissingError("").Error()
			if err := d.repo.ReturnToStaged(ctx, tenantID, item.ID, msg); err != nil {
				if !errors.Is(err, domain.ErrItemNotFound) {
					logrus.WithError(err).Errorf("[DISPATCH] %s: failed to stage item %d", tenantID, item.ID)
				}
				continue
			}
			res.Staged++
			itemsTotal.WithLabelValues("staged").Inc()
			logrus.Warnf("[DISPATCH] %s: item %d has no recipient, returned to staging", tenantID, item.ID)
			continue
		}

		claimed, err := d.repo.Claim(ctx, tenantID, item.ID)
		if err != nil {
			logrus.WithError(err).Errorf("[DISPATCH] %s: failed to claim item %d", tenantID, item.ID)
			continue
		}
		if !claimed {
			continue
		}
		res.Processed++

		text := domain.Render(domain.PickTemplate(passTemplate, item, remembered), item)

		if err := limiter.Wait(ctx); err != nil {
			// stopping: hand the item back without spending a retry
			bg := context.WithoutCancel(ctx)
			if err := d.repo.RecordFailure(bg, tenantID, item.ID, item.Retries, domain.StatusPending, "dispatch interrupted"); err != nil {
				logrus.WithError(err).Errorf("[DISPATCH] %s: failed to release item %d", tenantID, item.ID)
			}
			res.Processed--
			res.Reason = "shutting down"
			break
		}

		// a send is never cancelled halfway
		sendCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), sendTimeout)
		sendErr := d.send(sendCtx, tenantID, item, text)
		cancel()

		d.record(context.WithoutCancel(ctx), &res, item, sendErr)
	}

	logrus.Infof("[DISPATCH] %s: pass finished (processed=%d completed=%d retried=%d failed=%d staged=%d)",
		tenantID, res.Processed, res.Completed, res.Retried, res.Failed, res.Staged)
	return res
}

func (d *Dispatcher) send(ctx context.Context, tenantID string, item domain.Item, text string) error {
	if item.HasDocument() {
		if _, err := os.Stat(item.DocumentPath); err == nil {
			start := time.Now()
			err := d.channel.SendDocument(ctx, tenantID, item.Mobile, sessionDomain.Document{
				Path:     item.DocumentPath,
				FileName: item.DocumentName,
			}, text)
			sendDuration.WithLabelValues("document").Observe(time.Since(start).Seconds())
			return err
		}
		logrus.Warnf("[DISPATCH] %s: document for item %d is missing on disk, sending text only", tenantID, item.ID)
	}
	if text == "" {
		return pkgError.ValidationError("nothing to send: no document and empty message")
	}
	start := time.Now()
	err := d.channel.SendText(ctx, tenantID, item.Mobile, text)
	sendDuration.WithLabelValues("text").Observe(time.Since(start).Seconds())
	return err
}

func (d *Dispatcher) record(ctx context.Context, res *domain.PassResult, item domain.Item, sendErr error) {
	if sendErr == nil {
		if err := d.repo.Complete(ctx, item.TenantID, item.ID); err != nil {
			logrus.WithError(err).Errorf("[DISPATCH] %s: failed to mark item %d completed", item.TenantID, item.ID)
		}
		res.Completed++
		itemsTotal.WithLabelValues("completed").Inc()
		return
	}

	retries := item.Retries + 1
	status := domain.StatusPending
	if retries >= d.opts.MaxRetries {
		status = domain.StatusFailed
	}
	if err := d.repo.RecordFailure(ctx, item.TenantID, item.ID, retries, status, sendErr.Error()); err != nil {
		logrus.WithError(err).Errorf("[DISPATCH] %s: failed to record failure for item %d", item.TenantID, item.ID)
	}
	if status == domain.StatusFailed {
		res.Failed++
		itemsTotal.WithLabelValues("failed").Inc()
		logrus.WithError(sendErr).Errorf("[DISPATCH] %s: item %d failed permanently after %d attempts", item.TenantID, item.ID, retries)
		return
	}
	res.Retried++
	itemsTotal.WithLabelValues("retried").Inc()
	logrus.WithError(sendErr).Warnf("[DISPATCH] %s: item %d failed (attempt %d/%d)", item.TenantID, item.ID, retries, d.opts.MaxRetries)
}
