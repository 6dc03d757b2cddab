package application

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	pkgError "github.com/menofreact/whatsapp-sending-engine/pkg/error"
	"github.com/menofreact/whatsapp-sending-engine/session/domain"
)

type envelope struct {
	gen    uint64
	anyGen bool
	evt    domain.Event
}

// ChannelSession owns one tenant's provider. All state changes happen on its
// run goroutine; the mutex only guards fields read by other goroutines.
type ChannelSession struct {
	tenantID string
	sup      *Supervisor

	mu         sync.RWMutex
	state      domain.State
	generation uint64
	provider   domain.Provider
	qrCode     string
	lastError  string
	updatedAt  time.Time

	// owned by the run goroutine
	initTimer    *time.Timer
	pendingTimer *time.Timer
	probeStop    chan struct{}

	inbox   chan envelope
	done    chan struct{}
	stopped chan struct{}
}

func newChannelSession(sup *Supervisor, tenantID string) *ChannelSession {
	return &ChannelSession{
		tenantID:  tenantID,
		sup:       sup,
		state:     domain.StateInitializing,
		updatedAt: time.Now(),
		inbox:     make(chan envelope, 64),
		done:      make(chan struct{}),
		stopped:   make(chan struct{}),
	}
}

func (cs *ChannelSession) TenantID() string { return cs.tenantID }

func (cs *ChannelSession) State() domain.State {
	cs.mu.RLock()
	defer cs.mu.RUnlock()
	return cs.state
}

// QRCode returns the raw pairing code, empty outside SCAN_QR_CODE.
func (cs *ChannelSession) QRCode() string {
	cs.mu.RLock()
	defer cs.mu.RUnlock()
	if cs.state != domain.StateScanQRCode {
		return ""
	}
	return cs.qrCode
}

func (cs *ChannelSession) Generation() uint64 {
	cs.mu.RLock()
	defer cs.mu.RUnlock()
	return cs.generation
}

func (cs *ChannelSession) summary(failures int) domain.Summary {
	cs.mu.RLock()
	defer cs.mu.RUnlock()
	return domain.Summary{
		TenantID:   cs.tenantID,
		Status:     cs.state,
		Failures:   failures,
		HasClient:  cs.provider != nil,
		HasQR:      cs.state == domain.StateScanQRCode && cs.qrCode != "",
		LastError:  cs.lastError,
		Generation: cs.generation,
		UpdatedAt:  cs.updatedAt,
	}
}

// readyProvider returns the provider only while WORKING.
func (cs *ChannelSession) readyProvider() (domain.Provider, error) {
	cs.mu.RLock()
	defer cs.mu.RUnlock()
	if cs.state != domain.StateWorking || cs.provider == nil {
		return nil, pkgError.ChannelNotReadyError(cs.state)
	}
	return cs.provider, nil
}

func (cs *ChannelSession) post(env envelope) {
	select {
	case cs.inbox <- env:
	case <-cs.done:
	}
}

// request feeds an operator event, valid for whatever generation is current.
func (cs *ChannelSession) request(kind domain.EventKind) {
	cs.post(envelope{anyGen: true, evt: domain.Event{Kind: kind}})
}

func (cs *ChannelSession) emitter(gen uint64) func(domain.Event) {
	return func(evt domain.Event) {
		cs.post(envelope{gen: gen, evt: evt})
	}
}

func (cs *ChannelSession) run() {
	defer close(cs.stopped)

	cs.apply(domain.EffectReinit, domain.Event{})
	for {
		select {
		case <-cs.done:
			return
		case env := <-cs.inbox:
			cs.handle(env)
		}
	}
}

func (cs *ChannelSession) handle(env envelope) {
	cs.mu.Lock()
	if !env.anyGen && env.gen != cs.generation {
		cs.mu.Unlock()
		logrus.Debugf("[SESSION] %s: dropping stale %s from generation %d", cs.tenantID, env.evt.Kind, env.gen)
		return
	}
	from := cs.state
	next, effects := domain.Transition(from, env.evt)
	cs.state = next
	if env.evt.Err != nil {
		cs.lastError = env.evt.Err.Error()
	}
	if next != from {
		cs.updatedAt = time.Now()
	}
	cs.mu.Unlock()

	if effects == nil {
		logrus.Debugf("[SESSION] %s: ignored %s in %s", cs.tenantID, env.evt.Kind, from)
		return
	}
	if next != from {
		logrus.Infof("[SESSION] %s: %s -> %s (%s)", cs.tenantID, from, next, env.evt.Kind)
		cs.sup.notify(cs.tenantID, from, next)
	}
	for _, fx := range effects {
		cs.apply(fx, env.evt)
	}
}

func (cs *ChannelSession) apply(fx domain.Effect, evt domain.Event) {
	ctx := cs.sup.ctx
	opts := cs.sup.opts

	switch fx {
	case domain.EffectStoreQR:
		cs.mu.Lock()
		cs.qrCode = evt.QRCode
		cs.mu.Unlock()
		logrus.Infof("[SESSION] %s: QR code received", cs.tenantID)

	case domain.EffectClearQR:
		cs.mu.Lock()
		cs.qrCode = ""
		cs.mu.Unlock()

	case domain.EffectStartProbe:
		stopTimer(&cs.initTimer)
		cs.startProbe(opts.ProbeInterval)

	case domain.EffectStopProbe:
		cs.stopProbe()

	case domain.EffectResetFailures:
		if err := cs.sup.failures.Reset(ctx, cs.tenantID); err != nil {
			logrus.WithError(err).Warnf("[SESSION] %s: failed to reset failure counter", cs.tenantID)
		}
		cs.mu.Lock()
		cs.lastError = ""
		cs.mu.Unlock()

	case domain.EffectRecordFailure:
		sessionInitFailures.Inc()
		n, err := cs.sup.failures.Increment(ctx, cs.tenantID)
		if err != nil {
			logrus.WithError(err).Warnf("[SESSION] %s: failed to record init failure", cs.tenantID)
		}
		logrus.WithError(evt.Err).Warnf("[SESSION] %s: initialization failed (%d consecutive)", cs.tenantID, n)

	case domain.EffectScheduleRetry:
		n, err := cs.sup.failures.Get(ctx, cs.tenantID)
		if err != nil {
			logrus.WithError(err).Warnf("[SESSION] %s: failed to read failure counter", cs.tenantID)
		}
		if n > opts.MaxInitFailures {
			logrus.Warnf("[SESSION] %s: %d consecutive failures, clearing stored auth", cs.tenantID, n)
			sessionAuthResets.Inc()
			cs.clearAuth(ctx)
			if err := cs.sup.failures.Reset(ctx, cs.tenantID); err != nil {
				logrus.WithError(err).Warnf("[SESSION] %s: failed to reset failure counter", cs.tenantID)
			}
		}
		cs.schedule(opts.RetryBackoff, domain.EventRetryDue)

	case domain.EffectScheduleReinit:
		cs.schedule(opts.ReconnectDelay, domain.EventReinitDue)

	case domain.EffectRemoteLogout:
		cs.mu.RLock()
		p := cs.provider
		cs.mu.RUnlock()
		if p != nil {
			logoutCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			if err := p.Logout(logoutCtx); err != nil {
				logrus.WithError(err).Warnf("[SESSION] %s: remote logout failed", cs.tenantID)
			}
			cancel()
		}

	case domain.EffectTeardown:
		cs.teardown()

	case domain.EffectClearAuth:
		cs.clearAuth(ctx)

	case domain.EffectReinit:
		cs.reinit(ctx, opts.InitTimeout)
	}
}

func (cs *ChannelSession) clearAuth(ctx context.Context) {
	if err := cs.sup.factory.ClearAuth(ctx, cs.tenantID); err != nil {
		logrus.WithError(err).Errorf("[SESSION] %s: failed to clear auth", cs.tenantID)
	}
}

func (cs *ChannelSession) reinit(ctx context.Context, initTimeout time.Duration) {
	stopTimer(&cs.pendingTimer)

	cs.mu.Lock()
	cs.generation++
	gen := cs.generation
	cs.mu.Unlock()

	emit := cs.emitter(gen)
	provider, err := cs.sup.factory.New(cs.tenantID, emit)
	if err != nil {
		// posting from the run goroutine would block on a full inbox
		go emit(domain.Event{Kind: domain.EventInitFailed, Err: pkgError.SessionInitFailureError{TenantID: cs.tenantID, Err: err}})
		return
	}

	cs.mu.Lock()
	cs.provider = provider
	cs.mu.Unlock()

	stopTimer(&cs.initTimer)
	cs.initTimer = time.AfterFunc(initTimeout, func() {
		emit(domain.Event{Kind: domain.EventInitTimeout, Err: pkgError.SessionInitFailureError{TenantID: cs.tenantID, Err: context.DeadlineExceeded}})
	})

	logrus.Infof("[SESSION] %s: starting provider (generation %d)", cs.tenantID, gen)
	go func() {
		if err := provider.Connect(ctx); err != nil {
			emit(domain.Event{Kind: domain.EventInitFailed, Err: pkgError.SessionInitFailureError{TenantID: cs.tenantID, Err: err}})
		}
	}()
}

func (cs *ChannelSession) teardown() {
	stopTimer(&cs.initTimer)
	stopTimer(&cs.pendingTimer)

	cs.mu.Lock()
	p := cs.provider
	cs.provider = nil
	cs.mu.Unlock()

	if p != nil {
		p.Disconnect()
	}
}

func (cs *ChannelSession) schedule(d time.Duration, kind domain.EventKind) {
	stopTimer(&cs.pendingTimer)
	emit := cs.emitter(cs.Generation())
	cs.pendingTimer = time.AfterFunc(d, func() {
		emit(domain.Event{Kind: kind})
	})
}

func (cs *ChannelSession) startProbe(interval time.Duration) {
	cs.stopProbe()
	if interval <= 0 {
		return
	}
	stop := make(chan struct{})
	cs.probeStop = stop
	emit := cs.emitter(cs.Generation())

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-cs.done:
				return
			case <-ticker.C:
				cs.mu.RLock()
				p := cs.provider
				cs.mu.RUnlock()
				if p == nil || !p.IsConnected() {
					logrus.Warnf("[SESSION] %s: liveness probe failed, client not connected", cs.tenantID)
					emit(domain.Event{Kind: domain.EventProbeFailed})
					return
				}
			}
		}
	}()
}

func (cs *ChannelSession) stopProbe() {
	if cs.probeStop != nil {
		close(cs.probeStop)
		cs.probeStop = nil
	}
}

// close stops the run goroutine and releases the provider.
func (cs *ChannelSession) close() {
	close(cs.done)
	<-cs.stopped
	cs.stopProbe()
	cs.teardown()
}

func stopTimer(t **time.Timer) {
	if *t != nil {
		(*t).Stop()
		*t = nil
	}
}
