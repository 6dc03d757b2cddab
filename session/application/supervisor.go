package application

import (
	"context"
	"encoding/base64"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/skip2/go-qrcode"

	pkgError "github.com/menofreact/whatsapp-sending-engine/pkg/error"
	"github.com/menofreact/whatsapp-sending-engine/pkg/phone"
	"github.com/menofreact/whatsapp-sending-engine/session/domain"
)

// Options is the supervisor recovery policy.
type Options struct {
	InitTimeout     time.Duration
	RetryBackoff    time.Duration
	ReconnectDelay  time.Duration
	ProbeInterval   time.Duration
	MaxInitFailures int
	QRImageSize     int
}

func DefaultOptions() Options {
	return Options{
		InitTimeout:     5 * time.Minute,
		RetryBackoff:    5 * time.Second,
		ReconnectDelay:  2 * time.Second,
		ProbeInterval:   30 * time.Second,
		MaxInitFailures: 3,
		QRImageSize:     256,
	}
}

// StateListener is called on every state change, from the session's goroutine.
// It must not block.
type StateListener func(tenantID string, from, to domain.State)

// Supervisor is the only owner of channel sessions.
type Supervisor struct {
	factory  domain.ProviderFactory
	failures domain.FailureStore
	opts     Options

	ctx    context.Context
	cancel context.CancelFunc

	mu        sync.Mutex
	sessions  map[string]*ChannelSession
	listeners []StateListener
	closed    bool
}

func NewSupervisor(factory domain.ProviderFactory, failures domain.FailureStore, opts Options) *Supervisor {
	ctx, cancel := context.WithCancel(context.Background())
	return &Supervisor{
		factory:  factory,
		failures: failures,
		opts:     opts,
		ctx:      ctx,
		cancel:   cancel,
		sessions: make(map[string]*ChannelSession),
	}
}

// OnStateChange registers a listener. Register before creating sessions.
func (s *Supervisor) OnStateChange(fn StateListener) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listeners = append(s.listeners, fn)
}

func (s *Supervisor) notify(tenantID string, from, to domain.State) {
	trackTransition(from, to)

	s.mu.Lock()
	listeners := append([]StateListener(nil), s.listeners...)
	s.mu.Unlock()
	for _, fn := range listeners {
		fn(tenantID, from, to)
	}
}

// GetOrCreate returns the tenant's session, creating it in INITIALIZING and
// starting its provider in the background when absent.
func (s *Supervisor) GetOrCreate(ctx context.Context, tenantID string) (*ChannelSession, error) {
	if tenantID == "" {
		return nil, pkgError.ValidationError("tenant id is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, errors.New("supervisor is shut down")
	}
	if cs, ok := s.sessions[tenantID]; ok {
		return cs, nil
	}

	cs := newChannelSession(s, tenantID)
	s.sessions[tenantID] = cs
	trackTransition("", domain.StateInitializing)
	logrus.Infof("[SESSION] %s: session created", tenantID)

	go cs.run()
	return cs, nil
}

// DestroyAndReinitialize drops the current connection and local auth, then starts over.
func (s *Supervisor) DestroyAndReinitialize(ctx context.Context, tenantID string) error {
	s.mu.Lock()
	cs, ok := s.sessions[tenantID]
	s.mu.Unlock()
	if !ok {
		// a fresh session already starts from scratch
		if err := s.factory.ClearAuth(ctx, tenantID); err != nil {
			logrus.WithError(err).Warnf("[SESSION] %s: failed to clear auth before restart", tenantID)
		}
		_, err := s.GetOrCreate(ctx, tenantID)
		return err
	}
	logrus.Infof("[SESSION] %s: restart requested", tenantID)
	cs.request(domain.EventRestartRequested)
	return nil
}

// Logout unlinks the device remotely, clears local auth and re-initializes for a new pairing.
func (s *Supervisor) Logout(ctx context.Context, tenantID string) error {
	s.mu.Lock()
	cs, ok := s.sessions[tenantID]
	s.mu.Unlock()
	if !ok {
		return pkgError.NotFoundError("no session for tenant")
	}
	logrus.Infof("[SESSION] %s: logout requested", tenantID)
	cs.request(domain.EventLogoutRequested)
	return nil
}

func (s *Supervisor) lookup(tenantID string) *ChannelSession {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sessions[tenantID]
}

// Status returns OFFLINE when the tenant has no session.
func (s *Supervisor) Status(tenantID string) domain.State {
	if cs := s.lookup(tenantID); cs != nil {
		return cs.State()
	}
	return domain.StateOffline
}

// QR returns the pairing code rendered as a base64 PNG.
func (s *Supervisor) QR(tenantID string) (string, error) {
	cs := s.lookup(tenantID)
	if cs == nil {
		return "", pkgError.NotFoundError("QR not ready")
	}
	code := cs.QRCode()
	if code == "" {
		return "", pkgError.NotFoundError("QR not ready")
	}

	size := s.opts.QRImageSize
	if size <= 0 {
		size = 256
	}
	png, err := qrcode.Encode(code, qrcode.Medium, size)
	if err != nil {
		return "", pkgError.InternalServerError("failed to render QR code: " + err.Error())
	}
	return base64.StdEncoding.EncodeToString(png), nil
}

// Sessions summarizes every live session, sorted by tenant.
func (s *Supervisor) Sessions(ctx context.Context) []domain.Summary {
	s.mu.Lock()
	list := make([]*ChannelSession, 0, len(s.sessions))
	for _, cs := range s.sessions {
		list = append(list, cs)
	}
	s.mu.Unlock()

	out := make([]domain.Summary, 0, len(list))
	for _, cs := range list {
		n, err := s.failures.Get(ctx, cs.tenantID)
		if err != nil {
			logrus.WithError(err).Debugf("[SESSION] %s: failure counter unavailable", cs.tenantID)
		}
		out = append(out, cs.summary(n))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].TenantID < out[j].TenantID })
	return out
}

// AutoStart creates sessions for tenants that still hold stored auth.
func (s *Supervisor) AutoStart(ctx context.Context, tenantIDs []string) int {
	started := 0
	for _, id := range tenantIDs {
		if !s.factory.HasAuth(id) {
			continue
		}
		if _, err := s.GetOrCreate(ctx, id); err != nil {
			logrus.WithError(err).Warnf("[SESSION] %s: auto start failed", id)
			continue
		}
		started++
	}
	if started > 0 {
		logrus.Infof("[SESSION] Auto-started %d session(s) with stored auth", started)
	}
	return started
}

// SendText sends a plain message through the tenant's WORKING session.
func (s *Supervisor) SendText(ctx context.Context, tenantID, mobile, text string) error {
	p, address, err := s.sendTarget(tenantID, mobile)
	if err != nil {
		return err
	}
	if err := p.SendText(ctx, address, text); err != nil {
		return pkgError.SendFailureError{Err: err}
	}
	return nil
}

// SendDocument sends a document with the caption attached to the same message.
func (s *Supervisor) SendDocument(ctx context.Context, tenantID, mobile string, doc domain.Document, caption string) error {
	p, address, err := s.sendTarget(tenantID, mobile)
	if err != nil {
		return err
	}
	if err := p.SendDocument(ctx, address, doc, caption); err != nil {
		return pkgError.SendFailureError{Err: err}
	}
	return nil
}

func (s *Supervisor) sendTarget(tenantID, mobile string) (domain.Provider, string, error) {
	cs := s.lookup(tenantID)
	if cs == nil {
		return nil, "", pkgError.ChannelNotReadyError(domain.StateOffline)
	}
	p, err := cs.readyProvider()
	if err != nil {
		return nil, "", err
	}
	address := phone.Normalize(mobile)
	if address == "" {
		return nil, "", pkgError.RecipientAddressMissingError("")
	}
	return p, address, nil
}

// Shutdown stops every session and disconnects its provider. Stored auth is kept.
func (s *Supervisor) Shutdown() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	list := make([]*ChannelSession, 0, len(s.sessions))
	for _, cs := range s.sessions {
		list = append(list, cs)
	}
	s.sessions = make(map[string]*ChannelSession)
	s.mu.Unlock()

	s.cancel()
	var wg sync.WaitGroup
	for _, cs := range list {
		wg.Add(1)
		go func(cs *ChannelSession) {
			defer wg.Done()
			state := cs.State()
			cs.close()
			trackTransition(state, "")
		}(cs)
	}
	wg.Wait()
	logrus.Infof("[SESSION] Supervisor stopped %d session(s)", len(list))
}
