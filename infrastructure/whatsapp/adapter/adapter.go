// Package adapter implements the session provider on top of whatsmeow.
// One WhatsAppAdapter wraps one tenant's client and device store.
package adapter

import (
	"context"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"
	"go.mau.fi/whatsmeow"
	"go.mau.fi/whatsmeow/store/sqlstore"
	"go.mau.fi/whatsmeow/types"

	"github.com/menofreact/whatsapp-sending-engine/session/domain"
)

type WhatsAppAdapter struct {
	tenantID string
	factory  *Factory
	emit     func(domain.Event)

	mu        sync.RWMutex
	client    *whatsmeow.Client
	container *sqlstore.Container
	handlerID uint32
	qrCancel  context.CancelFunc
	closed    bool
}

var _ domain.Provider = (*WhatsAppAdapter)(nil)

func (wa *WhatsAppAdapter) currentClient() *whatsmeow.Client {
	wa.mu.RLock()
	defer wa.mu.RUnlock()
	return wa.client
}

// IsConnected reports an open socket with a logged-in device.
func (wa *WhatsAppAdapter) IsConnected() bool {
	cli := wa.currentClient()
	return cli != nil && cli.IsConnected() && cli.IsLoggedIn()
}

// parseJID accepts a bare normalized number or a full JID.
func parseJID(address string) (types.JID, error) {
	if strings.Contains(address, "@") {
		return types.ParseJID(address)
	}
	return types.NewJID(address, types.DefaultUserServer), nil
}

func shortID(tenantID string) string {
	if len(tenantID) > 8 {
		return tenantID[:8]
	}
	return tenantID
}

func (wa *WhatsAppAdapter) logf(format string, args ...interface{}) {
	logrus.Infof("[WHATSAPP] "+wa.tenantID+": "+format, args...)
}
