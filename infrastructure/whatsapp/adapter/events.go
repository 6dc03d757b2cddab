package adapter

import (
	"fmt"

	"github.com/sirupsen/logrus"
	"go.mau.fi/whatsmeow/types/events"

	"github.com/menofreact/whatsapp-sending-engine/session/domain"
)

// handleEvent maps whatsmeow events onto session events.
func (wa *WhatsAppAdapter) handleEvent(rawEvt interface{}) {
	switch evt := rawEvt.(type) {
	case *events.PairSuccess:
		wa.logf("paired with %s", evt.ID.String())
		wa.emit(domain.Event{Kind: domain.EventPaired})

	case *events.PairError:
		wa.emit(domain.Event{Kind: domain.EventInitFailed, Err: fmt.Errorf("pairing error: %w", evt.Error)})

	case *events.Connected:
		wa.logf("connected")
		wa.emit(domain.Event{Kind: domain.EventReady})

	case *events.Disconnected:
		logrus.Warnf("[WHATSAPP] %s: disconnected", wa.tenantID)
		wa.emit(domain.Event{Kind: domain.EventDisconnected})

	case *events.StreamReplaced:
		logrus.Warnf("[WHATSAPP] %s: stream replaced by another connection", wa.tenantID)
		wa.emit(domain.Event{Kind: domain.EventDisconnected})

	case *events.LoggedOut:
		logrus.Warnf("[WHATSAPP] %s: logged out remotely (reason %s)", wa.tenantID, evt.Reason.String())
		wa.emit(domain.Event{Kind: domain.EventLoggedOut})

	case *events.ConnectFailure:
		wa.emit(domain.Event{Kind: domain.EventInitFailed, Err: fmt.Errorf("connect failure: %s %s", evt.Reason.String(), evt.Message)})

	case *events.TemporaryBan:
		wa.emit(domain.Event{Kind: domain.EventInitFailed, Err: fmt.Errorf("temporary ban: %s", evt.String())})

	case *events.ClientOutdated:
		wa.emit(domain.Event{Kind: domain.EventInitFailed, Err: fmt.Errorf("client outdated")})

	case *events.KeepAliveTimeout:
		logrus.Debugf("[WHATSAPP] %s: keepalive timeout (%d errors)", wa.tenantID, evt.ErrorCount)
	}
}
