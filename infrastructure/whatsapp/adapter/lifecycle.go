package adapter

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"
	"go.mau.fi/whatsmeow"
	waLog "go.mau.fi/whatsmeow/util/log"

	"github.com/menofreact/whatsapp-sending-engine/session/domain"
)

var errQRTimeout = errors.New("pairing QR codes expired without a scan")

// Connect opens the tenant's device store and starts the websocket. For an
// unpaired device it subscribes to QR codes first, as whatsmeow requires.
// Pairing and readiness are reported asynchronously through emit.
func (wa *WhatsAppAdapter) Connect(ctx context.Context) error {
	container, err := wa.factory.openContainer(ctx, wa.tenantID)
	if err != nil {
		return fmt.Errorf("failed to open device store: %w", err)
	}

	device, err := container.GetFirstDevice(ctx)
	if err != nil {
		_ = container.Close()
		return fmt.Errorf("failed to get device: %w", err)
	}
	if device == nil {
		device = container.NewDevice()
	}

	client := whatsmeow.NewClient(device, waLog.Stdout("Client-"+shortID(wa.tenantID), wa.factory.cfg.LogLevel, true))
	// reconnects belong to the session supervisor
	client.EnableAutoReconnect = false
	client.AutoTrustIdentity = true

	qrCtx, qrCancel := context.WithCancel(context.Background())

	wa.mu.Lock()
	if wa.closed {
		wa.mu.Unlock()
		qrCancel()
		_ = container.Close()
		return errors.New("provider already disconnected")
	}
	wa.client = client
	wa.container = container
	wa.qrCancel = qrCancel
	wa.handlerID = client.AddEventHandler(wa.handleEvent)
	wa.mu.Unlock()

	if client.Store.ID != nil {
		wa.logf("connecting with stored credentials")
		return client.Connect()
	}

	qrChan, err := client.GetQRChannel(qrCtx)
	if err != nil {
		return fmt.Errorf("failed to subscribe to QR codes: %w", err)
	}
	if err := client.Connect(); err != nil {
		return fmt.Errorf("failed to connect new client: %w", err)
	}
	wa.logf("waiting for QR pairing")
	go wa.watchQR(qrChan)
	return nil
}

func (wa *WhatsAppAdapter) watchQR(qrChan <-chan whatsmeow.QRChannelItem) {
	for item := range qrChan {
		switch item.Event {
		case whatsmeow.QRChannelEventCode:
			wa.emit(domain.Event{Kind: domain.EventQRIssued, QRCode: item.Code})
		case whatsmeow.QRChannelSuccess.Event:
			// PairSuccess arrives through the event handler
		case whatsmeow.QRChannelTimeout.Event:
			wa.emit(domain.Event{Kind: domain.EventInitFailed, Err: errQRTimeout})
		case whatsmeow.QRChannelEventError:
			wa.emit(domain.Event{Kind: domain.EventInitFailed, Err: item.Error})
		default:
			wa.emit(domain.Event{Kind: domain.EventInitFailed, Err: fmt.Errorf("pairing failed: %s", item.Event)})
		}
	}
}

// Disconnect closes the socket and the device store. Stored credentials are kept.
func (wa *WhatsAppAdapter) Disconnect() {
	wa.mu.Lock()
	wa.closed = true
	client, container, cancel, handlerID := wa.client, wa.container, wa.qrCancel, wa.handlerID
	wa.client, wa.container, wa.qrCancel, wa.handlerID = nil, nil, nil, 0
	wa.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if client != nil {
		if handlerID != 0 {
			client.RemoveEventHandler(handlerID)
		}
		client.Disconnect()
	}
	if container != nil {
		if err := container.Close(); err != nil {
			logrus.WithError(err).Warnf("[WHATSAPP] %s: failed to close device store", wa.tenantID)
		}
	}
}

// Logout unlinks this device on the WhatsApp side.
func (wa *WhatsAppAdapter) Logout(ctx context.Context) error {
	client := wa.currentClient()
	if client == nil || client.Store.ID == nil {
		return nil
	}
	if err := client.Logout(ctx); err != nil {
		if strings.Contains(err.Error(), "not logged in") || strings.Contains(err.Error(), "401") {
			return nil
		}
		return err
	}
	wa.logf("logged out remotely")
	return nil
}
