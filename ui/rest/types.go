package rest

import (
	"context"

	sessionApp "github.com/menofreact/whatsapp-sending-engine/session/application"
	sessionDomain "github.com/menofreact/whatsapp-sending-engine/session/domain"
)

// SessionManager is the part of the session supervisor the handlers use.
type SessionManager interface {
	GetOrCreate(ctx context.Context, tenantID string) (*sessionApp.ChannelSession, error)
	DestroyAndReinitialize(ctx context.Context, tenantID string) error
	Logout(ctx context.Context, tenantID string) error
	Status(tenantID string) sessionDomain.State
	QR(tenantID string) (string, error)
	Sessions(ctx context.Context) []sessionDomain.Summary
	SendText(ctx context.Context, tenantID, mobile, text string) error
	SendDocument(ctx context.Context, tenantID, mobile string, doc sessionDomain.Document, caption string) error
}

type StatusResponse struct {
	Status  sessionDomain.State `json:"status"`
	QRReady bool                `json:"qr_ready"`
}

type QRResponse struct {
	QR string `json:"qr"`
}

// UploadResult mirrors the per-batch counters returned by POST /upload
type UploadResult struct {
	Success int           `json:"success"`
	Failed  int           `json:"failed"`
	Staged  int           `json:"staged"`
	Errors  []UploadError `json:"errors"`
}

type UploadError struct {
	File  string `json:"file"`
	Error string `json:"error"`
}

type PreviewResponse struct {
	Name             *string `json:"name"`
	Mobile           *string `json:"mobile"`
	TextPreview      string  `json:"textPreview"`
	NeedsManualEntry bool    `json:"needsManualEntry"`
}
