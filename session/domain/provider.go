package domain

import "context"

// Document is a file attached to an outbound message.
type Document struct {
	Path     string
	FileName string
	MimeType string
}

// Provider is one connection to the messaging network for one tenant.
// Implementations report what happens through the emit callback given to
// ProviderFactory.New; they never change session state themselves.
type Provider interface {
	// Connect starts the connection. It may return before pairing completes.
	Connect(ctx context.Context) error
	// Disconnect closes the connection and releases local resources.
	Disconnect()
	// Logout revokes the linked device on the remote side.
	Logout(ctx context.Context) error
	IsConnected() bool
	SendText(ctx context.Context, address, text string) error
	SendDocument(ctx context.Context, address string, doc Document, caption string) error
}

// ProviderFactory builds providers and owns their local authentication artifacts.
type ProviderFactory interface {
	New(tenantID string, emit func(Event)) (Provider, error)
	// ClearAuth removes every locally stored credential for the tenant.
	ClearAuth(ctx context.Context, tenantID string) error
	// HasAuth reports whether the tenant has stored credentials from an earlier pairing.
	HasAuth(tenantID string) bool
}
