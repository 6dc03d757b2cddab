package domain

import (
	"context"
	"errors"
)

var (
	ErrItemNotFound    = errors.New("queue item not found")
	ErrItemNotEditable = errors.New("queue item is not editable in its current status")
)

// ItemRepository persists queue items. Every mutation is scoped by tenant and id.
type ItemRepository interface {
	Create(ctx context.Context, item *Item) error
	Get(ctx context.Context, tenantID string, id uint) (*Item, error)
	// FindByID ignores the tenant, for ownership checks.
	FindByID(ctx context.Context, id uint) (*Item, error)
	// List returns the tenant's items, newest first.
	List(ctx context.Context, tenantID string) ([]Item, error)
	// History returns completed and failed items, most recently updated first.
	History(ctx context.Context, tenantID string, limit int) ([]Item, error)
	CountByStatus(ctx context.Context, tenantID string) (map[Status]int64, error)

	// Eligible returns pending items and failed items under the retry ceiling, oldest first.
	Eligible(ctx context.Context, tenantID string, maxRetries int) ([]Item, error)
	TenantsWithEligible(ctx context.Context, maxRetries int) ([]string, error)

	// Claim moves a pending or failed item to processing. False means another pass won.
	Claim(ctx context.Context, tenantID string, id uint) (bool, error)
	Complete(ctx context.Context, tenantID string, id uint) error
	RecordFailure(ctx context.Context, tenantID string, id uint, retries int, status Status, errText string) error
	// ReturnToStaged parks a pending or failed item for operator attention; retries are kept.
	ReturnToStaged(ctx context.Context, tenantID string, id uint, errText string) error

	ApproveStaged(ctx context.Context, tenantID string) (int64, error)
	// UpdateRecipient only touches items in an editable status; otherwise ErrItemNotEditable.
	UpdateRecipient(ctx context.Context, tenantID string, id uint, name, mobile string) error
	Delete(ctx context.Context, tenantID string, id uint) error
	// ResetProcessing returns items stuck in processing after a crash to pending.
	ResetProcessing(ctx context.Context) (int64, error)
}

// DocumentExtractor reads recipient data out of an uploaded document.
type DocumentExtractor interface {
	Extract(ctx context.Context, path string) (Extraction, error)
}
