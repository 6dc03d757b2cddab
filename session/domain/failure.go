package domain

import "context"

// FailureStore keeps the consecutive init-failure counter of each tenant
// outside the session object, so replacing a session never resets it.
type FailureStore interface {
	Increment(ctx context.Context, tenantID string) (int, error)
	Get(ctx context.Context, tenantID string) (int, error)
	Reset(ctx context.Context, tenantID string) error
}
