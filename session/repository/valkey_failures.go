package repository

import (
	"context"
	"time"

	"github.com/menofreact/whatsapp-sending-engine/infrastructure/valkey"
	"github.com/menofreact/whatsapp-sending-engine/session/domain"
)

// ValkeyFailureStore shares failure counters between engine replicas.
type ValkeyFailureStore struct {
	client *valkey.Client
	ttl    time.Duration
}

var _ domain.FailureStore = (*ValkeyFailureStore)(nil)

func NewValkeyFailureStore(client *valkey.Client, ttl time.Duration) *ValkeyFailureStore {
	return &ValkeyFailureStore{client: client, ttl: ttl}
}

func (s *ValkeyFailureStore) key(tenantID string) string {
	return s.client.Key("session", "failures", tenantID)
}

func (s *ValkeyFailureStore) Increment(ctx context.Context, tenantID string) (int, error) {
	n, err := s.client.Incr(ctx, s.key(tenantID), s.ttl)
	return int(n), err
}

func (s *ValkeyFailureStore) Get(ctx context.Context, tenantID string) (int, error) {
	n, err := s.client.GetInt(ctx, s.key(tenantID))
	return int(n), err
}

func (s *ValkeyFailureStore) Reset(ctx context.Context, tenantID string) error {
	return s.client.Del(ctx, s.key(tenantID))
}
