package repository

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/menofreact/whatsapp-sending-engine/dispatch/domain"
)

func newTestRepo(t *testing.T) *ItemGormRepository {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	repo := NewItemGormRepository(db)
	require.NoError(t, repo.InitSchema(context.Background()))
	return repo
}

func seed(t *testing.T, repo *ItemGormRepository, tenant string, status domain.Status, retries int, created time.Time) *domain.Item {
	t.Helper()
	item := &domain.Item{TenantID: tenant, Name: "n", Mobile: "919876543210", Status: status, Retries: retries, CreatedAt: created}
	require.NoError(t, repo.Create(context.Background(), item))
	require.NotZero(t, item.ID)
	return item
}

func TestItemRepo_EligibleSelection(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	base := time.Now().Add(-time.Hour).UTC()

	second := seed(t, repo, "a", domain.StatusPending, 0, base.Add(2*time.Minute))
	first := seed(t, repo, "a", domain.StatusFailed, 2, base.Add(time.Minute))
	seed(t, repo, "a", domain.StatusFailed, 3, base)
	seed(t, repo, "a", domain.StatusStaged, 0, base)
	seed(t, repo, "a", domain.StatusCompleted, 0, base)
	seed(t, repo, "a", domain.StatusProcessing, 0, base)
	seed(t, repo, "b", domain.StatusPending, 0, base)
	seed(t, repo, "c", domain.StatusStaged, 0, base)

	items, err := repo.Eligible(ctx, "a", 3)
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, first.ID, items[0].ID)
	assert.Equal(t, second.ID, items[1].ID)

	tenants, err := repo.TenantsWithEligible(ctx, 3)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, tenants)
}

func TestItemRepo_ClaimIsConditional(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	item := seed(t, repo, "a", domain.StatusPending, 0, time.Time{})

	ok, err := repo.Claim(ctx, "b", item.ID)
	require.NoError(t, err)
	assert.False(t, ok, "other tenant cannot claim")

	ok, err = repo.Claim(ctx, "a", item.ID)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = repo.Claim(ctx, "a", item.ID)
	require.NoError(t, err)
	assert.False(t, ok, "already processing")

	require.NoError(t, repo.RecordFailure(ctx, "a", item.ID, 1, domain.StatusPending, "timeout"))
	got, err := repo.Get(ctx, "a", item.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusPending, got.Status)
	assert.Equal(t, 1, got.Retries)
	assert.Equal(t, "timeout", got.Error)
	assert.Contains(t, got.Logs, "Failed: timeout")

	ok, _ = repo.Claim(ctx, "a", item.ID)
	require.True(t, ok)
	require.NoError(t, repo.Complete(ctx, "a", item.ID))
	got, _ = repo.Get(ctx, "a", item.ID)
	assert.Equal(t, domain.StatusCompleted, got.Status)
	assert.Empty(t, got.Error)
	assert.Equal(t, 1, got.Retries)
}

func TestItemRepo_ApproveStagedScopedByTenant(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	seed(t, repo, "a", domain.StatusStaged, 0, time.Time{})
	seed(t, repo, "a", domain.StatusStaged, 0, time.Time{})
	other := seed(t, repo, "b", domain.StatusStaged, 0, time.Time{})

	n, err := repo.ApproveStaged(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	counts, err := repo.CountByStatus(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, int64(2), counts[domain.StatusPending])
	assert.Zero(t, counts[domain.StatusStaged])

	got, _ := repo.Get(ctx, "b", other.ID)
	assert.Equal(t, domain.StatusStaged, got.Status)
}

func TestItemRepo_MutationsRequireOwner(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	item := seed(t, repo, "a", domain.StatusStaged, 0, time.Time{})

	assert.ErrorIs(t, repo.UpdateRecipient(ctx, "b", item.ID, "x", "1"), domain.ErrItemNotFound)
	assert.ErrorIs(t, repo.Delete(ctx, "b", item.ID), domain.ErrItemNotFound)
	_, err := repo.Get(ctx, "b", item.ID)
	assert.ErrorIs(t, err, domain.ErrItemNotFound)

	found, err := repo.FindByID(ctx, item.ID)
	require.NoError(t, err)
	assert.Equal(t, "a", found.TenantID)

	require.NoError(t, repo.UpdateRecipient(ctx, "a", item.ID, "Asha", "919000000001"))
	got, _ := repo.Get(ctx, "a", item.ID)
	assert.Equal(t, "Asha", got.Name)
	assert.Equal(t, domain.StatusStaged, got.Status)

	require.NoError(t, repo.Delete(ctx, "a", item.ID))
	_, err = repo.FindByID(ctx, item.ID)
	assert.ErrorIs(t, err, domain.ErrItemNotFound)
}

func TestItemRepo_UpdateRecipientSkipsProcessing(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	item := seed(t, repo, "a", domain.StatusProcessing, 1, time.Time{})

	assert.ErrorIs(t, repo.UpdateRecipient(ctx, "a", item.ID, "Changed", "919000000001"), domain.ErrItemNotEditable)
	assert.ErrorIs(t, repo.UpdateRecipient(ctx, "a", item.ID+100, "Changed", "919000000001"), domain.ErrItemNotFound)

	got, err := repo.Get(ctx, "a", item.ID)
	require.NoError(t, err)
	assert.Equal(t, "n", got.Name)
	assert.Equal(t, domain.StatusProcessing, got.Status)

	for _, st := range []domain.Status{domain.StatusStaged, domain.StatusPending, domain.StatusFailed} {
		editable := seed(t, repo, "a", st, 0, time.Time{})
		assert.NoError(t, repo.UpdateRecipient(ctx, "a", editable.ID, "Asha", "919000000001"), st)
	}
}

func TestItemRepo_HistoryAndReset(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	seed(t, repo, "a", domain.StatusCompleted, 0, time.Time{})
	seed(t, repo, "a", domain.StatusFailed, 3, time.Time{})
	seed(t, repo, "a", domain.StatusPending, 0, time.Time{})
	stuck := seed(t, repo, "a", domain.StatusProcessing, 1, time.Time{})

	history, err := repo.History(ctx, "a", 500)
	require.NoError(t, err)
	assert.Len(t, history, 2)

	limited, err := repo.History(ctx, "a", 1)
	require.NoError(t, err)
	assert.Len(t, limited, 1)

	n, err := repo.ResetProcessing(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	got, _ := repo.Get(ctx, "a", stuck.ID)
	assert.Equal(t, domain.StatusPending, got.Status)
	assert.Equal(t, 1, got.Retries)

	all, err := repo.List(ctx, "a")
	require.NoError(t, err)
	assert.Len(t, all, 4)
}

func TestItemRepo_ReturnToStagedKeepsRetries(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	item := seed(t, repo, "a", domain.StatusFailed, 2, time.Time{})
	done := seed(t, repo, "a", domain.StatusCompleted, 0, time.Time{})

	require.NoError(t, repo.ReturnToStaged(ctx, "a", item.ID, "recipient address missing"))
	got, _ := repo.Get(ctx, "a", item.ID)
	assert.Equal(t, domain.StatusStaged, got.Status)
	assert.Equal(t, 2, got.Retries)
	assert.Equal(t, "recipient address missing", got.Error)

	assert.ErrorIs(t, repo.ReturnToStaged(ctx, "a", done.ID, "x"), domain.ErrItemNotFound)
}
