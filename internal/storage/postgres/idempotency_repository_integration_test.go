package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/muzbazar/internal/domain"
)

func TestIdempotencyRepository_PostgresPaymentReplay(t *testing.T) {
	repo := NewIdempotencyRepository(migratedStore(t))
	ctx := context.Background()

	expires := time.Now().UTC().Add(2 * time.Hour).Truncate(time.Second)
	created, err := repo.CreateProcessing(ctx, " pay-c1-2026-05-10 ", "hash-pay", expires)
	require.NoError(t, err)
	require.Equal(t, "pay-c1-2026-05-10", created.Key)
	require.Equal(t, domain.IdempotencyStatusProcessing, created.Status)

	pending, err := repo.Get(ctx, "pay-c1-2026-05-10")
	require.NoError(t, err)
	require.Empty(t, pending.ResponseBody)
	require.Zero(t, pending.ResponseCode)

	require.NoError(t, repo.MarkDone(ctx, "pay-c1-2026-05-10", []byte(`{"applied":1500}`), 200))

	got, err := repo.Get(ctx, "pay-c1-2026-05-10")
	require.NoError(t, err)
	require.Equal(t, domain.IdempotencyStatusDone, got.Status)
	require.Equal(t, 200, got.ResponseCode)
	require.JSONEq(t, `{"applied":1500}`, string(got.ResponseBody))
	require.True(t, got.ExpiresAt.Equal(expires), "expires_at: want %s, got %s", expires, got.ExpiresAt)
}

func TestIdempotencyRepository_PostgresFailureKeepsCode(t *testing.T) {
	repo := NewIdempotencyRepository(migratedStore(t))
	ctx := context.Background()

	_, err := repo.CreateProcessing(ctx, "debt-o1", "hash-debt", time.Time{})
	require.NoError(t, err)
	require.NoError(t, repo.MarkFailed(ctx, "debt-o1", []byte(`{"code":9,"message":"order is cancelled"}`), 9))

	got, err := repo.Get(ctx, "debt-o1")
	require.NoError(t, err)
	require.Equal(t, domain.IdempotencyStatusFailed, got.Status)
	require.Equal(t, 9, got.ResponseCode)

	require.ErrorIs(t, repo.MarkDone(ctx, "missing-key", nil, 200), domain.ErrIdempotencyKeyNotFound)
}

func TestIdempotencyRepository_PostgresConflictAndHashMismatch(t *testing.T) {
	repo := NewIdempotencyRepository(migratedStore(t))
	ctx := context.Background()
	expires := time.Now().UTC().Add(time.Hour)

	_, err := repo.CreateProcessing(ctx, "order-create-1", "hash-a", expires)
	require.NoError(t, err)

	existing, err := repo.CreateProcessing(ctx, "order-create-1", "hash-a", expires)
	require.ErrorIs(t, err, domain.ErrIdempotencyKeyAlreadyExists)
	require.Equal(t, domain.IdempotencyStatusProcessing, existing.Status)

	_, err = repo.CreateProcessing(ctx, "order-create-1", "hash-b", expires)
	require.ErrorIs(t, err, domain.ErrIdempotencyHashMismatch)
}

func TestIdempotencyRepository_PostgresDeleteExpiredInBatches(t *testing.T) {
	repo := NewIdempotencyRepository(migratedStore(t))
	ctx := context.Background()

	now := time.Now().UTC()
	for i, key := range []string{"old-1", "old-2", "old-3"} {
		_, err := repo.CreateProcessing(ctx, key, "h-"+key, now.Add(-time.Duration(5-i)*time.Minute))
		require.NoError(t, err)
	}
	_, err := repo.CreateProcessing(ctx, "live-1", "h-live", now.Add(time.Hour))
	require.NoError(t, err)

	removed, err := repo.DeleteExpired(ctx, now, 2)
	require.NoError(t, err)
	require.Equal(t, 2, removed)

	_, err = repo.Get(ctx, "old-1")
	require.ErrorIs(t, err, domain.ErrIdempotencyKeyNotFound)

	removed, err = repo.DeleteExpired(ctx, now, 0)
	require.NoError(t, err)
	require.Equal(t, 1, removed)

	_, err = repo.Get(ctx, "live-1")
	require.NoError(t, err)
}

func TestIdempotencyRepository_PostgresExpiredKeyIsReclaimed(t *testing.T) {
	repo := NewIdempotencyRepository(migratedStore(t))
	ctx := context.Background()

	now := time.Now().UTC()
	_, err := repo.CreateProcessing(ctx, "pay-reuse", "old-hash", now.Add(-time.Minute))
	require.NoError(t, err)
	require.NoError(t, repo.MarkDone(ctx, "pay-reuse", []byte(`{"old":true}`), 200))

	created, err := repo.CreateProcessing(ctx, "pay-reuse", "new-hash", now.Add(time.Hour))
	require.NoError(t, err)
	require.Equal(t, domain.IdempotencyStatusProcessing, created.Status)

	got, err := repo.Get(ctx, "pay-reuse")
	require.NoError(t, err)
	require.Equal(t, "new-hash", got.RequestHash)
	require.Empty(t, got.ResponseBody)
	require.Zero(t, got.ResponseCode)
}
