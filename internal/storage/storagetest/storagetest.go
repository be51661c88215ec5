// Package storagetest holds behaviour tests shared by every storage.Store
// backend.
package storagetest

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mmynk/paysplit/internal/models"
	"github.com/mmynk/paysplit/internal/money"
	"github.com/mmynk/paysplit/internal/storage"
)

const (
	Alice = "0x1111111111111111111111111111111111111111"
	Bob   = "0x2222222222222222222222222222222222222222"
	Carol = "0x3333333333333333333333333333333333333333"
)

// Run exercises a backend. newStore must return an empty store; it is
// called once per subtest.
func Run(t *testing.T, newStore func(t *testing.T) storage.Store) {
	t.Run("users", func(t *testing.T) { testUsers(t, newStore(t)) })
	t.Run("splits", func(t *testing.T) { testSplits(t, newStore(t)) })
	t.Run("escrows", func(t *testing.T) { testEscrows(t, newStore(t)) })
	t.Run("settlements", func(t *testing.T) { testSettlements(t, newStore(t)) })
}

// NewSplit returns an active split over Bob and Carol.
func NewSplit(owner string) *models.Split {
	return &models.Split{
		Owner: owner,
		Name:  "team",
		Recipients: []models.Recipient{
			{Address: Bob, Share: 6000},
			{Address: Carol, Share: 4000},
		},
		Status: models.SplitActive,
	}
}

func testUsers(t *testing.T, store storage.Store) {
	ctx := context.Background()

	user := models.NewUser(Alice, "Alice", "hash")
	require.NoError(t, store.CreateUser(ctx, user))

	byAddr, err := store.GetUserByAddress(ctx, Alice)
	require.NoError(t, err)
	assert.Equal(t, user.ID, byAddr.ID)
	assert.Equal(t, "Alice", byAddr.DisplayName)

	byID, err := store.GetUserByID(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, Alice, byID.Address)

	dup := models.NewUser(Alice, "Other", "hash")
	err = store.CreateUser(ctx, dup)
	assert.ErrorIs(t, err, storage.ErrAlreadyExists)

	_, err = store.GetUserByAddress(ctx, Bob)
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func testSplits(t *testing.T, store storage.Store) {
	ctx := context.Background()

	split := NewSplit(Alice)
	require.NoError(t, store.CreateSplit(ctx, split))
	require.NotEmpty(t, split.ID)
	assert.Equal(t, uint64(1), split.Version)
	assert.NotZero(t, split.CreatedAt)

	got, err := store.GetSplit(ctx, split.ID)
	require.NoError(t, err)
	assert.Equal(t, split.Recipients, got.Recipients)
	assert.Equal(t, models.SplitActive, got.Status)
	assert.True(t, got.TotalProcessed.IsZero())

	got.Status = models.SplitInactive
	got.Version = 2
	require.NoError(t, store.UpdateSplit(ctx, got, 1))

	stale := got.Clone()
	stale.Version = 3
	err = store.UpdateSplit(ctx, stale, 1)
	var conflict *storage.VersionConflictError
	require.ErrorAs(t, err, &conflict)
	assert.Equal(t, uint64(2), conflict.Actual)

	_, err = store.GetSplit(ctx, "missing")
	var nf *storage.NotFoundError
	require.ErrorAs(t, err, &nf)
	assert.Equal(t, "split", nf.Entity)
}

func testEscrows(t *testing.T, store storage.Store) {
	ctx := context.Background()

	split := NewSplit(Carol)
	require.NoError(t, store.CreateSplit(ctx, split))

	first := &models.Escrow{Payer: Alice, Beneficiary: Bob, Amount: money.NewAmount(100), Token: "USDC", CreatedAt: 100}
	second := &models.Escrow{Payer: Bob, SplitID: split.ID, Amount: money.MustParse("1000000000000000000000"), Token: "USDC", CreatedAt: 200}
	third := &models.Escrow{Payer: Carol, Beneficiary: Alice, Amount: money.NewAmount(5), Token: "DAI", CreatedAt: 300}
	for _, esc := range []*models.Escrow{first, second, third} {
		require.NoError(t, store.CreateEscrow(ctx, esc))
	}
	assert.Equal(t, models.EscrowCreated, first.State)
	assert.Equal(t, uint64(1), first.Version)

	got, err := store.GetEscrow(ctx, second.ID)
	require.NoError(t, err)
	assert.Equal(t, split.ID, got.SplitID)
	assert.Empty(t, got.Beneficiary)
	assert.True(t, got.Amount.Equal(second.Amount))

	mine, err := store.ListEscrowsByUser(ctx, Alice)
	require.NoError(t, err)
	require.Len(t, mine, 2)
	assert.Equal(t, third.ID, mine[0].ID, "newest first")
	assert.Equal(t, first.ID, mine[1].ID)

	none, err := store.ListEscrowsByUser(ctx, "0x4444444444444444444444444444444444444444")
	require.NoError(t, err)
	assert.Empty(t, none)

	funded := first.Clone()
	funded.State = models.EscrowFunded
	funded.Version = 2
	funded.FundedAt = 150
	require.NoError(t, store.UpdateEscrow(ctx, funded, 1))

	err = store.UpdateEscrow(ctx, funded, 1)
	assert.ErrorIs(t, err, storage.ErrVersionConflict)

	got, err = store.GetEscrow(ctx, first.ID)
	require.NoError(t, err)
	assert.Equal(t, models.EscrowFunded, got.State)
	assert.Equal(t, int64(150), got.FundedAt)

	missing := funded.Clone()
	missing.ID = "missing"
	assert.ErrorIs(t, store.UpdateEscrow(ctx, missing, 2), storage.ErrNotFound)
}

func testSettlements(t *testing.T, store storage.Store) {
	ctx := context.Background()

	split := NewSplit(Alice)
	require.NoError(t, store.CreateSplit(ctx, split))

	esc := &models.Escrow{Payer: Alice, SplitID: split.ID, Amount: money.NewAmount(500), Token: "USDC",
		State: models.EscrowFunded, Version: 2}
	require.NoError(t, store.CreateEscrow(ctx, esc))

	key := models.IdempotencyKey(esc.ID, esc.Version, models.ActionRelease)
	instructions := []models.TransferInstruction{
		{Sequence: 0, Recipient: Bob, Amount: money.NewAmount(291), Token: "USDC"},
		{Sequence: 1, Recipient: Carol, Amount: money.NewAmount(194), Token: "USDC"},
	}
	failed := &models.SettlementRecord{
		EscrowID:          esc.ID,
		SplitID:           split.ID,
		Action:            models.ActionRelease,
		IdempotencyKey:    key,
		Attempt:           1,
		Instructions:      instructions,
		Gross:             money.NewAmount(500),
		FeeWithheld:       money.NewAmount(5),
		GasBufferWithheld: money.NewAmount(10),
		Distributable:     money.NewAmount(485),
		Outcome:           models.OutcomeFailed,
		FailureReason:     "timed out",
		CreatedAt:         10,
	}
	require.NoError(t, store.CreateSettlement(ctx, failed))
	require.NotEmpty(t, failed.ID)

	_, err := store.GetCompletedSettlement(ctx, esc.ID)
	assert.ErrorIs(t, err, storage.ErrNotFound)

	latest, err := store.GetLatestSettlementByKey(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, failed.ID, latest.ID)
	assert.Equal(t, "timed out", latest.FailureReason)
	require.Len(t, latest.Instructions, 2)
	assert.True(t, latest.Instructions[0].Amount.Equal(money.NewAmount(291)))

	dupAttempt := *failed
	dupAttempt.ID = ""
	assert.ErrorIs(t, store.CreateSettlement(ctx, &dupAttempt), storage.ErrAlreadyExists)

	completed := *failed
	completed.ID = ""
	completed.Attempt = 2
	completed.Outcome = models.OutcomeCompleted
	completed.FailureReason = ""
	completed.TransferHandles = []string{"tx-0", "tx-1"}
	completed.CreatedAt = 20

	released := esc.Clone()
	released.State = models.EscrowReleased
	released.Version = 3
	released.ResolvedAt = 20

	// Stale version leaves nothing behind.
	err = store.CommitSettlement(ctx, &completed, released, 1)
	require.ErrorIs(t, err, storage.ErrVersionConflict)
	_, err = store.GetCompletedSettlement(ctx, esc.ID)
	assert.ErrorIs(t, err, storage.ErrNotFound)

	completed.ID = ""
	require.NoError(t, store.CommitSettlement(ctx, &completed, released, 2))

	got, err := store.GetCompletedSettlement(ctx, esc.ID)
	require.NoError(t, err)
	assert.Equal(t, completed.ID, got.ID)
	assert.Equal(t, []string{"tx-0", "tx-1"}, got.TransferHandles)
	assert.True(t, got.Distributable.Equal(money.NewAmount(485)))

	byID, err := store.GetSettlement(ctx, completed.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, byID.Attempt)

	escNow, err := store.GetEscrow(ctx, esc.ID)
	require.NoError(t, err)
	assert.Equal(t, models.EscrowReleased, escNow.State)
	assert.Equal(t, uint64(3), escNow.Version)

	splitNow, err := store.GetSplit(ctx, split.ID)
	require.NoError(t, err)
	assert.True(t, splitNow.TotalProcessed.Equal(money.NewAmount(485)))
	assert.Equal(t, uint64(2), splitNow.Version)

	all, err := store.ListSettlementsByEscrow(ctx, esc.ID)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, models.OutcomeFailed, all[0].Outcome)
	assert.Equal(t, models.OutcomeCompleted, all[1].Outcome)

	_, err = store.GetSettlement(ctx, "missing")
	assert.True(t, errors.Is(err, storage.ErrNotFound))
}
