package escrow

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mmynk/paysplit/internal/models"
)

var allStates = []models.EscrowState{
	models.EscrowCreated,
	models.EscrowFunded,
	models.EscrowReleased,
	models.EscrowRefunded,
	models.EscrowDisputed,
	models.EscrowResolved,
}

func TestCanTransition_EdgeSet(t *testing.T) {
	allowed := map[[2]models.EscrowState]bool{
		{models.EscrowCreated, models.EscrowFunded}:    true,
		{models.EscrowFunded, models.EscrowReleased}:   true,
		{models.EscrowFunded, models.EscrowRefunded}:   true,
		{models.EscrowFunded, models.EscrowDisputed}:   true,
		{models.EscrowDisputed, models.EscrowReleased}: true,
		{models.EscrowDisputed, models.EscrowRefunded}: true,
		{models.EscrowDisputed, models.EscrowResolved}: true,
	}

	for _, from := range allStates {
		for _, to := range allStates {
			want := allowed[[2]models.EscrowState{from, to}]
			assert.Equal(t, want, CanTransition(from, to), "%s -> %s", from, to)
		}
	}
}

func TestIsTerminal(t *testing.T) {
	assert.True(t, IsTerminal(models.EscrowReleased))
	assert.True(t, IsTerminal(models.EscrowRefunded))
	assert.True(t, IsTerminal(models.EscrowResolved))
	assert.False(t, IsTerminal(models.EscrowFunded))
	assert.False(t, IsTerminal(models.EscrowDisputed))
}

func TestTransition(t *testing.T) {
	esc := &models.Escrow{ID: "e1", State: models.EscrowCreated, Version: 1}

	funded, err := Transition(esc, models.EscrowFunded, 1, 100)
	require.NoError(t, err)
	assert.Equal(t, models.EscrowFunded, funded.State)
	assert.Equal(t, uint64(2), funded.Version)
	assert.Equal(t, int64(100), funded.FundedAt)
	assert.Zero(t, funded.ResolvedAt)

	// input untouched
	assert.Equal(t, models.EscrowCreated, esc.State)
	assert.Equal(t, uint64(1), esc.Version)

	released, err := Transition(funded, models.EscrowReleased, 2, 200)
	require.NoError(t, err)
	assert.Equal(t, uint64(3), released.Version)
	assert.Equal(t, int64(200), released.ResolvedAt)
	assert.Equal(t, int64(100), released.FundedAt)
}

func TestTransition_Invalid(t *testing.T) {
	esc := &models.Escrow{ID: "e1", State: models.EscrowReleased, Version: 3}

	_, err := Transition(esc, models.EscrowRefunded, 3, 0)
	var invalid *InvalidTransitionError
	require.True(t, errors.As(err, &invalid))
	assert.Equal(t, models.EscrowReleased, invalid.From)
	assert.Equal(t, models.EscrowRefunded, invalid.To)
	assert.Contains(t, err.Error(), "released")
	assert.Contains(t, err.Error(), "refunded")
}

func TestTransition_StaleVersion(t *testing.T) {
	esc := &models.Escrow{ID: "e1", State: models.EscrowFunded, Version: 5}

	_, err := Transition(esc, models.EscrowReleased, 4, 0)
	var conflict *StateConflictError
	require.True(t, errors.As(err, &conflict))
	assert.Equal(t, uint64(4), conflict.Expected)
	assert.Equal(t, uint64(5), conflict.Actual)

	_, err = Transition(esc, models.EscrowReleased, 5, 0)
	assert.NoError(t, err)
}

func TestGuard_EdgeBeforeVersion(t *testing.T) {
	esc := &models.Escrow{ID: "e1", State: models.EscrowCreated, Version: 1}

	err := Guard(esc, models.EscrowReleased, 99)
	var invalid *InvalidTransitionError
	assert.True(t, errors.As(err, &invalid))
}

func TestTargetState(t *testing.T) {
	assert.Equal(t, models.EscrowReleased, TargetState(models.ActionRelease))
	assert.Equal(t, models.EscrowRefunded, TargetState(models.ActionRefund))
}

func TestIsSettled(t *testing.T) {
	assert.True(t, IsSettled(models.EscrowReleased, models.ActionRelease))
	assert.True(t, IsSettled(models.EscrowRefunded, models.ActionRefund))
	assert.False(t, IsSettled(models.EscrowReleased, models.ActionRefund))
	assert.False(t, IsSettled(models.EscrowFunded, models.ActionRelease))
}
