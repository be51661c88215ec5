package chain

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/mmynk/paysplit/internal/models"
)

// Simulated is an in-memory adapter that confirms every transfer after Delay.
// It backs local runs and end-to-end tests; it never touches a network.
type Simulated struct {
	Delay time.Duration

	mu        sync.Mutex
	submitted map[string]simulatedTransfer
	order     []string
}

type simulatedTransfer struct {
	instruction models.TransferInstruction
	at          time.Time
}

// NewSimulated returns a Simulated adapter with the given confirmation delay.
func NewSimulated(delay time.Duration) *Simulated {
	return &Simulated{Delay: delay, submitted: make(map[string]simulatedTransfer)}
}

// SubmitTransfer records the instruction and returns a random handle.
func (s *Simulated) SubmitTransfer(ctx context.Context, in models.TransferInstruction) (Handle, error) {
	if err := ctx.Err(); err != nil {
		return Handle{}, err
	}
	h := Handle{ID: "sim-" + uuid.New().String(), Sequence: in.Sequence}

	s.mu.Lock()
	s.submitted[h.ID] = simulatedTransfer{instruction: in, at: time.Now()}
	s.order = append(s.order, h.ID)
	s.mu.Unlock()

	slog.Debug("Simulated transfer submitted",
		"handle", h.ID,
		"recipient", in.Recipient,
		"amount", in.Amount.String(),
		"token", in.Token,
	)
	return h, nil
}

// AwaitConfirmation confirms once Delay has passed since submission.
func (s *Simulated) AwaitConfirmation(ctx context.Context, h Handle, _ int, timeout time.Duration) (Status, error) {
	s.mu.Lock()
	tr, ok := s.submitted[h.ID]
	s.mu.Unlock()
	if !ok {
		return StatusFailed, nil
	}

	wait := time.Until(tr.at.Add(s.Delay))
	if wait <= 0 {
		return StatusConfirmed, nil
	}
	if wait > timeout {
		return StatusTimedOut, nil
	}

	timer := time.NewTimer(wait)
	defer timer.Stop()
	select {
	case <-timer.C:
		return StatusConfirmed, nil
	case <-ctx.Done():
		return "", fmt.Errorf("simulated wait interrupted: %w", ctx.Err())
	}
}

// Transfers returns the submitted instructions in submission order.
func (s *Simulated) Transfers() []models.TransferInstruction {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.TransferInstruction, len(s.order))
	for i, id := range s.order {
		out[i] = s.submitted[id].instruction
	}
	return out
}
