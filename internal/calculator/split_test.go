package calculator

import (
	"errors"
	"fmt"
	"math/rand"
	"reflect"
	"testing"

	"github.com/mmynk/paysplit/internal/models"
	"github.com/mmynk/paysplit/internal/money"
	"github.com/mmynk/paysplit/internal/validation"
)

func addr(n int) string {
	return fmt.Sprintf("0x%040x", n)
}

func recipients(shares ...uint32) []models.Recipient {
	out := make([]models.Recipient, len(shares))
	for i, s := range shares {
		out[i] = models.Recipient{Address: addr(i + 1), Share: s}
	}
	return out
}

func amounts(instructions []models.TransferInstruction) []string {
	out := make([]string, len(instructions))
	for i, in := range instructions {
		out[i] = in.Amount.String()
	}
	return out
}

func TestDistribute(t *testing.T) {
	tests := []struct {
		name       string
		amount     uint64
		recipients []models.Recipient
		want       []string
		wantErr    bool
	}{
		{
			name:       "largest remainder gets the extra unit",
			amount:     100,
			recipients: recipients(3334, 3333, 3333),
			want:       []string{"34", "33", "33"},
		},
		{
			name:       "even split",
			amount:     100,
			recipients: recipients(5000, 5000),
			want:       []string{"50", "50"},
		},
		{
			name:       "ties broken by lowest index",
			amount:     10,
			recipients: recipients(3333, 3333, 3334),
			// raw 3,3,3; fractions 3330,3330,3340 → remainder 1 to index 2
			want: []string{"3", "3", "4"},
		},
		{
			name:       "equal fractions favour earlier recipients",
			amount:     2,
			recipients: recipients(2500, 2500, 2500, 2500),
			// raw 0 each, fraction 5000 each → indices 0 and 1 get a unit
			want: []string{"1", "1", "0", "0"},
		},
		{
			name:       "single recipient",
			amount:     485,
			recipients: recipients(10000),
			want:       []string{"485"},
		},
		{
			name:       "zero amount",
			amount:     0,
			recipients: recipients(7000, 3000),
			want:       []string{"0", "0"},
		},
		{
			name:       "shares sum to 9999",
			amount:     100,
			recipients: recipients(5000, 4999),
			wantErr:    true,
		},
		{
			name:       "no recipients",
			amount:     100,
			recipients: nil,
			wantErr:    true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Distribute(money.NewAmount(tt.amount), "USDC", tt.recipients)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Distribute() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				var verr *validation.Error
				if !errors.As(err, &verr) {
					t.Errorf("expected *validation.Error, got %T", err)
				}
				return
			}
			if !reflect.DeepEqual(amounts(got), tt.want) {
				t.Errorf("Distribute() = %v, want %v", amounts(got), tt.want)
			}
			for i, in := range got {
				if in.Sequence != i {
					t.Errorf("instruction %d has sequence %d", i, in.Sequence)
				}
				if in.Recipient != tt.recipients[i].Address {
					t.Errorf("instruction %d recipient = %s, want %s", i, in.Recipient, tt.recipients[i].Address)
				}
				if in.Token != "USDC" {
					t.Errorf("instruction %d token = %s", i, in.Token)
				}
			}
		})
	}
}

// randomShares returns n positive shares summing to 10000.
func randomShares(rng *rand.Rand, n int) []uint32 {
	shares := make([]uint32, n)
	remaining := uint32(10000)
	for i := 0; i < n-1; i++ {
		maxShare := remaining - uint32(n-1-i)
		shares[i] = 1 + uint32(rng.Intn(int(maxShare)))
		if shares[i] > maxShare {
			shares[i] = maxShare
		}
		remaining -= shares[i]
	}
	shares[n-1] = remaining
	return shares
}

func TestDistribute_ConservesAmount(t *testing.T) {
	rng := rand.New(rand.NewSource(42))

	for iter := 0; iter < 500; iter++ {
		n := 1 + rng.Intn(50)
		rs := recipients(randomShares(rng, n)...)
		amount := money.NewAmount(uint64(n) + uint64(rng.Int63n(1_000_000_000)))

		got, err := Distribute(amount, "ETH", rs)
		if err != nil {
			t.Fatalf("iteration %d: Distribute failed: %v", iter, err)
		}
		total, err := Total(got)
		if err != nil {
			t.Fatalf("iteration %d: Total failed: %v", iter, err)
		}
		if !total.Equal(amount) {
			t.Fatalf("iteration %d: sum %s != amount %s (shares %v)", iter, total, amount, rs)
		}
	}
}

func TestDistribute_LargeAmount(t *testing.T) {
	amount := money.MustParse("1000000000000000000000001") // 1e24 + 1 wei
	got, err := Distribute(amount, "ETH", recipients(3334, 3333, 3333))
	if err != nil {
		t.Fatalf("Distribute failed: %v", err)
	}
	total, _ := Total(got)
	if !total.Equal(amount) {
		t.Errorf("sum %s != amount %s", total, amount)
	}
}

func TestDistribute_Deterministic(t *testing.T) {
	rs := recipients(1234, 4321, 2222, 2223)
	first, err := Distribute(money.NewAmount(999_999), "USDC", rs)
	if err != nil {
		t.Fatalf("Distribute failed: %v", err)
	}
	for i := 0; i < 20; i++ {
		again, err := Distribute(money.NewAmount(999_999), "USDC", rs)
		if err != nil {
			t.Fatalf("Distribute failed: %v", err)
		}
		if !reflect.DeepEqual(first, again) {
			t.Fatalf("run %d differs: %v vs %v", i, amounts(first), amounts(again))
		}
	}
}
