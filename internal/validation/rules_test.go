package validation

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/mmynk/paysplit/internal/models"
	"github.com/mmynk/paysplit/internal/money"
)

const (
	addrA = "0x1111111111111111111111111111111111111111"
	addrB = "0x2222222222222222222222222222222222222222"
	addrC = "0x3333333333333333333333333333333333333333"
)

func TestValidateAddress(t *testing.T) {
	tests := []struct {
		name    string
		addr    string
		wantErr bool
	}{
		{name: "lowercase", addr: "0x52908400098527886e0f7030069857d2e4169ee7"},
		{name: "uppercase digits", addr: "0x52908400098527886E0F7030069857D2E4169EE7"},
		{name: "checksummed mixed case", addr: "0x5aAeb6053F3E94C9b9A09f33669435E7Ef1BeAed"},
		{name: "bad checksum", addr: "0x5aAeb6053F3E94C9b9A09f33669435E7Ef1BeAeD", wantErr: true},
		{name: "missing prefix", addr: "52908400098527886e0f7030069857d2e4169ee7", wantErr: true},
		{name: "too short", addr: "0x1234", wantErr: true},
		{name: "not hex", addr: "0xzz908400098527886e0f7030069857d2e4169ee7", wantErr: true},
		{name: "empty", addr: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateAddress(tt.addr)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateAddress(%q) error = %v, wantErr %v", tt.addr, err, tt.wantErr)
			}
		})
	}
}

func TestNormalizeAddress(t *testing.T) {
	got, err := NormalizeAddress("0x5aaeb6053f3e94c9b9a09f33669435e7ef1beaed")
	if err != nil {
		t.Fatalf("NormalizeAddress failed: %v", err)
	}
	if got != "0x5aAeb6053F3E94C9b9A09f33669435E7Ef1BeAed" {
		t.Errorf("NormalizeAddress = %s, want checksummed form", got)
	}
}

func TestValidateSplit(t *testing.T) {
	limits := DefaultLimits()

	tests := []struct {
		name       string
		recipients []models.Recipient
		wantFields []string
	}{
		{
			name: "valid three-way split",
			recipients: []models.Recipient{
				{Address: addrA, Share: 3334},
				{Address: addrB, Share: 3333},
				{Address: addrC, Share: 3333},
			},
		},
		{
			name: "shares sum to 9999",
			recipients: []models.Recipient{
				{Address: addrA, Share: 5000},
				{Address: addrB, Share: 4999},
			},
			wantFields: []string{"recipients.share_total"},
		},
		{
			name:       "empty",
			recipients: nil,
			wantFields: []string{"recipients"},
		},
		{
			name:       "below minimum count",
			recipients: []models.Recipient{{Address: addrA, Share: 10000}},
			wantFields: []string{"recipients"},
		},
		{
			name: "every violation reported",
			recipients: []models.Recipient{
				{Address: addrA, Share: 5000},
				{Address: strings.ToUpper(addrA[:2]) + addrA[2:], Share: 0},
				{Address: "not-an-address", Share: 100},
			},
			wantFields: []string{
				"recipients[1].address",
				"recipients[1].share",
				"recipients[2].address",
				"recipients.share_total",
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateSplit(tt.recipients, limits)
			if len(tt.wantFields) == 0 {
				if err != nil {
					t.Fatalf("ValidateSplit() unexpected error: %v", err)
				}
				return
			}
			var verr *Error
			if !errors.As(err, &verr) {
				t.Fatalf("ValidateSplit() error = %v, want *Error", err)
			}
			for _, field := range tt.wantFields {
				if !verr.Has(field) {
					t.Errorf("missing violation for %s in %v", field, verr)
				}
			}
			if len(verr.Violations) != len(tt.wantFields) {
				t.Errorf("got %d violations, want %d: %v", len(verr.Violations), len(tt.wantFields), verr)
			}
		})
	}
}

func TestValidateSplit_SumMismatchMessage(t *testing.T) {
	err := ValidateSplit([]models.Recipient{
		{Address: addrA, Share: 3333},
		{Address: addrB, Share: 3333},
		{Address: addrC, Share: 3333},
	}, DefaultLimits())
	if err == nil || !strings.Contains(err.Error(), "9999") {
		t.Errorf("expected error citing 9999, got %v", err)
	}
}

func TestValidateSplit_MinRecipientsMessage(t *testing.T) {
	limits := DefaultLimits()
	for _, recipients := range [][]models.Recipient{
		nil,
		{{Address: addrA, Share: 10000}},
	} {
		err := ValidateSplit(recipients, limits)
		want := fmt.Sprintf("got %d recipients, minimum is %d", len(recipients), limits.MinRecipients)
		if err == nil || !strings.Contains(err.Error(), want) {
			t.Errorf("ValidateSplit(%d recipients) = %v, want message %q", len(recipients), err, want)
		}
	}
}

func TestValidateSplit_MaxRecipients(t *testing.T) {
	limits := DefaultLimits()
	limits.MaxRecipients = 2

	err := ValidateSplit([]models.Recipient{
		{Address: addrA, Share: 3334},
		{Address: addrB, Share: 3333},
		{Address: addrC, Share: 3333},
	}, limits)
	var verr *Error
	if !errors.As(err, &verr) || !verr.Has("recipients") {
		t.Errorf("expected recipients count violation, got %v", err)
	}
}

func TestValidateAmount(t *testing.T) {
	limits := Limits{MinAmount: money.NewAmount(10), MaxAmount: money.NewAmount(1000)}

	tests := []struct {
		name    string
		amount  money.TokenAmount
		wantErr bool
	}{
		{name: "zero", amount: money.Zero(), wantErr: true},
		{name: "below minimum", amount: money.NewAmount(9), wantErr: true},
		{name: "minimum", amount: money.NewAmount(10)},
		{name: "maximum", amount: money.NewAmount(1000)},
		{name: "above maximum", amount: money.NewAmount(1001), wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateAmount(tt.amount, limits)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateAmount(%s) error = %v, wantErr %v", tt.amount, err, tt.wantErr)
			}
		})
	}
}

func TestValidateToken(t *testing.T) {
	for _, token := range []string{"USDC", "eth", "USDC.e", addrA} {
		if err := ValidateToken(token); err != nil {
			t.Errorf("ValidateToken(%q) unexpected error: %v", token, err)
		}
	}
	for _, token := range []string{"", "US DC", "0x12", strings.Repeat("A", 33)} {
		if err := ValidateToken(token); err == nil {
			t.Errorf("ValidateToken(%q) expected error", token)
		}
	}
}

func TestValidateEscrowRequest(t *testing.T) {
	limits := DefaultLimits()

	valid := EscrowRequest{Payer: addrA, Beneficiary: addrB, Amount: money.NewAmount(500), Token: "USDC"}
	if err := ValidateEscrowRequest(valid, limits); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	err := ValidateEscrowRequest(EscrowRequest{Payer: "bad", Amount: money.Zero()}, limits)
	var verr *Error
	if !errors.As(err, &verr) {
		t.Fatalf("expected *Error, got %v", err)
	}
	for _, field := range []string{"payer", "target", "amount", "token"} {
		if !verr.Has(field) {
			t.Errorf("missing violation for %s in %v", field, verr)
		}
	}

	both := valid
	both.SplitID = "split-1"
	if err := ValidateEscrowRequest(both, limits); err == nil {
		t.Error("expected error when both beneficiary and split_id are set")
	}

	self := valid
	self.Beneficiary = addrA
	if err := ValidateEscrowRequest(self, limits); err == nil {
		t.Error("expected error when beneficiary equals payer")
	}
}
