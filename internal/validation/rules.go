// Package validation holds the stateless rules applied to splits, addresses
// and escrow requests. Every check returns nil or an *Error that lists all
// violations it found.
package validation

import (
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	"github.com/mmynk/paysplit/internal/models"
	"github.com/mmynk/paysplit/internal/money"
)

// TotalBasisPoints is the share total every split must reach.
const TotalBasisPoints = money.BasisPointsDenominator

const maxTokenLength = 32

// Limits are the configured bounds applied by the rules.
type Limits struct {
	MinRecipients int
	MaxRecipients int
	MinAmount     money.TokenAmount
	MaxAmount     money.TokenAmount
}

// DefaultLimits returns the limits used when the configuration sets none.
func DefaultLimits() Limits {
	return Limits{
		MinRecipients: 2,
		MaxRecipients: 50,
		MinAmount:     money.NewAmount(1),
		MaxAmount:     money.MustParse("1000000000000000000000000000"), // 1e27
	}
}

// ValidateAddress checks that addr is a 0x-prefixed 20-byte hex address.
// Mixed-case input must carry a valid EIP-55 checksum.
func ValidateAddress(addr string) error {
	if _, err := NormalizeAddress(addr); err != nil {
		return err
	}
	return nil
}

// NormalizeAddress validates addr and returns its checksummed form.
func NormalizeAddress(addr string) (string, error) {
	if addr == "" {
		return "", NewError("", "address is required")
	}
	if !strings.HasPrefix(addr, "0x") && !strings.HasPrefix(addr, "0X") {
		return "", NewError("", "address %q must start with 0x", addr)
	}
	if !common.IsHexAddress(addr) {
		return "", NewError("", "address %q is not a 20-byte hex address", addr)
	}
	checksummed := common.HexToAddress(addr).Hex()
	digits := addr[2:]
	if digits != strings.ToLower(digits) && digits != strings.ToUpper(digits) && addr != checksummed {
		return "", NewError("", "address %q has an invalid checksum", addr)
	}
	return checksummed, nil
}

// ValidateSplit checks the recipient count bounds, every address, address
// uniqueness and that the shares sum to exactly 10000 basis points.
func ValidateSplit(recipients []models.Recipient, limits Limits) error {
	var c collector

	if minimum := max(limits.MinRecipients, 1); len(recipients) < minimum {
		c.add("recipients", "got %d recipients, minimum is %d", len(recipients), minimum)
	}
	if limits.MaxRecipients > 0 && len(recipients) > limits.MaxRecipients {
		c.add("recipients", "got %d recipients, maximum is %d", len(recipients), limits.MaxRecipients)
	}

	seen := make(map[string]int, len(recipients))
	var total uint64
	for i, r := range recipients {
		field := "recipients[" + strconv.Itoa(i) + "]"
		normalized, err := NormalizeAddress(r.Address)
		if err != nil {
			c.merge(field+".address", err)
		} else if first, dup := seen[normalized]; dup {
			c.add(field+".address", "duplicates recipients[%d]", first)
		} else {
			seen[normalized] = i
		}
		if r.Share == 0 {
			c.add(field+".share", "share must be positive")
		}
		total += uint64(r.Share)
	}
	if len(recipients) > 0 && total != TotalBasisPoints {
		c.add("recipients.share_total", "shares sum to %d basis points, want %d", total, TotalBasisPoints)
	}

	return c.err()
}

// ValidateShares checks only the share total. The calculator uses it so that
// single-recipient distributions (a plain beneficiary) skip the count bounds.
func ValidateShares(recipients []models.Recipient) error {
	var c collector
	if len(recipients) == 0 {
		c.add("recipients", "at least one recipient is required")
		return c.err()
	}
	var total uint64
	for _, r := range recipients {
		total += uint64(r.Share)
	}
	if total != TotalBasisPoints {
		c.add("recipients.share_total", "shares sum to %d basis points, want %d", total, TotalBasisPoints)
	}
	return c.err()
}

// ValidateAmount checks that amount lies within the configured bounds.
func ValidateAmount(amount money.TokenAmount, limits Limits) error {
	var c collector
	if amount.IsZero() {
		c.add("amount", "amount must be positive")
	} else if amount.Cmp(limits.MinAmount) < 0 {
		c.add("amount", "amount %s is below the minimum %s", amount, limits.MinAmount)
	}
	if !limits.MaxAmount.IsZero() && amount.Cmp(limits.MaxAmount) > 0 {
		c.add("amount", "amount %s exceeds the maximum %s", amount, limits.MaxAmount)
	}
	return c.err()
}

// ValidateToken checks a token identifier: a symbol or a contract address.
func ValidateToken(token string) error {
	var c collector
	switch {
	case token == "":
		c.add("token", "token is required")
	case strings.HasPrefix(token, "0x"):
		c.merge("token", ValidateAddress(token))
	case len(token) > maxTokenLength:
		c.add("token", "token symbol longer than %d characters", maxTokenLength)
	default:
		for _, r := range token {
			if !(r >= 'A' && r <= 'Z' || r >= 'a' && r <= 'z' || r >= '0' && r <= '9' || r == '.' || r == '-') {
				c.add("token", "token symbol %q contains %q", token, r)
				break
			}
		}
	}
	return c.err()
}

// EscrowRequest is the caller-supplied definition of a new escrow.
type EscrowRequest struct {
	Payer       string
	Beneficiary string
	SplitID     string
	Amount      money.TokenAmount
	Token       string
}

// ValidateEscrowRequest checks every field of an escrow request. Exactly one
// of Beneficiary and SplitID must be set.
func ValidateEscrowRequest(req EscrowRequest, limits Limits) error {
	var c collector
	c.merge("payer", ValidateAddress(req.Payer))
	switch {
	case req.Beneficiary == "" && req.SplitID == "":
		c.add("target", "either beneficiary or split_id is required")
	case req.Beneficiary != "" && req.SplitID != "":
		c.add("target", "beneficiary and split_id are mutually exclusive")
	case req.Beneficiary != "":
		c.merge("beneficiary", ValidateAddress(req.Beneficiary))
		if strings.EqualFold(req.Beneficiary, req.Payer) {
			c.add("beneficiary", "beneficiary must differ from payer")
		}
	}
	c.violations = append(c.violations, asViolations(ValidateAmount(req.Amount, limits))...)
	c.violations = append(c.violations, asViolations(ValidateToken(req.Token))...)
	return c.err()
}

func asViolations(err error) []Violation {
	if verr, ok := err.(*Error); ok {
		return verr.Violations
	}
	return nil
}
