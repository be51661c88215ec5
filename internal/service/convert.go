package service

import (
	"github.com/mmynk/paysplit/internal/models"
	"github.com/mmynk/paysplit/internal/money"
	"github.com/mmynk/paysplit/internal/validation"
	"github.com/mmynk/paysplit/pkg/api"
)

func parseAmount(field, s string) (money.TokenAmount, error) {
	if s == "" {
		return money.Zero(), validation.NewError(field, "is required")
	}
	amount, err := money.Parse(s)
	if err != nil {
		return money.Zero(), validation.NewError(field, "%v", err)
	}
	return amount, nil
}

func fromAPIRecipients(in []*api.Recipient) []models.Recipient {
	out := make([]models.Recipient, 0, len(in))
	for _, r := range in {
		if r == nil {
			continue
		}
		out = append(out, models.Recipient{Address: r.Address, Share: r.Share})
	}
	return out
}

func toAPIUser(u *models.User) *api.User {
	return &api.User{
		ID:          u.ID,
		Address:     u.Address,
		DisplayName: u.DisplayName,
		CreatedAt:   u.CreatedAt,
	}
}

func toAPISplit(s *models.Split) *api.Split {
	recipients := make([]*api.Recipient, len(s.Recipients))
	for i, r := range s.Recipients {
		recipients[i] = &api.Recipient{Address: r.Address, Share: r.Share}
	}
	return &api.Split{
		ID:             s.ID,
		Owner:          s.Owner,
		Name:           s.Name,
		Recipients:     recipients,
		Status:         string(s.Status),
		TotalProcessed: s.TotalProcessed.String(),
		Version:        s.Version,
		CreatedAt:      s.CreatedAt,
		UpdatedAt:      s.UpdatedAt,
	}
}

func toAPITransfers(in []models.TransferInstruction) []*api.Transfer {
	out := make([]*api.Transfer, len(in))
	for i, t := range in {
		out[i] = &api.Transfer{
			Sequence:  t.Sequence,
			Recipient: t.Recipient,
			Amount:    t.Amount.String(),
			Token:     t.Token,
		}
	}
	return out
}

func toAPIEscrow(e *models.Escrow) *api.Escrow {
	return &api.Escrow{
		ID:          e.ID,
		Payer:       e.Payer,
		Beneficiary: e.Beneficiary,
		SplitID:     e.SplitID,
		Amount:      e.Amount.String(),
		Token:       e.Token,
		State:       string(e.State),
		Version:     e.Version,
		CreatedAt:   e.CreatedAt,
		FundedAt:    e.FundedAt,
		ResolvedAt:  e.ResolvedAt,
	}
}

func toAPIEscrows(in []*models.Escrow) []*api.Escrow {
	out := make([]*api.Escrow, len(in))
	for i, e := range in {
		out[i] = toAPIEscrow(e)
	}
	return out
}

func toAPISettlement(r *models.SettlementRecord) *api.Settlement {
	return &api.Settlement{
		ID:                 r.ID,
		EscrowID:           r.EscrowID,
		SplitID:            r.SplitID,
		Action:             string(r.Action),
		IdempotencyKey:     r.IdempotencyKey,
		Attempt:            r.Attempt,
		Transfers:          toAPITransfers(r.Instructions),
		Gross:              r.Gross.String(),
		FeeWithheld:        r.FeeWithheld.String(),
		GasBufferWithheld:  r.GasBufferWithheld.String(),
		Distributable:      r.Distributable.String(),
		Outcome:            string(r.Outcome),
		FailureReason:      r.FailureReason,
		TransferHandles:    r.TransferHandles,
		ConfirmedSequences: r.ConfirmedSequences,
		CreatedAt:          r.CreatedAt,
	}
}
