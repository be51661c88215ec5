package api

// Amounts are base-unit integers encoded as decimal strings.

type User struct {
	ID          string `json:"id"`
	Address     string `json:"address"`
	DisplayName string `json:"display_name"`
	CreatedAt   int64  `json:"created_at"`
}

type Recipient struct {
	Address string `json:"address"`
	Share   uint32 `json:"share"` // basis points
}

type Split struct {
	ID             string       `json:"id"`
	Owner          string       `json:"owner"`
	Name           string       `json:"name,omitempty"`
	Recipients     []*Recipient `json:"recipients"`
	Status         string       `json:"status"`
	TotalProcessed string       `json:"total_processed"`
	Version        uint64       `json:"version"`
	CreatedAt      int64        `json:"created_at"`
	UpdatedAt      int64        `json:"updated_at"`
}

type Transfer struct {
	Sequence  int    `json:"sequence"`
	Recipient string `json:"recipient"`
	Amount    string `json:"amount"`
	Token     string `json:"token"`
}

type Escrow struct {
	ID          string `json:"id"`
	Payer       string `json:"payer"`
	Beneficiary string `json:"beneficiary,omitempty"`
	SplitID     string `json:"split_id,omitempty"`
	Amount      string `json:"amount"`
	Token       string `json:"token"`
	State       string `json:"state"`
	Version     uint64 `json:"version"`
	CreatedAt   int64  `json:"created_at"`
	FundedAt    int64  `json:"funded_at,omitempty"`
	ResolvedAt  int64  `json:"resolved_at,omitempty"`
}

type Settlement struct {
	ID                 string      `json:"id"`
	EscrowID           string      `json:"escrow_id"`
	SplitID            string      `json:"split_id,omitempty"`
	Action             string      `json:"action"`
	IdempotencyKey     string      `json:"idempotency_key"`
	Attempt            int         `json:"attempt"`
	Transfers          []*Transfer `json:"transfers"`
	Gross              string      `json:"gross"`
	FeeWithheld        string      `json:"fee_withheld"`
	GasBufferWithheld  string      `json:"gas_buffer_withheld"`
	Distributable      string      `json:"distributable"`
	Outcome            string      `json:"outcome"`
	FailureReason      string      `json:"failure_reason,omitempty"`
	TransferHandles    []string    `json:"transfer_handles,omitempty"`
	ConfirmedSequences []int       `json:"confirmed_sequences,omitempty"`
	CreatedAt          int64       `json:"created_at"`
}

// Auth

type RegisterRequest struct {
	Address     string `json:"address"`
	DisplayName string `json:"display_name"`
	Password    string `json:"password"`
}

type RegisterResponse struct {
	User  *User  `json:"user"`
	Token string `json:"token"`
}

type LoginRequest struct {
	Address  string `json:"address"`
	Password string `json:"password"`
}

type LoginResponse struct {
	User  *User  `json:"user"`
	Token string `json:"token"`
}

// Splits

type CreateSplitRequest struct {
	Name       string       `json:"name,omitempty"`
	Recipients []*Recipient `json:"recipients"`
}

type CreateSplitResponse struct {
	Split *Split `json:"split"`
}

type GetSplitRequest struct {
	SplitID string `json:"split_id"`
}

type GetSplitResponse struct {
	Split *Split `json:"split"`
}

type DeactivateSplitRequest struct {
	SplitID         string `json:"split_id"`
	ExpectedVersion uint64 `json:"expected_version"`
}

type DeactivateSplitResponse struct {
	Split *Split `json:"split"`
}

// PreviewDistributionRequest names a stored split or lists recipients inline.
type PreviewDistributionRequest struct {
	SplitID    string       `json:"split_id,omitempty"`
	Recipients []*Recipient `json:"recipients,omitempty"`
	Amount     string       `json:"amount"`
	Token      string       `json:"token"`
}

type PreviewDistributionResponse struct {
	Gross         string      `json:"gross"`
	Fee           string      `json:"fee"`
	GasBuffer     string      `json:"gas_buffer"`
	Distributable string      `json:"distributable"`
	Transfers     []*Transfer `json:"transfers"`
}

// Escrows

// CreateEscrowRequest sets exactly one of Beneficiary and SplitID. The payer
// is the caller.
type CreateEscrowRequest struct {
	Beneficiary string `json:"beneficiary,omitempty"`
	SplitID     string `json:"split_id,omitempty"`
	Amount      string `json:"amount"`
	Token       string `json:"token"`
}

type CreateEscrowResponse struct {
	Escrow *Escrow `json:"escrow"`
}

type FundEscrowRequest struct {
	EscrowID        string `json:"escrow_id"`
	ExpectedVersion uint64 `json:"expected_version"`
}

type FundEscrowResponse struct {
	Escrow *Escrow `json:"escrow"`
}

type GetEscrowRequest struct {
	EscrowID string `json:"escrow_id"`
}

type GetEscrowResponse struct {
	Escrow      *Escrow       `json:"escrow"`
	Settlements []*Settlement `json:"settlements,omitempty"`
}

type ListMyEscrowsRequest struct{}

type ListMyEscrowsResponse struct {
	Escrows []*Escrow `json:"escrows"`
}

type ReleaseEscrowRequest struct {
	EscrowID        string `json:"escrow_id"`
	ExpectedVersion uint64 `json:"expected_version"`
}

// ReleaseEscrowResponse carries the settlement record. A failed outcome leaves
// the escrow in its prior state; the same request may be retried.
type ReleaseEscrowResponse struct {
	Settlement *Settlement `json:"settlement"`
	Escrow     *Escrow     `json:"escrow"`
}

type RefundEscrowRequest struct {
	EscrowID        string `json:"escrow_id"`
	ExpectedVersion uint64 `json:"expected_version"`
}

type RefundEscrowResponse struct {
	Settlement *Settlement `json:"settlement"`
	Escrow     *Escrow     `json:"escrow"`
}

type DisputeEscrowRequest struct {
	EscrowID        string `json:"escrow_id"`
	ExpectedVersion uint64 `json:"expected_version"`
}

type DisputeEscrowResponse struct {
	Escrow *Escrow `json:"escrow"`
}

type ResolveEscrowRequest struct {
	EscrowID        string `json:"escrow_id"`
	ExpectedVersion uint64 `json:"expected_version"`
}

type ResolveEscrowResponse struct {
	Escrow *Escrow `json:"escrow"`
}

type GetSettlementRequest struct {
	SettlementID string `json:"settlement_id"`
}

type GetSettlementResponse struct {
	Settlement *Settlement `json:"settlement"`
}
