// Package models defines the core domain models for paysplit.
//
// # Models
//
//   - Split: a named, ordered set of recipients with fixed basis-point shares
//   - Recipient: one address of a split and its share
//   - Escrow: an amount held for a beneficiary or a split until released or refunded
//   - TransferInstruction: one transfer handed to the chain adapter
//   - SettlementRecord: the append-only audit record of a release or refund attempt
//   - User: an account identified by its wallet address
//
// # Design Principles
//
// 1. **Exact amounts**: every amount is a money.TokenAmount in minor units
// 2. **IDs, not pointers**: relationships are expressed with ID strings
// 3. **Versioned mutation**: Split and Escrow carry a Version used for optimistic concurrency
// 4. **Append-only audit**: settlement records are written once and never updated
package models
