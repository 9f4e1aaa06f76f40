// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package txs defines the wire-encoded operations accepted by the DEX VM's
// block processor: pair creation, liquidity mint/burn, swaps, the
// housekeeping entry points (skim/sync), fee governance, and permit.
package txs

import (
	"crypto/sha256"
	"errors"

	"github.com/holiman/uint256"
	"github.com/luxfi/geth/common"
	"github.com/luxfi/ids"
)

// Type identifies which AMM operation a Tx carries.
type Type uint8

const (
	TypeCreatePair Type = iota
	TypeMint
	TypeBurn
	TypeSwap
	TypeSkim
	TypeSync
	TypeSetFeeTo
	TypeSetFeeToSetter
	TypePermit
)

var ErrUnknownType = errors.New("txs: unknown transaction type")

// Tx is the single wire-encoded transaction type the DEX VM processes. It is
// a tagged union rather than one struct per operation: Type selects which
// fields are meaningful, keeping one linearcodec registration and one nonce
// sequence for every operation, the way a single per-account nonce counter
// only makes sense against a single transaction type.
//
// Addresses and 256-bit amounts are carried as fixed-size byte arrays
// instead of common.Address / uint256.Int directly: both of those types
// keep their internals unexported, so linearcodec's reflection-based
// encoder cannot walk them. Callers convert at the boundary with the
// CallerAddress()/ToAddress()/PoolAddress()/TokenAddresses() accessors and
// the *Uint256()/Set*() helpers for the 256-bit amounts.
type Tx struct {
	Type  Type   `serialize:"true" json:"type"`
	Nonce uint64 `serialize:"true" json:"nonce"`

	Caller [20]byte `serialize:"true" json:"caller"`

	// CreatePair
	TokenA [20]byte `serialize:"true" json:"tokenA"`
	TokenB [20]byte `serialize:"true" json:"tokenB"`

	// Mint / Burn / Swap / Skim / Sync target pool.
	Pool [20]byte `serialize:"true" json:"pool"`
	To   [20]byte `serialize:"true" json:"to"`

	// Swap
	Amount0Out [32]byte `serialize:"true" json:"amount0Out"`
	Amount1Out [32]byte `serialize:"true" json:"amount1Out"`
	CallData   []byte   `serialize:"true" json:"callData"`

	// SetFeeTo / SetFeeToSetter
	FeeTo       [20]byte `serialize:"true" json:"feeTo"`
	FeeToSetter [20]byte `serialize:"true" json:"feeToSetter"`

	// Permit
	Owner    [20]byte `serialize:"true" json:"owner"`
	Spender  [20]byte `serialize:"true" json:"spender"`
	Value    [32]byte `serialize:"true" json:"value"`
	Deadline uint64   `serialize:"true" json:"deadline"`
	Sig      []byte   `serialize:"true" json:"sig"`

	id    ids.ID
	bytes []byte
}

// ID returns the transaction's content-addressed identifier, computing and
// caching it on first use.
func (tx *Tx) ID() ids.ID {
	if tx.id == ids.Empty {
		tx.id = ids.ID(sha256.Sum256(tx.Bytes()))
	}
	return tx.id
}

// Bytes returns the tx's canonical wire encoding, computing and caching it
// on first use.
func (tx *Tx) Bytes() []byte {
	if tx.bytes != nil {
		return tx.bytes
	}
	b, err := Codec.Marshal(codecVersion, tx)
	if err != nil {
		return nil
	}
	tx.bytes = b
	return b
}

// Parse decodes a Tx from its wire encoding.
func Parse(data []byte) (*Tx, error) {
	tx := &Tx{}
	if _, err := Codec.Unmarshal(data, tx); err != nil {
		return nil, err
	}
	tx.bytes = data
	return tx, nil
}

// CallerAddress returns Caller as a common.Address.
func (tx *Tx) CallerAddress() common.Address { return common.Address(tx.Caller) }

// ToAddress returns To as a common.Address.
func (tx *Tx) ToAddress() common.Address { return common.Address(tx.To) }

// PoolAddress returns Pool as a common.Address.
func (tx *Tx) PoolAddress() common.Address { return common.Address(tx.Pool) }

// TokenAddresses returns TokenA/TokenB as common.Address.
func (tx *Tx) TokenAddresses() (common.Address, common.Address) {
	return common.Address(tx.TokenA), common.Address(tx.TokenB)
}

// Amount0OutUint256 returns Amount0Out as a *uint256.Int.
func (tx *Tx) Amount0OutUint256() *uint256.Int {
	return new(uint256.Int).SetBytes32(tx.Amount0Out[:])
}

// Amount1OutUint256 returns Amount1Out as a *uint256.Int.
func (tx *Tx) Amount1OutUint256() *uint256.Int {
	return new(uint256.Int).SetBytes32(tx.Amount1Out[:])
}

// ValueUint256 returns Value (the permit amount) as a *uint256.Int.
func (tx *Tx) ValueUint256() *uint256.Int {
	return new(uint256.Int).SetBytes32(tx.Value[:])
}

// SetAmount0Out stores v into Amount0Out.
func (tx *Tx) SetAmount0Out(v *uint256.Int) { tx.Amount0Out = v.Bytes32() }

// SetAmount1Out stores v into Amount1Out.
func (tx *Tx) SetAmount1Out(v *uint256.Int) { tx.Amount1Out = v.Bytes32() }

// SetValue stores v into Value.
func (tx *Tx) SetValue(v *uint256.Int) { tx.Value = v.Bytes32() }
