// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package amm

import (
	"github.com/holiman/uint256"
	"github.com/luxfi/geth/common"
	"github.com/luxfi/log"
)

// TransferEvent mirrors the ERC-20 Transfer log.
type TransferEvent struct {
	From, To common.Address
	Value    *uint256.Int
}

// ApprovalEvent mirrors the ERC-20 Approval log.
type ApprovalEvent struct {
	Owner, Spender common.Address
	Value          *uint256.Int
}

// MintEvent is emitted at the end of a successful Pool.Mint.
type MintEvent struct {
	Sender           common.Address
	Amount0, Amount1 *uint256.Int
}

// BurnEvent is emitted at the end of a successful Pool.Burn.
type BurnEvent struct {
	Sender, To       common.Address
	Amount0, Amount1 *uint256.Int
}

// SwapEvent is emitted at the end of a successful Pool.Swap.
type SwapEvent struct {
	Sender, To                                   common.Address
	Amount0In, Amount1In, Amount0Out, Amount1Out *uint256.Int
}

// SyncEvent is emitted whenever reserves are written.
type SyncEvent struct {
	Reserve0, Reserve1 *uint256.Int
}

// PairCreatedEvent is emitted by the Factory on pair creation.
type PairCreatedEvent struct {
	Token0, Token1 common.Address
	Pool           common.Address
	PairIndex      int
}

func logSync(logger log.Logger, e SyncEvent) {
	if logger == nil {
		return
	}
	logger.Debug("Sync", "reserve0", e.Reserve0.String(), "reserve1", e.Reserve1.String())
}

func logMint(logger log.Logger, e MintEvent) {
	if logger == nil {
		return
	}
	logger.Debug("Mint", "sender", e.Sender, "amount0", e.Amount0.String(), "amount1", e.Amount1.String())
}

func logBurn(logger log.Logger, e BurnEvent) {
	if logger == nil {
		return
	}
	logger.Debug("Burn", "sender", e.Sender, "to", e.To, "amount0", e.Amount0.String(), "amount1", e.Amount1.String())
}

func logSwap(logger log.Logger, e SwapEvent) {
	if logger == nil {
		return
	}
	logger.Debug("Swap",
		"sender", e.Sender, "to", e.To,
		"amount0In", e.Amount0In.String(), "amount1In", e.Amount1In.String(),
		"amount0Out", e.Amount0Out.String(), "amount1Out", e.Amount1Out.String(),
	)
}

func logPairCreated(logger log.Logger, e PairCreatedEvent) {
	if logger == nil {
		return
	}
	logger.Info("PairCreated", "token0", e.Token0, "token1", e.Token1, "pool", e.Pool, "index", e.PairIndex)
}
