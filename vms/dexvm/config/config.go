// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package config defines configuration types for the DEX VM.
package config

import (
	"time"
)

// Config contains configuration parameters for the DEX VM.
type Config struct {
	// IndexTransactions enables transaction indexing
	IndexTransactions bool `json:"indexTransactions"`
	// ChecksumsEnabled enables merkle checksum verification
	ChecksumsEnabled bool `json:"checksumsEnabled"`

	// ProtocolFeeEnabled mirrors the Uniswap V2 governance toggle: when
	// false, the VM rejects SetFeeTo transactions that name a non-zero
	// recipient, so FeeTo set through transactions stays the zero address
	// and _mintFee mints no protocol shares. _mintFee itself reads only the
	// factory's FeeTo, not this field.
	ProtocolFeeEnabled bool `json:"protocolFeeEnabled"`
	// MinimumLiquidity records the amount of pool shares locked to the zero
	// address on a pool's first mint. The pool engine uses its own
	// amm.MinimumLiquidity constant (1000) and does not read this field.
	MinimumLiquidity uint64 `json:"minimumLiquidity"`

	// BlockInterval is the target spacing between built blocks. The VM
	// reports it in its startup log; block building does not read it.
	BlockInterval  time.Duration `json:"blockInterval"`
	MaxBlockSize   uint64        `json:"maxBlockSize"`
	MaxTxsPerBlock uint32        `json:"maxTxsPerBlock"`
}

// DefaultConfig returns the default configuration for the DEX VM.
func DefaultConfig() Config {
	return Config{
		IndexTransactions: true,
		ChecksumsEnabled:  true,

		ProtocolFeeEnabled: false,
		MinimumLiquidity:   1000,

		BlockInterval:  100 * time.Millisecond,
		MaxBlockSize:   2 * 1024 * 1024, // 2MB
		MaxTxsPerBlock: 10000,
	}
}
