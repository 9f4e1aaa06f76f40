// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package dexvm implements an automated market maker exchange VM for the
// Lux blockchain network.
//
// The DEX VM provides:
//   - Constant-product AMM liquidity pools (pair creation, mint, burn, swap)
//   - A pool-share token with EIP-712 permit support
//   - UQ112.112 fixed-point price oracle accumulators
//   - Protocol fee collection on liquidity growth
//
// Architecture:
//   - Uses the Lux consensus engine for finality
//   - A functional VM (VM) holds pool state; ChainVM adapts it to
//     block.ChainVM for integration with the chains manager
package dexvm

import (
	"github.com/luxfi/log"
	luxvm "github.com/luxfi/vm"
	"github.com/luxfi/vm/vms/dexvm/config"
)

var (
	// VMID is the unique identifier for the DEX VM
	VMID = [32]byte{'d', 'e', 'x', 'v', 'm'}

	_ luxvm.Factory = (*Factory)(nil)
)

// Factory creates new DEX VM instances.
type Factory struct {
	config.Config
}

// New implements luxvm.Factory. It creates a new DEX ChainVM instance with
// the factory's configuration. The ChainVM wrapper implements block.ChainVM
// for integration with the chains manager.
func (f *Factory) New(logger log.Logger) (interface{}, error) {
	// Create the ChainVM wrapper which implements block.ChainVM
	chainVM := NewChainVM(logger)
	// Apply factory config to inner VM
	chainVM.inner.Config = f.Config
	return chainVM, nil
}
