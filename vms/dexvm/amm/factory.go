// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package amm

import (
	"bytes"
	"sync"

	"github.com/luxfi/geth/common"
	"github.com/luxfi/geth/crypto"
	"github.com/luxfi/log"
	"github.com/luxfi/vm/utils/timer/mockable"
)

// Factory deterministically creates and indexes Pools for every distinct
// token pair, and governs the protocol-fee recipient and its setter, the
// way Uniswap V2's UniswapV2Factory does.
type Factory struct {
	self common.Address

	mu          sync.RWMutex
	feeTo       common.Address
	feeToSetter common.Address
	pairs       map[common.Address]map[common.Address]*Pool
	allPairs    []*Pool

	chainID uint64
	logger  log.Logger
	clock   *mockable.Clock
}

// NewFactory creates a Factory whose own address is self, with feeToSetter
// as the initial (and, until it reassigns itself, only) fee governor.
func NewFactory(self common.Address, feeToSetter common.Address, chainID uint64, logger log.Logger, clock *mockable.Clock) *Factory {
	return &Factory{
		self:        self,
		feeToSetter: feeToSetter,
		pairs:       make(map[common.Address]map[common.Address]*Pool),
		chainID:     chainID,
		logger:      logger,
		clock:       clock,
	}
}

// FeeTo returns the current protocol-fee recipient; the zero address means
// protocol fees are disabled. Pool._mintFee calls this on every mint/burn.
func (f *Factory) FeeTo() common.Address {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.feeTo
}

// FeeToSetter returns the address permitted to change FeeTo and itself.
func (f *Factory) FeeToSetter() common.Address {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.feeToSetter
}

// AllPairsLength returns the number of pools ever created.
func (f *Factory) AllPairsLength() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return len(f.allPairs)
}

// AllPairs returns the pool created at the given index, in creation order.
func (f *Factory) AllPairs(index int) (*Pool, bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	if index < 0 || index >= len(f.allPairs) {
		return nil, false
	}
	return f.allPairs[index], true
}

// GetPair returns the existing pool for the unordered pair (tokenA,
// tokenB), if any.
func (f *Factory) GetPair(tokenA, tokenB common.Address) (*Pool, bool) {
	token0, token1 := sortTokens(tokenA, tokenB)
	f.mu.RLock()
	defer f.mu.RUnlock()
	inner, ok := f.pairs[token0]
	if !ok {
		return nil, false
	}
	pool, ok := inner[token1]
	return pool, ok
}

// sortTokens returns (tokenA, tokenB) reordered so the first is strictly
// byte-less than the second, matching Uniswap's canonical token0/token1
// ordering.
func sortTokens(tokenA, tokenB common.Address) (token0, token1 common.Address) {
	if bytes.Compare(tokenA.Bytes(), tokenB.Bytes()) < 0 {
		return tokenA, tokenB
	}
	return tokenB, tokenA
}

// derivePoolAddress computes the deterministic address a pool for
// (token0, token1) would have, mirroring Uniswap V2's CREATE2 salt of
// keccak256(token0, token1) against the factory's own address.
func derivePoolAddress(factorySelf, token0, token1 common.Address) common.Address {
	salt := crypto.Keccak256Hash(token0.Bytes(), token1.Bytes())
	digest := crypto.Keccak256Hash(factorySelf.Bytes(), salt.Bytes())
	return common.BytesToAddress(digest.Bytes()[12:])
}

// ComputePairAddress returns the address a pool for the unordered pair
// (tokenA, tokenB) has, or will have, computed the same way CreatePair
// derives it — without requiring the pair to exist yet. Callers that must
// bind a TokenHandle to the pool's own address before the pool exists (the
// chain's native-token ledger does, since a TokenHandle's Transfer debits
// its bound owner) use this to learn that address ahead of CreatePair.
func (f *Factory) ComputePairAddress(tokenA, tokenB common.Address) common.Address {
	token0, token1 := sortTokens(tokenA, tokenB)
	return derivePoolAddress(f.self, token0, token1)
}

// CreatePair creates and registers a new Pool for the unordered pair
// (tokenA, tokenB), bound to handleA/handleB as its two TokenHandles (which
// must correspond 1:1 with tokenA/tokenB respectively, in the order
// supplied — the factory reorders its own bookkeeping but passes the
// handles through to whichever of token0/token1 they belong to).
func (f *Factory) CreatePair(tokenA, tokenB common.Address, handleA, handleB TokenHandle) (*Pool, error) {
	if tokenA == tokenB {
		return nil, ErrIdenticalAddresses
	}
	if tokenA == (common.Address{}) || tokenB == (common.Address{}) {
		return nil, ErrZeroAddress
	}

	token0, token1 := sortTokens(tokenA, tokenB)
	handle0, handle1 := handleA, handleB
	if token0 != tokenA {
		handle0, handle1 = handleB, handleA
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if inner, ok := f.pairs[token0]; ok {
		if _, ok := inner[token1]; ok {
			return nil, ErrPairExists
		}
	}

	poolAddr := derivePoolAddress(f.self, token0, token1)
	pool := newPool(f.logger, f.clock)
	pool.initialize(poolAddr, f, f.chainID, token0, token1, handle0, handle1)

	if f.pairs[token0] == nil {
		f.pairs[token0] = make(map[common.Address]*Pool)
	}
	f.pairs[token0][token1] = pool
	if f.pairs[token1] == nil {
		f.pairs[token1] = make(map[common.Address]*Pool)
	}
	f.pairs[token1][token0] = pool
	f.allPairs = append(f.allPairs, pool)

	logPairCreated(f.logger, PairCreatedEvent{
		Token0: token0, Token1: token1, Pool: poolAddr, PairIndex: len(f.allPairs),
	})
	return pool, nil
}

// SetFeeTo changes the protocol-fee recipient. Only callable by the
// current feeToSetter.
func (f *Factory) SetFeeTo(caller, feeTo common.Address) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if caller != f.feeToSetter {
		return ErrForbidden
	}
	f.feeTo = feeTo
	return nil
}

// SetFeeToSetter transfers fee-governance to a new address. Only callable
// by the current feeToSetter.
func (f *Factory) SetFeeToSetter(caller, feeToSetter common.Address) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if caller != f.feeToSetter {
		return ErrForbidden
	}
	f.feeToSetter = feeToSetter
	return nil
}
