// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package amm

import (
	"sync"

	"github.com/holiman/uint256"
	"github.com/luxfi/geth/common"
	"github.com/luxfi/log"
	"github.com/luxfi/vm/utils/timer/mockable"
)

const (
	// MinimumLiquidity is permanently locked to the zero address on the
	// first mint, matching Uniswap V2's anti-griefing floor.
	MinimumLiquidity = 1000

	// feeNumerator/feeDenominator is the share of the input amount that
	// counts after the trading fee; the fee itself is
	// (feeDenominator-feeNumerator)/feeDenominator, i.e. 0.3%.
	feeNumerator   = 997
	feeDenominator = 1000
)

// feeToSource is the pool's view of the factory: the only call it ever
// makes back out to decide whether, and to whom, protocol fees mint.
type feeToSource interface {
	FeeTo() common.Address
}

// shareMint records one share-ledger mint so the entry point that performed
// it can burn it back if a later step fails.
type shareMint struct {
	to     common.Address
	amount *uint256.Int
}

// SwapCallback is invoked mid-swap, after the optimistic output transfer and
// before the invariant recheck, letting the recipient repay the pool in the
// same logical transaction (a flash swap). Implementations that are not
// performing a flash swap should simply do nothing and return nil.
type SwapCallback interface {
	Call(sender common.Address, amount0Out, amount1Out *uint256.Int, data []byte) error
}

// Pool is a single constant-product pair: the pool-share token plus the
// mint/burn/swap engine and the UQ112.112 price-oracle accumulators.
type Pool struct {
	*PoolToken

	self    common.Address
	factory feeToSource
	logger  log.Logger
	clock   *mockable.Clock

	token0, token1 TokenHandle
	token0Addr     common.Address
	token1Addr     common.Address

	mu sync.Mutex

	reserve0, reserve1   *uint256.Int
	blockTimestampLast   uint32
	price0CumulativeLast *uint256.Int
	price1CumulativeLast *uint256.Int
	kLast                *uint256.Int

	unlocked bool
	lockMu   sync.Mutex
}

// newPool constructs an uninitialized pool; initialize must be called once
// before any mint/burn/swap to bind it to its token pair and address.
func newPool(logger log.Logger, clock *mockable.Clock) *Pool {
	p := &Pool{
		PoolToken:            newPoolToken(),
		reserve0:             new(uint256.Int),
		reserve1:             new(uint256.Int),
		price0CumulativeLast: new(uint256.Int),
		price1CumulativeLast: new(uint256.Int),
		kLast:                new(uint256.Int),
		unlocked:             true,
		logger:               logger,
		clock:                clock,
	}
	return p
}

// initialize binds the pool to its factory, address, chain ID, and token
// pair. Called exactly once, immediately after construction, by the
// Factory — mirroring Uniswap V2's single-shot initialize() called right
// after CREATE2 deployment.
func (p *Pool) initialize(self common.Address, factory feeToSource, chainID uint64, token0Addr, token1Addr common.Address, token0, token1 TokenHandle) {
	p.self = self
	p.factory = factory
	p.token0Addr = token0Addr
	p.token1Addr = token1Addr
	p.token0 = token0
	p.token1 = token1
	p.setDomainSeparator(self, chainID)
}

func (p *Pool) now() uint64 {
	if p.clock == nil {
		return 0
	}
	return p.clock.Unix()
}

// lock acquires the reentrancy latch, returning ErrLocked if it is already
// held. Unlike a sync.Mutex, a failed acquisition never blocks: a
// synchronous reentrant call — e.g. from inside a flash-swap callback
// invoked by Swap while the latch is held — observes LOCKED and returns
// immediately instead of deadlocking the calling goroutine. Safety across
// goroutines is provided by the caller's outer serialization, not by this
// latch.
func (p *Pool) lock() error {
	p.lockMu.Lock()
	defer p.lockMu.Unlock()
	if !p.unlocked {
		return ErrLocked
	}
	p.unlocked = false
	return nil
}

func (p *Pool) unlock() {
	p.lockMu.Lock()
	defer p.lockMu.Unlock()
	p.unlocked = true
}

// Address returns the pool's own deterministic address.
func (p *Pool) Address() common.Address { return p.self }

// Token0 and Token1 return the pair's sorted token addresses.
func (p *Pool) Token0() common.Address { return p.token0Addr }
func (p *Pool) Token1() common.Address { return p.token1Addr }

// GetReserves returns the last-synced reserves and their timestamp.
func (p *Pool) GetReserves() (reserve0, reserve1 *uint256.Int, blockTimestampLast uint32) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.reserve0.Clone(), p.reserve1.Clone(), p.blockTimestampLast
}

// PriceCumulativeLast returns the oracle's running UQ112.112 accumulators.
func (p *Pool) PriceCumulativeLast() (price0, price1 *uint256.Int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.price0CumulativeLast.Clone(), p.price1CumulativeLast.Clone()
}

// _update writes new reserves, accumulating the time-weighted price oracle
// over the elapsed interval before overwriting blockTimestampLast. Must be
// called with p.mu held.
func (p *Pool) _update(balance0, balance1 *uint256.Int, nowUnix uint64) error {
	if balance0.Cmp(max112) > 0 || balance1.Cmp(max112) > 0 {
		return ErrOverflow
	}

	blockTimestamp := uint32(nowUnix % (1 << 32))
	timeElapsed := blockTimestamp - p.blockTimestampLast // wraps intentionally, mod 2^32

	if timeElapsed > 0 && !p.reserve0.IsZero() && !p.reserve1.IsZero() {
		delta0 := new(uint256.Int).Mul(uqdiv(encode(p.reserve1), p.reserve0), uint256.NewInt(uint64(timeElapsed)))
		p.price0CumulativeLast.Add(p.price0CumulativeLast, delta0) // wraps mod 2^256; consumers difference snapshots
		delta1 := new(uint256.Int).Mul(uqdiv(encode(p.reserve0), p.reserve1), uint256.NewInt(uint64(timeElapsed)))
		p.price1CumulativeLast.Add(p.price1CumulativeLast, delta1)
	}

	p.reserve0 = balance0
	p.reserve1 = balance1
	p.blockTimestampLast = blockTimestamp

	logSync(p.logger, SyncEvent{Reserve0: p.reserve0.Clone(), Reserve1: p.reserve1.Clone()})
	return nil
}

// _mintFee mints protocol-fee shares worth 1/6 of the pool's √k growth
// since the last fee mint, to the factory's current feeTo address. Must be
// called with p.mu held, before the reserves used to compute the new k are
// overwritten. The recipient and minted amount are returned so a caller
// that fails later in its entry point can burn the shares back out,
// keeping a failed Mint/Burn free of observable share-ledger effects.
func (p *Pool) _mintFee(reserve0, reserve1 *uint256.Int) (feeOn bool, feeTo common.Address, minted *uint256.Int, err error) {
	feeTo = p.factory.FeeTo()
	feeOn = feeTo != (common.Address{})

	kLast := p.kLast
	if feeOn {
		if !kLast.IsZero() {
			rootK := isqrt(new(uint256.Int).Mul(reserve0, reserve1))
			rootKLast := isqrt(kLast)
			if rootK.Cmp(rootKLast) > 0 {
				numerator, err := checkedMul(p.totalSupply, new(uint256.Int).Sub(rootK, rootKLast))
				if err != nil {
					return feeOn, feeTo, nil, err
				}
				denom := new(uint256.Int).Add(new(uint256.Int).Mul(rootK, five), rootKLast)
				liquidity := new(uint256.Int).Div(numerator, denom)
				if !liquidity.IsZero() {
					if err := p.mintShares(feeTo, liquidity); err != nil {
						return feeOn, feeTo, nil, err
					}
					minted = liquidity
				}
			}
		}
	} else if !kLast.IsZero() {
		p.kLast = new(uint256.Int)
	}
	return feeOn, feeTo, minted, nil
}

// Mint credits the caller's deposit (assumed already transferred into the
// pool by the caller before invoking Mint) with pool-share tokens, minted
// to to. The very first mint locks MinimumLiquidity shares to the zero
// address.
func (p *Pool) Mint(caller, to common.Address) (liquidity *uint256.Int, err error) {
	if err := p.lock(); err != nil {
		return nil, err
	}
	defer p.unlock()

	p.mu.Lock()
	defer p.mu.Unlock()

	reserve0, reserve1, _ := p.reserve0.Clone(), p.reserve1.Clone(), p.blockTimestampLast
	balance0, err := p.token0.BalanceOf(p.self)
	if err != nil {
		return nil, ErrTransferFailed
	}
	balance1, err := p.token1.BalanceOf(p.self)
	if err != nil {
		return nil, ErrTransferFailed
	}
	amount0, err := checkedSub(balance0, reserve0)
	if err != nil {
		return nil, err
	}
	amount1, err := checkedSub(balance1, reserve1)
	if err != nil {
		return nil, err
	}

	feeOn, feeTo, feeMinted, err := p._mintFee(reserve0, reserve1)
	if err != nil {
		return nil, err
	}

	// A failure past this point burns back everything minted so far, so a
	// failed Mint leaves the share ledger exactly as it found it.
	var minted []shareMint
	if feeMinted != nil {
		minted = append(minted, shareMint{feeTo, feeMinted})
	}
	defer func() {
		if err == nil {
			return
		}
		for i := len(minted) - 1; i >= 0; i-- {
			_ = p.burnShares(minted[i].to, minted[i].amount)
		}
	}()

	totalSupply := p.totalSupply.Clone()

	if totalSupply.IsZero() {
		var product *uint256.Int
		product, err = checkedMul(amount0, amount1)
		if err != nil {
			return nil, err
		}
		liquidity, err = checkedSub(isqrt(product), uint256.NewInt(MinimumLiquidity))
		if err != nil {
			err = ErrInsufficientLiquidityMinted
			return nil, err
		}
		if err = p.mintShares(common.Address{}, uint256.NewInt(MinimumLiquidity)); err != nil {
			return nil, err
		}
		minted = append(minted, shareMint{common.Address{}, uint256.NewInt(MinimumLiquidity)})
	} else {
		var l0, l1 *uint256.Int
		l0, err = mulDiv(amount0, totalSupply, reserve0)
		if err != nil {
			return nil, err
		}
		l1, err = mulDiv(amount1, totalSupply, reserve1)
		if err != nil {
			return nil, err
		}
		liquidity = minUint256(l0, l1)
	}
	if liquidity.IsZero() {
		err = ErrInsufficientLiquidityMinted
		return nil, err
	}

	if err = p.mintShares(to, liquidity); err != nil {
		return nil, err
	}
	minted = append(minted, shareMint{to, liquidity})

	if err = p._update(balance0, balance1, p.now()); err != nil {
		return nil, err
	}
	if feeOn {
		p.kLast = new(uint256.Int).Mul(p.reserve0, p.reserve1)
	}

	logMint(p.logger, MintEvent{Sender: caller, Amount0: amount0, Amount1: amount1})
	return liquidity, nil
}

// Burn redeems the pool-share balance the caller has already transferred
// into the pool (its own balanceOf(self)) for a pro-rata share of both
// reserves, sent to to.
func (p *Pool) Burn(caller, to common.Address) (amount0, amount1 *uint256.Int, err error) {
	if err := p.lock(); err != nil {
		return nil, nil, err
	}
	defer p.unlock()

	p.mu.Lock()
	defer p.mu.Unlock()

	reserve0, reserve1 := p.reserve0.Clone(), p.reserve1.Clone()
	balance0, err := p.token0.BalanceOf(p.self)
	if err != nil {
		return nil, nil, ErrTransferFailed
	}
	balance1, err := p.token1.BalanceOf(p.self)
	if err != nil {
		return nil, nil, ErrTransferFailed
	}
	liquidity := p.BalanceOf(p.self)

	feeOn, feeTo, feeMinted, err := p._mintFee(reserve0, reserve1)
	if err != nil {
		return nil, nil, err
	}

	// A failure past this point restores the share ledger: the fee mint is
	// burned back and, once the redeemed shares have been burned, they are
	// re-minted to the pool's own balance. Reversing the outbound token
	// transfers is the transaction envelope's job, not the pool's — the
	// TokenHandle contract has no way to pull funds back.
	sharesBurned := false
	defer func() {
		if err == nil {
			return
		}
		if sharesBurned {
			_ = p.mintShares(p.self, liquidity)
		}
		if feeMinted != nil {
			_ = p.burnShares(feeTo, feeMinted)
		}
	}()

	totalSupply := p.totalSupply.Clone()

	amount0, err = mulDiv(liquidity, balance0, totalSupply)
	if err != nil {
		return nil, nil, err
	}
	amount1, err = mulDiv(liquidity, balance1, totalSupply)
	if err != nil {
		return nil, nil, err
	}
	if amount0.IsZero() || amount1.IsZero() {
		err = ErrInsufficientLiquidityBurned
		return nil, nil, err
	}

	if err = p.burnShares(p.self, liquidity); err != nil {
		return nil, nil, err
	}
	sharesBurned = true

	if err = safeTransfer(p.token0, to, amount0); err != nil {
		return nil, nil, err
	}
	if err = safeTransfer(p.token1, to, amount1); err != nil {
		return nil, nil, err
	}

	if balance0, err = p.token0.BalanceOf(p.self); err != nil {
		err = ErrTransferFailed
		return nil, nil, err
	}
	if balance1, err = p.token1.BalanceOf(p.self); err != nil {
		err = ErrTransferFailed
		return nil, nil, err
	}

	if err = p._update(balance0, balance1, p.now()); err != nil {
		return nil, nil, err
	}
	if feeOn {
		p.kLast = new(uint256.Int).Mul(p.reserve0, p.reserve1)
	}

	logBurn(p.logger, BurnEvent{Sender: caller, To: to, Amount0: amount0, Amount1: amount1})
	return amount0, amount1, nil
}

// Swap sends amount0Out of token0 and/or amount1Out of token1 to to,
// optimistically — before the corresponding input has necessarily arrived —
// then, if data is non-empty and callback is non-nil, invokes callback
// (enabling a flash swap) before
// re-reading balances and rechecking the fee-adjusted constant-product
// invariant against the reserves captured at entry.
func (p *Pool) Swap(caller common.Address, amount0Out, amount1Out *uint256.Int, to common.Address, data []byte, callback SwapCallback) error {
	if err := p.lock(); err != nil {
		return err
	}
	defer p.unlock()

	p.mu.Lock()
	defer p.mu.Unlock()

	if amount0Out.IsZero() && amount1Out.IsZero() {
		return ErrInsufficientOutputAmount
	}

	reserve0, reserve1 := p.reserve0.Clone(), p.reserve1.Clone()
	if amount0Out.Cmp(reserve0) >= 0 || amount1Out.Cmp(reserve1) >= 0 {
		return ErrInsufficientLiquidity
	}

	if to == p.token0Addr || to == p.token1Addr {
		return ErrInvalidTo
	}

	if !amount0Out.IsZero() {
		if err := safeTransfer(p.token0, to, amount0Out); err != nil {
			return err
		}
	}
	if !amount1Out.IsZero() {
		if err := safeTransfer(p.token1, to, amount1Out); err != nil {
			return err
		}
	}
	if len(data) > 0 && callback != nil {
		if err := callback.Call(caller, amount0Out, amount1Out, data); err != nil {
			return err
		}
	}

	balance0, err := p.token0.BalanceOf(p.self)
	if err != nil {
		return ErrTransferFailed
	}
	balance1, err := p.token1.BalanceOf(p.self)
	if err != nil {
		return ErrTransferFailed
	}

	expected0 := new(uint256.Int).Sub(reserve0, amount0Out)
	var amount0In *uint256.Int
	if balance0.Cmp(expected0) > 0 {
		amount0In = new(uint256.Int).Sub(balance0, expected0)
	} else {
		amount0In = new(uint256.Int)
	}
	expected1 := new(uint256.Int).Sub(reserve1, amount1Out)
	var amount1In *uint256.Int
	if balance1.Cmp(expected1) > 0 {
		amount1In = new(uint256.Int).Sub(balance1, expected1)
	} else {
		amount1In = new(uint256.Int)
	}
	if amount0In.IsZero() && amount1In.IsZero() {
		return ErrInsufficientInputAmount
	}

	balance0Adjusted, err := checkedSub(new(uint256.Int).Mul(balance0, uint256.NewInt(feeDenominator)), new(uint256.Int).Mul(amount0In, uint256.NewInt(feeDenominator-feeNumerator)))
	if err != nil {
		return err
	}
	balance1Adjusted, err := checkedSub(new(uint256.Int).Mul(balance1, uint256.NewInt(feeDenominator)), new(uint256.Int).Mul(amount1In, uint256.NewInt(feeDenominator-feeNumerator)))
	if err != nil {
		return err
	}

	lhs, err := checkedMul(balance0Adjusted, balance1Adjusted)
	if err != nil {
		return err
	}
	rhs, err := checkedMul(new(uint256.Int).Mul(reserve0, reserve1), uint256.NewInt(feeDenominator*feeDenominator))
	if err != nil {
		return err
	}
	if lhs.Cmp(rhs) < 0 {
		return ErrK
	}

	if err := p._update(balance0, balance1, p.now()); err != nil {
		return err
	}

	logSwap(p.logger, SwapEvent{
		Sender: caller, To: to,
		Amount0In: amount0In, Amount1In: amount1In,
		Amount0Out: amount0Out, Amount1Out: amount1Out,
	})
	return nil
}

// Skim forces the pool's balances to match its tracked reserves, sending
// any surplus (e.g. from a fee-on-transfer token, or a stray direct
// transfer) to to.
func (p *Pool) Skim(to common.Address) error {
	if err := p.lock(); err != nil {
		return err
	}
	defer p.unlock()

	p.mu.Lock()
	defer p.mu.Unlock()

	balance0, err := p.token0.BalanceOf(p.self)
	if err != nil {
		return ErrTransferFailed
	}
	balance1, err := p.token1.BalanceOf(p.self)
	if err != nil {
		return ErrTransferFailed
	}
	surplus0, err := checkedSub(balance0, p.reserve0)
	if err != nil {
		return err
	}
	surplus1, err := checkedSub(balance1, p.reserve1)
	if err != nil {
		return err
	}
	if !surplus0.IsZero() {
		if err := safeTransfer(p.token0, to, surplus0); err != nil {
			return err
		}
	}
	if !surplus1.IsZero() {
		if err := safeTransfer(p.token1, to, surplus1); err != nil {
			return err
		}
	}
	return nil
}

// Sync forces the pool's tracked reserves to match its actual balances
// without moving any tokens.
func (p *Pool) Sync() error {
	if err := p.lock(); err != nil {
		return err
	}
	defer p.unlock()

	p.mu.Lock()
	defer p.mu.Unlock()

	balance0, err := p.token0.BalanceOf(p.self)
	if err != nil {
		return ErrTransferFailed
	}
	balance1, err := p.token1.BalanceOf(p.self)
	if err != nil {
		return ErrTransferFailed
	}
	return p._update(balance0, balance1, p.now())
}
