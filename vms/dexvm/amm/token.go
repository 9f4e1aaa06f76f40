// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package amm

import (
	"sync"

	"github.com/holiman/uint256"
	"github.com/luxfi/geth/common"
	"github.com/luxfi/geth/crypto"
)

const (
	tokenName     = "Lux AMM LP"
	tokenSymbol   = "LUX-LP"
	tokenDecimals = 18
	tokenVersion  = "1"
)

// maxUint256 is treated as an "infinite" allowance: spend does not decrement it.
var maxUint256 = new(uint256.Int).Not(new(uint256.Int))

var (
	eip712DomainTypeHash = crypto.Keccak256Hash([]byte("EIP712Domain(string name,string version,uint256 chainId,address verifyingContract)"))
	permitTypeHash       = crypto.Keccak256Hash([]byte("Permit(address owner,address spender,uint256 value,uint256 nonce,uint256 deadline)"))
)

// PoolToken is the pool-share (LP) token: an 18-decimal fungible ledger with
// mint/burn entry points reserved for the owning Pool and EIP-712
// approval-by-signature.
type PoolToken struct {
	mu sync.Mutex

	totalSupply *uint256.Int
	balances    map[common.Address]*uint256.Int
	allowances  map[common.Address]map[common.Address]*uint256.Int
	nonces      map[common.Address]uint64

	domainSeparator common.Hash
}

func newPoolToken() *PoolToken {
	return &PoolToken{
		totalSupply: new(uint256.Int),
		balances:    make(map[common.Address]*uint256.Int),
		allowances:  make(map[common.Address]map[common.Address]*uint256.Int),
		nonces:      make(map[common.Address]uint64),
	}
}

// setDomainSeparator finalizes the EIP-712 domain once the owning Pool
// knows its own address; called exactly once from Pool.initialize.
func (t *PoolToken) setDomainSeparator(verifyingContract common.Address, chainID uint64) {
	nameHash := crypto.Keccak256Hash([]byte(tokenName))
	versionHash := crypto.Keccak256Hash([]byte(tokenVersion))
	chainIDBytes := uint256.NewInt(chainID).Bytes32()
	t.domainSeparator = crypto.Keccak256Hash(
		eip712DomainTypeHash.Bytes(),
		nameHash.Bytes(),
		versionHash.Bytes(),
		chainIDBytes[:],
		common.LeftPadBytes(verifyingContract.Bytes(), 32),
	)
}

func (t *PoolToken) balanceOfLocked(a common.Address) *uint256.Int {
	if b, ok := t.balances[a]; ok {
		return b
	}
	return new(uint256.Int)
}

// Name, Symbol, and Decimals describe the pool-share token. They are fixed
// for every pool.
func (t *PoolToken) Name() string    { return tokenName }
func (t *PoolToken) Symbol() string  { return tokenSymbol }
func (t *PoolToken) Decimals() uint8 { return tokenDecimals }

// DomainSeparator returns the EIP-712 domain this token's permits are
// signed under.
func (t *PoolToken) DomainSeparator() common.Hash {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.domainSeparator
}

// BalanceOf returns a's pool-share balance.
func (t *PoolToken) BalanceOf(a common.Address) *uint256.Int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.balanceOfLocked(a).Clone()
}

// TotalSupply returns the current pool-share supply.
func (t *PoolToken) TotalSupply() *uint256.Int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.totalSupply.Clone()
}

// Allowance returns the amount spender may still transfer on owner's behalf.
func (t *PoolToken) Allowance(owner, spender common.Address) *uint256.Int {
	t.mu.Lock()
	defer t.mu.Unlock()
	if m, ok := t.allowances[owner]; ok {
		if v, ok := m[spender]; ok {
			return v.Clone()
		}
	}
	return new(uint256.Int)
}

// Nonce returns owner's current permit nonce.
func (t *PoolToken) Nonce(owner common.Address) uint64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.nonces[owner]
}

// mintShares issues amount new shares to to, checked against total-supply
// overflow. Only called internally by the Pool.
func (t *PoolToken) mintShares(to common.Address, amount *uint256.Int) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	newSupply, err := checkedAdd(t.totalSupply, amount)
	if err != nil {
		return err
	}
	newBalance, err := checkedAdd(t.balanceOfLocked(to), amount)
	if err != nil {
		return err
	}
	t.totalSupply = newSupply
	t.balances[to] = newBalance
	return nil
}

// burnShares redeems amount shares from from's balance. Only called
// internally by the Pool: Burn burns from the pool's own balance, and the
// failure paths of Mint and Burn burn back shares they minted to others.
func (t *PoolToken) burnShares(from common.Address, amount *uint256.Int) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	newBalance, err := checkedSub(t.balanceOfLocked(from), amount)
	if err != nil {
		return err
	}
	newSupply, err := checkedSub(t.totalSupply, amount)
	if err != nil {
		return err
	}
	t.balances[from] = newBalance
	t.totalSupply = newSupply
	return nil
}

// Transfer moves amount pool-shares from caller to to.
func (t *PoolToken) Transfer(caller, to common.Address, amount *uint256.Int) error {
	return t.transfer(caller, to, amount)
}

func (t *PoolToken) transfer(from, to common.Address, amount *uint256.Int) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	newFrom, err := checkedSub(t.balanceOfLocked(from), amount)
	if err != nil {
		return err
	}
	newTo, err := checkedAdd(t.balanceOfLocked(to), amount)
	if err != nil {
		return err
	}
	t.balances[from] = newFrom
	t.balances[to] = newTo
	return nil
}

// Approve sets spender's allowance over caller's shares.
func (t *PoolToken) Approve(caller, spender common.Address, amount *uint256.Int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.allowances[caller] == nil {
		t.allowances[caller] = make(map[common.Address]*uint256.Int)
	}
	t.allowances[caller][spender] = amount.Clone()
}

// TransferFrom moves amount pool-shares from from to to on caller's
// authority, decrementing the allowance unless it is the infinite sentinel.
func (t *PoolToken) TransferFrom(caller, from, to common.Address, amount *uint256.Int) error {
	t.mu.Lock()
	var current *uint256.Int
	if m, ok := t.allowances[from]; ok {
		if v, ok := m[caller]; ok {
			current = v
		}
	}
	if current == nil {
		current = new(uint256.Int)
	}
	infinite := current.Cmp(maxUint256) == 0
	if !infinite {
		reduced, err := checkedSub(current, amount)
		if err != nil {
			t.mu.Unlock()
			return err
		}
		if t.allowances[from] == nil {
			t.allowances[from] = make(map[common.Address]*uint256.Int)
		}
		t.allowances[from][caller] = reduced
	}
	t.mu.Unlock()

	return t.transfer(from, to, amount)
}

// Permit grants spender an allowance over owner's shares via an EIP-712
// signature over (owner, spender, value, nonce, deadline), recovering the
// signer with secp256k1 ECDSA recovery. sig is the 65-byte (r, s, v)
// signature.
func (t *PoolToken) Permit(owner, spender common.Address, value *uint256.Int, deadline uint64, nowUnix uint64, sig []byte) error {
	if deadline < nowUnix {
		return ErrExpired
	}

	t.mu.Lock()
	nonce := t.nonces[owner]
	domainSeparator := t.domainSeparator
	t.mu.Unlock()

	structHash := crypto.Keccak256Hash(
		permitTypeHash.Bytes(),
		common.LeftPadBytes(owner.Bytes(), 32),
		common.LeftPadBytes(spender.Bytes(), 32),
		valueBytes32(value),
		valueBytes32(uint256.NewInt(nonce)),
		valueBytes32(uint256.NewInt(deadline)),
	)
	digest := crypto.Keccak256Hash([]byte{0x19, 0x01}, domainSeparator.Bytes(), structHash.Bytes())

	pub, err := crypto.SigToPub(digest.Bytes(), sig)
	if err != nil {
		return ErrInvalidSignature
	}
	recovered := crypto.PubkeyToAddress(*pub)
	if recovered == (common.Address{}) || recovered != owner {
		return ErrInvalidSignature
	}

	t.mu.Lock()
	t.nonces[owner] = nonce + 1
	t.mu.Unlock()

	t.Approve(owner, spender, value)
	return nil
}

func valueBytes32(v *uint256.Int) []byte {
	b := v.Bytes32()
	return b[:]
}
