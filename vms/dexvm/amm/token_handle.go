// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package amm

import (
	"sync"

	"github.com/holiman/uint256"
	"github.com/luxfi/geth/common"
)

// TokenHandle is the pool's view of an external fungible token: the only
// two calls the core ever makes outward. Transfer's bool return is this
// core's Go-native stand-in for "the call succeeded and returned either no
// data or an explicit true", the usual ambiguity for ERC-20-shaped tokens
// that return nothing on success.
type TokenHandle interface {
	BalanceOf(holder common.Address) (*uint256.Int, error)
	Transfer(to common.Address, value *uint256.Int) (ok bool, err error)
}

// safeTransfer invokes t.Transfer and maps any failure — call error or a
// false return — to ErrTransferFailed.
func safeTransfer(t TokenHandle, to common.Address, value *uint256.Int) error {
	ok, err := t.Transfer(to, value)
	if err != nil {
		return ErrTransferFailed
	}
	if !ok {
		return ErrTransferFailed
	}
	return nil
}

// LedgerToken is a minimal in-memory TokenHandle used by tests; the VM binds
// pools to the state package's ledger through state.TokenHandle instead.
// The pool engine only ever sees the TokenHandle contract above. It is
// bound to owner the same way state.accountHandle is: owner is whichever
// address Transfer moves funds out of, which must be the Pool's own
// address, since every transfer the pool engine issues moves tokens out of
// its own holdings.
type LedgerToken struct {
	mu       sync.Mutex
	owner    common.Address
	balances map[common.Address]*uint256.Int
}

// NewLedgerToken creates an empty ledger-backed token whose Transfer debits
// owner.
func NewLedgerToken(owner common.Address) *LedgerToken {
	return &LedgerToken{owner: owner, balances: make(map[common.Address]*uint256.Int)}
}

func (l *LedgerToken) BalanceOf(holder common.Address) (*uint256.Int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if bal, ok := l.balances[holder]; ok {
		return bal.Clone(), nil
	}
	return new(uint256.Int), nil
}

// Transfer debits owner and credits to, failing if owner's balance is
// insufficient — the same contract state.accountHandle.Transfer implements.
func (l *LedgerToken) Transfer(to common.Address, value *uint256.Int) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	ownerBal, ok := l.balances[l.owner]
	if !ok || ownerBal.Cmp(value) < 0 {
		return false, nil
	}
	l.balances[l.owner] = new(uint256.Int).Sub(ownerBal, value)

	toBal, ok := l.balances[to]
	if !ok {
		toBal = new(uint256.Int)
	}
	l.balances[to] = new(uint256.Int).Add(toBal, value)
	return true, nil
}

// Credit adds value to holder's balance without moving it from anywhere —
// used to model an external party pushing tokens into the pool prior to
// Mint/Swap.
func (l *LedgerToken) Credit(holder common.Address, value *uint256.Int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	cur, ok := l.balances[holder]
	if !ok {
		cur = new(uint256.Int)
	}
	l.balances[holder] = new(uint256.Int).Add(cur, value)
}

// Debit removes value from holder's balance, failing if insufficient.
func (l *LedgerToken) Debit(holder common.Address, value *uint256.Int) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	cur, ok := l.balances[holder]
	if !ok || cur.Cmp(value) < 0 {
		return ErrTransferFailed
	}
	l.balances[holder] = new(uint256.Int).Sub(cur, value)
	return nil
}
