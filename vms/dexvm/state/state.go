// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package state manages persistent state for the DEX VM: native token
// balances backing amm.TokenHandle, and the last-accepted-block pointer.
package state

import (
	"errors"
	"fmt"
	"sync"

	"github.com/holiman/uint256"
	"github.com/luxfi/database"
	"github.com/luxfi/geth/common"
	"github.com/luxfi/ids"

	"github.com/luxfi/vm/utils/wrappers"
	"github.com/luxfi/vm/vms/dexvm/amm"
)

var (
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrStateCorrupted      = errors.New("state corrupted")

	prefixBalance   = []byte("balance:")
	prefixLastBlock = []byte("lastBlock")
)

// State is the chain's account ledger: balances of every token this chain
// hosts natively, keyed by (token, holder), plus the chain tip. Pool and
// factory registries are not stored here: the functional VM keeps them in
// memory and builds them from the genesis configuration. Balances are
// written to the database by Commit; SetLastBlock writes the tip at once.
type State struct {
	mu sync.RWMutex
	db database.Database

	// balances[token][holder] is cached in memory and flushed to db on
	// Commit, mirroring the account cache the prior ledger kept.
	balances map[common.Address]map[common.Address]*uint256.Int

	// journal records pre-write balance values between Checkpoint and
	// Release/Rollback so a failed transaction's ledger writes can be
	// undone. Transactions are applied serially, so one flat journal with
	// no nesting is enough.
	journal   []balanceUndo
	recording bool

	lastBlockID     ids.ID
	lastBlockHeight uint64
}

// balanceUndo is one journal entry: the balance (token, holder) held before
// the first write since the last Checkpoint. hadPrev distinguishes "was
// cached as prev" from "was not in the cache at all", so Rollback can fall
// back to the database value by deleting the cache entry.
type balanceUndo struct {
	token, holder common.Address
	prev          *uint256.Int
	hadPrev       bool
}

// New creates a new state manager backed by db.
func New(db database.Database) *State {
	return &State{
		db:       db,
		balances: make(map[common.Address]map[common.Address]*uint256.Int),
	}
}

// Initialize loads the last-accepted-block pointer from the database.
func (s *State) Initialize() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := s.db.Get(prefixLastBlock)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return nil
		}
		return fmt.Errorf("loading last accepted block: %w", err)
	}

	p := wrappers.Packer{Bytes: data}
	blockID := p.UnpackFixedBytes(ids.IDLen)
	height := p.UnpackLong()
	if p.Errored() {
		return ErrStateCorrupted
	}
	copy(s.lastBlockID[:], blockID)
	s.lastBlockHeight = height
	return nil
}

func balanceKey(token, holder common.Address) []byte {
	key := make([]byte, 0, len(prefixBalance)+len(token)+len(holder))
	key = append(key, prefixBalance...)
	key = append(key, token.Bytes()...)
	key = append(key, holder.Bytes()...)
	return key
}

// BalanceOf returns holder's balance of token, defaulting to zero.
func (s *State) BalanceOf(token, holder common.Address) (*uint256.Int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.balanceLocked(token, holder), nil
}

func (s *State) balanceLocked(token, holder common.Address) *uint256.Int {
	if byHolder, ok := s.balances[token]; ok {
		if bal, ok := byHolder[holder]; ok {
			return bal.Clone()
		}
	}

	data, err := s.db.Get(balanceKey(token, holder))
	if err != nil {
		return new(uint256.Int)
	}
	return new(uint256.Int).SetBytes32(padTo32(data))
}

func padTo32(b []byte) []byte {
	if len(b) >= 32 {
		return b[len(b)-32:]
	}
	out := make([]byte, 32)
	copy(out[32-len(b):], b)
	return out
}

func (s *State) setBalanceLocked(token, holder common.Address, amount *uint256.Int) {
	byHolder, ok := s.balances[token]
	if !ok {
		byHolder = make(map[common.Address]*uint256.Int)
		s.balances[token] = byHolder
	}
	if s.recording {
		prev, hadPrev := byHolder[holder]
		s.journal = append(s.journal, balanceUndo{token: token, holder: holder, prev: prev, hadPrev: hadPrev})
	}
	byHolder[holder] = amount
}

// Checkpoint begins journaling balance writes so the caller can Rollback a
// transaction that fails partway through its ledger mutations. It must be
// paired with exactly one Release or Rollback; checkpoints do not nest.
func (s *State) Checkpoint() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.journal = s.journal[:0]
	s.recording = true
}

// Release discards the current journal, keeping every write since the last
// Checkpoint.
func (s *State) Release() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.journal = s.journal[:0]
	s.recording = false
}

// Rollback undoes every balance write since the last Checkpoint, in reverse
// order.
func (s *State) Rollback() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := len(s.journal) - 1; i >= 0; i-- {
		u := s.journal[i]
		byHolder := s.balances[u.token]
		if byHolder == nil {
			continue
		}
		if u.hadPrev {
			byHolder[u.holder] = u.prev
		} else {
			delete(byHolder, u.holder)
		}
	}
	s.journal = s.journal[:0]
	s.recording = false
}

// Credit adds amount to holder's balance of token.
func (s *State) Credit(token, holder common.Address, amount *uint256.Int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur := s.balanceLocked(token, holder)
	s.setBalanceLocked(token, holder, new(uint256.Int).Add(cur, amount))
	return nil
}

// Debit removes amount from holder's balance of token, failing if
// insufficient.
func (s *State) Debit(token, holder common.Address, amount *uint256.Int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur := s.balanceLocked(token, holder)
	if cur.Cmp(amount) < 0 {
		return ErrInsufficientBalance
	}
	s.setBalanceLocked(token, holder, new(uint256.Int).Sub(cur, amount))
	return nil
}

// Transfer moves amount of token from one holder to another. A transfer to
// self is a funded no-op: it still requires the balance but moves nothing.
func (s *State) Transfer(token, from, to common.Address, amount *uint256.Int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	fromBal := s.balanceLocked(token, from)
	if fromBal.Cmp(amount) < 0 {
		return ErrInsufficientBalance
	}
	if from == to {
		return nil
	}
	toBal := s.balanceLocked(token, to)

	s.setBalanceLocked(token, from, new(uint256.Int).Sub(fromBal, amount))
	s.setBalanceLocked(token, to, new(uint256.Int).Add(toBal, amount))
	return nil
}

// TokenHandle returns an amm.TokenHandle for token scoped to owner: its
// Transfer debits owner and credits the destination. Callers binding a
// handle to a Pool must pass the pool's own (possibly not-yet-created)
// address as owner, since every Transfer the pool engine issues moves
// tokens out of its own holdings — see amm.Factory.ComputePairAddress.
func (s *State) TokenHandle(token, owner common.Address) amm.TokenHandle {
	return &accountHandle{state: s, token: token, owner: owner}
}

type accountHandle struct {
	state        *State
	token, owner common.Address
}

func (h *accountHandle) BalanceOf(holder common.Address) (*uint256.Int, error) {
	return h.state.BalanceOf(h.token, holder)
}

func (h *accountHandle) Transfer(to common.Address, value *uint256.Int) (bool, error) {
	if err := h.state.Transfer(h.token, h.owner, to, value); err != nil {
		return false, err
	}
	return true, nil
}

var _ amm.TokenHandle = (*accountHandle)(nil)

// SetLastBlock records the chain tip.
func (s *State) SetLastBlock(blockID ids.ID, height uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	p := wrappers.Packer{MaxSize: ids.IDLen + wrappers.LongLen}
	p.PackFixedBytes(blockID[:])
	p.PackLong(height)
	if p.Errored() {
		return p.Err
	}

	if err := s.db.Put(prefixLastBlock, p.Bytes); err != nil {
		return err
	}
	s.lastBlockID = blockID
	s.lastBlockHeight = height
	return nil
}

// GetLastBlock returns the chain tip.
func (s *State) GetLastBlock() (ids.ID, uint64) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastBlockID, s.lastBlockHeight
}

// Commit flushes every cached balance to the database.
func (s *State) Commit() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	batch := s.db.NewBatch()
	for token, byHolder := range s.balances {
		for holder, bal := range byHolder {
			b32 := bal.Bytes32()
			if err := batch.Put(balanceKey(token, holder), b32[:]); err != nil {
				return err
			}
		}
	}
	return batch.Write()
}

// Close commits outstanding state. It does not close the database, which
// stays with whoever passed it to New.
func (s *State) Close() error {
	return s.Commit()
}
