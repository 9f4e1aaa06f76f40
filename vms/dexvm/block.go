// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package dexvm

import (
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"time"

	"github.com/luxfi/consensus/core/choices"
	"github.com/luxfi/ids"
	"github.com/luxfi/log"
)

var (
	errInvalidBlock = errors.New("invalid block")
	errFutureBlock  = errors.New("block timestamp is in the future")

	maxClockSkew = int64(60)
)

// Status aliases for the block.ChainVM callers that compare against these
// directly, mirroring choices.Status without exposing the choices import
// at every call site.
const (
	StatusUnknown    = choices.Unknown
	StatusProcessing = choices.Processing
	StatusRejected   = choices.Rejected
	StatusAccepted   = choices.Accepted
)

// Block is one DEX chain block: an ordered batch of txs.Tx wire bytes applied
// to the functional VM in sequence.
type Block struct {
	ParentID_      ids.ID   `serialize:"true" json:"parentId"`
	BlockHeight    uint64   `serialize:"true" json:"height"`
	BlockTimestamp int64    `serialize:"true" json:"timestamp"`
	Txs            [][]byte `serialize:"true" json:"txs"`

	id     ids.ID
	bytes  []byte
	status choices.Status
	vm     *ChainVM
}

// ID returns the block's content-addressed ID, computing and caching it on
// first use.
func (b *Block) ID() ids.ID {
	if b.id == ids.Empty {
		b.id = b.computeID()
	}
	return b.id
}

func (b *Block) computeID() ids.ID {
	return ids.ID(sha256.Sum256(b.Bytes()))
}

// ParentID returns the parent block's ID.
func (b *Block) ParentID() ids.ID { return b.ParentID_ }

// Parent returns the parent block's ID (legacy block.Block alias).
func (b *Block) Parent() ids.ID { return b.ParentID_ }

// Height returns the block's height.
func (b *Block) Height() uint64 { return b.BlockHeight }

// Timestamp returns the block's timestamp.
func (b *Block) Timestamp() time.Time { return time.Unix(b.BlockTimestamp, 0) }

// Status returns the block's status as the uint8 the block.ChainVM plugin
// surface expects.
func (b *Block) Status() uint8 { return uint8(b.status) }

// Bytes returns the block's canonical wire encoding.
func (b *Block) Bytes() []byte {
	if b.bytes != nil {
		return b.bytes
	}
	data, err := BlockCodec.Marshal(codecVersion, b)
	if err != nil {
		return nil
	}
	b.bytes = data
	return data
}

// Verify checks the block for structural and timestamp validity. Individual
// tx failures are not verification failures: they're applied best-effort in
// Accept, matching the functional VM's existing per-tx error tolerance.
func (b *Block) Verify(ctx context.Context) error {
	if b.BlockHeight == 0 && b.ParentID_ != ids.Empty {
		return errInvalidBlock
	}
	if b.BlockTimestamp > time.Now().Unix()+maxClockSkew {
		return errFutureBlock
	}
	if _, ok := b.vm.blocks[b.ParentID_]; !ok && b.BlockHeight != 0 {
		return fmt.Errorf("%w: unknown parent %s", errInvalidBlock, b.ParentID_)
	}
	return nil
}

// Accept applies the block's transactions to the inner functional VM and
// marks it as the new chain tip.
func (b *Block) Accept(ctx context.Context) error {
	b.vm.lock.Lock()
	defer b.vm.lock.Unlock()

	result, err := b.vm.inner.ProcessBlock(ctx, b.BlockHeight, b.Timestamp(), b.Txs)
	if err != nil {
		return fmt.Errorf("processing block %s: %w", b.ID(), err)
	}

	b.status = choices.Accepted
	b.vm.lastAcceptedID = b.ID()
	b.vm.lastAcceptedHeight = b.BlockHeight

	if err := b.vm.inner.state.SetLastBlock(b.ID(), b.BlockHeight); err != nil {
		return fmt.Errorf("persisting last accepted block: %w", err)
	}

	if b.vm.log != nil {
		b.vm.log.Info("accepted block",
			log.Stringer("blockID", b.ID()),
			log.Uint64("height", b.BlockHeight),
			log.Int("appliedTxs", result.AppliedTxs),
			log.Int("failedTxs", result.FailedTxs),
		)
	}

	return nil
}

// Reject marks the block as rejected and drops it from the pending set.
func (b *Block) Reject(ctx context.Context) error {
	b.vm.lock.Lock()
	defer b.vm.lock.Unlock()

	b.status = choices.Rejected
	delete(b.vm.blocks, b.ID())

	if b.vm.log != nil {
		b.vm.log.Debug("rejected block", log.Stringer("blockID", b.ID()))
	}
	return nil
}

// parseBlock decodes a Block from its wire encoding and attaches it to vm.
func parseBlock(vm *ChainVM, data []byte) (*Block, error) {
	b := &Block{}
	if _, err := BlockCodec.Unmarshal(data, b); err != nil {
		return nil, fmt.Errorf("unmarshaling block: %w", err)
	}
	b.bytes = data
	b.vm = vm
	b.status = choices.Processing
	return b, nil
}
