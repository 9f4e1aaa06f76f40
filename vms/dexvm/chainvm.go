// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package dexvm

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	consensuscore "github.com/luxfi/consensus/core"
	"github.com/luxfi/consensus/engine/chain/block"
	"github.com/luxfi/ids"
	"github.com/luxfi/log"
	luxvm "github.com/luxfi/vm"

	"github.com/luxfi/version"
)

// Ensure ChainVM implements block.ChainVM.
var _ block.ChainVM = (*ChainVM)(nil)

var (
	errBlockNotFound    = errors.New("block not found")
	errVMNotInitialized = errors.New("VM not initialized")

	genesisBlockID = ids.ID{}
)

// ChainVM wraps the functional DEX VM to implement the block.ChainVM
// interface required for running as a Lux subnet plugin.
type ChainVM struct {
	inner *VM

	log  log.Logger
	lock sync.RWMutex

	blocks map[ids.ID]*Block

	lastAcceptedID     ids.ID
	lastAcceptedHeight uint64
	preferredID        ids.ID

	pendingTxs [][]byte

	blockInterval time.Duration

	toEngine chan<- luxvm.Message

	initialized bool
}

// NewChainVM creates a ChainVM wrapping a fresh functional DEX VM.
func NewChainVM(logger log.Logger) *ChainVM {
	return &ChainVM{
		inner:         &VM{},
		log:           logger,
		blocks:        make(map[ids.ID]*Block),
		blockInterval: 100 * time.Millisecond,
	}
}

// Initialize implements the VM interface.
func (vm *ChainVM) Initialize(
	ctx context.Context,
	consensusCtx interface{},
	dbManager interface{},
	genesisBytes []byte,
	upgradeBytes []byte,
	configBytes []byte,
	msgChan interface{},
	fxs []interface{},
	appSender interface{},
) error {
	vm.lock.Lock()
	defer vm.lock.Unlock()

	if ch, ok := msgChan.(chan<- luxvm.Message); ok {
		vm.toEngine = ch
	}

	if err := vm.inner.Initialize(
		ctx,
		consensusCtx,
		dbManager,
		genesisBytes,
		upgradeBytes,
		configBytes,
		msgChan,
		fxs,
		appSender,
	); err != nil {
		return err
	}
	vm.inner.log = vm.log

	genesisBlock := &Block{
		ParentID_:      ids.Empty,
		BlockHeight:    0,
		BlockTimestamp: 0,
		vm:             vm,
		id:             genesisBlockID,
		status:         StatusAccepted,
	}
	vm.blocks[genesisBlockID] = genesisBlock
	vm.lastAcceptedID = genesisBlockID
	vm.lastAcceptedHeight = 0
	vm.preferredID = genesisBlockID

	vm.initialized = true
	if vm.log != nil {
		vm.log.Info("DEX ChainVM initialized", "genesisID", genesisBlockID)
	}
	return nil
}

// SetState implements the VM interface.
func (vm *ChainVM) SetState(ctx context.Context, state uint32) error {
	return vm.inner.SetState(ctx, state)
}

// Shutdown implements the VM interface.
func (vm *ChainVM) Shutdown(ctx context.Context) error {
	return vm.inner.Shutdown(ctx)
}

// Version implements the VM interface.
func (vm *ChainVM) Version(ctx context.Context) (string, error) {
	return vm.inner.Version(ctx)
}

// NewHTTPHandler implements the block.ChainVM interface.
func (vm *ChainVM) NewHTTPHandler(ctx context.Context) (interface{}, error) {
	return vm.inner.CreateHandlers(ctx)
}

// CreateHandlers registers the DEX RPC handlers for HTTP.
func (vm *ChainVM) CreateHandlers(ctx context.Context) (map[string]http.Handler, error) {
	return vm.inner.CreateHandlers(ctx)
}

// HealthCheck implements the VM interface.
func (vm *ChainVM) HealthCheck(ctx context.Context) (interface{}, error) {
	return vm.inner.HealthCheck(ctx)
}

// Connected implements the block.ChainVM interface.
func (vm *ChainVM) Connected(ctx context.Context, nodeID ids.NodeID, v interface{}) error {
	if ver, ok := v.(*version.Application); ok {
		return vm.inner.Connected(ctx, nodeID, ver)
	}
	return nil
}

// Disconnected implements the VM interface.
func (vm *ChainVM) Disconnected(ctx context.Context, nodeID ids.NodeID) error {
	return vm.inner.Disconnected(ctx, nodeID)
}

// AppGossip implements the VM interface.
func (vm *ChainVM) AppGossip(ctx context.Context, nodeID ids.NodeID, msg []byte) error {
	return vm.inner.AppGossip(ctx, nodeID, msg)
}

// AppRequest implements the VM interface.
func (vm *ChainVM) AppRequest(ctx context.Context, nodeID ids.NodeID, requestID uint32, deadline time.Time, request []byte) error {
	return vm.inner.AppRequest(ctx, nodeID, requestID, deadline, request)
}

// AppRequestFailed implements the VM interface.
func (vm *ChainVM) AppRequestFailed(ctx context.Context, nodeID ids.NodeID, requestID uint32, appErr *consensuscore.AppError) error {
	return vm.inner.AppRequestFailed(ctx, nodeID, requestID, appErr)
}

// AppResponse implements the VM interface.
func (vm *ChainVM) AppResponse(ctx context.Context, nodeID ids.NodeID, requestID uint32, response []byte) error {
	return vm.inner.AppResponse(ctx, nodeID, requestID, response)
}

// BuildBlock implements the block.ChainVM interface: it builds a new block
// from the pending transaction pool.
func (vm *ChainVM) BuildBlock(ctx context.Context) (block.Block, error) {
	vm.lock.Lock()
	defer vm.lock.Unlock()

	if !vm.initialized {
		return nil, errVMNotInitialized
	}

	parent, ok := vm.blocks[vm.preferredID]
	if !ok {
		return nil, fmt.Errorf("preferred block not found: %s", vm.preferredID)
	}

	newHeight := parent.BlockHeight + 1
	newTimestamp := time.Now()

	idBytes := make([]byte, 16)
	binary.BigEndian.PutUint64(idBytes[0:8], newHeight)
	binary.BigEndian.PutUint64(idBytes[8:16], uint64(newTimestamp.UnixNano()))
	hash := sha256.Sum256(idBytes)
	var newID ids.ID
	copy(newID[:], hash[:])

	blk := &Block{
		ParentID_:      vm.preferredID,
		BlockHeight:    newHeight,
		BlockTimestamp: newTimestamp.Unix(),
		Txs:            vm.pendingTxs,
		vm:             vm,
		id:             newID,
		status:         StatusProcessing,
	}
	vm.pendingTxs = nil
	vm.blocks[newID] = blk

	if vm.log != nil {
		vm.log.Debug("built block", "id", newID, "height", newHeight, "txCount", len(blk.Txs))
	}
	return blk, nil
}

// ParseBlock implements the block.ChainVM interface.
func (vm *ChainVM) ParseBlock(ctx context.Context, data []byte) (block.Block, error) {
	vm.lock.Lock()
	defer vm.lock.Unlock()

	blk, err := parseBlock(vm, data)
	if err != nil {
		return nil, err
	}

	if existing, ok := vm.blocks[blk.ID()]; ok {
		return existing, nil
	}
	vm.blocks[blk.ID()] = blk
	return blk, nil
}

// GetBlock implements the block.ChainVM interface.
func (vm *ChainVM) GetBlock(ctx context.Context, blkID ids.ID) (block.Block, error) {
	vm.lock.RLock()
	defer vm.lock.RUnlock()

	blk, ok := vm.blocks[blkID]
	if !ok {
		return nil, errBlockNotFound
	}
	return blk, nil
}

// SetPreference implements the block.ChainVM interface.
func (vm *ChainVM) SetPreference(ctx context.Context, blkID ids.ID) error {
	vm.lock.Lock()
	defer vm.lock.Unlock()

	if _, ok := vm.blocks[blkID]; !ok {
		return fmt.Errorf("block not found: %s", blkID)
	}
	vm.preferredID = blkID
	if vm.log != nil {
		vm.log.Debug("set preference", "blockID", blkID)
	}
	return nil
}

// LastAccepted implements the block.ChainVM interface.
func (vm *ChainVM) LastAccepted(ctx context.Context) (ids.ID, error) {
	vm.lock.RLock()
	defer vm.lock.RUnlock()
	return vm.lastAcceptedID, nil
}

// GetBlockIDAtHeight returns the accepted block ID at the given height.
func (vm *ChainVM) GetBlockIDAtHeight(ctx context.Context, height uint64) (ids.ID, error) {
	vm.lock.RLock()
	defer vm.lock.RUnlock()

	for id, blk := range vm.blocks {
		if blk.BlockHeight == height && blk.status == StatusAccepted {
			return id, nil
		}
	}
	return ids.Empty, errBlockNotFound
}

// SubmitTx adds a tx to the pending pool and wakes the consensus engine.
func (vm *ChainVM) SubmitTx(tx []byte) error {
	vm.lock.Lock()
	defer vm.lock.Unlock()

	vm.pendingTxs = append(vm.pendingTxs, tx)

	if vm.toEngine != nil {
		select {
		case vm.toEngine <- luxvm.Message{Type: luxvm.PendingTxs}:
		default:
		}
	}
	return nil
}

// GetInnerVM returns the wrapped functional VM for direct access.
func (vm *ChainVM) GetInnerVM() *VM {
	return vm.inner
}

// WaitForEvent implements the block.ChainVM interface: block building is
// triggered by SubmitTx via the PendingTxs message, so this just blocks
// until the context is done.
func (vm *ChainVM) WaitForEvent(ctx context.Context) (interface{}, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}
