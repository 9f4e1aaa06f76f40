// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package dexvm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/rpc/v2"
	"github.com/luxfi/log"
	"github.com/luxfi/metric"

	consensusctx "github.com/luxfi/consensus/context"
	consensuscore "github.com/luxfi/consensus/core"
	"github.com/luxfi/database"
	"github.com/luxfi/database/versiondb"
	"github.com/luxfi/geth/common"
	"github.com/luxfi/ids"
	"github.com/luxfi/version"
	"github.com/luxfi/vm/utils/timer/mockable"
	"github.com/luxfi/vm/vms/dexvm/amm"
	"github.com/luxfi/vm/vms/dexvm/api"
	"github.com/luxfi/vm/vms/dexvm/config"
	"github.com/luxfi/vm/vms/dexvm/state"
	"github.com/luxfi/vm/vms/dexvm/txs"
	"github.com/luxfi/warp"
)

var (
	errUnknownState        = errors.New("unknown state")
	errShutdown            = errors.New("VM is shutting down")
	errProtocolFeeDisabled = errors.New("protocol fee collection is disabled by runtime config")
)

// BlockResult is the deterministic outcome of applying one block's worth of
// txs.Tx to the AMM core.
type BlockResult struct {
	BlockHeight uint64
	Timestamp   time.Time
	AppliedTxs  int
	FailedTxs   int
	StateRoot   ids.ID
}

// VM implements the DEX virtual machine: a factory that deterministically
// instantiates constant-product pools, and the pool engine's mint, burn,
// swap, skim, sync, and fee-governance entry points.
//
// DESIGN: no background goroutines. Every state transition happens inside
// ProcessBlock. The pool registry and factory live in memory and are built
// from genesis in Initialize; accepted blocks are not replayed on restart.
// Token balances are cached by the state package and written to the
// database by State.Commit, which runs at Shutdown. This ensures every node
// produces identical state from identical inputs.
type VM struct {
	config.Config

	log  log.Logger
	lock sync.RWMutex

	consensusCtx *consensusctx.Context
	chainID      ids.ID

	baseDB database.Database
	db     *versiondb.Database
	state  *state.State

	clock mockable.Clock

	registerer metric.Registerer
	metrics    *vmMetrics

	connectedPeers map[ids.NodeID]*version.Application
	appSender      warp.Sender

	// factory is the chain's single AMM factory; pools is kept alongside it
	// so the VM can resolve a tx's target pool by address without the
	// factory needing a reverse index of its own.
	factory *amm.Factory
	pools   map[common.Address]*amm.Pool

	// callbacks resolves a swap's to address to its registered flash-swap
	// callback, the same way state.TokenHandle resolves an address to a
	// balance. An address with nothing registered gets a nil callback, which
	// amm.Pool.Swap treats as "not a flash swap": callback_data is ignored.
	callbacks map[common.Address]amm.SwapCallback

	currentBlockHeight uint64
	lastBlockTime      time.Time

	bootstrapped  bool
	isInitialized bool
	shutdown      bool

	toEngine chan consensuscore.Message
}

// NewVMForTest creates a VM instance for testing without going through
// Initialize's context-casting dance.
func NewVMForTest(cfg config.Config, logger log.Logger) *VM {
	return &VM{
		Config:    cfg,
		log:       logger,
		metrics:   newVMMetrics(),
		pools:     make(map[common.Address]*amm.Pool),
		callbacks: make(map[common.Address]amm.SwapCallback),
	}
}

// Initialize implements consensuscore.VM.
func (vm *VM) Initialize(
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

	vm.consensusCtx = consensusCtx.(*consensusctx.Context)
	vm.chainID = vm.consensusCtx.ChainID

	vm.baseDB = dbManager.(database.Database)
	vm.db = versiondb.New(vm.baseDB)
	vm.state = state.New(vm.db)
	if err := vm.state.Initialize(); err != nil {
		return fmt.Errorf("initializing state: %w", err)
	}

	// Tests and the ChainVM wrapper hand different channel shapes through
	// this interface{} slot; only the consensus engine's own message channel
	// is retained.
	if ch, ok := msgChan.(chan consensuscore.Message); ok {
		vm.toEngine = ch
	}
	if sender, ok := appSender.(warp.Sender); ok {
		vm.appSender = sender
	}

	vm.connectedPeers = make(map[ids.NodeID]*version.Application)
	vm.pools = make(map[common.Address]*amm.Pool)
	vm.callbacks = make(map[common.Address]amm.SwapCallback)
	if vm.metrics == nil {
		vm.metrics = newVMMetrics()
	}

	factorySelf := common.BytesToAddress(vm.chainID[:20])
	vm.factory = amm.NewFactory(factorySelf, factorySelf, chainIDUint64(vm.chainID), vm.log, &vm.clock)

	vm.currentBlockHeight = 0
	vm.lastBlockTime = time.Time{}

	if len(genesisBytes) > 0 {
		if err := vm.parseGenesis(genesisBytes); err != nil {
			return fmt.Errorf("parsing genesis: %w", err)
		}
	}
	if len(configBytes) > 0 {
		if err := vm.parseConfig(configBytes); err != nil {
			return fmt.Errorf("parsing config: %w", err)
		}
	}

	vm.isInitialized = true
	if vm.log != nil {
		vm.log.Info("DEX VM initialized (functional mode)",
			"chainID", vm.chainID,
			"blockInterval", vm.Config.BlockInterval,
		)
	}
	return nil
}

// chainIDUint64 folds a chain ID down to the uint64 the factory passes to
// each pool as the chain ID of its EIP-712 permit domain.
func chainIDUint64(id ids.ID) uint64 {
	var v uint64
	for i := 0; i < 8; i++ {
		v = v<<8 | uint64(id[i])
	}
	return v
}

// Genesis describes the token pairs a chain deployment wants pre-created,
// so a fresh chain can come up with pools already registered instead of
// waiting for the first CreatePair transaction.
type Genesis struct {
	Pairs []GenesisPair `serialize:"true" json:"pairs"`
}

// GenesisPair names a token pair to create a pool for at genesis.
type GenesisPair struct {
	TokenA [20]byte `serialize:"true" json:"tokenA"`
	TokenB [20]byte `serialize:"true" json:"tokenB"`
}

func (vm *VM) parseGenesis(genesisBytes []byte) error {
	genesis := &Genesis{}
	if _, err := BlockCodec.Unmarshal(genesisBytes, genesis); err != nil {
		return fmt.Errorf("decoding genesis: %w", err)
	}
	for _, pair := range genesis.Pairs {
		tokenA, tokenB := common.Address(pair.TokenA), common.Address(pair.TokenB)
		poolAddr := vm.factory.ComputePairAddress(tokenA, tokenB)
		handleA := vm.state.TokenHandle(tokenA, poolAddr)
		handleB := vm.state.TokenHandle(tokenB, poolAddr)
		pool, err := vm.factory.CreatePair(tokenA, tokenB, handleA, handleB)
		if err != nil {
			return fmt.Errorf("creating genesis pair: %w", err)
		}
		vm.pools[pool.Address()] = pool
	}
	return nil
}

// parseConfig overlays operator-supplied JSON onto the default config, the
// same way node operators pass per-chain config files to every other VM.
func (vm *VM) parseConfig(configBytes []byte) error {
	cfg := config.DefaultConfig()
	if err := json.Unmarshal(configBytes, &cfg); err != nil {
		return fmt.Errorf("decoding runtime config: %w", err)
	}
	vm.Config = cfg
	return nil
}

// SetState implements consensuscore.VM.
func (vm *VM) SetState(ctx context.Context, stateNum uint32) error {
	vm.lock.Lock()
	defer vm.lock.Unlock()

	switch consensuscore.State(stateNum) {
	case consensuscore.Bootstrapping:
		vm.bootstrapped = false
		if vm.log != nil {
			vm.log.Info("DEX VM entering bootstrap state")
		}
		return nil
	case consensuscore.Ready:
		vm.bootstrapped = true
		if vm.log != nil {
			vm.log.Info("DEX VM entering ready state")
		}
		return nil
	default:
		return fmt.Errorf("%w: %d", errUnknownState, stateNum)
	}
}

// ProcessBlock applies every tx in order to the AMM core. A failing tx does
// not fail the block: its ledger writes are rolled back, its error is
// logged, and accounting for the rest of the batch continues.
func (vm *VM) ProcessBlock(ctx context.Context, blockHeight uint64, blockTime time.Time, rawTxs [][]byte) (*BlockResult, error) {
	vm.lock.Lock()
	defer vm.lock.Unlock()

	if vm.shutdown {
		return nil, errShutdown
	}

	// The pool engine reads wall-clock seconds through this clock; pinning
	// it to the block's timestamp makes oracle accumulation a pure function
	// of the block stream, identical on every node.
	vm.clock.Set(blockTime)

	result := &BlockResult{BlockHeight: blockHeight, Timestamp: blockTime}

	for _, raw := range rawTxs {
		tx, err := txs.Parse(raw)
		if err != nil {
			result.FailedTxs++
			vm.metrics.txFailed()
			if vm.log != nil {
				vm.log.Warn("could not decode tx", "error", err)
			}
			continue
		}

		// Each tx runs against a checkpointed ledger: a failure rolls back
		// every balance write it made — the optimistic outputs of a swap
		// that misses the invariant, the partial transfers of a failed burn
		// — so a failed operation has no observable effect.
		vm.state.Checkpoint()
		if err := vm.applyTx(tx, blockTime); err != nil {
			vm.state.Rollback()
			result.FailedTxs++
			vm.metrics.txFailed()
			if vm.log != nil {
				vm.log.Warn("tx failed", "type", tx.Type, "error", err)
			}
			continue
		}
		vm.state.Release()
		result.AppliedTxs++
		vm.metrics.txApplied(tx.Type)
	}

	vm.currentBlockHeight = blockHeight
	vm.lastBlockTime = blockTime
	result.StateRoot = ids.Empty

	if vm.log != nil {
		vm.log.Debug("block processed",
			"height", blockHeight,
			"applied", result.AppliedTxs,
			"failed", result.FailedTxs,
		)
	}
	return result, nil
}

// applyTx dispatches a single decoded tx to the AMM factory or the pool it
// names.
func (vm *VM) applyTx(tx *txs.Tx, blockTime time.Time) error {
	switch tx.Type {
	case txs.TypeCreatePair:
		tokenA, tokenB := tx.TokenAddresses()
		poolAddr := vm.factory.ComputePairAddress(tokenA, tokenB)
		handleA := vm.state.TokenHandle(tokenA, poolAddr)
		handleB := vm.state.TokenHandle(tokenB, poolAddr)
		pool, err := vm.factory.CreatePair(tokenA, tokenB, handleA, handleB)
		if err != nil {
			return err
		}
		vm.pools[pool.Address()] = pool
		return nil

	case txs.TypeMint:
		pool, err := vm.pool(tx.PoolAddress())
		if err != nil {
			return err
		}
		_, err = pool.Mint(tx.CallerAddress(), tx.ToAddress())
		return err

	case txs.TypeBurn:
		pool, err := vm.pool(tx.PoolAddress())
		if err != nil {
			return err
		}
		_, _, err = pool.Burn(tx.CallerAddress(), tx.ToAddress())
		return err

	case txs.TypeSwap:
		pool, err := vm.pool(tx.PoolAddress())
		if err != nil {
			return err
		}
		to := tx.ToAddress()
		return pool.Swap(tx.CallerAddress(), tx.Amount0OutUint256(), tx.Amount1OutUint256(), to, tx.CallData, vm.swapCallback(to))

	case txs.TypeSkim:
		pool, err := vm.pool(tx.PoolAddress())
		if err != nil {
			return err
		}
		return pool.Skim(tx.ToAddress())

	case txs.TypeSync:
		pool, err := vm.pool(tx.PoolAddress())
		if err != nil {
			return err
		}
		return pool.Sync()

	case txs.TypeSetFeeTo:
		if !vm.Config.ProtocolFeeEnabled && tx.FeeTo != ([20]byte{}) {
			return errProtocolFeeDisabled
		}
		return vm.factory.SetFeeTo(tx.CallerAddress(), common.Address(tx.FeeTo))

	case txs.TypeSetFeeToSetter:
		return vm.factory.SetFeeToSetter(tx.CallerAddress(), common.Address(tx.FeeToSetter))

	case txs.TypePermit:
		pool, err := vm.pool(tx.PoolAddress())
		if err != nil {
			return err
		}
		return pool.Permit(common.Address(tx.Owner), common.Address(tx.Spender), tx.ValueUint256(), tx.Deadline, uint64(blockTime.Unix()), tx.Sig)

	default:
		return txs.ErrUnknownType
	}
}

var errPoolNotFound = errors.New("pool not found")

func (vm *VM) pool(addr common.Address) (*amm.Pool, error) {
	pool, ok := vm.pools[addr]
	if !ok {
		return nil, errPoolNotFound
	}
	return pool, nil
}

// swapCallback resolves to's registered flash-swap callback, defaulting to
// nil — a swap naming callback_data against an address with nothing
// registered simply doesn't get called back, the same degrade-to-plain-swap
// behavior amm.Pool.Swap already implements for a nil callback.
func (vm *VM) swapCallback(to common.Address) amm.SwapCallback {
	return vm.callbacks[to]
}

// RegisterSwapCallback binds addr's flash-swap callback. A flash-swap
// counterparty (an arbitrage keeper, a future lending module) opts in to the
// swap hook this way instead of the pool engine dispatching to an address
// implicitly, since addresses in this VM are ledger accounts, not contracts
// with code the engine could invoke on its own.
func (vm *VM) RegisterSwapCallback(addr common.Address, cb amm.SwapCallback) {
	vm.lock.Lock()
	defer vm.lock.Unlock()
	vm.callbacks[addr] = cb
}

// Shutdown implements consensuscore.VM.
func (vm *VM) Shutdown(ctx context.Context) error {
	vm.lock.Lock()
	defer vm.lock.Unlock()

	if vm.log != nil {
		vm.log.Info("shutting down DEX VM")
	}
	vm.shutdown = true

	if vm.state != nil {
		if err := vm.state.Close(); err != nil {
			return fmt.Errorf("closing state: %w", err)
		}
	}
	if vm.db != nil {
		if err := vm.db.Close(); err != nil {
			return fmt.Errorf("closing database: %w", err)
		}
	}
	return nil
}

// Version implements consensuscore.VM.
func (vm *VM) Version(ctx context.Context) (string, error) {
	return "1.0.0", nil
}

// CreateHandlers implements consensuscore.VM.
func (vm *VM) CreateHandlers(ctx context.Context) (map[string]http.Handler, error) {
	server := rpc.NewServer()
	server.RegisterCodec(NewCodec(), "application/json")
	server.RegisterCodec(NewCodec(), "application/json;charset=UTF-8")

	service := api.NewService(vm)
	if err := server.RegisterService(service, "dex"); err != nil {
		return nil, fmt.Errorf("registering DEX service: %w", err)
	}

	return map[string]http.Handler{"": server}, nil
}

// HealthCheck implements consensuscore.VM.
func (vm *VM) HealthCheck(ctx context.Context) (interface{}, error) {
	vm.lock.RLock()
	defer vm.lock.RUnlock()

	return map[string]interface{}{
		"healthy":      vm.isInitialized && vm.bootstrapped,
		"bootstrapped": vm.bootstrapped,
		"pools":        len(vm.pools),
		"blockHeight":  vm.currentBlockHeight,
		"mode":         "functional",
	}, nil
}

// Connected implements consensuscore.VM.
func (vm *VM) Connected(ctx context.Context, nodeID ids.NodeID, v *version.Application) error {
	vm.lock.Lock()
	defer vm.lock.Unlock()
	vm.connectedPeers[nodeID] = v
	if vm.log != nil {
		vm.log.Debug("peer connected", "nodeID", nodeID, "version", v)
	}
	return nil
}

// Disconnected implements consensuscore.VM.
func (vm *VM) Disconnected(ctx context.Context, nodeID ids.NodeID) error {
	vm.lock.Lock()
	defer vm.lock.Unlock()
	delete(vm.connectedPeers, nodeID)
	if vm.log != nil {
		vm.log.Debug("peer disconnected", "nodeID", nodeID)
	}
	return nil
}

// GetFactory returns the chain's AMM factory.
func (vm *VM) GetFactory() *amm.Factory {
	vm.lock.RLock()
	defer vm.lock.RUnlock()
	return vm.factory
}

// GetPool returns the pool registered at addr, if any.
func (vm *VM) GetPool(addr common.Address) (*amm.Pool, bool) {
	vm.lock.RLock()
	defer vm.lock.RUnlock()
	pool, ok := vm.pools[addr]
	return pool, ok
}

// ListPools returns every pool the factory has created, in creation order.
func (vm *VM) ListPools() []*amm.Pool {
	vm.lock.RLock()
	defer vm.lock.RUnlock()
	pools := make([]*amm.Pool, 0, len(vm.pools))
	for i := 0; i < vm.factory.AllPairsLength(); i++ {
		pool, ok := vm.factory.AllPairs(i)
		if ok {
			pools = append(pools, pool)
		}
	}
	return pools
}

// IsBootstrapped returns true once the VM has left the bootstrapping state.
func (vm *VM) IsBootstrapped() bool {
	vm.lock.RLock()
	defer vm.lock.RUnlock()
	return vm.bootstrapped
}

// GetBlockHeight returns the height of the last processed block.
func (vm *VM) GetBlockHeight() uint64 {
	vm.lock.RLock()
	defer vm.lock.RUnlock()
	return vm.currentBlockHeight
}

// GetLastBlockTime returns the timestamp of the last processed block.
func (vm *VM) GetLastBlockTime() time.Time {
	vm.lock.RLock()
	defer vm.lock.RUnlock()
	return vm.lastBlockTime
}

// AppGossip implements consensuscore.VM.
func (vm *VM) AppGossip(ctx context.Context, nodeID ids.NodeID, msg []byte) error {
	return nil
}

// AppRequest implements consensuscore.VM.
func (vm *VM) AppRequest(ctx context.Context, nodeID ids.NodeID, requestID uint32, deadline time.Time, request []byte) error {
	return nil
}

// AppRequestFailed implements consensuscore.VM.
func (vm *VM) AppRequestFailed(ctx context.Context, nodeID ids.NodeID, requestID uint32, appErr *consensuscore.AppError) error {
	return nil
}

// AppResponse implements consensuscore.VM.
func (vm *VM) AppResponse(ctx context.Context, nodeID ids.NodeID, requestID uint32, response []byte) error {
	return nil
}

// CrossChainAppRequest implements consensuscore.VM.
func (vm *VM) CrossChainAppRequest(ctx context.Context, chainID ids.ID, requestID uint32, deadline time.Time, request []byte) error {
	return nil
}

// CrossChainAppRequestFailed implements consensuscore.VM.
func (vm *VM) CrossChainAppRequestFailed(ctx context.Context, chainID ids.ID, requestID uint32, appErr *consensuscore.AppError) error {
	return nil
}

// CrossChainAppResponse implements consensuscore.VM.
func (vm *VM) CrossChainAppResponse(ctx context.Context, chainID ids.ID, requestID uint32, response []byte) error {
	return nil
}

// NewCodec creates the codec CreateHandlers registers with the RPC server.
func NewCodec() *Codec {
	return &Codec{}
}

// Codec implements the gorilla/rpc codec interface as a placeholder: its
// requests report an empty method name, decode no parameters and write no
// response or error, so no RPC call is decoded or answered.
type Codec struct{}

func (c *Codec) NewRequest(*http.Request) rpc.CodecRequest {
	return &CodecRequest{}
}

// CodecRequest implements rpc.CodecRequest.
type CodecRequest struct{}

func (r *CodecRequest) Method() (string, error)                        { return "", nil }
func (r *CodecRequest) ReadRequest(interface{}) error                  { return nil }
func (r *CodecRequest) WriteResponse(http.ResponseWriter, interface{}) {}
func (r *CodecRequest) WriteError(http.ResponseWriter, int, error)     {}
