// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package dexvm

import (
	"context"
	"testing"
	"time"

	"github.com/holiman/uint256"
	consensusctx "github.com/luxfi/consensus/context"
	consensuscore "github.com/luxfi/consensus/core"
	"github.com/luxfi/database/memdb"
	"github.com/luxfi/geth/common"
	"github.com/luxfi/ids"
	"github.com/luxfi/log"
	"github.com/luxfi/version"
	luxvm "github.com/luxfi/vm"
	"github.com/luxfi/vm/vms/dexvm/amm"
	"github.com/luxfi/vm/vms/dexvm/config"
	"github.com/luxfi/vm/vms/dexvm/txs"
	"github.com/luxfi/warp"
	"github.com/stretchr/testify/require"
)

var (
	tokenA = common.HexToAddress("0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa")
	tokenB = common.HexToAddress("0xbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb")
	lp     = common.HexToAddress("0x1010101010101010101010101010101010101010")
)

func createTestVM(t *testing.T) (*VM, func()) {
	return createTestVMWithChainID(t, ids.GenerateTestID())
}

func createTestVMWithChainID(t *testing.T, chainID ids.ID) (*VM, func()) {
	require := require.New(t)

	logger := log.NewNoOpLogger()
	cfg := config.DefaultConfig()

	vm := &VM{
		Config: cfg,
		log:    logger,
	}

	db := memdb.New()
	toEngine := make(chan luxvm.Message, 100)
	appSender := warp.FakeSender{}

	consensusCtx := &consensusctx.Context{
		ChainID: chainID,
	}

	err := vm.Initialize(
		context.Background(),
		consensusCtx,
		db,
		nil, // genesis
		nil, // upgrade
		nil, // config
		toEngine,
		nil, // fxs
		appSender,
	)
	require.NoError(err)

	cleanup := func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		vm.Shutdown(ctx)
	}

	return vm, cleanup
}

// createPairTx builds a CreatePair tx for (tokenA, tokenB).
func createPairTx(caller common.Address) []byte {
	tx := &txs.Tx{
		Type:   txs.TypeCreatePair,
		Caller: caller,
		TokenA: tokenA,
		TokenB: tokenB,
	}
	return tx.Bytes()
}

func mintTx(caller common.Address, pool, to common.Address) []byte {
	tx := &txs.Tx{
		Type:   txs.TypeMint,
		Caller: caller,
		Pool:   pool,
		To:     to,
	}
	return tx.Bytes()
}

func burnTx(caller common.Address, pool, to common.Address) []byte {
	tx := &txs.Tx{
		Type:   txs.TypeBurn,
		Caller: caller,
		Pool:   pool,
		To:     to,
	}
	return tx.Bytes()
}

func swapTx(caller common.Address, pool common.Address, amount0Out, amount1Out *uint256.Int, to common.Address) []byte {
	tx := &txs.Tx{
		Type:       txs.TypeSwap,
		Caller:     caller,
		Pool:       pool,
		To:         to,
		Amount0Out: amount0Out.Bytes32(),
		Amount1Out: amount1Out.Bytes32(),
	}
	return tx.Bytes()
}

func e18(n int64) *uint256.Int {
	return new(uint256.Int).Mul(uint256.NewInt(uint64(n)), new(uint256.Int).Exp(uint256.NewInt(10), uint256.NewInt(18)))
}

func TestVMInitialize(t *testing.T) {
	require := require.New(t)

	vm, cleanup := createTestVM(t)
	defer cleanup()

	require.True(vm.isInitialized)
	require.False(vm.bootstrapped)
	require.NotNil(vm.factory)
	require.NotNil(vm.pools)
	require.Equal(uint64(0), vm.currentBlockHeight)
}

func TestVMSetState(t *testing.T) {
	require := require.New(t)

	vm, cleanup := createTestVM(t)
	defer cleanup()

	err := vm.SetState(context.Background(), uint32(consensuscore.Bootstrapping))
	require.NoError(err)
	require.False(vm.bootstrapped)

	err = vm.SetState(context.Background(), uint32(consensuscore.Ready))
	require.NoError(err)
	require.True(vm.bootstrapped)
}

func TestVMVersion(t *testing.T) {
	require := require.New(t)

	vm, cleanup := createTestVM(t)
	defer cleanup()

	v, err := vm.Version(context.Background())
	require.NoError(err)
	require.Equal("1.0.0", v)
}

func TestVMHealthCheck(t *testing.T) {
	require := require.New(t)

	vm, cleanup := createTestVM(t)
	defer cleanup()

	health, err := vm.HealthCheck(context.Background())
	require.NoError(err)

	healthMap := health.(map[string]interface{})
	require.False(healthMap["healthy"].(bool))
	require.False(healthMap["bootstrapped"].(bool))
	require.Equal("functional", healthMap["mode"].(string))
	require.Equal(0, healthMap["pools"].(int))

	vm.SetState(context.Background(), uint32(consensuscore.Ready))

	health, err = vm.HealthCheck(context.Background())
	require.NoError(err)

	healthMap = health.(map[string]interface{})
	require.True(healthMap["healthy"].(bool))
	require.True(healthMap["bootstrapped"].(bool))
}

func TestVMPeerConnections(t *testing.T) {
	require := require.New(t)

	vm, cleanup := createTestVM(t)
	defer cleanup()

	nodeID := ids.GenerateTestNodeID()
	appVersion := &version.Application{}

	err := vm.Connected(context.Background(), nodeID, appVersion)
	require.NoError(err)

	vm.lock.RLock()
	_, exists := vm.connectedPeers[nodeID]
	vm.lock.RUnlock()
	require.True(exists)

	err = vm.Disconnected(context.Background(), nodeID)
	require.NoError(err)

	vm.lock.RLock()
	_, exists = vm.connectedPeers[nodeID]
	vm.lock.RUnlock()
	require.False(exists)
}

func TestVMCreateHandlers(t *testing.T) {
	require := require.New(t)

	vm, cleanup := createTestVM(t)
	defer cleanup()

	handlers, err := vm.CreateHandlers(context.Background())
	require.NoError(err)
	require.NotNil(handlers)
	require.Contains(handlers, "")
}

func TestVMIsBootstrapped(t *testing.T) {
	require := require.New(t)

	vm, cleanup := createTestVM(t)
	defer cleanup()

	require.False(vm.IsBootstrapped())

	vm.SetState(context.Background(), uint32(consensuscore.Ready))

	require.True(vm.IsBootstrapped())
}

func TestVMShutdown(t *testing.T) {
	require := require.New(t)

	vm, _ := createTestVM(t)

	err := vm.SetState(context.Background(), uint32(consensuscore.Ready))
	require.NoError(err)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	err = vm.Shutdown(ctx)
	require.NoError(err)
	require.True(vm.shutdown)
}

func TestVMAppGossip(t *testing.T) {
	require := require.New(t)

	vm, cleanup := createTestVM(t)
	defer cleanup()

	nodeID := ids.GenerateTestNodeID()
	err := vm.AppGossip(context.Background(), nodeID, []byte("test gossip"))
	require.NoError(err)
}

func TestVMAppRequest(t *testing.T) {
	require := require.New(t)

	vm, cleanup := createTestVM(t)
	defer cleanup()

	nodeID := ids.GenerateTestNodeID()
	deadline := time.Now().Add(time.Minute)
	err := vm.AppRequest(context.Background(), nodeID, 1, deadline, []byte("test request"))
	require.NoError(err)
}

func TestVMCrossChainAppRequest(t *testing.T) {
	require := require.New(t)

	vm, cleanup := createTestVM(t)
	defer cleanup()

	chainID := ids.GenerateTestID()
	deadline := time.Now().Add(time.Minute)
	err := vm.CrossChainAppRequest(context.Background(), chainID, 1, deadline, []byte("test cross-chain request"))
	require.NoError(err)
}

func TestVMProcessBlock(t *testing.T) {
	require := require.New(t)

	vm, cleanup := createTestVM(t)
	defer cleanup()

	err := vm.SetState(context.Background(), uint32(consensuscore.Ready))
	require.NoError(err)

	blockTime := time.Now()
	result, err := vm.ProcessBlock(context.Background(), 1, blockTime, nil)
	require.NoError(err)
	require.NotNil(result)
	require.Equal(uint64(1), result.BlockHeight)
	require.Equal(blockTime, result.Timestamp)
	require.Equal(0, result.AppliedTxs)

	require.Equal(uint64(1), vm.GetBlockHeight())
	require.Equal(blockTime, vm.GetLastBlockTime())
}

func TestVMProcessBlockCreatesPair(t *testing.T) {
	require := require.New(t)

	vm, cleanup := createTestVM(t)
	defer cleanup()

	require.NoError(vm.SetState(context.Background(), uint32(consensuscore.Ready)))

	result, err := vm.ProcessBlock(context.Background(), 1, time.Now(), [][]byte{createPairTx(lp)})
	require.NoError(err)
	require.Equal(1, result.AppliedTxs)
	require.Equal(0, result.FailedTxs)

	pool, ok := vm.GetFactory().GetPair(tokenA, tokenB)
	require.True(ok)
	require.Contains(vm.pools, pool.Address())
}

func TestVMProcessBlockMintBurnSwap(t *testing.T) {
	require := require.New(t)

	vm, cleanup := createTestVM(t)
	defer cleanup()

	require.NoError(vm.SetState(context.Background(), uint32(consensuscore.Ready)))

	_, err := vm.ProcessBlock(context.Background(), 1, time.Now(), [][]byte{createPairTx(lp)})
	require.NoError(err)

	pool, ok := vm.GetFactory().GetPair(tokenA, tokenB)
	require.True(ok)

	// Credit the pool's native-token balances directly, modeling a prior
	// transfer into the pool, then mint against the deposit.
	require.NoError(vm.state.Credit(tokenA, pool.Address(), e18(1)))
	require.NoError(vm.state.Credit(tokenB, pool.Address(), e18(4)))

	result, err := vm.ProcessBlock(context.Background(), 2, time.Now(), [][]byte{mintTx(lp, pool.Address(), lp)})
	require.NoError(err)
	require.Equal(1, result.AppliedTxs)

	wantShares := new(uint256.Int).Sub(e18(2), uint256.NewInt(1000))
	require.Equal(wantShares, pool.BalanceOf(lp))

	// Swap a small amount of token0 for token1.
	amountIn := new(uint256.Int).Div(e18(1), uint256.NewInt(10))
	require.NoError(vm.state.Credit(tokenA, pool.Address(), amountIn))
	result, err = vm.ProcessBlock(context.Background(), 3, time.Now(), [][]byte{
		swapTx(lp, pool.Address(), new(uint256.Int), uint256.NewInt(1), lp),
	})
	require.NoError(err)
	require.Equal(1, result.AppliedTxs)

	// Burn the full LP position back.
	liquidity := pool.BalanceOf(lp)
	require.NoError(pool.Transfer(lp, pool.Address(), liquidity))

	result, err = vm.ProcessBlock(context.Background(), 4, time.Now(), [][]byte{burnTx(lp, pool.Address(), lp)})
	require.NoError(err)
	require.Equal(1, result.AppliedTxs)
}

// funcSwapCallback adapts a plain function to amm.SwapCallback, mirroring
// the amm package's own flashCallback test helper.
type funcSwapCallback func(sender common.Address, amount0Out, amount1Out *uint256.Int, data []byte) error

func (f funcSwapCallback) Call(sender common.Address, amount0Out, amount1Out *uint256.Int, data []byte) error {
	return f(sender, amount0Out, amount1Out, data)
}

// TestVMProcessBlockFlashSwap exercises a flash swap end to end through
// ProcessBlock: the swap's to address never holds the input token before
// the tx runs, and only receives it because VM.RegisterSwapCallback bound
// a callback that repays the pool mid-swap.
func TestVMProcessBlockFlashSwap(t *testing.T) {
	require := require.New(t)

	vm, cleanup := createTestVM(t)
	defer cleanup()

	require.NoError(vm.SetState(context.Background(), uint32(consensuscore.Ready)))

	_, err := vm.ProcessBlock(context.Background(), 1, time.Now(), [][]byte{createPairTx(lp)})
	require.NoError(err)

	pool, ok := vm.GetFactory().GetPair(tokenA, tokenB)
	require.True(ok)

	require.NoError(vm.state.Credit(tokenA, pool.Address(), e18(10)))
	require.NoError(vm.state.Credit(tokenB, pool.Address(), e18(10)))
	_, err = vm.ProcessBlock(context.Background(), 2, time.Now(), [][]byte{mintTx(lp, pool.Address(), lp)})
	require.NoError(err)

	trader := common.HexToAddress("0xface0facef0cef0cef0cef0cef0cef0cef0cef0c")
	amount1Out := e18(1)
	reserve0, reserve1, _ := pool.GetReserves()
	amountIn, err := amm.GetAmountIn(amount1Out, reserve0, reserve1)
	require.NoError(err)

	var repaid bool
	vm.RegisterSwapCallback(trader, funcSwapCallback(func(sender common.Address, amount0Out, amount1Out *uint256.Int, data []byte) error {
		repaid = true
		return vm.state.Credit(tokenA, pool.Address(), amountIn)
	}))

	tx := &txs.Tx{
		Type:       txs.TypeSwap,
		Caller:     lp,
		Pool:       pool.Address(),
		To:         trader,
		Amount1Out: amount1Out.Bytes32(),
		CallData:   []byte("flash"),
	}
	result, err := vm.ProcessBlock(context.Background(), 3, time.Now(), [][]byte{tx.Bytes()})
	require.NoError(err)
	require.Equal(1, result.AppliedTxs)
	require.True(repaid)

	bal, err := vm.state.BalanceOf(tokenB, trader)
	require.NoError(err)
	require.Equal(amount1Out, bal)
}

// TestVMProcessBlockSwapWithoutRegisteredCallbackStillRequiresPrefunding
// checks that a swap naming callback_data against a to address with no
// registered callback doesn't get free output: it degrades to a plain swap,
// which still needs the input pre-funded, and fails the input-amount check
// otherwise.
func TestVMProcessBlockSwapWithoutRegisteredCallbackStillRequiresPrefunding(t *testing.T) {
	require := require.New(t)

	vm, cleanup := createTestVM(t)
	defer cleanup()

	require.NoError(vm.SetState(context.Background(), uint32(consensuscore.Ready)))

	_, err := vm.ProcessBlock(context.Background(), 1, time.Now(), [][]byte{createPairTx(lp)})
	require.NoError(err)

	pool, ok := vm.GetFactory().GetPair(tokenA, tokenB)
	require.True(ok)

	require.NoError(vm.state.Credit(tokenA, pool.Address(), e18(10)))
	require.NoError(vm.state.Credit(tokenB, pool.Address(), e18(10)))
	_, err = vm.ProcessBlock(context.Background(), 2, time.Now(), [][]byte{mintTx(lp, pool.Address(), lp)})
	require.NoError(err)

	unregistered := common.HexToAddress("0xbeefbeefbeefbeefbeefbeefbeefbeefbeefbeef")
	tx := &txs.Tx{
		Type:       txs.TypeSwap,
		Caller:     lp,
		Pool:       pool.Address(),
		To:         unregistered,
		Amount1Out: e18(1).Bytes32(),
		CallData:   []byte("flash"),
	}
	result, err := vm.ProcessBlock(context.Background(), 3, time.Now(), [][]byte{tx.Bytes()})
	require.NoError(err)
	require.Equal(0, result.AppliedTxs)
	require.Equal(1, result.FailedTxs)
}

// TestVMProcessBlockFailedSwapRollsBackLedger exercises the per-tx ledger
// checkpoint: a swap that fails after its optimistic output transfer leaves
// no trace in the token ledger, neither at the recipient nor the pool.
func TestVMProcessBlockFailedSwapRollsBackLedger(t *testing.T) {
	require := require.New(t)

	vm, cleanup := createTestVM(t)
	defer cleanup()

	require.NoError(vm.SetState(context.Background(), uint32(consensuscore.Ready)))

	_, err := vm.ProcessBlock(context.Background(), 1, time.Now(), [][]byte{createPairTx(lp)})
	require.NoError(err)

	pool, ok := vm.GetFactory().GetPair(tokenA, tokenB)
	require.True(ok)

	require.NoError(vm.state.Credit(tokenA, pool.Address(), e18(10)))
	require.NoError(vm.state.Credit(tokenB, pool.Address(), e18(10)))
	_, err = vm.ProcessBlock(context.Background(), 2, time.Now(), [][]byte{mintTx(lp, pool.Address(), lp)})
	require.NoError(err)

	// No input is provided, so the swap transfers its output optimistically
	// and then fails the input check.
	trader := common.HexToAddress("0xcafecafecafecafecafecafecafecafecafecafe")
	result, err := vm.ProcessBlock(context.Background(), 3, time.Now(), [][]byte{
		swapTx(lp, pool.Address(), new(uint256.Int), e18(1), trader),
	})
	require.NoError(err)
	require.Equal(1, result.FailedTxs)

	traderBal, err := vm.state.BalanceOf(tokenB, trader)
	require.NoError(err)
	require.True(traderBal.IsZero())

	poolBal, err := vm.state.BalanceOf(tokenB, pool.Address())
	require.NoError(err)
	require.Equal(e18(10), poolBal)
}

func TestVMProcessBlockFailingTxDoesNotFailBlock(t *testing.T) {
	require := require.New(t)

	vm, cleanup := createTestVM(t)
	defer cleanup()

	require.NoError(vm.SetState(context.Background(), uint32(consensuscore.Ready)))

	// Mint against a pool that was never created.
	bogusPool := common.HexToAddress("0xdeaddeaddeaddeaddeaddeaddeaddeaddeaddead")
	result, err := vm.ProcessBlock(context.Background(), 1, time.Now(), [][]byte{mintTx(lp, bogusPool, lp)})
	require.NoError(err)
	require.Equal(0, result.AppliedTxs)
	require.Equal(1, result.FailedTxs)
	require.Equal(uint64(1), vm.GetBlockHeight())
}

func TestVMProcessBlockAfterShutdown(t *testing.T) {
	require := require.New(t)

	vm, _ := createTestVM(t)

	err := vm.SetState(context.Background(), uint32(consensuscore.Ready))
	require.NoError(err)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	err = vm.Shutdown(ctx)
	cancel()
	require.NoError(err)

	_, err = vm.ProcessBlock(context.Background(), 1, time.Now(), nil)
	require.ErrorIs(err, errShutdown)
}

func TestVMGetBlockHeight(t *testing.T) {
	require := require.New(t)

	vm, cleanup := createTestVM(t)
	defer cleanup()

	require.Equal(uint64(0), vm.GetBlockHeight())

	vm.SetState(context.Background(), uint32(consensuscore.Ready))

	vm.ProcessBlock(context.Background(), 1, time.Now(), nil)
	require.Equal(uint64(1), vm.GetBlockHeight())

	vm.ProcessBlock(context.Background(), 2, time.Now(), nil)
	require.Equal(uint64(2), vm.GetBlockHeight())

	vm.ProcessBlock(context.Background(), 100, time.Now(), nil)
	require.Equal(uint64(100), vm.GetBlockHeight())
}

// TestVMTradingFlow creates a pair through ProcessBlock and checks that the
// pool listing and the health check report it in the same pass.
func TestVMTradingFlow(t *testing.T) {
	require := require.New(t)

	vm, cleanup := createTestVM(t)
	defer cleanup()

	require.NoError(vm.SetState(context.Background(), uint32(consensuscore.Ready)))

	_, err := vm.ProcessBlock(context.Background(), 1, time.Now(), [][]byte{createPairTx(lp)})
	require.NoError(err)

	pools := vm.ListPools()
	require.Len(pools, 1)

	health, err := vm.HealthCheck(context.Background())
	require.NoError(err)
	healthMap := health.(map[string]interface{})
	require.True(healthMap["healthy"].(bool))
	require.Equal(1, healthMap["pools"].(int))
	require.Equal("functional", healthMap["mode"].(string))
}

// TestVMDeterminism verifies two independently initialized VMs on the same
// chain ID produce identical accounting — including pool addresses, which
// are derived from the chain-scoped factory — from an identical tx sequence.
func TestVMDeterminism(t *testing.T) {
	require := require.New(t)

	chainID := ids.GenerateTestID()
	vm1, cleanup1 := createTestVMWithChainID(t, chainID)
	defer cleanup1()
	vm2, cleanup2 := createTestVMWithChainID(t, chainID)
	defer cleanup2()

	vm1.SetState(context.Background(), uint32(consensuscore.Ready))
	vm2.SetState(context.Background(), uint32(consensuscore.Ready))

	blockTime := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	txBytes := [][]byte{createPairTx(lp)}

	result1, err := vm1.ProcessBlock(context.Background(), 1, blockTime, txBytes)
	require.NoError(err)
	result2, err := vm2.ProcessBlock(context.Background(), 1, blockTime, txBytes)
	require.NoError(err)

	require.Equal(result1.BlockHeight, result2.BlockHeight)
	require.Equal(result1.Timestamp, result2.Timestamp)
	require.Equal(result1.AppliedTxs, result2.AppliedTxs)
	require.Equal(result1.FailedTxs, result2.FailedTxs)

	pool1, ok1 := vm1.GetFactory().GetPair(tokenA, tokenB)
	pool2, ok2 := vm2.GetFactory().GetPair(tokenA, tokenB)
	require.True(ok1)
	require.True(ok2)
	require.Equal(pool1.Address(), pool2.Address())
}

func BenchmarkVMInitialize(b *testing.B) {
	logger := log.NewNoOpLogger()
	cfg := config.DefaultConfig()

	for i := 0; i < b.N; i++ {
		vm := &VM{
			Config: cfg,
			log:    logger,
		}

		chainID := ids.GenerateTestID()
		db := memdb.New()
		toEngine := make(chan luxvm.Message, 100)
		appSender := warp.FakeSender{}

		consensusCtx := &consensusctx.Context{
			ChainID: chainID,
		}

		vm.Initialize(
			context.Background(),
			consensusCtx,
			db,
			nil,
			nil,
			nil,
			toEngine,
			nil,
			appSender,
		)

		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		vm.Shutdown(ctx)
		cancel()
	}
}

func BenchmarkVMProcessBlock(b *testing.B) {
	logger := log.NewNoOpLogger()
	cfg := config.DefaultConfig()

	vm := &VM{
		Config: cfg,
		log:    logger,
	}

	chainID := ids.GenerateTestID()
	db := memdb.New()
	toEngine := make(chan luxvm.Message, 100)
	appSender := warp.FakeSender{}

	consensusCtx := &consensusctx.Context{
		ChainID: chainID,
	}

	vm.Initialize(
		context.Background(),
		consensusCtx,
		db,
		nil,
		nil,
		nil,
		toEngine,
		nil,
		appSender,
	)
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		vm.Shutdown(ctx)
		cancel()
	}()

	vm.SetState(context.Background(), uint32(consensuscore.Ready))

	blockTime := time.Now()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		vm.ProcessBlock(context.Background(), uint64(i+1), blockTime.Add(time.Duration(i)*time.Millisecond), nil)
	}
}
