// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package api provides RPC API handlers for the DEX VM.
package api

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/holiman/uint256"
	"github.com/luxfi/geth/common"

	"github.com/luxfi/vm/utils/json"
	"github.com/luxfi/vm/vms/dexvm/amm"
)

var (
	ErrNotBootstrapped = errors.New("DEX not bootstrapped")
	ErrInvalidRequest  = errors.New("invalid request")
	ErrPoolNotFound    = errors.New("pool not found")
)

// VM is the surface the API service needs from the functional VM.
type VM interface {
	IsBootstrapped() bool
	GetFactory() *amm.Factory
	GetPool(addr common.Address) (*amm.Pool, bool)
	ListPools() []*amm.Pool
}

// Service provides the read-only RPC API for the DEX VM.
type Service struct {
	vm VM
}

// NewService creates a new API service.
func NewService(vm VM) *Service {
	return &Service{vm: vm}
}

// PingArgs is the argument for the Ping API.
type PingArgs struct{}

// PingReply is the reply for the Ping API.
type PingReply struct {
	Success bool `json:"success"`
}

// Ping returns a simple health check response.
func (s *Service) Ping(_ *http.Request, _ *PingArgs, reply *PingReply) error {
	reply.Success = true
	return nil
}

// StatusArgs is the argument for the Status API.
type StatusArgs struct{}

// StatusReply is the reply for the Status API.
type StatusReply struct {
	Bootstrapped bool   `json:"bootstrapped"`
	Version      string `json:"version"`
}

// Status returns the DEX status.
func (s *Service) Status(_ *http.Request, _ *StatusArgs, reply *StatusReply) error {
	reply.Bootstrapped = s.vm.IsBootstrapped()
	reply.Version = "1.0.0"
	return nil
}

func parseAddress(s string) (common.Address, error) {
	if !common.IsHexAddress(s) {
		return common.Address{}, fmt.Errorf("%w: invalid address %q", ErrInvalidRequest, s)
	}
	return common.HexToAddress(s), nil
}

func parseUint256(s string) (*uint256.Int, error) {
	v := new(uint256.Int)
	if err := v.SetFromDecimal(s); err != nil {
		return nil, fmt.Errorf("%w: invalid amount %q", ErrInvalidRequest, s)
	}
	return v, nil
}

// GetPairArgs is the argument for the GetPair API.
type GetPairArgs struct {
	TokenA string `json:"tokenA"`
	TokenB string `json:"tokenB"`
}

// GetPairReply is the reply for the GetPair API.
type GetPairReply struct {
	Pool   common.Address `json:"pool"`
	Exists bool           `json:"exists"`
}

// GetPair resolves the pool address for a token pair, if one exists.
func (s *Service) GetPair(_ *http.Request, args *GetPairArgs, reply *GetPairReply) error {
	if !s.vm.IsBootstrapped() {
		return ErrNotBootstrapped
	}

	tokenA, err := parseAddress(args.TokenA)
	if err != nil {
		return err
	}
	tokenB, err := parseAddress(args.TokenB)
	if err != nil {
		return err
	}

	pool, ok := s.vm.GetFactory().GetPair(tokenA, tokenB)
	if !ok {
		return nil
	}
	reply.Pool = pool.Address()
	reply.Exists = true
	return nil
}

// GetReservesArgs is the argument for the GetReserves API.
type GetReservesArgs struct {
	Pool string `json:"pool"`
}

// GetReservesReply is the reply for the GetReserves API. Amounts are decimal
// strings: reserves are 112-bit quantities, past any JSON number's exact
// integer range.
type GetReservesReply struct {
	Reserve0           string      `json:"reserve0"`
	Reserve1           string      `json:"reserve1"`
	BlockTimestampLast json.Uint32 `json:"blockTimestampLast"`
}

// GetReserves returns a pool's current reserves and last accumulator
// timestamp.
func (s *Service) GetReserves(_ *http.Request, args *GetReservesArgs, reply *GetReservesReply) error {
	if !s.vm.IsBootstrapped() {
		return ErrNotBootstrapped
	}

	poolAddr, err := parseAddress(args.Pool)
	if err != nil {
		return err
	}
	pool, ok := s.vm.GetPool(poolAddr)
	if !ok {
		return ErrPoolNotFound
	}

	reserve0, reserve1, blockTimestampLast := pool.GetReserves()
	reply.Reserve0 = reserve0.Dec()
	reply.Reserve1 = reserve1.Dec()
	reply.BlockTimestampLast = json.Uint32(blockTimestampLast)
	return nil
}

// ListPairsArgs is the argument for the ListPairs API.
type ListPairsArgs struct{}

// PairInfo summarizes one registered pool for listing.
type PairInfo struct {
	Pool   common.Address `json:"pool"`
	Token0 common.Address `json:"token0"`
	Token1 common.Address `json:"token1"`
}

// ListPairsReply is the reply for the ListPairs API.
type ListPairsReply struct {
	Pairs []PairInfo `json:"pairs"`
}

// ListPairs returns every pool the factory has created.
func (s *Service) ListPairs(_ *http.Request, _ *ListPairsArgs, reply *ListPairsReply) error {
	if !s.vm.IsBootstrapped() {
		return ErrNotBootstrapped
	}

	pools := s.vm.ListPools()
	reply.Pairs = make([]PairInfo, 0, len(pools))
	for _, pool := range pools {
		reply.Pairs = append(reply.Pairs, PairInfo{
			Pool:   pool.Address(),
			Token0: pool.Token0(),
			Token1: pool.Token1(),
		})
	}
	return nil
}

// QuoteArgs is the argument for the Quote API.
type QuoteArgs struct {
	Pool     string `json:"pool"`
	TokenIn  string `json:"tokenIn"`
	AmountIn string `json:"amountIn"`
}

// QuoteReply is the reply for the Quote API.
type QuoteReply struct {
	AmountOut string `json:"amountOut"`
}

// Quote returns the constant-product swap output for amountIn of tokenIn
// against a pool's current reserves, net of the 0.3% trading fee. This is a
// read-only estimate: it does not touch pool state or apply a transaction.
func (s *Service) Quote(_ *http.Request, args *QuoteArgs, reply *QuoteReply) error {
	if !s.vm.IsBootstrapped() {
		return ErrNotBootstrapped
	}

	poolAddr, err := parseAddress(args.Pool)
	if err != nil {
		return err
	}
	tokenIn, err := parseAddress(args.TokenIn)
	if err != nil {
		return err
	}
	amountIn, err := parseUint256(args.AmountIn)
	if err != nil {
		return err
	}

	pool, ok := s.vm.GetPool(poolAddr)
	if !ok {
		return ErrPoolNotFound
	}

	reserve0, reserve1, _ := pool.GetReserves()
	var reserveIn, reserveOut *uint256.Int
	switch tokenIn {
	case pool.Token0():
		reserveIn, reserveOut = reserve0, reserve1
	case pool.Token1():
		reserveIn, reserveOut = reserve1, reserve0
	default:
		return fmt.Errorf("%w: token %s is not in this pool", ErrInvalidRequest, tokenIn)
	}
	if reserveIn.IsZero() || reserveOut.IsZero() {
		return fmt.Errorf("%w: pool has no liquidity", ErrInvalidRequest)
	}

	amountOut, err := amm.GetAmountOut(amountIn, reserveIn, reserveOut)
	if err != nil {
		return err
	}
	reply.AmountOut = amountOut.Dec()
	return nil
}

// FeeToArgs is the argument for the FeeTo API.
type FeeToArgs struct{}

// FeeToReply is the reply for the FeeTo API.
type FeeToReply struct {
	FeeTo       common.Address `json:"feeTo"`
	FeeToSetter common.Address `json:"feeToSetter"`
}

// FeeTo returns the factory's current protocol-fee recipient and its
// governance setter.
func (s *Service) FeeTo(_ *http.Request, _ *FeeToArgs, reply *FeeToReply) error {
	if !s.vm.IsBootstrapped() {
		return ErrNotBootstrapped
	}
	reply.FeeTo = s.vm.GetFactory().FeeTo()
	reply.FeeToSetter = s.vm.GetFactory().FeeToSetter()
	return nil
}
