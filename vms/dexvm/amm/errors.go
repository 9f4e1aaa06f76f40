// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package amm implements the constant-product AMM core: the pool-share
// token, the pool engine, and the pair factory.
package amm

import "errors"

var (
	ErrLocked                      = errors.New("LOCKED")
	ErrOverflow                    = errors.New("OVERFLOW")
	ErrInsufficientLiquidityMinted = errors.New("INSUFFICIENT_LIQUIDITY_MINTED")
	ErrInsufficientLiquidityBurned = errors.New("INSUFFICIENT_LIQUIDITY_BURNED")
	ErrInsufficientOutputAmount    = errors.New("INSUFFICIENT_OUTPUT_AMOUNT")
	ErrInsufficientLiquidity       = errors.New("INSUFFICIENT_LIQUIDITY")
	ErrInvalidTo                   = errors.New("INVALID_TO")
	ErrInsufficientInputAmount     = errors.New("INSUFFICIENT_INPUT_AMOUNT")
	ErrK                           = errors.New("K")
	ErrTransferFailed              = errors.New("TRANSFER_FAILED")
	ErrIdenticalAddresses          = errors.New("IDENTICAL_ADDRESSES")
	ErrZeroAddress                 = errors.New("ZERO_ADDRESS")
	ErrPairExists                  = errors.New("PAIR_EXISTS")
	ErrForbidden                   = errors.New("FORBIDDEN")
	ErrExpired                     = errors.New("EXPIRED")
	ErrInvalidSignature            = errors.New("INVALID_SIGNATURE")
)
