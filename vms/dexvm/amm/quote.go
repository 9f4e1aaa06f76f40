// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package amm

import "github.com/holiman/uint256"

// GetAmountOut computes the output amount a swap of amountIn against
// (reserveIn, reserveOut) would yield under the fee-adjusted
// constant-product invariant, without mutating any pool state. Used for
// off-chain quoting (the api package's Quote RPC) and by callers deciding
// what amountOut to actually request from Pool.Swap.
func GetAmountOut(amountIn, reserveIn, reserveOut *uint256.Int) (*uint256.Int, error) {
	if amountIn.IsZero() {
		return nil, ErrInsufficientInputAmount
	}
	if reserveIn.IsZero() || reserveOut.IsZero() {
		return nil, ErrInsufficientLiquidity
	}

	amountInWithFee, err := checkedMul(amountIn, uint256.NewInt(feeNumerator))
	if err != nil {
		return nil, err
	}
	numerator, err := checkedMul(amountInWithFee, reserveOut)
	if err != nil {
		return nil, err
	}
	scaledReserveIn, err := checkedMul(reserveIn, uint256.NewInt(feeDenominator))
	if err != nil {
		return nil, err
	}
	denominator, err := checkedAdd(scaledReserveIn, amountInWithFee)
	if err != nil {
		return nil, err
	}
	return new(uint256.Int).Div(numerator, denominator), nil
}

// GetAmountIn computes the input amount required to receive exactly
// amountOut from (reserveIn, reserveOut), the inverse of GetAmountOut.
func GetAmountIn(amountOut, reserveIn, reserveOut *uint256.Int) (*uint256.Int, error) {
	if amountOut.IsZero() {
		return nil, ErrInsufficientOutputAmount
	}
	if reserveIn.IsZero() || reserveOut.IsZero() || amountOut.Cmp(reserveOut) >= 0 {
		return nil, ErrInsufficientLiquidity
	}

	numerator, err := checkedMul(new(uint256.Int).Mul(reserveIn, uint256.NewInt(feeDenominator)), amountOut)
	if err != nil {
		return nil, err
	}
	denominator, err := checkedMul(new(uint256.Int).Sub(reserveOut, amountOut), uint256.NewInt(feeNumerator))
	if err != nil {
		return nil, err
	}
	amountIn := new(uint256.Int).Div(numerator, denominator)
	return new(uint256.Int).AddUint64(amountIn, 1), nil
}
