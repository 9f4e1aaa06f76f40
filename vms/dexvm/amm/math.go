// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package amm

import "github.com/holiman/uint256"

var (
	one   = uint256.NewInt(1)
	two   = uint256.NewInt(2)
	three = uint256.NewInt(3)
	five  = uint256.NewInt(5)

	// max112 is 2^112 - 1, the largest value reserve0/reserve1 may hold.
	max112 = new(uint256.Int).Sub(new(uint256.Int).Lsh(one, 112), one)
)

// checkedAdd returns a+b, failing with ErrOverflow if the sum wraps.
func checkedAdd(a, b *uint256.Int) (*uint256.Int, error) {
	sum := new(uint256.Int).Add(a, b)
	if sum.Cmp(a) < 0 {
		return nil, ErrOverflow
	}
	return sum, nil
}

// checkedSub returns a-b, failing with ErrOverflow if b > a.
func checkedSub(a, b *uint256.Int) (*uint256.Int, error) {
	if a.Cmp(b) < 0 {
		return nil, ErrOverflow
	}
	return new(uint256.Int).Sub(a, b), nil
}

// checkedMul returns a*b, failing with ErrOverflow if the product wraps.
func checkedMul(a, b *uint256.Int) (*uint256.Int, error) {
	if a.IsZero() || b.IsZero() {
		return new(uint256.Int), nil
	}
	product := new(uint256.Int).Mul(a, b)
	if new(uint256.Int).Div(product, a).Cmp(b) != 0 {
		return nil, ErrOverflow
	}
	return product, nil
}

// mulDiv returns floor(a*b/denom), failing with ErrOverflow if a*b wraps.
// denom must be non-zero; a zero denominator returns zero, matching
// uint256's EVM-style division-by-zero semantics.
func mulDiv(a, b, denom *uint256.Int) (*uint256.Int, error) {
	product, err := checkedMul(a, b)
	if err != nil {
		return nil, err
	}
	return new(uint256.Int).Div(product, denom), nil
}

// minUint256 returns the smaller of a and b.
func minUint256(a, b *uint256.Int) *uint256.Int {
	if a.Cmp(b) <= 0 {
		return a
	}
	return b
}

// isqrt returns floor(sqrt(y)) using the Babylonian method, matching the
// Math.sqrt helper the pool engine's fee math is built on.
func isqrt(y *uint256.Int) *uint256.Int {
	z := new(uint256.Int)
	if y.Cmp(three) > 0 {
		z.Set(y)
		x := new(uint256.Int).Add(new(uint256.Int).Div(y, two), one)
		for x.Cmp(z) < 0 {
			z.Set(x)
			t := new(uint256.Int).Div(y, x)
			x.Add(x, t)
			x.Div(x, two)
		}
	} else if !y.IsZero() {
		z.Set(one)
	}
	return z
}
