// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package amm

import "github.com/holiman/uint256"

// resolution is the number of fractional bits in a UQ112.112 fixed-point
// value: a 112-bit unsigned integer x is encoded as x * 2^112 inside a
// 224-bit unsigned value (we carry it in a 256-bit uint256.Int).
const resolution = 112

// encode returns y, a 112-bit unsigned value, as a UQ112.112 fixed-point
// fraction (y * 2^112).
func encode(y *uint256.Int) *uint256.Int {
	return new(uint256.Int).Lsh(y, resolution)
}

// uqdiv divides a UQ112.112 numerator by a 112-bit unsigned denominator,
// truncating. Division by zero is never called with reserve inputs: callers
// only invoke uqdiv after confirming both reserves are nonzero.
func uqdiv(x, y *uint256.Int) *uint256.Int {
	return new(uint256.Int).Div(x, y)
}
