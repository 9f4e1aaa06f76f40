// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package oracle provides a consumer-side TWAP reader for pools: it
// differences two (priceCumulative, timestamp) snapshots into a UQ112.112
// time-weighted average price, the same way an off-chain consumer of a
// constant-product pool's cumulative price accumulators would.
package oracle

import (
	"errors"

	"github.com/holiman/uint256"
)

var (
	// ErrNoElapsedTime indicates the two snapshots share a timestamp, so no
	// average can be derived between them.
	ErrNoElapsedTime = errors.New("snapshots have no elapsed time between them")

	// ErrWindowTooShort indicates fewer seconds elapsed between snapshots
	// than the caller's requested minimum window.
	ErrWindowTooShort = errors.New("elapsed time below requested window")
)

// Snapshot is one observation of a pool's cumulative price accumulator,
// taken by calling Pool.PriceCumulativeLast and Pool.GetReserves (for its
// blockTimestampLast) at a point in time a consumer cares about.
type Snapshot struct {
	PriceCumulative *uint256.Int
	Timestamp       uint32
}

// NewSnapshot captures a cumulative price and its accumulation timestamp.
func NewSnapshot(priceCumulative *uint256.Int, timestamp uint32) Snapshot {
	return Snapshot{PriceCumulative: priceCumulative, Timestamp: timestamp}
}

// TWAP differences two snapshots of the same accumulator into a UQ112.112
// time-weighted average price covering the interval between them.
//
// elapsed is computed mod 2^32, matching the accumulator's own intentional
// timestamp wraparound, so this is safe to call across a uint32 rollover as
// long as the two snapshots are no more than ~136 years apart.
func TWAP(older, newer Snapshot) (*uint256.Int, error) {
	elapsed := newer.Timestamp - older.Timestamp
	if elapsed == 0 {
		return nil, ErrNoElapsedTime
	}

	diff := new(uint256.Int).Sub(newer.PriceCumulative, older.PriceCumulative)
	return diff.Div(diff, uint256.NewInt(uint64(elapsed))), nil
}

// TWAPOverWindow is TWAP, but additionally requires at least minElapsed
// seconds between the two snapshots, guarding against a manipulation window
// too short to be meaningful.
func TWAPOverWindow(older, newer Snapshot, minElapsed uint32) (*uint256.Int, error) {
	elapsed := newer.Timestamp - older.Timestamp
	if elapsed == 0 {
		return nil, ErrNoElapsedTime
	}
	if elapsed < minElapsed {
		return nil, ErrWindowTooShort
	}
	return TWAP(older, newer)
}

// DecodeUQ112x112 converts a UQ112.112 fixed-point value into its integer
// part, discarding the fractional 112 bits. Callers wanting the fractional
// part should work with the raw *uint256.Int returned by TWAP directly.
func DecodeUQ112x112(value *uint256.Int) *uint256.Int {
	return new(uint256.Int).Rsh(value, 112)
}
