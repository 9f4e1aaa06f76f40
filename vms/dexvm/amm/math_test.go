// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package amm

import (
	"testing"

	"github.com/holiman/uint256"
	"github.com/stretchr/testify/require"
)

func TestCheckedAdd(t *testing.T) {
	require := require.New(t)

	sum, err := checkedAdd(uint256.NewInt(2), uint256.NewInt(3))
	require.NoError(err)
	require.Equal(uint256.NewInt(5), sum)

	maxVal := new(uint256.Int).Not(new(uint256.Int))
	_, err = checkedAdd(maxVal, uint256.NewInt(1))
	require.ErrorIs(err, ErrOverflow)
}

func TestCheckedSub(t *testing.T) {
	require := require.New(t)

	diff, err := checkedSub(uint256.NewInt(5), uint256.NewInt(3))
	require.NoError(err)
	require.Equal(uint256.NewInt(2), diff)

	_, err = checkedSub(uint256.NewInt(3), uint256.NewInt(5))
	require.ErrorIs(err, ErrOverflow)
}

func TestCheckedMul(t *testing.T) {
	require := require.New(t)

	product, err := checkedMul(uint256.NewInt(6), uint256.NewInt(7))
	require.NoError(err)
	require.Equal(uint256.NewInt(42), product)

	product, err = checkedMul(new(uint256.Int), uint256.NewInt(7))
	require.NoError(err)
	require.True(product.IsZero())

	maxVal := new(uint256.Int).Not(new(uint256.Int))
	_, err = checkedMul(maxVal, uint256.NewInt(2))
	require.ErrorIs(err, ErrOverflow)
}

func TestIsqrt(t *testing.T) {
	require := require.New(t)

	cases := []struct {
		in, want uint64
	}{
		{0, 0},
		{1, 1},
		{2, 1},
		{3, 1},
		{4, 2},
		{9, 3},
		{10, 3},
		{1_000_000, 1000},
	}
	for _, c := range cases {
		got := isqrt(uint256.NewInt(c.in))
		require.Equal(uint256.NewInt(c.want), got, "isqrt(%d)", c.in)
	}
}

func TestMinUint256(t *testing.T) {
	require := require.New(t)
	require.Equal(uint256.NewInt(3), minUint256(uint256.NewInt(3), uint256.NewInt(5)))
	require.Equal(uint256.NewInt(3), minUint256(uint256.NewInt(5), uint256.NewInt(3)))
}
