// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package amm

import (
	"testing"

	"github.com/holiman/uint256"
	"github.com/stretchr/testify/require"
)

func TestEncodeAndUqdiv(t *testing.T) {
	require := require.New(t)

	encoded := encode(uint256.NewInt(1))
	want := new(uint256.Int).Lsh(uint256.NewInt(1), 112)
	require.Equal(want, encoded)

	// price of 2 token1 per token0 (reserve1=2, reserve0=1), decoded back.
	price := uqdiv(encode(uint256.NewInt(2)), uint256.NewInt(1))
	decoded := new(uint256.Int).Rsh(price, 112)
	require.Equal(uint256.NewInt(2), decoded)
}
