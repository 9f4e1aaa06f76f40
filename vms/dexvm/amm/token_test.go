// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package amm

import (
	"testing"

	"github.com/holiman/uint256"
	"github.com/luxfi/geth/common"
	"github.com/luxfi/geth/crypto"
	"github.com/stretchr/testify/require"
)

func TestMintBurnShares(t *testing.T) {
	require := require.New(t)

	tok := newPoolToken()
	addr := common.HexToAddress("0x1111111111111111111111111111111111111111")

	require.NoError(tok.mintShares(addr, uint256.NewInt(100)))
	require.Equal(uint256.NewInt(100), tok.BalanceOf(addr))
	require.Equal(uint256.NewInt(100), tok.TotalSupply())

	require.NoError(tok.burnShares(addr, uint256.NewInt(40)))
	require.Equal(uint256.NewInt(60), tok.BalanceOf(addr))
	require.Equal(uint256.NewInt(60), tok.TotalSupply())

	require.Error(tok.burnShares(addr, uint256.NewInt(1000)))
}

func TestTransferAndApprove(t *testing.T) {
	require := require.New(t)

	tok := newPoolToken()
	alice := common.HexToAddress("0xaaaa000000000000000000000000000000aaaa")
	bob := common.HexToAddress("0xbbbb000000000000000000000000000000bbbb")
	carol := common.HexToAddress("0xcccc000000000000000000000000000000cccc")

	require.NoError(tok.mintShares(alice, uint256.NewInt(1000)))
	require.NoError(tok.Transfer(alice, bob, uint256.NewInt(300)))
	require.Equal(uint256.NewInt(700), tok.BalanceOf(alice))
	require.Equal(uint256.NewInt(300), tok.BalanceOf(bob))

	tok.Approve(bob, carol, uint256.NewInt(50))
	require.Equal(uint256.NewInt(50), tok.Allowance(bob, carol))

	require.NoError(tok.TransferFrom(carol, bob, carol, uint256.NewInt(20)))
	require.Equal(uint256.NewInt(30), tok.Allowance(bob, carol))
	require.Equal(uint256.NewInt(20), tok.BalanceOf(carol))

	// over-allowance transferFrom fails without touching balances.
	require.Error(tok.TransferFrom(carol, bob, carol, uint256.NewInt(1000)))
}

func TestTransferFromInfiniteAllowanceNotDecremented(t *testing.T) {
	require := require.New(t)

	tok := newPoolToken()
	alice := common.HexToAddress("0xaaaa000000000000000000000000000000aaaa")
	bob := common.HexToAddress("0xbbbb000000000000000000000000000000bbbb")

	require.NoError(tok.mintShares(alice, uint256.NewInt(1000)))
	tok.Approve(alice, bob, maxUint256)

	require.NoError(tok.TransferFrom(bob, alice, bob, uint256.NewInt(500)))
	require.Equal(maxUint256, tok.Allowance(alice, bob))
}

func TestPermit(t *testing.T) {
	require := require.New(t)

	key, err := crypto.GenerateKey()
	require.NoError(err)
	owner := crypto.PubkeyToAddress(key.PublicKey)
	spender := common.HexToAddress("0xbbbb000000000000000000000000000000bbbb")
	poolAddr := common.HexToAddress("0xdddd000000000000000000000000000000dddd")

	tok := newPoolToken()
	tok.setDomainSeparator(poolAddr, 1337)
	require.NoError(tok.mintShares(owner, uint256.NewInt(1000)))

	value := uint256.NewInt(500)
	deadline := uint64(1_000_000)

	structHash := crypto.Keccak256Hash(
		permitTypeHash.Bytes(),
		common.LeftPadBytes(owner.Bytes(), 32),
		common.LeftPadBytes(spender.Bytes(), 32),
		valueBytes32(value),
		valueBytes32(uint256.NewInt(tok.Nonce(owner))),
		valueBytes32(uint256.NewInt(deadline)),
	)
	digest := crypto.Keccak256Hash([]byte{0x19, 0x01}, tok.domainSeparator.Bytes(), structHash.Bytes())

	sig, err := crypto.Sign(digest.Bytes(), key)
	require.NoError(err)

	require.NoError(tok.Permit(owner, spender, value, deadline, 1, sig))
	require.Equal(value, tok.Allowance(owner, spender))
	require.Equal(uint64(1), tok.Nonce(owner))

	// replay with the now-stale nonce fails.
	require.Error(tok.Permit(owner, spender, value, deadline, 1, sig))
}

func TestPermitExpired(t *testing.T) {
	require := require.New(t)

	key, err := crypto.GenerateKey()
	require.NoError(err)
	owner := crypto.PubkeyToAddress(key.PublicKey)
	spender := common.HexToAddress("0xbbbb000000000000000000000000000000bbbb")

	tok := newPoolToken()
	tok.setDomainSeparator(common.HexToAddress("0xdddd000000000000000000000000000000dddd"), 1337)

	err = tok.Permit(owner, spender, uint256.NewInt(1), 10, 11, []byte{})
	require.ErrorIs(err, ErrExpired)
}
