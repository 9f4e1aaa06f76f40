// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package state

import (
	"testing"

	"github.com/holiman/uint256"
	"github.com/luxfi/database/memdb"
	"github.com/luxfi/geth/common"
	"github.com/luxfi/ids"
	"github.com/stretchr/testify/require"
)

var (
	testToken = common.HexToAddress("0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa")
	alice     = common.HexToAddress("0x1111111111111111111111111111111111111111")
	bob       = common.HexToAddress("0x2222222222222222222222222222222222222222")
)

func TestCreditDebitTransfer(t *testing.T) {
	require := require.New(t)

	s := New(memdb.New())
	require.NoError(s.Initialize())

	require.NoError(s.Credit(testToken, alice, uint256.NewInt(100)))
	bal, err := s.BalanceOf(testToken, alice)
	require.NoError(err)
	require.Equal(uint256.NewInt(100), bal)

	require.NoError(s.Transfer(testToken, alice, bob, uint256.NewInt(30)))
	bal, err = s.BalanceOf(testToken, alice)
	require.NoError(err)
	require.Equal(uint256.NewInt(70), bal)
	bal, err = s.BalanceOf(testToken, bob)
	require.NoError(err)
	require.Equal(uint256.NewInt(30), bal)

	require.ErrorIs(s.Transfer(testToken, alice, bob, uint256.NewInt(1000)), ErrInsufficientBalance)
	require.ErrorIs(s.Debit(testToken, bob, uint256.NewInt(31)), ErrInsufficientBalance)
	require.NoError(s.Debit(testToken, bob, uint256.NewInt(30)))
}

func TestTransferToSelfIsFundedNoOp(t *testing.T) {
	require := require.New(t)

	s := New(memdb.New())
	require.NoError(s.Credit(testToken, alice, uint256.NewInt(50)))

	require.NoError(s.Transfer(testToken, alice, alice, uint256.NewInt(20)))
	bal, err := s.BalanceOf(testToken, alice)
	require.NoError(err)
	require.Equal(uint256.NewInt(50), bal)

	require.ErrorIs(s.Transfer(testToken, alice, alice, uint256.NewInt(51)), ErrInsufficientBalance)
}

func TestRollbackRestoresBalances(t *testing.T) {
	require := require.New(t)

	s := New(memdb.New())
	require.NoError(s.Credit(testToken, alice, uint256.NewInt(100)))

	s.Checkpoint()
	require.NoError(s.Transfer(testToken, alice, bob, uint256.NewInt(60)))
	require.NoError(s.Credit(testToken, bob, uint256.NewInt(5)))
	s.Rollback()

	bal, err := s.BalanceOf(testToken, alice)
	require.NoError(err)
	require.Equal(uint256.NewInt(100), bal)
	bal, err = s.BalanceOf(testToken, bob)
	require.NoError(err)
	require.True(bal.IsZero())
}

func TestReleaseKeepsWrites(t *testing.T) {
	require := require.New(t)

	s := New(memdb.New())
	require.NoError(s.Credit(testToken, alice, uint256.NewInt(100)))

	s.Checkpoint()
	require.NoError(s.Transfer(testToken, alice, bob, uint256.NewInt(60)))
	s.Release()

	bal, err := s.BalanceOf(testToken, bob)
	require.NoError(err)
	require.Equal(uint256.NewInt(60), bal)
}

func TestBalancesSurviveRestart(t *testing.T) {
	require := require.New(t)

	db := memdb.New()
	s := New(db)
	require.NoError(s.Credit(testToken, alice, uint256.NewInt(42)))
	require.NoError(s.Commit())

	reopened := New(db)
	require.NoError(reopened.Initialize())
	bal, err := reopened.BalanceOf(testToken, alice)
	require.NoError(err)
	require.Equal(uint256.NewInt(42), bal)
}

func TestLastBlockRoundTrip(t *testing.T) {
	require := require.New(t)

	db := memdb.New()
	s := New(db)
	require.NoError(s.Initialize())

	blkID, height := s.GetLastBlock()
	require.Equal(ids.Empty, blkID)
	require.Zero(height)

	wantID := ids.GenerateTestID()
	require.NoError(s.SetLastBlock(wantID, 7))

	reopened := New(db)
	require.NoError(reopened.Initialize())
	blkID, height = reopened.GetLastBlock()
	require.Equal(wantID, blkID)
	require.Equal(uint64(7), height)
}
