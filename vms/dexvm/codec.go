// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package dexvm

import (
	"errors"
	"math"

	"github.com/luxfi/codec"
	"github.com/luxfi/codec/linearcodec"
)

const codecVersion = 0

// BlockCodec is the wire codec for Block and Genesis. It is named distinctly
// from the gorilla/rpc Codec type in vm.go, which serves the HTTP RPC
// handlers rather than the chain's block wire format.
var BlockCodec codec.Manager

func init() {
	BlockCodec = codec.NewManager(math.MaxInt)
	lc := linearcodec.NewDefault()

	err := errors.Join(
		lc.RegisterType(&Block{}),
		lc.RegisterType(&Genesis{}),
		BlockCodec.RegisterCodec(codecVersion, lc),
	)
	if err != nil {
		panic(err)
	}
}
