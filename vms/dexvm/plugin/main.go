// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"

	"github.com/luxfi/log"
	"github.com/luxfi/utils/ulimit"
	"github.com/luxfi/version"
	"github.com/luxfi/vm/vms/dexvm"
)

// addr is the local HTTP address the plugin listens on for the chain
// manager's RPC proxy to dial, standing in for a full go-plugin handshake.
const addr = "127.0.0.1:9650"

func main() {
	versionStr := fmt.Sprintf("DEX-VM/1.0.0 [node=%s]", version.Current)

	if err := ulimit.Set(ulimit.DefaultFDLimit, log.Root()); err != nil {
		fmt.Printf("failed to set fd limit: %s\n", err)
		os.Exit(1)
	}

	vm := dexvm.NewChainVM(log.Root())

	ctx := context.Background()
	handlers, err := vm.CreateHandlers(ctx)
	if err != nil {
		fmt.Printf("failed to create handlers: %s\n", err)
		os.Exit(1)
	}

	mux := http.NewServeMux()
	for path, handler := range handlers {
		route := "/"
		if path != "" {
			route = path
		}
		mux.Handle(route, handler)
	}

	fmt.Printf("Starting %s on %s\n", versionStr, addr)
	if err := http.ListenAndServe(addr, mux); err != nil && !errors.Is(err, http.ErrServerClosed) {
		fmt.Printf("http.ListenAndServe error: %s\n", err)
		os.Exit(1)
	}
}
