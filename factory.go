// Copyright (C) 2019-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package vm defines the plugin surface shared by every VM in this module:
// the Factory that constructs VM instances and the Message types a VM uses
// to signal the consensus engine.
package vm

import (
	"github.com/luxfi/log"
)

// A Factory creates new instances of a VM
type Factory interface {
	// New creates a new VM instance with the given logger.
	New(log.Logger) (interface{}, error)
}
