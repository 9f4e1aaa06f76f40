// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package dexvm

import (
	"github.com/luxfi/metric"

	"github.com/luxfi/vm/vms/dexvm/txs"
)

// vmMetrics counts block-processing outcomes per operation. Counters are
// self-registering when created with metric.NewCounter.
type vmMetrics struct {
	txsApplied metric.Counter
	txsFailed  metric.Counter

	pairsCreated metric.Counter
	mints        metric.Counter
	burns        metric.Counter
	swaps        metric.Counter
}

func newVMMetrics() *vmMetrics {
	return &vmMetrics{
		txsApplied: metric.NewCounter(metric.CounterOpts{
			Name: "dex_txs_applied",
			Help: "Number of transactions applied successfully",
		}),
		txsFailed: metric.NewCounter(metric.CounterOpts{
			Name: "dex_txs_failed",
			Help: "Number of transactions that failed to decode or apply",
		}),
		pairsCreated: metric.NewCounter(metric.CounterOpts{
			Name: "dex_pairs_created",
			Help: "Number of liquidity pools created",
		}),
		mints: metric.NewCounter(metric.CounterOpts{
			Name: "dex_mints",
			Help: "Number of successful liquidity mints",
		}),
		burns: metric.NewCounter(metric.CounterOpts{
			Name: "dex_burns",
			Help: "Number of successful liquidity burns",
		}),
		swaps: metric.NewCounter(metric.CounterOpts{
			Name: "dex_swaps",
			Help: "Number of successful swaps",
		}),
	}
}

func (m *vmMetrics) txFailed() {
	if m == nil {
		return
	}
	m.txsFailed.Inc()
}

func (m *vmMetrics) txApplied(t txs.Type) {
	if m == nil {
		return
	}
	m.txsApplied.Inc()
	switch t {
	case txs.TypeCreatePair:
		m.pairsCreated.Inc()
	case txs.TypeMint:
		m.mints.Inc()
	case txs.TypeBurn:
		m.burns.Inc()
	case txs.TypeSwap:
		m.swaps.Inc()
	}
}
