/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package swap

import (
	"sync"
	"time"

	"github.com/benbjohnson/clock"
)

type grant struct {
	amount int64
	at     time.Time
}

// Ledger tracks faucet grants per DID over a sliding window. Entries
// older than the window are pruned lazily on each check.
type Ledger struct {
	mu     sync.Mutex
	window time.Duration
	clk    clock.Clock
	grants map[string][]grant
}

// NewLedger returns a Ledger covering the given window.
func NewLedger(window time.Duration, clk clock.Clock) *Ledger {
	return &Ledger{
		window: window,
		clk:    clk,
		grants: make(map[string][]grant),
	}
}

// Granted returns the micro-units granted to did within the window.
func (l *Ledger) Granted(did string) int64 {
	l.mu.Lock()
	defer l.mu.Unlock()

	cutoff := l.clk.Now().Add(-l.window)

	kept := l.grants[did][:0]

	var total int64

	for _, g := range l.grants[did] {
		if g.at.Before(cutoff) {
			continue
		}

		kept = append(kept, g)
		total += g.amount
	}

	if len(kept) == 0 {
		delete(l.grants, did)
	} else {
		l.grants[did] = kept
	}

	return total
}

// Add records a successful grant. Called only after the transfer
// succeeded, so a failed transfer never consumes quota.
func (l *Ledger) Add(did string, amount int64) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.grants[did] = append(l.grants[did], grant{amount: amount, at: l.clk.Now()})
}
