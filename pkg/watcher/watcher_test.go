/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package watcher

import (
	"context"
	"errors"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/require"

	"github.com/tonomy-foundation/communication-go/pkg/chain"
	"github.com/tonomy-foundation/communication-go/pkg/internal/mock"
)

const bridgeAddr = "0x76c6227dB16B6EE03E4f15cA64Cb1FBEbd530cEa"

type notifierFunc func(did, event string, payload interface{}) bool

func (f notifierFunc) NotifyByIdentity(did, event string, payload interface{}) bool {
	return f(did, event, payload)
}

type fixture struct {
	watcher  *Watcher
	evm      *mock.EVMToken
	token    *mock.TonomyToken
	clk      *clock.Mock
	mu       sync.Mutex
	notified []string
}

func setup(t *testing.T, online bool) *fixture {
	t.Helper()

	f := &fixture{
		evm:   &mock.EVMToken{},
		token: &mock.TonomyToken{},
		clk:   clock.NewMock(),
	}

	notifier := notifierFunc(func(did, event string, _ interface{}) bool {
		f.mu.Lock()
		defer f.mu.Unlock()

		f.notified = append(f.notified, did+"|"+event)

		return online
	})

	f.watcher = New(f.evm, f.token, notifier, Config{
		BridgeAddress:  bridgeAddr,
		CurrencySymbol: "TONO",
	}, WithClock(f.clk))

	require.NoError(t, f.watcher.Start(context.Background()))
	t.Cleanup(f.watcher.Stop)

	return f
}

// emit delivers ev and waits for its worker, if any, to finish.
func (f *fixture) emit(ev chain.TransferEvent) {
	f.evm.Emit(ev)
	f.watcher.workers.Wait()
}

func transferEvent(txHash, to, memo string) chain.TransferEvent {
	oneToken := new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil)

	return chain.TransferEvent{
		TxHash: txHash,
		From:   "0x8DE48baf638e4Cd8Dab07Ef12375369Cb9b841dB",
		To:     to,
		Amount: oneToken,
		Memo:   memo,
	}
}

func TestHandleTransfer(t *testing.T) {
	t.Run("completes a swap and notifies the wallet", func(t *testing.T) {
		f := setup(t, true)

		f.emit(transferEvent("0xabc", bridgeAddr, "swap:42:alice"))

		require.Equal(t, 1, f.token.IssueCount())
		require.Equal(t, "alice|1.000000 TONO|TONO swap to tonomy 42", f.token.Issues[0])

		rec, ok := f.watcher.Record("0xabc")
		require.True(t, ok)
		require.True(t, rec.Finalized)
		require.Equal(t, "42", rec.SwapID)
		require.Equal(t, "alice", rec.DestinationAccount)

		require.Equal(t, []string{"did:antelope:tonomy:alice#apps|" + EventSwapReceive}, f.notified)
	})

	t.Run("duplicate delivery issues exactly once", func(t *testing.T) {
		f := setup(t, true)

		ev := transferEvent("0xabc", bridgeAddr, "swap:42:alice")
		f.emit(ev)
		f.emit(ev)

		require.Equal(t, 1, f.token.IssueCount())
		require.Equal(t, 1, f.watcher.RecordCount())
	})

	t.Run("pending finalization does not block later transfers", func(t *testing.T) {
		f := setup(t, true)

		release := make(chan struct{})
		f.evm.FinalizeFunc = func(ctx context.Context, txHash string) error {
			if txHash == "0x1" {
				select {
				case <-release:
				case <-ctx.Done():
					return ctx.Err()
				}
			}

			return nil
		}

		f.evm.Emit(transferEvent("0x1", bridgeAddr, "swap:1:alice"))
		f.evm.Emit(transferEvent("0x2", bridgeAddr, "swap:2:bob"))

		// The second transfer completes while the first is still waiting.
		require.Eventually(t, func() bool {
			rec, ok := f.watcher.Record("0x2")

			return ok && rec.Finalized
		}, time.Second, 10*time.Millisecond)

		rec, ok := f.watcher.Record("0x1")
		require.True(t, ok)
		require.False(t, rec.Finalized)
		require.Equal(t, 1, f.token.IssueCount())

		close(release)
		f.watcher.workers.Wait()

		rec, ok = f.watcher.Record("0x1")
		require.True(t, ok)
		require.True(t, rec.Finalized)
		require.Equal(t, 2, f.token.IssueCount())
	})

	t.Run("bridge address matching is case-insensitive", func(t *testing.T) {
		f := setup(t, true)

		ev := transferEvent("0xabc", "0x76C6227DB16B6EE03E4F15CA64CB1FBEBD530CEA", "swap:42:alice")
		f.emit(ev)

		require.Equal(t, 1, f.token.IssueCount())
	})

	t.Run("transfer to another address leaves no record", func(t *testing.T) {
		f := setup(t, true)

		f.emit(transferEvent("0xabc", "0x0000000000000000000000000000000000000001", "swap:42:alice"))

		require.Zero(t, f.watcher.RecordCount())
		require.Zero(t, f.token.IssueCount())
	})

	t.Run("transfer without swap memo leaves no record", func(t *testing.T) {
		f := setup(t, true)

		f.emit(transferEvent("0xabc", bridgeAddr, "just a donation"))

		require.Zero(t, f.watcher.RecordCount())
		require.Zero(t, f.token.IssueCount())
	})

	t.Run("finalization failure keeps the record unfinalized", func(t *testing.T) {
		f := setup(t, true)
		f.evm.FinalizeErr = errors.New("rpc down")

		f.emit(transferEvent("0xabc", bridgeAddr, "swap:42:alice"))

		rec, ok := f.watcher.Record("0xabc")
		require.True(t, ok)
		require.False(t, rec.Finalized)
		require.Zero(t, f.token.IssueCount())
		require.Empty(t, f.notified)
	})

	t.Run("issue failure keeps the record unfinalized", func(t *testing.T) {
		f := setup(t, true)
		f.token.IssueErr = errors.New("contract error")

		f.emit(transferEvent("0xabc", bridgeAddr, "swap:42:alice"))

		rec, ok := f.watcher.Record("0xabc")
		require.True(t, ok)
		require.False(t, rec.Finalized)
		require.Empty(t, f.notified)
	})

	t.Run("offline wallet does not fail the swap", func(t *testing.T) {
		f := setup(t, false)

		f.emit(transferEvent("0xabc", bridgeAddr, "swap:42:alice"))

		rec, ok := f.watcher.Record("0xabc")
		require.True(t, ok)
		require.True(t, rec.Finalized)
	})
}

func TestSweep(t *testing.T) {
	f := setup(t, true)

	f.emit(transferEvent("0xold", bridgeAddr, "swap:1:alice"))

	f.clk.Add(2 * time.Hour)
	f.emit(transferEvent("0xrecent", bridgeAddr, "swap:2:bob"))

	// 0xold is now 25h in the past, 0xrecent 23h.
	f.clk.Add(23 * time.Hour)
	f.watcher.sweep()

	_, ok := f.watcher.Record("0xold")
	require.False(t, ok)

	_, ok = f.watcher.Record("0xrecent")
	require.True(t, ok)
	require.Equal(t, 1, f.watcher.RecordCount())
}

func TestStop(t *testing.T) {
	evm := &mock.EVMToken{}
	w := New(evm, &mock.TonomyToken{}, notifierFunc(func(string, string, interface{}) bool { return true }),
		Config{BridgeAddress: bridgeAddr, CurrencySymbol: "TONO"})

	require.NoError(t, w.Start(context.Background()))
	w.Stop()

	require.True(t, evm.Cancelled)
	require.NotPanics(t, w.Stop)
}

func TestStopCancelsPendingWait(t *testing.T) {
	evm := &mock.EVMToken{}
	evm.FinalizeFunc = func(ctx context.Context, _ string) error {
		<-ctx.Done()

		return ctx.Err()
	}

	token := &mock.TonomyToken{}
	w := New(evm, token, notifierFunc(func(string, string, interface{}) bool { return true }),
		Config{BridgeAddress: bridgeAddr, CurrencySymbol: "TONO"})

	require.NoError(t, w.Start(context.Background()))

	evm.Emit(transferEvent("0x1", bridgeAddr, "swap:1:alice"))

	done := make(chan struct{})

	go func() {
		w.Stop()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Stop did not cancel the pending finalization wait")
	}

	require.Zero(t, token.IssueCount())
}

func TestStartValidation(t *testing.T) {
	w := New(&mock.EVMToken{}, &mock.TonomyToken{}, nil, Config{CurrencySymbol: "TONO"})

	require.Error(t, w.Start(context.Background()))
}

func TestParseSwapMemo(t *testing.T) {
	swapID, account, ok := ParseSwapMemo("swap:42:alice")
	require.True(t, ok)
	require.Equal(t, "42", swapID)
	require.Equal(t, "alice", account)

	for _, memo := range []string{"", "swap", "swap:42", "swap::alice", "swap:42:", "donate:42:alice", "swap:42:alice:extra"} {
		_, _, ok := ParseSwapMemo(memo)
		require.False(t, ok, memo)
	}
}
