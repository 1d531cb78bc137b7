package services

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/dmitrijs2005/companion/internal/logging"
	"github.com/dmitrijs2005/companion/internal/server/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSoftDelete_RemoveFailureIsQueuedThenDrained(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	ex := h.seed(t, "u1", "My neighbour Walter", "ok")

	h.index.setRemoveErr(errors.New("index unavailable"))
	n, err := h.convo.DeleteHistory(ctx, "u1", []string{ex.ID})
	require.NoError(t, err, "the exchange store is authoritative")
	assert.Equal(t, 1, n)

	require.Len(t, h.store.pending, 1)
	p := h.store.pending[memory.RecordID("u1", ex.ID)]
	require.NotNil(t, p)
	assert.Equal(t, 1, p.Attempts)
	assert.Equal(t, "index unavailable", p.LastError)
	assert.True(t, h.has(t, "u1", ex.ID), "record still present until reconciled")

	drained, failed, err := h.reconciler.Drain(ctx)
	require.NoError(t, err)
	assert.Zero(t, drained)
	assert.Equal(t, 1, failed)
	assert.Equal(t, 2, h.store.pending[memory.RecordID("u1", ex.ID)].Attempts)

	h.index.setRemoveErr(nil)
	drained, failed, err = h.reconciler.Drain(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, drained)
	assert.Zero(t, failed)
	assert.Empty(t, h.store.pending)
	assert.False(t, h.has(t, "u1", ex.ID))
}

func TestDrain_MultipleOwnersAndBatches(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.reconciler.batch = 2

	h.index.setRemoveErr(errors.New("down"))
	for _, owner := range []string{"u1", "u2"} {
		h.seed(t, owner, "a", "1")
		h.seed(t, owner, "b", "2")
		_, err := h.convo.DeleteHistory(ctx, owner, nil)
		require.NoError(t, err)
	}
	require.Len(t, h.store.pending, 4)

	h.index.setRemoveErr(nil)
	drained, failed, err := h.reconciler.Drain(ctx)
	require.NoError(t, err)
	assert.Equal(t, 4, drained)
	assert.Zero(t, failed)
	assert.Zero(t, h.index.Count())
}

func TestSweep_ReindexesMissingAndRemovesStale(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	missing, err := h.coordinator.Record(ctx, "u1", "never indexed", "r")
	require.NoError(t, err)

	stale := h.seed(t, "u2", "hidden later", "r")
	_, err = h.store.rmExchanges().SoftDelete(ctx, "u2", []string{stale.ID})
	require.NoError(t, err)

	report, err := h.admin.Reconcile(ctx)
	require.NoError(t, err)
	assert.Equal(t, ReconcileReport{Removed: 1, Reindexed: 1}, report)

	assert.True(t, h.has(t, "u1", missing.ID))
	assert.False(t, h.has(t, "u2", stale.ID))

	report, err = h.reconciler.Reconcile(ctx)
	require.NoError(t, err)
	assert.Equal(t, ReconcileReport{}, report, "second pass finds nothing to do")
}

func TestReconciler_RunStopsWithContext(t *testing.T) {
	h := newHarness(t)
	_, err := h.coordinator.Record(context.Background(), "u1", "m", "r")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		h.reconciler.Run(ctx, 10*time.Millisecond)
		close(done)
	}()

	require.Eventually(t, func() bool { return h.index.Count() == 1 }, time.Second, 5*time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestBackground_RecoversPanicAndDetachesCancel(t *testing.T) {
	bg := NewBackground(logging.Nop{})

	bg.Go(context.Background(), "boom", time.Second, func(context.Context) {
		panic("kaboom")
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	var ran atomic.Bool
	var ctxErr atomic.Value
	bg.Go(ctx, "detached", time.Second, func(ctx context.Context) {
		ran.Store(true)
		if err := ctx.Err(); err != nil {
			ctxErr.Store(err)
		}
	})

	bg.Wait()
	assert.True(t, ran.Load())
	assert.Nil(t, ctxErr.Load(), "request cancellation does not reach background work")
}

func TestBackground_Timeout(t *testing.T) {
	bg := NewBackground(logging.Nop{})
	var got atomic.Value

	bg.Go(context.Background(), "slow", 10*time.Millisecond, func(ctx context.Context) {
		<-ctx.Done()
		got.Store(ctx.Err())
	})
	bg.Wait()
	assert.ErrorIs(t, got.Load().(error), context.DeadlineExceeded)
}

func TestPurge_LateIndexLeavesNoRecord(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	release := h.index.holdIndex()
	res, err := h.convo.Turn(ctx, "u1", "Margaret", "my bank pin is 4711 secret")
	require.NoError(t, err)

	purged, err := h.admin.DeleteExchanges(ctx, "u1", true)
	require.NoError(t, err)
	assert.Equal(t, 1, purged)

	release()
	h.bg.Wait()
	assert.False(t, h.has(t, "u1", res.Exchange.ID))

	report, err := h.reconciler.Reconcile(ctx)
	require.NoError(t, err)
	assert.Equal(t, ReconcileReport{}, report)
	assert.Zero(t, h.index.Count())
}

func TestSweep_RemovesOrphansOfPurgedOwners(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	live := h.seed(t, "u1", "garden roses", "lovely")
	// Records with no exchange row at all, one for an owner with no rows left.
	require.NoError(t, h.index.inner.Index(ctx, "u1", "ghost-1", "old text", "r"))
	require.NoError(t, h.index.inner.Index(ctx, "u9", "ghost-2", "purged text", "r"))

	report, err := h.reconciler.Reconcile(ctx)
	require.NoError(t, err)
	assert.Equal(t, ReconcileReport{Removed: 2}, report)

	assert.True(t, h.has(t, "u1", live.ID))
	assert.False(t, h.has(t, "u1", "ghost-1"))
	assert.False(t, h.has(t, "u9", "ghost-2"))
	assert.Equal(t, 1, h.index.Count())
}

func TestSweepVisible_DeleteDuringReindexIsNotUndone(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	ex, err := h.coordinator.Record(ctx, "u1", "never indexed", "r")
	require.NoError(t, err)

	release := h.index.holdIndex()
	type result struct {
		report ReconcileReport
		err    error
	}
	done := make(chan result, 1)
	go func() {
		report, err := h.reconciler.Reconcile(ctx)
		done <- result{report, err}
	}()

	// Hide the exchange while the sweep's upsert is parked.
	require.Eventually(t, func() bool { return h.index.parked() == 1 }, time.Second, time.Millisecond)
	ids, err := h.store.rmExchanges().SoftDelete(ctx, "u1", []string{ex.ID})
	require.NoError(t, err)
	require.Len(t, ids, 1)
	release()

	got := <-done
	require.NoError(t, got.err)
	assert.Zero(t, got.report.Reindexed)
	assert.False(t, h.has(t, "u1", ex.ID))
}
