package services

import (
	"context"
	"database/sql"
	"fmt"
	"slices"
	"time"

	"github.com/dmitrijs2005/companion/internal/logging"
	"github.com/dmitrijs2005/companion/internal/server/models"
	"github.com/dmitrijs2005/companion/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/companion/internal/server/telemetry"
)

const (
	DefaultReconcileBatch    = 100
	DefaultReconcileInterval = 10 * time.Minute
)

// ReconcileReport counts what one reconciliation pass changed.
type ReconcileReport struct {
	// Drained is the number of outbox rows settled.
	Drained int
	// Removed is the number of stale records deleted by the sweep: records of
	// hidden exchanges and records whose exchange no longer exists.
	Removed int
	// Reindexed is the number of visible exchanges that were missing from the index.
	Reindexed int
	// Failed is the number of outbox rows still pending after the pass.
	Failed int
}

// Reconciler brings the memory index back in line with the exchange store.
type Reconciler struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	memory      MemoryIndex
	batch       int
	metrics     *telemetry.Metrics
	log         logging.Logger
}

func NewReconciler(db *sql.DB, rm repomanager.RepositoryManager, mem MemoryIndex, batch int,
	metrics *telemetry.Metrics, log logging.Logger) *Reconciler {
	if batch <= 0 {
		batch = DefaultReconcileBatch
	}
	return &Reconciler{
		db:          db,
		repomanager: rm,
		memory:      mem,
		batch:       batch,
		metrics:     metrics,
		log:         log.With("module", "reconciler"),
	}
}

// Reconcile drains the outbox and then sweeps every owner.
func (r *Reconciler) Reconcile(ctx context.Context) (ReconcileReport, error) {
	var report ReconcileReport

	drained, failed, err := r.Drain(ctx)
	report.Drained, report.Failed = drained, failed
	if err != nil {
		return report, err
	}

	removed, reindexed, err := r.Sweep(ctx)
	report.Removed, report.Reindexed = removed, reindexed
	if err != nil {
		return report, err
	}

	r.log.Info(ctx, "reconciliation finished",
		"drained", report.Drained, "failed", report.Failed,
		"removed", report.Removed, "reindexed", report.Reindexed)
	return report, nil
}

// Drain retries pending outbox rows batch by batch, grouped per owner. It
// stops at the first batch that leaves rows pending so failing rows are not
// retried twice in one pass.
func (r *Reconciler) Drain(ctx context.Context) (drained, failed int, err error) {
	outbox := r.repomanager.Removals(r.db)

	for {
		pending, err := outbox.Pending(ctx, r.batch)
		if err != nil {
			return drained, failed, fmt.Errorf("load pending removals: %w", err)
		}
		if len(pending) == 0 {
			return drained, failed, nil
		}

		for _, group := range groupByOwner(pending) {
			ids := make([]string, 0, len(group.items))
			records := make([]string, 0, len(group.items))
			for _, p := range group.items {
				ids = append(ids, p.ExchangeID)
				records = append(records, p.RecordID)
			}

			if rerr := r.memory.Remove(ctx, group.owner, ids); rerr != nil {
				r.metrics.IndexFailure(ctx, "remove")
				failed += len(records)
				if merr := outbox.MarkAttempt(ctx, records, rerr.Error()); merr != nil {
					return drained, failed, fmt.Errorf("mark removal attempt: %w", merr)
				}
				r.log.Warn(ctx, "memory removal retry failed", "owner_id", group.owner, "count", len(records), "error", rerr)
				continue
			}
			if aerr := outbox.Ack(ctx, records); aerr != nil {
				return drained, failed, fmt.Errorf("ack removals: %w", aerr)
			}
			drained += len(records)
			r.metrics.Reconciled(ctx, "drained", len(records))
		}

		if failed > 0 || len(pending) < r.batch {
			return drained, failed, nil
		}
	}
}

// Sweep walks every owner in the exchange store: records of hidden exchanges
// are deleted and visible exchanges missing from the index are indexed. It
// then walks the index itself, so records left behind by a purge are found
// even when their owner has no exchanges left.
func (r *Reconciler) Sweep(ctx context.Context) (removed, reindexed int, err error) {
	repo := r.repomanager.Exchanges(r.db)

	owners, err := repo.Owners(ctx)
	if err != nil {
		return 0, 0, fmt.Errorf("list owners: %w", err)
	}

	for _, owner := range owners {
		if err := ctx.Err(); err != nil {
			return removed, reindexed, err
		}

		n, err := r.sweepDeleted(ctx, owner)
		removed += n
		if err != nil {
			return removed, reindexed, err
		}

		n, err = r.sweepVisible(ctx, owner)
		reindexed += n
		if err != nil {
			return removed, reindexed, err
		}
	}

	n, err := r.sweepOrphans(ctx)
	removed += n
	if err != nil {
		return removed, reindexed, err
	}

	r.metrics.Reconciled(ctx, "removed", removed)
	r.metrics.Reconciled(ctx, "reindexed", reindexed)
	return removed, reindexed, nil
}

// sweepOrphans removes every indexed record whose exchange is not visible,
// checking the index's own listing against the exchange store.
func (r *Reconciler) sweepOrphans(ctx context.Context) (int, error) {
	entries, err := r.memory.Entries(ctx)
	if err != nil {
		return 0, fmt.Errorf("list memory records: %w", err)
	}

	byOwner := make(map[string][]string)
	var owners []string
	for _, e := range entries {
		if _, ok := byOwner[e.OwnerID]; !ok {
			owners = append(owners, e.OwnerID)
		}
		byOwner[e.OwnerID] = append(byOwner[e.OwnerID], e.ExchangeID)
	}

	repo := r.repomanager.Exchanges(r.db)
	removed := 0
	for _, owner := range owners {
		ids := byOwner[owner]
		var stale []string
		for chunk := range slices.Chunk(ids, r.batch) {
			visible, err := repo.VisibleIDs(ctx, owner, chunk)
			if err != nil {
				return removed, fmt.Errorf("check visible exchanges: %w", err)
			}
			for _, id := range chunk {
				if !slices.Contains(visible, id) {
					stale = append(stale, id)
				}
			}
		}
		if len(stale) == 0 {
			continue
		}
		if err := r.memory.Remove(ctx, owner, stale); err != nil {
			r.metrics.IndexFailure(ctx, "remove")
			return removed, fmt.Errorf("remove orphaned records: %w", err)
		}
		r.log.Info(ctx, "removed orphaned memory records", "owner_id", owner, "count", len(stale))
		removed += len(stale)
	}
	return removed, nil
}

func (r *Reconciler) sweepDeleted(ctx context.Context, owner string) (int, error) {
	deleted, err := r.repomanager.Exchanges(r.db).DeletedIDs(ctx, owner)
	if err != nil {
		return 0, fmt.Errorf("list deleted exchanges: %w", err)
	}

	stale := make([]string, 0)
	for _, id := range deleted {
		ok, err := r.memory.Has(ctx, owner, id)
		if err != nil {
			return 0, fmt.Errorf("check memory record: %w", err)
		}
		if ok {
			stale = append(stale, id)
		}
	}
	if len(stale) == 0 {
		return 0, nil
	}

	if err := r.memory.Remove(ctx, owner, stale); err != nil {
		r.metrics.IndexFailure(ctx, "remove")
		return 0, fmt.Errorf("remove stale records: %w", err)
	}
	r.log.Info(ctx, "removed stale memory records", "owner_id", owner, "count", len(stale))
	return len(stale), nil
}

func (r *Reconciler) sweepVisible(ctx context.Context, owner string) (int, error) {
	repo := r.repomanager.Exchanges(r.db)
	reindexed := 0

	for offset := 0; ; offset += r.batch {
		page, err := repo.ListVisible(ctx, owner, r.batch, offset, false)
		if err != nil {
			return reindexed, fmt.Errorf("list visible exchanges: %w", err)
		}
		for _, ex := range page {
			ok, err := r.memory.Has(ctx, owner, ex.ID)
			if err != nil {
				return reindexed, fmt.Errorf("check memory record: %w", err)
			}
			if ok {
				continue
			}
			if err := r.memory.Index(ctx, owner, ex.ID, ex.Message, ex.Response); err != nil {
				r.metrics.IndexFailure(ctx, "upsert")
				r.log.Warn(ctx, "re-index failed", "owner_id", owner, "exchange_id", ex.ID, "error", err)
				continue
			}
			// The page may be stale by now; a delete that raced past the
			// listing must not be undone.
			withdrawn, err := withdrawIfHidden(ctx, repo, r.memory, ex)
			if err != nil {
				r.metrics.IndexFailure(ctx, "remove")
				return reindexed, err
			}
			if !withdrawn {
				reindexed++
			}
		}
		if len(page) < r.batch {
			return reindexed, nil
		}
	}
}

// Run reconciles every interval until ctx is done.
func (r *Reconciler) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = DefaultReconcileInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := r.Reconcile(ctx); err != nil && ctx.Err() == nil {
				r.log.Error(ctx, "reconciliation failed", "error", err)
			}
		}
	}
}

type ownerGroup struct {
	owner string
	items []*models.PendingRemoval
}

// groupByOwner keeps the first-seen order of owners.
func groupByOwner(pending []*models.PendingRemoval) []ownerGroup {
	index := make(map[string]int)
	var groups []ownerGroup
	for _, p := range pending {
		i, ok := index[p.OwnerID]
		if !ok {
			i = len(groups)
			index[p.OwnerID] = i
			groups = append(groups, ownerGroup{owner: p.OwnerID})
		}
		groups[i].items = append(groups[i].items, p)
	}
	return groups
}
