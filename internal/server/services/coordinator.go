package services

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/dmitrijs2005/companion/internal/common"
	"github.com/dmitrijs2005/companion/internal/dbx"
	"github.com/dmitrijs2005/companion/internal/logging"
	"github.com/dmitrijs2005/companion/internal/server/memory"
	"github.com/dmitrijs2005/companion/internal/server/models"
	"github.com/dmitrijs2005/companion/internal/server/repositories/exchanges"
	"github.com/dmitrijs2005/companion/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/companion/internal/server/telemetry"
)

const (
	DefaultIndexTimeout  = 10 * time.Second
	DefaultRemoveTimeout = 5 * time.Second
)

// Coordinator keeps the exchange store and the memory index in agreement.
//
// The exchange store is authoritative. New exchanges are persisted first and
// indexed afterwards on a best-effort basis. Hiding or purging exchanges
// writes a removal outbox row for every affected record in the same
// transaction, then removes the records from the index; outbox rows are
// acknowledged only once the index confirms. Unacknowledged rows are
// retried by the Reconciler.
type Coordinator struct {
	db            *sql.DB
	repomanager   repomanager.RepositoryManager
	memory        MemoryIndex
	bg            *Background
	indexTimeout  time.Duration
	removeTimeout time.Duration
	metrics       *telemetry.Metrics
	log           logging.Logger
}

func NewCoordinator(db *sql.DB, rm repomanager.RepositoryManager, mem MemoryIndex, bg *Background,
	metrics *telemetry.Metrics, log logging.Logger) *Coordinator {
	return &Coordinator{
		db:            db,
		repomanager:   rm,
		memory:        mem,
		bg:            bg,
		indexTimeout:  DefaultIndexTimeout,
		removeTimeout: DefaultRemoveTimeout,
		metrics:       metrics,
		log:           log.With("module", "coordinator"),
	}
}

// Record persists a completed exchange. Failure wraps common.ErrPersistence.
func (c *Coordinator) Record(ctx context.Context, ownerID, message, response string) (*models.Exchange, error) {
	ex, err := c.repomanager.Exchanges(c.db).Create(ctx, &models.Exchange{
		OwnerID:  ownerID,
		Message:  message,
		Response: response,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrPersistence, err)
	}
	return ex, nil
}

// IndexAsync upserts the exchange's memory record in the background.
func (c *Coordinator) IndexAsync(ctx context.Context, ex *models.Exchange) {
	c.bg.Go(ctx, "index", c.indexTimeout, func(ctx context.Context) {
		_ = c.Index(ctx, ex)
	})
}

// Index upserts the exchange's memory record. The error is logged and
// returned for callers that count failures; it never affects the exchange.
//
// An upsert can land after the exchange was hidden or purged, once the
// delete has already cleared the index. Visibility is therefore checked
// after the write and the record is withdrawn if the exchange is gone.
func (c *Coordinator) Index(ctx context.Context, ex *models.Exchange) error {
	if err := c.memory.Index(ctx, ex.OwnerID, ex.ID, ex.Message, ex.Response); err != nil {
		c.metrics.IndexFailure(ctx, "upsert")
		c.log.Warn(ctx, "memory upsert failed", "owner_id", ex.OwnerID, "exchange_id", ex.ID, "error", err)
		return err
	}
	_, err := withdrawIfHidden(ctx, c.repomanager.Exchanges(c.db), c.memory, ex)
	if err != nil {
		c.metrics.IndexFailure(ctx, "remove")
		c.log.Warn(ctx, "withdrawing late memory record failed", "owner_id", ex.OwnerID, "exchange_id", ex.ID, "error", err)
	}
	return err
}

// withdrawIfHidden removes the just-written record of ex unless ex is still
// visible. A failed visibility read counts as hidden; the sweep re-indexes
// visible exchanges that went missing.
func withdrawIfHidden(ctx context.Context, repo exchanges.Repository, mem MemoryIndex, ex *models.Exchange) (withdrawn bool, err error) {
	visible, verr := repo.VisibleIDs(ctx, ex.OwnerID, []string{ex.ID})
	if verr == nil && len(visible) == 1 {
		return false, nil
	}
	if err := mem.Remove(ctx, ex.OwnerID, []string{ex.ID}); err != nil {
		return false, fmt.Errorf("remove record of hidden exchange: %w", err)
	}
	return true, nil
}

// SoftDelete hides the owner's visible exchanges (all of them when ids is
// empty) and returns the ids that were hidden.
func (c *Coordinator) SoftDelete(ctx context.Context, ownerID string, ids []string) ([]string, error) {
	return c.deleteAndPropagate(ctx, ownerID, "soft_delete", func(ctx context.Context, tx dbx.DBTX) ([]string, error) {
		return c.repomanager.Exchanges(tx).SoftDelete(ctx, ownerID, ids)
	})
}

// Purge permanently removes the owner's exchanges, visible or hidden (all of
// them when ids is empty), and returns the ids removed.
func (c *Coordinator) Purge(ctx context.Context, ownerID string, ids []string) ([]string, error) {
	return c.deleteAndPropagate(ctx, ownerID, "purge", func(ctx context.Context, tx dbx.DBTX) ([]string, error) {
		return c.repomanager.Exchanges(tx).DeletePermanently(ctx, ownerID, ids)
	})
}

func (c *Coordinator) deleteAndPropagate(ctx context.Context, ownerID, op string,
	apply func(ctx context.Context, tx dbx.DBTX) ([]string, error)) ([]string, error) {
	var affected []string

	err := dbx.WithTx(ctx, c.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		ids, err := apply(ctx, tx)
		if err != nil {
			return err
		}
		affected = ids
		return c.repomanager.Removals(tx).Enqueue(ctx, pendingRemovals(ownerID, ids))
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", common.ErrPersistence, op, err)
	}

	c.log.Info(ctx, "exchanges deleted", "op", op, "owner_id", ownerID, "count", len(affected))
	if len(affected) > 0 {
		c.propagate(ctx, ownerID, affected)
	}
	return affected, nil
}

// propagate removes memory records for ids and settles their outbox rows.
func (c *Coordinator) propagate(ctx context.Context, ownerID string, ids []string) {
	recordIDs := recordIDs(ownerID, ids)
	outbox := c.repomanager.Removals(c.db)

	rctx, cancel := context.WithTimeout(ctx, c.removeTimeout)
	defer cancel()

	if err := c.memory.Remove(rctx, ownerID, ids); err != nil {
		c.metrics.IndexFailure(ctx, "remove")
		c.log.Warn(ctx, "memory removal failed, queued for reconciliation",
			"owner_id", ownerID, "count", len(ids), "error", err)
		if merr := outbox.MarkAttempt(ctx, recordIDs, err.Error()); merr != nil {
			c.log.Error(ctx, "failed to record removal attempt", "owner_id", ownerID, "error", merr)
		}
		return
	}

	if err := outbox.Ack(ctx, recordIDs); err != nil {
		// Removal is idempotent; the reconciler will repeat and acknowledge.
		c.log.Warn(ctx, "failed to acknowledge memory removal", "owner_id", ownerID, "error", err)
	}
}

func pendingRemovals(ownerID string, ids []string) []models.PendingRemoval {
	out := make([]models.PendingRemoval, 0, len(ids))
	for _, id := range ids {
		out = append(out, models.PendingRemoval{
			RecordID:   memory.RecordID(ownerID, id),
			OwnerID:    ownerID,
			ExchangeID: id,
		})
	}
	return out
}

func recordIDs(ownerID string, ids []string) []string {
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		out = append(out, memory.RecordID(ownerID, id))
	}
	return out
}
