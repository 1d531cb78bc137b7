package audit

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/dmitrijs2005/companion/internal/logging"
	"github.com/dmitrijs2005/companion/internal/server/models"
	"github.com/dmitrijs2005/companion/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/companion/internal/server/telemetry"
)

// Input is the exchange to audit. Response is nil when generation failed;
// ExchangeID is empty in that case.
type Input struct {
	OwnerID    string
	ExchangeID string
	Message    string
	Response   *string
}

// Auditor runs Rules over exchanges and writes one moderation record per
// flagged exchange. Failures are logged and never returned.
type Auditor struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	rules       *Rules
	archiver    Archiver
	metrics     *telemetry.Metrics
	log         logging.Logger
}

// NewAuditor builds an Auditor. archiver and metrics may be nil.
func NewAuditor(db *sql.DB, rm repomanager.RepositoryManager, rules *Rules, archiver Archiver,
	metrics *telemetry.Metrics, log logging.Logger) *Auditor {
	if rules == nil {
		rules = DefaultRules()
	}
	return &Auditor{
		db:          db,
		repomanager: rm,
		rules:       rules,
		archiver:    archiver,
		metrics:     metrics,
		log:         log.With("module", "audit"),
	}
}

// Audit reports whether the exchange matched any phrase. A match whose record
// could not be written still reports true.
func (a *Auditor) Audit(ctx context.Context, in Input) (flagged bool) {
	defer func() {
		if p := recover(); p != nil {
			a.log.Error(ctx, "moderation pass panicked", "owner_id", in.OwnerID, "panic", fmt.Sprint(p))
		}
	}()

	findings := a.rules.Scan(in.Message, in.Response)
	if !findings.Flagged() {
		return false
	}
	flagged = true
	a.metrics.Flagged(ctx)

	record := &models.ModerationRecord{
		OwnerID:    in.OwnerID,
		ExchangeID: in.ExchangeID,
		Message:    in.Message,
		Response:   in.Response,
		Reason:     findings.Reason(),
	}

	saved, err := a.repomanager.Moderation(a.db).Create(ctx, record)
	if err != nil {
		a.log.Error(ctx, "failed to write moderation record", "owner_id", in.OwnerID, "exchange_id", in.ExchangeID, "error", err)
		return flagged
	}
	a.log.Warn(ctx, "exchange flagged", "owner_id", in.OwnerID, "exchange_id", in.ExchangeID, "reason", saved.Reason)

	if a.archiver != nil {
		if err := a.archiver.Archive(ctx, saved); err != nil {
			a.log.Warn(ctx, "failed to archive moderation record", "record_id", saved.ID, "error", err)
		}
	}
	return flagged
}
