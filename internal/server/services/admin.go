package services

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/dmitrijs2005/companion/internal/common"
	"github.com/dmitrijs2005/companion/internal/logging"
	"github.com/dmitrijs2005/companion/internal/server/models"
	"github.com/dmitrijs2005/companion/internal/server/prompt"
	"github.com/dmitrijs2005/companion/internal/server/repositories/repomanager"
)

// SummaryWindow is how many recent exchanges the wellbeing summary reads.
const SummaryWindow = 50

// ExchangePage is one page of the admin exchange view.
type ExchangePage struct {
	Exchanges []*models.Exchange
	// Total matches the requested visibility filter.
	Total  int64
	Counts models.VisibilityCounts
}

// Summary is a generated wellbeing summary.
type Summary struct {
	Text         string
	MessageCount int64
	GeneratedAt  time.Time
}

// AdminService is the oversight surface. It deletes through the same
// Coordinator as users do.
type AdminService struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	coordinator *Coordinator
	summarizer  Generator
	reconciler  *Reconciler
	log         logging.Logger
}

func NewAdminService(db *sql.DB, rm repomanager.RepositoryManager, coordinator *Coordinator,
	summarizer Generator, reconciler *Reconciler, log logging.Logger) *AdminService {
	return &AdminService{
		db:          db,
		repomanager: rm,
		coordinator: coordinator,
		summarizer:  summarizer,
		reconciler:  reconciler,
		log:         log.With("module", "admin"),
	}
}

// ListExchanges returns the owner's exchanges including hidden ones.
func (s *AdminService) ListExchanges(ctx context.Context, ownerID string, visibility models.Visibility, limit, offset int) (*ExchangePage, error) {
	if ownerID == "" {
		return nil, fmt.Errorf("%w: owner id is required", common.ErrInvalidArgument)
	}
	limit = clampLimit(limit, DefaultHistoryLimit)
	offset = max(offset, 0)

	repo := s.repomanager.Exchanges(s.db)
	items, err := repo.ListAll(ctx, ownerID, visibility, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrPersistence, err)
	}
	counts, err := repo.CountByVisibility(ctx, ownerID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrPersistence, err)
	}

	page := &ExchangePage{Exchanges: items, Counts: counts}
	switch visibility {
	case models.VisibilityActive:
		page.Total = counts.Active
	case models.VisibilityDeleted:
		page.Total = counts.Deleted
	default:
		page.Total = counts.Active + counts.Deleted
	}
	return page, nil
}

// DeleteExchanges hides the owner's visible exchanges, or purges everything
// when permanent is set. It returns the number of exchanges affected.
func (s *AdminService) DeleteExchanges(ctx context.Context, ownerID string, permanent bool) (int, error) {
	if ownerID == "" {
		return 0, fmt.Errorf("%w: owner id is required", common.ErrInvalidArgument)
	}
	var (
		ids []string
		err error
	)
	if permanent {
		ids, err = s.coordinator.Purge(ctx, ownerID, nil)
	} else {
		ids, err = s.coordinator.SoftDelete(ctx, ownerID, nil)
	}
	if err != nil {
		return 0, err
	}
	s.log.Info(ctx, "admin deleted exchanges", "owner_id", ownerID, "permanent", permanent, "count", len(ids))
	return len(ids), nil
}

// Summary generates a short wellbeing summary from the owner's recent
// visible exchanges. With no history no backend call is made.
func (s *AdminService) Summary(ctx context.Context, ownerID, displayName string) (*Summary, error) {
	if ownerID == "" {
		return nil, fmt.Errorf("%w: owner id is required", common.ErrInvalidArgument)
	}
	if displayName == "" {
		displayName = ownerID
	}

	repo := s.repomanager.Exchanges(s.db)
	window, err := lastVisible(ctx, repo, ownerID, SummaryWindow)
	if err != nil {
		return nil, err
	}
	count, err := repo.CountVisible(ctx, ownerID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrPersistence, err)
	}

	if len(window) == 0 {
		return &Summary{Text: prompt.NoHistorySummary(displayName), MessageCount: count, GeneratedAt: time.Now().UTC()}, nil
	}

	turns := make([]prompt.Turn, 0, len(window))
	for _, e := range window {
		turns = append(turns, prompt.Turn{Message: e.Message, Response: e.Response})
	}
	text, err := s.summarizer.Generate(ctx, prompt.SummaryPrompt(displayName, turns))
	if err != nil {
		s.log.Error(ctx, "summary generation failed", "owner_id", ownerID, "error", err)
		return nil, fmt.Errorf("%w: summary: %v", common.ErrGeneration, err)
	}

	return &Summary{Text: text, MessageCount: count, GeneratedAt: time.Now().UTC()}, nil
}

// ListModeration returns moderation records newest first; an empty ownerID
// lists every owner.
func (s *AdminService) ListModeration(ctx context.Context, ownerID string, limit int) ([]*models.ModerationRecord, error) {
	limit = clampLimit(limit, DefaultHistoryLimit)
	items, err := s.repomanager.Moderation(s.db).List(ctx, ownerID, limit)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrPersistence, err)
	}
	return items, nil
}

// Reconcile runs one reconciliation pass immediately.
func (s *AdminService) Reconcile(ctx context.Context) (ReconcileReport, error) {
	return s.reconciler.Reconcile(ctx)
}
