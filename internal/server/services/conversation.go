package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dmitrijs2005/companion/internal/common"
	"github.com/dmitrijs2005/companion/internal/logging"
	"github.com/dmitrijs2005/companion/internal/server/audit"
	"github.com/dmitrijs2005/companion/internal/server/models"
	"github.com/dmitrijs2005/companion/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/companion/internal/server/telemetry"
)

// DefaultAuditTimeout bounds one background moderation pass.
const DefaultAuditTimeout = 10 * time.Second

// TurnResult is what a caller gets back for a completed turn.
type TurnResult struct {
	Exchange *models.Exchange
}

// ConversationService handles a user's turns and history.
type ConversationService struct {
	db           *sql.DB
	repomanager  repomanager.RepositoryManager
	assembler    *ContextAssembler
	generator    Generator
	coordinator  *Coordinator
	auditor      Auditor
	bg           *Background
	auditTimeout time.Duration
	metrics      *telemetry.Metrics
	log          logging.Logger
}

func NewConversationService(db *sql.DB, rm repomanager.RepositoryManager, assembler *ContextAssembler,
	generator Generator, coordinator *Coordinator, auditor Auditor, bg *Background,
	metrics *telemetry.Metrics, log logging.Logger) *ConversationService {
	return &ConversationService{
		db:           db,
		repomanager:  rm,
		assembler:    assembler,
		generator:    generator,
		coordinator:  coordinator,
		auditor:      auditor,
		bg:           bg,
		auditTimeout: DefaultAuditTimeout,
		metrics:      metrics,
		log:          log.With("module", "conversation"),
	}
}

// Turn answers message for ownerID, addressing them as displayName.
//
// The exchange is persisted only after a reply is obtained. Indexing and
// moderation run in the background and cannot fail the turn. Errors wrap
// common.ErrInvalidArgument, common.ErrGeneration or common.ErrPersistence.
func (s *ConversationService) Turn(ctx context.Context, ownerID, displayName, message string) (*TurnResult, error) {
	message = strings.TrimSpace(message)
	if ownerID == "" || message == "" {
		return nil, fmt.Errorf("%w: owner and message are required", common.ErrInvalidArgument)
	}

	assembled, err := s.assembler.Assemble(ctx, ownerID, displayName, message)
	if err != nil {
		s.metrics.Turn(ctx, telemetry.OutcomePersistFailed)
		return nil, err
	}

	reply, err := s.generator.Generate(ctx, assembled.Segments)
	if err != nil {
		s.metrics.Turn(ctx, telemetry.OutcomeGenerationFailed)
		s.log.Error(ctx, "generation failed", "owner_id", ownerID, "error", err)
		s.auditAsync(ctx, audit.Input{OwnerID: ownerID, Message: message})
		if !errors.Is(err, common.ErrGeneration) {
			err = fmt.Errorf("%w: %v", common.ErrGeneration, err)
		}
		return nil, err
	}

	ex, err := s.coordinator.Record(ctx, ownerID, message, reply)
	if err != nil {
		s.metrics.Turn(ctx, telemetry.OutcomePersistFailed)
		s.log.Error(ctx, "failed to persist exchange", "owner_id", ownerID, "error", err)
		return nil, err
	}

	s.coordinator.IndexAsync(ctx, ex)
	response := ex.Response
	s.auditAsync(ctx, audit.Input{OwnerID: ownerID, ExchangeID: ex.ID, Message: ex.Message, Response: &response})

	s.metrics.Turn(ctx, telemetry.OutcomeOK)
	s.log.Debug(ctx, "turn completed", "owner_id", ownerID, "exchange_id", ex.ID,
		"memories", len(assembled.Memories), "window", len(assembled.Window))

	return &TurnResult{Exchange: ex}, nil
}

func (s *ConversationService) auditAsync(ctx context.Context, in audit.Input) {
	if s.auditor == nil {
		return
	}
	s.bg.Go(ctx, "audit", s.auditTimeout, func(ctx context.Context) {
		s.auditor.Audit(ctx, in)
	})
}

// History returns visible exchanges newest first and the visible total.
func (s *ConversationService) History(ctx context.Context, ownerID string, limit, offset int) ([]*models.Exchange, int64, error) {
	limit = clampLimit(limit, DefaultHistoryLimit)
	offset = max(offset, 0)

	repo := s.repomanager.Exchanges(s.db)
	items, err := repo.ListVisible(ctx, ownerID, limit, offset, true)
	if err != nil {
		return nil, 0, fmt.Errorf("%w: %v", common.ErrPersistence, err)
	}
	total, err := repo.CountVisible(ctx, ownerID)
	if err != nil {
		return nil, 0, fmt.Errorf("%w: %v", common.ErrPersistence, err)
	}
	return items, total, nil
}

// DeleteHistory hides the given exchanges, or all visible ones when ids is
// empty, and returns how many were hidden.
func (s *ConversationService) DeleteHistory(ctx context.Context, ownerID string, ids []string) (int, error) {
	deleted, err := s.coordinator.SoftDelete(ctx, ownerID, ids)
	if err != nil {
		return 0, err
	}
	return len(deleted), nil
}
