// Package services contains the server-side conversation pipeline: context
// assembly, the two-store consistency protocol, reconciliation, and the
// user and admin operations built on them.
package services

import (
	"context"
	"database/sql"
	"fmt"
	"slices"
	"time"

	"github.com/dmitrijs2005/companion/internal/common"
	"github.com/dmitrijs2005/companion/internal/logging"
	"github.com/dmitrijs2005/companion/internal/server/memory"
	"github.com/dmitrijs2005/companion/internal/server/models"
	"github.com/dmitrijs2005/companion/internal/server/prompt"
	"github.com/dmitrijs2005/companion/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/companion/internal/server/telemetry"
)

const (
	DefaultMemoryTopK    = 5
	DefaultWindowSize    = 10
	DefaultMemoryTimeout = 2 * time.Second
)

// Assembled is the generation request for one turn together with the
// context that went into it.
type Assembled struct {
	Segments []prompt.Segment
	Memories []memory.Snippet
	// Window is oldest first.
	Window []*models.Exchange
}

// ContextAssembler combines persona, retrieved memories and the recent
// window into prompt segments.
type ContextAssembler struct {
	db            *sql.DB
	repomanager   repomanager.RepositoryManager
	memory        MemoryIndex
	topK          int
	windowSize    int
	memoryTimeout time.Duration
	metrics       *telemetry.Metrics
	log           logging.Logger
}

type AssemblerConfig struct {
	TopK          int
	WindowSize    int
	MemoryTimeout time.Duration
}

func NewContextAssembler(db *sql.DB, rm repomanager.RepositoryManager, mem MemoryIndex, cfg AssemblerConfig,
	metrics *telemetry.Metrics, log logging.Logger) *ContextAssembler {
	if cfg.TopK <= 0 {
		cfg.TopK = DefaultMemoryTopK
	}
	if cfg.WindowSize <= 0 {
		cfg.WindowSize = DefaultWindowSize
	}
	if cfg.MemoryTimeout <= 0 {
		cfg.MemoryTimeout = DefaultMemoryTimeout
	}
	return &ContextAssembler{
		db:            db,
		repomanager:   rm,
		memory:        mem,
		topK:          cfg.TopK,
		windowSize:    cfg.WindowSize,
		memoryTimeout: cfg.MemoryTimeout,
		metrics:       metrics,
		log:           log.With("module", "assembler"),
	}
}

// Assemble builds the request for message. Memory retrieval runs alongside
// the window query and degrades to no memories on failure or timeout. A
// window read failure is fatal and wraps common.ErrPersistence.
func (a *ContextAssembler) Assemble(ctx context.Context, ownerID, persona, message string) (*Assembled, error) {
	memCh := make(chan []memory.Snippet, 1)
	go func() {
		memCh <- a.retrieve(ctx, ownerID, message)
	}()

	window, err := a.Window(ctx, ownerID)
	if err != nil {
		<-memCh
		return nil, err
	}
	memories := <-memCh

	texts := make([]string, 0, len(memories))
	for _, m := range memories {
		texts = append(texts, m.Text)
	}
	turns := make([]prompt.Turn, 0, len(window))
	for _, e := range window {
		turns = append(turns, prompt.Turn{Message: e.Message, Response: e.Response})
	}

	return &Assembled{
		Segments: prompt.Build(persona, texts, turns, message),
		Memories: memories,
		Window:   window,
	}, nil
}

// Window returns the last windowSize visible exchanges, oldest first.
func (a *ContextAssembler) Window(ctx context.Context, ownerID string) ([]*models.Exchange, error) {
	return lastVisible(ctx, a.repomanager.Exchanges(a.db), ownerID, a.windowSize)
}

func (a *ContextAssembler) retrieve(ctx context.Context, ownerID, message string) []memory.Snippet {
	if a.memory == nil {
		return nil
	}
	rctx, cancel := context.WithTimeout(ctx, a.memoryTimeout)
	defer cancel()

	snippets, err := a.memory.Retrieve(rctx, ownerID, message, a.topK)
	if err != nil {
		a.metrics.IndexFailure(ctx, "retrieve")
		a.log.Warn(ctx, "memory retrieval failed, continuing without memories", "owner_id", ownerID, "error", err)
		return nil
	}

	// Snippets of another owner are dropped even if the index returned them.
	out := make([]memory.Snippet, 0, len(snippets))
	ids := make([]string, 0, len(snippets))
	for _, s := range snippets {
		if s.OwnerID == ownerID {
			out = append(out, s)
			ids = append(ids, s.ExchangeID)
		}
	}
	if len(out) == 0 {
		return out
	}

	// The index may lag behind a delete; only exchanges visible right now
	// are allowed into the prompt.
	visible, err := a.repomanager.Exchanges(a.db).VisibleIDs(rctx, ownerID, ids)
	if err != nil {
		a.log.Warn(ctx, "memory visibility check failed, continuing without memories", "owner_id", ownerID, "error", err)
		return nil
	}
	return slices.DeleteFunc(out, func(s memory.Snippet) bool {
		return !slices.Contains(visible, s.ExchangeID)
	})
}

type visibleLister interface {
	ListVisible(ctx context.Context, ownerID string, limit, offset int, desc bool) ([]*models.Exchange, error)
}

// lastVisible reads the n newest visible exchanges and returns them oldest first.
func lastVisible(ctx context.Context, repo visibleLister, ownerID string, n int) ([]*models.Exchange, error) {
	rows, err := repo.ListVisible(ctx, ownerID, n, 0, true)
	if err != nil {
		return nil, fmt.Errorf("%w: read window: %v", common.ErrPersistence, err)
	}
	slices.Reverse(rows)
	return rows, nil
}
