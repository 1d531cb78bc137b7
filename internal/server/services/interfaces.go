package services

import (
	"context"

	"github.com/dmitrijs2005/companion/internal/server/audit"
	"github.com/dmitrijs2005/companion/internal/server/memory"
	"github.com/dmitrijs2005/companion/internal/server/prompt"
)

// MemoryIndex is the long-term memory store. *memory.Index implements it.
type MemoryIndex interface {
	Index(ctx context.Context, ownerID, exchangeID, message, response string) error
	Retrieve(ctx context.Context, ownerID, query string, limit int) ([]memory.Snippet, error)
	Remove(ctx context.Context, ownerID string, exchangeIDs []string) error
	Has(ctx context.Context, ownerID, exchangeID string) (bool, error)
	Entries(ctx context.Context) ([]memory.Entry, error)
}

// Generator produces reply text. *generation.Generator implements it.
type Generator interface {
	Generate(ctx context.Context, segments []prompt.Segment) (string, error)
}

// Auditor is the moderation pass. *audit.Auditor implements it.
type Auditor interface {
	Audit(ctx context.Context, in audit.Input) bool
}

const (
	DefaultHistoryLimit = 50
	MaxListLimit        = 200
)

// clampLimit maps non-positive limits to def and caps at MaxListLimit.
func clampLimit(limit, def int) int {
	if limit <= 0 {
		return def
	}
	return min(limit, MaxListLimit)
}
