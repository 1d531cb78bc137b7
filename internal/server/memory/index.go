// Package memory is the long-term memory index: one vector record per
// visible exchange, always queried and deleted within a single owner.
package memory

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/dmitrijs2005/companion/internal/common"
	"github.com/dmitrijs2005/companion/internal/filex"
	chromem "github.com/philippgille/chromem-go"
)

const (
	metaOwnerID    = "owner_id"
	metaExchangeID = "exchange_id"

	// DefaultCollection is the single collection shared by all owners.
	DefaultCollection = "companion_memories"
)

// Snippet is one retrieved memory.
type Snippet struct {
	ExchangeID string
	OwnerID    string
	Text       string
	Similarity float32
}

// Entry identifies one stored record.
type Entry struct {
	OwnerID    string
	ExchangeID string
}

// Index wraps one chromem collection. It is safe for concurrent use.
type Index struct {
	collection *chromem.Collection
	embed      chromem.EmbeddingFunc

	// scanVector is any vector of the collection's dimension; listing
	// records is a query with it and nResults set to the collection size.
	scanMu     sync.Mutex
	scanVector []float32
}

// NewIndex opens (or creates) the shared collection in db using embed for
// both documents and queries.
func NewIndex(db *chromem.DB, name string, embed chromem.EmbeddingFunc) (*Index, error) {
	if name == "" {
		name = DefaultCollection
	}
	col, err := db.GetOrCreateCollection(name, nil, embed)
	if err != nil {
		return nil, fmt.Errorf("%w: open collection: %v", common.ErrMemoryIndex, err)
	}
	return &Index{collection: col, embed: embed}, nil
}

// OpenDB returns a persistent chromem DB rooted at path, or an in-memory one
// when path is empty.
func OpenDB(path string) (*chromem.DB, error) {
	if path == "" {
		return chromem.NewDB(), nil
	}
	dir, err := filex.EnsureDir(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrMemoryIndex, err)
	}
	db, err := chromem.NewPersistentDB(dir, true)
	if err != nil {
		return nil, fmt.Errorf("%w: open %s: %v", common.ErrMemoryIndex, path, err)
	}
	return db, nil
}

// Index upserts the record for (ownerID, exchangeID). Repeating the call
// with the same pair replaces the record instead of adding a second one.
func (ix *Index) Index(ctx context.Context, ownerID, exchangeID, message, response string) error {
	if ownerID == "" || exchangeID == "" {
		return fmt.Errorf("%w: owner and exchange id are required", common.ErrInvalidArgument)
	}
	doc := chromem.Document{
		ID:      RecordID(ownerID, exchangeID),
		Content: DocumentText(message, response),
		Metadata: map[string]string{
			metaOwnerID:    ownerID,
			metaExchangeID: exchangeID,
		},
	}
	if err := ix.collection.AddDocument(ctx, doc); err != nil {
		return fmt.Errorf("%w: upsert: %v", common.ErrMemoryIndex, err)
	}
	return nil
}

// Retrieve returns at most limit snippets of ownerID ordered by descending
// similarity to query. No records yields an empty slice, not an error.
func (ix *Index) Retrieve(ctx context.Context, ownerID, query string, limit int) ([]Snippet, error) {
	if ownerID == "" {
		return nil, fmt.Errorf("%w: owner id is required", common.ErrInvalidArgument)
	}
	if limit <= 0 || strings.TrimSpace(query) == "" {
		return []Snippet{}, nil
	}

	// chromem rejects nResults above the collection size; the owner filter
	// then narrows the result further.
	n := min(limit, ix.collection.Count())
	if n == 0 {
		return []Snippet{}, nil
	}

	results, err := ix.collection.Query(ctx, query, n, map[string]string{metaOwnerID: ownerID}, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: query: %v", common.ErrMemoryIndex, err)
	}

	snippets := make([]Snippet, 0, len(results))
	for _, r := range results {
		if r.Metadata[metaOwnerID] != ownerID {
			continue
		}
		snippets = append(snippets, Snippet{
			ExchangeID: r.Metadata[metaExchangeID],
			OwnerID:    ownerID,
			Text:       r.Content,
			Similarity: r.Similarity,
		})
	}
	return snippets, nil
}

// Remove deletes the records of the given exchanges. Ids that are not
// indexed are skipped.
func (ix *Index) Remove(ctx context.Context, ownerID string, exchangeIDs []string) error {
	if ownerID == "" {
		return fmt.Errorf("%w: owner id is required", common.ErrInvalidArgument)
	}

	ids := make([]string, 0, len(exchangeIDs))
	for _, exchangeID := range exchangeIDs {
		ok, err := ix.Has(ctx, ownerID, exchangeID)
		if err != nil {
			return err
		}
		if ok {
			ids = append(ids, RecordID(ownerID, exchangeID))
		}
	}
	if len(ids) == 0 {
		return nil
	}

	if err := ix.collection.Delete(ctx, nil, nil, ids...); err != nil {
		return fmt.Errorf("%w: delete: %v", common.ErrMemoryIndex, err)
	}
	return nil
}

// Has reports whether the exchange currently has a record.
func (ix *Index) Has(ctx context.Context, ownerID, exchangeID string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, fmt.Errorf("%w: %v", common.ErrMemoryIndex, err)
	}
	// chromem reports an unknown id as an error.
	if _, err := ix.collection.GetByID(ctx, RecordID(ownerID, exchangeID)); err != nil {
		return false, nil
	}
	return true, nil
}

// Count is the total number of records across all owners.
func (ix *Index) Count() int {
	return ix.collection.Count()
}

// Entries lists every stored record. Reconciliation uses it to find records
// whose exchange no longer exists in the exchange store.
func (ix *Index) Entries(ctx context.Context) ([]Entry, error) {
	n := ix.collection.Count()
	if n == 0 {
		return []Entry{}, nil
	}
	vec, err := ix.scanEmbedding(ctx)
	if err != nil {
		return nil, err
	}

	results, err := ix.collection.QueryEmbedding(ctx, vec, n, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: scan: %v", common.ErrMemoryIndex, err)
	}

	entries := make([]Entry, 0, len(results))
	for _, r := range results {
		owner, exchange := r.Metadata[metaOwnerID], r.Metadata[metaExchangeID]
		if owner == "" || exchange == "" {
			if o, e, ok := ParseRecordID(r.ID); ok {
				owner, exchange = o, e
			}
		}
		entries = append(entries, Entry{OwnerID: owner, ExchangeID: exchange})
	}
	return entries, nil
}

func (ix *Index) scanEmbedding(ctx context.Context) ([]float32, error) {
	ix.scanMu.Lock()
	defer ix.scanMu.Unlock()
	if ix.scanVector != nil {
		return ix.scanVector, nil
	}
	vec, err := ix.embed(ctx, "memory")
	if err != nil {
		return nil, fmt.Errorf("%w: scan embedding: %v", common.ErrMemoryIndex, err)
	}
	ix.scanVector = vec
	return vec, nil
}
