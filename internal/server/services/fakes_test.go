package services

import (
	"context"
	"database/sql"
	"fmt"
	"slices"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/dmitrijs2005/companion/internal/dbx"
	"github.com/dmitrijs2005/companion/internal/logging"
	"github.com/dmitrijs2005/companion/internal/server/audit"
	"github.com/dmitrijs2005/companion/internal/server/memory"
	"github.com/dmitrijs2005/companion/internal/server/models"
	"github.com/dmitrijs2005/companion/internal/server/prompt"
	"github.com/dmitrijs2005/companion/internal/server/repositories/exchanges"
	"github.com/dmitrijs2005/companion/internal/server/repositories/moderation"
	"github.com/dmitrijs2005/companion/internal/server/repositories/removals"
	"github.com/dmitrijs2005/companion/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/companion/internal/server/telemetry"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"
)

// store is an in-memory stand-in for the three tables.
type store struct {
	mu         sync.Mutex
	seq        int
	base       time.Time
	exchanges  []*models.Exchange
	pending    map[string]*models.PendingRemoval
	moderation []*models.ModerationRecord

	createErr error
	listErr   error
}

func newStore() *store {
	return &store{
		base:    time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC),
		pending: make(map[string]*models.PendingRemoval),
	}
}

func copyExchange(e *models.Exchange) *models.Exchange {
	c := *e
	return &c
}

type fakeExchanges struct {
	exchanges.Repository
	s *store
}

func (f *fakeExchanges) Create(_ context.Context, e *models.Exchange) (*models.Exchange, error) {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	if f.s.createErr != nil {
		return nil, f.s.createErr
	}
	f.s.seq++
	c := copyExchange(e)
	c.ID = fmt.Sprintf("ex%03d", f.s.seq)
	c.CreatedAt = f.s.base.Add(time.Duration(f.s.seq) * time.Minute)
	f.s.exchanges = append(f.s.exchanges, c)
	return copyExchange(c), nil
}

func (f *fakeExchanges) filter(owner string, keep func(*models.Exchange) bool) []*models.Exchange {
	out := make([]*models.Exchange, 0)
	for _, e := range f.s.exchanges {
		if e.OwnerID == owner && keep(e) {
			out = append(out, copyExchange(e))
		}
	}
	return out
}

func page(items []*models.Exchange, limit, offset int) []*models.Exchange {
	if offset >= len(items) {
		return []*models.Exchange{}
	}
	end := min(offset+limit, len(items))
	return items[offset:end]
}

func (f *fakeExchanges) ListVisible(_ context.Context, owner string, limit, offset int, desc bool) ([]*models.Exchange, error) {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	if f.s.listErr != nil {
		return nil, f.s.listErr
	}
	items := f.filter(owner, func(e *models.Exchange) bool { return !e.Deleted })
	sort.SliceStable(items, func(i, j int) bool {
		if desc {
			return items[i].CreatedAt.After(items[j].CreatedAt)
		}
		return items[i].CreatedAt.Before(items[j].CreatedAt)
	})
	return page(items, limit, offset), nil
}

func (f *fakeExchanges) CountVisible(_ context.Context, owner string) (int64, error) {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	return int64(len(f.filter(owner, func(e *models.Exchange) bool { return !e.Deleted }))), nil
}

func (f *fakeExchanges) ListAll(_ context.Context, owner string, vis models.Visibility, limit, offset int) ([]*models.Exchange, error) {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	items := f.filter(owner, func(e *models.Exchange) bool {
		switch vis {
		case models.VisibilityActive:
			return !e.Deleted
		case models.VisibilityDeleted:
			return e.Deleted
		}
		return true
	})
	sort.SliceStable(items, func(i, j int) bool { return items[i].CreatedAt.After(items[j].CreatedAt) })
	return page(items, limit, offset), nil
}

func (f *fakeExchanges) CountByVisibility(_ context.Context, owner string) (models.VisibilityCounts, error) {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	var c models.VisibilityCounts
	for _, e := range f.filter(owner, func(*models.Exchange) bool { return true }) {
		if e.Deleted {
			c.Deleted++
		} else {
			c.Active++
		}
	}
	return c, nil
}

func (f *fakeExchanges) DeletedIDs(_ context.Context, owner string) ([]string, error) {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	var ids []string
	for _, e := range f.filter(owner, func(e *models.Exchange) bool { return e.Deleted }) {
		ids = append(ids, e.ID)
	}
	return ids, nil
}

func (f *fakeExchanges) VisibleIDs(_ context.Context, owner string, ids []string) ([]string, error) {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	if f.s.listErr != nil {
		return nil, f.s.listErr
	}
	out := []string{}
	for _, e := range f.s.exchanges {
		if e.OwnerID == owner && !e.Deleted && slices.Contains(ids, e.ID) {
			out = append(out, e.ID)
		}
	}
	return out, nil
}

func (f *fakeExchanges) Owners(context.Context) ([]string, error) {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	seen := map[string]bool{}
	var out []string
	for _, e := range f.s.exchanges {
		if !seen[e.OwnerID] {
			seen[e.OwnerID] = true
			out = append(out, e.OwnerID)
		}
	}
	sort.Strings(out)
	return out, nil
}

func matches(ids []string, id string) bool {
	if len(ids) == 0 {
		return true
	}
	for _, x := range ids {
		if x == id {
			return true
		}
	}
	return false
}

func (f *fakeExchanges) SoftDelete(_ context.Context, owner string, ids []string) ([]string, error) {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	out := []string{}
	for _, e := range f.s.exchanges {
		if e.OwnerID == owner && !e.Deleted && matches(ids, e.ID) {
			e.Deleted = true
			out = append(out, e.ID)
		}
	}
	return out, nil
}

func (f *fakeExchanges) DeletePermanently(_ context.Context, owner string, ids []string) ([]string, error) {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	out := []string{}
	kept := f.s.exchanges[:0]
	for _, e := range f.s.exchanges {
		if e.OwnerID == owner && matches(ids, e.ID) {
			out = append(out, e.ID)
			continue
		}
		kept = append(kept, e)
	}
	f.s.exchanges = kept
	return out, nil
}

type fakeRemovals struct {
	removals.Repository
	s *store
}

func (f *fakeRemovals) Enqueue(_ context.Context, items []models.PendingRemoval) error {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	for _, it := range items {
		if _, ok := f.s.pending[it.RecordID]; ok {
			continue
		}
		c := it
		c.CreatedAt = time.Now()
		f.s.pending[it.RecordID] = &c
	}
	return nil
}

func (f *fakeRemovals) Pending(_ context.Context, limit int) ([]*models.PendingRemoval, error) {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	out := make([]*models.PendingRemoval, 0, len(f.s.pending))
	for _, p := range f.s.pending {
		c := *p
		out = append(out, &c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].RecordID < out[j].RecordID })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (f *fakeRemovals) Ack(_ context.Context, recordIDs []string) error {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	for _, id := range recordIDs {
		delete(f.s.pending, id)
	}
	return nil
}

func (f *fakeRemovals) MarkAttempt(_ context.Context, recordIDs []string, lastErr string) error {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	for _, id := range recordIDs {
		if p, ok := f.s.pending[id]; ok {
			p.Attempts++
			p.LastError = lastErr
		}
	}
	return nil
}

type fakeModeration struct {
	moderation.Repository
	s *store
}

func (f *fakeModeration) Create(_ context.Context, r *models.ModerationRecord) (*models.ModerationRecord, error) {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	c := *r
	c.ID = fmt.Sprintf("mod%03d", len(f.s.moderation)+1)
	c.CreatedAt = time.Now()
	f.s.moderation = append(f.s.moderation, &c)
	return &c, nil
}

func (f *fakeModeration) List(_ context.Context, owner string, limit int) ([]*models.ModerationRecord, error) {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	var out []*models.ModerationRecord
	for i := len(f.s.moderation) - 1; i >= 0 && len(out) < limit; i-- {
		if owner == "" || f.s.moderation[i].OwnerID == owner {
			out = append(out, f.s.moderation[i])
		}
	}
	return out, nil
}

type fakeRM struct {
	repomanager.RepositoryManager
	s *store
}

func (m *fakeRM) Exchanges(dbx.DBTX) exchanges.Repository   { return &fakeExchanges{s: m.s} }
func (m *fakeRM) Removals(dbx.DBTX) removals.Repository     { return &fakeRemovals{s: m.s} }
func (m *fakeRM) Moderation(dbx.DBTX) moderation.Repository { return &fakeModeration{s: m.s} }

// flakyIndex wraps a real index and fails selected operations on demand.
type flakyIndex struct {
	inner       *memory.Index
	mu          sync.Mutex
	removeErr   error
	retrieveErr error
	indexErr    error
	// hold, when set, parks every Index call until it is closed.
	hold    chan struct{}
	waiting int
}

// parked is the number of Index calls currently held.
func (f *flakyIndex) parked() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.waiting
}

// holdIndex makes upserts wait until the returned release func is called.
func (f *flakyIndex) holdIndex() (release func()) {
	ch := make(chan struct{})
	f.mu.Lock()
	f.hold = ch
	f.mu.Unlock()
	return func() {
		f.mu.Lock()
		f.hold = nil
		f.mu.Unlock()
		close(ch)
	}
}

func (f *flakyIndex) setRemoveErr(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.removeErr = err
}

func (f *flakyIndex) Index(ctx context.Context, owner, id, msg, resp string) error {
	f.mu.Lock()
	err, hold := f.indexErr, f.hold
	f.mu.Unlock()
	if hold != nil {
		f.mu.Lock()
		f.waiting++
		f.mu.Unlock()
		defer func() {
			f.mu.Lock()
			f.waiting--
			f.mu.Unlock()
		}()
		select {
		case <-hold:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if err != nil {
		return err
	}
	return f.inner.Index(ctx, owner, id, msg, resp)
}

func (f *flakyIndex) Retrieve(ctx context.Context, owner, query string, limit int) ([]memory.Snippet, error) {
	f.mu.Lock()
	err := f.retrieveErr
	f.mu.Unlock()
	if err != nil {
		return nil, err
	}
	return f.inner.Retrieve(ctx, owner, query, limit)
}

func (f *flakyIndex) Remove(ctx context.Context, owner string, ids []string) error {
	f.mu.Lock()
	err := f.removeErr
	f.mu.Unlock()
	if err != nil {
		return err
	}
	return f.inner.Remove(ctx, owner, ids)
}

func (f *flakyIndex) Has(ctx context.Context, owner, id string) (bool, error) {
	return f.inner.Has(ctx, owner, id)
}

func (f *flakyIndex) Entries(ctx context.Context) ([]memory.Entry, error) {
	return f.inner.Entries(ctx)
}

func (f *flakyIndex) Count() int { return f.inner.Count() }

// fakeGenerator records every request and answers with reply or err.
type fakeGenerator struct {
	mu       sync.Mutex
	reply    string
	err      error
	requests [][]prompt.Segment
}

func (g *fakeGenerator) Generate(_ context.Context, segments []prompt.Segment) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.requests = append(g.requests, segments)
	if g.err != nil {
		return "", g.err
	}
	return g.reply, nil
}

func (g *fakeGenerator) calls() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.requests)
}

func (g *fakeGenerator) last() []prompt.Segment {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.requests[len(g.requests)-1]
}

type harness struct {
	db          *sql.DB
	store       *store
	rm          *fakeRM
	index       *flakyIndex
	gen         *fakeGenerator
	summarizer  *fakeGenerator
	bg          *Background
	coordinator *Coordinator
	reconciler  *Reconciler
	convo       *ConversationService
	admin       *AdminService
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	db, err := sql.Open("sqlite", "file:"+strings.ReplaceAll(t.Name(), "/", "_")+"?mode=memory&cache=shared")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	cdb, err := memory.OpenDB("")
	require.NoError(t, err)
	ix, err := memory.NewIndex(cdb, "", memory.HashEmbedding(256))
	require.NoError(t, err)

	s := newStore()
	rm := &fakeRM{s: s}
	log := logging.Nop{}
	metrics := telemetry.Noop()
	h := &harness{
		db:         db,
		store:      s,
		rm:         rm,
		index:      &flakyIndex{inner: ix},
		gen:        &fakeGenerator{reply: "That sounds lovely."},
		summarizer: &fakeGenerator{reply: "Doing well overall."},
		bg:         NewBackground(log),
	}

	assembler := NewContextAssembler(db, rm, h.index, AssemblerConfig{}, metrics, log)
	h.coordinator = NewCoordinator(db, rm, h.index, h.bg, metrics, log)
	auditor := audit.NewAuditor(db, rm, audit.DefaultRules(), nil, metrics, log)
	h.convo = NewConversationService(db, rm, assembler, h.gen, h.coordinator, auditor, h.bg, metrics, log)
	h.reconciler = NewReconciler(db, rm, h.index, 0, metrics, log)
	h.admin = NewAdminService(db, rm, h.coordinator, h.summarizer, h.reconciler, log)

	t.Cleanup(h.bg.Wait)
	return h
}

// seed stores and indexes an exchange directly.
func (h *harness) seed(t *testing.T, owner, message, response string) *models.Exchange {
	t.Helper()
	ex, err := h.coordinator.Record(context.Background(), owner, message, response)
	require.NoError(t, err)
	require.NoError(t, h.coordinator.Index(context.Background(), ex))
	return ex
}

func (h *harness) has(t *testing.T, owner, id string) bool {
	t.Helper()
	ok, err := h.index.Has(context.Background(), owner, id)
	require.NoError(t, err)
	return ok
}

func (s *store) rmExchanges() *fakeExchanges { return &fakeExchanges{s: s} }

func newExchange(owner, message string) *models.Exchange {
	return &models.Exchange{OwnerID: owner, Message: message, Response: "r-" + message}
}
