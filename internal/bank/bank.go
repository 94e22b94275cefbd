// Package bank implements the StructuredMemoryBank facade (spec §4.7):
// the single entry point that funnels every tool-surface call through
// the atomicity envelope (staged -> validated -> written -> committed
// -> indexed -> done) over C1-C6.
package bank

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/doug-martin/goqu/v9"
	_ "github.com/doug-martin/goqu/v9/dialect/mysql"

	"github.com/cognisys/memorybank/internal/config"
	"github.com/cognisys/memorybank/internal/errs"
	"github.com/cognisys/memorybank/internal/index"
	"github.com/cognisys/memorybank/internal/links"
	"github.com/cognisys/memorybank/internal/pool"
	"github.com/cognisys/memorybank/internal/reader"
	"github.com/cognisys/memorybank/internal/schema"
	"github.com/cognisys/memorybank/internal/store"
	"github.com/cognisys/memorybank/internal/writer"
)

// Bank wires C1 (pool), C2 (schema registry), C3 (reader), C4 (writer),
// C5 (link manager), and C6 (semantic index) behind the operations spec
// §4.7 names.
type Bank struct {
	cfg      *config.Config
	pool     *pool.Pool
	registry *schema.Registry
	reader   *reader.Reader
	writer   *writer.Writer
	links    *links.Manager
	index    *index.Index
	logger   *slog.Logger
}

// New builds a Bank over already-constructed C1/C2/C6 components.
func New(cfg *config.Config, p *pool.Pool, registry *schema.Registry, ix *index.Index, logger *slog.Logger) *Bank {
	linkMgr := links.NewManager()
	return &Bank{
		cfg:      cfg,
		pool:     p,
		registry: registry,
		reader:   reader.New(),
		writer:   writer.New(linkMgr),
		links:    linkMgr,
		index:    ix,
		logger:   logger,
	}
}

// Result is the uniform response envelope every C8 tool returns (spec
// §4.7, §6): OK plus Data on success, OK=false plus a classified Error
// on failure. ActiveBranch reports whichever branch the call actually
// observed, since reconnection may have rebound a persistent session.
type Result struct {
	OK           bool        `json:"ok"`
	Data         any         `json:"data,omitempty"`
	Error        *errs.Error `json:"error,omitempty"`
	ActiveBranch string      `json:"active_branch,omitempty"`
}

func ok(data any, branch string) Result {
	return Result{OK: true, Data: data, ActiveBranch: branch}
}

func fail(err error, branch string) Result {
	e, classified := errs.As(err)
	if !classified {
		e = errs.Wrap(errs.Fatal, "unclassified error", err)
	}
	return Result{OK: false, Error: e, ActiveBranch: branch}
}

// partial builds the OK=false-with-data envelope used when a write
// committed successfully but its reindex failed (spec §4.6, §4.7,
// property P8): the caller gets the written data back alongside the
// classified IndexSyncFailed error, and a background reconciler picks
// the block up later.
func partial(data any, branch string, err error) Result {
	res := fail(err, branch)
	res.Data = data
	return res
}

// dbFor wraps conn's live *sql.Conn for read-only goqu queries, outside
// any transaction.
func dbFor(conn *pool.Conn) *goqu.Database {
	return goqu.New("mysql", conn.Conn)
}

// withTx begins a transaction on conn's connection and hands fn a
// goqu.Database bound to it, committing on success and rolling back on
// any error — the single-persistent-connection-per-operation protocol
// of spec §4.4.
func withTx(ctx context.Context, conn *pool.Conn, fn func(tx *goqu.Database) error) error {
	sqlTx, err := conn.Conn.BeginTx(ctx, nil)
	if err != nil {
		return errs.Wrap(errs.ConnectionError, "starting transaction", err)
	}
	if err := fn(goqu.New("mysql", sqlTx)); err != nil {
		_ = sqlTx.Rollback()
		return err
	}
	if err := sqlTx.Commit(); err != nil {
		return errs.Wrap(errs.ConnectionError, "committing transaction", err)
	}
	return nil
}

// commitAndProve runs the backend commit procedure over conn and, if it
// actually produced a new commit, appends a proof row tying blockID to
// that commit hash (spec §4.4, §4.7, invariant I5). A commit that finds
// nothing staged still succeeds, without a proof row.
func (b *Bank) commitAndProve(ctx context.Context, conn *pool.Conn, blockID, operation, message, author string) (*writer.CommitResult, error) {
	res, err := writer.Commit(ctx, conn.Conn, message, author)
	if err != nil {
		return nil, err
	}
	if res.NoChanges {
		return res, nil
	}
	proof := store.Proof{BlockID: blockID, CommitHash: res.CommitHash, Operation: operation, Timestamp: time.Now().UTC()}
	db := goqu.New("mysql", conn.Conn)
	if _, err := db.Insert("block_proofs").Rows(proof).Executor().ExecContext(ctx); err != nil {
		return nil, errs.Wrap(errs.ConnectionError, fmt.Sprintf("writing proof row for block %s", blockID), err)
	}
	return res, nil
}

// CreateMemoryBlockParams is create_memory_block's input (spec §4.4,
// §6).
type CreateMemoryBlockParams struct {
	Branch      string
	NamespaceID string
	Type        string
	Text        string
	Tags        []string
	Metadata    map[string]any
	ParentID    *string
	Visibility  string
	SourceFile  *string
	SourceURI   *string
	Confidence  *store.Confidence
	CreatedBy   string
	Message     string
}

// CreateMemoryBlock validates p.Metadata against the registered
// schema for Type, writes the block and its commit/proof pair, and
// indexes it, following the staged->validated->written->committed->
// indexed->done envelope (spec §4.7).
func (b *Bank) CreateMemoryBlock(ctx context.Context, p CreateMemoryBlockParams) Result {
	branch := b.resolveBranch(p.Branch, b.cfg.DefaultBranch)
	if b.cfg.IsProtected(branch) {
		return fail(errs.New(errs.ProtectedBranch, fmt.Sprintf("branch %q is protected from direct writes", branch)), branch)
	}

	if err := b.registry.Validate(p.Type, p.Metadata); err != nil {
		return fail(err, branch)
	}

	namespaceID := b.defaultString(p.NamespaceID, b.cfg.Namespace.Default)
	visibility := b.defaultString(p.Visibility, store.VisibilityInternal)
	now := time.Now().UTC()
	blk := store.Block{
		ID:            writer.NewID(),
		NamespaceID:   namespaceID,
		Type:          p.Type,
		SchemaVersion: b.registry.LatestVersion(p.Type),
		Text:          p.Text,
		State:         store.StateDraft,
		Visibility:    visibility,
		BlockVersion:  1,
		ParentID:      p.ParentID,
		Tags:          p.Tags,
		Metadata:      p.Metadata,
		SourceFile:    p.SourceFile,
		SourceURI:     p.SourceURI,
		Confidence:    derefConfidence(p.Confidence),
		CreatedBy:     p.CreatedBy,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	conn, err := b.pool.Acquire(ctx, branch, pool.Persistent)
	if err != nil {
		return fail(err, branch)
	}
	defer conn.Release()

	if err := withTx(ctx, conn, func(tx *goqu.Database) error {
		return b.writer.InsertBlock(ctx, tx, blk)
	}); err != nil {
		return fail(err, conn.Branch)
	}

	commitMsg := b.defaultString(p.Message, fmt.Sprintf("create memory block %s", blk.ID))
	if _, err := b.commitAndProve(ctx, conn, blk.ID, store.OpCreate, commitMsg, p.CreatedBy); err != nil {
		return fail(err, conn.Branch)
	}

	if err := b.index.Upsert(ctx, index.UpsertInput{
		ID: blk.ID, NamespaceID: blk.NamespaceID, Type: blk.Type, Tags: blk.Tags, Text: blk.Text, Metadata: blk.Metadata,
	}); err != nil {
		return partial(blk, conn.Branch, err)
	}

	return ok(blk, conn.Branch)
}

// GetMemoryBlock loads a single block by id (spec §4.3).
func (b *Bank) GetMemoryBlock(ctx context.Context, branchReq, id string) Result {
	branch := b.resolveBranch(branchReq, b.cfg.DefaultBranch)
	conn, err := b.pool.Acquire(ctx, branch, pool.Ephemeral)
	if err != nil {
		return fail(err, branch)
	}
	defer conn.Release()

	blk, err := b.reader.GetBlock(ctx, dbFor(conn), id)
	if err != nil {
		return fail(err, conn.Branch)
	}
	return ok(blk, conn.Branch)
}

// QueryMemoryBlocksParams is query_memory_blocks's input (spec §4.3).
type QueryMemoryBlocksParams struct {
	Branch string
	reader.ListBlocksParams
}

// QueryBlocks lists blocks matching a filter, cursor-paginated.
func (b *Bank) QueryBlocks(ctx context.Context, p QueryMemoryBlocksParams) Result {
	branch := b.resolveBranch(p.Branch, b.cfg.DefaultBranch)
	conn, err := b.pool.Acquire(ctx, branch, pool.Ephemeral)
	if err != nil {
		return fail(err, branch)
	}
	defer conn.Release()

	page, err := b.reader.ListBlocks(ctx, dbFor(conn), p.ListBlocksParams)
	if err != nil {
		return fail(err, conn.Branch)
	}
	return ok(page, conn.Branch)
}

// UpdateMemoryBlockParams is update_memory_block's input (spec §4.4).
type UpdateMemoryBlockParams struct {
	Branch  string
	ID      string
	Patch   writer.Patch
	Author  string
	Message string
	Type    string // re-validated against the registered schema when non-empty
}

// UpdateMemoryBlock applies a patch, optionally re-validates against
// the registered schema, commits, and reindexes.
func (b *Bank) UpdateMemoryBlock(ctx context.Context, p UpdateMemoryBlockParams) Result {
	branch := b.resolveBranch(p.Branch, b.cfg.DefaultBranch)
	if b.cfg.IsProtected(branch) {
		return fail(errs.New(errs.ProtectedBranch, fmt.Sprintf("branch %q is protected from direct writes", branch)), branch)
	}

	conn, err := b.pool.Acquire(ctx, branch, pool.Persistent)
	if err != nil {
		return fail(err, branch)
	}
	defer conn.Release()

	var updated *store.Block
	if err := withTx(ctx, conn, func(tx *goqu.Database) error {
		blk, err := b.writer.UpdateBlock(ctx, tx, p.ID, p.Patch)
		if err != nil {
			return err
		}
		if p.Type != "" {
			if err := b.registry.Validate(p.Type, blk.Metadata); err != nil {
				return err
			}
		}
		updated = blk
		return nil
	}); err != nil {
		return fail(err, conn.Branch)
	}

	commitMsg := b.defaultString(p.Message, fmt.Sprintf("update memory block %s", p.ID))
	if _, err := b.commitAndProve(ctx, conn, p.ID, store.OpUpdate, commitMsg, p.Author); err != nil {
		return fail(err, conn.Branch)
	}

	if err := b.index.Upsert(ctx, index.UpsertInput{
		ID: updated.ID, NamespaceID: updated.NamespaceID, Type: updated.Type,
		Tags: updated.Tags, Text: updated.Text, Metadata: updated.Metadata,
	}); err != nil {
		return partial(updated, conn.Branch, err)
	}

	return ok(updated, conn.Branch)
}

// DeleteMemoryBlock hard-deletes a block, its properties, and incident
// links, commits a final proof row, and drops it from the index (spec
// §4.4, §9 Open Question (a)).
func (b *Bank) DeleteMemoryBlock(ctx context.Context, branchReq, id, author, message string) Result {
	branch := b.resolveBranch(branchReq, b.cfg.DefaultBranch)
	if b.cfg.IsProtected(branch) {
		return fail(errs.New(errs.ProtectedBranch, fmt.Sprintf("branch %q is protected from direct writes", branch)), branch)
	}

	conn, err := b.pool.Acquire(ctx, branch, pool.Persistent)
	if err != nil {
		return fail(err, branch)
	}
	defer conn.Release()

	if err := withTx(ctx, conn, func(tx *goqu.Database) error {
		return b.writer.DeleteBlock(ctx, tx, id)
	}); err != nil {
		return fail(err, conn.Branch)
	}

	commitMsg := b.defaultString(message, fmt.Sprintf("delete memory block %s", id))
	if _, err := b.commitAndProve(ctx, conn, id, store.OpDelete, commitMsg, author); err != nil {
		return fail(err, conn.Branch)
	}

	if err := b.index.Remove(ctx, id); err != nil {
		return partial(map[string]string{"id": id}, conn.Branch, err)
	}

	return ok(map[string]string{"id": id}, conn.Branch)
}

// CreateLink creates a typed link (and its inverse, if requested)
// between two blocks (spec §4.5).
func (b *Bank) CreateLink(ctx context.Context, branchReq string, p links.Params) Result {
	branch := b.resolveBranch(branchReq, b.cfg.DefaultBranch)
	if b.cfg.IsProtected(branch) {
		return fail(errs.New(errs.ProtectedBranch, fmt.Sprintf("branch %q is protected from direct writes", branch)), branch)
	}

	conn, err := b.pool.Acquire(ctx, branch, pool.Persistent)
	if err != nil {
		return fail(err, branch)
	}
	defer conn.Release()

	var created []store.Link
	if err := withTx(ctx, conn, func(tx *goqu.Database) error {
		var err error
		created, err = b.links.Create(ctx, tx, p)
		return err
	}); err != nil {
		return fail(err, conn.Branch)
	}

	commitMsg := fmt.Sprintf("link %s -> %s (%s)", p.From, p.To, p.Relation)
	if _, err := writer.Commit(ctx, conn.Conn, commitMsg, p.CreatedBy); err != nil {
		return fail(err, conn.Branch)
	}

	return ok(created, conn.Branch)
}

// DeleteLink removes exactly the (from,to,relation) triple.
func (b *Bank) DeleteLink(ctx context.Context, branchReq, from, to string, relation links.Relation, author string) Result {
	branch := b.resolveBranch(branchReq, b.cfg.DefaultBranch)
	if b.cfg.IsProtected(branch) {
		return fail(errs.New(errs.ProtectedBranch, fmt.Sprintf("branch %q is protected from direct writes", branch)), branch)
	}

	conn, err := b.pool.Acquire(ctx, branch, pool.Persistent)
	if err != nil {
		return fail(err, branch)
	}
	defer conn.Release()

	if err := withTx(ctx, conn, func(tx *goqu.Database) error {
		return b.links.Delete(ctx, tx, from, to, relation)
	}); err != nil {
		return fail(err, conn.Branch)
	}

	commitMsg := fmt.Sprintf("unlink %s -> %s (%s)", from, to, relation)
	if _, err := writer.Commit(ctx, conn.Conn, commitMsg, author); err != nil {
		return fail(err, conn.Branch)
	}

	return ok(map[string]string{"from_id": from, "to_id": to, "relation": string(relation)}, conn.Branch)
}

// GetLinkedBlocks lists the links touching a block per spec §4.5
// neighbors().
func (b *Bank) GetLinkedBlocks(ctx context.Context, branchReq string, p links.NeighborsParams) Result {
	branch := b.resolveBranch(branchReq, b.cfg.DefaultBranch)
	conn, err := b.pool.Acquire(ctx, branch, pool.Ephemeral)
	if err != nil {
		return fail(err, branch)
	}
	defer conn.Release()

	out, err := b.links.Neighbors(ctx, dbFor(conn), p)
	if err != nil {
		return fail(err, conn.Branch)
	}
	return ok(out, conn.Branch)
}

// SemanticSearch runs the C6 query over indexed blocks (spec §4.6).
func (b *Bank) SemanticSearch(ctx context.Context, p index.QueryParams) Result {
	results, err := b.index.Query(ctx, p)
	if err != nil {
		return fail(err, "")
	}
	return ok(results, "")
}

// ListBranches reports every head in the backend (spec §4.3).
func (b *Bank) ListBranches(ctx context.Context, branchReq string) Result {
	branch := b.resolveBranch(branchReq, b.cfg.DefaultBranch)
	conn, err := b.pool.Acquire(ctx, branch, pool.Ephemeral)
	if err != nil {
		return fail(err, branch)
	}
	defer conn.Release()

	out, err := b.reader.ListBranches(ctx, dbFor(conn), conn.Branch)
	if err != nil {
		return fail(err, conn.Branch)
	}
	return ok(out, conn.Branch)
}

// CreateBranch creates a new branch from `from` (spec §4.4).
func (b *Bank) CreateBranch(ctx context.Context, name, from string) Result {
	conn, err := b.pool.Acquire(ctx, b.resolveBranch(from, b.cfg.DefaultBranch), pool.Ephemeral)
	if err != nil {
		return fail(err, "")
	}
	defer conn.Release()

	if err := writer.CreateBranch(ctx, conn.Conn, name, from); err != nil {
		return fail(err, conn.Branch)
	}
	return ok(map[string]string{"name": name}, conn.Branch)
}

// CheckoutBranch rebinds the session's persistent connection to a new
// branch, retrying with backoff per spec §4.1/§4.4.
func (b *Bank) CheckoutBranch(ctx context.Context, currentBranch, newBranch string) Result {
	branch := b.resolveBranch(currentBranch, b.cfg.DefaultBranch)
	conn, err := b.pool.Acquire(ctx, branch, pool.Persistent)
	if err != nil {
		return fail(err, branch)
	}
	defer conn.Release()

	if err := b.pool.Rebind(ctx, conn, newBranch); err != nil {
		return fail(err, branch)
	}
	return ok(map[string]string{"branch": conn.Branch}, conn.Branch)
}

// CommitChanges commits whatever is staged on branch's session without
// tying the proof to a specific block (spec §4.4 commit()).
func (b *Bank) CommitChanges(ctx context.Context, branchReq, message, author string) Result {
	branch := b.resolveBranch(branchReq, b.cfg.DefaultBranch)
	conn, err := b.pool.Acquire(ctx, branch, pool.Persistent)
	if err != nil {
		return fail(err, branch)
	}
	defer conn.Release()

	res, err := writer.Commit(ctx, conn.Conn, message, author)
	if err != nil {
		return fail(err, conn.Branch)
	}
	return ok(res, conn.Branch)
}

// MergeBranches merges source into target using strategy (spec §4.4,
// §9 Open Question (b): a backend-reported conflict surfaces as
// CommitFailed rather than a distinct merge-conflict kind).
func (b *Bank) MergeBranches(ctx context.Context, source, target string, strategy writer.MergeStrategy) Result {
	conn, err := b.pool.Acquire(ctx, target, pool.Ephemeral)
	if err != nil {
		return fail(err, target)
	}
	defer conn.Release()

	res, err := writer.Merge(ctx, conn.Conn, source, target, strategy)
	if err != nil {
		return fail(err, conn.Branch)
	}
	return ok(res, conn.Branch)
}

// ListNamespaces returns every registered namespace.
func (b *Bank) ListNamespaces(ctx context.Context, branchReq string) Result {
	branch := b.resolveBranch(branchReq, b.cfg.DefaultBranch)
	conn, err := b.pool.Acquire(ctx, branch, pool.Ephemeral)
	if err != nil {
		return fail(err, branch)
	}
	defer conn.Release()

	out, err := b.reader.ListNamespaces(ctx, dbFor(conn))
	if err != nil {
		return fail(err, conn.Branch)
	}
	return ok(out, conn.Branch)
}

// CreateNamespace registers a new namespace. Namespaces are not
// themselves branch-scoped data the way blocks are; they exist to
// partition blocks within a branch.
func (b *Bank) CreateNamespace(ctx context.Context, branchReq string, ns store.Namespace) Result {
	branch := b.resolveBranch(branchReq, b.cfg.DefaultBranch)
	conn, err := b.pool.Acquire(ctx, branch, pool.Ephemeral)
	if err != nil {
		return fail(err, branch)
	}
	defer conn.Release()

	db := goqu.New("mysql", conn.Conn)
	if _, err := db.Insert("namespaces").Rows(ns).Executor().ExecContext(ctx); err != nil {
		return fail(errs.Wrap(errs.ConnectionError, fmt.Sprintf("creating namespace %s", ns.Name), err), conn.Branch)
	}
	return ok(ns, conn.Branch)
}

// Health reports pool occupancy and backend reachability for the
// health_check tool.
func (b *Bank) Health(ctx context.Context) Result {
	stats := b.pool.Stats()
	var pingErr error
	if db := b.pool.DB(); db != nil {
		pingErr = db.PingContext(ctx)
	}
	status := map[string]any{
		"pool":              stats,
		"registered_types":  b.registry.AvailableTypes(),
		"backend_reachable": pingErr == nil,
	}
	if pingErr != nil {
		return fail(errs.Wrap(errs.ConnectionError, "pinging backend", pingErr), "")
	}
	return ok(status, "")
}

func (b *Bank) resolveBranch(requested, fallback string) string {
	if requested != "" {
		return requested
	}
	return fallback
}

func (b *Bank) defaultString(v, fallback string) string {
	if v != "" {
		return v
	}
	return fallback
}

// derefConfidence returns the zero Confidence when p is unset, so callers
// building a store.Block never need a nil check of their own.
func derefConfidence(p *store.Confidence) store.Confidence {
	if p == nil {
		return store.Confidence{}
	}
	return *p
}
