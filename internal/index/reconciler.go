package index

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/doug-martin/goqu/v9"
	_ "github.com/doug-martin/goqu/v9/dialect/mysql"

	"github.com/cognisys/memorybank/internal/errs"
	"github.com/cognisys/memorybank/internal/store"
)

// Reconciler re-drives failed index updates by scanning block_proofs
// for commit hashes whose block is not yet reflected in the index
// (spec §4.6's background reconciler, satisfying P8).
type Reconciler struct {
	index  *Index
	db     *goqu.Database
	logger *slog.Logger
}

// NewReconciler builds the index's background reconciliation job.
func NewReconciler(ix *Index, sqlDB *sql.DB, logger *slog.Logger) *Reconciler {
	return &Reconciler{index: ix, db: goqu.New("mysql", sqlDB), logger: logger}
}

func (r *Reconciler) Name() string { return "index-reconciler" }

// Run scans distinct block ids from block_proofs and reindexes any
// that the bbolt index does not yet contain (spec §4.6, §8 P8). A
// proof for an operation=delete is reconciled by ensuring removal.
func (r *Reconciler) Run(ctx context.Context) error {
	var proofs []store.Proof
	err := r.db.From("block_proofs").
		Order(goqu.I("id").Desc()).
		ScanStructsContext(ctx, &proofs)
	if err != nil {
		return errs.Wrap(errs.ConnectionError, "scanning block_proofs for reconciliation", err)
	}

	seen := make(map[string]bool)
	reindexed := 0
	for _, p := range proofs {
		if seen[p.BlockID] {
			continue
		}
		seen[p.BlockID] = true

		if p.Operation == store.OpDelete {
			if err := r.index.Remove(ctx, p.BlockID); err != nil {
				r.logger.Error("reconciler failed to remove block from index", "block_id", p.BlockID, "error", err)
			}
			continue
		}

		present, err := r.index.Has(p.BlockID)
		if err != nil {
			r.logger.Error("reconciler failed to check index membership", "block_id", p.BlockID, "error", err)
			continue
		}
		if present {
			continue
		}

		var b store.Block
		found, err := r.db.From("memory_blocks").Where(goqu.C("id").Eq(p.BlockID)).ScanStructContext(ctx, &b)
		if err != nil {
			r.logger.Error("reconciler failed to load block", "block_id", p.BlockID, "error", err)
			continue
		}
		if !found {
			continue // block was since hard-deleted; the delete proof, if any, will handle removal
		}

		if err := r.index.Upsert(ctx, UpsertInput{
			ID: b.ID, NamespaceID: b.NamespaceID, Type: b.Type, Tags: b.Tags, Text: b.Text, Metadata: b.Metadata,
		}); err != nil {
			r.logger.Error("reconciler failed to reindex block", "block_id", p.BlockID, "error", err)
			continue
		}
		reindexed++
	}

	if reindexed > 0 {
		r.logger.Info("index reconciliation pass complete", "reindexed", reindexed)
	}
	return nil
}

// Rebuild performs an idempotent full rebuild by scanning the SQL
// store for the given branch/namespace (spec §4.6). Branch selection
// is the caller's responsibility: db must already be a connection
// checked out onto the branch to rebuild.
func Rebuild(ctx context.Context, ix *Index, sqlDB *sql.DB, namespaceID string) (int, error) {
	db := goqu.New("mysql", sqlDB)
	ds := db.From("memory_blocks")
	if namespaceID != "" {
		ds = ds.Where(goqu.C("namespace_id").Eq(namespaceID))
	}

	var blocks []store.Block
	if err := ds.ScanStructsContext(ctx, &blocks); err != nil {
		return 0, errs.Wrap(errs.ConnectionError, "scanning memory_blocks for index rebuild", err)
	}

	for _, b := range blocks {
		if err := ix.Upsert(ctx, UpsertInput{
			ID: b.ID, NamespaceID: b.NamespaceID, Type: b.Type, Tags: b.Tags, Text: b.Text, Metadata: b.Metadata,
		}); err != nil {
			return 0, errs.Wrap(errs.IndexSyncFailed, fmt.Sprintf("rebuilding index entry for block %s", b.ID), err)
		}
	}
	return len(blocks), nil
}
