// Package writer implements the Writer (spec §4.4): primitive
// mutations over a single persistent connection, plus branch
// operations. Protected-branch checks are made by the bank facade
// before it calls into this package.
package writer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/doug-martin/goqu/v9"
	_ "github.com/doug-martin/goqu/v9/dialect/mysql"
	"github.com/doug-martin/goqu/v9/exp"
	"github.com/go-sql-driver/mysql"
	"github.com/oklog/ulid/v2"

	"github.com/cognisys/memorybank/internal/errs"
	"github.com/cognisys/memorybank/internal/links"
	"github.com/cognisys/memorybank/internal/store"
)

// Writer serializes mutations through the persistent connection handed
// to it by C7 for the duration of one logical operation (spec §4.4).
type Writer struct {
	links *links.Manager
}

// New builds a Writer that delegates link CRUD to the given Manager.
func New(linkManager *links.Manager) *Writer {
	return &Writer{links: linkManager}
}

// NewID mints a new opaque, sortable block id (spec §3 Block.id).
func NewID() string {
	return ulid.Make().String()
}

// InsertBlock inserts block, rejecting if its id already exists on
// this branch (spec §4.4). Schema validation is the caller's
// responsibility (C7 consults C2 before calling this); a missing
// namespace is reported as NamespaceMissing from the foreign-key error.
func (w *Writer) InsertBlock(ctx context.Context, tx *goqu.Database, b store.Block) error {
	_, err := tx.Insert("memory_blocks").Rows(b).Executor().ExecContext(ctx)
	if err != nil {
		if isDuplicateKey(err) {
			return errs.New(errs.Duplicate, fmt.Sprintf("block %s already exists", b.ID)).
				WithDetails(map[string]any{"id": b.ID})
		}
		if isMissingNamespace(err) {
			return errs.New(errs.NamespaceMissing, fmt.Sprintf("namespace %s does not exist", b.NamespaceID)).
				WithDetails(map[string]any{"namespace_id": b.NamespaceID})
		}
		return errs.Wrap(errs.ConnectionError, fmt.Sprintf("inserting block %s", b.ID), err)
	}
	return nil
}

// Patch describes a partial update to a block (spec §4.4 update_block).
type Patch struct {
	Text         *string
	State        *string
	Visibility   *string
	Tags         []string
	Metadata     map[string]any
	SourceFile   *string
	SourceURI    *string
	Confidence   *store.Confidence
	ExpectedVersion int // block_version the caller last observed; 0 means "don't check"
}

// UpdateBlock loads the current row, applies patch, bumps
// block_version, and writes it back, rejecting with OptimisticConflict
// if the loaded row's version does not match ExpectedVersion (spec
// §4.4, invariant I6).
func (w *Writer) UpdateBlock(ctx context.Context, tx *goqu.Database, id string, patch Patch) (*store.Block, error) {
	var current store.Block
	found, err := tx.From("memory_blocks").Where(goqu.C("id").Eq(id)).ForUpdate(exp.Wait).ScanStructContext(ctx, &current)
	if err != nil {
		return nil, errs.Wrap(errs.ConnectionError, fmt.Sprintf("loading block %s for update", id), err)
	}
	if !found {
		return nil, errs.New(errs.NotFound, fmt.Sprintf("block %s not found", id))
	}
	if patch.ExpectedVersion != 0 && current.BlockVersion != patch.ExpectedVersion {
		return nil, errs.New(errs.OptimisticConflict,
			fmt.Sprintf("block %s has version %d, expected %d", id, current.BlockVersion, patch.ExpectedVersion)).
			WithDetails(map[string]any{"observed_version": current.BlockVersion, "expected_version": patch.ExpectedVersion})
	}

	applyPatch(&current, patch)
	current.BlockVersion++
	current.UpdatedAt = time.Now().UTC()

	_, err = tx.Update("memory_blocks").
		Set(current).
		Where(goqu.C("id").Eq(id), goqu.C("block_version").Eq(patch.ExpectedVersionOrCurrent(current.BlockVersion-1))).
		Executor().ExecContext(ctx)
	if err != nil {
		return nil, errs.Wrap(errs.ConnectionError, fmt.Sprintf("writing updated block %s", id), err)
	}
	return &current, nil
}

// ExpectedVersionOrCurrent returns p.ExpectedVersion if the caller gave
// one, else falls back to whatever version the row was loaded at — the
// update's WHERE clause always checks against the version it actually
// read, closing the race between load and write.
func (p Patch) ExpectedVersionOrCurrent(loaded int) int {
	if p.ExpectedVersion != 0 {
		return p.ExpectedVersion
	}
	return loaded
}

func applyPatch(b *store.Block, p Patch) {
	if p.Text != nil {
		b.Text = *p.Text
	}
	if p.State != nil {
		b.State = *p.State
	}
	if p.Visibility != nil {
		b.Visibility = *p.Visibility
	}
	if p.Tags != nil {
		b.Tags = p.Tags
	}
	if p.Metadata != nil {
		b.Metadata = p.Metadata
	}
	if p.SourceFile != nil {
		b.SourceFile = p.SourceFile
	}
	if p.SourceURI != nil {
		b.SourceURI = p.SourceURI
	}
	if p.Confidence != nil {
		b.Confidence = *p.Confidence
	}
}

// DeleteBlock hard-deletes block, its properties, and links where it
// is an endpoint (spec §4.4, §9 Open Question (a): a final proof row
// remains, recorded by the caller after this succeeds).
func (w *Writer) DeleteBlock(ctx context.Context, tx *goqu.Database, id string) error {
	if err := w.links.DeleteAllFor(ctx, tx, id); err != nil {
		return err
	}
	if _, err := tx.Delete("block_properties").Where(goqu.C("block_id").Eq(id)).Executor().ExecContext(ctx); err != nil {
		return errs.Wrap(errs.ConnectionError, fmt.Sprintf("deleting properties for block %s", id), err)
	}
	res, err := tx.Delete("memory_blocks").Where(goqu.C("id").Eq(id)).Executor().ExecContext(ctx)
	if err != nil {
		return errs.Wrap(errs.ConnectionError, fmt.Sprintf("deleting block %s", id), err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return errs.New(errs.NotFound, fmt.Sprintf("block %s not found", id))
	}
	return nil
}

// UpsertProperty enforces "exactly one non-null value column" (spec
// §4.4, invariant I7) before writing the row.
func (w *Writer) UpsertProperty(ctx context.Context, tx *goqu.Database, p store.Property) error {
	set := 0
	if p.ValueText != nil {
		set++
	}
	if p.ValueNumber != nil {
		set++
	}
	if p.ValueJSON != nil {
		set++
	}
	if set != 1 {
		return errs.New(errs.Validation,
			fmt.Sprintf("property %s.%s must set exactly one value column, got %d", p.BlockID, p.Name, set))
	}

	p.UpdatedAt = time.Now().UTC()
	_, err := tx.Insert("block_properties").
		Rows(p).
		OnConflict(goqu.DoUpdate("block_id,property_name", goqu.Record{
			"value_text": p.ValueText, "value_number": p.ValueNumber, "value_json": p.ValueJSON,
			"property_type": p.PropertyType, "is_computed": p.IsComputed, "updated_at": p.UpdatedAt,
		})).
		Executor().ExecContext(ctx)
	if err != nil {
		return errs.Wrap(errs.ConnectionError, fmt.Sprintf("upserting property %s.%s", p.BlockID, p.Name), err)
	}
	return nil
}

// InsertLink delegates to the Link Manager for I3/I4 enforcement.
func (w *Writer) InsertLink(ctx context.Context, tx *goqu.Database, p links.Params) ([]store.Link, error) {
	return w.links.Create(ctx, tx, p)
}

// DeleteLink delegates to the Link Manager.
func (w *Writer) DeleteLink(ctx context.Context, tx *goqu.Database, from, to string, relation links.Relation) error {
	return w.links.Delete(ctx, tx, from, to, relation)
}

func isDuplicateKey(err error) bool {
	var mysqlErr *mysql.MySQLError
	return errors.As(err, &mysqlErr) && mysqlErr.Number == 1062
}

func isMissingNamespace(err error) bool {
	var mysqlErr *mysql.MySQLError
	return errors.As(err, &mysqlErr) && mysqlErr.Number == 1452 // foreign key constraint fails
}
