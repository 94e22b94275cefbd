// Package reader implements the Reader (spec §4.3): read-only queries
// against the versioned backend, always reporting the branch actually
// observed by the handle.
package reader

import (
	"context"
	"encoding/base64"
	"fmt"
	"strconv"
	"strings"

	"github.com/doug-martin/goqu/v9"
	_ "github.com/doug-martin/goqu/v9/dialect/mysql"

	"github.com/cognisys/memorybank/internal/errs"
	"github.com/cognisys/memorybank/internal/store"
)

// Reader runs read-only queries over a *goqu.Database bound to a
// single connection (ephemeral or persistent) already checked out onto
// a branch by C1. Reader itself holds no connection state.
type Reader struct{}

// New builds a stateless Reader.
func New() *Reader { return &Reader{} }

// GetBlock loads a block by id, or errs.NotFound.
func (r *Reader) GetBlock(ctx context.Context, db *goqu.Database, id string) (*store.Block, error) {
	var b store.Block
	found, err := db.From("memory_blocks").Where(goqu.C("id").Eq(id)).ScanStructContext(ctx, &b)
	if err != nil {
		return nil, errs.Wrap(errs.ConnectionError, fmt.Sprintf("loading block %s", id), err)
	}
	if !found {
		return nil, errs.New(errs.NotFound, fmt.Sprintf("block %s not found", id))
	}
	return &b, nil
}

// ListBlocksParams filters list_blocks (spec §4.3).
type ListBlocksParams struct {
	Type         string
	State        string
	Visibility   string
	NamespaceID  string
	Tag          string
	ParentID     string
	CreatedAfter string
	Limit        int
	Cursor       string
}

// Page is a cursor-paginated result set (spec §4.3, §8 B3).
type Page struct {
	Blocks     []store.Block
	NextCursor *string
	PageSize   int
	Partial    bool
}

// ListBlocks returns blocks matching the filter, cursor-paginated by
// created_at then id for a stable total order.
func (r *Reader) ListBlocks(ctx context.Context, db *goqu.Database, p ListBlocksParams) (*Page, error) {
	limit := p.Limit
	if limit <= 0 {
		limit = 50
	}

	ds := db.From("memory_blocks")
	if p.Type != "" {
		ds = ds.Where(goqu.C("type").Eq(p.Type))
	}
	if p.State != "" {
		ds = ds.Where(goqu.C("state").Eq(p.State))
	}
	if p.Visibility != "" {
		ds = ds.Where(goqu.C("visibility").Eq(p.Visibility))
	}
	if p.NamespaceID != "" {
		ds = ds.Where(goqu.C("namespace_id").Eq(p.NamespaceID))
	}
	if p.ParentID != "" {
		ds = ds.Where(goqu.C("parent_id").Eq(p.ParentID))
	}
	if p.CreatedAfter != "" {
		ds = ds.Where(goqu.C("created_at").Gt(p.CreatedAfter))
	}

	offset := 0
	if p.Cursor != "" {
		var err error
		offset, err = decodeCursor(p.Cursor)
		if err != nil {
			return nil, err
		}
	}

	ds = ds.Order(goqu.I("created_at").Asc(), goqu.I("id").Asc()).Limit(uint(limit + 1)).Offset(uint(offset))

	var rows []store.Block
	if err := ds.ScanStructsContext(ctx, &rows); err != nil {
		return nil, errs.Wrap(errs.ConnectionError, "listing blocks", err)
	}

	if p.Tag != "" {
		rows = filterByTag(rows, p.Tag)
	}

	partial := len(rows) > limit
	if partial {
		rows = rows[:limit]
	}

	page := &Page{Blocks: rows, PageSize: len(rows), Partial: partial}
	if partial {
		next := encodeCursor(offset + limit)
		page.NextCursor = &next
	}
	return page, nil
}

func filterByTag(rows []store.Block, tag string) []store.Block {
	out := rows[:0]
	for _, b := range rows {
		for _, t := range b.Tags {
			if t == tag {
				out = append(out, b)
				break
			}
		}
	}
	return out
}

// ListLinksParams filters list_links (spec §4.3).
type ListLinksParams struct {
	FromID   string
	ToID     string
	Relation string
	Limit    int
	Cursor   string
}

// LinkPage is the cursor-paginated result for list_links.
type LinkPage struct {
	Links      []store.Link
	NextCursor *string
	PageSize   int
}

// ListLinks returns links matching the filter, cursor-paginated.
func (r *Reader) ListLinks(ctx context.Context, db *goqu.Database, p ListLinksParams) (*LinkPage, error) {
	limit := p.Limit
	if limit <= 0 {
		limit = 50
	}

	ds := db.From("block_links")
	if p.FromID != "" {
		ds = ds.Where(goqu.C("from_id").Eq(p.FromID))
	}
	if p.ToID != "" {
		ds = ds.Where(goqu.C("to_id").Eq(p.ToID))
	}
	if p.Relation != "" {
		ds = ds.Where(goqu.C("relation").Eq(p.Relation))
	}

	offset := 0
	if p.Cursor != "" {
		var err error
		offset, err = decodeCursor(p.Cursor)
		if err != nil {
			return nil, err
		}
	}

	ds = ds.Order(goqu.I("created_at").Asc()).Limit(uint(limit + 1)).Offset(uint(offset))

	var rows []store.Link
	if err := ds.ScanStructsContext(ctx, &rows); err != nil {
		return nil, errs.Wrap(errs.ConnectionError, "listing links", err)
	}

	partial := len(rows) > limit
	if partial {
		rows = rows[:limit]
	}

	page := &LinkPage{Links: rows, PageSize: len(rows)}
	if partial {
		next := encodeCursor(offset + limit)
		page.NextCursor = &next
	}
	return page, nil
}

// ListNamespaces returns every registered namespace.
func (r *Reader) ListNamespaces(ctx context.Context, db *goqu.Database) ([]store.Namespace, error) {
	var rows []store.Namespace
	if err := db.From("namespaces").Order(goqu.I("name").Asc()).ScanStructsContext(ctx, &rows); err != nil {
		return nil, errs.Wrap(errs.ConnectionError, "listing namespaces", err)
	}
	return rows, nil
}

// ListBranches delegates to the backend's branch inventory procedure.
// Dolt exposes this as the dolt_branches system table.
func (r *Reader) ListBranches(ctx context.Context, db *goqu.Database, activeBranch string) ([]store.Branch, error) {
	rows, err := db.QueryContext(ctx, "SELECT name, hash, dirty FROM dolt_branches")
	if err != nil {
		return nil, errs.Wrap(errs.ConnectionError, "listing branches", err)
	}
	defer rows.Close()

	var out []store.Branch
	for rows.Next() {
		var b store.Branch
		var dirty bool
		if err := rows.Scan(&b.Name, &b.HeadCommit, &dirty); err != nil {
			return nil, errs.Wrap(errs.ConnectionError, "scanning branch row", err)
		}
		b.Dirty = dirty
		b.Active = b.Name == activeBranch
		out = append(out, b)
	}
	if err := rows.Err(); err != nil {
		return nil, errs.Wrap(errs.ConnectionError, "iterating branch rows", err)
	}
	return out, nil
}

// encodeCursor/decodeCursor implement the opaque offset-derived cursor
// contract of spec §4.3: a string that round-trips through callers
// without exposing the underlying offset.
func encodeCursor(offset int) string {
	return base64.RawURLEncoding.EncodeToString([]byte(strconv.Itoa(offset)))
}

func decodeCursor(cursor string) (int, error) {
	raw, err := base64.RawURLEncoding.DecodeString(cursor)
	if err != nil {
		return 0, errs.New(errs.InvalidCursor, "cursor is not valid base64")
	}
	offset, err := strconv.Atoi(strings.TrimSpace(string(raw)))
	if err != nil || offset < 0 {
		return 0, errs.New(errs.InvalidCursor, "cursor does not decode to a valid offset")
	}
	return offset, nil
}
