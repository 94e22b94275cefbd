// Package links implements the Link Manager (spec §4.5): canonical
// relation table with inverses and aliases, bidirectional link
// creation, neighbor queries, and cycle detection over the
// depends_on/blocks subgraph.
package links

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/doug-martin/goqu/v9"
	_ "github.com/doug-martin/goqu/v9/dialect/mysql"
	"github.com/go-sql-driver/mysql"

	"github.com/cognisys/memorybank/internal/errs"
	"github.com/cognisys/memorybank/internal/store"
)

// Relation is a canonical link relation name (spec §3 BlockLink).
type Relation string

// Canonical relations (spec §3, §4.5, §9).
const (
	RelDependsOn  Relation = "depends_on"
	RelBlocks     Relation = "blocks"
	RelChildOf    Relation = "child_of"
	RelParentOf   Relation = "parent_of"
	RelRelatedTo  Relation = "related_to"
	RelReferences Relation = "references"
	RelDuplicates Relation = "duplicates"
)

// inverses maps each canonical relation to its declared inverse, if
// any. related_to is self-inverse. references/duplicates have no
// declared inverse (spec §4.5: NoInverseRelation on bidirectional
// requests against such a relation).
var inverses = map[Relation]Relation{
	RelDependsOn: RelBlocks,
	RelBlocks:    RelDependsOn,
	RelChildOf:   RelParentOf,
	RelParentOf:  RelChildOf,
	RelRelatedTo: RelRelatedTo,
}

// aliases maps human-readable tool-boundary spellings onto canonical
// relations (spec §9: the alias table exists only at the boundary).
var aliases = map[string]Relation{
	"depends-on":   RelDependsOn,
	"dependsOn":    RelDependsOn,
	"blocks":       RelBlocks,
	"child-of":     RelChildOf,
	"childOf":      RelChildOf,
	"parent-of":    RelParentOf,
	"parentOf":     RelParentOf,
	"related-to":   RelRelatedTo,
	"relatedTo":    RelRelatedTo,
	"references":   RelReferences,
	"duplicates":   RelDuplicates,
	"depends_on":   RelDependsOn,
	"parent_of":    RelParentOf,
	"child_of":     RelChildOf,
	"related_to":   RelRelatedTo,
}

// Canonicalize resolves a tool-boundary relation spelling (alias or
// canonical form) to its canonical Relation, rejecting anything outside
// the closed set with Validation (spec §9).
func Canonicalize(raw string) (Relation, error) {
	switch Relation(raw) {
	case RelDependsOn, RelBlocks, RelChildOf, RelParentOf, RelRelatedTo, RelReferences, RelDuplicates:
		return Relation(raw), nil
	}
	if canon, ok := aliases[raw]; ok {
		return canon, nil
	}
	return "", errs.New(errs.Validation, fmt.Sprintf("unknown link relation %q", raw))
}

// Inverse returns the declared inverse of rel, if any.
func Inverse(rel Relation) (Relation, bool) {
	inv, ok := inverses[rel]
	return inv, ok
}

// cyclicRelations is the subgraph invariant I4 guards (spec §3, §4.5).
var cyclicRelations = map[Relation]bool{
	RelDependsOn: true,
	RelBlocks:    true,
}

// Manager wraps C4-level link primitives with the higher-level CRUD and
// cycle checking spec §4.5 describes. It operates against whatever
// *sql.Tx or *sql.Conn the caller hands it, so it composes inside the
// writer's single persistent connection per operation (spec §4.4).
type Manager struct{}

// NewManager builds a stateless Link Manager; canonical relation data
// is fixed at compile time per spec §4.5 ("a fixed table loaded at
// startup").
func NewManager() *Manager { return &Manager{} }

// Params describes a create() request (spec §4.5).
type Params struct {
	From          string
	To            string
	Relation      Relation
	Bidirectional bool
	Priority      int
	Metadata      map[string]any
	CreatedBy     string
}

// Create inserts the requested link, and its inverse if Bidirectional
// is set, atomically within tx. Both endpoints must already exist;
// that's enforced by the FK constraints on block_links.
func (m *Manager) Create(ctx context.Context, tx *goqu.Database, p Params) ([]store.Link, error) {
	now := nowFunc()
	primary := store.Link{
		FromID: p.From, ToID: p.To, Relation: string(p.Relation),
		Priority: p.Priority, LinkMetadata: p.Metadata, CreatedBy: p.CreatedBy, CreatedAt: now,
	}

	if err := m.checkNoCycle(ctx, tx, primary); err != nil {
		return nil, err
	}
	if err := m.insertOne(ctx, tx, primary); err != nil {
		return nil, err
	}
	created := []store.Link{primary}

	if p.Bidirectional {
		inv, ok := Inverse(p.Relation)
		if !ok {
			return nil, errs.New(errs.NoInverseRelation,
				fmt.Sprintf("relation %q has no declared inverse", p.Relation)).
				WithDetails(map[string]any{"relation": string(p.Relation)})
		}
		reverse := store.Link{
			FromID: p.To, ToID: p.From, Relation: string(inv),
			Priority: p.Priority, LinkMetadata: p.Metadata, CreatedBy: p.CreatedBy, CreatedAt: now,
		}
		if err := m.checkNoCycle(ctx, tx, reverse); err != nil {
			return nil, err
		}
		if err := m.insertOne(ctx, tx, reverse); err != nil {
			return nil, err
		}
		created = append(created, reverse)
	}

	return created, nil
}

func (m *Manager) insertOne(ctx context.Context, tx *goqu.Database, l store.Link) error {
	_, err := tx.Insert("block_links").Rows(l).Executor().ExecContext(ctx)
	if err != nil {
		if isDuplicateKey(err) {
			return errs.New(errs.Duplicate,
				fmt.Sprintf("link (%s,%s,%s) already exists", l.FromID, l.ToID, l.Relation)).
				WithDetails(map[string]any{"from_id": l.FromID, "to_id": l.ToID, "relation": l.Relation})
		}
		return errs.Wrap(errs.ConnectionError, "inserting block link", err)
	}
	return nil
}

// checkNoCycle verifies that adding candidate would not create a cycle
// in the depends_on/blocks subgraph (invariant I4). It loads the
// committed subgraph plus whatever is already staged in this
// transaction, then runs a DFS from candidate.To looking for a path
// back to candidate.From — O(V+E) per spec §4.5. A "blocks" edge is
// read in reverse (X blocks Y as Y depends_on X), so the inverse link
// of a bidirectional depends_on does not count as a cycle.
func (m *Manager) checkNoCycle(ctx context.Context, tx *goqu.Database, candidate store.Link) error {
	if !cyclicRelations[Relation(candidate.Relation)] {
		return nil
	}

	adjacency, err := m.loadDependencySubgraph(ctx, tx)
	if err != nil {
		return err
	}
	from, to := candidate.FromID, candidate.ToID
	if Relation(candidate.Relation) == RelBlocks {
		from, to = to, from
	}
	adjacency[from] = append(adjacency[from], to)

	visited := make(map[string]bool)
	var dfs func(node string) bool
	dfs = func(node string) bool {
		if node == from {
			return true
		}
		if visited[node] {
			return false
		}
		visited[node] = true
		for _, next := range adjacency[node] {
			if dfs(next) {
				return true
			}
		}
		return false
	}

	if dfs(to) {
		return errs.New(errs.CycleDetected,
			fmt.Sprintf("link %s->%s (%s) would create a dependency cycle", candidate.FromID, candidate.ToID, candidate.Relation)).
			WithDetails(map[string]any{"from_id": candidate.FromID, "to_id": candidate.ToID})
	}
	return nil
}

func (m *Manager) loadDependencySubgraph(ctx context.Context, tx *goqu.Database) (map[string][]string, error) {
	var rows []store.Link
	err := tx.From("block_links").
		Where(goqu.C("relation").In(string(RelDependsOn), string(RelBlocks))).
		ScanStructsContext(ctx, &rows)
	if err != nil {
		return nil, errs.Wrap(errs.ConnectionError, "loading dependency subgraph", err)
	}
	adjacency := make(map[string][]string, len(rows))
	for _, r := range rows {
		// "X blocks Y" is the same dependency as "Y depends_on X".
		if Relation(r.Relation) == RelBlocks {
			adjacency[r.ToID] = append(adjacency[r.ToID], r.FromID)
		} else {
			adjacency[r.FromID] = append(adjacency[r.FromID], r.ToID)
		}
	}
	return adjacency, nil
}

// DeleteAllFor removes every link touching blockID as either endpoint,
// used by block deletion (spec §4.4 delete_block).
func (m *Manager) DeleteAllFor(ctx context.Context, tx *goqu.Database, blockID string) error {
	_, err := tx.Delete("block_links").
		Where(goqu.Or(goqu.C("from_id").Eq(blockID), goqu.C("to_id").Eq(blockID))).
		Executor().ExecContext(ctx)
	if err != nil {
		return errs.Wrap(errs.ConnectionError, fmt.Sprintf("deleting links for block %s", blockID), err)
	}
	return nil
}

// Delete removes exactly the (from,to,relation) triple.
func (m *Manager) Delete(ctx context.Context, tx *goqu.Database, from, to string, relation Relation) error {
	res, err := tx.Delete("block_links").
		Where(goqu.C("from_id").Eq(from), goqu.C("to_id").Eq(to), goqu.C("relation").Eq(string(relation))).
		Executor().ExecContext(ctx)
	if err != nil {
		return errs.Wrap(errs.ConnectionError, "deleting block link", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return errs.New(errs.NotFound, fmt.Sprintf("link (%s,%s,%s) not found", from, to, relation))
	}
	return nil
}

// Direction selects which endpoint neighbors() matches against.
type Direction string

const (
	Outbound Direction = "outbound"
	Inbound  Direction = "inbound"
	Both     Direction = "both"
)

// NeighborsParams filters a neighbors() query (spec §4.5).
type NeighborsParams struct {
	BlockID   string
	Relations []Relation
	Direction Direction
}

// Neighbors lists the links touching BlockID per the given direction
// and optional relation filter.
func (m *Manager) Neighbors(ctx context.Context, db *goqu.Database, p NeighborsParams) ([]store.Link, error) {
	var out []store.Link

	scan := func(col string) error {
		ds := db.From("block_links").Where(goqu.C(col).Eq(p.BlockID))
		if len(p.Relations) > 0 {
			rels := make([]any, len(p.Relations))
			for i, r := range p.Relations {
				rels[i] = string(r)
			}
			ds = ds.Where(goqu.C("relation").In(rels...))
		}
		var rows []store.Link
		if err := ds.ScanStructsContext(ctx, &rows); err != nil {
			return errs.Wrap(errs.ConnectionError, "querying neighbors", err)
		}
		out = append(out, rows...)
		return nil
	}

	if p.Direction == Outbound || p.Direction == Both || p.Direction == "" {
		if err := scan("from_id"); err != nil {
			return nil, err
		}
	}
	if p.Direction == Inbound || p.Direction == Both {
		if err := scan("to_id"); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func isDuplicateKey(err error) bool {
	if err == nil {
		return false
	}
	var mysqlErr *mysql.MySQLError
	if errors.As(err, &mysqlErr) {
		return mysqlErr.Number == 1062
	}
	return false
}

func nowFunc() time.Time { return time.Now().UTC() }
