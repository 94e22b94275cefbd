// Package schema implements the node schema registry (spec §4.2): a
// per-(type, version) JSON Schema catalog backed by node_schemas, with
// monotonic version bumping and validation against the latest schema
// for a type.
package schema

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	"github.com/doug-martin/goqu/v9"
	_ "github.com/doug-martin/goqu/v9/dialect/mysql"
	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/cognisys/memorybank/internal/errs"
	"github.com/cognisys/memorybank/internal/store"
)

// Registry caches compiled JSON Schemas per (type, version) and
// persists registrations to node_schemas. Safe for concurrent use.
type Registry struct {
	db *goqu.Database

	mu       sync.RWMutex
	latest   map[string]int                       // type -> highest registered version
	compiled map[string]*jsonschema.Schema         // "type@version" -> compiled schema
	raw      map[string]json.RawMessage            // "type@version" -> raw schema document
}

// New builds a Registry over db and loads any schemas already
// registered in node_schemas.
func New(ctx context.Context, db *sql.DB) (*Registry, error) {
	r := &Registry{
		db:       goqu.New("mysql", db),
		latest:   make(map[string]int),
		compiled: make(map[string]*jsonschema.Schema),
		raw:      make(map[string]json.RawMessage),
	}
	if err := r.loadAll(ctx); err != nil {
		return nil, err
	}
	return r, nil
}

func (r *Registry) loadAll(ctx context.Context) error {
	var rows []store.NodeSchemaRow
	if err := r.db.From("node_schemas").ScanStructsContext(ctx, &rows); err != nil {
		return errs.Wrap(errs.ConnectionError, "loading node schemas", err)
	}
	for _, row := range rows {
		if err := r.cache(row.NodeType, row.SchemaVersion, json.RawMessage(row.JSONSchema)); err != nil {
			return errs.Wrap(errs.SchemaConflict,
				fmt.Sprintf("compiling stored schema %s@%d", row.NodeType, row.SchemaVersion), err)
		}
	}
	return nil
}

// Register adds a new schema version for nodeType. The version must be
// exactly latest+1 (1 if this is the first registration) — spec §4.2's
// monotonic version bump rule. Registering the exact (type, version,
// schema) triple a second time is a no-op, not a conflict (spec §4.2
// idempotent insert, property R3).
func (r *Registry) Register(ctx context.Context, nodeType string, version int, rawSchema json.RawMessage) error {
	r.mu.RLock()
	current := r.latest[nodeType]
	existing, registered := r.raw[cacheKey(nodeType, version)]
	r.mu.RUnlock()

	if registered {
		if bytes.Equal(existing, rawSchema) {
			return nil
		}
		return errs.New(errs.SchemaConflict,
			fmt.Sprintf("schema %s@%d is already registered with a different document", nodeType, version)).
			WithDetails(map[string]any{"node_type": nodeType, "version": version})
	}

	want := current + 1
	if version != want {
		return errs.New(errs.SchemaConflict,
			fmt.Sprintf("schema version for %q must be %d, got %d", nodeType, want, version)).
			WithDetails(map[string]any{"node_type": nodeType, "expected_version": want, "given_version": version})
	}

	if err := r.cache(nodeType, version, rawSchema); err != nil {
		return errs.Wrap(errs.SchemaConflict, fmt.Sprintf("compiling schema %s@%d", nodeType, version), err)
	}

	row := store.NodeSchemaRow{NodeType: nodeType, SchemaVersion: version, JSONSchema: string(rawSchema)}
	if _, err := r.db.Insert("node_schemas").Rows(row).Executor().ExecContext(ctx); err != nil {
		return errs.Wrap(errs.ConnectionError, "persisting node schema", err)
	}
	return nil
}

func (r *Registry) cache(nodeType string, version int, rawSchema json.RawMessage) error {
	compiler := jsonschema.NewCompiler()
	url := fmt.Sprintf("mem://%s/%d.json", nodeType, version)
	if err := compiler.AddResource(url, bytesReader(rawSchema)); err != nil {
		return err
	}
	compiled, err := compiler.Compile(url)
	if err != nil {
		return err
	}

	key := cacheKey(nodeType, version)
	r.mu.Lock()
	defer r.mu.Unlock()
	r.compiled[key] = compiled
	r.raw[key] = rawSchema
	if version > r.latest[nodeType] {
		r.latest[nodeType] = version
	}
	return nil
}

// LatestVersion returns the highest registered version for nodeType, or
// 0 if the type is unknown.
func (r *Registry) LatestVersion(nodeType string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.latest[nodeType]
}

// Resolve returns the raw schema document for (nodeType, version).
func (r *Registry) Resolve(nodeType string, version int) (json.RawMessage, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	raw, ok := r.raw[cacheKey(nodeType, version)]
	if !ok {
		return nil, errs.New(errs.UnknownType,
			fmt.Sprintf("no schema registered for %s@%d", nodeType, version))
	}
	return raw, nil
}

// Validate checks doc (typically a block's metadata) against the
// latest-registered schema for nodeType. An unknown type is itself a
// validation failure — every block type must have a schema (spec §4.2).
func (r *Registry) Validate(nodeType string, doc map[string]any) error {
	r.mu.RLock()
	version := r.latest[nodeType]
	if version == 0 {
		r.mu.RUnlock()
		return errs.New(errs.UnknownType, fmt.Sprintf("unknown block type %q", nodeType))
	}
	compiled := r.compiled[cacheKey(nodeType, version)]
	r.mu.RUnlock()

	if err := compiled.Validate(doc); err != nil {
		return errs.Wrap(errs.Validation, fmt.Sprintf("metadata does not conform to %s@%d", nodeType, version), err)
	}
	return nil
}

// AvailableTypes lists every registered node type along with its latest
// version, sorted by type name.
func (r *Registry) AvailableTypes() []TypeVersion {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]TypeVersion, 0, len(r.latest))
	for t, v := range r.latest {
		out = append(out, TypeVersion{Type: t, Version: v})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Type < out[j].Type })
	return out
}

// TypeVersion names a registered block type and its latest schema
// version, surfaced by the memory://block-types resource.
type TypeVersion struct {
	Type    string `json:"type"`
	Version int    `json:"version"`
}

func cacheKey(nodeType string, version int) string {
	return fmt.Sprintf("%s@%d", nodeType, version)
}
