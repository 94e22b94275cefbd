// Package store defines the row types that mirror the versioned-SQL wire
// schema in spec.md §6. Every db-tagged field here has a corresponding
// column in schema.sql; the package holds no behavior beyond small accessors — C2
// through C6 own the operations that read and write these rows.
package store

import "time"

// Block states (spec §3).
const (
	StateDraft     = "draft"
	StatePublished = "published"
	StateArchived  = "archived"
)

// Block visibilities (spec §3).
const (
	VisibilityInternal   = "internal"
	VisibilityPublic     = "public"
	VisibilityRestricted = "restricted"
)

// DefaultNamespaceID is the well-known namespace id new blocks resolve
// to when no namespace is given (spec §3, Design Note 9c).
const DefaultNamespaceID = "public"

// Confidence is the structured {human, ai} confidence pair (spec §3).
type Confidence struct {
	Human *float64 `json:"human,omitempty"`
	AI    *float64 `json:"ai,omitempty"`
}

// Block is a memory block row (spec §3 MemoryBlock, §6 memory_blocks).
type Block struct {
	ID            string         `db:"id" json:"id"`
	NamespaceID   string         `db:"namespace_id" json:"namespace_id"`
	Type          string         `db:"type" json:"type"`
	SchemaVersion int            `db:"schema_version" json:"schema_version"`
	Text          string         `db:"text" json:"text"`
	State         string         `db:"state" json:"state"`
	Visibility    string         `db:"visibility" json:"visibility"`
	BlockVersion  int            `db:"block_version" json:"block_version"`
	ParentID      *string        `db:"parent_id" json:"parent_id,omitempty"`
	HasChildren   bool           `db:"has_children" json:"has_children"`
	Tags          StringList     `db:"tags" json:"tags,omitempty"`
	Metadata      JSONMap        `db:"metadata" json:"metadata,omitempty"`
	SourceFile    *string        `db:"source_file" json:"source_file,omitempty"`
	SourceURI     *string        `db:"source_uri" json:"source_uri,omitempty"`
	Confidence    Confidence     `db:"confidence" json:"confidence,omitempty"`
	CreatedBy     string         `db:"created_by" json:"created_by,omitempty"`
	CreatedAt     time.Time      `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time      `db:"updated_at" json:"updated_at"`
	Embedding     []float32      `db:"-" json:"-"` // maintained by the semantic index, not a SQL column value the reader round-trips
}

// Link is a directed typed edge between two blocks (spec §3 BlockLink,
// §6 block_links). The primary key is (FromID, ToID, Relation).
type Link struct {
	FromID       string         `db:"from_id" json:"from_id"`
	ToID         string         `db:"to_id" json:"to_id"`
	Relation     string         `db:"relation" json:"relation"`
	Priority     int            `db:"priority" json:"priority"`
	LinkMetadata JSONMap        `db:"link_metadata" json:"link_metadata,omitempty"`
	CreatedBy    string         `db:"created_by" json:"created_by,omitempty"`
	CreatedAt    time.Time      `db:"created_at" json:"created_at"`
}

// Property types (spec §3 BlockProperty).
const (
	PropertyText   = "text"
	PropertyNumber = "number"
	PropertyJSON   = "json"
)

// Property is a decomposed metadata row for indexed access (spec §3
// BlockProperty, §6 block_properties). Exactly one of ValueText,
// ValueNumber, ValueJSON is non-nil (invariant I7).
type Property struct {
	BlockID      string    `db:"block_id" json:"block_id"`
	Name         string    `db:"property_name" json:"property_name"`
	ValueText    *string   `db:"value_text" json:"value_text,omitempty"`
	ValueNumber  *float64  `db:"value_number" json:"value_number,omitempty"`
	ValueJSON    *string   `db:"value_json" json:"value_json,omitempty"`
	PropertyType string    `db:"property_type" json:"property_type"`
	IsComputed   bool      `db:"is_computed" json:"is_computed"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time `db:"updated_at" json:"updated_at"`
}

// Proof operations (spec §3 BlockProof).
const (
	OpCreate = "create"
	OpUpdate = "update"
	OpDelete = "delete"
)

// Proof is an append-only audit row tying a mutation to a backend
// commit hash (spec §3 BlockProof, §6 block_proofs, invariant I5).
type Proof struct {
	ID         int64     `db:"id" json:"id"`
	BlockID    string    `db:"block_id" json:"block_id"`
	CommitHash string    `db:"commit_hash" json:"commit_hash"`
	Operation  string    `db:"operation" json:"operation"`
	Timestamp  time.Time `db:"timestamp" json:"timestamp"`
}

// NodeSchemaRow is a registered JSON schema for a (type, version) pair
// (spec §3 NodeSchema, §6 node_schemas). Immutable once registered.
type NodeSchemaRow struct {
	NodeType      string    `db:"node_type" json:"node_type"`
	SchemaVersion int       `db:"schema_version" json:"schema_version"`
	JSONSchema    string    `db:"json_schema" json:"json_schema"`
	CreatedAt     time.Time `db:"created_at" json:"created_at"`
}

// Namespace is a scoping container for blocks (spec §3 Namespace, §6
// namespaces).
type Namespace struct {
	ID          string    `db:"id" json:"id"`
	Name        string    `db:"name" json:"name"`
	Slug        string    `db:"slug" json:"slug"`
	OwnerID     string    `db:"owner_id" json:"owner_id,omitempty"`
	Description *string   `db:"description" json:"description,omitempty"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
}

// Branch describes one head in the versioned backend (spec §4.3
// list_branches).
type Branch struct {
	Name       string `json:"name"`
	HeadCommit string `json:"head_commit"`
	Dirty      bool   `json:"dirty"`
	Active     bool   `json:"active"`
}
