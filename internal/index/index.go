// Package index implements the semantic index (spec §4.6): a
// vector+graph index over block text, kept best-effort synchronous
// with the SQL store and rebuildable from it.
package index

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strings"
	"sync"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/cognisys/memorybank/internal/errs"
)

var vectorsBucket = []byte("vectors")

// Entry is the persisted unit the index keeps per block (spec §4.6
// upsert): an embedding plus the filterable attributes a query can
// match on.
type Entry struct {
	ID          string    `json:"id"`
	NamespaceID string    `json:"namespace_id"`
	Type        string    `json:"type"`
	Tags        []string  `json:"tags"`
	Snippet     string    `json:"snippet"`
	Embedding   []float32 `json:"embedding"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Index wraps a bbolt database holding one Entry per indexed block.
// upsert on the same block_id is serialized by perBlockLocks (spec §5:
// "concurrent upserts on the same block_id are serialized on that id").
type Index struct {
	db             *bolt.DB
	embeddingModel string

	mu            sync.Mutex
	perBlockLocks map[string]*sync.Mutex
}

// Open creates or opens the bbolt file at path.
func Open(path, embeddingModel string) (*Index, error) {
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: 2 * time.Second})
	if err != nil {
		return nil, errs.Wrap(errs.ConnectionError, fmt.Sprintf("opening semantic index at %s", path), err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(vectorsBucket)
		return err
	})
	if err != nil {
		return nil, errs.Wrap(errs.ConnectionError, "initializing semantic index bucket", err)
	}
	return &Index{db: db, embeddingModel: embeddingModel, perBlockLocks: make(map[string]*sync.Mutex)}, nil
}

// Close releases the bbolt file handle.
func (ix *Index) Close() error { return ix.db.Close() }

func (ix *Index) lockFor(id string) *sync.Mutex {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	l, ok := ix.perBlockLocks[id]
	if !ok {
		l = &sync.Mutex{}
		ix.perBlockLocks[id] = l
	}
	return l
}

// UpsertInput is what the caller (C7) supplies to index a block.
type UpsertInput struct {
	ID          string
	NamespaceID string
	Type        string
	Tags        []string
	Text        string
	Metadata    map[string]any
	Embedding   []float32 // optional precomputed embedding
}

// Upsert computes (or accepts a precomputed) embedding and stores the
// entry under block.id, with namespace_id/type/tags as filterable
// attributes (spec §4.6).
func (ix *Index) Upsert(ctx context.Context, in UpsertInput) error {
	lock := ix.lockFor(in.ID)
	lock.Lock()
	defer lock.Unlock()

	embedding := in.Embedding
	if embedding == nil {
		embedding = embed(in.Text, in.Metadata)
	}

	entry := Entry{
		ID:          in.ID,
		NamespaceID: in.NamespaceID,
		Type:        in.Type,
		Tags:        in.Tags,
		Snippet:     snippet(in.Text),
		Embedding:   embedding,
		UpdatedAt:   time.Now().UTC(),
	}

	data, err := json.Marshal(entry)
	if err != nil {
		return errs.Wrap(errs.IndexSyncFailed, fmt.Sprintf("encoding index entry for block %s", in.ID), err)
	}

	err = ix.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(vectorsBucket).Put([]byte(in.ID), data)
	})
	if err != nil {
		return errs.Wrap(errs.IndexSyncFailed, fmt.Sprintf("writing index entry for block %s", in.ID), err)
	}
	return nil
}

// Remove drops id from the index.
func (ix *Index) Remove(ctx context.Context, id string) error {
	lock := ix.lockFor(id)
	lock.Lock()
	defer lock.Unlock()

	err := ix.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(vectorsBucket).Delete([]byte(id))
	})
	if err != nil {
		return errs.Wrap(errs.IndexSyncFailed, fmt.Sprintf("removing index entry for block %s", id), err)
	}
	return nil
}

// Filters narrows a Query to entries matching all given attributes.
type Filters struct {
	NamespaceID string
	Type        string
	Tags        []string
}

// Match reports whether e satisfies f.
func (f Filters) Match(e Entry) bool {
	if f.NamespaceID != "" && e.NamespaceID != f.NamespaceID {
		return false
	}
	if f.Type != "" && e.Type != f.Type {
		return false
	}
	for _, want := range f.Tags {
		if !containsStr(e.Tags, want) {
			return false
		}
	}
	return true
}

// Result is one hit from Query.
type Result struct {
	ID      string  `json:"id"`
	Score   float64 `json:"score"`
	Snippet string  `json:"snippet"`
}

// QueryParams describes a semantic search (spec §4.6).
type QueryParams struct {
	Text      string
	Embedding []float32
	Filters   Filters
	K         int
}

// Query runs a cosine-similarity search over the indexed entries,
// returning the top K matches after filtering (spec §4.6).
func (ix *Index) Query(ctx context.Context, p QueryParams) ([]Result, error) {
	query := p.Embedding
	if query == nil {
		query = embed(p.Text, nil)
	}

	var results []Result
	err := ix.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(vectorsBucket)
		return b.ForEach(func(k, v []byte) error {
			var e Entry
			if err := json.Unmarshal(v, &e); err != nil {
				return nil // skip corrupt entries rather than failing the whole query
			}
			if !p.Filters.Match(e) {
				return nil
			}
			results = append(results, Result{
				ID:      e.ID,
				Score:   cosineSimilarity(query, e.Embedding),
				Snippet: e.Snippet,
			})
			return nil
		})
	})
	if err != nil {
		return nil, errs.Wrap(errs.ConnectionError, "querying semantic index", err)
	}

	sort.Slice(results, func(i, j int) bool { return results[i].Score > results[j].Score })
	k := p.K
	if k <= 0 || k > len(results) {
		k = len(results)
	}
	return results[:k], nil
}

// Has reports whether id is currently present in the index — used by
// the reconciler to decide whether a proof's block still needs
// reindexing.
func (ix *Index) Has(id string) (bool, error) {
	found := false
	err := ix.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(vectorsBucket).Get([]byte(id))
		found = v != nil
		return nil
	})
	if err != nil {
		return false, errs.Wrap(errs.ConnectionError, "checking index membership", err)
	}
	return found, nil
}

func containsStr(ss []string, s string) bool {
	for _, v := range ss {
		if v == s {
			return true
		}
	}
	return false
}

func snippet(text string) string {
	text = strings.TrimSpace(text)
	const maxLen = 240
	if len(text) <= maxLen {
		return text
	}
	return text[:maxLen] + "…"
}

// embed is a deterministic bag-of-words hashing embedding used in the
// absence of a precomputed vector. It is not a production embedding
// model; callers that need real semantics supply Embedding explicitly.
func embed(text string, metadata map[string]any) []float32 {
	const dims = 64
	vec := make([]float32, dims)

	add := func(token string) {
		h := fnv32(token)
		vec[h%dims] += 1
	}
	for _, tok := range strings.Fields(strings.ToLower(text)) {
		add(tok)
	}
	for k, v := range metadata {
		add(k)
		add(fmt.Sprintf("%v", v))
	}

	normalize(vec)
	return vec
}

func fnv32(s string) uint32 {
	var h uint32 = 2166136261
	for i := 0; i < len(s); i++ {
		h ^= uint32(s[i])
		h *= 16777619
	}
	return h
}

func normalize(v []float32) {
	var sumSq float64
	for _, x := range v {
		sumSq += float64(x) * float64(x)
	}
	if sumSq == 0 {
		return
	}
	norm := math.Sqrt(sumSq)
	for i := range v {
		v[i] = float32(float64(v[i]) / norm)
	}
}

func cosineSimilarity(a, b []float32) float64 {
	if len(a) == 0 || len(b) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
