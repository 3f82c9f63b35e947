// Package vector stores memory embeddings in per-namespace chromem collections.
package vector

import (
	"context"
	"errors"
	"fmt"
	"runtime"

	"github.com/philippgille/chromem-go"

	"tutorgate/internal/config"
)

// Entry is one vector to upsert.
type Entry struct {
	ID        string
	Embedding []float32
	Content   string
	Metadata  map[string]string
}

// Match is a query hit. Score is cosine similarity in [-1, 1].
type Match struct {
	ID       string
	Score    float32
	Content  string
	Metadata map[string]string
}

var errEmbeddingRequired = errors.New("vector: embeddings must be supplied by the caller")

// Index addresses entries only through a namespace, one collection each.
type Index struct {
	db *chromem.DB
}

// NewIndex opens a persistent index when cfg.PersistPath is set, otherwise an in-memory one.
func NewIndex(cfg config.VectorConfig) (*Index, error) {
	if cfg.PersistPath == "" {
		return NewMemoryIndex(), nil
	}
	db, err := chromem.NewPersistentDB(cfg.PersistPath, cfg.Compress)
	if err != nil {
		return nil, fmt.Errorf("open vector db: %w", err)
	}
	return &Index{db: db}, nil
}

// NewMemoryIndex returns a process-local index.
func NewMemoryIndex() *Index {
	return &Index{db: chromem.NewDB()}
}

var errNamespaceRequired = errors.New("vector: namespace required")

func (i *Index) collection(namespace string) (*chromem.Collection, error) {
	if namespace == "" {
		return nil, errNamespaceRequired
	}
	col, err := i.db.GetOrCreateCollection(namespace, nil, rejectEmbedding)
	if err != nil {
		return nil, fmt.Errorf("open collection %s: %w", namespace, err)
	}
	return col, nil
}

// existing returns the namespace's collection, or nil when it was never
// written. Reads and deletes use it so they never create namespaces.
func (i *Index) existing(namespace string) (*chromem.Collection, error) {
	if namespace == "" {
		return nil, errNamespaceRequired
	}
	return i.db.GetCollection(namespace, rejectEmbedding), nil
}

// Upsert inserts or replaces entries in namespace.
func (i *Index) Upsert(ctx context.Context, namespace string, entries []Entry) error {
	if len(entries) == 0 {
		return nil
	}
	col, err := i.collection(namespace)
	if err != nil {
		return err
	}
	docs := make([]chromem.Document, 0, len(entries))
	for _, e := range entries {
		if len(e.Embedding) == 0 {
			return errEmbeddingRequired
		}
		docs = append(docs, chromem.Document{
			ID:        e.ID,
			Metadata:  e.Metadata,
			Embedding: e.Embedding,
			Content:   e.Content,
		})
	}
	if err := col.AddDocuments(ctx, docs, runtime.NumCPU()); err != nil {
		return fmt.Errorf("upsert vectors: %w", err)
	}
	return nil
}

// Query returns up to topK matches, best first. An empty namespace yields no matches.
func (i *Index) Query(ctx context.Context, namespace string, embedding []float32, topK int) ([]Match, error) {
	if topK <= 0 {
		return nil, nil
	}
	col, err := i.existing(namespace)
	if err != nil || col == nil {
		return nil, err
	}
	// chromem rejects nResults above the collection size
	if n := col.Count(); n < topK {
		topK = n
	}
	if topK == 0 {
		return nil, nil
	}
	results, err := col.QueryEmbedding(ctx, embedding, topK, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("query vectors: %w", err)
	}
	matches := make([]Match, 0, len(results))
	for _, r := range results {
		matches = append(matches, Match{
			ID:       r.ID,
			Score:    r.Similarity,
			Content:  r.Content,
			Metadata: r.Metadata,
		})
	}
	return matches, nil
}

// Delete removes ids from namespace. Unknown ids are ignored.
func (i *Index) Delete(ctx context.Context, namespace string, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	col, err := i.existing(namespace)
	if err != nil || col == nil {
		return err
	}
	if err := col.Delete(ctx, nil, nil, ids...); err != nil {
		return fmt.Errorf("delete vectors: %w", err)
	}
	return nil
}

// DropNamespace removes every entry in namespace.
func (i *Index) DropNamespace(_ context.Context, namespace string) error {
	if err := i.db.DeleteCollection(namespace); err != nil {
		return fmt.Errorf("drop namespace %s: %w", namespace, err)
	}
	return nil
}

// Count reports the number of entries in namespace.
func (i *Index) Count(namespace string) int {
	col, _ := i.existing(namespace)
	if col == nil {
		return 0
	}
	return col.Count()
}

// Namespaces reports how many namespaces hold a collection.
func (i *Index) Namespaces() int {
	return len(i.db.ListCollections())
}

func rejectEmbedding(context.Context, string) ([]float32, error) {
	return nil, errEmbeddingRequired
}
