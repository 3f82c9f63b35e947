package vector

import (
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tutorgate/internal/config"
)

func TestQueryEmptyNamespace(t *testing.T) {
	idx := NewMemoryIndex()
	matches, err := idx.Query(context.Background(), "mem:nobody", []float32{1, 0, 0}, 3)
	require.NoError(t, err)
	assert.Empty(t, matches)
}

func TestReadsAndDeletesDoNotCreateNamespaces(t *testing.T) {
	ctx := context.Background()
	idx := NewMemoryIndex()

	_, err := idx.Query(ctx, "mem:nobody", []float32{1, 0, 0}, 3)
	require.NoError(t, err)
	require.NoError(t, idx.Delete(ctx, "mem:nobody", []string{"a"}))
	assert.Zero(t, idx.Namespaces())

	require.NoError(t, idx.Upsert(ctx, "mem:alice", []Entry{{ID: "a", Embedding: []float32{1, 0, 0}, Content: "likes tea"}}))
	require.Equal(t, 1, idx.Namespaces())
	require.NoError(t, idx.DropNamespace(ctx, "mem:alice"))

	// a lookup right after a purge must not bring the namespace back
	matches, err := idx.Query(ctx, "mem:alice", []float32{1, 0, 0}, 1)
	require.NoError(t, err)
	assert.Empty(t, matches)
	assert.Zero(t, idx.Namespaces())

	_, err = idx.Query(ctx, "", []float32{1, 0, 0}, 1)
	assert.Error(t, err)
}

func TestPersistentIndexSkipsDirectoryForLookups(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	idx, err := NewIndex(config.VectorConfig{PersistPath: dir})
	require.NoError(t, err)

	_, err = idx.Query(ctx, "mem:nobody", []float32{1, 0, 0}, 2)
	require.NoError(t, err)
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestUpsertQueryDelete(t *testing.T) {
	ctx := context.Background()
	idx := NewMemoryIndex()

	err := idx.Upsert(ctx, "mem:alice", []Entry{
		{ID: "a", Embedding: []float32{1, 0, 0}, Content: "likes tea", Metadata: map[string]string{"text": "likes tea"}},
		{ID: "b", Embedding: []float32{0, 1, 0}, Content: "runs daily", Metadata: map[string]string{"text": "runs daily"}},
	})
	require.NoError(t, err)
	require.NoError(t, idx.Upsert(ctx, "mem:bob", []Entry{
		{ID: "c", Embedding: []float32{1, 0, 0}, Content: "bob fact"},
	}))

	// topK above collection size is clamped
	matches, err := idx.Query(ctx, "mem:alice", []float32{1, 0.1, 0}, 10)
	require.NoError(t, err)
	require.Len(t, matches, 2)
	assert.Equal(t, "a", matches[0].ID)
	assert.Equal(t, "likes tea", matches[0].Metadata["text"])
	assert.Greater(t, matches[0].Score, matches[1].Score)

	require.NoError(t, idx.Delete(ctx, "mem:alice", []string{"a"}))
	assert.Equal(t, 1, idx.Count("mem:alice"))
	assert.Equal(t, 1, idx.Count("mem:bob"))

	require.NoError(t, idx.DropNamespace(ctx, "mem:bob"))
	assert.Equal(t, 0, idx.Count("mem:bob"))
}

func TestUpsertRequiresEmbedding(t *testing.T) {
	idx := NewMemoryIndex()
	err := idx.Upsert(context.Background(), "mem:x", []Entry{{ID: "a", Content: "no vector"}})
	assert.Error(t, err)
}
