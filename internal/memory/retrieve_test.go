package memory

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"tutorgate/internal/vector"
)

func TestRetrieveReturnsTextsInOrder(t *testing.T) {
	idx := &fakeIndex{matches: []vector.Match{
		{ID: "1", Score: 0.9, Metadata: map[string]string{"text": "first"}},
		{ID: "2", Score: 0.8, Metadata: map[string]string{}},
		{ID: "3", Score: 0.7, Metadata: map[string]string{"text": "third"}},
	}}
	r := NewRetriever(hashEmbedder{}, idx, "mem", nil)
	assert.Equal(t, []string{"first", "third"}, r.Retrieve(context.Background(), "u1", "hello", 3))
}

func TestRetrieveDegrades(t *testing.T) {
	ctx := context.Background()
	r := NewRetriever(hashEmbedder{fail: map[string]bool{"boom": true}}, &fakeIndex{}, "mem", nil)
	assert.Empty(t, r.Retrieve(ctx, "u1", "boom", 2))
	assert.Empty(t, r.Retrieve(ctx, "", "hello", 2))
	assert.Empty(t, r.Retrieve(ctx, "u1", "hello", 0))

	r = NewRetriever(hashEmbedder{}, &fakeIndex{queryErr: errors.New("down")}, "mem", nil)
	assert.Empty(t, r.Retrieve(ctx, "u1", "hello", 2))
}

func TestRetrieveIsNamespaced(t *testing.T) {
	ctx := context.Background()
	idx := vector.NewMemoryIndex()
	emb := hashEmbedder{}
	v, _ := emb.Embed(ctx, "likes tea")
	err := idx.Upsert(ctx, Namespace("mem", "alice"), []vector.Entry{
		{ID: "a", Embedding: v, Content: "likes tea", Metadata: map[string]string{"text": "likes tea"}},
	})
	assert.NoError(t, err)

	r := NewRetriever(emb, idx, "mem", nil)
	assert.Equal(t, []string{"likes tea"}, r.Retrieve(ctx, "alice", "likes tea", 2))
	assert.Empty(t, r.Retrieve(ctx, "bob", "likes tea", 2))
}
