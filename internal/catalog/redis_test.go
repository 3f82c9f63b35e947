package catalog

import (
	"context"
	"strconv"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tutorgate/internal/config"
	"tutorgate/internal/models"
	"tutorgate/internal/redis"
)

func newRedisCache(t *testing.T, mr *miniredis.Miniredis, src Source) *Cache {
	t.Helper()
	port, err := strconv.Atoi(mr.Port())
	require.NoError(t, err)
	client, err := redis.NewRedisClient(&config.Config{
		Redis: config.RedisConfig{Host: mr.Host(), Port: port},
	})
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })

	c, err := New(src, client, nil)
	require.NoError(t, err)
	t.Cleanup(c.Close)
	return c
}

func emptySource() *countingSource {
	return &countingSource{
		characters: map[string]models.Character{},
		scenarios:  map[string]models.Scenario{},
	}
}

func TestInvalidateAllClearsRedisLayer(t *testing.T) {
	mr := miniredis.RunT(t)
	src := emptySource()
	src.characters["char_b"] = models.Character{ID: "char_b", Name: "Fox", IsActive: true}
	c := newRedisCache(t, mr, src)
	ctx := context.Background()

	before, err := c.Characters(ctx)
	require.NoError(t, err)
	require.Len(t, before, 1)
	_, err = c.Character(ctx, "char_b")
	require.NoError(t, err)
	c.l1.Wait()
	assert.True(t, mr.Exists(charactersKey))
	assert.True(t, mr.Exists(characterKey("char_b")))

	// rows written behind the cache's back, then a full invalidation
	src.characters["char_a"] = models.Character{ID: "char_a", Name: "Owl", IsActive: true}
	src.characters["char_b"] = models.Character{ID: "char_b", Name: "Bear", IsActive: true}
	c.Invalidate(ctx)

	assert.False(t, mr.Exists(charactersKey))
	assert.False(t, mr.Exists(characterKey("char_b")))

	after, err := c.Characters(ctx)
	require.NoError(t, err)
	assert.Len(t, after, 2)
	got, err := c.Character(ctx, "char_b")
	require.NoError(t, err)
	assert.Equal(t, "Bear", got.Name)
}

func TestUpsertRefreshesPeerInstances(t *testing.T) {
	mr := miniredis.RunT(t)
	src := emptySource()
	writer := newRedisCache(t, mr, src)
	reader := newRedisCache(t, mr, src)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, reader.Listen(ctx))

	list, err := reader.Characters(ctx)
	require.NoError(t, err)
	require.Empty(t, list)
	reader.l1.Wait()

	require.NoError(t, writer.UpsertCharacter(ctx, models.Character{ID: "char_a", Name: "Owl", IsActive: true}))
	assert.False(t, mr.Exists(charactersKey))

	require.Eventually(t, func() bool {
		list, err := reader.Characters(ctx)
		return err == nil && len(list) == 1
	}, 2*time.Second, 10*time.Millisecond)
}
