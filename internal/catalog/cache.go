package catalog

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dgraph-io/ristretto"
	"github.com/sirupsen/logrus"

	"tutorgate/internal/models"
	"tutorgate/internal/redis"
)

const (
	InvalidateChannel = "catalog:invalidate"
	defaultTTL        = 30 * time.Minute

	charactersKey = "catalog:characters"
	scenariosKey  = "catalog:scenarios"
	keyPattern    = "catalog:*"
)

func characterKey(id string) string { return "catalog:character:" + id }
func scenarioKey(id string) string  { return "catalog:scenario:" + id }

// Source is the authoritative catalog, normally *store.Service.
type Source interface {
	ListCharacters(ctx context.Context) ([]models.Character, error)
	GetCharacter(ctx context.Context, id string) (*models.Character, error)
	UpsertCharacter(ctx context.Context, c models.Character) error
	ListScenarios(ctx context.Context) ([]models.Scenario, error)
	GetScenario(ctx context.Context, id string) (*models.Scenario, error)
	UpsertScenario(ctx context.Context, sc models.Scenario) error
}

// Cache is a read-through cache for characters and scenarios: an in-process
// ristretto layer in front of redis in front of the source. Redis is optional.
type Cache struct {
	src Source
	l1  *ristretto.Cache
	l2  *redis.Client
	ttl time.Duration
	log logrus.FieldLogger
}

func New(src Source, l2 *redis.Client, log logrus.FieldLogger) (*Cache, error) {
	if log == nil {
		log = logrus.StandardLogger()
	}
	l1, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: 10_000,
		MaxCost:     1_000,
		BufferItems: 64,
	})
	if err != nil {
		return nil, fmt.Errorf("create catalog cache: %w", err)
	}
	return &Cache{src: src, l1: l1, l2: l2, ttl: defaultTTL, log: log.WithField("component", "catalog")}, nil
}

// Listen drops the local layer whenever another instance publishes an
// invalidation. It returns immediately when redis is disabled.
func (c *Cache) Listen(ctx context.Context) error {
	if !c.l2.Enabled() {
		return nil
	}
	return c.l2.Subscribe(ctx, InvalidateChannel, func(payload string) {
		c.l1.Clear()
		c.log.WithField("key", payload).Debug("catalog_invalidated")
	})
}

func (c *Cache) Close() {
	c.l1.Close()
}

func (c *Cache) Character(ctx context.Context, id string) (*models.Character, error) {
	v, err := readThrough(ctx, c, characterKey(id), func(ctx context.Context) (models.Character, error) {
		ch, err := c.src.GetCharacter(ctx, id)
		if err != nil {
			return models.Character{}, err
		}
		return *ch, nil
	})
	if err != nil {
		return nil, err
	}
	return &v, nil
}

func (c *Cache) Scenario(ctx context.Context, id string) (*models.Scenario, error) {
	v, err := readThrough(ctx, c, scenarioKey(id), func(ctx context.Context) (models.Scenario, error) {
		sc, err := c.src.GetScenario(ctx, id)
		if err != nil {
			return models.Scenario{}, err
		}
		return *sc, nil
	})
	if err != nil {
		return nil, err
	}
	return &v, nil
}

// Characters lists active characters.
func (c *Cache) Characters(ctx context.Context) ([]models.Character, error) {
	v, err := readThrough(ctx, c, charactersKey, c.src.ListCharacters)
	if err != nil {
		return nil, err
	}
	return append([]models.Character(nil), v...), nil
}

// Scenarios lists active scenarios.
func (c *Cache) Scenarios(ctx context.Context) ([]models.Scenario, error) {
	v, err := readThrough(ctx, c, scenariosKey, c.src.ListScenarios)
	if err != nil {
		return nil, err
	}
	return append([]models.Scenario(nil), v...), nil
}

func (c *Cache) UpsertCharacter(ctx context.Context, ch models.Character) error {
	if err := c.src.UpsertCharacter(ctx, ch); err != nil {
		return err
	}
	c.Invalidate(ctx, characterKey(ch.ID), charactersKey)
	return nil
}

func (c *Cache) UpsertScenario(ctx context.Context, sc models.Scenario) error {
	if err := c.src.UpsertScenario(ctx, sc); err != nil {
		return err
	}
	c.Invalidate(ctx, scenarioKey(sc.ID), scenariosKey)
	return nil
}

// Invalidate drops keys from both layers and tells other instances.
// Called with no keys it drops every catalog entry.
func (c *Cache) Invalidate(ctx context.Context, keys ...string) {
	if len(keys) == 0 {
		c.l1.Clear()
	}
	for _, k := range keys {
		c.l1.Del(k)
	}
	if !c.l2.Enabled() {
		return
	}
	var err error
	if len(keys) == 0 {
		err = c.l2.DelPattern(ctx, keyPattern)
	} else {
		err = c.l2.Del(ctx, keys...)
	}
	if err != nil {
		c.log.WithError(err).Warn("catalog_l2_delete_failed")
	}
	if err := c.l2.Publish(ctx, InvalidateChannel, "*"); err != nil {
		c.log.WithError(err).Warn("catalog_publish_failed")
	}
}

func readThrough[T any](ctx context.Context, c *Cache, key string, load func(context.Context) (T, error)) (T, error) {
	if v, ok := c.l1.Get(key); ok {
		if typed, ok := v.(T); ok {
			return typed, nil
		}
	}

	var out T
	if c.l2.Enabled() {
		err := c.l2.GetJSON(ctx, key, &out)
		if err == nil {
			c.l1.SetWithTTL(key, out, 1, c.ttl)
			return out, nil
		}
		if !errors.Is(err, redis.ErrCacheMiss) {
			c.log.WithError(err).WithField("key", key).Warn("catalog_l2_read_failed")
		}
	}

	out, err := load(ctx)
	if err != nil {
		return out, err
	}
	c.l1.SetWithTTL(key, out, 1, c.ttl)
	if c.l2.Enabled() {
		if err := c.l2.SetJSON(ctx, key, out, c.ttl); err != nil {
			c.log.WithError(err).WithField("key", key).Warn("catalog_l2_write_failed")
		}
	}
	return out, nil
}
