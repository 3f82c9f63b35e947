package redis

import (
	"context"
	"strconv"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"

	"tutorgate/internal/config"
)

func TestNilClientIsDisabled(t *testing.T) {
	var c *Client
	ctx := context.Background()
	if c.Enabled() {
		t.Fatalf("nil client must report disabled")
	}
	if err := c.Set(ctx, "k", "v", time.Minute); err == nil {
		t.Fatalf("expected error from nil client set")
	}
	var dst map[string]string
	if err := c.GetJSON(ctx, "k", &dst); err == nil {
		t.Fatalf("expected error from nil client get")
	}
	if err := c.Publish(ctx, "ch", "x"); err == nil {
		t.Fatalf("expected error from nil client publish")
	}
	if err := c.Close(); err != nil {
		t.Fatalf("close nil client: %v", err)
	}
	if c.Raw() != nil {
		t.Fatalf("nil client raw should be nil")
	}
}

func TestDelPatternRemovesMatchingKeys(t *testing.T) {
	mr := miniredis.RunT(t)
	port, err := strconv.Atoi(mr.Port())
	if err != nil {
		t.Fatalf("port: %v", err)
	}
	c, err := NewRedisClient(&config.Config{Redis: config.RedisConfig{Host: mr.Host(), Port: port}})
	if err != nil {
		t.Fatalf("client: %v", err)
	}
	defer c.Close()
	ctx := context.Background()

	for _, k := range []string{"catalog:characters", "catalog:character:a", "auth:token:x"} {
		if err := c.Set(ctx, k, "v", time.Minute); err != nil {
			t.Fatalf("set %s: %v", k, err)
		}
	}
	if err := c.DelPattern(ctx, "catalog:*"); err != nil {
		t.Fatalf("DelPattern: %v", err)
	}
	if mr.Exists("catalog:characters") || mr.Exists("catalog:character:a") {
		t.Fatalf("catalog keys should be gone: %v", mr.Keys())
	}
	if !mr.Exists("auth:token:x") {
		t.Fatalf("unrelated key removed")
	}
	if err := c.DelPattern(ctx, "nothing:*"); err != nil {
		t.Fatalf("DelPattern without matches: %v", err)
	}
}
