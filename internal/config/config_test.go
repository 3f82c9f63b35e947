package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeConfig(t, `{
		"databases": {"sqlite3": {"dsn": "data/app.db"}},
		"providers": {"openai": {"model": "gpt-test", "api_key": "k"}}
	}`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.BasicConfig.ServerAddress != ":8090" {
		t.Fatalf("unexpected address %q", cfg.BasicConfig.ServerAddress)
	}
	if cfg.Chat.Provider != "openai" || cfg.Chat.Model != "gpt-test" {
		t.Fatalf("chat defaults not applied: %+v", cfg.Chat)
	}
	if !cfg.BackgroundMemory() {
		t.Fatalf("background memory should default on")
	}
	if cfg.Memory.RetrieveTopK != 2 || cfg.Memory.NamespacePrefix != "mem" {
		t.Fatalf("memory defaults not applied: %+v", cfg.Memory)
	}
	if cfg.Embedding.APIKey != "k" {
		t.Fatalf("embedding key should fall back to openai key")
	}
	want := filepath.Join(filepath.Dir(path), "data/app.db")
	if cfg.Databases["sqlite3"].DSN != want {
		t.Fatalf("dsn not anchored: %s", cfg.Databases["sqlite3"].DSN)
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "from-env")
	t.Setenv("MEMORY_SAVE_BACKGROUND", "0")
	t.Setenv("TUTORGATE_ADMIN_TOKEN", "admin")
	path := writeConfig(t, `{"databases": {"sqlite3": {"dsn": ":memory:"}}}`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Providers["openai"].APIKey != "from-env" {
		t.Fatalf("env api key not applied")
	}
	if cfg.BackgroundMemory() {
		t.Fatalf("MEMORY_SAVE_BACKGROUND=0 should disable background writes")
	}
	if cfg.BasicConfig.AdminToken != "admin" {
		t.Fatalf("admin token not applied")
	}
	if cfg.Databases["sqlite3"].DSN != ":memory:" {
		t.Fatalf("memory dsn must stay untouched")
	}
}

func TestLoadRejectsUnknownProvider(t *testing.T) {
	path := writeConfig(t, `{"databases": {"sqlite3": {"dsn": ":memory:"}}, "chat": {"provider": "nope"}}`)
	if _, err := Load(path); err == nil {
		t.Fatalf("expected error for unknown provider")
	}
}

func TestLoadRequiresDatabase(t *testing.T) {
	path := writeConfig(t, `{}`)
	if _, err := Load(path); err == nil {
		t.Fatalf("expected error without databases")
	}
}
