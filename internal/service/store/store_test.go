package store

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	"tutorgate/internal/config"
	"tutorgate/internal/models"
	"tutorgate/internal/storage"
)

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	cfg := &config.Config{
		Databases: map[string]config.DatabaseConfig{
			"sqlite3": {DSN: ":memory:"},
		},
	}
	db, err := storage.Open("sqlite3", cfg)
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := storage.Migrate(db, "sqlite3"); err != nil {
		t.Fatalf("migrate db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func TestCreateUserRejectsDuplicate(t *testing.T) {
	svc := NewService(openTestDB(t))
	ctx := context.Background()

	if _, err := svc.CreateUser(ctx, "alice", "hash"); err != nil {
		t.Fatalf("create user: %v", err)
	}
	if _, err := svc.CreateUser(ctx, "alice", "hash"); !errors.Is(err, ErrUserExists) {
		t.Fatalf("expected ErrUserExists, got %v", err)
	}
	if _, err := svc.GetUser(ctx, "bob"); !errors.Is(err, sql.ErrNoRows) {
		t.Fatalf("expected sql.ErrNoRows, got %v", err)
	}
}

func TestUpsertProfileKeepsUnsetFields(t *testing.T) {
	svc := NewService(openTestDB(t))
	ctx := context.Background()
	tone, goal := "friendly", "learn go"

	if _, err := svc.UpsertProfile(ctx, "carol", &tone, &goal, nil, nil); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	expertise := "beginner"
	user, err := svc.UpsertProfile(ctx, "carol", nil, nil, &expertise, nil)
	if err != nil {
		t.Fatalf("second upsert: %v", err)
	}
	want := models.Profile{Tone: "friendly", Goal: "learn go", Expertise: "beginner"}
	if user.Profile != want {
		t.Fatalf("unexpected profile %+v", user.Profile)
	}
	got, err := svc.GetProfile(ctx, "carol")
	if err != nil || got != want {
		t.Fatalf("stored profile %+v err=%v", got, err)
	}
	empty, err := svc.GetProfile(ctx, "nobody")
	if err != nil || !empty.IsEmpty() {
		t.Fatalf("unknown user should have empty profile: %+v %v", empty, err)
	}
}

func TestSessionLifecycle(t *testing.T) {
	svc := NewService(openTestDB(t))
	ctx := context.Background()
	if err := SeedCatalog(ctx, svc); err != nil {
		t.Fatalf("seed: %v", err)
	}

	sess, err := svc.CreateSession(ctx, "", "char_a", "scn_qa")
	if err != nil {
		t.Fatalf("create session: %v", err)
	}
	if sess.Phase != "intro" || sess.Status != models.SessionActive || sess.HasUser() {
		t.Fatalf("unexpected new session %+v", sess)
	}
	if err := svc.UpdatePhase(ctx, sess.ID, "guide"); err != nil {
		t.Fatalf("update phase: %v", err)
	}
	got, err := svc.GetSession(ctx, sess.ID)
	if err != nil || got.Phase != "guide" {
		t.Fatalf("phase not stored: %+v %v", got, err)
	}
	ended, err := svc.EndSession(ctx, sess.ID)
	if err != nil || ended.Status != models.SessionEnded || ended.EndedAt == nil {
		t.Fatalf("end session: %+v %v", ended, err)
	}
	if _, err := svc.EndSession(ctx, sess.ID); !errors.Is(err, ErrSessionEnded) {
		t.Fatalf("expected ErrSessionEnded, got %v", err)
	}
	if err := svc.UpdatePhase(ctx, "missing", "guide"); !errors.Is(err, sql.ErrNoRows) {
		t.Fatalf("expected sql.ErrNoRows, got %v", err)
	}
}

func TestMessagesKeepInsertionOrder(t *testing.T) {
	svc := NewService(openTestDB(t))
	ctx := context.Background()
	if err := SeedCatalog(ctx, svc); err != nil {
		t.Fatalf("seed: %v", err)
	}
	sess, err := svc.CreateSession(ctx, "", "char_b", "scn_coach")
	if err != nil {
		t.Fatalf("create session: %v", err)
	}
	contents := []string{"one", "two", "three", "four"}
	for i, c := range contents {
		role := models.RoleUser
		if i%2 == 1 {
			role = models.RoleAssistant
		}
		if _, err := svc.AddMessage(ctx, models.Message{SessionID: sess.ID, Role: role, Content: c}); err != nil {
			t.Fatalf("add message: %v", err)
		}
	}
	msgs, err := svc.ListMessages(ctx, sess.ID, 0)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(msgs) != len(contents) {
		t.Fatalf("expected %d messages, got %d", len(contents), len(msgs))
	}
	for i, m := range msgs {
		if m.Content != contents[i] {
			t.Fatalf("message %d out of order: %q", i, m.Content)
		}
	}
	tail, err := svc.ListMessages(ctx, sess.ID, 2)
	if err != nil || len(tail) != 2 || tail[0].Content != "three" || tail[1].Content != "four" {
		t.Fatalf("unexpected tail %v err=%v", tail, err)
	}
	n, err := svc.CountMessages(ctx, sess.ID, models.RoleUser)
	if err != nil || n != 2 {
		t.Fatalf("count user messages = %d err=%v", n, err)
	}
}

func TestMemoryItems(t *testing.T) {
	svc := NewService(openTestDB(t))
	ctx := context.Background()

	items := []models.MemoryItem{
		{UserID: "dave", Text: "first fact about dave", VectorID: "v1", Importance: 4},
		{UserID: "dave", Text: "second fact about dave", Importance: 5},
		{UserID: "erin", Text: "erin fact", Importance: 5},
	}
	if err := svc.InsertMemoryItems(ctx, items); err != nil {
		t.Fatalf("insert: %v", err)
	}
	for _, it := range items {
		if it.ID == "" || it.Source != models.MemorySourceChat {
			t.Fatalf("defaults not filled: %+v", it)
		}
	}
	texts, err := svc.RecentMemoryTexts(ctx, "dave", 50)
	if err != nil {
		t.Fatalf("recent texts: %v", err)
	}
	if len(texts) != 2 || texts[0] != "second fact about dave" {
		t.Fatalf("expected newest first, got %v", texts)
	}
	got, err := svc.GetMemoryItem(ctx, items[0].ID)
	if err != nil || got.VectorID != "v1" || got.SessionID != "" {
		t.Fatalf("get memory: %+v %v", got, err)
	}
	if err := svc.DeleteMemoryItem(ctx, items[0].ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if err := svc.DeleteMemoryItem(ctx, items[0].ID); !errors.Is(err, sql.ErrNoRows) {
		t.Fatalf("expected sql.ErrNoRows on second delete, got %v", err)
	}
	list, err := svc.ListMemoryItems(ctx, "dave", 10)
	if err != nil || len(list) != 1 {
		t.Fatalf("list memory: %v %v", list, err)
	}
}

func TestSeedIsIdempotent(t *testing.T) {
	svc := NewService(openTestDB(t))
	ctx := context.Background()
	for i := 0; i < 2; i++ {
		if err := SeedCatalog(ctx, svc); err != nil {
			t.Fatalf("seed pass %d: %v", i, err)
		}
	}
	chars, err := svc.ListCharacters(ctx)
	if err != nil || len(chars) != 2 {
		t.Fatalf("characters: %v %v", chars, err)
	}
	scns, err := svc.ListScenarios(ctx)
	if err != nil || len(scns) != 2 {
		t.Fatalf("scenarios: %v %v", scns, err)
	}
	if _, err := svc.GetScenario(ctx, "scn_missing"); !errors.Is(err, sql.ErrNoRows) {
		t.Fatalf("expected sql.ErrNoRows, got %v", err)
	}
}
