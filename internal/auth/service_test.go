package auth

import (
	"context"
	"database/sql"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"strconv"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"

	"tutorgate/internal/config"
	"tutorgate/internal/redis"
	"tutorgate/internal/service/store"
	"tutorgate/internal/storage"
)

func newTestService(t *testing.T, cache *redis.Client, ttl time.Duration) (*Service, *sql.DB) {
	t.Helper()
	db := openTestDB(t)
	return NewService(db, store.NewService(db), cache, ttl, nil), db
}

func TestAuthIssueValidateRevoke(t *testing.T) {
	svc, db := newTestService(t, nil, time.Hour)
	insertUser(t, db, "alice")

	token, err := svc.IssueToken(context.Background(), "alice")
	if err != nil {
		t.Fatalf("IssueToken error: %v", err)
	}
	if token == "" {
		t.Fatalf("expected token")
	}
	userID, err := svc.ValidateToken(context.Background(), token)
	if err != nil || userID != "alice" {
		t.Fatalf("ValidateToken failed: id=%s err=%v", userID, err)
	}
	if err := svc.RevokeToken(context.Background(), token); err != nil {
		t.Fatalf("RevokeToken error: %v", err)
	}
	if _, err := svc.ValidateToken(context.Background(), token); !errors.Is(err, ErrTokenInvalid) {
		t.Fatalf("expected ErrTokenInvalid after revoke, got %v", err)
	}

	token2, err := svc.IssueToken(context.Background(), "alice")
	if err != nil {
		t.Fatalf("IssueToken error: %v", err)
	}
	if err := svc.RevokeUserTokens(context.Background(), "alice"); err != nil {
		t.Fatalf("RevokeUserTokens error: %v", err)
	}
	if _, err := svc.ValidateToken(context.Background(), token2); err == nil {
		t.Fatalf("expected error after revoke all")
	}
}

func TestAuthValidateExpiredToken(t *testing.T) {
	svc, db := newTestService(t, nil, 10*time.Millisecond)
	insertUser(t, db, "bob")

	token, err := svc.IssueToken(context.Background(), "bob")
	if err != nil {
		t.Fatalf("IssueToken error: %v", err)
	}
	time.Sleep(20 * time.Millisecond)
	if _, err := svc.ValidateToken(context.Background(), token); !errors.Is(err, ErrTokenExpired) {
		t.Fatalf("expected expiration error, got %v", err)
	}
	// ensure token removed
	var count int
	if err := db.QueryRow(`SELECT COUNT(*) FROM user_tokens WHERE token = ?`, token).Scan(&count); err != nil {
		t.Fatalf("query tokens: %v", err)
	}
	if count != 0 {
		t.Fatalf("expired token not purged")
	}
}

func TestValidateCredentials(t *testing.T) {
	cases := []struct {
		id, pw string
		want   error
	}{
		{"alice", "1234", nil},
		{"", "1234", ErrInvalidID},
		{"alice1", "1234", ErrInvalidID},
		{"alice", "12a4", ErrInvalidPassword},
		{"alice", "", ErrInvalidPassword},
		{"alice", "123", ErrPasswordTooShort},
	}
	for _, tc := range cases {
		err := ValidateCredentials(tc.id, tc.pw)
		if !errors.Is(err, tc.want) && !(tc.want == nil && err == nil) {
			t.Fatalf("ValidateCredentials(%q,%q) = %v, want %v", tc.id, tc.pw, err, tc.want)
		}
		if tc.want != nil && !IsValidationError(err) {
			t.Fatalf("%v should be a validation error", err)
		}
	}
}

func TestSignupAndLogin(t *testing.T) {
	svc, _ := newTestService(t, nil, time.Hour)
	ctx := context.Background()

	user, err := svc.Signup(ctx, " carol ", "4321")
	if err != nil {
		t.Fatalf("Signup: %v", err)
	}
	if user.ID != "carol" || user.PasswordHash == "4321" {
		t.Fatalf("unexpected user %+v", user)
	}
	if _, err := svc.Signup(ctx, "carol", "4321"); !errors.Is(err, ErrUserExists) {
		t.Fatalf("expected ErrUserExists, got %v", err)
	}

	if _, _, err := svc.Login(ctx, "carol", "9999"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials for wrong password, got %v", err)
	}
	if _, _, err := svc.Login(ctx, "dave", "1234"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials for unknown user, got %v", err)
	}
	_, token, err := svc.Login(ctx, "carol", "4321")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if id, err := svc.ValidateToken(ctx, token); err != nil || id != "carol" {
		t.Fatalf("login token invalid: id=%s err=%v", id, err)
	}
}

func TestMiddlewareVariants(t *testing.T) {
	gin.SetMode(gin.TestMode)
	svc, db := newTestService(t, nil, time.Hour)
	insertUser(t, db, "erin")
	token, err := svc.IssueToken(context.Background(), "erin")
	if err != nil {
		t.Fatalf("IssueToken: %v", err)
	}

	router := gin.New()
	whoami := func(c *gin.Context) {
		id, _ := UserIDFromContext(c)
		c.String(http.StatusOK, id)
	}
	router.GET("/required", svc.Middleware(), whoami)
	router.GET("/optional", svc.OptionalMiddleware(), whoami)

	cases := []struct {
		path, header string
		status       int
		body         string
	}{
		{"/required", "", http.StatusUnauthorized, ""},
		{"/required", "Bearer " + token, http.StatusOK, "erin"},
		{"/optional", "", http.StatusOK, ""},
		{"/optional", "Bearer " + token, http.StatusOK, "erin"},
		{"/optional", "Bearer nope", http.StatusUnauthorized, ""},
	}
	for _, tc := range cases {
		req := httptest.NewRequest(http.MethodGet, tc.path, nil)
		if tc.header != "" {
			req.Header.Set("Authorization", tc.header)
		}
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		if w.Code != tc.status {
			t.Fatalf("%s %q: status %d, want %d", tc.path, tc.header, w.Code, tc.status)
		}
		if tc.status == http.StatusOK && w.Body.String() != tc.body {
			t.Fatalf("%s %q: body %q, want %q", tc.path, tc.header, w.Body.String(), tc.body)
		}
	}
}

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	cfg := &config.Config{
		Databases: map[string]config.DatabaseConfig{
			"sqlite3": {
				DSN: ":memory:",
			},
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

func insertUser(t *testing.T, db *sql.DB, id string) {
	t.Helper()
	_, err := db.Exec(`INSERT INTO users (id, password_hash, created_at) VALUES (?, '', ?)`, id, time.Now().UTC())
	if err != nil {
		t.Fatalf("insert user: %v", err)
	}
}

func TestAuthTokenCacheUsesRedis(t *testing.T) {
	cacheClient, cleanup := newRedisCacheClient(t)
	defer cleanup()

	svc, db := newTestService(t, cacheClient, time.Hour)
	insertUser(t, db, "frank")
	ctx := context.Background()

	token, err := svc.IssueToken(ctx, "frank")
	if err != nil {
		t.Fatalf("IssueToken: %v", err)
	}

	raw := cacheClient.Raw()
	key := redisTokenPrefix + token
	got, err := raw.Get(ctx, key).Result()
	if err != nil {
		t.Fatalf("get redis token: %v", err)
	}
	if got != "frank" {
		t.Fatalf("expected user frank in rdb, got %s", got)
	}

	_, _ = db.Exec(`DELETE FROM user_tokens WHERE token = ?`, token)
	userID, err := svc.ValidateToken(ctx, token)
	if err != nil || userID != "frank" {
		t.Fatalf("ValidateToken via rdb failed: id=%s err=%v", userID, err)
	}

	if err := svc.RevokeToken(ctx, token); err != nil {
		t.Fatalf("RevokeToken: %v", err)
	}
	if _, err := raw.Get(ctx, key).Result(); err == nil {
		t.Fatalf("expected redis key deleted")
	}
	if _, err := svc.ValidateToken(ctx, token); err == nil {
		t.Fatalf("expected error after revoke and rdb delete")
	}
}

func newRedisCacheClient(t *testing.T) (*redis.Client, func()) {
	t.Helper()
	addr := os.Getenv("TEST_REDIS_ADDR")
	if addr == "" {
		addr = miniredis.RunT(t).Addr()
	}
	host, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		t.Fatalf("split host port: %v", err)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		t.Fatalf("atoi port: %v", err)
	}
	db := 0
	if v := os.Getenv("TEST_REDIS_DB"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			db = parsed
		}
	}
	cfg := &config.Config{
		Redis: config.RedisConfig{
			Host: host,
			Port: port,
			DB:   db,
		},
	}
	client, err := redis.NewRedisClient(cfg)
	if err != nil {
		t.Fatalf("redis client: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if raw := client.Raw(); raw != nil {
		if err := raw.FlushDB(ctx).Err(); err != nil {
			t.Fatalf("flush db: %v", err)
		}
	}
	cleanup := func() {
		client.Close()
	}
	return client, cleanup
}
