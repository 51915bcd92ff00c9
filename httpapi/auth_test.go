package httpapi

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/authgate/authgate"
	"github.com/authgate/authgate/jwt"
	"github.com/authgate/authgate/password"
	"github.com/authgate/authgate/ratelimit"
	"github.com/authgate/authgate/session"
)

type fakeRepo struct {
	users map[string]*authgate.User
}

func (f *fakeRepo) Get(_ context.Context, filter authgate.UserFilter) (*authgate.User, error) {
	for _, u := range f.users {
		if filter.ID != "" && u.ID != filter.ID {
			continue
		}
		if filter.Email != "" && u.Email != filter.Email {
			continue
		}
		if filter.OTP != "" && (u.OTP == "" || u.OTP != filter.OTP) {
			continue
		}
		if filter.ID == "" && filter.Email == "" && filter.OTP == "" {
			continue
		}
		clone := *u
		return &clone, nil
	}
	return nil, authgate.ErrUserNotFound
}

func (f *fakeRepo) Create(_ context.Context, user *authgate.User) error {
	f.users[user.ID] = user
	return nil
}

func (f *fakeRepo) Update(_ context.Context, user *authgate.User) error {
	clone := *user
	f.users[user.ID] = &clone
	return nil
}

func (f *fakeRepo) Delete(_ context.Context, user *authgate.User) error {
	delete(f.users, user.ID)
	return nil
}

func testConfig() authgate.Config {
	return authgate.Config{
		JWT: authgate.JWTConfig{
			SigningKey:      "0123456789abcdef0123456789abcdef",
			Issuer:          "authgate-test",
			Audience:        "api",
			RefreshAudience: "refresh",
			AccessTTL:       15 * time.Minute,
			RefreshTTL:      time.Hour,
		},
		Cookies: authgate.CookieConfig{
			AccessName:  "ag_token",
			RefreshName: "ag_refresh_token",
		},
		Session: authgate.SessionConfig{KeyPrefix: "ag", TTL: time.Hour},
	}
}

type testEnv struct {
	router   http.Handler
	repo     *fakeRepo
	sessions *session.Manager
	cfg      authgate.Config
}

func newTestEnv(t *testing.T, withLimiter bool, maxAttempts int) *testEnv {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis run failed: %v", err)
	}
	t.Cleanup(mr.Close)

	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	cfg := testConfig()
	logger := slog.Default()

	codec, err := jwt.NewCodec(jwt.Config{
		Method: jwt.MethodHS256,
		Key:    []byte(cfg.JWT.SigningKey),
		Issuer: cfg.JWT.Issuer,
	})
	if err != nil {
		t.Fatalf("NewCodec error: %v", err)
	}

	registry, err := authgate.NewSchemeRegistry(codec, logger, authgate.SchemeDefault, authgate.DefaultSchemes(cfg))
	if err != nil {
		t.Fatalf("NewSchemeRegistry error: %v", err)
	}
	engine, err := authgate.NewPolicyEngine(registry, logger, authgate.DefaultPolicies())
	if err != nil {
		t.Fatalf("NewPolicyEngine error: %v", err)
	}

	sessions, err := session.NewManager(session.NewStore(rdb, cfg.Session.KeyPrefix), logger, cfg.Session.TTL)
	if err != nil {
		t.Fatalf("NewManager error: %v", err)
	}

	// Minimum cost parameters keep the hashing fast in tests.
	hasher, err := password.NewHasher(password.Config{
		Memory:      8192,
		Time:        1,
		Parallelism: 1,
		SaltLength:  16,
		KeyLength:   16,
	})
	if err != nil {
		t.Fatalf("NewHasher error: %v", err)
	}

	hash, err := hasher.Hash("correct-horse-battery")
	if err != nil {
		t.Fatalf("Hash error: %v", err)
	}

	repo := &fakeRepo{users: map[string]*authgate.User{
		"u1": {ID: "u1", Email: "u1@example.com", Role: "user", PasswordHash: hash, OTP: "otp-123"},
	}}

	var limiter *ratelimit.Limiter
	if withLimiter {
		limiter = ratelimit.New(rdb, ratelimit.Config{MaxAttempts: maxAttempts, Cooldown: time.Minute})
	}

	server, err := NewServer(Deps{
		Config:   cfg,
		Logger:   logger,
		Codec:    codec,
		Engine:   engine,
		Sessions: sessions,
		Users:    repo,
		Verifier: hasher,
		Limiter:  limiter,
	})
	if err != nil {
		t.Fatalf("NewServer error: %v", err)
	}

	return &testEnv{
		router:   server.Router(),
		repo:     repo,
		sessions: sessions,
		cfg:      cfg,
	}
}

func (env *testEnv) do(t *testing.T, method, path, body string, cookies []*http.Cookie, header map[string]string) *httptest.ResponseRecorder {
	t.Helper()

	var r *http.Request
	if body != "" {
		r = httptest.NewRequest(method, path, strings.NewReader(body))
	} else {
		r = httptest.NewRequest(method, path, nil)
	}
	r.Header.Set("User-Agent", "Mozilla/5.0 (X11; Linux x86_64) Chrome/120.0.0.0")
	for _, c := range cookies {
		r.AddCookie(c)
	}
	for k, v := range header {
		r.Header.Set(k, v)
	}

	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, r)
	return rec
}

func decodeEnvelope(t *testing.T, rec *httptest.ResponseRecorder) authgate.Envelope {
	t.Helper()

	var env authgate.Envelope
	if err := json.NewDecoder(rec.Body).Decode(&env); err != nil {
		t.Fatalf("decode envelope: %v", err)
	}
	return env
}

func cookieByName(t *testing.T, rec *httptest.ResponseRecorder, name string) *http.Cookie {
	t.Helper()

	for _, c := range rec.Result().Cookies() {
		if c.Name == name {
			return c
		}
	}
	t.Fatalf("cookie %q not set", name)
	return nil
}

func TestLoginWithPassword(t *testing.T) {
	env := newTestEnv(t, false, 0)

	rec := env.do(t, http.MethodPost, "/auth/login", `{"email":"u1@example.com","password":"correct-horse-battery"}`, nil, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	envl := decodeEnvelope(t, rec)
	if !envl.Success || envl.Message != "Login successful" {
		t.Fatalf("unexpected envelope: %+v", envl)
	}

	result, ok := envl.Result.(map[string]any)
	if !ok {
		t.Fatalf("expected result object, got %T", envl.Result)
	}
	if result["accessToken"] == "" || result["refreshToken"] == "" || result["sessionId"] == "" {
		t.Fatalf("missing tokens in result: %v", result)
	}

	access := cookieByName(t, rec, "ag_token")
	if !access.HttpOnly || access.SameSite != http.SameSiteLaxMode || access.Path != "/" {
		t.Fatalf("unexpected access cookie attributes: %+v", access)
	}
	if access.Secure {
		t.Fatal("expected non-secure cookie outside production mode")
	}
	cookieByName(t, rec, "ag_refresh_token")
}

func TestLoginFailuresAreIndistinguishable(t *testing.T) {
	env := newTestEnv(t, false, 0)

	wrongPassword := env.do(t, http.MethodPost, "/auth/login", `{"email":"u1@example.com","password":"wrong-password-1"}`, nil, nil)
	unknownEmail := env.do(t, http.MethodPost, "/auth/login", `{"email":"ghost@example.com","password":"wrong-password-1"}`, nil, nil)

	if wrongPassword.Code != http.StatusNotFound || unknownEmail.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for both, got %d and %d", wrongPassword.Code, unknownEmail.Code)
	}
	if wrongPassword.Body.String() != unknownEmail.Body.String() {
		t.Fatalf("expected identical bodies:\n%s\n%s", wrongPassword.Body.String(), unknownEmail.Body.String())
	}
}

func TestLoginWithOTPIsSingleUse(t *testing.T) {
	env := newTestEnv(t, false, 0)

	rec := env.do(t, http.MethodPost, "/auth/login", `{"email":"u1@example.com","otp":"otp-123"}`, nil, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	// The OTP was burned by the first login.
	rec = env.do(t, http.MethodPost, "/auth/login", `{"email":"u1@example.com","otp":"otp-123"}`, nil, nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for reused otp, got %d", rec.Code)
	}
}

func TestLoginValidation(t *testing.T) {
	env := newTestEnv(t, false, 0)

	if rec := env.do(t, http.MethodPost, "/auth/login", `not-json`, nil, nil); rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad body, got %d", rec.Code)
	}
	if rec := env.do(t, http.MethodPost, "/auth/login", `{}`, nil, nil); rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for empty credentials, got %d", rec.Code)
	}
	if rec := env.do(t, http.MethodPost, "/auth/login", `{"email":"u1@example.com"}`, nil, nil); rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for missing password, got %d", rec.Code)
	}
}

func TestLoginThrottle(t *testing.T) {
	env := newTestEnv(t, true, 2)

	// The budget check runs before authentication, so the attempt that
	// crosses the limit still reads as a credential failure; the next
	// request is the first to see 429.
	for i := 0; i < 3; i++ {
		rec := env.do(t, http.MethodPost, "/auth/login", `{"email":"u1@example.com","password":"wrong-password-1"}`, nil, nil)
		if rec.Code != http.StatusNotFound {
			t.Fatalf("attempt %d: expected 404, got %d", i, rec.Code)
		}
	}

	rec := env.do(t, http.MethodPost, "/auth/login", `{"email":"u1@example.com","password":"wrong-password-1"}`, nil, nil)
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429 after budget exhausted, got %d", rec.Code)
	}

	// The correct password is also refused while throttled.
	rec = env.do(t, http.MethodPost, "/auth/login", `{"email":"u1@example.com","password":"correct-horse-battery"}`, nil, nil)
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429 for correct password while throttled, got %d", rec.Code)
	}
}

func TestRepeatLoginSameDeviceSingleSession(t *testing.T) {
	env := newTestEnv(t, false, 0)

	first := env.do(t, http.MethodPost, "/auth/login", `{"email":"u1@example.com","password":"correct-horse-battery"}`, nil, nil)
	second := env.do(t, http.MethodPost, "/auth/login", `{"email":"u1@example.com","password":"correct-horse-battery"}`, nil, nil)
	if first.Code != http.StatusOK || second.Code != http.StatusOK {
		t.Fatalf("expected both logins to succeed, got %d and %d", first.Code, second.Code)
	}

	firstResult := decodeEnvelope(t, first).Result.(map[string]any)
	secondResult := decodeEnvelope(t, second).Result.(map[string]any)
	if firstResult["sessionId"] != secondResult["sessionId"] {
		t.Fatalf("expected one session per device, got %v and %v", firstResult["sessionId"], secondResult["sessionId"])
	}
}

func TestExchangeToken(t *testing.T) {
	env := newTestEnv(t, false, 0)

	login := env.do(t, http.MethodPost, "/auth/login", `{"email":"u1@example.com","password":"correct-horse-battery"}`, nil, nil)
	if login.Code != http.StatusOK {
		t.Fatalf("login failed: %d", login.Code)
	}
	refresh := cookieByName(t, login, "ag_refresh_token")

	rec := env.do(t, http.MethodGet, "/auth/exchange-token", "", []*http.Cookie{refresh}, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	envl := decodeEnvelope(t, rec)
	if !envl.Success || envl.Message != "Token exchanged" {
		t.Fatalf("unexpected envelope: %+v", envl)
	}
	cookieByName(t, rec, "ag_token")
	cookieByName(t, rec, "ag_refresh_token")
}

func TestExchangeTokenRejectsAccessToken(t *testing.T) {
	env := newTestEnv(t, false, 0)

	login := env.do(t, http.MethodPost, "/auth/login", `{"email":"u1@example.com","password":"correct-horse-battery"}`, nil, nil)
	access := cookieByName(t, login, "ag_token")

	// The access token rides the wrong cookie and carries the wrong
	// audience for the refresh scheme.
	rec := env.do(t, http.MethodGet, "/auth/exchange-token", "", []*http.Cookie{access}, nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

func TestLogout(t *testing.T) {
	env := newTestEnv(t, false, 0)

	login := env.do(t, http.MethodPost, "/auth/login", `{"email":"u1@example.com","password":"correct-horse-battery"}`, nil, nil)
	access := cookieByName(t, login, "ag_token")
	sessionID := decodeEnvelope(t, login).Result.(map[string]any)["sessionId"].(string)

	rec := env.do(t, http.MethodPost, "/auth/logout", "", []*http.Cookie{access}, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	cleared := cookieByName(t, rec, "ag_token")
	if cleared.MaxAge >= 0 {
		t.Fatalf("expected access cookie cleared, got MaxAge=%d", cleared.MaxAge)
	}

	sess, err := env.sessions.Get(context.Background(), sessionID)
	if err != nil {
		t.Fatalf("Get error: %v", err)
	}
	if sess != nil {
		t.Fatal("expected session revoked after logout")
	}
}

func TestMe(t *testing.T) {
	env := newTestEnv(t, false, 0)

	login := env.do(t, http.MethodPost, "/auth/login", `{"email":"u1@example.com","password":"correct-horse-battery"}`, nil, nil)
	result := decodeEnvelope(t, login).Result.(map[string]any)
	accessToken := result["accessToken"].(string)

	// Bearer transport.
	rec := env.do(t, http.MethodGet, "/auth/me", "", nil, map[string]string{"Authorization": "Bearer " + accessToken})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	me := decodeEnvelope(t, rec).Result.(map[string]any)
	if me["id"] != "u1" || me["email"] != "u1@example.com" || me["role"] != "user" {
		t.Fatalf("unexpected me payload: %v", me)
	}

	// No credentials.
	rec = env.do(t, http.MethodGet, "/auth/me", "", nil, nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t, false, 0)

	rec := env.do(t, http.MethodGet, "/health", "", nil, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}
