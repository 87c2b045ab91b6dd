package integration

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/sandeepkv93/account-security-service/internal/config"
	"github.com/sandeepkv93/account-security-service/internal/database"
	"github.com/sandeepkv93/account-security-service/internal/di"
	"github.com/sandeepkv93/account-security-service/internal/repository"
)

type envelope struct {
	Data  json.RawMessage `json:"data"`
	Error *struct {
		Code string `json:"code"`
	} `json:"error"`
	RequestID string `json:"request_id"`
}

type testServer struct {
	baseURL string
	dsn     string
	users   repository.UserRepository
}

// newAuthTestServer boots the fully wired application on an httptest
// server backed by a private in-memory SQLite database.
func newAuthTestServer(t *testing.T) (*testServer, func()) {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	cfg := &config.Config{
		Profile:            "local",
		LogLevel:           "error",
		DatabaseDriver:     "sqlite",
		DatabaseURL:        dsn,
		RateLimitBackend:   "local",
		RateLimitKeyPrefix: "it:rl",
		EncryptionSecret:   "integration-encryption-secret-0001",
		TokenPepper:        "integration-token-pepper-00000001",
		JWTSecret:          "integration-jwt-secret-0000000001",
		JWTIssuer:          "account-security-service",
		JWTAudience:        "account-security-clients",
		BcryptCost:         4,
		SessionTTL:         24 * time.Hour,
		TwoFactorTicketTTL: 5 * time.Minute,
		CookieSecure:       false,
		TOTPIssuer:         "Account Security",
		PublicBaseURL:      "http://localhost:3000",
		EmailWorkers:       1,
		EmailQueueSize:     16,
		ReadinessTimeout:   time.Second,
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("config: %v", err)
	}
	a, cleanup, err := di.InitializeApp(context.Background(), cfg)
	if err != nil {
		t.Fatalf("initialize app: %v", err)
	}
	srv := httptest.NewServer(a.Server.Handler)

	db, err := database.Open(database.Options{Driver: "sqlite", DSN: dsn})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	return &testServer{baseURL: srv.URL, dsn: dsn, users: repository.NewUserRepository(db)}, func() {
		srv.Close()
		_ = a.Shutdown(context.Background())
		_ = database.Close(db)
		cleanup()
	}
}

func newClient(t *testing.T) *http.Client {
	t.Helper()
	jar, err := cookiejar.New(nil)
	if err != nil {
		t.Fatalf("cookie jar: %v", err)
	}
	return &http.Client{Jar: jar, Timeout: 10 * time.Second}
}

func (s *testServer) markVerified(t *testing.T, email string) {
	t.Helper()
	u, err := s.users.FindByEmail(context.Background(), email)
	if err != nil {
		t.Fatalf("find user %s: %v", email, err)
	}
	if err := s.users.MarkEmailVerified(context.Background(), u.ID, "", time.Now().UTC()); err != nil {
		t.Fatalf("mark verified: %v", err)
	}
}

func doJSON(t *testing.T, client *http.Client, method, target string, body any, headers map[string]string) (*http.Response, envelope) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, target, reader)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := client.Do(req)
	if err != nil {
		t.Fatalf("do request: %v", err)
	}
	defer func() { _ = resp.Body.Close() }()
	var env envelope
	_ = json.NewDecoder(resp.Body).Decode(&env)
	return resp, env
}

func cookieValue(t *testing.T, client *http.Client, baseURL, name string) string {
	t.Helper()
	u, err := url.Parse(baseURL)
	if err != nil {
		t.Fatalf("parse base url: %v", err)
	}
	for _, c := range client.Jar.Cookies(u) {
		if c.Name == name {
			return c.Value
		}
	}
	return ""
}
