package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/primex-iptv/primex-backend/pkg/auth"
	"github.com/primex-iptv/primex-backend/pkg/config"
	"github.com/primex-iptv/primex-backend/pkg/enums"
)

type stubSessionChecker struct {
	ok  bool
	err error
}

func (s stubSessionChecker) HasSession(context.Context, string) (bool, error) {
	return s.ok, s.err
}

func middlewareTestJWTConfig() config.JWTConfig {
	return config.JWTConfig{
		Issuer:                  "primex-test",
		AccountSecret:           "account-secret",
		OperatorSecret:          "operator-secret",
		AccountExpirationHours:  24,
		OperatorExpirationHours: 8,
	}
}

func mintTestToken(t *testing.T, cfg config.JWTConfig, kind enums.PrincipalKind, subjectID uuid.UUID) string {
	t.Helper()
	token, err := auth.MintAccessToken(cfg, time.Now(), auth.AccessTokenPayload{
		SubjectID: subjectID,
		Kind:      kind,
		Username:  "tester",
	})
	if err != nil {
		t.Fatalf("mint token: %v", err)
	}
	return token
}

func TestAuthRejectsMissingToken(t *testing.T) {
	cfg := middlewareTestJWTConfig()
	handler := Auth(cfg, enums.PrincipalKindAccount, nil, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)
	if resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 got %d", resp.Code)
	}
}

func TestAuthRejectsInvalidToken(t *testing.T) {
	cfg := middlewareTestJWTConfig()
	handler := Auth(cfg, enums.PrincipalKindAccount, nil, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer invalid")
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)
	if resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 got %d", resp.Code)
	}
}

func TestAuthRejectsWrongPrincipalKind(t *testing.T) {
	cfg := middlewareTestJWTConfig()
	token := mintTestToken(t, cfg, enums.PrincipalKindAccount, uuid.New())

	handler := Auth(cfg, enums.PrincipalKindOperator, stubSessionChecker{ok: true}, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)
	if resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 got %d", resp.Code)
	}
}

func TestAuthAllowsValidAccountToken(t *testing.T) {
	cfg := middlewareTestJWTConfig()
	subjectID := uuid.New()
	token := mintTestToken(t, cfg, enums.PrincipalKindAccount, subjectID)

	var captured struct {
		subject string
		kind    string
		bearer  string
	}
	handler := Auth(cfg, enums.PrincipalKindAccount, nil, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		captured.subject = SubjectIDFromContext(r.Context())
		captured.kind = PrincipalKindFromContext(r.Context())
		captured.bearer = BearerTokenFromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", resp.Code)
	}
	if captured.subject != subjectID.String() {
		t.Fatalf("expected subject %s got %s", subjectID, captured.subject)
	}
	if captured.kind != string(enums.PrincipalKindAccount) {
		t.Fatalf("expected account principal got %s", captured.kind)
	}
	if captured.bearer != token {
		t.Fatal("expected raw bearer token in context")
	}
}

func TestAuthOperatorRequiresLiveSession(t *testing.T) {
	cfg := middlewareTestJWTConfig()
	token := mintTestToken(t, cfg, enums.PrincipalKindOperator, uuid.New())

	handler := Auth(cfg, enums.PrincipalKindOperator, stubSessionChecker{ok: false}, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)
	if resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 got %d", resp.Code)
	}
}

func TestAuthOperatorAllowsLiveSession(t *testing.T) {
	cfg := middlewareTestJWTConfig()
	token := mintTestToken(t, cfg, enums.PrincipalKindOperator, uuid.New())

	handler := Auth(cfg, enums.PrincipalKindOperator, stubSessionChecker{ok: true}, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", resp.Code)
	}
}
