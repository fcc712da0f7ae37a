package controllers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"

	"github.com/primex-iptv/primex-backend/api/middleware"
	"github.com/primex-iptv/primex-backend/internal/auth"
	"github.com/primex-iptv/primex-backend/pkg/db/models"
	pkgerrors "github.com/primex-iptv/primex-backend/pkg/errors"
)

type stubAuthService struct {
	operatorResp *auth.OperatorLoginResponse
	accountResp  *auth.AccountLoginResponse
	refreshResp  *auth.RefreshResponse
	revoked      int64
	err          error

	loggedOutID    uuid.UUID
	loggedOutToken string
}

func (s *stubAuthService) OperatorLogin(ctx context.Context, req auth.LoginRequest) (*auth.OperatorLoginResponse, error) {
	return s.operatorResp, s.err
}

func (s *stubAuthService) OperatorLogout(ctx context.Context, operatorID uuid.UUID, token string) error {
	s.loggedOutID = operatorID
	s.loggedOutToken = token
	return s.err
}

func (s *stubAuthService) OperatorLogoutAll(ctx context.Context, operatorID uuid.UUID, currentToken string) (int64, error) {
	return s.revoked, s.err
}

func (s *stubAuthService) AccountLogin(ctx context.Context, req auth.LoginRequest) (*auth.AccountLoginResponse, error) {
	return s.accountResp, s.err
}

func (s *stubAuthService) Refresh(ctx context.Context, refreshToken string) (*auth.RefreshResponse, error) {
	return s.refreshResp, s.err
}

func TestAdminAuthLoginSuccess(t *testing.T) {
	svc := &stubAuthService{operatorResp: &auth.OperatorLoginResponse{
		Token:    "operator-token",
		Operator: &models.AdminUser{ID: uuid.New(), Username: "boss"},
	}}

	handler := AdminAuthLogin(svc, nil)

	req := httptest.NewRequest(http.MethodPost, "/api/admin/v1/auth/login", bytes.NewReader([]byte(`{"username":"boss","password":"secret"}`)))
	req.Header.Set("Content-Type", "application/json")
	resp := httptest.NewRecorder()

	handler.ServeHTTP(resp, req)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", resp.Code)
	}

	var envelope struct {
		Data struct {
			Token string `json:"token"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if envelope.Data.Token != "operator-token" {
		t.Fatalf("expected token in payload got %+v", envelope.Data)
	}
}

func TestAdminAuthLoginRejectsBadBody(t *testing.T) {
	handler := AdminAuthLogin(&stubAuthService{}, nil)

	req := httptest.NewRequest(http.MethodPost, "/api/admin/v1/auth/login", bytes.NewReader([]byte(`{"username":"x"}`)))
	resp := httptest.NewRecorder()

	handler.ServeHTTP(resp, req)
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", resp.Code)
	}
}

func TestAdminAuthLoginPropagatesUnauthorized(t *testing.T) {
	svc := &stubAuthService{err: pkgerrors.New(pkgerrors.CodeUnauthorized, "invalid credentials")}
	handler := AdminAuthLogin(svc, nil)

	req := httptest.NewRequest(http.MethodPost, "/api/admin/v1/auth/login", bytes.NewReader([]byte(`{"username":"boss","password":"wrong"}`)))
	resp := httptest.NewRecorder()

	handler.ServeHTTP(resp, req)
	if resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 got %d", resp.Code)
	}

	var envelope struct {
		Error struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if envelope.Error.Code != string(pkgerrors.CodeUnauthorized) {
		t.Fatalf("unexpected code %s", envelope.Error.Code)
	}
	if envelope.Error.Message != "invalid credentials" {
		t.Fatalf("unexpected message %s", envelope.Error.Message)
	}
}

func TestAdminAuthLogoutRevokesPresentedToken(t *testing.T) {
	svc := &stubAuthService{}
	handler := AdminAuthLogout(svc, nil)

	operatorID := uuid.New()
	req := httptest.NewRequest(http.MethodPost, "/api/admin/v1/auth/logout", nil)
	ctx := middleware.WithSubjectID(req.Context(), operatorID.String())
	ctx = middleware.WithBearerToken(ctx, "the-jwt")
	req = req.WithContext(ctx)
	resp := httptest.NewRecorder()

	handler.ServeHTTP(resp, req)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", resp.Code)
	}
	if svc.loggedOutID != operatorID {
		t.Fatalf("expected logout for %s got %s", operatorID, svc.loggedOutID)
	}
	if svc.loggedOutToken != "the-jwt" {
		t.Fatalf("expected bearer token passed through got %q", svc.loggedOutToken)
	}
}

func TestAdminAuthLogoutWithoutPrincipal(t *testing.T) {
	handler := AdminAuthLogout(&stubAuthService{}, nil)

	req := httptest.NewRequest(http.MethodPost, "/api/admin/v1/auth/logout", nil)
	resp := httptest.NewRecorder()

	handler.ServeHTTP(resp, req)
	if resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 got %d", resp.Code)
	}
}

func TestAccountAuthLoginSuccess(t *testing.T) {
	svc := &stubAuthService{accountResp: &auth.AccountLoginResponse{
		Token:        "account-token",
		RefreshToken: "refresh-token",
		User:         &models.User{ID: uuid.New(), Username: "sub_fox1234"},
	}}
	handler := AccountAuthLogin(svc, nil)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", bytes.NewReader([]byte(`{"username":"sub_fox1234","password":"secret"}`)))
	resp := httptest.NewRecorder()

	handler.ServeHTTP(resp, req)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", resp.Code)
	}

	var envelope struct {
		Data struct {
			Token        string `json:"token"`
			RefreshToken string `json:"refresh_token"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if envelope.Data.Token != "account-token" || envelope.Data.RefreshToken != "refresh-token" {
		t.Fatalf("unexpected payload %+v", envelope.Data)
	}
}

func TestAccountAuthRefresh(t *testing.T) {
	svc := &stubAuthService{refreshResp: &auth.RefreshResponse{Token: "fresh-token"}}
	handler := AccountAuthRefresh(svc, nil)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/refresh", bytes.NewReader([]byte(`{"refresh_token":"old-refresh"}`)))
	resp := httptest.NewRecorder()

	handler.ServeHTTP(resp, req)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", resp.Code)
	}

	var envelope struct {
		Data struct {
			Token string `json:"token"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if envelope.Data.Token != "fresh-token" {
		t.Fatalf("unexpected payload %+v", envelope.Data)
	}
}
