package controllers

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"

	"github.com/primex-iptv/primex-backend/api/middleware"
	"github.com/primex-iptv/primex-backend/internal/activation"
	pkgerrors "github.com/primex-iptv/primex-backend/pkg/errors"
)

func TestDeviceRegisterRejectsBadMAC(t *testing.T) {
	handler := DeviceRegister(&activation.Service{}, nil)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/device/register", bytes.NewReader([]byte(`{"mac_address":"not-a-mac"}`)))
	resp := httptest.NewRecorder()

	handler.ServeHTTP(resp, req)
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", resp.Code)
	}

	var envelope struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if envelope.Error.Code != string(pkgerrors.CodeValidation) {
		t.Fatalf("unexpected code %s", envelope.Error.Code)
	}
}

func TestDeviceRegisterRejectsUnknownFields(t *testing.T) {
	handler := DeviceRegister(&activation.Service{}, nil)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/device/register", bytes.NewReader([]byte(`{"mac_address":"AA:BB:CC:DD:EE:FF","bogus":1}`)))
	resp := httptest.NewRecorder()

	handler.ServeHTTP(resp, req)
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", resp.Code)
	}
}

func TestDeviceStatusRequiresQueryParams(t *testing.T) {
	handler := DeviceStatus(&activation.Service{}, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/device/status?device_key=12345678", nil)
	resp := httptest.NewRecorder()

	handler.ServeHTTP(resp, req)
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", resp.Code)
	}
}

func TestAdminDeviceActivateRejectsBadPlanID(t *testing.T) {
	handler := AdminDeviceActivate(&activation.Service{}, nil)

	req := httptest.NewRequest(http.MethodPost, "/api/admin/v1/device/activate", bytes.NewReader([]byte(`{"device_key":"12345678","plan_id":"nope"}`)))
	req = req.WithContext(middleware.WithSubjectID(req.Context(), uuid.NewString()))
	resp := httptest.NewRecorder()

	handler.ServeHTTP(resp, req)
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", resp.Code)
	}
}

func TestAdminDeviceActivateRequiresPrincipal(t *testing.T) {
	handler := AdminDeviceActivate(&activation.Service{}, nil)

	req := httptest.NewRequest(http.MethodPost, "/api/admin/v1/device/activate", bytes.NewReader([]byte(`{"device_key":"12345678","plan_id":"`+uuid.NewString()+`"}`)))
	resp := httptest.NewRecorder()

	handler.ServeHTTP(resp, req)
	if resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 got %d", resp.Code)
	}
}

func TestAdminDeviceListRejectsBogusStatus(t *testing.T) {
	handler := AdminDeviceList(&activation.Repository{}, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/admin/v1/devices?status=bogus", nil)
	resp := httptest.NewRecorder()

	handler.ServeHTTP(resp, req)
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", resp.Code)
	}
}
