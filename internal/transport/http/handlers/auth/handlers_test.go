package authhandler

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"pms/internal/platform/config"
	cryptoutil "pms/internal/platform/crypto"
)

type envelope struct {
	Success bool `json:"success"`
	Error   *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func TestValidateNewPassword(t *testing.T) {
	tests := []struct {
		name     string
		password string
		wantErr  bool
	}{
		{
			name:     "valid password",
			password: "Stronger123",
		},
		{
			name:     "too short",
			password: "S1hort",
			wantErr:  true,
		},
		{
			name:     "missing uppercase",
			password: "longpassword1",
			wantErr:  true,
		},
		{
			name:     "missing lowercase",
			password: "LONGPASSWORD1",
			wantErr:  true,
		},
		{
			name:     "missing number",
			password: "LongPassword",
			wantErr:  true,
		},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			err := validateNewPassword(tc.password)
			if tc.wantErr && err == nil {
				t.Fatal("expected validation error")
			}
			if !tc.wantErr && err != nil {
				t.Fatalf("unexpected validation error: %v", err)
			}
		})
	}
}

// The refresh endpoint must reject malformed requests before any session
// lookup happens; the handler here has no service wired on purpose.
func TestHandleRefreshRejectsBadTokens(t *testing.T) {
	h := NewHandler(nil, config.Config{JWTSecret: "test-secret"}, nil)

	tests := []struct {
		name     string
		body     string
		wantCode int
		wantErr  string
	}{
		{
			name:     "empty body",
			body:     "",
			wantCode: http.StatusBadRequest,
			wantErr:  "invalid_payload",
		},
		{
			name:     "missing token",
			body:     "{}",
			wantCode: http.StatusBadRequest,
			wantErr:  "invalid_payload",
		},
		{
			name:     "garbage token",
			body:     `{"refreshToken":"not-a-jwt"}`,
			wantCode: http.StatusUnauthorized,
			wantErr:  "unauthorized",
		},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/refresh", strings.NewReader(tc.body))
			rec := httptest.NewRecorder()
			h.handleRefresh(rec, req)

			if rec.Code != tc.wantCode {
				t.Fatalf("expected status %d, got %d", tc.wantCode, rec.Code)
			}
			var env envelope
			if err := json.Unmarshal(rec.Body.Bytes(), &env); err != nil {
				t.Fatalf("decode response: %v", err)
			}
			if env.Error == nil || env.Error.Code != tc.wantErr {
				t.Fatalf("expected error code %q, got %+v", tc.wantErr, env.Error)
			}
		})
	}
}

func TestHandleLoginValidatesPayload(t *testing.T) {
	h := NewHandler(nil, config.Config{JWTSecret: "test-secret"}, nil)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", strings.NewReader(`{"email":"  "}`))
	rec := httptest.NewRecorder()
	h.handleLogin(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	var env envelope
	if err := json.Unmarshal(rec.Body.Bytes(), &env); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if env.Error == nil || env.Error.Code != "validation_error" {
		t.Fatalf("expected validation_error, got %+v", env.Error)
	}
}

func TestMFASecretUnsealing(t *testing.T) {
	// No key configured: the stored bytes are the secret itself.
	plain := &Handler{}
	got, err := plain.mfaSecret([]byte("raw-totp-seed"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "raw-totp-seed" {
		t.Fatalf("expected raw passthrough, got %q", got)
	}

	svc, err := cryptoutil.New(strings.Repeat("ab", 32))
	if err != nil {
		t.Fatalf("crypto init: %v", err)
	}
	sealed, err := svc.EncryptString("JBSWY3DPEHPK3PXP")
	if err != nil {
		t.Fatalf("encrypt: %v", err)
	}
	h := &Handler{Crypto: svc}
	got, err = h.mfaSecret(sealed)
	if err != nil {
		t.Fatalf("decrypt: %v", err)
	}
	if got != "JBSWY3DPEHPK3PXP" {
		t.Fatalf("expected round-trip secret, got %q", got)
	}
}
