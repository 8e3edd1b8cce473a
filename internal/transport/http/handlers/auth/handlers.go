package authhandler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"
	"unicode"

	"github.com/go-chi/chi/v5"
	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"

	"pms/internal/domain/auth"
	"pms/internal/platform/config"
	cryptoutil "pms/internal/platform/crypto"
	"pms/internal/transport/http/api"
	"pms/internal/transport/http/middleware"
	"pms/internal/transport/http/shared"
)

const totpIssuer = "PMS"

type Handler struct {
	Service *auth.Service
	Cfg     config.Config
	Crypto  *cryptoutil.Service
}

func NewHandler(service *auth.Service, cfg config.Config, crypto *cryptoutil.Service) *Handler {
	return &Handler{Service: service, Cfg: cfg, Crypto: crypto}
}

func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/auth", func(r chi.Router) {
		r.Post("/login", h.handleLogin)
		r.Post("/refresh", h.handleRefresh)
		r.Post("/logout", h.handleLogout)
		r.Get("/me", h.handleMe)
		r.Post("/change-password", h.handleChangePassword)
		r.Post("/mfa/setup", h.handleMFASetup)
		r.Post("/mfa/verify", h.handleMFAVerify)
		r.Post("/mfa/disable", h.handleMFADisable)
	})
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	MFACode  string `json:"mfaCode"`
}

type refreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

type changePasswordRequest struct {
	CurrentPassword string `json:"currentPassword"`
	NewPassword     string `json:"newPassword"`
}

type mfaCodeRequest struct {
	Code string `json:"code"`
}

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	var payload loginRequest
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		api.Fail(w, http.StatusBadRequest, "invalid_payload", "invalid request payload", middleware.GetRequestID(r.Context()))
		return
	}

	v := shared.NewValidator()
	v.Required("email", payload.Email, "email is required")
	v.Required("password", payload.Password, "password is required")
	if v.Reject(w, middleware.GetRequestID(r.Context())) {
		return
	}

	account, err := h.Service.FindActiveUserByEmail(r.Context(), payload.Email, auth.UserStatusActive)
	if err != nil {
		api.Fail(w, http.StatusUnauthorized, "invalid_credentials", "invalid credentials", middleware.GetRequestID(r.Context()))
		return
	}
	if err := auth.CheckPassword(account.Password, payload.Password); err != nil {
		api.Fail(w, http.StatusUnauthorized, "invalid_credentials", "invalid credentials", middleware.GetRequestID(r.Context()))
		return
	}

	if account.MFAEnabled {
		if payload.MFACode == "" {
			api.Fail(w, http.StatusUnauthorized, "mfa_required", "mfa code required", middleware.GetRequestID(r.Context()))
			return
		}
		secret, err := h.mfaSecret(account.MFASecretEn)
		if err != nil || secret == "" || !totp.Validate(payload.MFACode, secret) {
			api.Fail(w, http.StatusUnauthorized, "mfa_invalid", "invalid mfa code", middleware.GetRequestID(r.Context()))
			return
		}
	}

	access, refresh, err := h.issueSession(r.Context(), account)
	if err != nil {
		slog.Error("session issue failed", "userId", account.ID, "err", err)
		api.Fail(w, http.StatusInternalServerError, "session_error", "failed to start session", middleware.GetRequestID(r.Context()))
		return
	}

	if err := h.Service.UpdateLastLogin(r.Context(), account.ID); err != nil {
		slog.Warn("update last_login failed", "userId", account.ID, "err", err)
	}

	api.Success(w, map[string]any{
		"token":        access,
		"refreshToken": refresh,
		"user": map[string]any{
			"id":        account.ID,
			"role":      account.RoleName,
			"roleLevel": account.RoleLevel,
		},
	}, middleware.GetRequestID(r.Context()))
}

func (h *Handler) handleRefresh(w http.ResponseWriter, r *http.Request) {
	var payload refreshRequest
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil || payload.RefreshToken == "" {
		api.Fail(w, http.StatusBadRequest, "invalid_payload", "refresh token required", middleware.GetRequestID(r.Context()))
		return
	}

	claims, err := auth.ParseToken(h.Cfg.JWTSecret, payload.RefreshToken)
	if err != nil {
		api.Fail(w, http.StatusUnauthorized, "unauthorized", "session expired", middleware.GetRequestID(r.Context()))
		return
	}

	oldHash := auth.HashToken(payload.RefreshToken)
	valid, err := h.Service.SessionValid(r.Context(), claims.UserID, oldHash)
	if err != nil {
		slog.Error("session lookup failed", "userId", claims.UserID, "err", err)
		api.Fail(w, http.StatusInternalServerError, "session_error", "failed to check session", middleware.GetRequestID(r.Context()))
		return
	}
	if !valid {
		api.Fail(w, http.StatusUnauthorized, "unauthorized", "session expired", middleware.GetRequestID(r.Context()))
		return
	}

	// Claims are rebuilt from the current account row so role changes
	// take effect on rotation, not only on the next login.
	account, err := h.Service.FindUserByID(r.Context(), claims.UserID)
	if err != nil {
		api.Fail(w, http.StatusUnauthorized, "unauthorized", "session expired", middleware.GetRequestID(r.Context()))
		return
	}

	newClaims := auth.Claims{UserID: account.ID, RoleID: account.RoleID, RoleName: account.RoleName, RoleLevel: account.RoleLevel}
	access, err := auth.GenerateToken(h.Cfg.JWTSecret, newClaims, h.Cfg.AccessTokenTTL)
	if err != nil {
		api.Fail(w, http.StatusInternalServerError, "token_error", "failed to issue token", middleware.GetRequestID(r.Context()))
		return
	}
	refresh, err := auth.GenerateToken(h.Cfg.JWTSecret, newClaims, h.Cfg.RefreshTokenTTL)
	if err != nil {
		api.Fail(w, http.StatusInternalServerError, "token_error", "failed to issue token", middleware.GetRequestID(r.Context()))
		return
	}
	expires := time.Now().Add(h.Cfg.RefreshTokenTTL)
	if err := h.Service.RotateSession(r.Context(), account.ID, oldHash, auth.HashToken(refresh), expires); err != nil {
		api.Fail(w, http.StatusInternalServerError, "session_error", "failed to rotate session", middleware.GetRequestID(r.Context()))
		return
	}

	api.Success(w, map[string]string{"token": access, "refreshToken": refresh}, middleware.GetRequestID(r.Context()))
}

// handleLogout revokes the presented refresh token. The response is the
// same whether or not a live session matched, so repeated calls stay
// harmless.
func (h *Handler) handleLogout(w http.ResponseWriter, r *http.Request) {
	var payload refreshRequest
	if err := json.NewDecoder(r.Body).Decode(&payload); err == nil && payload.RefreshToken != "" {
		if claims, err := auth.ParseToken(h.Cfg.JWTSecret, payload.RefreshToken); err == nil {
			if err := h.Service.RevokeSession(r.Context(), claims.UserID, auth.HashToken(payload.RefreshToken)); err != nil {
				slog.Warn("logout session revoke failed", "userId", claims.UserID, "err", err)
			}
		}
	}
	api.Success(w, map[string]string{"status": "logged_out"}, middleware.GetRequestID(r.Context()))
}

func (h *Handler) handleMe(w http.ResponseWriter, r *http.Request) {
	user, ok := middleware.GetUser(r.Context())
	if !ok {
		api.Fail(w, http.StatusUnauthorized, "unauthorized", "authentication required", middleware.GetRequestID(r.Context()))
		return
	}

	profile, err := h.Service.GetProfile(r.Context(), user.UserID)
	if err != nil {
		api.Fail(w, http.StatusUnauthorized, "unauthorized", "authentication required", middleware.GetRequestID(r.Context()))
		return
	}

	api.Success(w, profile, middleware.GetRequestID(r.Context()))
}

func (h *Handler) handleChangePassword(w http.ResponseWriter, r *http.Request) {
	user, ok := middleware.GetUser(r.Context())
	if !ok {
		api.Fail(w, http.StatusUnauthorized, "unauthorized", "authentication required", middleware.GetRequestID(r.Context()))
		return
	}

	var payload changePasswordRequest
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		api.Fail(w, http.StatusBadRequest, "invalid_payload", "invalid request payload", middleware.GetRequestID(r.Context()))
		return
	}

	v := shared.NewValidator()
	v.Required("currentPassword", payload.CurrentPassword, "current password is required")
	v.Required("newPassword", payload.NewPassword, "new password is required")
	if payload.NewPassword != "" {
		if err := validateNewPassword(payload.NewPassword); err != nil {
			v.Add("newPassword", err.Error())
		}
	}
	if v.Reject(w, middleware.GetRequestID(r.Context())) {
		return
	}

	account, err := h.Service.FindUserByID(r.Context(), user.UserID)
	if err != nil {
		api.Fail(w, http.StatusUnauthorized, "unauthorized", "authentication required", middleware.GetRequestID(r.Context()))
		return
	}
	if err := auth.CheckPassword(account.Password, payload.CurrentPassword); err != nil {
		api.Fail(w, http.StatusBadRequest, "invalid_credentials", "current password is incorrect", middleware.GetRequestID(r.Context()))
		return
	}

	hash, err := auth.HashPassword(payload.NewPassword)
	if err != nil {
		api.Fail(w, http.StatusInternalServerError, "hash_error", "failed to update password", middleware.GetRequestID(r.Context()))
		return
	}
	if err := h.Service.UpdateUserPassword(r.Context(), user.UserID, hash); err != nil {
		api.Fail(w, http.StatusInternalServerError, "update_failed", "failed to update password", middleware.GetRequestID(r.Context()))
		return
	}

	api.Success(w, map[string]string{"status": "password_changed"}, middleware.GetRequestID(r.Context()))
}

func (h *Handler) handleMFASetup(w http.ResponseWriter, r *http.Request) {
	user, ok := middleware.GetUser(r.Context())
	if !ok {
		api.Fail(w, http.StatusUnauthorized, "unauthorized", "authentication required", middleware.GetRequestID(r.Context()))
		return
	}
	if h.Crypto == nil || !h.Crypto.Configured() {
		api.Fail(w, http.StatusBadRequest, "mfa_unavailable", "mfa requires encryption key", middleware.GetRequestID(r.Context()))
		return
	}

	profile, err := h.Service.GetProfile(r.Context(), user.UserID)
	if err != nil {
		api.Fail(w, http.StatusUnauthorized, "unauthorized", "authentication required", middleware.GetRequestID(r.Context()))
		return
	}

	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      totpIssuer,
		AccountName: profile.Email,
		Period:      30,
		Digits:      otp.DigitsSix,
	})
	if err != nil {
		api.Fail(w, http.StatusInternalServerError, "mfa_setup_failed", "failed to generate mfa secret", middleware.GetRequestID(r.Context()))
		return
	}
	secret := key.Secret()
	encrypted, err := h.Crypto.EncryptString(secret)
	if err != nil {
		api.Fail(w, http.StatusInternalServerError, "mfa_setup_failed", "failed to store mfa secret", middleware.GetRequestID(r.Context()))
		return
	}
	// UpdateMFASecret also flips mfa_enabled off; the new secret only
	// counts once a code is verified.
	if err := h.Service.UpdateMFASecret(r.Context(), user.UserID, encrypted); err != nil {
		api.Fail(w, http.StatusInternalServerError, "mfa_setup_failed", "failed to store mfa secret", middleware.GetRequestID(r.Context()))
		return
	}

	api.Success(w, map[string]string{"secret": secret, "otpauthUrl": key.URL()}, middleware.GetRequestID(r.Context()))
}

func (h *Handler) handleMFAVerify(w http.ResponseWriter, r *http.Request) {
	user, ok := h.mfaPrecheck(w, r)
	if !ok {
		return
	}

	var payload mfaCodeRequest
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		api.Fail(w, http.StatusBadRequest, "invalid_payload", "invalid request payload", middleware.GetRequestID(r.Context()))
		return
	}

	if !h.verifyMFACode(w, r, user.UserID, payload.Code) {
		return
	}

	if err := h.Service.SetMFAEnabled(r.Context(), user.UserID, true); err != nil {
		api.Fail(w, http.StatusInternalServerError, "mfa_enable_failed", "failed to enable mfa", middleware.GetRequestID(r.Context()))
		return
	}
	api.Success(w, map[string]string{"status": "enabled"}, middleware.GetRequestID(r.Context()))
}

func (h *Handler) handleMFADisable(w http.ResponseWriter, r *http.Request) {
	user, ok := h.mfaPrecheck(w, r)
	if !ok {
		return
	}

	var payload mfaCodeRequest
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		api.Fail(w, http.StatusBadRequest, "invalid_payload", "invalid request payload", middleware.GetRequestID(r.Context()))
		return
	}

	if !h.verifyMFACode(w, r, user.UserID, payload.Code) {
		return
	}

	if err := h.Service.SetMFAEnabled(r.Context(), user.UserID, false); err != nil {
		api.Fail(w, http.StatusInternalServerError, "mfa_disable_failed", "failed to disable mfa", middleware.GetRequestID(r.Context()))
		return
	}
	api.Success(w, map[string]string{"status": "disabled"}, middleware.GetRequestID(r.Context()))
}

// mfaPrecheck rejects unauthenticated callers and deployments without an
// encryption key. The second return reports whether the request may
// proceed; a rejection has already been written when it is false.
func (h *Handler) mfaPrecheck(w http.ResponseWriter, r *http.Request) (auth.UserContext, bool) {
	user, ok := middleware.GetUser(r.Context())
	if !ok {
		api.Fail(w, http.StatusUnauthorized, "unauthorized", "authentication required", middleware.GetRequestID(r.Context()))
		return auth.UserContext{}, false
	}
	if h.Crypto == nil || !h.Crypto.Configured() {
		api.Fail(w, http.StatusBadRequest, "mfa_unavailable", "mfa requires encryption key", middleware.GetRequestID(r.Context()))
		return auth.UserContext{}, false
	}
	return user, true
}

func (h *Handler) verifyMFACode(w http.ResponseWriter, r *http.Request, userID, code string) bool {
	secretEnc, err := h.Service.GetMFASecret(r.Context(), userID)
	if err != nil || len(secretEnc) == 0 {
		api.Fail(w, http.StatusBadRequest, "mfa_missing", "mfa setup required", middleware.GetRequestID(r.Context()))
		return false
	}
	secret, err := h.Crypto.DecryptString(secretEnc)
	if err != nil {
		api.Fail(w, http.StatusBadRequest, "mfa_invalid", "invalid mfa secret", middleware.GetRequestID(r.Context()))
		return false
	}
	if !totp.Validate(code, secret) {
		api.Fail(w, http.StatusBadRequest, "mfa_invalid", "invalid mfa code", middleware.GetRequestID(r.Context()))
		return false
	}
	return true
}

// issueSession mints the access/refresh pair and stores the hashed
// refresh token so it can later be rotated or revoked.
func (h *Handler) issueSession(ctx context.Context, account auth.AuthUser) (string, string, error) {
	claims := auth.Claims{UserID: account.ID, RoleID: account.RoleID, RoleName: account.RoleName, RoleLevel: account.RoleLevel}
	access, err := auth.GenerateToken(h.Cfg.JWTSecret, claims, h.Cfg.AccessTokenTTL)
	if err != nil {
		return "", "", fmt.Errorf("issue access token: %w", err)
	}
	refresh, err := auth.GenerateToken(h.Cfg.JWTSecret, claims, h.Cfg.RefreshTokenTTL)
	if err != nil {
		return "", "", fmt.Errorf("issue refresh token: %w", err)
	}
	expires := time.Now().Add(h.Cfg.RefreshTokenTTL)
	if err := h.Service.CreateSession(ctx, account.ID, auth.HashToken(refresh), expires); err != nil {
		return "", "", fmt.Errorf("store session: %w", err)
	}
	return access, refresh, nil
}

// mfaSecret unseals the stored TOTP secret. Deployments without an
// encryption key store it raw, so the raw bytes are the fallback.
func (h *Handler) mfaSecret(secretEnc []byte) (string, error) {
	if h.Crypto != nil && h.Crypto.Configured() {
		return h.Crypto.DecryptString(secretEnc)
	}
	return string(secretEnc), nil
}

func validateNewPassword(password string) error {
	if len(password) < 8 {
		return errors.New("must be at least 8 characters")
	}
	var hasUpper, hasLower, hasDigit bool
	for _, c := range password {
		switch {
		case unicode.IsUpper(c):
			hasUpper = true
		case unicode.IsLower(c):
			hasLower = true
		case unicode.IsDigit(c):
			hasDigit = true
		}
	}
	if !hasUpper || !hasLower || !hasDigit {
		return errors.New("must mix upper and lower case letters and a number")
	}
	return nil
}
