package http

import (
	"errors"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/cgraph/gatekeeper/core"
	"github.com/cgraph/gatekeeper/service"
)

// AuthHandlers contains HTTP handlers for auth endpoints
type AuthHandlers struct {
	authService *service.AuthService
}

// NewAuthHandlers creates new auth handlers
func NewAuthHandlers(authService *service.AuthService) *AuthHandlers {
	return &AuthHandlers{authService: authService}
}

type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	SessionToken string `json:"session_token,omitempty"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int64  `json:"expires_in"`
}

// Register handles password registration.
func (h *AuthHandlers) Register(c *gin.Context) {
	var req struct {
		Email    string `json:"email" binding:"required"`
		Password string `json:"password" binding:"required,min=8"`
		Username string `json:"username" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}

	user, err := h.authService.Register(c.Request.Context(), req.Email, req.Password, req.Username)
	if err != nil {
		h.writeError(c, err)
		return
	}

	h.issueSession(c, core.Principal{UserID: user.ID, Email: user.Email}, http.StatusCreated)
}

// Login handles password authentication.
func (h *AuthHandlers) Login(c *gin.Context) {
	var req struct {
		Email    string `json:"email" binding:"required"`
		Password string `json:"password" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}

	principal, err := h.authService.Authenticate(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		h.writeError(c, err)
		return
	}

	h.issueSession(c, principal, http.StatusOK)
}

// WalletChallenge issues (or re-serves) the signing challenge for an address.
func (h *AuthHandlers) WalletChallenge(c *gin.Context) {
	var req struct {
		Address string `json:"address" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}

	challenge, err := h.authService.IssueChallenge(c.Request.Context(), req.Address)
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"nonce":   challenge.Nonce,
		"message": h.authService.SignMessage(challenge.Nonce),
	})
}

// WalletVerify checks a signed challenge and logs the wallet owner in.
func (h *AuthHandlers) WalletVerify(c *gin.Context) {
	var req struct {
		Address   string `json:"address" binding:"required"`
		Signature string `json:"signature" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}

	principal, err := h.authService.VerifyWallet(c.Request.Context(), req.Address, req.Signature)
	if err != nil {
		h.writeError(c, err)
		return
	}

	h.issueSession(c, principal, http.StatusOK)
}

// issueSession mints a token pair plus a persisted session handle and writes
// the combined response.
func (h *AuthHandlers) issueSession(c *gin.Context, principal core.Principal, status int) {
	pair, err := h.authService.MintTokens(principal)
	if err != nil {
		h.writeError(c, err)
		return
	}

	_, sessionToken, err := h.authService.CreateSession(c.Request.Context(), principal.UserID, service.SessionContext{
		UserAgent: c.Request.UserAgent(),
		IP:        clientIP(c),
	})
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(status, tokenResponse{
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
		SessionToken: sessionToken,
		TokenType:    "Bearer",
		ExpiresIn:    int64(time.Until(pair.AccessExpiry).Seconds()),
	})
}

// Refresh rotates a refresh token.
func (h *AuthHandlers) Refresh(c *gin.Context) {
	var req struct {
		RefreshToken string `json:"refresh_token" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}

	pair, err := h.authService.RefreshTokens(c.Request.Context(), req.RefreshToken)
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, tokenResponse{
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
		TokenType:    "Bearer",
		ExpiresIn:    int64(time.Until(pair.AccessExpiry).Seconds()),
	})
}

// Logout retires a refresh token.
func (h *AuthHandlers) Logout(c *gin.Context) {
	var req struct {
		RefreshToken string `json:"refresh_token" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}

	if err := h.authService.Logout(c.Request.Context(), req.RefreshToken); err != nil {
		if errors.Is(err, core.ErrTokenExpired) {
			// An expired refresh token is as logged out as it gets.
			c.JSON(http.StatusOK, gin.H{"message": "Logged out"})
			return
		}
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Logged out"})
}

// TOTPSetup returns a candidate secret, provisioning URI and backup codes.
func (h *AuthHandlers) TOTPSetup(c *gin.Context) {
	setup, err := h.authService.SetupTOTP(c.Request.Context(), currentUserID(c))
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"secret":       setup.Secret,
		"uri":          setup.URI,
		"backup_codes": setup.BackupCodes,
	})
}

// TOTPEnable confirms the candidate secret with a live code.
func (h *AuthHandlers) TOTPEnable(c *gin.Context) {
	var req struct {
		Secret      string   `json:"secret" binding:"required"`
		Code        string   `json:"code" binding:"required"`
		BackupCodes []string `json:"backup_codes" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}

	if err := h.authService.EnableTOTP(c.Request.Context(), currentUserID(c), req.Secret, req.Code, req.BackupCodes); err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"enabled": true})
}

// TOTPVerify steps up trust with a live code.
func (h *AuthHandlers) TOTPVerify(c *gin.Context) {
	var req struct {
		Code string `json:"code" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}

	if err := h.authService.VerifyTOTP(c.Request.Context(), currentUserID(c), req.Code); err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"verified": true})
}

// TOTPDisable turns the second factor off with a live or backup code.
func (h *AuthHandlers) TOTPDisable(c *gin.Context) {
	var req struct {
		Code string `json:"code" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}

	remaining, err := h.authService.DisableTOTP(c.Request.Context(), currentUserID(c), req.Code)
	if err != nil {
		h.writeError(c, err)
		return
	}

	resp := gin.H{"disabled": true}
	if remaining >= 0 {
		resp["backup_codes_remaining"] = remaining
	}
	c.JSON(http.StatusOK, resp)
}

// BackupCodesRegenerate replaces the whole backup-code set.
func (h *AuthHandlers) BackupCodesRegenerate(c *gin.Context) {
	var req struct {
		Code string `json:"code" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}

	codes, err := h.authService.RegenerateBackupCodes(c.Request.Context(), currentUserID(c), req.Code)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"backup_codes": codes})
}

// BackupCodeUse consumes a single backup code.
func (h *AuthHandlers) BackupCodeUse(c *gin.Context) {
	var req struct {
		Code string `json:"code" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}

	remaining, err := h.authService.UseBackupCode(c.Request.Context(), currentUserID(c), req.Code)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"remaining": remaining})
}

// Sessions lists the caller's live sessions, most recently active first.
func (h *AuthHandlers) Sessions(c *gin.Context) {
	sessions, err := h.authService.ListSessions(c.Request.Context(), currentUserID(c))
	if err != nil {
		h.writeError(c, err)
		return
	}

	out := make([]gin.H, 0, len(sessions))
	for _, s := range sessions {
		out = append(out, gin.H{
			"id":             s.ID,
			"user_agent":     s.UserAgent,
			"ip":             s.IP,
			"created_at":     s.CreatedAt,
			"last_active_at": s.LastActiveAt,
			"expires_at":     s.ExpiresAt,
		})
	}
	c.JSON(http.StatusOK, gin.H{"sessions": out})
}

// RevokeSession revokes one of the caller's sessions.
func (h *AuthHandlers) RevokeSession(c *gin.Context) {
	sessionID := c.Param("id")
	if _, err := uuid.Parse(sessionID); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid session id"})
		return
	}

	if err := h.authService.RevokeSession(c.Request.Context(), currentUserID(c), sessionID); err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"revoked": true})
}

// RevokeAllSessions revokes every live session for the caller.
func (h *AuthHandlers) RevokeAllSessions(c *gin.Context) {
	count, err := h.authService.RevokeAllSessions(c.Request.Context(), currentUserID(c), "user_requested")
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"revoked": count})
}

// Me returns the authenticated user's id.
func (h *AuthHandlers) Me(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"user_id": currentUserID(c)})
}

// writeError maps domain errors to status codes without leaking internals.
func (h *AuthHandlers) writeError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, core.ErrInvalidCredentials):
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid credentials"})
	case errors.Is(err, core.ErrInvalidSignature):
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid signature"})
	case errors.Is(err, core.ErrChallengeNotFound):
		c.JSON(http.StatusBadRequest, gin.H{"error": "Challenge not found"})
	case errors.Is(err, core.ErrTokenExpired):
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Token expired"})
	case errors.Is(err, core.ErrTokenWrongType), errors.Is(err, core.ErrTokenMalformed):
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid token"})
	case errors.Is(err, core.ErrTokenRevoked):
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Token has been revoked"})
	case errors.Is(err, core.ErrTOTPNotEnabled):
		c.JSON(http.StatusBadRequest, gin.H{"error": "Second factor not enabled"})
	case errors.Is(err, core.ErrTOTPAlreadyEnabled):
		c.JSON(http.StatusConflict, gin.H{"error": "Second factor already enabled"})
	case errors.Is(err, core.ErrInvalidCode):
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid code"})
	case errors.Is(err, core.ErrNoBackupCodes):
		c.JSON(http.StatusGone, gin.H{"error": "No backup codes remaining"})
	case errors.Is(err, core.ErrEmailTaken):
		c.JSON(http.StatusConflict, gin.H{"error": "Email already registered"})
	case errors.Is(err, core.ErrSessionNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "Session not found"})
	case errors.Is(err, core.ErrUserNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "User not found"})
	case errors.Is(err, core.ErrUserBanned):
		c.JSON(http.StatusForbidden, gin.H{"error": "Account suspended"})
	case errors.Is(err, core.ErrRateLimited):
		c.JSON(http.StatusTooManyRequests, gin.H{"error": "Too many requests"})
	default:
		// Infrastructure fault: log the detail, return an opaque error.
		correlationID := uuid.New().String()
		log.Printf("internal error [%s] %s: %v", correlationID, c.FullPath(), err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":          "Internal error",
			"correlation_id": correlationID,
		})
	}
}

// clientIP prefers the first hop of an X-Forwarded-For chain so deployments
// behind a reverse proxy record the real client, then falls back to the
// socket address.
func clientIP(c *gin.Context) string {
	if xff := c.GetHeader("X-Forwarded-For"); xff != "" {
		first := strings.TrimSpace(strings.SplitN(xff, ",", 2)[0])
		if first != "" {
			return first
		}
	}
	return c.ClientIP()
}
