package server

import (
	"crypto/subtle"
	"log/slog"
	"net/http"
	"time"

	"github.com/maauso/episode-drop/internal/oauth"
)

const (
	accessTokenCookie  = "google_access_token"
	refreshTokenCookie = "google_refresh_token"
	stateCookie        = "oauth_state"

	accessTokenMaxAge  = 60 * 60
	refreshTokenMaxAge = 60 * 60 * 24 * 30
	stateMaxAge        = 10 * 60

	codeOAuthNotConfigured = "OAUTH_NOT_CONFIGURED"
	tokenInstructions      = "Copy the refreshToken value below and add it to your .env.local file as GOOGLE_REFRESH_TOKEN"
)

// AuthURL handles GET /api/auth/url by redirecting to the consent page.
func (h *Handlers) AuthURL(w http.ResponseWriter, r *http.Request) {
	if h.oauth == nil {
		writeError(w, http.StatusInternalServerError, "OAuth client not configured", codeOAuthNotConfigured)
		return
	}

	state := oauth.GenerateState()
	h.setCookie(w, stateCookie, state, stateMaxAge)
	http.Redirect(w, r, h.oauth.AuthCodeURL(state), http.StatusFound)
}

// AuthCallback handles GET /api/auth/callback/google. It exchanges the
// authorization code and stores the tokens in httpOnly cookies.
func (h *Handlers) AuthCallback(w http.ResponseWriter, r *http.Request) {
	if h.oauth == nil {
		writeError(w, http.StatusInternalServerError, "OAuth client not configured", codeOAuthNotConfigured)
		return
	}

	code := r.URL.Query().Get("code")
	if code == "" {
		writeError(w, http.StatusBadRequest, "No code provided", "MISSING_CODE")
		return
	}

	// Only enforced when the flow started at /api/auth/url.
	if c, err := r.Cookie(stateCookie); err == nil {
		got := r.URL.Query().Get("state")
		if subtle.ConstantTimeCompare([]byte(c.Value), []byte(got)) != 1 {
			h.logger.Warn("oauth state mismatch")
			writeError(w, http.StatusBadRequest, "Invalid state", "INVALID_STATE")
			return
		}
		h.setCookie(w, stateCookie, "", -1)
	}

	tok, err := h.oauth.Exchange(r.Context(), code)
	if err != nil {
		h.logger.Error("oauth error",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "Authentication failed", "AUTH_FAILED")
		return
	}

	h.setCookie(w, accessTokenCookie, tok.AccessToken, accessTokenMaxAge)
	if tok.RefreshToken != "" {
		h.setCookie(w, refreshTokenCookie, tok.RefreshToken, refreshTokenMaxAge)
	}

	h.logger.Info("oauth authorization completed",
		slog.Bool("refresh_token_issued", tok.RefreshToken != ""),
	)
	http.Redirect(w, r, "/", http.StatusFound)
}

// GetToken handles GET /api/auth/get-token by echoing the refresh token
// stored by the callback so the operator can configure it.
func (h *Handlers) GetToken(w http.ResponseWriter, r *http.Request) {
	refresh, err := r.Cookie(refreshTokenCookie)
	if err != nil || refresh.Value == "" {
		writeError(w, http.StatusUnauthorized,
			"No refresh token found. Please authorize Google Drive first.", "NO_REFRESH_TOKEN")
		return
	}

	resp := TokenResponse{
		RefreshToken: refresh.Value,
		Instructions: tokenInstructions,
	}
	if access, err := r.Cookie(accessTokenCookie); err == nil {
		resp.AccessToken = access.Value
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handlers) setCookie(w http.ResponseWriter, name, value string, maxAge int) {
	c := &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   h.cookieSecure,
		SameSite: http.SameSiteLaxMode,
	}
	if maxAge > 0 {
		c.Expires = h.now().Add(time.Duration(maxAge) * time.Second)
	}
	http.SetCookie(w, c)
}
