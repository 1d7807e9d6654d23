// internal/app/features/authidp/handler.go
package authidp

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	apierrors "github.com/dalemusser/coachhub/internal/app/features/errors"
	userstore "github.com/dalemusser/coachhub/internal/app/store/users"
	"github.com/dalemusser/coachhub/internal/app/system/auth"
	"github.com/dalemusser/coachhub/internal/app/system/limits"
	"github.com/dalemusser/coachhub/internal/app/system/ratelimit"
	"github.com/dalemusser/coachhub/internal/app/system/timeouts"
	"github.com/dalemusser/coachhub/internal/domain/models"
	"github.com/dalemusser/waffle/pantry/urlutil"
	"github.com/gorilla/securecookie"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
	"golang.org/x/oauth2"
)

const (
	stateCookieName = "coachhub_oauth_state"
	stateTTL        = 10 * time.Minute
	defaultReturn   = "/relationships"
)

// Config describes the identity provider's OAuth 2.0 endpoints and this
// application's client registration.
type Config struct {
	AuthURL      string
	TokenURL     string
	UserInfoURL  string
	ClientID     string
	ClientSecret string
	RedirectURL  string // e.g. "https://coachhub.example/auth/callback"
	Scopes       []string
	Secure       bool // mark the state cookie Secure
}

// ConfigFromIssuer derives the endpoint URLs from the provider's base URL.
func ConfigFromIssuer(issuer, clientID, clientSecret, baseURL string, secure bool) Config {
	issuer = strings.TrimRight(issuer, "/")
	return Config{
		AuthURL:      issuer + "/oauth/authorize",
		TokenURL:     issuer + "/oauth/token",
		UserInfoURL:  issuer + "/userinfo",
		ClientID:     clientID,
		ClientSecret: clientSecret,
		RedirectURL:  strings.TrimRight(baseURL, "/") + "/auth/callback",
		Scopes:       []string{"openid", "email", "profile"},
		Secure:       secure,
	}
}

// Users links provider identities to local users.
type Users interface {
	UpsertFromIdentity(ctx context.Context, id userstore.Identity) (*models.User, error)
}

// Claimer converts pending invitations for a newly signed-in user.
type Claimer interface {
	ClaimInvitations(ctx context.Context, userID primitive.ObjectID) ([]models.Relationship, error)
}

// Handler handles identity-provider sign-in.
type Handler struct {
	Log        *zap.Logger
	SessionMgr *auth.SessionManager
	Users      Users
	Claimer    Claimer

	// LoginLimit caps sign-in attempts per client IP. Nil means unlimited.
	LoginLimit *ratelimit.Limiter

	cfg   Config
	state *securecookie.SecureCookie
}

// NewHandler creates a sign-in handler. stateKey signs the short-lived
// state cookie; it should be at least 32 bytes.
func NewHandler(cfg Config, sessionMgr *auth.SessionManager, users Users, claimer Claimer, stateKey []byte, logger *zap.Logger) *Handler {
	sc := securecookie.New(stateKey, nil)
	sc.MaxAge(int(stateTTL.Seconds()))
	return &Handler{
		Log:        logger,
		SessionMgr: sessionMgr,
		Users:      users,
		Claimer:    claimer,
		cfg:        cfg,
		state:      sc,
	}
}

// IsConfigured returns true if a client registration is present.
func (h *Handler) IsConfigured() bool {
	return h.cfg.ClientID != "" && h.cfg.ClientSecret != "" && h.cfg.AuthURL != ""
}

func (h *Handler) oauth2Config() *oauth2.Config {
	return &oauth2.Config{
		ClientID:     h.cfg.ClientID,
		ClientSecret: h.cfg.ClientSecret,
		RedirectURL:  h.cfg.RedirectURL,
		Scopes:       h.cfg.Scopes,
		Endpoint: oauth2.Endpoint{
			AuthURL:   h.cfg.AuthURL,
			TokenURL:  h.cfg.TokenURL,
			AuthStyle: oauth2.AuthStyleInParams,
		},
	}
}

// oauthState is what the state cookie carries between login and callback.
type oauthState struct {
	State  string
	Return string
}

/*─────────────────────────────────────────────────────────────────────────────*
| GET /auth/login                                                              |
| Redirects to the provider's consent screen.                                  |
*─────────────────────────────────────────────────────────────────────────────*/

func (h *Handler) ServeLogin(w http.ResponseWriter, r *http.Request) {
	if !h.IsConfigured() {
		h.Log.Warn("identity provider not configured")
		apierrors.Write(w, http.StatusServiceUnavailable, "idp_not_configured", "sign-in is not configured")
		return
	}

	state, err := generateState()
	if err != nil {
		h.Log.Error("failed to generate OAuth state", zap.Error(err))
		apierrors.Write(w, http.StatusInternalServerError, "internal", "internal error")
		return
	}
	returnURL := r.URL.Query().Get("return")

	encoded, err := h.state.Encode(stateCookieName, oauthState{State: state, Return: returnURL})
	if err != nil {
		h.Log.Error("failed to encode OAuth state", zap.Error(err))
		apierrors.Write(w, http.StatusInternalServerError, "internal", "internal error")
		return
	}
	http.SetCookie(w, &http.Cookie{
		Name:     stateCookieName,
		Value:    encoded,
		Path:     "/auth",
		MaxAge:   int(stateTTL.Seconds()),
		HttpOnly: true,
		Secure:   h.cfg.Secure,
		SameSite: http.SameSiteLaxMode,
	})

	url := h.oauth2Config().AuthCodeURL(state)
	h.Log.Debug("initiating OAuth flow",
		zap.String("return_url", returnURL))

	http.Redirect(w, r, url, http.StatusTemporaryRedirect)
}

/*─────────────────────────────────────────────────────────────────────────────*
| GET /auth/callback                                                           |
| Exchanges the code, links the local user, signs in, claims invitations.      |
*─────────────────────────────────────────────────────────────────────────────*/

func (h *Handler) ServeCallback(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	if errParam := q.Get("error"); errParam != "" {
		h.Log.Warn("OAuth error from provider",
			zap.String("error", errParam),
			zap.String("description", q.Get("error_description")))
		apierrors.Write(w, http.StatusUnauthorized, "idp_denied", errParam)
		return
	}

	st, ok := h.readState(r)
	h.clearState(w)
	if !ok || q.Get("state") == "" || q.Get("state") != st.State {
		h.Log.Warn("invalid or expired OAuth state")
		apierrors.Write(w, http.StatusBadRequest, "invalid_state", "sign-in state is invalid or expired")
		return
	}
	code := q.Get("code")
	if code == "" {
		apierrors.Write(w, http.StatusBadRequest, "invalid_code", "missing authorization code")
		return
	}

	ctx, cancel := timeouts.WithTimeout(r.Context(), timeouts.Medium(), h.Log, "oauth callback")
	defer cancel()

	token, err := h.oauth2Config().Exchange(ctx, code)
	if err != nil {
		h.Log.Error("failed to exchange OAuth code", zap.Error(err))
		apierrors.Write(w, http.StatusBadGateway, "token_exchange", "could not complete sign-in")
		return
	}

	info, err := h.fetchUserInfo(ctx, token)
	if err != nil {
		h.Log.Error("failed to fetch user info", zap.Error(err))
		apierrors.Write(w, http.StatusBadGateway, "user_info", "could not complete sign-in")
		return
	}
	if !info.EmailVerified {
		h.Log.Info("sign-in rejected: unverified email", zap.String("subject", info.Subject))
		apierrors.Write(w, http.StatusForbidden, "email_unverified", "email address is not verified")
		return
	}

	user, err := h.Users.UpsertFromIdentity(ctx, userstore.Identity{
		Subject:  info.Subject,
		Email:    info.Email,
		FullName: info.Name,
		Role:     info.Role,
	})
	if err != nil {
		if errors.Is(err, userstore.ErrDuplicateEmail) {
			apierrors.Write(w, http.StatusConflict, "email_in_use", "email is linked to another identity")
			return
		}
		h.Log.Error("failed to link user", zap.Error(err))
		apierrors.Write(w, http.StatusServiceUnavailable, "storage_unavailable", "storage temporarily unavailable")
		return
	}

	if err := h.SessionMgr.SignIn(w, r, auth.SessionUser{
		ID:    user.ID.Hex(),
		Name:  user.FullName,
		Email: user.Email,
		Role:  user.Role,
	}); err != nil {
		h.Log.Error("save session failed", zap.Error(err), zap.String("user_id", user.ID.Hex()))
		apierrors.Write(w, http.StatusInternalServerError, "session", "could not save session")
		return
	}

	if h.Claimer != nil {
		claimed, err := h.Claimer.ClaimInvitations(ctx, user.ID)
		if err != nil {
			h.Log.Warn("claiming invitations failed", zap.Error(err), zap.String("user_id", user.ID.Hex()))
		} else if len(claimed) > 0 {
			h.Log.Info("invitations claimed",
				zap.String("user_id", user.ID.Hex()),
				zap.Int("count", len(claimed)))
		}
	}

	h.Log.Info("user signed in",
		zap.String("user_id", user.ID.Hex()),
		zap.String("role", user.Role))

	http.Redirect(w, r, urlutil.SafeReturn(st.Return, "", defaultReturn), http.StatusSeeOther)
}

/*─────────────────────────────────────────────────────────────────────────────*
| POST /auth/logout, GET /auth/me                                              |
*─────────────────────────────────────────────────────────────────────────────*/

func (h *Handler) ServeLogout(w http.ResponseWriter, r *http.Request) {
	if err := h.SessionMgr.SignOut(w, r); err != nil {
		h.Log.Warn("sign out failed", zap.Error(err))
	}
	w.WriteHeader(http.StatusNoContent)
}

// meResponse is the GET /auth/me body.
type meResponse struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
	Role  string `json:"role"`
}

func (h *Handler) ServeMe(w http.ResponseWriter, r *http.Request) {
	u, ok := auth.CurrentUser(r)
	if !ok {
		apierrors.Unauthorized(w)
		return
	}
	apierrors.JSON(w, http.StatusOK, meResponse{ID: u.ID, Name: u.Name, Email: u.Email, Role: u.Role})
}

/*─────────────────────────────────────────────────────────────────────────────*
| Helpers                                                                      |
*─────────────────────────────────────────────────────────────────────────────*/

// userInfo is the provider's userinfo document.
type userInfo struct {
	Subject       string `json:"sub"`
	Email         string `json:"email"`
	EmailVerified bool   `json:"email_verified"`
	Name          string `json:"name"`
	Role          string `json:"role"`
}

func (h *Handler) fetchUserInfo(ctx context.Context, token *oauth2.Token) (*userInfo, error) {
	client := h.oauth2Config().Client(ctx, token)

	resp, err := client.Get(h.cfg.UserInfoURL)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch user info: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}

	var info userInfo
	if err := json.NewDecoder(io.LimitReader(resp.Body, limits.MaxUpstreamResponseSize)).Decode(&info); err != nil {
		return nil, fmt.Errorf("failed to decode user info: %w", err)
	}
	if info.Subject == "" || info.Email == "" {
		return nil, errors.New("user info missing sub or email")
	}
	return &info, nil
}

func (h *Handler) readState(r *http.Request) (oauthState, bool) {
	c, err := r.Cookie(stateCookieName)
	if err != nil {
		return oauthState{}, false
	}
	var st oauthState
	if err := h.state.Decode(stateCookieName, c.Value, &st); err != nil {
		h.Log.Debug("state cookie rejected", zap.Error(err))
		return oauthState{}, false
	}
	return st, true
}

func (h *Handler) clearState(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     stateCookieName,
		Value:    "",
		Path:     "/auth",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.cfg.Secure,
		SameSite: http.SameSiteLaxMode,
	})
}

// generateState creates a cryptographically secure random state string.
func generateState() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.URLEncoding.EncodeToString(b), nil
}
