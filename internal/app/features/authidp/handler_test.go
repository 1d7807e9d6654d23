package authidp_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/dalemusser/coachhub/internal/app/features/authidp"
	userstore "github.com/dalemusser/coachhub/internal/app/store/users"
	"github.com/dalemusser/coachhub/internal/app/system/auth"
	"github.com/dalemusser/coachhub/internal/domain/models"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

type fakeUsers struct {
	got  userstore.Identity
	user *models.User
	err  error
}

func (f *fakeUsers) UpsertFromIdentity(_ context.Context, id userstore.Identity) (*models.User, error) {
	f.got = id
	if f.err != nil {
		return nil, f.err
	}
	if f.user == nil {
		f.user = &models.User{ID: primitive.NewObjectID(), FullName: id.FullName, Email: id.Email, Role: id.Role}
	}
	return f.user, nil
}

type fakeClaimer struct {
	called primitive.ObjectID
	err    error
}

func (f *fakeClaimer) ClaimInvitations(_ context.Context, userID primitive.ObjectID) ([]models.Relationship, error) {
	f.called = userID
	return nil, f.err
}

// newIdP serves the token and userinfo endpoints.
func newIdP(t *testing.T, verified bool) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/oauth/token", func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil || r.Form.Get("code") != "good-code" {
			http.Error(w, `{"error":"invalid_grant"}`, http.StatusBadRequest)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token":"tok","token_type":"Bearer","expires_in":3600}`))
	})
	mux.HandleFunc("/userinfo", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer tok" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"sub":            "idp|42",
			"email":          "new.member@example.com",
			"email_verified": verified,
			"name":           "New Member",
			"role":           "client",
		})
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

type harness struct {
	h       *authidp.Handler
	sm      *auth.SessionManager
	users   *fakeUsers
	claimer *fakeClaimer
}

func newHarness(t *testing.T, issuer string) *harness {
	t.Helper()
	logger := zap.NewNop()
	sm, err := auth.NewSessionManager("test-session-key-must-be-32-chars-long", "test-session", "", time.Hour, false, logger)
	if err != nil {
		t.Fatalf("NewSessionManager failed: %v", err)
	}
	users := &fakeUsers{}
	claimer := &fakeClaimer{}
	cfg := authidp.ConfigFromIssuer(issuer, "client-id", "client-secret", "http://localhost:8080", false)
	h := authidp.NewHandler(cfg, sm, users, claimer, []byte("state-key-must-be-32-bytes-long!!"), logger)
	return &harness{h: h, sm: sm, users: users, claimer: claimer}
}

// login runs ServeLogin and returns the state parameter and cookie.
func (hs *harness) login(t *testing.T) (string, *http.Cookie) {
	t.Helper()
	rec := httptest.NewRecorder()
	hs.h.ServeLogin(rec, httptest.NewRequest("GET", "/auth/login", nil))
	if rec.Code != http.StatusTemporaryRedirect {
		t.Fatalf("login status: got %d", rec.Code)
	}
	loc, err := url.Parse(rec.Header().Get("Location"))
	if err != nil {
		t.Fatalf("parse location: %v", err)
	}
	state := loc.Query().Get("state")
	if state == "" {
		t.Fatal("expected state in redirect")
	}
	for _, c := range rec.Result().Cookies() {
		if c.Name == "coachhub_oauth_state" {
			return state, c
		}
	}
	t.Fatal("expected state cookie")
	return "", nil
}

func callback(hs *harness, query string, cookie *http.Cookie) *httptest.ResponseRecorder {
	req := httptest.NewRequest("GET", "/auth/callback?"+query, nil)
	if cookie != nil {
		req.AddCookie(cookie)
	}
	rec := httptest.NewRecorder()
	hs.h.ServeCallback(rec, req)
	return rec
}

func TestIsConfigured(t *testing.T) {
	hs := newHarness(t, "https://idp.example")
	if !hs.h.IsConfigured() {
		t.Error("expected configured handler")
	}
	empty := authidp.NewHandler(authidp.Config{}, hs.sm, hs.users, nil, []byte("k"), zap.NewNop())
	if empty.IsConfigured() {
		t.Error("expected unconfigured handler")
	}
	rec := httptest.NewRecorder()
	empty.ServeLogin(rec, httptest.NewRequest("GET", "/auth/login", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("unconfigured login: got %d", rec.Code)
	}
}

func TestCallback_SignsInAndClaims(t *testing.T) {
	idp := newIdP(t, true)
	hs := newHarness(t, idp.URL)
	state, cookie := hs.login(t)

	rec := callback(hs, "code=good-code&state="+url.QueryEscape(state), cookie)

	if rec.Code != http.StatusSeeOther {
		t.Fatalf("callback status: got %d (%s)", rec.Code, rec.Body.String())
	}
	if loc := rec.Header().Get("Location"); loc != "/relationships" {
		t.Errorf("redirect: got %q", loc)
	}
	if hs.users.got.Subject != "idp|42" || hs.users.got.Email != "new.member@example.com" || hs.users.got.Role != "client" {
		t.Errorf("identity: %+v", hs.users.got)
	}
	if hs.claimer.called != hs.users.user.ID {
		t.Error("expected invitations to be claimed for the signed-in user")
	}

	// The session cookie now authenticates the user.
	var got *auth.SessionUser
	next := httptest.NewRequest("GET", "/auth/me", nil)
	for _, c := range rec.Result().Cookies() {
		if c.Name == "test-session" {
			next.AddCookie(c)
		}
	}
	hs.sm.LoadSessionUser(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got, _ = auth.CurrentUser(r)
	})).ServeHTTP(httptest.NewRecorder(), next)
	if got == nil || got.ID != hs.users.user.ID.Hex() {
		t.Errorf("session user: %+v", got)
	}
}

func TestCallback_ClaimFailureStillSignsIn(t *testing.T) {
	idp := newIdP(t, true)
	hs := newHarness(t, idp.URL)
	hs.claimer.err = errors.New("storage down")
	state, cookie := hs.login(t)

	rec := callback(hs, "code=good-code&state="+url.QueryEscape(state), cookie)
	if rec.Code != http.StatusSeeOther {
		t.Errorf("callback status: got %d", rec.Code)
	}
}

func TestCallback_Rejections(t *testing.T) {
	idp := newIdP(t, true)
	tests := []struct {
		name      string
		query     func(state string) string
		useCookie bool
		want      int
	}{
		{"provider error", func(string) string { return "error=access_denied" }, true, http.StatusUnauthorized},
		{"no cookie", func(s string) string { return "code=good-code&state=" + url.QueryEscape(s) }, false, http.StatusBadRequest},
		{"state mismatch", func(string) string { return "code=good-code&state=forged" }, true, http.StatusBadRequest},
		{"missing code", func(s string) string { return "state=" + url.QueryEscape(s) }, true, http.StatusBadRequest},
		{"bad code", func(s string) string { return "code=bad&state=" + url.QueryEscape(s) }, true, http.StatusBadGateway},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			hs := newHarness(t, idp.URL)
			state, cookie := hs.login(t)
			if !tt.useCookie {
				cookie = nil
			}
			rec := callback(hs, tt.query(state), cookie)
			if rec.Code != tt.want {
				t.Errorf("status: got %d, want %d", rec.Code, tt.want)
			}
			if hs.users.got.Subject != "" {
				t.Error("user must not be linked on a rejected callback")
			}
		})
	}
}

func TestCallback_UnverifiedEmail(t *testing.T) {
	idp := newIdP(t, false)
	hs := newHarness(t, idp.URL)
	state, cookie := hs.login(t)

	rec := callback(hs, "code=good-code&state="+url.QueryEscape(state), cookie)
	if rec.Code != http.StatusForbidden {
		t.Errorf("status: got %d", rec.Code)
	}
}

func TestCallback_DuplicateEmail(t *testing.T) {
	idp := newIdP(t, true)
	hs := newHarness(t, idp.URL)
	hs.users.err = userstore.ErrDuplicateEmail
	state, cookie := hs.login(t)

	rec := callback(hs, "code=good-code&state="+url.QueryEscape(state), cookie)
	if rec.Code != http.StatusConflict {
		t.Errorf("status: got %d", rec.Code)
	}
}

func TestServeMe(t *testing.T) {
	hs := newHarness(t, "https://idp.example")

	rec := httptest.NewRecorder()
	hs.h.ServeMe(rec, httptest.NewRequest("GET", "/auth/me", nil))
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("anonymous: got %d", rec.Code)
	}

	req := auth.WithTestUser(httptest.NewRequest("GET", "/auth/me", nil), &auth.SessionUser{ID: "abc", Email: "c1@example.com", Role: "coach"})
	rec = httptest.NewRecorder()
	hs.h.ServeMe(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("signed in: got %d", rec.Code)
	}
	var body map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body["email"] != "c1@example.com" || body["role"] != "coach" {
		t.Errorf("body: %v", body)
	}
}

func TestServeLogout(t *testing.T) {
	hs := newHarness(t, "https://idp.example")
	rec := httptest.NewRecorder()
	hs.h.ServeLogout(rec, httptest.NewRequest("POST", "/auth/logout", nil))
	if rec.Code != http.StatusNoContent {
		t.Errorf("status: got %d", rec.Code)
	}
}
