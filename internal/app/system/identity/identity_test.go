package identity_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	userstore "github.com/dalemusser/coachhub/internal/app/store/users"
	"github.com/dalemusser/coachhub/internal/app/system/identity"
	"github.com/dalemusser/coachhub/internal/domain/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

type memUsers struct {
	byID     map[primitive.ObjectID]*models.User
	upserted []userstore.Identity
	failWith error
}

func newMemUsers(users ...*models.User) *memUsers {
	m := &memUsers{byID: map[primitive.ObjectID]*models.User{}}
	for _, u := range users {
		m.byID[u.ID] = u
	}
	return m
}

func (m *memUsers) GetByID(_ context.Context, id primitive.ObjectID) (*models.User, error) {
	if m.failWith != nil {
		return nil, m.failWith
	}
	if u, ok := m.byID[id]; ok {
		return u, nil
	}
	return nil, userstore.ErrNotFound
}

func (m *memUsers) GetByEmail(_ context.Context, email string) (*models.User, error) {
	if m.failWith != nil {
		return nil, m.failWith
	}
	for _, u := range m.byID {
		if u.Email == email {
			return u, nil
		}
	}
	return nil, userstore.ErrNotFound
}

func (m *memUsers) GetByExternalID(_ context.Context, subject string) (*models.User, error) {
	for _, u := range m.byID {
		if u.ExternalID == subject {
			return u, nil
		}
	}
	return nil, userstore.ErrNotFound
}

func (m *memUsers) UpsertFromIdentity(_ context.Context, id userstore.Identity) (*models.User, error) {
	m.upserted = append(m.upserted, id)
	u := &models.User{ID: primitive.NewObjectID(), ExternalID: id.Subject, Email: id.Email, FullName: id.FullName, Role: models.RoleClient}
	m.byID[u.ID] = u
	return u, nil
}

type stubLookup struct {
	ident *userstore.Identity
	err   error
	calls int
}

func (s *stubLookup) LookupEmail(context.Context, string) (*userstore.Identity, error) {
	s.calls++
	return s.ident, s.err
}

func TestResolver_Local(t *testing.T) {
	u := &models.User{ID: primitive.NewObjectID(), ExternalID: "idp|1", Email: "m1@example.com"}
	r := identity.NewResolver(newMemUsers(u), nil, zap.NewNop())
	ctx := context.Background()

	got, err := r.ResolveByEmail(ctx, "  M1@Example.com ")
	require.NoError(t, err)
	assert.Equal(t, u.ID, got.ID)

	got, err = r.ResolveByID(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, u.Email, got.Email)

	got, err = r.ResolveBySubject(ctx, "idp|1")
	require.NoError(t, err)
	assert.Equal(t, u.ID, got.ID)
}

func TestResolver_NotFound(t *testing.T) {
	r := identity.NewResolver(newMemUsers(), nil, zap.NewNop())
	ctx := context.Background()

	_, err := r.ResolveByEmail(ctx, "nobody@example.com")
	assert.ErrorIs(t, err, identity.ErrNotFound)
	_, err = r.ResolveByEmail(ctx, "   ")
	assert.ErrorIs(t, err, identity.ErrNotFound)
	_, err = r.ResolveByID(ctx, primitive.NewObjectID())
	assert.ErrorIs(t, err, identity.ErrNotFound)
	_, err = r.ResolveByID(ctx, primitive.NilObjectID)
	assert.ErrorIs(t, err, identity.ErrNotFound)
	_, err = r.ResolveBySubject(ctx, "")
	assert.ErrorIs(t, err, identity.ErrNotFound)
}

func TestResolver_StoreErrorPassesThrough(t *testing.T) {
	users := newMemUsers()
	users.failWith = errors.New("connection reset")
	r := identity.NewResolver(users, &stubLookup{}, zap.NewNop())

	_, err := r.ResolveByEmail(context.Background(), "m1@example.com")
	require.Error(t, err)
	assert.NotErrorIs(t, err, identity.ErrNotFound)
}

func TestResolver_DirectoryFallback(t *testing.T) {
	users := newMemUsers()
	dir := &stubLookup{ident: &userstore.Identity{Subject: "idp|9", Email: "new@example.com", FullName: "New Person"}}
	r := identity.NewResolver(users, dir, zap.NewNop())

	got, err := r.ResolveByEmail(context.Background(), "new@example.com")
	require.NoError(t, err)
	assert.Equal(t, "idp|9", got.ExternalID)
	require.Len(t, users.upserted, 1)

	// A second lookup is served locally.
	_, err = r.ResolveByEmail(context.Background(), "new@example.com")
	require.NoError(t, err)
	assert.Equal(t, 1, dir.calls)
}

func TestResolver_DirectoryMiss(t *testing.T) {
	r := identity.NewResolver(newMemUsers(), &stubLookup{err: identity.ErrNotFound}, zap.NewNop())
	_, err := r.ResolveByEmail(context.Background(), "new@example.com")
	assert.ErrorIs(t, err, identity.ErrNotFound)
}

func newDirectoryServer(t *testing.T, users []map[string]interface{}) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/token", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"access_token": "dir-token",
			"token_type":   "bearer",
			"expires_in":   3600,
		})
	})
	mux.HandleFunc("/api/users", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer dir-token" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		email := r.URL.Query().Get("email")
		var out []map[string]interface{}
		for _, u := range users {
			if u["email"] == email {
				out = append(out, u)
			}
		}
		if len(out) == 0 {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(out)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestDirectory_LookupEmail(t *testing.T) {
	srv := newDirectoryServer(t, []map[string]interface{}{
		{"sub": "idp|1", "email": "verified@example.com", "email_verified": true, "name": "Verified", "role": "client"},
		{"sub": "idp|2", "email": "unverified@example.com", "email_verified": false},
	})
	dir := identity.NewDirectory(context.Background(), identity.DirectoryConfig{
		BaseURL:  srv.URL + "/api",
		TokenURL: srv.URL + "/token",
		ClientID: "coachhub",
	})
	ctx := context.Background()

	ident, err := dir.LookupEmail(ctx, "Verified@Example.com")
	require.NoError(t, err)
	assert.Equal(t, "idp|1", ident.Subject)
	assert.Equal(t, "Verified", ident.FullName)

	_, err = dir.LookupEmail(ctx, "unverified@example.com")
	assert.ErrorIs(t, err, identity.ErrNotFound)

	_, err = dir.LookupEmail(ctx, "missing@example.com")
	assert.ErrorIs(t, err, identity.ErrNotFound)
}

func TestDirectoryConfig_Enabled(t *testing.T) {
	assert.False(t, identity.DirectoryConfig{}.Enabled())
	assert.True(t, identity.DirectoryConfig{BaseURL: "https://idp", TokenURL: "https://idp/token", ClientID: "x"}.Enabled())
}
