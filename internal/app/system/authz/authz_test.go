package authz_test

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/dalemusser/coachhub/internal/app/system/auth"
	"github.com/dalemusser/coachhub/internal/app/system/authz"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

func requestAs(id, role string) *http.Request {
	req := httptest.NewRequest("GET", "/test", nil)
	return auth.WithTestUser(req, &auth.SessionUser{ID: id, Name: "Test User", Role: role})
}

func TestUserCtx_NoUser(t *testing.T) {
	role, name, id, ok := authz.UserCtx(httptest.NewRequest("GET", "/test", nil))
	if ok {
		t.Fatal("expected ok=false without a user")
	}
	if role != "visitor" || name != "" || !id.IsZero() {
		t.Errorf("unexpected visitor values: %q %q %v", role, name, id)
	}
}

func TestUserCtx_MalformedID(t *testing.T) {
	if _, _, _, ok := authz.UserCtx(requestAs("not-an-object-id", "admin")); ok {
		t.Error("expected malformed session ID to fail closed")
	}
}

func TestUserCtx_LowercasesRole(t *testing.T) {
	oid := primitive.NewObjectID()
	role, name, id, ok := authz.UserCtx(requestAs(oid.Hex(), "Coach"))
	if !ok {
		t.Fatal("expected ok=true")
	}
	if role != "coach" || name != "Test User" || id != oid {
		t.Errorf("got %q %q %v", role, name, id)
	}
}

func TestIsAdmin(t *testing.T) {
	id := primitive.NewObjectID().Hex()
	tests := []struct {
		role string
		want bool
	}{
		{"admin", true},
		{"superadmin", true},
		{"coach", false},
		{"client", false},
	}
	for _, tt := range tests {
		t.Run(tt.role, func(t *testing.T) {
			if got := authz.IsAdmin(requestAs(id, tt.role)); got != tt.want {
				t.Errorf("IsAdmin(%s) = %v, want %v", tt.role, got, tt.want)
			}
		})
	}
	if authz.IsAdmin(httptest.NewRequest("GET", "/", nil)) {
		t.Error("expected anonymous request not to be admin")
	}
}

func TestIsCoach(t *testing.T) {
	id := primitive.NewObjectID().Hex()
	if !authz.IsCoach(requestAs(id, "coach")) {
		t.Error("expected coach")
	}
	if authz.IsCoach(requestAs(id, "client")) {
		t.Error("expected client not to be coach")
	}
}

func TestHasAnyRole(t *testing.T) {
	req := requestAs(primitive.NewObjectID().Hex(), "client")
	if !authz.HasAnyRole(req, "coach", " CLIENT ") {
		t.Error("expected client to match")
	}
	if authz.HasAnyRole(req, "admin") {
		t.Error("expected no match for admin")
	}
	if authz.HasAnyRole(httptest.NewRequest("GET", "/", nil), "client") {
		t.Error("expected anonymous request to match no role")
	}
}

func TestActor(t *testing.T) {
	oid := primitive.NewObjectID()
	a, ok := authz.Actor(requestAs(oid.Hex(), "superadmin"))
	if !ok {
		t.Fatal("expected actor")
	}
	if a.UserID != oid || !a.IsAdmin() {
		t.Errorf("unexpected actor %+v", a)
	}
	if _, ok := authz.Actor(httptest.NewRequest("GET", "/", nil)); ok {
		t.Error("expected no actor for anonymous request")
	}
}
