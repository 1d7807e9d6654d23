// internal/app/system/authz/authz.go
package authz

import (
	"net/http"
	"strings"

	"github.com/dalemusser/coachhub/internal/app/lifecycle"
	"github.com/dalemusser/coachhub/internal/app/system/auth"
	"github.com/dalemusser/coachhub/internal/domain/models"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// UserCtx returns the user's role (lowercased), name, Mongo ObjectID, and a found flag.
// If no user is present in context or the user ID is malformed, it returns
// "visitor", "", NilObjectID, false. ok=true means an authenticated user
// with a valid ObjectID.
func UserCtx(r *http.Request) (role string, name string, userID primitive.ObjectID, ok bool) {
	user, ok := auth.CurrentUser(r)
	if !ok {
		return "visitor", "", primitive.NilObjectID, false
	}
	userID, err := primitive.ObjectIDFromHex(user.ID)
	if err != nil {
		// Malformed user ID in session; fail closed.
		return "visitor", "", primitive.NilObjectID, false
	}
	return strings.ToLower(user.Role), user.Name, userID, true
}

// IsAdmin reports whether the current request's user is an admin.
// Superadmins count as admins.
func IsAdmin(r *http.Request) bool {
	role, _, _, ok := UserCtx(r)
	return ok && (role == models.RoleAdmin || role == models.RoleSuperAdmin)
}

// IsCoach reports whether the current request's user is a coach.
func IsCoach(r *http.Request) bool {
	role, _, _, ok := UserCtx(r)
	return ok && role == models.RoleCoach
}

// HasAnyRole reports whether the current request's user has any of the given roles.
// Returns false if no user is present (i.e., not signed in).
func HasAnyRole(r *http.Request, roles ...string) bool {
	role, _, _, ok := UserCtx(r)
	if !ok {
		return false
	}
	for _, want := range roles {
		if role == strings.ToLower(strings.TrimSpace(want)) {
			return true
		}
	}
	return false
}

// Actor converts the signed-in user into the caller the lifecycle engine
// authorizes against.
func Actor(r *http.Request) (lifecycle.Actor, bool) {
	role, _, userID, ok := UserCtx(r)
	if !ok {
		return lifecycle.Actor{}, false
	}
	return lifecycle.Actor{UserID: userID, Role: role}, true
}
