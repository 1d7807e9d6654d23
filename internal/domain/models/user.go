package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// User roles.
const (
	RoleCoach      = "coach"
	RoleClient     = "client"
	RoleAdmin      = "admin"
	RoleSuperAdmin = "superadmin"
)

// User is the internal record for an identity issued by the external
// identity provider. ExternalID holds the provider's subject claim.
//
// NOTE:
//   - Coaching relationships are not embedded on User.
//     Use the coaching_relationships collection to discover a user's coaches or clients.
type User struct {
	ID             primitive.ObjectID  `bson:"_id,omitempty" json:"id"`
	ExternalID     string              `bson:"external_id,omitempty" json:"external_id,omitempty"`
	FullName       string              `bson:"full_name" json:"full_name"`
	Email          string              `bson:"email" json:"email"`
	EmailCI        string              `bson:"email_ci" json:"-"` // case-folded for lookups
	Role           string              `bson:"role" json:"role"`  // coach | client | admin | superadmin
	Status         string              `bson:"status,omitempty" json:"status,omitempty"`
	OrganizationID *primitive.ObjectID `bson:"organization_id,omitempty" json:"organization_id,omitempty"`

	CreatedAt time.Time `bson:"created_at" json:"created_at"`
	UpdatedAt time.Time `bson:"updated_at" json:"updated_at"`
}

// IsAdmin reports whether the user holds an administrative role.
func (u User) IsAdmin() bool {
	return u.Role == RoleAdmin || u.Role == RoleSuperAdmin
}
