package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Invitation statuses.
const (
	InvitationPending = "pending"
	InvitationClaimed = "claimed"
	InvitationRevoked = "revoked"
)

// Invitation holds a coach's connection request to an email address that
// has no account yet. It becomes a pending Relationship when the invited
// person signs up and their invitations are claimed.
type Invitation struct {
	ID             primitive.ObjectID  `bson:"_id,omitempty" json:"id"`
	CoachID        primitive.ObjectID  `bson:"coach_id" json:"coach_id"`
	Email          string              `bson:"email" json:"email"`
	EmailCI        string              `bson:"email_ci" json:"-"`
	Token          string              `bson:"token" json:"-"`
	Status         string              `bson:"status" json:"status"` // pending | claimed | revoked
	RelationshipID *primitive.ObjectID `bson:"relationship_id,omitempty" json:"relationship_id,omitempty"`
	ExpiresAt      time.Time           `bson:"expires_at" json:"expires_at"`
	ClaimedAt      *time.Time          `bson:"claimed_at,omitempty" json:"claimed_at,omitempty"`
	CreatedAt      time.Time           `bson:"created_at" json:"created_at"`
}
