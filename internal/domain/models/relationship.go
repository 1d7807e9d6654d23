package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// RelationshipStatus is the lifecycle state of a coach/member pairing.
type RelationshipStatus string

const (
	StatusPending  RelationshipStatus = "pending"
	StatusActive   RelationshipStatus = "active"
	StatusInactive RelationshipStatus = "inactive"
	StatusDeclined RelationshipStatus = "declined"
	StatusDeleted  RelationshipStatus = "deleted"
)

// Valid reports whether s is one of the canonical statuses.
func (s RelationshipStatus) Valid() bool {
	switch s {
	case StatusPending, StatusActive, StatusInactive, StatusDeclined, StatusDeleted:
		return true
	}
	return false
}

// Live reports whether s counts toward the one-live-relationship-per-pair rule.
func (s RelationshipStatus) Live() bool {
	return s == StatusPending || s == StatusActive
}

// Relationship is the authoritative pairing between a coach and a member
// (client). CoachID and MemberID never change after creation.
//
// Soft-delete fields are set together with Status == StatusDeleted and are
// nil for every other status.
type Relationship struct {
	ID       primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	CoachID  primitive.ObjectID `bson:"coach_id" json:"coach_id"`
	MemberID primitive.ObjectID `bson:"member_id" json:"member_id"`

	// Display/filtering only; never consulted for authorization.
	CoachOrganizationID  *primitive.ObjectID `bson:"coach_organization_id,omitempty" json:"coach_organization_id,omitempty"`
	MemberOrganizationID *primitive.ObjectID `bson:"member_organization_id,omitempty" json:"member_organization_id,omitempty"`

	Status    RelationshipStatus `bson:"status" json:"status"`
	StartDate time.Time          `bson:"start_date" json:"start_date"`
	EndDate   *time.Time         `bson:"end_date,omitempty" json:"end_date,omitempty"`

	Permissions Grants `bson:"permissions" json:"permissions"`

	InvitedByEmail       string     `bson:"invited_by_email,omitempty" json:"invited_by_email,omitempty"`
	InvitationAcceptedAt *time.Time `bson:"invitation_accepted_at,omitempty" json:"invitation_accepted_at,omitempty"`

	UpgradedFromFreemium bool       `bson:"upgraded_from_freemium,omitempty" json:"upgraded_from_freemium,omitempty"`
	UpgradeDate          *time.Time `bson:"upgrade_date,omitempty" json:"upgrade_date,omitempty"`

	DeletedAt      *time.Time          `bson:"deleted_at,omitempty" json:"deleted_at,omitempty"`
	DeletedBy      *primitive.ObjectID `bson:"deleted_by,omitempty" json:"deleted_by,omitempty"`
	DeletionReason string              `bson:"deletion_reason,omitempty" json:"deletion_reason,omitempty"`

	CreatedAt time.Time `bson:"created_at" json:"created_at"`
	UpdatedAt time.Time `bson:"updated_at" json:"updated_at"`
}

// IsParticipant reports whether userID is the coach or the member.
func (r Relationship) IsParticipant(userID primitive.ObjectID) bool {
	return userID == r.CoachID || userID == r.MemberID
}

// Consistent reports whether the soft-delete fields agree with Status.
func (r Relationship) Consistent() bool {
	if r.Status == StatusDeleted {
		return r.DeletedAt != nil && r.DeletedBy != nil
	}
	return r.DeletedAt == nil && r.DeletedBy == nil
}
