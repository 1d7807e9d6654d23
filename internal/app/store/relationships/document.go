package relationshipstore

import (
	"strings"
	"time"

	"github.com/dalemusser/coachhub/internal/domain/models"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// legacyPendingByCoach is the pre-rename spelling of the pending status.
const legacyPendingByCoach = "pending_by_coach"

// document is the stored shape, including the legacy aliases written by
// older clients (coach_user_id/client_user_id, pending_by_coach and an
// untyped permissions map). It only exists at the store boundary;
// normalize turns it into the canonical models.Relationship.
type document struct {
	ID primitive.ObjectID `bson:"_id"`

	CoachID      *primitive.ObjectID `bson:"coach_id,omitempty"`
	MemberID     *primitive.ObjectID `bson:"member_id,omitempty"`
	CoachUserID  *primitive.ObjectID `bson:"coach_user_id,omitempty"`
	ClientUserID *primitive.ObjectID `bson:"client_user_id,omitempty"`
	LiveKey      string              `bson:"live_key,omitempty"`

	CoachOrganizationID  *primitive.ObjectID `bson:"coach_organization_id,omitempty"`
	MemberOrganizationID *primitive.ObjectID `bson:"member_organization_id,omitempty"`

	Status    string     `bson:"status"`
	StartDate time.Time  `bson:"start_date"`
	EndDate   *time.Time `bson:"end_date,omitempty"`

	Permissions bson.M `bson:"permissions,omitempty"`

	InvitedByEmail       string     `bson:"invited_by_email,omitempty"`
	InvitationAcceptedAt *time.Time `bson:"invitation_accepted_at,omitempty"`

	UpgradedFromFreemium bool       `bson:"upgraded_from_freemium,omitempty"`
	UpgradeDate          *time.Time `bson:"upgrade_date,omitempty"`

	DeletedAt      *time.Time          `bson:"deleted_at,omitempty"`
	DeletedBy      *primitive.ObjectID `bson:"deleted_by,omitempty"`
	DeletionReason string              `bson:"deletion_reason,omitempty"`

	CreatedAt time.Time `bson:"created_at"`
	UpdatedAt time.Time `bson:"updated_at"`
}

// toDocument converts a canonical relationship into its stored shape.
// Legacy alias fields are never written.
func toDocument(r models.Relationship) document {
	coach, member := r.CoachID, r.MemberID
	d := document{
		ID:                   r.ID,
		CoachID:              &coach,
		MemberID:             &member,
		CoachOrganizationID:  r.CoachOrganizationID,
		MemberOrganizationID: r.MemberOrganizationID,
		Status:               string(r.Status),
		StartDate:            r.StartDate,
		EndDate:              r.EndDate,
		Permissions:          bson.M{},
		InvitedByEmail:       r.InvitedByEmail,
		InvitationAcceptedAt: r.InvitationAcceptedAt,
		UpgradedFromFreemium: r.UpgradedFromFreemium,
		UpgradeDate:          r.UpgradeDate,
		DeletedAt:            r.DeletedAt,
		DeletedBy:            r.DeletedBy,
		DeletionReason:       r.DeletionReason,
		CreatedAt:            r.CreatedAt,
		UpdatedAt:            r.UpdatedAt,
	}
	for c, v := range r.Permissions {
		d.Permissions[string(c)] = v
	}
	if r.Status.Live() {
		d.LiveKey = LiveKey(r.CoachID, r.MemberID)
	}
	return d
}

// normalize resolves legacy aliases and returns the canonical shape.
// It fails with ErrInconsistent when the soft-delete fields disagree with
// the status, so callers never observe a half-deleted relationship.
func (d document) normalize() (models.Relationship, error) {
	r := models.Relationship{
		ID:                   d.ID,
		CoachOrganizationID:  d.CoachOrganizationID,
		MemberOrganizationID: d.MemberOrganizationID,
		Status:               NormalizeStatus(d.Status),
		StartDate:            d.StartDate,
		EndDate:              d.EndDate,
		Permissions:          NormalizeGrants(d.Permissions),
		InvitedByEmail:       d.InvitedByEmail,
		InvitationAcceptedAt: d.InvitationAcceptedAt,
		UpgradedFromFreemium: d.UpgradedFromFreemium,
		UpgradeDate:          d.UpgradeDate,
		DeletedAt:            d.DeletedAt,
		DeletedBy:            d.DeletedBy,
		DeletionReason:       d.DeletionReason,
		CreatedAt:            d.CreatedAt,
		UpdatedAt:            d.UpdatedAt,
	}

	switch {
	case d.CoachID != nil:
		r.CoachID = *d.CoachID
	case d.CoachUserID != nil:
		r.CoachID = *d.CoachUserID
	}
	switch {
	case d.MemberID != nil:
		r.MemberID = *d.MemberID
	case d.ClientUserID != nil:
		r.MemberID = *d.ClientUserID
	}

	if !r.Consistent() {
		return models.Relationship{}, ErrInconsistent
	}
	return r, nil
}

// NormalizeStatus maps stored status strings, including legacy aliases,
// to the canonical status.
func NormalizeStatus(s string) models.RelationshipStatus {
	v := strings.ToLower(strings.TrimSpace(s))
	if v == legacyPendingByCoach {
		return models.StatusPending
	}
	return models.RelationshipStatus(v)
}

// NormalizeGrants converts an untyped stored permissions map into the
// closed capability set. Unknown capability names are dropped. Values may
// be booleans, "true"/"false"-style strings, or {granted: bool} documents.
func NormalizeGrants(raw bson.M) models.Grants {
	out := models.Grants{}
	for name, v := range raw {
		c, ok := models.ParseCapability(strings.ToLower(strings.TrimSpace(name)))
		if !ok {
			continue
		}
		if granted, ok := grantValue(v); ok {
			out[c] = granted
		}
	}
	return out
}

func grantValue(v interface{}) (bool, bool) {
	switch t := v.(type) {
	case bool:
		return t, true
	case string:
		switch strings.ToLower(strings.TrimSpace(t)) {
		case "true", "granted", "allow", "yes":
			return true, true
		case "false", "denied", "deny", "no":
			return false, true
		}
	case bson.M:
		return grantValue(t["granted"])
	case bson.D:
		for _, e := range t {
			if e.Key == "granted" {
				return grantValue(e.Value)
			}
		}
	}
	return false, false
}

// The filters below accept both canonical and legacy field spellings.

func coachFilter(id primitive.ObjectID) bson.M {
	return bson.M{"$or": []bson.M{{"coach_id": id}, {"coach_user_id": id}}}
}

func memberFilter(id primitive.ObjectID) bson.M {
	return bson.M{"$or": []bson.M{{"member_id": id}, {"client_user_id": id}}}
}

func participantFilter(id primitive.ObjectID) bson.M {
	return bson.M{"$or": []bson.M{
		{"coach_id": id},
		{"member_id": id},
		{"coach_user_id": id},
		{"client_user_id": id},
	}}
}

func statusFilter(statuses ...models.RelationshipStatus) bson.M {
	values := make([]string, 0, len(statuses)+1)
	for _, s := range statuses {
		values = append(values, string(s))
		if s == models.StatusPending {
			values = append(values, legacyPendingByCoach)
		}
	}
	return bson.M{"status": bson.M{"$in": values}}
}
