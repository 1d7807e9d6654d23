// Package relationshippolicy derives what each participant of a coaching
// relationship may see of the other's data.
//
// Rules:
//   - Only the coach and the member of a relationship hold capabilities
//   - Only active relationships grant anything
//   - In an active relationship every capability is granted to both
//     participants unless the relationship's permissions explicitly deny it
//   - Unknown capability names never grant access
//
// Capabilities is a pure function; it reads nothing and stores nothing.
package relationshippolicy

import (
	"github.com/dalemusser/coachhub/internal/domain/models"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// CapabilitySet is the set of capabilities a requester holds.
type CapabilitySet map[models.Capability]bool

// Has reports whether c is granted.
func (s CapabilitySet) Has(c models.Capability) bool {
	return s[c]
}

// List returns the granted capabilities in stable order.
func (s CapabilitySet) List() []models.Capability {
	out := make([]models.Capability, 0, len(s))
	for _, c := range models.Capabilities {
		if s[c] {
			out = append(out, c)
		}
	}
	return out
}

// Capabilities returns the capabilities requesterID holds over the other
// participant's data in rel.
func Capabilities(rel models.Relationship, requesterID primitive.ObjectID) CapabilitySet {
	set := CapabilitySet{}
	if requesterID.IsZero() || !rel.IsParticipant(requesterID) {
		return set
	}
	if rel.Status != models.StatusActive {
		return set
	}
	for _, c := range models.Capabilities {
		if granted, explicit := rel.Permissions.Lookup(c); explicit && !granted {
			continue
		}
		set[c] = true
	}
	return set
}

// Can reports whether requesterID holds c in rel.
func Can(rel models.Relationship, requesterID primitive.ObjectID, c models.Capability) bool {
	return Capabilities(rel, requesterID).Has(c)
}
