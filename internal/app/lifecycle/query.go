package lifecycle

import (
	"context"

	"github.com/dalemusser/coachhub/internal/domain/models"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// UserRelationships splits a user's live relationships by status.
type UserRelationships struct {
	Pending []models.Relationship `json:"pending"`
	Active  []models.Relationship `json:"active"`
}

// GetUserRelationships returns the pending and active relationships in
// which userID is either the coach or the member, newest first.
func (e *Engine) GetUserRelationships(ctx context.Context, userID primitive.ObjectID) (UserRelationships, error) {
	rels, err := e.rels.ListForUser(ctx, userID, models.StatusPending, models.StatusActive)
	if err != nil {
		return UserRelationships{}, storage("list relationships", err)
	}
	out := UserRelationships{
		Pending: []models.Relationship{},
		Active:  []models.Relationship{},
	}
	for _, r := range rels {
		switch r.Status {
		case models.StatusPending:
			out.Pending = append(out.Pending, r)
		case models.StatusActive:
			out.Active = append(out.Active, r)
		}
	}
	return out, nil
}

// Get returns a relationship visible to actor: participants and
// administrators only.
func (e *Engine) Get(ctx context.Context, id primitive.ObjectID, actor Actor) (models.Relationship, error) {
	rel, err := e.load(ctx, id)
	if err != nil {
		return models.Relationship{}, err
	}
	if !rel.IsParticipant(actor.UserID) && !actor.IsAdmin() {
		return models.Relationship{}, unauthorized("not a participant")
	}
	return rel, nil
}
