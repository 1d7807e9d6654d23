package lifecycle

import (
	"context"

	"github.com/dalemusser/coachhub/internal/app/store/audit"
	relationshipstore "github.com/dalemusser/coachhub/internal/app/store/relationships"
	"github.com/dalemusser/coachhub/internal/app/system/auditlog"
	"github.com/dalemusser/coachhub/internal/app/system/notify"
	"github.com/dalemusser/coachhub/internal/domain/models"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// RespondToRequest lets the invited member accept (active) or decline a
// pending relationship. Of two concurrent responses exactly one commits;
// the other gets ErrInvalidState.
func (e *Engine) RespondToRequest(ctx context.Context, id, responderID primitive.ObjectID, newStatus models.RelationshipStatus) (models.Relationship, error) {
	rel, err := e.load(ctx, id)
	if err != nil {
		return models.Relationship{}, err
	}
	if newStatus != models.StatusActive && newStatus != models.StatusDeclined {
		return models.Relationship{}, invalidState("cannot respond with status %q", newStatus)
	}
	if responderID != rel.MemberID {
		return models.Relationship{}, unauthorized("only the invited member can respond")
	}
	if rel.Status != models.StatusPending {
		return models.Relationship{}, invalidState("relationship is %s, not pending", rel.Status)
	}

	now := e.now()
	t := relationshipstore.Transition{To: newStatus, At: now}
	kind := notify.KindConnectionAccepted
	if newStatus == models.StatusActive {
		t.InvitationAcceptedAt = &now
	} else {
		t.EndDate = &now
		kind = notify.KindConnectionDeclined
	}

	updated, err := e.transition(ctx, rel, t)
	if err != nil {
		return models.Relationship{}, err
	}

	e.record(ctx, audit.Entry{
		Operation:   audit.OpUpdate,
		EntityType:  audit.EntityRelationship,
		EntityID:    rel.ID.Hex(),
		ActorID:     ptr(responderID),
		BeforeState: auditlog.Snapshot(rel),
		AfterState:  auditlog.Snapshot(updated),
		Message:     "connection request " + string(newStatus),
	})

	payload := map[string]string{notify.KeyRelationshipID: rel.ID.Hex()}
	if member, err := e.identities.ResolveByID(ctx, rel.MemberID); err == nil {
		payload[notify.KeyFromName] = displayName(member)
	}
	e.notify(rel.CoachID, kind, payload)
	return updated, nil
}

// Deactivate ends an active relationship. Either participant may do this.
func (e *Engine) Deactivate(ctx context.Context, id primitive.ObjectID, actor Actor) (models.Relationship, error) {
	rel, err := e.load(ctx, id)
	if err != nil {
		return models.Relationship{}, err
	}
	if !rel.IsParticipant(actor.UserID) {
		return models.Relationship{}, unauthorized("only a participant can deactivate")
	}
	if rel.Status != models.StatusActive {
		return models.Relationship{}, invalidState("relationship is %s, not active", rel.Status)
	}

	now := e.now()
	updated, err := e.transition(ctx, rel, relationshipstore.Transition{
		To:      models.StatusInactive,
		At:      now,
		EndDate: &now,
	})
	if err != nil {
		return models.Relationship{}, err
	}

	e.record(ctx, audit.Entry{
		Operation:   audit.OpUpdate,
		EntityType:  audit.EntityRelationship,
		EntityID:    rel.ID.Hex(),
		ActorID:     ptr(actor.UserID),
		BeforeState: auditlog.Snapshot(rel),
		AfterState:  auditlog.Snapshot(updated),
		Message:     "relationship deactivated",
	})
	return updated, nil
}

// UpdatePermissions merges grants into an active relationship's explicit
// capability grants. Only the member, whose data the grants cover, may
// change them.
func (e *Engine) UpdatePermissions(ctx context.Context, id primitive.ObjectID, actor Actor, grants models.Grants) (models.Relationship, error) {
	rel, err := e.load(ctx, id)
	if err != nil {
		return models.Relationship{}, err
	}
	if actor.UserID != rel.MemberID {
		return models.Relationship{}, unauthorized("only the member can change permissions")
	}
	if rel.Status != models.StatusActive {
		return models.Relationship{}, invalidState("relationship is %s, not active", rel.Status)
	}

	merged := rel.Permissions.Clone()
	for c, v := range grants {
		if _, ok := models.ParseCapability(string(c)); !ok {
			return models.Relationship{}, invalidState("unknown capability %q", c)
		}
		merged[c] = v
	}

	updated, err := e.transition(ctx, rel, relationshipstore.Transition{
		To:          rel.Status,
		At:          e.now(),
		Permissions: merged,
	})
	if err != nil {
		return models.Relationship{}, err
	}

	e.record(ctx, audit.Entry{
		Operation:   audit.OpUpdate,
		EntityType:  audit.EntityRelationship,
		EntityID:    rel.ID.Hex(),
		ActorID:     ptr(actor.UserID),
		BeforeState: auditlog.Snapshot(rel),
		AfterState:  auditlog.Snapshot(updated),
		Message:     "permissions updated",
	})
	return updated, nil
}
