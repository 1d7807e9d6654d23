package lifecycle

import (
	"context"
	"errors"
	"time"

	"github.com/dalemusser/coachhub/internal/app/store/audit"
	relationshipstore "github.com/dalemusser/coachhub/internal/app/store/relationships"
	"github.com/dalemusser/coachhub/internal/app/system/auditlog"
	"github.com/dalemusser/coachhub/internal/app/system/htmlsanitize"
	"github.com/dalemusser/coachhub/internal/domain/models"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

// SoftDelete marks a relationship deleted, recording who did it and why.
// Deleting an already deleted relationship succeeds without writing
// anything, so a retried or duplicated call produces one audit entry.
func (e *Engine) SoftDelete(ctx context.Context, id primitive.ObjectID, actor Actor, reason string) (models.Relationship, error) {
	rel, err := e.load(ctx, id)
	if err != nil {
		return models.Relationship{}, err
	}
	if !rel.IsParticipant(actor.UserID) && !actor.IsAdmin() {
		return models.Relationship{}, unauthorized("only a participant or an administrator can delete")
	}
	if rel.Status == models.StatusDeleted {
		return rel, nil
	}
	if rel.Status == models.StatusDeclined {
		return models.Relationship{}, invalidState("declined relationships cannot be deleted")
	}

	now := e.now()
	t := relationshipstore.Transition{
		To: models.StatusDeleted,
		At: now,
		Deletion: &relationshipstore.Deletion{
			At:     now,
			By:     actor.UserID,
			Reason: htmlsanitize.Limit(reason, maxReasonLen),
		},
	}
	if rel.EndDate == nil {
		t.EndDate = &now
	}

	updated, err := e.transition(ctx, rel, t)
	if errors.Is(err, ErrInvalidState) {
		// Lost a race. If the winner also deleted, this call is a no-op.
		current, lerr := e.load(ctx, id)
		if lerr == nil && current.Status == models.StatusDeleted {
			return current, nil
		}
	}
	if err != nil {
		return models.Relationship{}, err
	}

	e.record(ctx, audit.Entry{
		Operation:   audit.OpSoftDelete,
		EntityType:  audit.EntityRelationship,
		EntityID:    rel.ID.Hex(),
		ActorID:     ptr(actor.UserID),
		BeforeState: auditlog.Snapshot(rel),
		AfterState:  auditlog.Snapshot(updated),
		Message:     t.Deletion.Reason,
	})
	if e.guard != nil {
		e.guard.Observe(ctx, actor.UserID)
	}
	return updated, nil
}

// Restore returns a deleted relationship to the status it had before its
// most recent soft delete. Administrators only. If that status is pending
// or active and the pair already has a live relationship, the restore is
// refused with ErrConflict and an integrity failure is recorded.
func (e *Engine) Restore(ctx context.Context, id primitive.ObjectID, actor Actor) (models.Relationship, error) {
	if !actor.IsAdmin() {
		return models.Relationship{}, unauthorized("only administrators can restore")
	}
	rel, err := e.load(ctx, id)
	if err != nil {
		return models.Relationship{}, err
	}
	if rel.Status != models.StatusDeleted {
		return models.Relationship{}, invalidState("relationship is %s, not deleted", rel.Status)
	}

	prior, endDate, err := e.priorState(ctx, rel)
	if err != nil {
		return models.Relationship{}, err
	}

	if prior.Live() {
		live, err := e.rels.FindLive(ctx, rel.CoachID, rel.MemberID)
		if err != nil {
			return models.Relationship{}, storage("check live relationship", err)
		}
		if live != nil {
			e.integrityFailed(ctx, rel, prior, actor, live.ID)
			return models.Relationship{}, conflict("relationship %s is already %s for this pair", live.ID.Hex(), live.Status)
		}
	}

	t := relationshipstore.Transition{To: prior, At: e.now()}
	if endDate != nil {
		t.EndDate = endDate
	} else {
		t.ClearEndDate = true
	}

	updated, err := e.transition(ctx, rel, t)
	if errors.Is(err, ErrConflict) {
		e.integrityFailed(ctx, rel, prior, actor, primitive.NilObjectID)
	}
	if err != nil {
		return models.Relationship{}, err
	}

	e.record(ctx, audit.Entry{
		Operation:   audit.OpRestore,
		Severity:    audit.SeverityWarning,
		EntityType:  audit.EntityRelationship,
		EntityID:    rel.ID.Hex(),
		ActorID:     ptr(actor.UserID),
		BeforeState: auditlog.Snapshot(rel),
		AfterState:  auditlog.Snapshot(updated),
		Message:     "relationship restored to " + string(prior),
	})
	e.log.Info("relationship restored",
		zap.String("relationship_id", rel.ID.Hex()),
		zap.String("status", string(prior)),
		zap.String("actor_id", actor.UserID.Hex()))
	return updated, nil
}

// priorState reads the status and end date saved by the most recent soft
// delete of rel. The record must describe the deletion rel currently
// carries; an older one means the latest write was lost.
func (e *Engine) priorState(ctx context.Context, rel models.Relationship) (models.RelationshipStatus, *time.Time, error) {
	if e.audit == nil {
		return "", nil, invalidState("no audit trail to restore from")
	}
	entry, err := e.audit.LatestFor(ctx, audit.EntityRelationship, rel.ID.Hex(), audit.OpSoftDelete)
	switch {
	case errors.Is(err, audit.ErrNotFound), errors.Is(err, auditlog.ErrNotPersisted):
		return "", nil, invalidState("no soft-delete record for relationship %s", rel.ID.Hex())
	case err != nil:
		return "", nil, storage("read soft-delete record", err)
	}

	if !sameInstant(snapshotTime(entry.AfterState["deleted_at"]), rel.DeletedAt) {
		return "", nil, invalidState("soft-delete record is stale for relationship %s", rel.ID.Hex())
	}

	raw, _ := entry.BeforeState["status"].(string)
	prior := relationshipstore.NormalizeStatus(raw)
	if !prior.Valid() || prior == models.StatusDeleted {
		return "", nil, invalidState("soft-delete record has no restorable status")
	}
	return prior, snapshotTime(entry.BeforeState["end_date"]), nil
}

// snapshotTime reads a time stored in a snapshot document. Snapshots read
// back from MongoDB hold primitive.DateTime.
func snapshotTime(v interface{}) *time.Time {
	var t time.Time
	switch x := v.(type) {
	case time.Time:
		t = x
	case primitive.DateTime:
		t = x.Time()
	case string:
		parsed, err := time.Parse(time.RFC3339Nano, x)
		if err != nil {
			return nil
		}
		t = parsed
	default:
		return nil
	}
	t = t.UTC()
	return &t
}

// sameInstant compares at MongoDB's millisecond precision.
func sameInstant(a, b *time.Time) bool {
	if a == nil || b == nil {
		return false
	}
	return a.Truncate(time.Millisecond).Equal(b.Truncate(time.Millisecond))
}

func (e *Engine) integrityFailed(ctx context.Context, rel models.Relationship, prior models.RelationshipStatus, actor Actor, liveID primitive.ObjectID) {
	e.metrics.ObserveIntegrityFailure()
	after := bson.M{"status": string(prior)}
	if !liveID.IsZero() {
		after["conflicting_relationship_id"] = liveID.Hex()
	}
	e.record(ctx, audit.Entry{
		Operation:   audit.OpIntegrityCheckFailed,
		Severity:    audit.SeverityCritical,
		EntityType:  audit.EntityRelationship,
		EntityID:    rel.ID.Hex(),
		ActorID:     ptr(actor.UserID),
		BeforeState: auditlog.Snapshot(rel),
		AfterState:  after,
		Message:     "restore refused: pair already has a live relationship",
	})
}
