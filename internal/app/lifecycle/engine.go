// Package lifecycle implements the coaching-relationship state machine.
// It is the only component that changes a relationship's status.
//
//	(none)   --invite-->       pending
//	pending  --accept-->       active      member only
//	pending  --decline-->      declined    member only
//	active   --deactivate-->   inactive    either participant
//	pending|active|inactive --soft delete--> deleted   participant or admin
//	deleted  --restore-->      status before the delete   admin only
package lifecycle

import (
	"context"
	"errors"
	"time"

	"github.com/dalemusser/coachhub/internal/app/store/audit"
	relationshipstore "github.com/dalemusser/coachhub/internal/app/store/relationships"
	"github.com/dalemusser/coachhub/internal/app/system/metrics"
	"github.com/dalemusser/coachhub/internal/app/system/notify"
	"github.com/dalemusser/coachhub/internal/domain/models"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

// Relationships is the relationship store surface used by the engine.
type Relationships interface {
	Create(ctx context.Context, rel *models.Relationship) error
	GetByID(ctx context.Context, id primitive.ObjectID) (models.Relationship, error)
	FindLive(ctx context.Context, coachID, memberID primitive.ObjectID) (*models.Relationship, error)
	ListForUser(ctx context.Context, userID primitive.ObjectID, statuses ...models.RelationshipStatus) ([]models.Relationship, error)
	CompareAndSet(ctx context.Context, id primitive.ObjectID, expected models.RelationshipStatus, t relationshipstore.Transition) (models.Relationship, error)
}

// Identities resolves users. It returns identity.ErrNotFound for misses.
type Identities interface {
	ResolveByEmail(ctx context.Context, email string) (*models.User, error)
	ResolveByID(ctx context.Context, id primitive.ObjectID) (*models.User, error)
}

// Invitations holds connection requests to addresses without an account.
type Invitations interface {
	Create(ctx context.Context, coachID primitive.ObjectID, email string, ttl time.Duration) (models.Invitation, error)
	FindPending(ctx context.Context, coachID primitive.ObjectID, email string) (*models.Invitation, error)
	ListPendingForEmail(ctx context.Context, email string) ([]models.Invitation, error)
	MarkClaimed(ctx context.Context, id, relationshipID primitive.ObjectID) error
	Revoke(ctx context.Context, id primitive.ObjectID) error
}

// Auditor writes audit entries and reads back soft-delete snapshots.
// Record must never fail the caller.
type Auditor interface {
	Record(ctx context.Context, e audit.Entry)
	LatestFor(ctx context.Context, entityType, entityID, operation string) (*audit.Entry, error)
}

// Notifier dispatches fire-and-forget notifications.
type Notifier interface {
	Notify(userID primitive.ObjectID, kind notify.Kind, payload map[string]string)
}

// DeleteGuard observes soft deletes per actor.
type DeleteGuard interface {
	Observe(ctx context.Context, actorID primitive.ObjectID)
}

// Deps are the engine's collaborators. Invitations, Notifier and Guard
// are optional.
type Deps struct {
	Relationships Relationships
	Identities    Identities
	Invitations   Invitations
	Audit         Auditor
	Notifier      Notifier
	Guard         DeleteGuard
}

// Config tunes the engine.
type Config struct {
	InvitationTTL time.Duration
}

// DefaultInvitationTTL is used when Config.InvitationTTL is zero.
const DefaultInvitationTTL = 14 * 24 * time.Hour

const maxReasonLen = 500

// Actor is the authenticated caller of an operation.
type Actor struct {
	UserID primitive.ObjectID
	Role   string
}

// IsAdmin reports whether the actor holds an administrative role.
func (a Actor) IsAdmin() bool {
	return a.Role == models.RoleAdmin || a.Role == models.RoleSuperAdmin
}

// Engine enforces the relationship lifecycle.
type Engine struct {
	rels        Relationships
	identities  Identities
	invitations Invitations
	audit       Auditor
	notifier    Notifier
	guard       DeleteGuard

	cfg     Config
	log     *zap.Logger
	metrics *metrics.Metrics
	now     func() time.Time
}

// New creates an Engine.
func New(deps Deps, cfg Config, logger *zap.Logger, m *metrics.Metrics) *Engine {
	if cfg.InvitationTTL <= 0 {
		cfg.InvitationTTL = DefaultInvitationTTL
	}
	return &Engine{
		rels:        deps.Relationships,
		identities:  deps.Identities,
		invitations: deps.Invitations,
		audit:       deps.Audit,
		notifier:    deps.Notifier,
		guard:       deps.Guard,
		cfg:         cfg,
		log:         logger,
		metrics:     m,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// load reads a relationship and maps store errors into the engine's
// error classes.
func (e *Engine) load(ctx context.Context, id primitive.ObjectID) (models.Relationship, error) {
	rel, err := e.rels.GetByID(ctx, id)
	switch {
	case err == nil:
		return rel, nil
	case errors.Is(err, relationshipstore.ErrNotFound):
		return rel, notFound("relationship %s", id.Hex())
	case errors.Is(err, relationshipstore.ErrInconsistent):
		return rel, invalidState("relationship %s has inconsistent deletion fields", id.Hex())
	default:
		return rel, storage("load relationship", err)
	}
}

// transition applies a compare-and-set and maps its errors.
func (e *Engine) transition(ctx context.Context, rel models.Relationship, t relationshipstore.Transition) (models.Relationship, error) {
	updated, err := e.rels.CompareAndSet(ctx, rel.ID, rel.Status, t)
	switch {
	case err == nil:
		if updated.Status != rel.Status {
			e.metrics.ObserveTransition(string(rel.Status), string(updated.Status))
		}
		return updated, nil
	case errors.Is(err, relationshipstore.ErrStatusMismatch):
		return updated, invalidState("relationship %s is no longer %s", rel.ID.Hex(), rel.Status)
	case errors.Is(err, relationshipstore.ErrNotFound):
		return updated, notFound("relationship %s", rel.ID.Hex())
	case errors.Is(err, relationshipstore.ErrDuplicateLive):
		return updated, conflict("a pending or active relationship already exists for this pair")
	default:
		return updated, storage("update relationship", err)
	}
}

func (e *Engine) record(ctx context.Context, entry audit.Entry) {
	if e.audit == nil {
		return
	}
	e.audit.Record(ctx, entry)
}

func (e *Engine) notify(userID primitive.ObjectID, kind notify.Kind, payload map[string]string) {
	if e.notifier == nil {
		return
	}
	e.notifier.Notify(userID, kind, payload)
}

func displayName(u *models.User) string {
	if u == nil {
		return ""
	}
	if u.FullName != "" {
		return u.FullName
	}
	return u.Email
}

func ptr(id primitive.ObjectID) *primitive.ObjectID { return &id }
