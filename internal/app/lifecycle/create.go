package lifecycle

import (
	"context"
	"errors"
	"fmt"

	"github.com/dalemusser/coachhub/internal/app/store/audit"
	invitationstore "github.com/dalemusser/coachhub/internal/app/store/invitations"
	relationshipstore "github.com/dalemusser/coachhub/internal/app/store/relationships"
	"github.com/dalemusser/coachhub/internal/app/system/auditlog"
	"github.com/dalemusser/coachhub/internal/app/system/identity"
	"github.com/dalemusser/coachhub/internal/app/system/normalize"
	"github.com/dalemusser/coachhub/internal/app/system/notify"
	"github.com/dalemusser/coachhub/internal/domain/models"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

// ConnectionRequest is the result of CreateConnectionRequest. Exactly one
// field is set: Relationship when the email belongs to a user, Invitation
// when it does not.
type ConnectionRequest struct {
	Relationship *models.Relationship `json:"relationship,omitempty"`
	Invitation   *models.Invitation   `json:"invitation,omitempty"`
}

// CreateConnectionRequest has the acting coach invite clientEmail.
//
// A registered email gets a pending relationship. An unregistered one gets
// a pending invitation, claimed when that person first signs in. Either
// way a second request for the same pair fails with ErrConflict.
func (e *Engine) CreateConnectionRequest(ctx context.Context, actor Actor, clientEmail string) (ConnectionRequest, error) {
	if actor.Role != models.RoleCoach && !actor.IsAdmin() {
		return ConnectionRequest{}, unauthorized("only coaches can send connection requests")
	}
	email := normalize.Email(clientEmail)
	if email == "" {
		return ConnectionRequest{}, notFound("empty email")
	}

	coach, err := e.identities.ResolveByID(ctx, actor.UserID)
	if errors.Is(err, identity.ErrNotFound) {
		return ConnectionRequest{}, notFound("coach %s", actor.UserID.Hex())
	}
	if err != nil {
		return ConnectionRequest{}, storage("resolve coach", err)
	}

	member, err := e.identities.ResolveByEmail(ctx, email)
	if errors.Is(err, identity.ErrNotFound) {
		if e.invitations == nil {
			return ConnectionRequest{}, notFound("no user with email %s", email)
		}
		inv, err := e.invite(ctx, coach, email)
		if err != nil {
			return ConnectionRequest{}, err
		}
		return ConnectionRequest{Invitation: &inv}, nil
	}
	if err != nil {
		return ConnectionRequest{}, storage("resolve client", err)
	}

	rel, err := e.createPending(ctx, coach, member, actor)
	if err != nil {
		return ConnectionRequest{}, err
	}
	return ConnectionRequest{Relationship: &rel}, nil
}

// createPending persists a new pending relationship between coach and
// member and runs its side effects.
func (e *Engine) createPending(ctx context.Context, coach, member *models.User, actor Actor) (models.Relationship, error) {
	if coach.ID == member.ID {
		return models.Relationship{}, invalidState("a coach cannot connect to themselves")
	}

	existing, err := e.rels.FindLive(ctx, coach.ID, member.ID)
	if err != nil {
		return models.Relationship{}, storage("check existing relationship", err)
	}
	if existing != nil {
		return models.Relationship{}, conflict("relationship %s is already %s", existing.ID.Hex(), existing.Status)
	}

	now := e.now()
	rel := models.Relationship{
		CoachID:              coach.ID,
		MemberID:             member.ID,
		CoachOrganizationID:  coach.OrganizationID,
		MemberOrganizationID: member.OrganizationID,
		Status:               models.StatusPending,
		StartDate:            now,
		Permissions:          models.Grants{},
		InvitedByEmail:       coach.Email,
		CreatedAt:            now,
		UpdatedAt:            now,
	}
	if err := e.rels.Create(ctx, &rel); err != nil {
		// The live-pair index turns a lost race into a duplicate.
		if errors.Is(err, relationshipstore.ErrDuplicateLive) {
			return models.Relationship{}, conflict("a pending or active relationship already exists for this pair")
		}
		return models.Relationship{}, storage("create relationship", err)
	}

	e.metrics.ObserveTransition("", string(rel.Status))
	e.record(ctx, audit.Entry{
		Operation:  audit.OpCreate,
		EntityType: audit.EntityRelationship,
		EntityID:   rel.ID.Hex(),
		ActorID:    ptr(actor.UserID),
		AfterState: auditlog.Snapshot(rel),
		Message:    "connection requested",
	})
	e.notify(member.ID, notify.KindConnectionRequested, map[string]string{
		notify.KeyFromName:       displayName(coach),
		notify.KeyRelationshipID: rel.ID.Hex(),
	})
	e.log.Debug("relationship created",
		zap.String("relationship_id", rel.ID.Hex()),
		zap.String("coach_id", coach.ID.Hex()),
		zap.String("member_id", member.ID.Hex()))
	return rel, nil
}

func (e *Engine) invite(ctx context.Context, coach *models.User, email string) (models.Invitation, error) {
	pending, err := e.invitations.FindPending(ctx, coach.ID, email)
	if err != nil {
		return models.Invitation{}, storage("check pending invitation", err)
	}
	if pending != nil {
		return models.Invitation{}, conflict("an invitation to %s is already pending", email)
	}

	inv, err := e.invitations.Create(ctx, coach.ID, email, e.cfg.InvitationTTL)
	if errors.Is(err, invitationstore.ErrDuplicateInvitation) {
		return models.Invitation{}, conflict("an invitation to %s is already pending", email)
	}
	if err != nil {
		return models.Invitation{}, storage("create invitation", err)
	}

	e.record(ctx, audit.Entry{
		Operation:  audit.OpCreate,
		EntityType: audit.EntityInvitation,
		EntityID:   inv.ID.Hex(),
		ActorID:    ptr(coach.ID),
		AfterState: bson.M{"coach_id": coach.ID, "email": inv.Email, "status": inv.Status, "expires_at": inv.ExpiresAt},
		Message:    "invitation sent to unregistered email",
	})
	// The invitee has no user id yet; the address travels in the payload.
	e.notify(primitive.NilObjectID, notify.KindInvitationSent, map[string]string{
		notify.KeyEmail:        inv.Email,
		notify.KeyFromName:     displayName(coach),
		notify.KeyInvitationID: inv.ID.Hex(),
		notify.KeyToken:        inv.Token,
		notify.KeyExpiresIn:    humanDays(e.cfg.InvitationTTL.Hours() / 24),
	})
	return inv, nil
}

func humanDays(days float64) string {
	n := int(days + 0.5)
	if n <= 1 {
		return "1 day"
	}
	return fmt.Sprintf("%d days", n)
}

// ClaimInvitations turns userID's unexpired pending invitations into
// pending relationships. Call it after sign-in. Invitations that would
// duplicate a live relationship, or that come from the user themselves,
// are revoked. The created relationships are returned.
func (e *Engine) ClaimInvitations(ctx context.Context, userID primitive.ObjectID) ([]models.Relationship, error) {
	if e.invitations == nil {
		return nil, nil
	}
	member, err := e.identities.ResolveByID(ctx, userID)
	if errors.Is(err, identity.ErrNotFound) {
		return nil, notFound("user %s", userID.Hex())
	}
	if err != nil {
		return nil, storage("resolve user", err)
	}

	invs, err := e.invitations.ListPendingForEmail(ctx, member.Email)
	if err != nil {
		return nil, storage("list invitations", err)
	}

	var created []models.Relationship
	for _, inv := range invs {
		coach, err := e.identities.ResolveByID(ctx, inv.CoachID)
		if err != nil {
			e.log.Warn("invitation coach unresolvable, revoking",
				zap.String("invitation_id", inv.ID.Hex()),
				zap.Error(err))
			e.revoke(ctx, inv)
			continue
		}

		rel, err := e.createPending(ctx, coach, member, Actor{UserID: coach.ID, Role: coach.Role})
		if errors.Is(err, ErrConflict) || errors.Is(err, ErrInvalidState) {
			e.log.Info("invitation not claimable, revoking",
				zap.String("invitation_id", inv.ID.Hex()),
				zap.Error(err))
			e.revoke(ctx, inv)
			continue
		}
		if err != nil {
			return created, err
		}

		if err := e.invitations.MarkClaimed(ctx, inv.ID, rel.ID); err != nil {
			e.log.Warn("failed to mark invitation claimed",
				zap.String("invitation_id", inv.ID.Hex()),
				zap.String("relationship_id", rel.ID.Hex()),
				zap.Error(err))
		}
		created = append(created, rel)
	}
	return created, nil
}

func (e *Engine) revoke(ctx context.Context, inv models.Invitation) {
	if err := e.invitations.Revoke(ctx, inv.ID); err != nil && !errors.Is(err, invitationstore.ErrNotFound) {
		e.log.Warn("failed to revoke invitation",
			zap.String("invitation_id", inv.ID.Hex()),
			zap.Error(err))
	}
}
