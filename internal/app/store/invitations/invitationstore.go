// internal/app/store/invitations/invitationstore.go
package invitationstore

import (
	"context"
	"errors"
	"time"

	"github.com/dalemusser/coachhub/internal/app/system/normalize"
	"github.com/dalemusser/coachhub/internal/domain/models"
	wafflemongo "github.com/dalemusser/waffle/pantry/mongo"
	"github.com/dalemusser/waffle/pantry/text"
	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// CollectionName is the Mongo collection holding invitations.
const CollectionName = "coach_invitations"

var (
	// ErrDuplicateInvitation is returned when the coach already has a pending
	// invitation for the same email.
	ErrDuplicateInvitation = errors.New("a pending invitation for this email already exists")
	// ErrNotFound is returned when no pending invitation matches.
	ErrNotFound = errors.New("invitation not found")
)

type Store struct {
	c *mongo.Collection
}

func New(db *mongo.Database) *Store {
	return &Store{c: db.Collection(CollectionName)}
}

// Create records a pending invitation from coachID to email that expires
// after ttl. The returned invitation carries a fresh token.
func (s *Store) Create(ctx context.Context, coachID primitive.ObjectID, email string, ttl time.Duration) (models.Invitation, error) {
	now := time.Now().UTC()
	email = normalize.Email(email)
	inv := models.Invitation{
		ID:        primitive.NewObjectID(),
		CoachID:   coachID,
		Email:     email,
		EmailCI:   text.Fold(email),
		Token:     uuid.NewString(),
		Status:    models.InvitationPending,
		ExpiresAt: now.Add(ttl),
		CreatedAt: now,
	}

	// An expired pending invitation no longer blocks a new one.
	if _, err := s.c.UpdateMany(ctx, bson.M{
		"coach_id":   coachID,
		"email_ci":   inv.EmailCI,
		"status":     models.InvitationPending,
		"expires_at": bson.M{"$lte": now},
	}, bson.M{"$set": bson.M{"status": models.InvitationRevoked}}); err != nil {
		return models.Invitation{}, err
	}

	if _, err := s.c.InsertOne(ctx, inv); err != nil {
		if wafflemongo.IsDup(err) {
			return models.Invitation{}, ErrDuplicateInvitation
		}
		return models.Invitation{}, err
	}
	return inv, nil
}

// FindPending returns coachID's unexpired pending invitation for email, if any.
func (s *Store) FindPending(ctx context.Context, coachID primitive.ObjectID, email string) (*models.Invitation, error) {
	var inv models.Invitation
	err := s.c.FindOne(ctx, bson.M{
		"coach_id":   coachID,
		"email_ci":   text.Fold(normalize.Email(email)),
		"status":     models.InvitationPending,
		"expires_at": bson.M{"$gt": time.Now().UTC()},
	}).Decode(&inv)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &inv, nil
}

// ListPendingForEmail returns unexpired pending invitations addressed to
// email, oldest first.
func (s *Store) ListPendingForEmail(ctx context.Context, email string) ([]models.Invitation, error) {
	filter := bson.M{
		"email_ci":   text.Fold(normalize.Email(email)),
		"status":     models.InvitationPending,
		"expires_at": bson.M{"$gt": time.Now().UTC()},
	}
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}, {Key: "_id", Value: 1}})
	cur, err := s.c.Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var out []models.Invitation
	if err := cur.All(ctx, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// MarkClaimed transitions a pending invitation to claimed and links the
// relationship created from it. Returns ErrNotFound if the invitation is
// no longer pending.
func (s *Store) MarkClaimed(ctx context.Context, id, relationshipID primitive.ObjectID) error {
	now := time.Now().UTC()
	res, err := s.c.UpdateOne(ctx,
		bson.M{"_id": id, "status": models.InvitationPending},
		bson.M{"$set": bson.M{
			"status":          models.InvitationClaimed,
			"relationship_id": relationshipID,
			"claimed_at":      now,
		}},
	)
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

// Revoke marks a pending invitation as revoked.
func (s *Store) Revoke(ctx context.Context, id primitive.ObjectID) error {
	res, err := s.c.UpdateOne(ctx,
		bson.M{"_id": id, "status": models.InvitationPending},
		bson.M{"$set": bson.M{"status": models.InvitationRevoked}},
	)
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}
