package testutil

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/dalemusser/coachhub/internal/domain/models"
	"github.com/dalemusser/waffle/pantry/text"
	"github.com/go-chi/chi/v5"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
)

// WithChiURLParam adds a chi URL parameter to the request context.
// Use this in handler tests that need to access chi.URLParam values.
func WithChiURLParam(r *http.Request, key, value string) *http.Request {
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add(key, value)
	return r.WithContext(context.WithValue(r.Context(), chi.RouteCtxKey, rctx))
}

// Fixtures provides helper methods for creating test data.
type Fixtures struct {
	db *mongo.Database
	t  *testing.T
}

// NewFixtures creates a new Fixtures instance for the given test database.
func NewFixtures(t *testing.T, db *mongo.Database) *Fixtures {
	t.Helper()
	return &Fixtures{db: db, t: t}
}

// DB returns the underlying database for direct access in tests.
func (f *Fixtures) DB() *mongo.Database {
	return f.db
}

// CreateUser creates a test user with the given role.
func (f *Fixtures) CreateUser(ctx context.Context, fullName, email, role string) models.User {
	f.t.Helper()

	now := time.Now().UTC()
	user := models.User{
		ID:         primitive.NewObjectID(),
		ExternalID: "idp|" + primitive.NewObjectID().Hex(),
		FullName:   fullName,
		Email:      email,
		EmailCI:    text.Fold(email),
		Role:       role,
		Status:     "active",
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	if _, err := f.db.Collection("users").InsertOne(ctx, user); err != nil {
		f.t.Fatalf("failed to create test user: %v", err)
	}
	return user
}

// CreateCoach creates a test coach.
func (f *Fixtures) CreateCoach(ctx context.Context, fullName, email string) models.User {
	f.t.Helper()
	return f.CreateUser(ctx, fullName, email, models.RoleCoach)
}

// CreateClient creates a test client.
func (f *Fixtures) CreateClient(ctx context.Context, fullName, email string) models.User {
	f.t.Helper()
	return f.CreateUser(ctx, fullName, email, models.RoleClient)
}

// CreateAdmin creates a test admin.
func (f *Fixtures) CreateAdmin(ctx context.Context, fullName, email string) models.User {
	f.t.Helper()
	return f.CreateUser(ctx, fullName, email, models.RoleAdmin)
}

// CreateRelationship inserts a relationship document directly, bypassing
// the lifecycle engine. Use it to seed state for store and handler tests.
func (f *Fixtures) CreateRelationship(ctx context.Context, coachID, memberID primitive.ObjectID, status models.RelationshipStatus) models.Relationship {
	f.t.Helper()

	now := time.Now().UTC()
	rel := models.Relationship{
		ID:          primitive.NewObjectID(),
		CoachID:     coachID,
		MemberID:    memberID,
		Status:      status,
		StartDate:   now,
		Permissions: models.Grants{},
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if status == models.StatusDeleted {
		rel.DeletedAt = &now
		rel.DeletedBy = &coachID
		rel.DeletionReason = "fixture"
	}

	if _, err := f.db.Collection("coaching_relationships").InsertOne(ctx, rel); err != nil {
		f.t.Fatalf("failed to create test relationship: %v", err)
	}
	if status.Live() {
		key := coachID.Hex() + ":" + memberID.Hex()
		if _, err := f.db.Collection("coaching_relationships").UpdateByID(ctx, rel.ID,
			bson.M{"$set": bson.M{"live_key": key}}); err != nil {
			f.t.Fatalf("failed to set live_key: %v", err)
		}
	}
	return rel
}
