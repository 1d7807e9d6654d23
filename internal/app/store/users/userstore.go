package userstore

import (
	"context"
	"errors"
	"time"

	"github.com/dalemusser/coachhub/internal/app/system/normalize"
	"github.com/dalemusser/coachhub/internal/domain/models"
	wafflemongo "github.com/dalemusser/waffle/pantry/mongo"
	"github.com/dalemusser/waffle/pantry/text"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// CollectionName is the Mongo collection holding user documents.
const CollectionName = "users"

var (
	// ErrNotFound is returned when no user matches the lookup.
	ErrNotFound = errors.New("user not found")
	// ErrDuplicateEmail is returned when attempting to create a user with an email that already exists.
	ErrDuplicateEmail = errors.New("a user with this email already exists")
	errBadRole        = errors.New(`role must be "coach"|"client"|"admin"|"superadmin"`)
	errNoSubject      = errors.New("identity subject is required")
	errNoEmail        = errors.New("email is required")
)

type Store struct {
	c *mongo.Collection
}

func New(db *mongo.Database) *Store {
	return &Store{c: db.Collection(CollectionName)}
}

func (s *Store) findOne(ctx context.Context, filter bson.M) (*models.User, error) {
	var u models.User
	if err := s.c.FindOne(ctx, filter).Decode(&u); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &u, nil
}

// GetByID loads a user by ObjectID.
func (s *Store) GetByID(ctx context.Context, id primitive.ObjectID) (*models.User, error) {
	return s.findOne(ctx, bson.M{"_id": id})
}

// GetByEmail looks up a user by case-insensitive email.
func (s *Store) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	return s.findOne(ctx, bson.M{"email_ci": text.Fold(normalize.Email(email))})
}

// GetByExternalID looks up a user by identity-provider subject.
func (s *Store) GetByExternalID(ctx context.Context, subject string) (*models.User, error) {
	return s.findOne(ctx, bson.M{"external_id": subject})
}

func validRole(role string) bool {
	switch role {
	case models.RoleCoach, models.RoleClient, models.RoleAdmin, models.RoleSuperAdmin:
		return true
	}
	return false
}

// Create inserts a new user after normalizing & validating fields.
func (s *Store) Create(ctx context.Context, u models.User) (models.User, error) {
	u.ID = primitive.NewObjectID()
	u.FullName = normalize.Name(u.FullName)
	u.Email = normalize.Email(u.Email)
	u.EmailCI = text.Fold(u.Email)
	u.Role = normalize.Role(u.Role)
	if u.Email == "" {
		return models.User{}, errNoEmail
	}
	if !validRole(u.Role) {
		return models.User{}, errBadRole
	}
	if u.Status == "" {
		u.Status = "active"
	}

	now := time.Now().UTC()
	u.CreatedAt = now
	u.UpdatedAt = now

	if _, err := s.c.InsertOne(ctx, u); err != nil {
		if wafflemongo.IsDup(err) {
			return models.User{}, ErrDuplicateEmail
		}
		return models.User{}, err
	}
	return u, nil
}

// Identity is the subset of identity-provider claims stored on a user.
type Identity struct {
	Subject        string
	Email          string
	FullName       string
	Role           string
	OrganizationID *primitive.ObjectID
}

// UpsertFromIdentity creates the user for id.Subject or refreshes the
// provider-owned fields of an existing one. A user created earlier without
// a subject (for example by an admin import) is linked by email. An empty
// role claim defaults new users to client.
func (s *Store) UpsertFromIdentity(ctx context.Context, id Identity) (*models.User, error) {
	if id.Subject == "" {
		return nil, errNoSubject
	}
	email := normalize.Email(id.Email)
	if email == "" {
		return nil, errNoEmail
	}
	role := normalize.Role(id.Role)
	if role != "" && !validRole(role) {
		return nil, errBadRole
	}

	now := time.Now().UTC()
	set := bson.M{
		"external_id": id.Subject,
		"email":       email,
		"email_ci":    text.Fold(email),
		"updated_at":  now,
	}
	onInsert := bson.M{
		"status":     "active",
		"created_at": now,
	}
	// Without a role claim an existing user keeps the role they have.
	if role != "" {
		set["role"] = role
	} else {
		onInsert["role"] = models.RoleClient
	}
	if name := normalize.Name(id.FullName); name != "" {
		set["full_name"] = name
	}
	if id.OrganizationID != nil {
		set["organization_id"] = *id.OrganizationID
	}

	filter := bson.M{"$or": []bson.M{
		{"external_id": id.Subject},
		{"email_ci": text.Fold(email), "external_id": bson.M{"$exists": false}},
	}}
	update := bson.M{
		"$set":         set,
		"$setOnInsert": onInsert,
	}
	opts := options.FindOneAndUpdate().
		SetUpsert(true).
		SetReturnDocument(options.After)

	var u models.User
	if err := s.c.FindOneAndUpdate(ctx, filter, update, opts).Decode(&u); err != nil {
		if wafflemongo.IsDup(err) || mongo.IsDuplicateKeyError(err) {
			return nil, ErrDuplicateEmail
		}
		return nil, err
	}
	return &u, nil
}
