// Package identity maps identity-provider subjects and email addresses to
// internal user records.
package identity

import (
	"context"
	"errors"
	"fmt"

	userstore "github.com/dalemusser/coachhub/internal/app/store/users"
	"github.com/dalemusser/coachhub/internal/app/system/normalize"
	"github.com/dalemusser/coachhub/internal/domain/models"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

// ErrNotFound is returned when no user matches.
var ErrNotFound = errors.New("identity not found")

// Users is the user store surface the resolver needs.
type Users interface {
	GetByID(ctx context.Context, id primitive.ObjectID) (*models.User, error)
	GetByEmail(ctx context.Context, email string) (*models.User, error)
	GetByExternalID(ctx context.Context, subject string) (*models.User, error)
	UpsertFromIdentity(ctx context.Context, id userstore.Identity) (*models.User, error)
}

// Lookup finds a person at the identity provider by email. It returns
// ErrNotFound when the provider has no such account.
type Lookup interface {
	LookupEmail(ctx context.Context, email string) (*userstore.Identity, error)
}

// Resolver resolves users from the local store, optionally falling back
// to the identity provider's directory for email misses.
type Resolver struct {
	users Users
	dir   Lookup
	log   *zap.Logger
}

// NewResolver creates a Resolver. dir may be nil.
func NewResolver(users Users, dir Lookup, logger *zap.Logger) *Resolver {
	return &Resolver{users: users, dir: dir, log: logger}
}

// ResolveByID returns the user with the given id.
func (r *Resolver) ResolveByID(ctx context.Context, id primitive.ObjectID) (*models.User, error) {
	if id.IsZero() {
		return nil, ErrNotFound
	}
	return r.translate(r.users.GetByID(ctx, id))
}

// ResolveBySubject returns the user linked to an identity-provider subject.
func (r *Resolver) ResolveBySubject(ctx context.Context, subject string) (*models.User, error) {
	if subject == "" {
		return nil, ErrNotFound
	}
	return r.translate(r.users.GetByExternalID(ctx, subject))
}

// ResolveByEmail returns the user registered under email. When the local
// store has no match and a directory is configured, the directory is asked
// and a hit is stored locally before being returned.
func (r *Resolver) ResolveByEmail(ctx context.Context, email string) (*models.User, error) {
	email = normalize.Email(email)
	if email == "" {
		return nil, ErrNotFound
	}

	u, err := r.users.GetByEmail(ctx, email)
	if err == nil {
		return u, nil
	}
	if !errors.Is(err, userstore.ErrNotFound) {
		return nil, fmt.Errorf("lookup user by email: %w", err)
	}
	if r.dir == nil {
		return nil, ErrNotFound
	}

	ident, err := r.dir.LookupEmail(ctx, email)
	if errors.Is(err, ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("directory lookup: %w", err)
	}

	u, err = r.users.UpsertFromIdentity(ctx, *ident)
	if err != nil {
		return nil, fmt.Errorf("store directory identity: %w", err)
	}
	r.log.Info("user provisioned from directory",
		zap.String("user_id", u.ID.Hex()),
		zap.String("subject", ident.Subject))
	return u, nil
}

func (r *Resolver) translate(u *models.User, err error) (*models.User, error) {
	if errors.Is(err, userstore.ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return u, nil
}
