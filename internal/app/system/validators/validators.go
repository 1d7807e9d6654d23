// internal/app/system/validators/validators.go
package validators

import (
	"context"
	"errors"
	"strings"

	"github.com/dalemusser/coachhub/internal/app/store/audit"
	invitationstore "github.com/dalemusser/coachhub/internal/app/store/invitations"
	relationshipstore "github.com/dalemusser/coachhub/internal/app/store/relationships"
	userstore "github.com/dalemusser/coachhub/internal/app/store/users"
	"github.com/dalemusser/coachhub/internal/domain/models"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"
)

// EnsureAll creates collections (if missing) and tries to attach JSON-Schema
// validators. On servers that don't support collMod/validators (e.g. some
// DocumentDB versions), we log and skip gracefully.
//
// Validation is "moderate": documents that already violate a schema (legacy
// statuses, half-applied soft deletes) can still be updated, which is how
// the store normalizes them.
func EnsureAll(ctx context.Context, db *mongo.Database) error {
	var problems []string

	ensure := func(coll string, schema bson.M) {
		if _, err := ensureCollection(ctx, db, coll); err != nil {
			problems = append(problems, coll+": "+err.Error())
			return
		}
		if schema == nil {
			return
		}
		if err := setValidator(ctx, db, coll, schema); err != nil {
			if isNoSuchCommand(err) || isNotImplemented(err) {
				zap.L().Info("validator skipped (unsupported)", zap.String("collection", coll))
				return
			}
			problems = append(problems, coll+": "+err.Error())
		}
	}

	ensure(userstore.CollectionName, usersSchema())
	ensure(relationshipstore.CollectionName, relationshipsSchema())
	ensure(invitationstore.CollectionName, invitationsSchema())
	ensure(audit.CollectionName, auditSchema())

	if len(problems) > 0 {
		return errors.New(strings.Join(problems, "; "))
	}
	return nil
}

/* ---------------------- collection helpers & logging ---------------------- */

// collectionExists returns true when <name> already exists.
// Uses ListCollectionNames to avoid "created collection" log when it didn't.
func collectionExists(ctx context.Context, db *mongo.Database, name string) (bool, error) {
	names, err := db.ListCollectionNames(ctx, bson.M{})
	if err != nil {
		return false, err
	}
	for _, n := range names {
		if n == name {
			return true, nil
		}
	}
	return false, nil
}

// ensureCollection idempotently makes sure <name> exists.
// Returns created==true only if we actually created it.
func ensureCollection(ctx context.Context, db *mongo.Database, name string) (created bool, err error) {
	exists, listErr := collectionExists(ctx, db, name)
	if listErr == nil && exists {
		zap.L().Info("collection exists", zap.String("collection", name))
		return false, nil
	}
	// If listing failed, fall back to create-and-handle-race.
	if err := db.CreateCollection(ctx, name); err != nil {
		// NamespaceExists / already exists is fine (race or prior run).
		if isNamespaceExistsErr(err) {
			zap.L().Info("collection exists", zap.String("collection", name))
			return false, nil
		}
		zap.L().Warn("createCollection failed", zap.String("collection", name), zap.Error(err))
		return false, err
	}
	zap.L().Info("created collection", zap.String("collection", name))
	return true, nil
}

/* ------------------------------ validators ------------------------------- */

func setValidator(ctx context.Context, db *mongo.Database, name string, validator bson.M) error {
	cmd := bson.D{
		{Key: "collMod", Value: name},
		{Key: "validator", Value: validator},
		{Key: "validationLevel", Value: "moderate"},
		{Key: "validationAction", Value: "error"},
	}
	var out bson.M
	if err := db.RunCommand(ctx, cmd).Decode(&out); err != nil {
		return err
	}
	zap.L().Info("validator ensured", zap.String("collection", name))
	return nil
}

/* ------------------------- error helpers ------------------------- */

func isNamespaceExistsErr(err error) bool {
	if err == nil {
		return false
	}
	var ce mongo.CommandError
	if errors.As(err, &ce) && (ce.Code == 48 || strings.Contains(strings.ToLower(ce.Message), "already exists")) {
		return true
	}
	s := strings.ToLower(err.Error())
	return strings.Contains(s, "already exists") || strings.Contains(s, "namespace exists")
}

func isNoSuchCommand(err error) bool {
	if err == nil {
		return false
	}
	var ce mongo.CommandError
	if errors.As(err, &ce) && (ce.Code == 59 || strings.Contains(strings.ToLower(ce.Message), "no such command")) {
		return true
	}
	return strings.Contains(strings.ToLower(err.Error()), "no such command")
}

func isNotImplemented(err error) bool {
	if err == nil {
		return false
	}
	var ce mongo.CommandError
	if errors.As(err, &ce) && (ce.Code == 115 ||
		strings.Contains(strings.ToLower(ce.Message), "not implemented") ||
		strings.Contains(strings.ToLower(ce.Message), "not supported")) {
		return true
	}
	s := strings.ToLower(err.Error())
	return strings.Contains(s, "not implemented") || strings.Contains(s, "not supported")
}

/* ------------------------- JSON-Schema docs ---------------------- */

func usersSchema() bson.M {
	return bson.M{
		"$jsonSchema": bson.M{
			"bsonType": "object",
			"required": bson.A{"role"},
			"properties": bson.M{
				"external_id": bson.M{"bsonType": "string"},
				"full_name":   bson.M{"bsonType": "string"},
				"email":       bson.M{"bsonType": bson.A{"string", "null"}},
				"email_ci":    bson.M{"bsonType": bson.A{"string", "null"}},
				"role":        bson.M{"enum": bson.A{models.RoleCoach, models.RoleClient, models.RoleAdmin, models.RoleSuperAdmin}},
			},
		},
	}
}

func relationshipsSchema() bson.M {
	statuses := bson.A{}
	for _, s := range []models.RelationshipStatus{
		models.StatusPending, models.StatusActive, models.StatusInactive,
		models.StatusDeclined, models.StatusDeleted,
	} {
		statuses = append(statuses, string(s))
	}

	return bson.M{
		"$jsonSchema": bson.M{
			"bsonType": "object",
			"required": bson.A{"coach_id", "member_id", "status"},
			"properties": bson.M{
				"coach_id":        bson.M{"bsonType": "objectId"},
				"member_id":       bson.M{"bsonType": "objectId"},
				"status":          bson.M{"bsonType": "string", "enum": statuses},
				"start_date":      bson.M{"bsonType": "date"},
				"end_date":        bson.M{"bsonType": bson.A{"date", "null"}},
				"permissions":     bson.M{"bsonType": "object"},
				"deleted_at":      bson.M{"bsonType": bson.A{"date", "null"}},
				"deleted_by":      bson.M{"bsonType": bson.A{"objectId", "null"}},
				"deletion_reason": bson.M{"bsonType": "string", "maxLength": 2000},
			},
		},
	}
}

func invitationsSchema() bson.M {
	return bson.M{
		"$jsonSchema": bson.M{
			"bsonType": "object",
			"required": bson.A{"coach_id", "email_ci", "token", "status", "expires_at"},
			"properties": bson.M{
				"coach_id":        bson.M{"bsonType": "objectId"},
				"email":           bson.M{"bsonType": "string"},
				"email_ci":        bson.M{"bsonType": "string", "minLength": 3},
				"token":           bson.M{"bsonType": "string", "minLength": 1},
				"status":          bson.M{"enum": bson.A{models.InvitationPending, models.InvitationClaimed, models.InvitationRevoked}},
				"relationship_id": bson.M{"bsonType": "objectId"},
				"expires_at":      bson.M{"bsonType": "date"},
			},
		},
	}
}

func auditSchema() bson.M {
	return bson.M{
		"$jsonSchema": bson.M{
			"bsonType": "object",
			"required": bson.A{"timestamp", "expires_at", "operation", "severity"},
			"properties": bson.M{
				"timestamp":  bson.M{"bsonType": "date"},
				"expires_at": bson.M{"bsonType": "date"},
				"operation":  bson.M{"bsonType": "string", "minLength": 1},
				"severity": bson.M{"enum": bson.A{
					audit.SeverityInfo, audit.SeverityWarning, audit.SeverityCritical, audit.SeverityEmergency,
				}},
				"actor_id": bson.M{"bsonType": "objectId"},
			},
		},
	}
}
