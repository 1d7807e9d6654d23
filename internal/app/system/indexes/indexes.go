// internal/app/system/indexes/indexes.go
package indexes

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"
)

/*
EnsureAll is called at startup. Each ensure* function is idempotent.
We aggregate errors so any problem is visible and startup can fail fast.
*/
func EnsureAll(ctx context.Context, db *mongo.Database) error {
	var problems []string

	if err := ensureUsers(ctx, db); err != nil {
		problems = append(problems, "users: "+err.Error())
	}
	if err := ensureRelationships(ctx, db); err != nil {
		problems = append(problems, "coaching_relationships: "+err.Error())
	}
	if err := ensureInvitations(ctx, db); err != nil {
		problems = append(problems, "coach_invitations: "+err.Error())
	}
	if err := ensureAuditLogs(ctx, db); err != nil {
		problems = append(problems, "audit_logs: "+err.Error())
	}

	if len(problems) > 0 {
		return errors.New(strings.Join(problems, "; "))
	}
	return nil
}

/* -------------------------------------------------------------------------- */
/* Core helper: reconcile a set of desired indexes for one collection         */
/* -------------------------------------------------------------------------- */

type existingIndex struct {
	Name   string `bson:"name"`
	Key    bson.D `bson:"key"`
	Unique *bool  `bson:"unique,omitempty"`
	TTL    *int64 `bson:"expireAfterSeconds,omitempty"`
}

func keySig(keys bson.D) string {
	parts := make([]string, 0, len(keys))
	for _, kv := range keys {
		parts = append(parts, fmt.Sprintf("%s:%v", kv.Key, kv.Value))
	}
	return strings.Join(parts, ", ")
}

func sameBoolPtr(a, b *bool) bool {
	av := false
	bv := false
	if a != nil {
		av = *a
	}
	if b != nil {
		bv = *b
	}
	return av == bv
}

func sameTTL(a *int32, b *int64) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return int64(*a) == *b
}

// Best-effort duplicate-detector (works cross-vendors)
func isDuplicateKeyErr(err error) bool {
	if err == nil {
		return false
	}
	var we mongo.WriteException
	if errors.As(err, &we) {
		for _, e := range we.WriteErrors {
			if e.Code == 11000 {
				return true
			}
		}
	}
	var ce mongo.CommandError
	if errors.As(err, &ce) && ce.Code == 11000 {
		return true
	}
	s := err.Error()
	return strings.Contains(s, "E11000") || strings.Contains(strings.ToLower(s), "duplicate key")
}

func listIndexes(ctx context.Context, coll *mongo.Collection) map[string]existingIndex {
	existing := map[string]existingIndex{}
	cur, err := coll.Indexes().List(ctx)
	if err != nil {
		return existing
	}
	defer cur.Close(ctx)
	for cur.Next(ctx) {
		var idx existingIndex
		if err := cur.Decode(&idx); err != nil {
			zap.L().Warn("failed to decode existing index",
				zap.String("collection", coll.Name()),
				zap.Error(err))
			continue
		}
		existing[keySig(idx.Key)] = idx
	}
	return existing
}

func ensureIndexSet(ctx context.Context, coll *mongo.Collection, models []mongo.IndexModel) error {
	var errs []string

	for _, m := range models {
		var desiredName string
		var desiredUnique *bool
		var desiredTTL *int32
		if m.Options != nil {
			if m.Options.Name != nil {
				desiredName = *m.Options.Name
			}
			desiredUnique = m.Options.Unique
			desiredTTL = m.Options.ExpireAfterSeconds
		}
		desiredSig := keySig(m.Keys.(bson.D))
		start := time.Now()

		if ex, ok := listIndexes(ctx, coll)[desiredSig]; ok {
			if sameBoolPtr(desiredUnique, ex.Unique) && sameTTL(desiredTTL, ex.TTL) &&
				(desiredName == "" || ex.Name == desiredName) {
				zap.L().Debug("reusing existing index",
					zap.String("collection", coll.Name()),
					zap.String("name", ex.Name),
					zap.String("keys", desiredSig))
				continue
			}

			// Options or name differ. Drop & recreate.
			if _, err := coll.Indexes().DropOne(ctx, ex.Name); err != nil {
				errs = append(errs, fmt.Sprintf("%s(%s): drop failed: %v", coll.Name(), desiredName, err))
				continue
			}
		}

		created, err := coll.Indexes().CreateOne(ctx, m)
		if err != nil {
			if isDuplicateKeyErr(err) && desiredUnique != nil && *desiredUnique {
				errs = append(errs, fmt.Sprintf("%s(%s): cannot create unique index (duplicates present)", coll.Name(), desiredName))
			} else {
				errs = append(errs, fmt.Sprintf("%s(%s): %v", coll.Name(), desiredName, err))
			}
			zap.L().Warn("index ensure failed",
				zap.String("collection", coll.Name()),
				zap.String("name", desiredName),
				zap.String("keys", desiredSig),
				zap.Error(err))
			continue
		}
		zap.L().Info("index ensured",
			zap.String("collection", coll.Name()),
			zap.String("name", created),
			zap.String("keys", desiredSig),
			zap.Bool("unique", desiredUnique != nil && *desiredUnique),
			zap.String("took", time.Since(start).String()))
	}

	if len(errs) > 0 {
		return errors.New(strings.Join(errs, "; "))
	}
	return nil
}

/* -------------------------------------------------------------------------- */
/* Collection-specific index sets                                              */
/* -------------------------------------------------------------------------- */

func ensureUsers(ctx context.Context, db *mongo.Database) error {
	c := db.Collection("users")
	return ensureIndexSet(ctx, c, []mongo.IndexModel{
		// Case-folded email is unique across all users
		{
			Keys:    bson.D{{Key: "email_ci", Value: 1}},
			Options: options.Index().SetUnique(true).SetName("uniq_users_email_ci"),
		},
		// Identity-provider subject, unique when present
		{
			Keys: bson.D{{Key: "external_id", Value: 1}},
			Options: options.Index().
				SetUnique(true).
				SetName("uniq_users_external_id").
				SetPartialFilterExpression(bson.M{"external_id": bson.M{"$type": "string"}}),
		},
	})
}

func ensureRelationships(ctx context.Context, db *mongo.Database) error {
	c := db.Collection("coaching_relationships")
	return ensureIndexSet(ctx, c, []mongo.IndexModel{
		// At most one pending/active relationship per ordered (coach, member).
		// live_key only exists while the status is live.
		{
			Keys: bson.D{{Key: "live_key", Value: 1}},
			Options: options.Index().
				SetUnique(true).
				SetName("uniq_rel_live_pair").
				SetPartialFilterExpression(bson.M{"live_key": bson.M{"$type": "string"}}),
		},
		// A coach's relationships by status, newest first
		{
			Keys:    bson.D{{Key: "coach_id", Value: 1}, {Key: "status", Value: 1}, {Key: "created_at", Value: -1}},
			Options: options.Index().SetName("idx_rel_coach_status_created"),
		},
		// A member's relationships by status, newest first
		{
			Keys:    bson.D{{Key: "member_id", Value: 1}, {Key: "status", Value: 1}, {Key: "created_at", Value: -1}},
			Options: options.Index().SetName("idx_rel_member_status_created"),
		},
		// Integrity sweep over deleted documents
		{
			Keys:    bson.D{{Key: "status", Value: 1}, {Key: "deleted_at", Value: 1}},
			Options: options.Index().SetName("idx_rel_status_deleted"),
		},
	})
}

func ensureInvitations(ctx context.Context, db *mongo.Database) error {
	c := db.Collection("coach_invitations")
	return ensureIndexSet(ctx, c, []mongo.IndexModel{
		// One pending invitation per (coach, email)
		{
			Keys: bson.D{{Key: "coach_id", Value: 1}, {Key: "email_ci", Value: 1}},
			Options: options.Index().
				SetUnique(true).
				SetName("uniq_inv_coach_email_pending").
				SetPartialFilterExpression(bson.M{"status": "pending"}),
		},
		// Claim lookup on sign-in
		{
			Keys:    bson.D{{Key: "email_ci", Value: 1}, {Key: "status", Value: 1}},
			Options: options.Index().SetName("idx_inv_email_status"),
		},
		{
			Keys:    bson.D{{Key: "token", Value: 1}},
			Options: options.Index().SetUnique(true).SetName("uniq_inv_token"),
		},
	})
}

func ensureAuditLogs(ctx context.Context, db *mongo.Database) error {
	c := db.Collection("audit_logs")
	return ensureIndexSet(ctx, c, []mongo.IndexModel{
		// Retention: documents expire at expires_at
		{
			Keys:    bson.D{{Key: "expires_at", Value: 1}},
			Options: options.Index().SetExpireAfterSeconds(0).SetName("ttl_audit_expires_at"),
		},
		// Newest-first listing
		{
			Keys:    bson.D{{Key: "timestamp", Value: -1}},
			Options: options.Index().SetName("idx_audit_ts"),
		},
		// Entity history, e.g. latest soft_delete_relationship for restore
		{
			Keys:    bson.D{{Key: "entity_type", Value: 1}, {Key: "entity_id", Value: 1}, {Key: "timestamp", Value: -1}},
			Options: options.Index().SetName("idx_audit_entity_ts"),
		},
		// Critical alerts window
		{
			Keys:    bson.D{{Key: "severity", Value: 1}, {Key: "timestamp", Value: -1}},
			Options: options.Index().SetName("idx_audit_severity_ts"),
		},
		{
			Keys:    bson.D{{Key: "actor_id", Value: 1}, {Key: "timestamp", Value: -1}},
			Options: options.Index().SetName("idx_audit_actor_ts"),
		},
	})
}
