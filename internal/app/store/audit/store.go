// internal/app/store/audit/store.go
package audit

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// CollectionName is the Mongo collection holding audit entries.
const CollectionName = "audit_logs"

// Operations
const (
	OpCreate               = "create"
	OpUpdate               = "update"
	OpDelete               = "delete"
	OpSoftDelete           = "soft_delete_relationship"
	OpRestore              = "restore"
	OpMassDeleteDetected   = "mass_delete_detected"
	OpIntegrityCheckFailed = "integrity_check_failed"
)

// Severities
const (
	SeverityInfo      = "info"
	SeverityWarning   = "warning"
	SeverityCritical  = "critical"
	SeverityEmergency = "emergency"
)

// Entity types
const (
	EntityRelationship = "coaching_relationship"
	EntityInvitation   = "coach_invitation"
	EntityUser         = "user"
)

// Retention periods by severity.
const (
	RetentionStandard = 30 * 24 * time.Hour
	RetentionCritical = 90 * 24 * time.Hour
)

const (
	defaultLimit = 100
	maxLimit     = 1000
)

// ErrNotFound is returned by LatestFor when no entry matches.
var ErrNotFound = errors.New("audit entry not found")

// Entry is one immutable audit record.
type Entry struct {
	ID        primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	Timestamp time.Time          `bson:"timestamp" json:"timestamp"`
	ExpiresAt time.Time          `bson:"expires_at" json:"expires_at"`

	Operation string `bson:"operation" json:"operation"`
	Severity  string `bson:"severity" json:"severity"`

	EntityType string              `bson:"entity_type" json:"entity_type"`
	EntityID   string              `bson:"entity_id" json:"entity_id"`
	ActorID    *primitive.ObjectID `bson:"actor_id,omitempty" json:"actor_id,omitempty"`

	BeforeState bson.M `bson:"before_state,omitempty" json:"before_state,omitempty"`
	AfterState  bson.M `bson:"after_state,omitempty" json:"after_state,omitempty"`
	Message     string `bson:"message,omitempty" json:"message,omitempty"`
}

// IsCritical reports whether severity is critical or emergency.
func IsCritical(severity string) bool {
	return severity == SeverityCritical || severity == SeverityEmergency
}

// ValidSeverity reports whether s is a known severity.
func ValidSeverity(s string) bool {
	switch s {
	case SeverityInfo, SeverityWarning, SeverityCritical, SeverityEmergency:
		return true
	}
	return false
}

// RetentionFor returns how long an entry of the given severity is kept.
func RetentionFor(severity string) time.Duration {
	if IsCritical(severity) {
		return RetentionCritical
	}
	return RetentionStandard
}

// QueryFilter defines filters for querying audit entries.
type QueryFilter struct {
	EntityType string
	EntityID   string
	Operation  string
	Severities []string
	ActorID    *primitive.ObjectID
	StartTime  *time.Time
	EndTime    *time.Time
	Limit      int64
	Offset     int64
}

// Store manages audit entries.
type Store struct {
	c *mongo.Collection
}

// New creates a new audit Store.
func New(db *mongo.Database) *Store {
	return &Store{c: db.Collection(CollectionName)}
}

// Log records an entry. ID, Timestamp, Severity and ExpiresAt are filled
// in when zero.
func (s *Store) Log(ctx context.Context, e Entry) (Entry, error) {
	if e.ID.IsZero() {
		e.ID = primitive.NewObjectID()
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now().UTC()
	}
	if e.Severity == "" {
		e.Severity = SeverityInfo
	}
	if e.ExpiresAt.IsZero() {
		e.ExpiresAt = e.Timestamp.Add(RetentionFor(e.Severity))
	}
	if _, err := s.c.InsertOne(ctx, e); err != nil {
		return Entry{}, err
	}
	return e, nil
}

func buildQuery(filter QueryFilter) bson.M {
	query := bson.M{}
	if filter.EntityType != "" {
		query["entity_type"] = filter.EntityType
	}
	if filter.EntityID != "" {
		query["entity_id"] = filter.EntityID
	}
	if filter.Operation != "" {
		query["operation"] = filter.Operation
	}
	if len(filter.Severities) > 0 {
		query["severity"] = bson.M{"$in": filter.Severities}
	}
	if filter.ActorID != nil {
		query["actor_id"] = filter.ActorID
	}

	// Time range
	if filter.StartTime != nil || filter.EndTime != nil {
		timeQuery := bson.M{}
		if filter.StartTime != nil {
			timeQuery["$gte"] = *filter.StartTime
		}
		if filter.EndTime != nil {
			timeQuery["$lte"] = *filter.EndTime
		}
		query["timestamp"] = timeQuery
	}
	return query
}

// Query retrieves entries matching the filter, newest first.
func (s *Store) Query(ctx context.Context, filter QueryFilter) ([]Entry, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = defaultLimit
	}
	if limit > maxLimit {
		limit = maxLimit
	}

	opts := options.Find().
		SetSort(bson.D{{Key: "timestamp", Value: -1}, {Key: "_id", Value: -1}}).
		SetLimit(limit).
		SetSkip(filter.Offset)

	cursor, err := s.c.Find(ctx, buildQuery(filter), opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var entries []Entry
	if err := cursor.All(ctx, &entries); err != nil {
		return nil, err
	}
	return entries, nil
}

// CountByFilter returns the count of entries matching the filter.
func (s *Store) CountByFilter(ctx context.Context, filter QueryFilter) (int64, error) {
	return s.c.CountDocuments(ctx, buildQuery(filter))
}

// LatestFor returns the newest entry for an entity with the given operation.
func (s *Store) LatestFor(ctx context.Context, entityType, entityID, operation string) (*Entry, error) {
	entries, err := s.Query(ctx, QueryFilter{
		EntityType: entityType,
		EntityID:   entityID,
		Operation:  operation,
		Limit:      1,
	})
	if err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		return nil, ErrNotFound
	}
	return &entries[0], nil
}

// CriticalSince returns critical and emergency entries at or after since.
func (s *Store) CriticalSince(ctx context.Context, since time.Time, limit int64) ([]Entry, error) {
	return s.Query(ctx, QueryFilter{
		Severities: []string{SeverityCritical, SeverityEmergency},
		StartTime:  &since,
		Limit:      limit,
	})
}

// PurgeExpired deletes entries whose expiry is at or before now and
// returns how many were removed. The TTL index does the same lazily.
func (s *Store) PurgeExpired(ctx context.Context, now time.Time) (int64, error) {
	res, err := s.c.DeleteMany(ctx, bson.M{"expires_at": bson.M{"$lte": now}})
	if err != nil {
		return 0, err
	}
	return res.DeletedCount, nil
}
