// internal/app/store/relationships/relationshipstore.go
package relationshipstore

import (
	"context"
	"errors"
	"time"

	"github.com/dalemusser/coachhub/internal/domain/models"
	wafflemongo "github.com/dalemusser/waffle/pantry/mongo"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// CollectionName is the Mongo collection holding relationship documents.
const CollectionName = "coaching_relationships"

var (
	// ErrNotFound is returned when no relationship has the requested id.
	ErrNotFound = errors.New("relationship not found")
	// ErrStatusMismatch is returned by CompareAndSet when the stored status
	// no longer matches the expected one.
	ErrStatusMismatch = errors.New("relationship status changed concurrently")
	// ErrDuplicateLive is returned when a write would leave two pending or
	// active relationships for the same coach/member pair.
	ErrDuplicateLive = errors.New("a pending or active relationship already exists for this pair")
	// ErrInconsistent is returned for documents whose status and
	// soft-delete fields disagree.
	ErrInconsistent = errors.New("relationship document is inconsistent")

	errDeletionRequired = errors.New("transition to deleted requires deletion details")
)

// Store persists coaching relationships. It guarantees atomic
// single-document writes and canonical reads; it does not enforce
// lifecycle rules.
type Store struct {
	c *mongo.Collection
}

// New creates a relationship Store.
func New(db *mongo.Database) *Store {
	return &Store{c: db.Collection(CollectionName)}
}

// LiveKey is the value of the uniquely indexed live_key field. It is only
// present while a relationship is pending or active.
func LiveKey(coachID, memberID primitive.ObjectID) string {
	return coachID.Hex() + ":" + memberID.Hex()
}

// Create inserts rel. ID and timestamps are filled in when zero.
func (s *Store) Create(ctx context.Context, rel *models.Relationship) error {
	if rel.Status == models.StatusDeleted && (rel.DeletedAt == nil || rel.DeletedBy == nil) {
		return errDeletionRequired
	}
	now := time.Now().UTC()
	if rel.ID.IsZero() {
		rel.ID = primitive.NewObjectID()
	}
	if rel.CreatedAt.IsZero() {
		rel.CreatedAt = now
	}
	if rel.UpdatedAt.IsZero() {
		rel.UpdatedAt = rel.CreatedAt
	}
	if rel.StartDate.IsZero() {
		rel.StartDate = rel.CreatedAt
	}
	if rel.Permissions == nil {
		rel.Permissions = models.Grants{}
	}

	if _, err := s.c.InsertOne(ctx, toDocument(*rel)); err != nil {
		if isDup(err) {
			return ErrDuplicateLive
		}
		return err
	}
	return nil
}

// GetByID loads a relationship by id.
func (s *Store) GetByID(ctx context.Context, id primitive.ObjectID) (models.Relationship, error) {
	var doc document
	if err := s.c.FindOne(ctx, bson.M{"_id": id}).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return models.Relationship{}, ErrNotFound
		}
		return models.Relationship{}, err
	}
	return doc.normalize()
}

// FindLive returns the pending or active relationship for the ordered
// (coach, member) pair, or nil when there is none.
func (s *Store) FindLive(ctx context.Context, coachID, memberID primitive.ObjectID) (*models.Relationship, error) {
	filter := bson.M{
		"$and": []bson.M{
			coachFilter(coachID),
			memberFilter(memberID),
			statusFilter(models.StatusPending, models.StatusActive),
		},
	}
	var doc document
	if err := s.c.FindOne(ctx, filter).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, nil
		}
		return nil, err
	}
	rel, err := doc.normalize()
	if err != nil {
		return nil, err
	}
	return &rel, nil
}

// Exists reports whether a pending or active relationship exists for the
// ordered (coach, member) pair.
func (s *Store) Exists(ctx context.Context, coachID, memberID primitive.ObjectID) (bool, error) {
	rel, err := s.FindLive(ctx, coachID, memberID)
	if err != nil {
		return false, err
	}
	return rel != nil, nil
}

// FindBetween returns every relationship between a and b in either
// direction, newest first.
func (s *Store) FindBetween(ctx context.Context, a, b primitive.ObjectID) ([]models.Relationship, error) {
	filter := bson.M{"$or": []bson.M{
		{"$and": []bson.M{coachFilter(a), memberFilter(b)}},
		{"$and": []bson.M{coachFilter(b), memberFilter(a)}},
	}}
	return s.find(ctx, filter)
}

// ListForUser returns relationships where userID is coach or member,
// optionally restricted to the given statuses, newest first. Documents in
// an inconsistent shape are skipped.
func (s *Store) ListForUser(ctx context.Context, userID primitive.ObjectID, statuses ...models.RelationshipStatus) ([]models.Relationship, error) {
	clauses := []bson.M{participantFilter(userID)}
	if len(statuses) > 0 {
		clauses = append(clauses, statusFilter(statuses...))
	}
	return s.find(ctx, bson.M{"$and": clauses})
}

func (s *Store) find(ctx context.Context, filter bson.M) ([]models.Relationship, error) {
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}, {Key: "_id", Value: -1}})
	cur, err := s.c.Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var out []models.Relationship
	for cur.Next(ctx) {
		var doc document
		if err := cur.Decode(&doc); err != nil {
			return nil, err
		}
		rel, err := doc.normalize()
		if errors.Is(err, ErrInconsistent) {
			continue
		}
		if err != nil {
			return nil, err
		}
		out = append(out, rel)
	}
	return out, cur.Err()
}

// Deletion carries the soft-delete fields written with a transition to
// the deleted status.
type Deletion struct {
	At     time.Time
	By     primitive.ObjectID
	Reason string
}

// Transition describes one atomic update applied by CompareAndSet.
type Transition struct {
	To                   models.RelationshipStatus
	At                   time.Time
	EndDate              *time.Time // written when non-nil
	ClearEndDate         bool
	InvitationAcceptedAt *time.Time
	Deletion             *Deletion     // required when To is deleted
	Permissions          models.Grants // replaces grants when non-nil
}

// CompareAndSet applies t only if the stored status still equals expected.
// It returns ErrNotFound when the id does not resolve, ErrStatusMismatch
// when the status moved, and ErrDuplicateLive when t would create a second
// live relationship for the pair.
func (s *Store) CompareAndSet(ctx context.Context, id primitive.ObjectID, expected models.RelationshipStatus, t Transition) (models.Relationship, error) {
	if t.To == models.StatusDeleted && t.Deletion == nil {
		return models.Relationship{}, errDeletionRequired
	}
	at := t.At
	if at.IsZero() {
		at = time.Now().UTC()
	}

	// Values go through $literal because the update is a pipeline and
	// user-supplied strings or empty documents would otherwise be parsed
	// as expressions.
	set := bson.M{
		"status":     literal(string(t.To)),
		"updated_at": literal(at),
	}
	unset := bson.M{}

	if t.EndDate != nil {
		set["end_date"] = literal(*t.EndDate)
	} else if t.ClearEndDate {
		unset["end_date"] = ""
	}
	if t.InvitationAcceptedAt != nil {
		set["invitation_accepted_at"] = literal(*t.InvitationAcceptedAt)
	}
	if t.Permissions != nil {
		set["permissions"] = literal(t.Permissions)
	}
	if t.Deletion != nil {
		set["deleted_at"] = literal(t.Deletion.At)
		set["deleted_by"] = literal(t.Deletion.By)
		set["deletion_reason"] = literal(t.Deletion.Reason)
	} else {
		unset["deleted_at"] = ""
		unset["deleted_by"] = ""
		unset["deletion_reason"] = ""
	}

	// live_key follows the status. The pair is read back from the current
	// document inside the same update via an aggregation pipeline so the
	// write stays a single atomic operation.
	if !t.To.Live() {
		unset["live_key"] = ""
	}

	update := []bson.M{{"$set": set}}
	if t.To.Live() {
		update = append(update, bson.M{"$set": bson.M{"live_key": bson.M{"$concat": bson.A{
			bson.M{"$toString": bson.M{"$ifNull": bson.A{"$coach_id", "$coach_user_id"}}},
			":",
			bson.M{"$toString": bson.M{"$ifNull": bson.A{"$member_id", "$client_user_id"}}},
		}}}})
	}
	if len(unset) > 0 {
		fields := make(bson.A, 0, len(unset))
		for k := range unset {
			fields = append(fields, k)
		}
		update = append(update, bson.M{"$unset": fields})
	}

	filter := bson.M{"$and": []bson.M{
		{"_id": id},
		statusFilter(expected),
	}}
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)

	var doc document
	err := s.c.FindOneAndUpdate(ctx, filter, update, opts).Decode(&doc)
	if err == nil {
		return doc.normalize()
	}
	if isDup(err) {
		return models.Relationship{}, ErrDuplicateLive
	}
	if !errors.Is(err, mongo.ErrNoDocuments) {
		return models.Relationship{}, err
	}

	n, cerr := s.c.CountDocuments(ctx, bson.M{"_id": id})
	if cerr != nil {
		return models.Relationship{}, cerr
	}
	if n == 0 {
		return models.Relationship{}, ErrNotFound
	}
	return models.Relationship{}, ErrStatusMismatch
}

func literal(v interface{}) bson.M {
	return bson.M{"$literal": v}
}

func isDup(err error) bool {
	return wafflemongo.IsDup(err) || mongo.IsDuplicateKeyError(err)
}

// InconsistentRef identifies a document whose status and soft-delete
// fields disagree.
type InconsistentRef struct {
	ID     primitive.ObjectID `bson:"_id"`
	Status string             `bson:"status"`
}

// FindInconsistent returns up to limit documents that violate the
// deleted-iff-deleted_at rule. Used by the integrity sweep.
func (s *Store) FindInconsistent(ctx context.Context, limit int64) ([]InconsistentRef, error) {
	filter := bson.M{"$or": []bson.M{
		{"status": string(models.StatusDeleted), "deleted_at": nil},
		{"status": string(models.StatusDeleted), "deleted_by": nil},
		{"status": bson.M{"$ne": string(models.StatusDeleted)}, "deleted_at": bson.M{"$ne": nil}},
	}}
	opts := options.Find().
		SetProjection(bson.M{"_id": 1, "status": 1}).
		SetLimit(limit)

	cur, err := s.c.Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var refs []InconsistentRef
	if err := cur.All(ctx, &refs); err != nil {
		return nil, err
	}
	return refs, nil
}

// CountByStatus returns relationship counts keyed by canonical status.
func (s *Store) CountByStatus(ctx context.Context) (map[models.RelationshipStatus]int64, error) {
	cur, err := s.c.Aggregate(ctx, []bson.M{
		{"$group": bson.M{"_id": "$status", "n": bson.M{"$sum": 1}}},
	})
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	out := make(map[models.RelationshipStatus]int64)
	for cur.Next(ctx) {
		var row struct {
			Status string `bson:"_id"`
			N      int64  `bson:"n"`
		}
		if err := cur.Decode(&row); err != nil {
			return nil, err
		}
		out[NormalizeStatus(row.Status)] += row.N
	}
	return out, cur.Err()
}
