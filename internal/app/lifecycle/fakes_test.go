package lifecycle_test

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/dalemusser/coachhub/internal/app/store/audit"
	invitationstore "github.com/dalemusser/coachhub/internal/app/store/invitations"
	relationshipstore "github.com/dalemusser/coachhub/internal/app/store/relationships"
	"github.com/dalemusser/coachhub/internal/app/system/identity"
	"github.com/dalemusser/coachhub/internal/app/system/normalize"
	"github.com/dalemusser/coachhub/internal/app/system/notify"
	"github.com/dalemusser/coachhub/internal/domain/models"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// memRelationships mirrors the Mongo store's guarantees: atomic
// compare-and-set and at most one live relationship per ordered pair.
type memRelationships struct {
	mu   sync.Mutex
	rels map[primitive.ObjectID]models.Relationship
	err  error
}

func newMemRelationships() *memRelationships {
	return &memRelationships{rels: map[primitive.ObjectID]models.Relationship{}}
}

func (m *memRelationships) liveConflict(rel models.Relationship) bool {
	for id, r := range m.rels {
		if id != rel.ID && r.Status.Live() && r.CoachID == rel.CoachID && r.MemberID == rel.MemberID {
			return true
		}
	}
	return false
}

func (m *memRelationships) Create(_ context.Context, rel *models.Relationship) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	if rel.ID.IsZero() {
		rel.ID = primitive.NewObjectID()
	}
	if rel.Status.Live() && m.liveConflict(*rel) {
		return relationshipstore.ErrDuplicateLive
	}
	m.rels[rel.ID] = cloneRel(*rel)
	return nil
}

func (m *memRelationships) GetByID(_ context.Context, id primitive.ObjectID) (models.Relationship, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return models.Relationship{}, m.err
	}
	r, ok := m.rels[id]
	if !ok {
		return models.Relationship{}, relationshipstore.ErrNotFound
	}
	if !r.Consistent() {
		return models.Relationship{}, relationshipstore.ErrInconsistent
	}
	return cloneRel(r), nil
}

func (m *memRelationships) FindLive(_ context.Context, coachID, memberID primitive.ObjectID) (*models.Relationship, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	for _, r := range m.rels {
		if r.CoachID == coachID && r.MemberID == memberID && r.Status.Live() {
			c := cloneRel(r)
			return &c, nil
		}
	}
	return nil, nil
}

func (m *memRelationships) ListForUser(_ context.Context, userID primitive.ObjectID, statuses ...models.RelationshipStatus) ([]models.Relationship, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	var out []models.Relationship
	for _, r := range m.rels {
		if !r.IsParticipant(userID) {
			continue
		}
		for _, s := range statuses {
			if r.Status == s {
				out = append(out, cloneRel(r))
				break
			}
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (m *memRelationships) CompareAndSet(_ context.Context, id primitive.ObjectID, expected models.RelationshipStatus, t relationshipstore.Transition) (models.Relationship, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return models.Relationship{}, m.err
	}
	r, ok := m.rels[id]
	if !ok {
		return models.Relationship{}, relationshipstore.ErrNotFound
	}
	if r.Status != expected {
		return models.Relationship{}, relationshipstore.ErrStatusMismatch
	}

	next := cloneRel(r)
	next.Status = t.To
	next.UpdatedAt = t.At
	if t.EndDate != nil {
		end := *t.EndDate
		next.EndDate = &end
	} else if t.ClearEndDate {
		next.EndDate = nil
	}
	if t.InvitationAcceptedAt != nil {
		at := *t.InvitationAcceptedAt
		next.InvitationAcceptedAt = &at
	}
	if t.Permissions != nil {
		next.Permissions = t.Permissions.Clone()
	}
	if t.Deletion != nil {
		at, by := t.Deletion.At, t.Deletion.By
		next.DeletedAt, next.DeletedBy, next.DeletionReason = &at, &by, t.Deletion.Reason
	} else {
		next.DeletedAt, next.DeletedBy, next.DeletionReason = nil, nil, ""
	}
	if next.Status.Live() && m.liveConflict(next) {
		return models.Relationship{}, relationshipstore.ErrDuplicateLive
	}
	m.rels[id] = next
	return cloneRel(next), nil
}

func (m *memRelationships) all() []models.Relationship {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]models.Relationship, 0, len(m.rels))
	for _, r := range m.rels {
		out = append(out, cloneRel(r))
	}
	return out
}

func cloneRel(r models.Relationship) models.Relationship {
	r.Permissions = r.Permissions.Clone()
	return r
}

type memIdentities struct {
	mu    sync.Mutex
	users map[primitive.ObjectID]*models.User
}

func newMemIdentities() *memIdentities {
	return &memIdentities{users: map[primitive.ObjectID]*models.User{}}
}

func (m *memIdentities) add(name, email, role string) *models.User {
	m.mu.Lock()
	defer m.mu.Unlock()
	u := &models.User{ID: primitive.NewObjectID(), FullName: name, Email: email, Role: role}
	m.users[u.ID] = u
	return u
}

func (m *memIdentities) ResolveByEmail(_ context.Context, email string) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if normalize.Email(u.Email) == normalize.Email(email) {
			return u, nil
		}
	}
	return nil, identity.ErrNotFound
}

func (m *memIdentities) ResolveByID(_ context.Context, id primitive.ObjectID) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if u, ok := m.users[id]; ok {
		return u, nil
	}
	return nil, identity.ErrNotFound
}

type memInvitations struct {
	mu   sync.Mutex
	invs map[primitive.ObjectID]*models.Invitation
}

func newMemInvitations() *memInvitations {
	return &memInvitations{invs: map[primitive.ObjectID]*models.Invitation{}}
}

func (m *memInvitations) Create(_ context.Context, coachID primitive.ObjectID, email string, ttl time.Duration) (models.Invitation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	email = normalize.Email(email)
	for _, inv := range m.invs {
		if inv.CoachID == coachID && inv.Email == email && inv.Status == models.InvitationPending {
			return models.Invitation{}, invitationstore.ErrDuplicateInvitation
		}
	}
	now := time.Now().UTC()
	inv := &models.Invitation{
		ID:        primitive.NewObjectID(),
		CoachID:   coachID,
		Email:     email,
		Token:     primitive.NewObjectID().Hex(),
		Status:    models.InvitationPending,
		ExpiresAt: now.Add(ttl),
		CreatedAt: now,
	}
	m.invs[inv.ID] = inv
	return *inv, nil
}

func (m *memInvitations) FindPending(_ context.Context, coachID primitive.ObjectID, email string) (*models.Invitation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, inv := range m.invs {
		if inv.CoachID == coachID && inv.Email == normalize.Email(email) && inv.Status == models.InvitationPending {
			c := *inv
			return &c, nil
		}
	}
	return nil, nil
}

func (m *memInvitations) ListPendingForEmail(_ context.Context, email string) ([]models.Invitation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.Invitation
	for _, inv := range m.invs {
		if inv.Email == normalize.Email(email) && inv.Status == models.InvitationPending {
			out = append(out, *inv)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (m *memInvitations) MarkClaimed(_ context.Context, id, relID primitive.ObjectID) error {
	return m.setStatus(id, models.InvitationClaimed, &relID)
}

func (m *memInvitations) Revoke(_ context.Context, id primitive.ObjectID) error {
	return m.setStatus(id, models.InvitationRevoked, nil)
}

func (m *memInvitations) setStatus(id primitive.ObjectID, status string, relID *primitive.ObjectID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	inv, ok := m.invs[id]
	if !ok || inv.Status != models.InvitationPending {
		return invitationstore.ErrNotFound
	}
	inv.Status = status
	inv.RelationshipID = relID
	return nil
}

func (m *memInvitations) get(id primitive.ObjectID) models.Invitation {
	m.mu.Lock()
	defer m.mu.Unlock()
	return *m.invs[id]
}

type memAudit struct {
	mu      sync.Mutex
	entries []audit.Entry
	lose    map[string]int // operation -> writes to drop
}

// loseNext makes the next n writes of operation disappear, as a failed
// audit insert would.
func (m *memAudit) loseNext(operation string, n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.lose == nil {
		m.lose = map[string]int{}
	}
	m.lose[operation] += n
}

func (m *memAudit) Record(_ context.Context, e audit.Entry) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.lose[e.Operation] > 0 {
		m.lose[e.Operation]--
		return
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now().UTC()
	}
	m.entries = append(m.entries, e)
}

func (m *memAudit) LatestFor(_ context.Context, entityType, entityID, operation string) (*audit.Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := len(m.entries) - 1; i >= 0; i-- {
		e := m.entries[i]
		if e.EntityType == entityType && e.EntityID == entityID && e.Operation == operation {
			return &e, nil
		}
	}
	return nil, audit.ErrNotFound
}

func (m *memAudit) count(operation, entityID string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, e := range m.entries {
		if e.Operation == operation && (entityID == "" || e.EntityID == entityID) {
			n++
		}
	}
	return n
}

type sentNotification struct {
	UserID  primitive.ObjectID
	Kind    notify.Kind
	Payload map[string]string
}

type memNotifier struct {
	mu   sync.Mutex
	sent []sentNotification
}

func (m *memNotifier) Notify(userID primitive.ObjectID, kind notify.Kind, payload map[string]string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, sentNotification{userID, kind, payload})
}

func (m *memNotifier) kinds() []notify.Kind {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]notify.Kind, 0, len(m.sent))
	for _, s := range m.sent {
		out = append(out, s.Kind)
	}
	return out
}

type countingGuard struct {
	mu   sync.Mutex
	hits map[primitive.ObjectID]int
}

func (g *countingGuard) Observe(_ context.Context, actorID primitive.ObjectID) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.hits == nil {
		g.hits = map[primitive.ObjectID]int{}
	}
	g.hits[actorID]++
}

var errStoreDown = errors.New("store down")
