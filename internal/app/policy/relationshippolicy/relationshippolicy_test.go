package relationshippolicy_test

import (
	"testing"

	"github.com/dalemusser/coachhub/internal/app/policy/relationshippolicy"
	"github.com/dalemusser/coachhub/internal/domain/models"
	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

func newRel(status models.RelationshipStatus, grants models.Grants) (models.Relationship, primitive.ObjectID, primitive.ObjectID) {
	coach, member := primitive.NewObjectID(), primitive.NewObjectID()
	return models.Relationship{
		ID:          primitive.NewObjectID(),
		CoachID:     coach,
		MemberID:    member,
		Status:      status,
		Permissions: grants,
	}, coach, member
}

func TestCapabilities_ActiveGrantsAllToBothParticipants(t *testing.T) {
	rel, coach, member := newRel(models.StatusActive, nil)

	for _, who := range []primitive.ObjectID{coach, member} {
		set := relationshippolicy.Capabilities(rel, who)
		assert.Equal(t, models.Capabilities, set.List())
	}
}

func TestCapabilities_NonActiveGrantsNothing(t *testing.T) {
	tests := []models.RelationshipStatus{
		models.StatusPending,
		models.StatusDeclined,
		models.StatusInactive,
		models.StatusDeleted,
	}
	for _, status := range tests {
		t.Run(string(status), func(t *testing.T) {
			rel, coach, member := newRel(status, models.Grants{models.CapViewGoals: true})
			assert.Empty(t, relationshippolicy.Capabilities(rel, coach))
			assert.Empty(t, relationshippolicy.Capabilities(rel, member))
		})
	}
}

func TestCapabilities_ExplicitDenyNarrows(t *testing.T) {
	rel, coach, _ := newRel(models.StatusActive, models.Grants{
		models.CapViewInsights: false,
		models.CapViewGoals:    true,
	})

	set := relationshippolicy.Capabilities(rel, coach)
	assert.True(t, set.Has(models.CapViewEntries))
	assert.False(t, set.Has(models.CapViewInsights))
	assert.True(t, set.Has(models.CapViewGoals))
	assert.False(t, relationshippolicy.Can(rel, coach, models.CapViewInsights))
}

func TestCapabilities_OutsiderGetsNothing(t *testing.T) {
	rel, _, _ := newRel(models.StatusActive, nil)
	assert.Empty(t, relationshippolicy.Capabilities(rel, primitive.NewObjectID()))
	assert.Empty(t, relationshippolicy.Capabilities(rel, primitive.NilObjectID))
}

func TestCapabilities_UnknownCapabilityNeverGranted(t *testing.T) {
	rel, coach, _ := newRel(models.StatusActive, models.Grants{"view_everything": true})
	assert.False(t, relationshippolicy.Can(rel, coach, "view_everything"))
}

func TestCapabilities_Properties(t *testing.T) {
	statuses := []interface{}{
		models.StatusPending, models.StatusActive, models.StatusInactive,
		models.StatusDeclined, models.StatusDeleted,
	}
	properties := gopter.NewProperties(nil)

	properties.Property("only active relationships grant capabilities", prop.ForAll(
		func(status models.RelationshipStatus, entries, insights, goals bool) bool {
			rel, coach, member := newRel(status, models.Grants{
				models.CapViewEntries:  entries,
				models.CapViewInsights: insights,
				models.CapViewGoals:    goals,
			})
			c := relationshippolicy.Capabilities(rel, coach)
			m := relationshippolicy.Capabilities(rel, member)
			if status != models.StatusActive {
				return len(c) == 0 && len(m) == 0
			}
			return c.Has(models.CapViewEntries) == entries &&
				c.Has(models.CapViewInsights) == insights &&
				c.Has(models.CapViewGoals) == goals
		},
		gen.OneConstOf(statuses...),
		gen.Bool(), gen.Bool(), gen.Bool(),
	))

	properties.Property("grants are symmetric", prop.ForAll(
		func(status models.RelationshipStatus, deny bool) bool {
			rel, coach, member := newRel(status, models.Grants{models.CapViewEntries: !deny})
			return assert.ObjectsAreEqual(
				relationshippolicy.Capabilities(rel, coach).List(),
				relationshippolicy.Capabilities(rel, member).List())
		},
		gen.OneConstOf(statuses...),
		gen.Bool(),
	))

	properties.TestingRun(t)
}
