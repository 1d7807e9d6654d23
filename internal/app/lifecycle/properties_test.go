package lifecycle_test

import (
	"context"
	"errors"
	"testing"

	"github.com/dalemusser/coachhub/internal/app/lifecycle"
	"github.com/dalemusser/coachhub/internal/domain/models"
	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

type pair struct{ coach, member *models.User }

// applyOps drives the engine with a sequence of encoded operations and
// reports whether any step broke an invariant.
func applyOps(t *testing.T, ops []int) bool {
	h := newHarness(t)
	ctx := context.Background()
	coach2 := h.users.add("Coach Two", "c2@example.com", models.RoleCoach)
	member2 := h.users.add("Member Two", "m2@example.com", models.RoleClient)
	pairs := []pair{{h.coach, h.member}, {h.coach, member2}, {coach2, h.member}}
	latest := map[int]primitive.ObjectID{}

	for _, v := range ops {
		p := (v / 6) % len(pairs)
		pr := pairs[p]
		id := latest[p]

		var err error
		switch v % 6 {
		case 0:
			var req lifecycle.ConnectionRequest
			req, err = h.engine.CreateConnectionRequest(ctx, actorOf(pr.coach), pr.member.Email)
			if err == nil {
				latest[p] = req.Relationship.ID
			}
		case 1:
			_, err = h.engine.RespondToRequest(ctx, id, pr.member.ID, models.StatusActive)
		case 2:
			_, err = h.engine.RespondToRequest(ctx, id, pr.member.ID, models.StatusDeclined)
		case 3:
			_, err = h.engine.Deactivate(ctx, id, actorOf(pr.coach))
		case 4:
			_, err = h.engine.SoftDelete(ctx, id, actorOf(pr.member), "")
		case 5:
			_, err = h.engine.Restore(ctx, id, actorOf(h.admin))
		}
		if errors.Is(err, lifecycle.ErrStorage) {
			return false
		}

		live := map[[2]primitive.ObjectID]int{}
		for _, r := range h.rels.all() {
			// deleted if and only if deleted_at is set
			if (r.Status == models.StatusDeleted) != (r.DeletedAt != nil) {
				return false
			}
			if !r.Consistent() {
				return false
			}
			if r.Status.Live() {
				live[[2]primitive.ObjectID{r.CoachID, r.MemberID}]++
			}
		}
		for _, n := range live {
			if n > 1 {
				return false
			}
		}
	}
	return true
}

func TestEngine_Properties(t *testing.T) {
	params := gopter.DefaultTestParameters()
	params.MinSuccessfulTests = 200
	properties := gopter.NewProperties(params)

	properties.Property("status and soft-delete fields agree; one live relationship per pair", prop.ForAll(
		func(ops []int) bool { return applyOps(t, ops) },
		gen.SliceOf(gen.IntRange(0, 17)),
	))

	properties.Property("soft delete then restore returns the prior status", prop.ForAll(
		func(steps int) bool {
			h := newHarness(t)
			ctx := context.Background()
			var rel models.Relationship
			switch steps % 3 {
			case 0:
				rel = h.pending(t)
			case 1:
				rel = h.active(t)
			default:
				rel = h.active(t)
				var err error
				if rel, err = h.engine.Deactivate(ctx, rel.ID, actorOf(h.coach)); err != nil {
					return false
				}
			}
			if _, err := h.engine.SoftDelete(ctx, rel.ID, actorOf(h.member), ""); err != nil {
				return false
			}
			if _, err := h.engine.SoftDelete(ctx, rel.ID, actorOf(h.coach), ""); err != nil {
				return false
			}
			restored, err := h.engine.Restore(ctx, rel.ID, actorOf(h.admin))
			return err == nil && restored.Status == rel.Status
		},
		gen.IntRange(0, 2),
	))

	properties.TestingRun(t)
}
