package tasks

import (
	"context"
	"sync"
	"time"

	"github.com/dalemusser/coachhub/internal/app/store/audit"
	relationshipstore "github.com/dalemusser/coachhub/internal/app/store/relationships"
	"github.com/dalemusser/coachhub/internal/app/system/metrics"
	"github.com/dalemusser/coachhub/internal/domain/models"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

// Purger removes expired audit entries.
type Purger interface {
	PurgeExpired(ctx context.Context) (int64, error)
}

// AuditPurgeJob deletes expired audit entries. This backs up the TTL
// index, whose monitor only runs about once a minute and may lag.
func AuditPurgeJob(p Purger, logger *zap.Logger, interval time.Duration) Job {
	return Job{
		Name:     "audit-purge",
		Interval: interval,
		Run: func(ctx context.Context) error {
			count, err := p.PurgeExpired(ctx)
			if err != nil {
				return err
			}
			if count > 0 {
				logger.Info("purged expired audit entries", zap.Int64("count", count))
			}
			return nil
		},
	}
}

// RelationshipScanner is the store surface used by the integrity sweep.
type RelationshipScanner interface {
	FindInconsistent(ctx context.Context, limit int64) ([]relationshipstore.InconsistentRef, error)
	CountByStatus(ctx context.Context) (map[models.RelationshipStatus]int64, error)
}

// AuditWriter records audit entries.
type AuditWriter interface {
	Record(ctx context.Context, e audit.Entry)
}

// Integrity finds relationship documents whose status and soft-delete
// fields disagree and reports each one once as a critical audit entry.
type Integrity struct {
	rels    RelationshipScanner
	audit   AuditWriter
	log     *zap.Logger
	metrics *metrics.Metrics
	limit   int64

	mu       sync.Mutex
	reported map[primitive.ObjectID]struct{}
}

// NewIntegrity creates an Integrity checker that inspects at most limit
// documents per pass.
func NewIntegrity(rels RelationshipScanner, aw AuditWriter, logger *zap.Logger, m *metrics.Metrics, limit int64) *Integrity {
	if limit <= 0 {
		limit = 500
	}
	return &Integrity{
		rels:     rels,
		audit:    aw,
		log:      logger,
		metrics:  m,
		limit:    limit,
		reported: map[primitive.ObjectID]struct{}{},
	}
}

// Check runs one pass and returns every inconsistent document found.
// Documents already reported by an earlier pass are returned but not
// recorded again. It also refreshes the per-status gauge.
func (c *Integrity) Check(ctx context.Context) ([]relationshipstore.InconsistentRef, error) {
	refs, err := c.rels.FindInconsistent(ctx, c.limit)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	seen := make(map[primitive.ObjectID]struct{}, len(refs))
	var fresh []relationshipstore.InconsistentRef
	for _, ref := range refs {
		seen[ref.ID] = struct{}{}
		if _, ok := c.reported[ref.ID]; !ok {
			fresh = append(fresh, ref)
		}
	}
	c.reported = seen
	c.mu.Unlock()

	for _, ref := range fresh {
		c.metrics.ObserveIntegrityFailure()
		c.audit.Record(ctx, audit.Entry{
			Operation:  audit.OpIntegrityCheckFailed,
			Severity:   audit.SeverityCritical,
			EntityType: audit.EntityRelationship,
			EntityID:   ref.ID.Hex(),
			AfterState: bson.M{"status": ref.Status},
			Message:    "relationship status and soft-delete fields disagree",
		})
	}
	if len(refs) > 0 {
		c.log.Warn("inconsistent relationships found",
			zap.Int("count", len(refs)),
			zap.Int("new", len(fresh)))
	}

	if counts, err := c.rels.CountByStatus(ctx); err != nil {
		c.log.Warn("count relationships by status failed", zap.Error(err))
	} else {
		byName := make(map[string]int64, len(counts))
		for s, n := range counts {
			byName[string(s)] = n
		}
		c.metrics.SetStatusCounts(byName)
	}
	return refs, nil
}

// IntegritySweepJob runs c.Check every interval.
func IntegritySweepJob(c *Integrity, interval time.Duration) Job {
	return Job{
		Name:     "integrity-sweep",
		Interval: interval,
		Run: func(ctx context.Context) error {
			_, err := c.Check(ctx)
			return err
		},
	}
}
