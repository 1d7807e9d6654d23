// internal/app/system/massdelete/guard.go
package massdelete

import (
	"context"
	"fmt"
	"time"

	"github.com/dalemusser/coachhub/internal/app/store/audit"
	"github.com/dalemusser/coachhub/internal/app/system/metrics"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

// Defaults used when Config leaves a field zero.
const (
	DefaultThreshold = 10
	DefaultWindow    = 5 * time.Minute
)

// Config sets when a burst of soft deletes counts as a mass delete.
type Config struct {
	// Threshold is the number of soft deletes by one actor inside Window
	// that, when exceeded, raises MASS_DELETE_DETECTED.
	Threshold int
	Window    time.Duration
}

// AuditWriter is the write path of the audit recorder.
type AuditWriter interface {
	Record(ctx context.Context, e audit.Entry)
}

// Guard watches committed soft deletes per actor and records a critical
// MASS_DELETE_DETECTED entry once per window when an actor exceeds the
// threshold. It never blocks or fails the delete itself.
type Guard struct {
	window  Window
	cfg     Config
	audit   AuditWriter
	log     *zap.Logger
	metrics *metrics.Metrics
	now     func() time.Time
}

// NewGuard creates a Guard. w must count over cfg.Window.
func NewGuard(w Window, cfg Config, aw AuditWriter, logger *zap.Logger, m *metrics.Metrics) *Guard {
	if cfg.Threshold <= 0 {
		cfg.Threshold = DefaultThreshold
	}
	if cfg.Window <= 0 {
		cfg.Window = DefaultWindow
	}
	return &Guard{
		window:  w,
		cfg:     cfg,
		audit:   aw,
		log:     logger,
		metrics: m,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// Observe counts one soft delete by actorID.
func (g *Guard) Observe(ctx context.Context, actorID primitive.ObjectID) {
	if g == nil {
		return
	}
	key := actorID.Hex()
	now := g.now()

	n, err := g.window.Hit(ctx, key, now)
	if err != nil {
		g.log.Warn("mass-delete window unavailable", zap.Error(err), zap.String("actor_id", key))
		return
	}
	if n <= g.cfg.Threshold {
		return
	}

	first, err := g.window.MarkAlerted(ctx, key, now)
	if err != nil {
		g.log.Warn("mass-delete alert marker unavailable", zap.Error(err), zap.String("actor_id", key))
		first = true
	}
	if !first {
		return
	}

	g.metrics.ObserveMassDelete()
	g.log.Error("mass delete detected",
		zap.String("actor_id", key),
		zap.Int("count", n),
		zap.Int("threshold", g.cfg.Threshold),
		zap.Duration("window", g.cfg.Window))

	g.audit.Record(ctx, audit.Entry{
		Operation:  audit.OpMassDeleteDetected,
		Severity:   audit.SeverityCritical,
		EntityType: audit.EntityUser,
		EntityID:   key,
		ActorID:    &actorID,
		AfterState: bson.M{
			"count":          n,
			"threshold":      g.cfg.Threshold,
			"window_seconds": int64(g.cfg.Window.Seconds()),
		},
		Message: fmt.Sprintf("actor soft-deleted %d relationships within %s (threshold %d)",
			n, g.cfg.Window, g.cfg.Threshold),
	})
}
