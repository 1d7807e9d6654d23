// internal/app/system/auditlog/logger.go
package auditlog

import (
	"context"
	"errors"
	"time"

	"github.com/dalemusser/coachhub/internal/app/store/audit"
	"github.com/dalemusser/coachhub/internal/app/system/htmlsanitize"
	"github.com/dalemusser/coachhub/internal/app/system/metrics"
	"go.mongodb.org/mongo-driver/bson"
	"go.uber.org/zap"
)

// Logging modes.
const (
	ModeAll = "all" // MongoDB + zap
	ModeDB  = "db"  // MongoDB only
	ModeLog = "log" // zap only
	ModeOff = "off" // disabled
)

const maxMessageLen = 2000

// ValidMode reports whether m is a known logging mode.
func ValidMode(m string) bool {
	switch m {
	case ModeAll, ModeDB, ModeLog, ModeOff:
		return true
	}
	return false
}

// Config holds audit logging configuration.
type Config struct {
	// Mode controls where entries go: "all", "db", "log" or "off".
	Mode string
}

// Recorder writes audit entries to MongoDB (via audit.Store) and
// structured logs (via zap). A failed write is logged and counted but
// never returned to the caller.
type Recorder struct {
	store   *audit.Store
	zapLog  *zap.Logger
	config  Config
	metrics *metrics.Metrics
}

// New creates a new audit Recorder.
func New(store *audit.Store, zapLog *zap.Logger, config Config, m *metrics.Metrics) *Recorder {
	if config.Mode == "" {
		config.Mode = ModeAll
	}
	return &Recorder{
		store:   store,
		zapLog:  zapLog,
		config:  config,
		metrics: m,
	}
}

// Snapshot converts v (typically a models.Relationship) into the document
// stored as before_state/after_state. It returns nil if v cannot be encoded.
func Snapshot(v interface{}) bson.M {
	if v == nil {
		return nil
	}
	raw, err := bson.Marshal(v)
	if err != nil {
		return nil
	}
	var out bson.M
	if err := bson.Unmarshal(raw, &out); err != nil {
		return nil
	}
	return out
}

// logToZap logs the entry to zap with consistent structure.
func (r *Recorder) logToZap(e audit.Entry) {
	fields := []zap.Field{
		zap.Bool("audit", true),
		zap.String("operation", e.Operation),
		zap.String("severity", e.Severity),
		zap.String("entity_type", e.EntityType),
		zap.String("entity_id", e.EntityID),
	}
	if e.ActorID != nil {
		fields = append(fields, zap.String("actor_id", e.ActorID.Hex()))
	}
	if e.Message != "" {
		fields = append(fields, zap.String("message", e.Message))
	}
	if s, ok := e.BeforeState["status"].(string); ok {
		fields = append(fields, zap.String("before_status", s))
	}
	if s, ok := e.AfterState["status"].(string); ok {
		fields = append(fields, zap.String("after_status", s))
	}

	switch e.Severity {
	case audit.SeverityCritical, audit.SeverityEmergency:
		r.zapLog.Error("audit event", fields...)
	case audit.SeverityWarning:
		r.zapLog.Warn("audit event", fields...)
	default:
		r.zapLog.Info("audit event", fields...)
	}
}

// Record stores e according to the configured mode. If the recorder is
// nil this is a no-op.
func (r *Recorder) Record(ctx context.Context, e audit.Entry) {
	if r == nil || r.config.Mode == ModeOff {
		return
	}
	if e.Severity == "" {
		e.Severity = audit.SeverityInfo
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now().UTC()
	}
	e.Message = htmlsanitize.Limit(e.Message, maxMessageLen)

	if r.config.Mode == ModeAll || r.config.Mode == ModeLog {
		r.logToZap(e)
	}

	failed := false
	if r.config.Mode == ModeAll || r.config.Mode == ModeDB {
		if _, err := r.store.Log(ctx, e); err != nil {
			failed = true
			r.zapLog.Error("failed to store audit entry",
				zap.Error(err),
				zap.String("operation", e.Operation),
				zap.String("entity_id", e.EntityID),
			)
		}
	}
	r.metrics.ObserveAudit(e.Operation, e.Severity, failed)
}

// ErrNotPersisted is returned by reads when the recorder is not writing to
// MongoDB.
var ErrNotPersisted = errors.New("audit entries are not persisted in this mode")

func (r *Recorder) persisted() bool {
	return r != nil && (r.config.Mode == ModeAll || r.config.Mode == ModeDB)
}

// LatestFor returns the newest entry for an entity and operation.
func (r *Recorder) LatestFor(ctx context.Context, entityType, entityID, operation string) (*audit.Entry, error) {
	if !r.persisted() {
		return nil, ErrNotPersisted
	}
	return r.store.LatestFor(ctx, entityType, entityID, operation)
}

// AuditLogs returns entries matching filter, newest first.
func (r *Recorder) AuditLogs(ctx context.Context, filter audit.QueryFilter) ([]audit.Entry, error) {
	if !r.persisted() {
		return nil, ErrNotPersisted
	}
	return r.store.Query(ctx, filter)
}

// CountAuditLogs returns how many entries match filter, ignoring its
// limit and offset.
func (r *Recorder) CountAuditLogs(ctx context.Context, filter audit.QueryFilter) (int64, error) {
	if !r.persisted() {
		return 0, ErrNotPersisted
	}
	return r.store.CountByFilter(ctx, filter)
}

// CriticalAlerts returns critical and emergency entries from the last
// hours hours, newest first.
func (r *Recorder) CriticalAlerts(ctx context.Context, hours int, limit int64) ([]audit.Entry, error) {
	if !r.persisted() {
		return nil, ErrNotPersisted
	}
	if hours <= 0 {
		hours = 24
	}
	since := time.Now().UTC().Add(-time.Duration(hours) * time.Hour)
	return r.store.CriticalSince(ctx, since, limit)
}

// PurgeExpired deletes expired entries and returns how many were removed.
func (r *Recorder) PurgeExpired(ctx context.Context) (int64, error) {
	if !r.persisted() {
		return 0, nil
	}
	n, err := r.store.PurgeExpired(ctx, time.Now().UTC())
	if err != nil {
		return 0, err
	}
	if n > 0 {
		r.zapLog.Info("purged expired audit entries", zap.Int64("count", n))
	}
	return n, nil
}
