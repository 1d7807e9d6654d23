// internal/app/features/auditlog/handler.go
package auditlog

import (
	"context"

	"github.com/dalemusser/coachhub/internal/app/store/audit"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
)

// Reader is the read side of the audit recorder.
// *auditlog.Recorder satisfies it.
type Reader interface {
	AuditLogs(ctx context.Context, filter audit.QueryFilter) ([]audit.Entry, error)
	CountAuditLogs(ctx context.Context, filter audit.QueryFilter) (int64, error)
	CriticalAlerts(ctx context.Context, hours int, limit int64) ([]audit.Entry, error)
}

type Handler struct {
	Audit    Reader
	Log      *zap.Logger
	validate *validator.Validate
}

// NewHandler constructs an audit log feature handler.
func NewHandler(reader Reader, logger *zap.Logger) *Handler {
	return &Handler{
		Audit:    reader,
		Log:      logger,
		validate: validator.New(),
	}
}
