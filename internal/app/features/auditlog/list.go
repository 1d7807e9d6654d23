// internal/app/features/auditlog/list.go
package auditlog

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	apierrors "github.com/dalemusser/coachhub/internal/app/features/errors"
	"github.com/dalemusser/coachhub/internal/app/store/audit"
	"github.com/dalemusser/coachhub/internal/app/system/auditlog"
	"github.com/dalemusser/coachhub/internal/app/system/normalize"
	"github.com/dalemusser/coachhub/internal/app/system/timeouts"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

// ServeList handles GET /audit.
//
// Filters: entity_type, entity_id, operation, severity, actor_id,
// start/end (RFC 3339), limit, page. Newest first.
func (h *Handler) ServeList(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	lq := listQuery{
		EntityType: normalize.QueryParam(q.Get("entity_type")),
		EntityID:   normalize.QueryParam(q.Get("entity_id")),
		Operation:  normalize.QueryParam(q.Get("operation")),
		Severity:   normalize.Status(q.Get("severity")),
		ActorID:    normalize.QueryParam(q.Get("actor_id")),
		Start:      normalize.QueryParam(q.Get("start")),
		End:        normalize.QueryParam(q.Get("end")),
	}
	var ok bool
	if lq.Limit, ok = intParam(w, q.Get("limit"), "limit"); !ok {
		return
	}
	if lq.Page, ok = intParam(w, q.Get("page"), "page"); !ok {
		return
	}
	if err := h.validate.Struct(lq); err != nil {
		apierrors.Validation(w, err)
		return
	}

	limit := lq.Limit
	if limit == 0 {
		limit = pageSize
	}
	page := lq.Page
	if page == 0 {
		page = 1
	}
	filter := audit.QueryFilter{
		EntityType: lq.EntityType,
		EntityID:   lq.EntityID,
		Operation:  lq.Operation,
		Limit:      int64(limit),
		Offset:     int64(page-1) * int64(limit),
	}
	if lq.Severity != "" {
		filter.Severities = []string{lq.Severity}
	}
	if lq.ActorID != "" {
		oid, _ := primitive.ObjectIDFromHex(lq.ActorID)
		filter.ActorID = &oid
	}
	if lq.Start != "" {
		t, _ := time.Parse(time.RFC3339, lq.Start)
		filter.StartTime = &t
	}
	if lq.End != "" {
		t, _ := time.Parse(time.RFC3339, lq.End)
		filter.EndTime = &t
	}

	ctx, cancel := timeouts.WithTimeout(r.Context(), timeouts.Long(), h.Log, "audit log list")
	defer cancel()

	entries, err := h.Audit.AuditLogs(ctx, filter)
	if err != nil {
		h.readFailed(w, err)
		return
	}
	if entries == nil {
		entries = []audit.Entry{}
	}
	total, err := h.Audit.CountAuditLogs(ctx, filter)
	if err != nil {
		h.readFailed(w, err)
		return
	}
	apierrors.JSON(w, http.StatusOK, listResponse{Entries: entries, Page: page, Limit: limit, Total: total})
}

// ServeAlerts handles GET /audit/alerts?hours=24: critical and emergency
// entries in the window.
func (h *Handler) ServeAlerts(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	var aq alertsQuery
	var ok bool
	if aq.Hours, ok = intParam(w, q.Get("hours"), "hours"); !ok {
		return
	}
	if aq.Limit, ok = intParam(w, q.Get("limit"), "limit"); !ok {
		return
	}
	if err := h.validate.Struct(aq); err != nil {
		apierrors.Validation(w, err)
		return
	}
	if aq.Hours == 0 {
		aq.Hours = 24
	}

	ctx, cancel := timeouts.WithTimeout(r.Context(), timeouts.Long(), h.Log, "audit critical alerts")
	defer cancel()

	entries, err := h.Audit.CriticalAlerts(ctx, aq.Hours, int64(aq.Limit))
	if err != nil {
		h.readFailed(w, err)
		return
	}
	if entries == nil {
		entries = []audit.Entry{}
	}
	apierrors.JSON(w, http.StatusOK, alertsResponse{
		Hours:   aq.Hours,
		Since:   time.Now().UTC().Add(-time.Duration(aq.Hours) * time.Hour),
		Entries: entries,
	})
}

func (h *Handler) readFailed(w http.ResponseWriter, err error) {
	if errors.Is(err, auditlog.ErrNotPersisted) {
		apierrors.Write(w, http.StatusNotFound, "not_persisted", err.Error())
		return
	}
	h.Log.Error("audit read failed", zap.Error(err))
	apierrors.Write(w, http.StatusServiceUnavailable, "storage_unavailable", "storage temporarily unavailable")
}

// intParam parses an optional integer query parameter; zero means absent.
func intParam(w http.ResponseWriter, raw, name string) (int, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		apierrors.BadRequest(w, name+" must be an integer")
		return 0, false
	}
	return n, true
}
