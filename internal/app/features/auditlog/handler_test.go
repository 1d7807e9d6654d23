package auditlog_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/dalemusser/coachhub/internal/app/features/auditlog"
	"github.com/dalemusser/coachhub/internal/app/store/audit"
	"github.com/dalemusser/coachhub/internal/app/system/auth"
	syslog "github.com/dalemusser/coachhub/internal/app/system/auditlog"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

type fakeReader struct {
	entries []audit.Entry
	total   int64
	err     error

	filter audit.QueryFilter
	hours  int
	limit  int64
}

func (f *fakeReader) AuditLogs(_ context.Context, filter audit.QueryFilter) ([]audit.Entry, error) {
	f.filter = filter
	return f.entries, f.err
}

func (f *fakeReader) CountAuditLogs(_ context.Context, filter audit.QueryFilter) (int64, error) {
	return f.total, f.err
}

func (f *fakeReader) CriticalAlerts(_ context.Context, hours int, limit int64) ([]audit.Entry, error) {
	f.hours, f.limit = hours, limit
	return f.entries, f.err
}

func TestServeList_Filters(t *testing.T) {
	actor := primitive.NewObjectID()
	reader := &fakeReader{entries: []audit.Entry{{Operation: audit.OpSoftDelete}}, total: 21}
	h := auditlog.NewHandler(reader, zap.NewNop())

	target := "/audit?entity_id=r1&operation=soft_delete_relationship&severity=Critical&actor_id=" +
		actor.Hex() + "&start=2026-01-01T00:00:00Z&limit=10&page=3"
	rec := httptest.NewRecorder()
	h.ServeList(rec, httptest.NewRequest("GET", target, nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status: got %d (%s)", rec.Code, rec.Body.String())
	}
	f := reader.filter
	if f.EntityID != "r1" || f.Operation != audit.OpSoftDelete {
		t.Errorf("filter: %+v", f)
	}
	if len(f.Severities) != 1 || f.Severities[0] != audit.SeverityCritical {
		t.Errorf("severities: %v", f.Severities)
	}
	if f.ActorID == nil || *f.ActorID != actor {
		t.Errorf("actor: %v", f.ActorID)
	}
	if f.StartTime == nil || !f.StartTime.Equal(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("start: %v", f.StartTime)
	}
	if f.Limit != 10 || f.Offset != 20 {
		t.Errorf("paging: limit %d offset %d", f.Limit, f.Offset)
	}

	var body struct {
		Total int64 `json:"total"`
		Page  int   `json:"page"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Total != 21 || body.Page != 3 {
		t.Errorf("body: total %d page %d", body.Total, body.Page)
	}
}

func TestServeList_Defaults(t *testing.T) {
	reader := &fakeReader{}
	h := auditlog.NewHandler(reader, zap.NewNop())

	rec := httptest.NewRecorder()
	h.ServeList(rec, httptest.NewRequest("GET", "/audit", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status: got %d", rec.Code)
	}
	if reader.filter.Limit != 50 || reader.filter.Offset != 0 {
		t.Errorf("default paging: %+v", reader.filter)
	}
	var body struct {
		Entries []audit.Entry `json:"entries"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Entries == nil {
		t.Error("expected empty array, got null")
	}
}

func TestServeList_Invalid(t *testing.T) {
	tests := []struct {
		name  string
		query string
		want  int
	}{
		{"bad severity", "severity=loud", http.StatusUnprocessableEntity},
		{"bad actor", "actor_id=nope", http.StatusUnprocessableEntity},
		{"bad start", "start=yesterday", http.StatusUnprocessableEntity},
		{"limit too big", "limit=5000", http.StatusUnprocessableEntity},
		{"limit not int", "limit=ten", http.StatusBadRequest},
		{"page too big", "page=100001", http.StatusUnprocessableEntity},
		{"page overflows int", "page=9223372036854775807&limit=1000", http.StatusUnprocessableEntity},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := auditlog.NewHandler(&fakeReader{}, zap.NewNop())
			rec := httptest.NewRecorder()
			h.ServeList(rec, httptest.NewRequest("GET", "/audit?"+tt.query, nil))
			if rec.Code != tt.want {
				t.Errorf("status: got %d, want %d", rec.Code, tt.want)
			}
		})
	}
}

func TestServeList_LastPageOffset(t *testing.T) {
	reader := &fakeReader{}
	h := auditlog.NewHandler(reader, zap.NewNop())

	rec := httptest.NewRecorder()
	h.ServeList(rec, httptest.NewRequest("GET", "/audit?page=100000&limit=1000", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status: got %d", rec.Code)
	}
	if want := int64(99999) * 1000; reader.filter.Offset != want {
		t.Errorf("offset: got %d, want %d", reader.filter.Offset, want)
	}
}

func TestServeList_ReadErrors(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{syslog.ErrNotPersisted, http.StatusNotFound},
		{errors.New("connection reset"), http.StatusServiceUnavailable},
	}
	for _, tt := range tests {
		h := auditlog.NewHandler(&fakeReader{err: tt.err}, zap.NewNop())
		rec := httptest.NewRecorder()
		h.ServeList(rec, httptest.NewRequest("GET", "/audit", nil))
		if rec.Code != tt.want {
			t.Errorf("%v: got %d, want %d", tt.err, rec.Code, tt.want)
		}
	}
}

func TestServeAlerts(t *testing.T) {
	reader := &fakeReader{entries: []audit.Entry{{Operation: audit.OpMassDeleteDetected, Severity: audit.SeverityCritical}}}
	h := auditlog.NewHandler(reader, zap.NewNop())

	rec := httptest.NewRecorder()
	h.ServeAlerts(rec, httptest.NewRequest("GET", "/audit/alerts?hours=6", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status: got %d", rec.Code)
	}
	if reader.hours != 6 {
		t.Errorf("hours: got %d", reader.hours)
	}

	rec = httptest.NewRecorder()
	h.ServeAlerts(rec, httptest.NewRequest("GET", "/audit/alerts", nil))
	if reader.hours != 24 {
		t.Errorf("default hours: got %d", reader.hours)
	}

	rec = httptest.NewRecorder()
	h.ServeAlerts(rec, httptest.NewRequest("GET", "/audit/alerts?hours=0", nil))
	if reader.hours != 24 {
		t.Errorf("zero hours should default, got %d", reader.hours)
	}

	rec = httptest.NewRecorder()
	h.ServeAlerts(rec, httptest.NewRequest("GET", "/audit/alerts?hours=-1", nil))
	if rec.Code != http.StatusUnprocessableEntity {
		t.Errorf("negative hours: got %d", rec.Code)
	}
}

func TestRoutes_AdminOnly(t *testing.T) {
	sm, err := auth.NewSessionManager("test-session-key-must-be-32-chars-long", "t", "", time.Hour, false, zap.NewNop())
	if err != nil {
		t.Fatalf("session manager: %v", err)
	}
	router := auditlog.Routes(auditlog.NewHandler(&fakeReader{}, zap.NewNop()), sm)

	for role, want := range map[string]int{"client": http.StatusForbidden, "coach": http.StatusForbidden, "admin": http.StatusOK} {
		req := httptest.NewRequest("GET", "/alerts", nil)
		req = auth.WithTestUser(req, &auth.SessionUser{ID: primitive.NewObjectID().Hex(), Role: role})
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		if rec.Code != want {
			t.Errorf("%s: got %d, want %d", role, rec.Code, want)
		}
	}
}
