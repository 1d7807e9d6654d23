package massdelete

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/dalemusser/coachhub/internal/app/store/audit"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

type recordingAudit struct {
	mu      sync.Mutex
	entries []audit.Entry
}

func (r *recordingAudit) Record(_ context.Context, e audit.Entry) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, e)
}

func (r *recordingAudit) all() []audit.Entry {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]audit.Entry(nil), r.entries...)
}

type clock struct{ t time.Time }

func (c *clock) now() time.Time         { return c.t }
func (c *clock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestGuard(threshold int, window time.Duration) (*Guard, *recordingAudit, *clock) {
	rec := &recordingAudit{}
	clk := &clock{t: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	g := NewGuard(NewMemoryWindow(window), Config{Threshold: threshold, Window: window}, rec, zap.NewNop(), nil)
	g.now = clk.now
	return g, rec, clk
}

func TestGuard_BelowThreshold(t *testing.T) {
	g, rec, _ := newTestGuard(3, time.Minute)
	actor := primitive.NewObjectID()

	for i := 0; i < 3; i++ {
		g.Observe(context.Background(), actor)
	}
	assert.Empty(t, rec.all())
}

func TestGuard_FiresOncePerWindow(t *testing.T) {
	g, rec, clk := newTestGuard(3, time.Minute)
	actor := primitive.NewObjectID()

	for i := 0; i < 6; i++ {
		g.Observe(context.Background(), actor)
		clk.advance(time.Second)
	}

	entries := rec.all()
	require.Len(t, entries, 1)
	e := entries[0]
	assert.Equal(t, audit.OpMassDeleteDetected, e.Operation)
	assert.Equal(t, audit.SeverityCritical, e.Severity)
	require.NotNil(t, e.ActorID)
	assert.Equal(t, actor, *e.ActorID)
	assert.Equal(t, 4, e.AfterState["count"])

	// After the window passes, a new burst alerts again.
	clk.advance(2 * time.Minute)
	for i := 0; i < 4; i++ {
		g.Observe(context.Background(), actor)
	}
	assert.Len(t, rec.all(), 2)
}

func TestGuard_SlidingWindowForgetsOldDeletes(t *testing.T) {
	g, rec, clk := newTestGuard(2, time.Minute)
	actor := primitive.NewObjectID()

	g.Observe(context.Background(), actor)
	g.Observe(context.Background(), actor)
	clk.advance(2 * time.Minute)
	g.Observe(context.Background(), actor)
	g.Observe(context.Background(), actor)

	assert.Empty(t, rec.all())
}

func TestGuard_ActorsAreIndependent(t *testing.T) {
	g, rec, _ := newTestGuard(2, time.Minute)
	a, b := primitive.NewObjectID(), primitive.NewObjectID()

	for i := 0; i < 2; i++ {
		g.Observe(context.Background(), a)
		g.Observe(context.Background(), b)
	}
	assert.Empty(t, rec.all())

	g.Observe(context.Background(), a)
	entries := rec.all()
	require.Len(t, entries, 1)
	assert.Equal(t, a.Hex(), entries[0].EntityID)
}

type failingWindow struct{}

func (failingWindow) Hit(context.Context, string, time.Time) (int, error) {
	return 0, errors.New("unavailable")
}

func (failingWindow) MarkAlerted(context.Context, string, time.Time) (bool, error) {
	return false, errors.New("unavailable")
}

func TestGuard_WindowErrorIsSwallowed(t *testing.T) {
	rec := &recordingAudit{}
	g := NewGuard(failingWindow{}, Config{Threshold: 1, Window: time.Minute}, rec, zap.NewNop(), nil)

	assert.NotPanics(t, func() {
		g.Observe(context.Background(), primitive.NewObjectID())
	})
	assert.Empty(t, rec.all())
}

func TestGuard_Defaults(t *testing.T) {
	g := NewGuard(NewMemoryWindow(DefaultWindow), Config{}, &recordingAudit{}, zap.NewNop(), nil)
	assert.Equal(t, DefaultThreshold, g.cfg.Threshold)
	assert.Equal(t, DefaultWindow, g.cfg.Window)
}

func TestGuard_NilIsNoop(t *testing.T) {
	var g *Guard
	assert.NotPanics(t, func() {
		g.Observe(context.Background(), primitive.NewObjectID())
	})
}
