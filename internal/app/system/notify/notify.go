// Package notify delivers fire-and-forget notifications about relationship
// events. Callers never block on delivery and never see its errors.
package notify

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/dalemusser/coachhub/internal/app/system/metrics"
	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

// Kind names a notification event.
type Kind string

const (
	KindConnectionRequested Kind = "connection_requested"
	KindConnectionAccepted  Kind = "connection_accepted"
	KindConnectionDeclined  Kind = "connection_declined"
	KindInvitationSent      Kind = "invitation_sent"
)

// Payload keys.
const (
	KeyEmail          = "email" // recipient address when there is no user yet
	KeyFromName       = "from_name"
	KeyRelationshipID = "relationship_id"
	KeyInvitationID   = "invitation_id"
	KeyToken          = "token"
	KeyExpiresIn      = "expires_in"
)

// Notification is one queued event.
type Notification struct {
	ID        string
	UserID    primitive.ObjectID // zero for invitations to unregistered addresses
	Kind      Kind
	Payload   map[string]string
	CreatedAt time.Time
}

// Sender delivers a notification.
type Sender interface {
	Send(ctx context.Context, n Notification) error
}

// Config sizes the dispatcher.
type Config struct {
	QueueSize   int
	Workers     int
	SendTimeout time.Duration
}

// Dispatcher queues notifications and delivers them from a fixed pool of
// worker goroutines.
type Dispatcher struct {
	sender  Sender
	cfg     Config
	log     *zap.Logger
	metrics *metrics.Metrics

	mu     sync.RWMutex
	closed bool
	queue  chan Notification
	wg     sync.WaitGroup
}

// ErrClosed is returned by Close when called twice.
var ErrClosed = errors.New("notify: dispatcher closed")

// NewDispatcher creates a Dispatcher and starts its workers.
func NewDispatcher(sender Sender, cfg Config, logger *zap.Logger, m *metrics.Metrics) *Dispatcher {
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 256
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 2
	}
	if cfg.SendTimeout <= 0 {
		cfg.SendTimeout = 15 * time.Second
	}
	d := &Dispatcher{
		sender:  sender,
		cfg:     cfg,
		log:     logger,
		metrics: m,
		queue:   make(chan Notification, cfg.QueueSize),
	}
	for i := 0; i < cfg.Workers; i++ {
		d.wg.Add(1)
		go d.worker()
	}
	return d
}

// Notify enqueues a notification for userID. It returns immediately; when
// the queue is full or the dispatcher is closed the notification is
// dropped and logged.
func (d *Dispatcher) Notify(userID primitive.ObjectID, kind Kind, payload map[string]string) {
	if d == nil {
		return
	}
	n := Notification{
		ID:        uuid.NewString(),
		UserID:    userID,
		Kind:      kind,
		Payload:   payload,
		CreatedAt: time.Now().UTC(),
	}

	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		d.drop(n, "closed")
		return
	}
	select {
	case d.queue <- n:
	default:
		d.drop(n, "queue full")
	}
}

func (d *Dispatcher) drop(n Notification, reason string) {
	d.metrics.ObserveNotification(string(n.Kind), "dropped")
	d.log.Warn("notification dropped",
		zap.String("reason", reason),
		zap.String("kind", string(n.Kind)),
		zap.String("notification_id", n.ID))
}

func (d *Dispatcher) worker() {
	defer d.wg.Done()
	for n := range d.queue {
		d.deliver(n)
	}
}

func (d *Dispatcher) deliver(n Notification) {
	defer func() {
		if r := recover(); r != nil {
			d.metrics.ObserveNotification(string(n.Kind), "failed")
			d.log.Error("notification sender panicked",
				zap.Any("panic", r),
				zap.String("kind", string(n.Kind)))
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), d.cfg.SendTimeout)
	defer cancel()

	if err := d.sender.Send(ctx, n); err != nil {
		d.metrics.ObserveNotification(string(n.Kind), "failed")
		d.log.Warn("notification failed",
			zap.Error(err),
			zap.String("kind", string(n.Kind)),
			zap.String("notification_id", n.ID))
		return
	}
	d.metrics.ObserveNotification(string(n.Kind), "sent")
}

// Close stops accepting notifications and waits for queued ones to be
// delivered or for ctx to end.
func (d *Dispatcher) Close(ctx context.Context) error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return ErrClosed
	}
	d.closed = true
	close(d.queue)
	d.mu.Unlock()

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
