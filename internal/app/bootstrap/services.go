// internal/app/bootstrap/services.go
package bootstrap

import (
	"context"
	"strings"
	"time"

	"github.com/dalemusser/coachhub/internal/app/lifecycle"
	"github.com/dalemusser/coachhub/internal/app/store/audit"
	invitationstore "github.com/dalemusser/coachhub/internal/app/store/invitations"
	relationshipstore "github.com/dalemusser/coachhub/internal/app/store/relationships"
	userstore "github.com/dalemusser/coachhub/internal/app/store/users"
	"github.com/dalemusser/coachhub/internal/app/system/auditlog"
	"github.com/dalemusser/coachhub/internal/app/system/identity"
	"github.com/dalemusser/coachhub/internal/app/system/mailer"
	"github.com/dalemusser/coachhub/internal/app/system/massdelete"
	"github.com/dalemusser/coachhub/internal/app/system/metrics"
	"github.com/dalemusser/coachhub/internal/app/system/notify"
	"github.com/dalemusser/coachhub/internal/app/system/tasks"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"
)

const notifySendTimeout = 15 * time.Second

// Services is the wired application graph shared by the HTTP server and
// coachctl.
type Services struct {
	Users         *userstore.Store
	Relationships *relationshipstore.Store
	Invitations   *invitationstore.Store
	AuditStore    *audit.Store

	Registry *prometheus.Registry
	Metrics  *metrics.Metrics

	Audit      *auditlog.Recorder
	Identities *identity.Resolver
	Guard      *massdelete.Guard
	Notifier   *notify.Dispatcher
	Engine     *lifecycle.Engine
	Integrity  *tasks.Integrity
	Runner     *tasks.Runner
}

// NewServices builds every store and service on top of db. rdb may be nil,
// in which case the mass-delete window is kept in process.
func NewServices(appCfg AppConfig, db *mongo.Database, rdb redis.UniversalClient, logger *zap.Logger) *Services {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New(reg)

	users := userstore.New(db)
	rels := relationshipstore.New(db)
	invites := invitationstore.New(db)
	auditStore := audit.New(db)

	recorder := auditlog.New(auditStore, logger, auditlog.Config{Mode: appCfg.AuditLogMode}, m)

	var dir identity.Lookup
	dirCfg := identity.DirectoryConfig{
		BaseURL:      appCfg.IdPDirectoryURL,
		TokenURL:     strings.TrimRight(appCfg.IdPIssuerURL, "/") + "/oauth/token",
		ClientID:     appCfg.IdPClientID,
		ClientSecret: appCfg.IdPClientSecret,
	}
	if appCfg.IdPIssuerURL != "" && dirCfg.Enabled() {
		dir = identity.NewDirectory(context.Background(), dirCfg)
		logger.Info("identity directory enabled", zap.String("url", dirCfg.BaseURL))
	}
	resolver := identity.NewResolver(users, dir, logger)

	var window massdelete.Window
	if rdb != nil {
		window = massdelete.NewRedisWindow(rdb, appCfg.RedisPrefix, appCfg.MassDeleteWindow)
	} else {
		window = massdelete.NewMemoryWindow(appCfg.MassDeleteWindow)
	}
	guard := massdelete.NewGuard(window, massdelete.Config{
		Threshold: appCfg.MassDeleteThreshold,
		Window:    appCfg.MassDeleteWindow,
	}, recorder, logger, m)

	mailCfg := mailer.Config{
		Host:     appCfg.MailSMTPHost,
		Port:     appCfg.MailSMTPPort,
		Username: appCfg.MailSMTPUser,
		Password: appCfg.MailSMTPPass,
		From:     appCfg.MailFrom,
		FromName: appCfg.MailFromName,
		SiteName: appCfg.MailFromName,
		BaseURL:  appCfg.BaseURL,
	}
	var sender notify.Sender = notify.LogSender{Log: logger}
	if mailCfg.Enabled() {
		sender = notify.NewMailSender(mailer.New(mailCfg, logger), resolver, appCfg.MailFromName, appCfg.BaseURL)
	}
	dispatcher := notify.NewDispatcher(sender, notify.Config{
		QueueSize:   appCfg.NotifyQueueSize,
		Workers:     appCfg.NotifyWorkers,
		SendTimeout: notifySendTimeout,
	}, logger, m)

	engine := lifecycle.New(lifecycle.Deps{
		Relationships: rels,
		Identities:    resolver,
		Invitations:   invites,
		Audit:         recorder,
		Notifier:      dispatcher,
		Guard:         guard,
	}, lifecycle.Config{InvitationTTL: appCfg.InvitationTTL}, logger, m)

	integrity := tasks.NewIntegrity(rels, recorder, logger, m, int64(appCfg.IntegrityCheckLimit))
	runner := tasks.NewRunner(logger, m,
		tasks.AuditPurgeJob(recorder, logger, appCfg.AuditPurgeInterval),
		tasks.IntegritySweepJob(integrity, appCfg.IntegrityCheckInterval),
	)

	return &Services{
		Users:         users,
		Relationships: rels,
		Invitations:   invites,
		AuditStore:    auditStore,
		Registry:      reg,
		Metrics:       m,
		Audit:         recorder,
		Identities:    resolver,
		Guard:         guard,
		Notifier:      dispatcher,
		Engine:        engine,
		Integrity:     integrity,
		Runner:        runner,
	}
}

// Close stops background work and drains queued notifications.
func (s *Services) Close(ctx context.Context) error {
	s.Runner.Stop()
	return s.Notifier.Close(ctx)
}
