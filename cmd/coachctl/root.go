package main

import (
	"context"
	"encoding/json"
	"io"
	"os"
	"time"

	"github.com/dalemusser/coachhub/internal/app/bootstrap"
	"github.com/dalemusser/coachhub/internal/app/system/auditlog"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

type options struct {
	mongoURI      string
	mongoDatabase string
	auditMode     string
	timeout       time.Duration
	jsonOut       bool
	verbose       bool
}

// appConfig is the subset of server configuration the commands need.
// Background jobs stay disabled.
func (o *options) appConfig() bootstrap.AppConfig {
	return bootstrap.AppConfig{
		MongoURI:            o.mongoURI,
		MongoDatabase:       o.mongoDatabase,
		AuditLogMode:        o.auditMode,
		IntegrityCheckLimit: 500,
		MassDeleteThreshold: 10,
		MassDeleteWindow:    5 * time.Minute,
		NotifyQueueSize:     16,
		NotifyWorkers:       1,
	}
}

// connectFunc opens the backing services. The returned func releases them.
type connectFunc func(ctx context.Context, o *options, logger *zap.Logger) (*bootstrap.Services, func(), error)

func defaultConnect(ctx context.Context, o *options, logger *zap.Logger) (*bootstrap.Services, func(), error) {
	cfg := o.appConfig()
	client, err := bootstrap.OpenMongo(ctx, cfg)
	if err != nil {
		return nil, nil, err
	}
	svc := bootstrap.NewServices(cfg, client.Database(cfg.MongoDatabase), nil, logger)
	release := func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = svc.Close(ctx)
		_ = client.Disconnect(ctx)
	}
	return svc, release, nil
}

type cli struct {
	opts    options
	connect connectFunc
}

func newRootCmd(connect connectFunc) *cobra.Command {
	c := &cli{connect: connect}

	root := &cobra.Command{
		Use:           "coachctl",
		Short:         "CoachHub administration",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	pf := root.PersistentFlags()
	pf.StringVar(&c.opts.mongoURI, "mongo-uri", envOr("COACHHUB_MONGO_URI", "mongodb://localhost:27017"), "MongoDB connection URI")
	pf.StringVar(&c.opts.mongoDatabase, "mongo-database", envOr("COACHHUB_MONGO_DATABASE", "coachhub"), "MongoDB database name")
	pf.StringVar(&c.opts.auditMode, "audit-mode", envOr("COACHHUB_AUDIT_LOG_MODE", auditlog.ModeAll), "Audit logging mode: all, db, log or off")
	pf.DurationVar(&c.opts.timeout, "timeout", 30*time.Second, "Overall command timeout")
	pf.BoolVar(&c.opts.jsonOut, "json", false, "Output as JSON")
	pf.BoolVarP(&c.opts.verbose, "verbose", "v", false, "Enable verbose logging")

	root.AddCommand(c.restoreCmd())
	root.AddCommand(c.auditCmd())
	root.AddCommand(c.integrityCmd())
	return root
}

// run connects, calls fn and releases the connection.
func (c *cli) run(cmd *cobra.Command, fn func(ctx context.Context, svc *bootstrap.Services) error) error {
	ctx, cancel := context.WithTimeout(cmd.Context(), c.opts.timeout)
	defer cancel()

	logger := zap.NewNop()
	if c.opts.verbose {
		if l, err := zap.NewDevelopment(); err == nil {
			logger = l
		}
	}
	defer func() { _ = logger.Sync() }()

	svc, release, err := c.connect(ctx, &c.opts, logger)
	if err != nil {
		return err
	}
	defer release()
	return fn(ctx, svc)
}

// emit writes v as indented JSON when --json is set, otherwise calls text.
func (c *cli) emit(w io.Writer, v interface{}, text func(io.Writer) error) error {
	if c.opts.jsonOut {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	}
	return text(w)
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
