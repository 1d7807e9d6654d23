// internal/app/bootstrap/config.go
package bootstrap

import (
	"fmt"
	"time"

	"github.com/dalemusser/coachhub/internal/app/system/auditlog"
	"github.com/dalemusser/waffle/config"
	wafflemongo "github.com/dalemusser/waffle/pantry/mongo"
	"go.uber.org/zap"
)

// appConfigKeys defines the configuration keys for CoachHub.
// These are loaded via WAFFLE's config system with support for:
//   - Config files: mongo_uri, session_name, etc.
//   - Environment variables: COACHHUB_MONGO_URI, COACHHUB_SESSION_NAME, etc.
//   - Command-line flags: --mongo_uri, --session_name, etc.
var appConfigKeys = []config.AppKey{
	{Name: "mongo_uri", Default: "mongodb://localhost:27017", Desc: "MongoDB connection URI"},
	{Name: "mongo_database", Default: "coachhub", Desc: "MongoDB database name"},
	{Name: "mongo_max_pool_size", Default: 100, Desc: "MongoDB max connection pool size (default: 100)"},
	{Name: "mongo_min_pool_size", Default: 10, Desc: "MongoDB min connection pool size (default: 10)"},
	{Name: "session_key", Default: "dev-only-change-me-please-0123456789ABCDEF", Desc: "Session signing key (must be strong in production)"},
	{Name: "session_name", Default: "coachhub-session", Desc: "Session cookie name"},
	{Name: "session_domain", Default: "", Desc: "Session cookie domain (blank means current host)"},
	{Name: "session_max_age", Default: "24h", Desc: "Session cookie lifetime"},

	{Name: "base_url", Default: "http://localhost:3000", Desc: "Public base URL for email links and the OAuth callback"},

	// Identity provider
	{Name: "idp_issuer_url", Default: "", Desc: "OAuth2 identity provider base URL (blank disables sign-in)"},
	{Name: "idp_client_id", Default: "", Desc: "OAuth2 client ID"},
	{Name: "idp_client_secret", Default: "", Desc: "OAuth2 client secret"},
	{Name: "idp_directory_url", Default: "", Desc: "Identity provider user directory URL (optional)"},

	// Email/SMTP configuration
	{Name: "mail_smtp_host", Default: "", Desc: "SMTP server host (blank logs notifications instead)"},
	{Name: "mail_smtp_port", Default: 1025, Desc: "SMTP server port"},
	{Name: "mail_smtp_user", Default: "", Desc: "SMTP username"},
	{Name: "mail_smtp_pass", Default: "", Desc: "SMTP password"},
	{Name: "mail_from", Default: "noreply@coachhub.local", Desc: "From email address"},
	{Name: "mail_from_name", Default: "CoachHub", Desc: "From display name"},

	// Audit
	{Name: "audit_log_mode", Default: "all", Desc: "Audit logging: 'all' (db+log), 'db', 'log', or 'off'"},
	{Name: "audit_purge_interval", Default: "1h", Desc: "How often expired audit entries are purged (0 disables)"},

	// Integrity sweep
	{Name: "integrity_check_interval", Default: "15m", Desc: "How often relationships are checked for inconsistent state (0 disables)"},
	{Name: "integrity_check_limit", Default: 500, Desc: "Maximum documents inspected per integrity pass"},

	// Mass-delete guard
	{Name: "mass_delete_threshold", Default: 10, Desc: "Soft deletes by one actor that trigger a mass-delete alert"},
	{Name: "mass_delete_window", Default: "5m", Desc: "Sliding window for the mass-delete threshold"},
	{Name: "redis_addr", Default: "", Desc: "Redis address for the shared mass-delete window (blank keeps it in process)"},
	{Name: "redis_password", Default: "", Desc: "Redis password"},
	{Name: "redis_db", Default: 0, Desc: "Redis database number"},
	{Name: "redis_prefix", Default: "coachhub:massdelete", Desc: "Key prefix for mass-delete counters"},

	// Notifications
	{Name: "notify_queue_size", Default: 256, Desc: "Buffered notifications before new ones are dropped"},
	{Name: "notify_workers", Default: 2, Desc: "Notification delivery goroutines"},

	// Invitations
	{Name: "invitation_ttl", Default: "336h", Desc: "How long an invitation to an unregistered email stays claimable"},

	// Rate limits
	{Name: "connection_request_limit", Default: 30, Desc: "Connection requests one user may send per window (0 disables)"},
	{Name: "connection_request_window", Default: "1h", Desc: "Window for connection_request_limit"},
	{Name: "login_rate_limit", Default: 20, Desc: "Sign-in attempts per client IP per minute (0 disables)"},
}

// LoadConfig loads WAFFLE core config and app-specific config.
//
// WAFFLE's config.LoadWithAppConfig merges flags > env (COACHHUB_*) >
// config files > defaults.
func LoadConfig(logger *zap.Logger) (*config.CoreConfig, AppConfig, error) {
	coreCfg, appValues, err := config.LoadWithAppConfig(logger, "COACHHUB", appConfigKeys)
	if err != nil {
		return nil, AppConfig{}, err
	}

	appCfg := AppConfig{
		MongoURI:         appValues.String("mongo_uri"),
		MongoDatabase:    appValues.String("mongo_database"),
		MongoMaxPoolSize: uint64(appValues.Int("mongo_max_pool_size")),
		MongoMinPoolSize: uint64(appValues.Int("mongo_min_pool_size")),
		SessionKey:       appValues.String("session_key"),
		SessionName:      appValues.String("session_name"),
		SessionDomain:    appValues.String("session_domain"),
		SessionMaxAge:    appValues.Duration("session_max_age", 24*time.Hour),

		BaseURL: appValues.String("base_url"),

		// Identity provider
		IdPIssuerURL:    appValues.String("idp_issuer_url"),
		IdPClientID:     appValues.String("idp_client_id"),
		IdPClientSecret: appValues.String("idp_client_secret"),
		IdPDirectoryURL: appValues.String("idp_directory_url"),

		// Email/SMTP
		MailSMTPHost: appValues.String("mail_smtp_host"),
		MailSMTPPort: appValues.Int("mail_smtp_port"),
		MailSMTPUser: appValues.String("mail_smtp_user"),
		MailSMTPPass: appValues.String("mail_smtp_pass"),
		MailFrom:     appValues.String("mail_from"),
		MailFromName: appValues.String("mail_from_name"),

		// Audit
		AuditLogMode:       appValues.String("audit_log_mode"),
		AuditPurgeInterval: appValues.Duration("audit_purge_interval", time.Hour),

		// Integrity
		IntegrityCheckInterval: appValues.Duration("integrity_check_interval", 15*time.Minute),
		IntegrityCheckLimit:    appValues.Int("integrity_check_limit"),

		// Mass-delete guard
		MassDeleteThreshold: appValues.Int("mass_delete_threshold"),
		MassDeleteWindow:    appValues.Duration("mass_delete_window", 5*time.Minute),
		RedisAddr:           appValues.String("redis_addr"),
		RedisPassword:       appValues.String("redis_password"),
		RedisDB:             appValues.Int("redis_db"),
		RedisPrefix:         appValues.String("redis_prefix"),

		// Notifications
		NotifyQueueSize: appValues.Int("notify_queue_size"),
		NotifyWorkers:   appValues.Int("notify_workers"),

		// Invitations
		InvitationTTL: appValues.Duration("invitation_ttl", 14*24*time.Hour),

		// Rate limits
		ConnectionRequestLimit:  appValues.Int("connection_request_limit"),
		ConnectionRequestWindow: appValues.Duration("connection_request_window", time.Hour),
		LoginRateLimit:          appValues.Int("login_rate_limit"),
	}

	return coreCfg, appCfg, nil
}

// ValidateConfig performs app-specific config validation.
//
// Return nil to accept the loaded config, or an error to abort startup.
func ValidateConfig(coreCfg *config.CoreConfig, appCfg AppConfig, logger *zap.Logger) error {
	if err := wafflemongo.ValidateURI(appCfg.MongoURI); err != nil {
		logger.Error("invalid MongoDB URI", zap.Error(err))
		return fmt.Errorf("invalid MongoDB URI: %w", err)
	}

	if appCfg.MassDeleteThreshold <= 0 {
		return fmt.Errorf("mass_delete_threshold must be positive, got %d", appCfg.MassDeleteThreshold)
	}
	if appCfg.MassDeleteWindow <= 0 {
		return fmt.Errorf("mass_delete_window must be positive, got %s", appCfg.MassDeleteWindow)
	}

	if !auditlog.ValidMode(appCfg.AuditLogMode) {
		return fmt.Errorf("audit_log_mode must be one of all, db, log, off; got %q", appCfg.AuditLogMode)
	}

	// Sign-in needs both halves of the client registration.
	if appCfg.IdPIssuerURL != "" && appCfg.IdPClientID == "" {
		return fmt.Errorf("idp_issuer_url is set but idp_client_id is empty")
	}

	return nil
}
