// internal/app/bootstrap/appconfig.go
package bootstrap

import "time"

// AppConfig holds service-specific configuration for CoachHub.
//
// These values come from environment variables, configuration files, or
// command-line flags (loaded in LoadConfig). WAFFLE's CoreConfig covers the
// framework-level settings (ports, TLS, logging, CORS); everything here is
// specific to the coaching-relationship service.
type AppConfig struct {
	// MongoDB connection configuration
	MongoURI         string // MongoDB connection string (e.g., mongodb://localhost:27017)
	MongoDatabase    string // Database name within MongoDB
	MongoMaxPoolSize uint64
	MongoMinPoolSize uint64

	// Session management configuration
	SessionKey    string // Secret key for signing session cookies (must be strong in production)
	SessionName   string // Cookie name for sessions (default: coachhub-session)
	SessionDomain string // Cookie domain (blank means current host)
	SessionMaxAge time.Duration

	// Base URL for links in emails and the OAuth redirect
	BaseURL string // e.g., "https://coachhub.example" or "http://localhost:3000"

	// Identity provider
	IdPIssuerURL    string // OAuth2 provider base URL; blank disables sign-in
	IdPClientID     string
	IdPClientSecret string
	IdPDirectoryURL string // optional user directory used to resolve emails

	// Email/SMTP configuration
	MailSMTPHost string // SMTP server host; blank logs notifications instead
	MailSMTPPort int
	MailSMTPUser string
	MailSMTPPass string
	MailFrom     string
	MailFromName string

	// Audit
	AuditLogMode       string        // "all", "db", "log" or "off"
	AuditPurgeInterval time.Duration // 0 disables the purge job

	// Integrity sweep
	IntegrityCheckInterval time.Duration // 0 disables the sweep
	IntegrityCheckLimit    int

	// Mass-delete guard
	MassDeleteThreshold int
	MassDeleteWindow    time.Duration
	RedisAddr           string // blank keeps the sliding window in process
	RedisPassword       string
	RedisDB             int
	RedisPrefix         string

	// Notifications
	NotifyQueueSize int
	NotifyWorkers   int

	// Invitations
	InvitationTTL time.Duration

	// Rate limits (0 disables)
	ConnectionRequestLimit  int // per user per ConnectionRequestWindow
	ConnectionRequestWindow time.Duration
	LoginRateLimit          int // sign-in attempts per IP per minute
}
