// internal/app/bootstrap/routes.go
package bootstrap

import (
	"net/http"
	"time"

	auditlogfeature "github.com/dalemusser/coachhub/internal/app/features/auditlog"
	authidpfeature "github.com/dalemusser/coachhub/internal/app/features/authidp"
	apierrors "github.com/dalemusser/coachhub/internal/app/features/errors"
	healthfeature "github.com/dalemusser/coachhub/internal/app/features/health"
	relationshipsfeature "github.com/dalemusser/coachhub/internal/app/features/relationships"
	"github.com/dalemusser/coachhub/internal/app/system/auth"
	"github.com/dalemusser/coachhub/internal/app/system/ratelimit"
	"github.com/dalemusser/waffle/config"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// BuildHandler constructs the root HTTP handler (router) for this WAFFLE app.
//
// WAFFLE calls this after configuration, DB connections, schema setup, and
// any Startup hooks have completed. CoachHub serves JSON only: health and
// metrics, identity-provider sign-in, the relationship API and the admin
// audit views.
func BuildHandler(coreCfg *config.CoreConfig, appCfg AppConfig, deps DBDeps, logger *zap.Logger) (http.Handler, error) {
	// Secure cookies are enabled in production mode.
	secure := coreCfg.Env == "prod"
	sessionMgr, err := auth.NewSessionManager(appCfg.SessionKey, appCfg.SessionName, appCfg.SessionDomain, appCfg.SessionMaxAge, secure, logger)
	if err != nil {
		logger.Error("session manager init failed", zap.Error(err))
		return nil, err
	}

	svc := deps.Services

	r := chi.NewRouter()
	r.NotFound(apierrors.NotFound)
	r.MethodNotAllowed(apierrors.MethodNotAllowed)

	// Global auth middleware: loads SessionUser into context if signed in.
	r.Use(sessionMgr.LoadSessionUser)

	// Health check endpoint for load balancers and orchestrators
	healthHandler := healthfeature.NewHandler(deps.MongoClient, deps.Redis, logger)
	r.Mount("/health", healthfeature.Routes(healthHandler))
	r.Mount("/metrics", healthfeature.MetricsRoutes(svc.Registry))

	// Sign-in via the identity provider
	idpCfg := authidpfeature.ConfigFromIssuer(appCfg.IdPIssuerURL, appCfg.IdPClientID, appCfg.IdPClientSecret, appCfg.BaseURL, secure)
	if appCfg.IdPIssuerURL == "" {
		idpCfg = authidpfeature.Config{}
	}
	authHandler := authidpfeature.NewHandler(idpCfg, sessionMgr, svc.Users, svc.Engine, []byte(appCfg.SessionKey), logger)
	authHandler.LoginLimit = ratelimit.New(appCfg.LoginRateLimit, time.Minute)
	r.Mount("/auth", authidpfeature.Routes(authHandler))

	// Relationship lifecycle API
	relHandler := relationshipsfeature.NewHandler(svc.Engine, logger)
	relHandler.CreateLimit = ratelimit.New(appCfg.ConnectionRequestLimit, appCfg.ConnectionRequestWindow)
	r.Mount("/relationships", relationshipsfeature.Routes(relHandler, sessionMgr))

	// Admin audit views
	auditHandler := auditlogfeature.NewHandler(svc.Audit, logger)
	r.Mount("/audit", auditlogfeature.Routes(auditHandler, sessionMgr))

	return r, nil
}
