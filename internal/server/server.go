package server

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	auditdomain "github.com/smallbiznis/trailpay/internal/audit/domain"
	authdomain "github.com/smallbiznis/trailpay/internal/auth/domain"
	authservice "github.com/smallbiznis/trailpay/internal/auth/service"
	"github.com/smallbiznis/trailpay/internal/authorization"
	"github.com/smallbiznis/trailpay/internal/config"
	"github.com/smallbiznis/trailpay/internal/observability"
	obsmiddleware "github.com/smallbiznis/trailpay/internal/observability/logger"
	obstracing "github.com/smallbiznis/trailpay/internal/observability/tracing"
	"github.com/smallbiznis/trailpay/internal/payment/webhook"
	refunddomain "github.com/smallbiznis/trailpay/internal/refund/domain"
	refundservice "github.com/smallbiznis/trailpay/internal/refund/service"
	"github.com/smallbiznis/trailpay/pkg/telemetry"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("http.server",
	fx.Provide(registerGin),
	fx.Provide(
		func(s *webhook.Service) WebhookIngester { return s },
		func(s *refundservice.Service) RefundCanceller { return s },
		func(s *authservice.Service) Authenticator { return s },
		func(s authorization.Service) BookingAuthorizer { return s },
		func(s auditdomain.Service) AuditLister { return s },
	),
	fx.Invoke(NewServer),
	fx.Invoke(run),
)

// WebhookIngester verifies and applies one provider delivery.
type WebhookIngester interface {
	Ingest(ctx context.Context, payload []byte, headers http.Header) (*webhook.IngestResult, error)
}

// RefundCanceller cancels a booking and refunds or voids its payment.
type RefundCanceller interface {
	Cancel(ctx context.Context, req refunddomain.Request) (*refunddomain.Result, error)
}

// Authenticator resolves a bearer token to the calling actor.
type Authenticator interface {
	Authenticate(ctx context.Context, rawToken string) (*authdomain.Actor, error)
}

// BookingAuthorizer decides whether the caller may act on a booking.
type BookingAuthorizer interface {
	AuthorizeBookingAction(ctx context.Context, actor *authdomain.Actor, ownerGuideID string, action string) error
}

// AuditLister pages through the audit trail of one target.
type AuditLister interface {
	List(ctx context.Context, req auditdomain.ListAuditLogRequest) (auditdomain.ListAuditLogResponse, error)
}

func NewEngine(obsCfg observability.Config, metrics *telemetry.Metrics) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(obsmiddleware.GinMiddleware(obsmiddleware.MiddlewareConfig{
		Debug:           obsCfg.Debug(),
		ErrorClassifier: classifyErrorForLog,
	}))
	r.Use(obstracing.GinMiddleware())
	r.Use(RequestMetrics(metrics))
	r.Use(ErrorHandlingMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

func registerGin(obsCfg observability.Config, metrics *telemetry.Metrics) *gin.Engine {
	if !obsCfg.Debug() {
		gin.SetMode(gin.ReleaseMode)
	}
	return NewEngine(obsCfg, metrics)
}

func run(lc fx.Lifecycle, r *gin.Engine, cfg config.Config, log *zap.Logger) {
	addr := cfg.HTTPAddr
	if addr == "" {
		addr = ":8080"
	}
	srv := &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					log.Fatal("http server stopped", zap.Error(err))
				}
			}()
			log.Info("http server listening", zap.String("addr", addr))
			return nil
		},
		OnStop: func(ctx context.Context) error {
			shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	})
}

type Server struct {
	engine   *gin.Engine
	cfg      config.Config
	log      *zap.Logger
	webhooks WebhookIngester
	refunds  RefundCanceller
	authsvc  Authenticator
	authz    BookingAuthorizer
	audit    AuditLister
}

type ServerParams struct {
	fx.In

	Gin      *gin.Engine
	Cfg      config.Config
	Log      *zap.Logger
	Webhooks WebhookIngester
	Refunds  RefundCanceller
	Authsvc  Authenticator
	Authz    BookingAuthorizer
	Audit    AuditLister
}

func NewServer(p ServerParams) *Server {
	svc := &Server{
		engine:   p.Gin,
		cfg:      p.Cfg,
		log:      p.Log.Named("http"),
		webhooks: p.Webhooks,
		refunds:  p.Refunds,
		authsvc:  p.Authsvc,
		authz:    p.Authz,
		audit:    p.Audit,
	}

	svc.registerWebhookRoutes()
	svc.registerAPIRoutes()

	return svc
}

func (s *Server) Engine() *gin.Engine {
	return s.engine
}

func (s *Server) registerWebhookRoutes() {
	webhooks := s.engine.Group("/webhooks")

	webhooks.POST("/stripe", s.HandleStripeWebhook)
}

func (s *Server) registerAPIRoutes() {
	api := s.engine.Group("/api")

	// -------- Refunds --------
	api.POST("/refunds", s.AuthRequired(), s.CreateRefund)

	// -------- Audit --------
	api.GET("/bookings/:id/audit-logs", s.AuthRequired(), s.ListBookingAuditLogs)
}
