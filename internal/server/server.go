package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/smallbiznis/agentdesk/internal/artifact"
	auditdomain "github.com/smallbiznis/agentdesk/internal/audit/domain"
	"github.com/smallbiznis/agentdesk/internal/authorization"
	"github.com/smallbiznis/agentdesk/internal/clock"
	"github.com/smallbiznis/agentdesk/internal/config"
	feedomain "github.com/smallbiznis/agentdesk/internal/fee/domain"
	ledgerdomain "github.com/smallbiznis/agentdesk/internal/ledger/domain"
	"github.com/smallbiznis/agentdesk/internal/observability"
	obsmiddleware "github.com/smallbiznis/agentdesk/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/agentdesk/internal/observability/metrics"
	obstracing "github.com/smallbiznis/agentdesk/internal/observability/tracing"
	"github.com/smallbiznis/agentdesk/internal/ratelimit"
	"github.com/smallbiznis/agentdesk/internal/receipt"
	servicerequestdomain "github.com/smallbiznis/agentdesk/internal/servicerequest/domain"
	walletdomain "github.com/smallbiznis/agentdesk/internal/wallet/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("http.server",
	fx.Provide(NewEngine),
	fx.Provide(NewServer),
)

func NewEngine(obsCfg observability.Config, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(obsmiddleware.GinMiddleware(obsmiddleware.MiddlewareConfig{
		Debug:           obsCfg.Debug(),
		ErrorClassifier: classifyErrorForLog,
	}))
	r.Use(obstracing.GinMiddleware())
	r.Use(obsmetrics.GinMiddleware(httpMetrics))
	r.Use(ErrorHandlingMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

// RunHTTP binds the engine to the configured address for the app lifetime.
func RunHTTP(lc fx.Lifecycle, cfg config.Config, r *gin.Engine, log *zap.Logger) {
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
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
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

type ServerParams struct {
	fx.In

	Gin         *gin.Engine
	Cfg         config.Config
	Log         *zap.Logger
	Clock       clock.Clock
	AuthzSvc    authorization.Service
	AuditSvc    auditdomain.Service
	FeeSvc      feedomain.Service
	WalletSvc   walletdomain.Service
	LedgerSvc   ledgerdomain.Service
	RequestSvc  servicerequestdomain.Service
	ArtifactSvc *artifact.Service
	Receipts    receipt.Provider
	Limiter     *ratelimit.Limiter  `optional:"true"`
	ObsMetrics  *obsmetrics.Metrics `optional:"true"`
}

type Server struct {
	engine      *gin.Engine
	cfg         config.Config
	log         *zap.Logger
	clock       clock.Clock
	authzSvc    authorization.Service
	auditSvc    auditdomain.Service
	feeSvc      feedomain.Service
	walletSvc   walletdomain.Service
	ledgerSvc   ledgerdomain.Service
	requestSvc  servicerequestdomain.Service
	artifactSvc *artifact.Service
	receipts    receipt.Provider
	limiter     *ratelimit.Limiter
	obsMetrics  *obsmetrics.Metrics
}

func NewServer(p ServerParams) *Server {
	return &Server{
		engine:      p.Gin,
		cfg:         p.Cfg,
		log:         p.Log.Named("http.server"),
		clock:       p.Clock,
		authzSvc:    p.AuthzSvc,
		auditSvc:    p.AuditSvc,
		feeSvc:      p.FeeSvc,
		walletSvc:   p.WalletSvc,
		ledgerSvc:   p.LedgerSvc,
		requestSvc:  p.RequestSvc,
		artifactSvc: p.ArtifactSvc,
		receipts:    p.Receipts,
		limiter:     p.Limiter,
		obsMetrics:  p.ObsMetrics,
	}
}

// RegisterAPIRoutes mounts the agent-facing surface.
func (s *Server) RegisterAPIRoutes() {
	api := s.engine.Group("/api")
	api.GET("/services", s.ListServices)
	api.POST("/quotes", s.QuoteFee)

	authed := api.Group("", s.ActorContext())
	authed.POST("/requests", s.SubmissionRateLimit(), s.CreateServiceRequest)
	authed.GET("/requests", s.ListServiceRequests)
	authed.GET("/requests/:id", s.GetServiceRequest)
	authed.GET("/requests/:id/receipt", s.GetServiceRequestReceipt)

	authed.GET("/wallet", s.authorize(authorization.ObjectWallet, authorization.ActionWalletViewOwn), s.GetOwnWallet)
	authed.GET("/wallet/transactions", s.authorize(authorization.ObjectWallet, authorization.ActionWalletViewOwn), s.ListOwnWalletTransactions)

	authed.POST("/uploads", s.authorize(authorization.ObjectUpload, authorization.ActionUploadCreate), s.CreateUpload)
}

// RegisterAdminRoutes mounts the administrator surface.
func (s *Server) RegisterAdminRoutes() {
	admin := s.engine.Group("/admin", s.ActorContext())

	admin.GET("/requests", s.ListServiceRequests)
	admin.GET("/requests/:id", s.GetServiceRequest)
	admin.GET("/requests/:id/receipt", s.GetServiceRequestReceipt)
	admin.POST("/requests/:id/processing", s.BeginProcessing)
	admin.POST("/requests/:id/complete", s.CompleteServiceRequest)
	admin.POST("/requests/:id/fail", s.FailServiceRequest)
	admin.PUT("/requests/:id/artifacts/:name", s.AttachArtifact)

	admin.GET("/wallets/:owner_id", s.authorize(authorization.ObjectWallet, authorization.ActionWalletViewAny), s.GetWallet)
	admin.GET("/wallets/:owner_id/transactions", s.authorize(authorization.ObjectWallet, authorization.ActionWalletViewAny), s.ListWalletTransactions)
	admin.POST("/wallets/:owner_id/fund", s.authorize(authorization.ObjectWallet, authorization.ActionWalletFund), s.FundWallet)

	admin.POST("/uploads", s.authorize(authorization.ObjectUpload, authorization.ActionUploadCreate), s.CreateUpload)

	admin.GET("/audit_logs", s.authorize(authorization.ObjectAuditLog, authorization.ActionAuditLogView), s.ListAuditLogs)
	admin.GET("/ledger/entries", s.authorize(authorization.ObjectLedger, authorization.ActionLedgerView), s.ListLedgerEntries)
	admin.GET("/ledger/balances/:account", s.authorize(authorization.ObjectLedger, authorization.ActionLedgerView), s.GetLedgerBalance)

	admin.POST("/roles", s.authorize(authorization.ObjectRole, authorization.ActionRoleAssign), s.AssignRole)
	admin.GET("/roles/:actor_id", s.authorize(authorization.ObjectRole, authorization.ActionRoleAssign), s.GetRole)
}
