package server

import (
	"context"
	"net/http"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/smallbiznis/payway/internal/commission"
	"github.com/smallbiznis/payway/internal/config"
	"github.com/smallbiznis/payway/internal/currency"
	currencydomain "github.com/smallbiznis/payway/internal/currency/domain"
	"github.com/smallbiznis/payway/internal/exchangerate"
	exchangedomain "github.com/smallbiznis/payway/internal/exchangerate/domain"
	"github.com/smallbiznis/payway/internal/observability"
	obsmiddleware "github.com/smallbiznis/payway/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/payway/internal/observability/metrics"
	obstracing "github.com/smallbiznis/payway/internal/observability/tracing"
	"github.com/smallbiznis/payway/internal/payout"
	"github.com/smallbiznis/payway/internal/promocode"
	promodomain "github.com/smallbiznis/payway/internal/promocode/domain"
	"github.com/smallbiznis/payway/internal/provider"
	providerdomain "github.com/smallbiznis/payway/internal/provider/domain"
	"github.com/smallbiznis/payway/internal/transaction"
	transactiondomain "github.com/smallbiznis/payway/internal/transaction/domain"
	"github.com/smallbiznis/payway/internal/webhook"
	"go.uber.org/fx"
	"gorm.io/gorm"
)

var Module = fx.Module("http.server",
	fx.Provide(registerGin),
	currency.Module,
	exchangerate.Module,
	commission.Module,
	provider.Module,
	payout.Module,
	webhook.Module,
	promocode.Module,
	transaction.Module,
	fx.Invoke(NewServer),
	fx.Invoke(run),
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

func registerGin(obsCfg observability.Config, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	return NewEngine(obsCfg, httpMetrics)
}

func run(lc fx.Lifecycle, r *gin.Engine, cfg config.Config) {
	srv := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: r,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					panic(err)
				}
			}()
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
	engine      *gin.Engine
	cfg         config.Config
	db          *gorm.DB
	genID       *snowflake.Node
	currencySvc currencydomain.Service
	ratesSvc    exchangedomain.Service
	providerSvc providerdomain.Service
	txnSvc      transactiondomain.Service
	promoSvc    promodomain.Service
	obsMetrics  *obsmetrics.Metrics
}

type ServerParams struct {
	fx.In

	Gin         *gin.Engine
	Cfg         config.Config
	DB          *gorm.DB
	GenID       *snowflake.Node
	CurrencySvc currencydomain.Service
	RatesSvc    exchangedomain.Service
	ProviderSvc providerdomain.Service
	TxnSvc      transactiondomain.Service
	PromoSvc    promodomain.Service
	ObsMetrics  *obsmetrics.Metrics `optional:"true"`
}

func NewServer(p ServerParams) *Server {
	svc := &Server{
		engine:      p.Gin,
		cfg:         p.Cfg,
		db:          p.DB,
		genID:       p.GenID,
		currencySvc: p.CurrencySvc,
		ratesSvc:    p.RatesSvc,
		providerSvc: p.ProviderSvc,
		txnSvc:      p.TxnSvc,
		promoSvc:    p.PromoSvc,
		obsMetrics:  p.ObsMetrics,
	}

	svc.registerAPIRoutes()
	svc.registerPublicRoutes()

	return svc
}

func (s *Server) Engine() *gin.Engine {
	return s.engine
}

func (s *Server) registerAPIRoutes() {
	v1 := s.engine.Group("/v1")

	// -------- Reference data --------
	v1.GET("/currencies", s.ListCurrencies)
	v1.GET("/rates", s.GetRate)

	// -------- Transactions --------
	// Provider API keys gate creation and status lookups.
	v1.POST("/transactions", s.APIKeyRequired(), s.CreateTransaction)
	v1.GET("/transactions/:id", s.APIKeyRequired(), s.GetTransaction)
}

func (s *Server) registerPublicRoutes() {
	// Claim endpoints are reached from the link or QR code the payer was
	// handed. The code itself is the only credential.
	claims := s.engine.Group("/v1/claims")

	claims.GET("/:code", s.GetClaim)
	claims.POST("/:code/redeem", s.RedeemClaim)
}
