// Package server wires the lending features behind one gin engine.
package server

import (
	"database/sql"
	"net/http"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	_ "notebook-lending/docs"
	"notebook-lending/internal/lending/equipment"
	"notebook-lending/internal/lending/loans"
	"notebook-lending/internal/lending/people"
	"notebook-lending/internal/lending/stats"
	"notebook-lending/internal/platform/apperr"
	"notebook-lending/internal/platform/auth"
	"notebook-lending/internal/platform/clock"
	"notebook-lending/internal/platform/config"
	"notebook-lending/internal/platform/logger"
	"notebook-lending/internal/platform/metrics"
)

// Deps are the process-wide resources the router is built from.
type Deps struct {
	DB      *sql.DB
	Clock   clock.Clock
	Revoker auth.Revoker
	Metrics *metrics.Metrics
	Log     *zap.Logger
}

// App exposes the services main needs besides the router.
type App struct {
	Router *gin.Engine
	People *people.Service
	Loans  *loans.Service
}

func New(cfg *config.Config, d Deps) *App {
	tokens := auth.NewTokens([]byte(cfg.Auth.Secret), cfg.Auth.Issuer, cfg.Auth.TokenTTL, d.Clock)
	authSvc := auth.NewService(auth.NewStore(d.DB), tokens, d.Revoker, d.Log)
	peopleSvc := people.NewService(d.DB, d.Clock, authSvc, d.Log, people.Options{
		DefaultPassword: cfg.Auth.DefaultPassword,
		Locale:          cfg.Lending.Locale,
	})
	equipSvc := equipment.NewService(d.DB, d.Clock, d.Log)
	loanSvc := loans.NewService(d.DB, d.Clock, cfg.Location(), d.Metrics, d.Log)
	statsSvc := stats.NewService(d.DB, loanSvc, d.Log)

	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(logger.Middleware(d.Log), logger.Recovery(d.Log), d.Metrics.Middleware())
	_ = r.SetTrustedProxies(nil)

	if cfg.Mode == config.ModeDev {
		// CORS（開発中のみ必要）
		r.Use(cors.New(cors.Config{
			AllowOrigins:     []string{"http://localhost:3000"},
			AllowHeaders:     []string{"Origin", "Content-Type", "Authorization"},
			ExposeHeaders:    []string{"Content-Length", "Content-Disposition", "Location"},
			AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
			AllowCredentials: true,
		}))
		r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	// ヘルス
	r.GET("/healthz", func(c *gin.Context) { c.String(http.StatusOK, "ok") })
	if d.Metrics != nil {
		r.GET("/metrics", gin.WrapH(d.Metrics.Handler()))
	}

	// /api/v1
	api := r.Group("/api/v1")
	protected := api.Group("", auth.RequireAuth(tokens, d.Revoker, d.Log), auth.RequireRole(auth.RoleAdmin))

	auth.RegisterRoutes(api, protected, authSvc, d.Log)
	people.RegisterRoutes(protected, peopleSvc, d.Log)
	equipment.RegisterRoutes(protected, equipSvc, d.Log)
	loans.RegisterRoutes(protected, loanSvc, d.Log)
	stats.RegisterRoutes(protected, statsSvc, d.Log)

	r.NoRoute(func(c *gin.Context) {
		apperr.Respond(c, d.Log, apperr.NotFound("route not found"))
	})

	return &App{Router: r, People: peopleSvc, Loans: loanSvc}
}
