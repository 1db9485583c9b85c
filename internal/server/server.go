// Package server assembles the HTTP API and runs it until the process is
// asked to stop.
package server

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"slices"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"

	"pledgr/internal/config"
	"pledgr/internal/handlers"
	"pledgr/internal/metrics"
	"pledgr/internal/middleware"
	"pledgr/internal/service"
)

const shutdownTimeout = 30 * time.Second

// Deps are the services the API exposes.
type Deps struct {
	DB        *sqlx.DB
	Auth      *service.AuthService
	Campaigns *service.CampaignService
	Pledges   *service.PledgeService
}

// NewRouter builds the gin engine with every route and middleware.
func NewRouter(cfg *config.Config, deps Deps) *gin.Engine {
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.RequestIDMiddleware())
	r.Use(middleware.AccessLog())
	r.Use(metrics.Middleware())
	r.NoRoute(handlers.RouteNotFound)
	if corsMiddleware := newCORS(cfg.AllowedOrigins()); corsMiddleware != nil {
		r.Use(corsMiddleware)
	}

	healthHandler := handlers.NewHealthHandler(deps.DB)
	authHandler := handlers.NewAuthHandler(deps.Auth)
	campaignHandler := handlers.NewCampaignHandler(deps.Campaigns)
	pledgeHandler := handlers.NewPledgeHandler(deps.Pledges)
	paymentHandler := handlers.NewPaymentHandler(deps.Pledges)

	r.GET("/health", healthHandler.Live)
	r.GET("/health/db", healthHandler.Database)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	generalLimiter := middleware.NewRateLimiter("api", cfg.RateLimitGeneral, cfg.RateLimitWindow)
	authLimiter := middleware.NewRateLimiter("auth", cfg.RateLimitAuth, cfg.RateLimitWindow)
	requireAuth := middleware.AuthMiddleware(deps.Auth)

	// All API routes under /api
	api := r.Group("/api", generalLimiter.Middleware())
	{
		api.GET("/health", healthHandler.Live)

		auth := api.Group("/auth")
		{
			auth.POST("/register", authLimiter.Middleware(), authHandler.Register)
			auth.POST("/login", authLimiter.Middleware(), authHandler.Login)
			auth.GET("/me", requireAuth, authHandler.Me)
			auth.PUT("/profile", requireAuth, authHandler.UpdateProfile)
		}

		campaigns := api.Group("/campaigns")
		{
			campaigns.GET("", campaignHandler.List)
			campaigns.GET("/:id", campaignHandler.Get)
			campaigns.GET("/:id/aggregate", pledgeHandler.Aggregate)
			campaigns.POST("", requireAuth, campaignHandler.Create)
			campaigns.PUT("/:id", requireAuth, campaignHandler.Update)
			campaigns.POST("/:id/levels", requireAuth, campaignHandler.AddLevel)
			campaigns.GET("/:id/settlements", requireAuth, campaignHandler.ListSettlements)
		}

		pledges := api.Group("/pledges", requireAuth)
		{
			pledges.POST("", pledgeHandler.Create)
			pledges.GET("", pledgeHandler.List)
			pledges.DELETE("/:id", pledgeHandler.Cancel)
		}

		api.POST("/payments/webhook", paymentHandler.HandlePaymentNotification)
	}

	return r
}

func newCORS(origins []string) gin.HandlerFunc {
	if len(origins) == 0 {
		return nil
	}

	corsConfig := cors.Config{
		AllowMethods:  []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowHeaders:  []string{"Origin", "Content-Type", "Authorization", "X-Request-ID"},
		ExposeHeaders: []string{"X-Request-ID", "Retry-After"},
		MaxAge:        12 * time.Hour,
	}
	if slices.Contains(origins, "*") {
		corsConfig.AllowAllOrigins = true
	} else {
		corsConfig.AllowOrigins = origins
		corsConfig.AllowCredentials = true
	}
	return cors.New(corsConfig)
}

// New wraps handler in an h2c-capable http.Server configured from cfg.
func New(cfg *config.Config, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:           cfg.ServerAddr(),
		ReadTimeout:    cfg.ServerReadTimeout,
		WriteTimeout:   cfg.ServerWriteTimeout,
		IdleTimeout:    120 * time.Second,
		MaxHeaderBytes: 1 << 20, // 1MB
		// Use h2c so we can serve HTTP/2 without TLS
		Handler: h2c.NewHandler(handler, &http2.Server{
			MaxConcurrentStreams: 250,
		}),
	}
}

// Run serves until ctx is cancelled or SIGINT/SIGTERM arrives, then shuts
// the server down gracefully.
func Run(ctx context.Context, srv *http.Server) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	serveErr := make(chan error, 1)
	go func() {
		log.Printf("Starting pledgr API on %s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err, ok := <-serveErr:
		if ok {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	log.Println("Shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}

	log.Println("Server exited gracefully")
	return nil
}
