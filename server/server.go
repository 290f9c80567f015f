// Package server assembles the inkwell HTTP application from its modules and
// runs it with graceful shutdown.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"inkwell/apperror"
	"inkwell/auth"
	"inkwell/blog"
	"inkwell/cache"
	"inkwell/category"
	"inkwell/common"
	"inkwell/config"
	"inkwell/email"
	"inkwell/site"
)

// Prefixes whose anonymous GET responses may be served from the cache.
var cachedPrefixes = []string{"/api/posts", "/api/categories"}

type Server struct {
	cfg    *config.Config
	db     *gorm.DB
	logger *slog.Logger
	router *gin.Engine
	cache  *cache.Store
}

// New wires every module onto a fresh gin engine. The database must already
// be migrated.
func New(cfg *config.Config, db *gorm.DB, logger *slog.Logger) (*Server, error) {
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	} else if cfg.Server.Environment == config.EnvTest {
		gin.SetMode(gin.TestMode)
	}

	s := &Server{cfg: cfg, db: db, logger: logger}
	if cfg.Cache.Dir != "" {
		store, err := cache.New(cfg.Cache.Dir, cfg.Cache.MaxAge)
		if err != nil {
			return nil, fmt.Errorf("failed to open response cache: %w", err)
		}
		s.cache = store
	}

	metrics := common.NewMetrics()

	router := gin.New()
	router.Use(
		common.ErrorHandler(cfg.IsProduction()),
		common.Recovery(),
		common.RequestLogger(logger),
		metrics.Middleware(),
		common.CORS(cfg.Server.AllowedOrigins, !cfg.IsProduction()),
	)
	if s.cache != nil {
		router.Use(s.cache.Middleware(cachedPrefixes...))
	}

	tokens := auth.NewTokenIssuer(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL)
	var notifier auth.Notifier
	if mailer := email.NewMailer(cfg.Email); mailer.Enabled() {
		notifier = mailer
	}
	users := auth.NewService(db, tokens, cfg.Auth.BcryptCost, notifier)
	gate := auth.NewGate(tokens, users)

	api := router.Group("/api")
	api.GET("/health", s.health)
	auth.NewAuthModule(users, gate).RegisterRoutes(api)
	blog.NewBlogModule(blog.NewService(db), gate).RegisterRoutes(api)
	category.NewCategoryModule(category.NewService(db), gate).RegisterRoutes(api)

	site.NewSiteModule(db, cfg.Server.PublicURL).RegisterRoutes(router)
	router.GET("/metrics", gin.WrapH(metrics.Handler()))
	router.NoRoute(common.NotFoundHandler)

	s.router = router
	return s, nil
}

// Handler exposes the router, mostly for httptest.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) health(c *gin.Context) {
	if err := common.PingDb(s.db); err != nil {
		common.Fail(c, apperror.Internal("Database unavailable", err))
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"status":      "OK",
		"environment": s.cfg.Server.Environment,
		"timestamp":   time.Now().UTC(),
	})
}

// Run serves until ctx is cancelled, then drains in-flight requests for at
// most the configured shutdown timeout.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:         ":" + s.cfg.Server.Port,
		Handler:      s.router,
		ReadTimeout:  s.cfg.Server.ReadTimeout,
		WriteTimeout: s.cfg.Server.WriteTimeout,
	}

	if s.cache != nil && s.cfg.Cache.MaxAge > 0 {
		go s.cache.Sweep(ctx, s.cfg.Cache.MaxAge)
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("Starting server", "port", s.cfg.Server.Port, "environment", s.cfg.Server.Environment)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	s.logger.Info("Shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown failed: %w", err)
	}
	return nil
}
