package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/charmbracelet/log"
	"github.com/chepyr/go-todo-tree/internal/auth"
	"github.com/chepyr/go-todo-tree/internal/config"
	"github.com/chepyr/go-todo-tree/internal/db"
	"github.com/chepyr/go-todo-tree/internal/handlers"
	"github.com/chepyr/go-todo-tree/internal/tasks"
	"github.com/chepyr/go-todo-tree/internal/web"
	"github.com/gorilla/mux"
	"github.com/spf13/cobra"
)

const shutdownTimeout = 5 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP server",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, logger, err := setup()
		if err != nil {
			return err
		}
		dbConn, err := initDB(cfg)
		if err != nil {
			return err
		}
		defer func() {
			if err := dbConn.Close(); err != nil {
				logger.Error("closing database connection", "err", err)
			}
		}()

		if err := db.EnsureSchema(cmd.Context(), dbConn, cfg.DBDriver); err != nil {
			return err
		}

		limiter := handlers.NewRateLimiter(cfg.RateLimit, cfg.RateWindow.Duration)
		defer limiter.Stop()

		router := newRouter(cfg, logger, limiter,
			db.NewTaskRepository(dbConn), db.NewUserRepository(dbConn), db.NewTokenRepository(dbConn))
		server := &http.Server{
			Addr:              cfg.Addr(),
			Handler:           router,
			ReadHeaderTimeout: 10 * time.Second,
		}
		return startServer(server, logger)
	},
}

func newRouter(cfg *config.Config, logger *log.Logger, limiter *handlers.RateLimiter, taskRepo tasks.Repository,
	users db.UserRepositoryInterface, tokens db.TokenRepositoryInterface) *mux.Router {
	hub := handlers.NewWSHub(logger)
	taskService := tasks.NewService(taskRepo, tasks.WithNotifier(hub))
	authService := auth.NewService(users, tokens, auth.LogMailer{Logger: logger},
		auth.Config{Secret: cfg.JWTSecret, TokenTTL: cfg.TokenTTL.Duration, AppURL: cfg.AppURL},
		auth.WithLogger(logger), auth.WithSessionCloser(hub))

	api := &handlers.Handler{
		Tasks:          taskService,
		Auth:           authService,
		RateLimiter:    limiter,
		WSHub:          hub,
		Logger:         logger,
		AllowedOrigins: cfg.AllowedOrigins,
	}
	pages := web.NewHandler(web.Options{
		Tasks:         taskService,
		Auth:          authService,
		Logger:        logger,
		SecureCookies: cfg.SecureCookies,
		SessionTTL:    cfg.TokenTTL.Duration,
	})

	router := mux.NewRouter()
	api.RegisterRoutes(router)
	pages.RegisterRoutes(router)
	return router
}

func startServer(server *http.Server, logger *log.Logger) error {
	logger.Info("starting server", "addr", server.Addr)

	errc := make(chan error, 1)
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- err
		}
		close(errc)
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	select {
	case err := <-errc:
		return err
	case <-quit:
	}
	logger.Info("shutting down server")

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		return err
	}
	logger.Info("server stopped")
	return nil
}
