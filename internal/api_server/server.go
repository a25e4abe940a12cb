// Package apiserver hosts the HTTP surface of the inspector service.
package apiserver

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/render"
	"go.uber.org/zap"

	"github.com/virtforensics/memory-inspector/internal/config"
	"github.com/virtforensics/memory-inspector/internal/forensics"
	handlers "github.com/virtforensics/memory-inspector/internal/handlers/v1alpha1"
	"github.com/virtforensics/memory-inspector/internal/inventory"
	"github.com/virtforensics/memory-inspector/internal/service"
	"github.com/virtforensics/memory-inspector/internal/store"
	"github.com/virtforensics/memory-inspector/pkg/metrics"
	"github.com/virtforensics/memory-inspector/pkg/middleware"
)

const (
	gracefulShutdownTimeout = 5 * time.Second
)

type Server struct {
	cfg          *config.Config
	store        store.Store
	orchestrator *forensics.Orchestrator
	acquirer     forensics.Acquirer
	listener     net.Listener
}

// New returns a new instance of the inspector API server.
func New(
	cfg *config.Config,
	store store.Store,
	orchestrator *forensics.Orchestrator,
	acquirer forensics.Acquirer,
	listener net.Listener,
) *Server {
	return &Server{
		cfg:          cfg,
		store:        store,
		orchestrator: orchestrator,
		acquirer:     acquirer,
		listener:     listener,
	}
}

func (s *Server) Run(ctx context.Context) error {
	zap.S().Named("api_server").Info("Initializing API server")

	router := chi.NewRouter()

	metricMiddleware := metrics.NewMiddleware("api_server")
	metricMiddleware.MustRegisterDefault()

	router.Use(
		metricMiddleware.Handler,
		cors.Handler(cors.Options{
			AllowedOrigins:   []string{"*"},
			AllowedMethods:   []string{"GET", "PUT", "POST", "DELETE", "HEAD", "OPTIONS"},
			AllowedHeaders:   []string{"*"},
			AllowCredentials: false,
			MaxAge:           300,
		}),
		middleware.RequestID,
		middleware.Logger(),
		chiMiddleware.Recoverer,
	)

	var instanceSource service.InstanceSource
	if s.cfg.Inventory.BaseUrl != "" {
		instanceSource = inventory.NewClient(s.cfg)
	}

	handler := handlers.NewServiceHandler(
		service.NewJobService(s.store, s.cfg, s.orchestrator, s.acquirer),
		service.NewImageService(s.store),
		service.NewInstanceService(instanceSource),
	)
	router.Mount("/api/v1alpha1", handler.Routes())
	router.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		render.PlainText(w, r, "OK")
	})

	srv := http.Server{Addr: s.cfg.Service.Address, Handler: router}

	go func() {
		<-ctx.Done()
		zap.S().Named("api_server").Infof("Shutdown signal received: %s", ctx.Err())
		ctxTimeout, cancel := context.WithTimeout(context.Background(), gracefulShutdownTimeout)
		defer cancel()

		srv.SetKeepAlivesEnabled(false)
		_ = srv.Shutdown(ctxTimeout)
		zap.S().Named("api_server").Info("api server terminated")
	}()

	zap.S().Named("api_server").Infof("Listening on %s...", s.listener.Addr().String())
	if err := srv.Serve(s.listener); err != nil && !errors.Is(err, net.ErrClosed) {
		return fmt.Errorf("api server stopped: %w", err)
	}

	return nil
}
