package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/KAsare1/social-api/cmd/utils"
	"github.com/KAsare1/social-api/service"
	"github.com/KAsare1/social-api/service/forum"
	"github.com/KAsare1/social-api/service/user"
)

const shutdownTimeout = 10 * time.Second

type APIServer struct {
	address     string
	deps        service.Deps
	corsOrigins []string
	log         *zap.Logger
}

func NewApiServer(address string, deps service.Deps, corsOrigins []string) *APIServer {
	return &APIServer{
		address:     address,
		deps:        deps,
		corsOrigins: corsOrigins,
		log:         deps.Log.Named("api"),
	}
}

// Handler builds the full middleware chain and route table.
func (s *APIServer) Handler() http.Handler {
	router := mux.NewRouter()
	subrouter := router.PathPrefix("/api/v1").Subrouter()

	subrouter.HandleFunc("/health", s.health).Methods("GET")

	userHandler := user.NewHandler(s.deps)
	userHandler.RegisterRoutes(subrouter)

	forumHandler := forum.NewPostHandler(s.deps)
	forumHandler.RegisterRoutes(subrouter)

	cors := handlers.CORS(
		handlers.AllowedOrigins(s.corsOrigins),
		handlers.AllowedMethods([]string{"GET", "POST", "DELETE", "OPTIONS"}),
		handlers.AllowedHeaders([]string{"Authorization", "Content-Type", utils.RequestIDHeader}),
		handlers.ExposedHeaders([]string{utils.RequestIDHeader}),
	)
	recovery := handlers.RecoveryHandler(
		handlers.RecoveryLogger(zap.NewStdLog(s.log)),
		handlers.PrintRecoveryStack(true),
	)
	return utils.RequestLogger(s.log)(recovery(cors(router)))
}

// Run serves until ctx is cancelled, then drains in-flight requests.
func (s *APIServer) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.address,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		s.log.Info("server running", zap.String("address", s.address))
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}

	s.log.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errc; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *APIServer) health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if err := s.deps.Store.Ping(ctx); err != nil {
		s.log.Warn("health check failed", zap.Error(err))
		utils.WriteJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
		return
	}
	utils.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
