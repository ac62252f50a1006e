package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"wadio/config"
	"wadio/core/broadcast"
	"wadio/core/metrics"
	"wadio/core/queue"
	"wadio/logger"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// CoverReader returns the picture embedded in an audio file.
type CoverReader interface {
	Cover(path string) (mime string, data []byte, err error)
}

// Deps are the components the HTTP server exposes.
type Deps struct {
	Scheduler *queue.Scheduler
	Registry  *broadcast.Registry
	Covers    CoverReader
	Metrics   *metrics.Metrics    // optional
	Gatherer  prometheus.Gatherer // optional, serves /metrics
}

// Server serves the audio stream, the JSON API and metrics.
type Server struct {
	cfg    *config.Config
	deps   Deps
	router *mux.Router
}

// New builds the router. The registry's OnRemove hook is taken over for
// listener accounting.
func New(cfg *config.Config, deps Deps) *Server {
	s := &Server{cfg: cfg, deps: deps}

	deps.Registry.OnRemove = func(id uuid.UUID, err error) {
		if deps.Metrics != nil {
			deps.Metrics.ListenerLeft()
		}
		logger.Info("listener dropped",
			logger.String("listener", id.String()),
			logger.Int("listeners", deps.Registry.Len()))
	}

	s.router = s.routes()
	return s
}

func (s *Server) routes() *mux.Router {
	router := mux.NewRouter()

	// 添加 CORS 中间件
	router.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Access-Control-Allow-Origin", "*")
			w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS, HEAD")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Range")
			w.Header().Set("Access-Control-Max-Age", "86400") // 24 hours

			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusOK)
				return
			}

			next.ServeHTTP(w, r)
		})
	})

	router.HandleFunc("/mp3", s.handleStream).Methods(http.MethodGet)
	router.HandleFunc("/stream", s.handleStream).Methods(http.MethodGet)
	router.HandleFunc("/ws", s.handleWebSocket).Methods(http.MethodGet)

	if s.cfg.APIEnabled {
		api := router.PathPrefix("/api").Subrouter()
		api.HandleFunc("/current", s.handleCurrent).Methods(http.MethodGet)
		api.HandleFunc("/queue", s.handleQueue).Methods(http.MethodGet)
		api.HandleFunc("/history", s.handleHistory).Methods(http.MethodGet)
		api.HandleFunc("/cover", s.handleCover).Methods(http.MethodGet)
	}

	if s.deps.Gatherer != nil {
		router.Handle("/metrics", promhttp.HandlerFor(s.deps.Gatherer, promhttp.HandlerOpts{})).Methods(http.MethodGet)
	}

	// preflight requests only need the CORS headers
	router.Methods(http.MethodOptions).HandlerFunc(func(w http.ResponseWriter, r *http.Request) {})

	router.NotFoundHandler = http.HandlerFunc(notFound)
	router.MethodNotAllowedHandler = http.HandlerFunc(notFound)
	return router
}

// Handler returns the root HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// ListenAndServe serves on cfg.ListenAddr until ctx is cancelled, then
// disconnects every listener and shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	// stream handlers lift the write deadline themselves
	srv := &http.Server{
		Addr:         s.cfg.ListenAddr,
		Handler:      s.router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}
	srv.RegisterOnShutdown(s.deps.Registry.Close)

	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening",
			logger.String("addr", s.cfg.ListenAddr),
			logger.String("stream", "http://"+displayAddr(s.cfg.ListenAddr)+"/mp3"),
			logger.Bool("api", s.cfg.APIEnabled))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err, ok := <-errCh:
		if ok {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	logger.Info("server stopped")
	return nil
}

func displayAddr(addr string) string {
	if len(addr) > 0 && addr[0] == ':' {
		return "0.0.0.0" + addr
	}
	return addr
}
