package broadcast

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"footprint-chart/internal/chart"
)

// Controller runs fn against the chart on its owner goroutine.
type Controller interface {
	Do(ctx context.Context, fn func(*chart.Chart)) error
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // renderer is served from anywhere
	},
}

// Server pushes render frames to websocket clients and exposes the chart API.
type Server struct {
	ctrl   Controller
	hub    *Hub
	router chi.Router
	log    *zap.Logger
}

// NewServer wires the routes. frames is usually the service's Frames channel.
func NewServer(ctrl Controller, frames <-chan chart.Frame, log *zap.Logger) *Server {
	if log == nil {
		log = zap.NewNop()
	}
	s := &Server{
		ctrl: ctrl,
		hub:  newHub(frames, log),
		log:  log,
	}

	r := chi.NewMux()
	r.Use(middleware.RequestID)
	r.Use(requestLogger(log))
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("ok"))
	})
	r.Get("/ws", s.serveWs)
	r.Route("/api", func(r chi.Router) {
		r.Get("/frame", s.getFrame)
		r.Get("/options", s.getOptions)
		r.Patch("/options", s.patchOptions)
		r.Put("/timeframe", s.putTimeframe)
		r.Post("/reset", s.postReset)
	})
	s.router = r
	return s
}

func (s *Server) Handler() http.Handler { return s.router }

// Clients returns the number of connected websocket clients.
func (s *Server) Clients() int { return s.hub.count() }

// Run serves addr until ctx is done, then shuts down gracefully.
func (s *Server) Run(ctx context.Context, addr string) error {
	go s.hub.run(ctx)

	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
	}
	errc := make(chan error, 1)
	go func() {
		s.log.Info("http listening", zap.String("addr", addr))
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		return errors.Wrap(err, "listen")
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return errors.Wrap(err, "shutdown")
	}
	return nil
}

// requestLogger logs one line per request.
func requestLogger(log *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)
			log.Debug("http request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Int("bytes", ww.BytesWritten()),
				zap.Duration("duration", time.Since(start)),
				zap.String("request_id", middleware.GetReqID(r.Context())),
			)
		})
	}
}
