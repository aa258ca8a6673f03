package metrics

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

// Server exposes the default prometheus registry over HTTP while a
// computation runs. A Server with an empty address is a no-op.
type Server struct {
	addr   string
	log    *zap.Logger
	srv    *http.Server
	listen net.Listener
}

func NewServer(addr string, log *zap.Logger) *Server {
	return &Server{addr: addr, log: log.Named("metrics")}
}

// Start binds the listener and serves in the background.
func (s *Server) Start(ctx context.Context) error {
	if s.addr == "" {
		return nil
	}
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return err
	}
	s.listen = ln

	mux := http.NewServeMux()
	mux.Handle("/metrics", Handler(prometheus.DefaultGatherer))
	s.srv = &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	s.log.Info("Serving metrics", zap.String("address", ln.Addr().String()))
	go func() {
		if err := s.srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.Error("metrics server stopped", zap.Error(err))
		}
	}()
	return nil
}

// Addr returns the bound address, or "" when the server is disabled.
func (s *Server) Addr() string {
	if s.listen == nil {
		return ""
	}
	return s.listen.Addr().String()
}

func (s *Server) Stop(ctx context.Context) error {
	if s.srv == nil {
		return nil
	}
	return s.srv.Shutdown(ctx)
}
