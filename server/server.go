package server

import (
	"context"
	"net"
	"net/http"
	"time"

	"github.com/glossd/fetch"
	"github.com/glossd/unsealer/common"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// ErrInterrupted is returned by Run when the context is cancelled before a
// payload was accepted.
var ErrInterrupted = errors.New("interrupted before the service was unsealed")

const shutdownTimeout = 5 * time.Second

// Server waits for a sealed configuration and stops itself once it has one.
type Server struct {
	cfg     common.Config
	store   *store
	limiter *ipLimiter
	handler http.Handler
}

func New(cfg common.Config) *Server {
	cfg = cfg.WithDefaults()
	s := &Server{
		cfg:     cfg,
		store:   newStore(),
		limiter: newIPLimiter(cfg.RatePerSecond, cfg.RateBurst),
	}
	s.handler = s.routes()
	return s
}

func (s *Server) routes() http.Handler {
	fetch.SetHandlerConfig(fetch.HandlerConfig{
		ErrorHook: func(err error) {
			logrus.Warnln("fetch.Handler error", err)
		},
	})

	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", fetch.ToHandlerFunc(s.Health))
	mux.HandleFunc("POST /init", s.Init)

	h := http.TimeoutHandler(mux, s.cfg.RequestTimeout(), "Request timed out")
	return s.limiter.middleware(h)
}

func (s *Server) Handler() http.Handler {
	return s.handler
}

// Unsealed is closed once a payload has been accepted.
func (s *Server) Unsealed() <-chan struct{} {
	return s.store.done
}

// Run listens on the configured address. See Serve.
func (s *Server) Run(ctx context.Context) (string, error) {
	l, err := net.Listen("tcp", s.cfg.Bind)
	if err != nil {
		return "", errors.Wrapf(err, "failed to listen on %s", s.cfg.Bind)
	}
	return s.Serve(ctx, l)
}

// Serve blocks until a payload is accepted, returning the decrypted config,
// or until ctx is cancelled. The server is shut down gracefully either way.
func (s *Server) Serve(ctx context.Context, l net.Listener) (string, error) {
	srv := &http.Server{
		Handler:           s.handler,
		ReadHeaderTimeout: s.cfg.RequestTimeout(),
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logrus.Infof("Unsealer listening on %s", l.Addr())
		if err := srv.Serve(l); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return errors.Wrap(err, "server failed")
		}
		return nil
	})
	g.Go(func() error {
		select {
		case <-s.store.done:
			logrus.Info("Unsealed, shutting down the unsealer server...")
		case <-gctx.Done():
			logrus.Info("Shutting down the unsealer server...")
		}
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return errors.Wrap(err, "server forced to shutdown")
		}
		return nil
	})
	err := g.Wait()

	if config, ok := s.store.get(); ok {
		if err != nil {
			logrus.Warnf("Unsealed, but the server didn't stop cleanly: %s", err)
		}
		return config, nil
	}
	if err != nil {
		return "", err
	}
	return "", ErrInterrupted
}
