// Package serve previews the latest pipeline result over HTTP and, in watch
// mode, re-runs the pipeline when the input layers change.
package serve

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/frances-ha/egm722/internal/export"
	"github.com/frances-ha/egm722/internal/pipeline"
	"golang.org/x/sync/errgroup"
)

// DefaultPort is used when Config.Port is zero.
const DefaultPort = 8722

// Config holds configuration for the preview server.
type Config struct {
	Pipeline pipeline.Config
	// Port to listen on. Negative picks a free port.
	Port  int
	Watch bool
	// Reporter receives every run's stages. Nil ignores them.
	Reporter pipeline.Reporter
	// BeforeRun and OnRun bracket every pipeline run. OnRun is called
	// whether or not the run succeeded.
	BeforeRun func(ctx context.Context)
	OnRun     func(res *pipeline.Result, err error)
	Logger    *slog.Logger
}

// Server holds the latest rendered snapshot and serves it.
type Server struct {
	cfg      Config
	logger   *slog.Logger
	notifier *Notifier

	mu      sync.RWMutex
	snap    *snapshot
	lastErr error
	addr    net.Addr
}

// snapshot is one successful run encoded for serving.
type snapshot struct {
	png       []byte
	summary   []byte
	fragments []byte
	updated   time.Time
}

// New creates a server. Call Refresh or Serve to populate it.
func New(cfg Config) *Server {
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.DiscardHandler)
	}
	if cfg.Port == 0 {
		cfg.Port = DefaultPort
	}
	return &Server{
		cfg:      cfg,
		logger:   cfg.Logger,
		notifier: NewNotifier(),
	}
}

// Notifier returns the server's refresh notifier.
func (s *Server) Notifier() *Notifier { return s.notifier }

// Addr returns the listening address once Serve has started, or nil.
func (s *Server) Addr() net.Addr {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.addr
}

// Refresh runs the pipeline and publishes the result. On failure the
// previous snapshot stays in place and the error is reported by /healthz.
func (s *Server) Refresh(ctx context.Context) error {
	cfg := s.cfg.Pipeline
	if cfg.MapPath == "" {
		return errors.New("serve needs a map output path")
	}
	cfg.Logger = s.logger

	if s.cfg.BeforeRun != nil {
		s.cfg.BeforeRun(ctx)
	}
	res, err := pipeline.Run(ctx, cfg, s.cfg.Reporter)
	if s.cfg.OnRun != nil {
		s.cfg.OnRun(res, err)
	}
	if err == nil {
		var snap *snapshot
		snap, err = encode(res, s.logger)
		if err == nil {
			s.mu.Lock()
			s.snap = snap
			s.lastErr = nil
			s.mu.Unlock()
			s.notifier.Broadcast()
			s.logger.Info("published snapshot", "counties", len(res.Summary), "fragments", res.Clip.Fragments.Len())
			return nil
		}
	}

	s.mu.Lock()
	s.lastErr = err
	s.mu.Unlock()
	return err
}

func encode(res *pipeline.Result, logger *slog.Logger) (*snapshot, error) {
	snap := &snapshot{updated: time.Now().UTC()}

	var buf bytes.Buffer
	if err := res.Figure.Write(&buf, "png"); err != nil {
		return nil, fmt.Errorf("failed to encode map: %w", err)
	}
	snap.png = buf.Bytes()

	summary, err := json.Marshal(newSummary(res, snap.updated))
	if err != nil {
		return nil, fmt.Errorf("failed to encode summary: %w", err)
	}
	snap.summary = summary

	var frag bytes.Buffer
	if err := export.WriteGeoJSON(&frag, res.Clip.Fragments, logger); err != nil {
		return nil, fmt.Errorf("failed to encode fragments: %w", err)
	}
	snap.fragments = frag.Bytes()
	return snap, nil
}

func (s *Server) current() (*snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snap, s.lastErr
}

// Serve runs the pipeline once, then serves until the context is cancelled.
func (s *Server) Serve(ctx context.Context) error {
	if err := s.Refresh(ctx); err != nil {
		return err
	}

	addr := fmt.Sprintf(":%d", s.cfg.Port)
	if s.cfg.Port < 0 {
		addr = "127.0.0.1:0"
	}
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	s.mu.Lock()
	s.addr = ln.Addr()
	s.mu.Unlock()
	s.logger.Info("starting preview server", "addr", ln.Addr().String())

	eg, egctx := errgroup.WithContext(ctx)

	srv := &http.Server{
		Handler: s.Handler(),
		BaseContext: func(_ net.Listener) context.Context {
			return egctx
		},
		ReadHeaderTimeout: 10 * time.Second,
	}

	if s.cfg.Watch {
		eg.Go(func() error {
			paths := []string{s.cfg.Pipeline.CountiesPath, s.cfg.Pipeline.WardsPath}
			return pipeline.Watch(egctx, paths, pipeline.DefaultDebounce, s.logger, func(ctx context.Context) {
				if err := s.Refresh(ctx); err != nil {
					s.logger.Error("refresh failed", "error", err)
				}
			})
		})
	}

	eg.Go(func() error {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})

	eg.Go(func() error {
		<-egctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		s.logger.Debug("shutting down preview server...")
		return srv.Shutdown(shutdownCtx)
	})

	return eg.Wait()
}
