// Package admin serves the HTTP health, readiness, metrics and cookie
// occupancy surface of a cpd node.
package admin

import (
	"context"
	"errors"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/danmuck/cpnet/internal/cookie"
	"github.com/danmuck/cpnet/internal/observability"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
)

const (
	Version = "0.1.0"

	shutdownTimeout = 5 * time.Second
)

type Config struct {
	// NodeID labels request metrics and health responses.
	NodeID      string
	Role        string
	Addr        string
	CORSOrigins []string
}

// Server is the admin HTTP surface of one node.
type Server struct {
	cfg     Config
	router  *gin.Engine
	store   *cookie.Store
	started time.Time
	ready   atomic.Bool
}

// New builds the router. store may be nil on nodes without a cookie store.
func New(cfg Config, store *cookie.Store) *Server {
	observability.RegisterMetrics()
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(observability.AdminAccess(log.Logger, cfg.NodeID, cfg.Role))
	r.Use(cors.New(cors.Config{
		AllowOrigins: normalizeOrigins(cfg.CORSOrigins),
		AllowMethods: []string{"GET"},
		AllowHeaders: []string{"Origin", "Content-Type"},
		MaxAge:       12 * time.Hour,
	}))
	_ = r.SetTrustedProxies([]string{"127.0.0.1", "::1"})

	s := &Server{
		cfg:     cfg,
		router:  r,
		store:   store,
		started: time.Now(),
	}
	s.registerRoutes()
	return s
}

func (s *Server) Handler() http.Handler {
	return s.router
}

// SetReady flips the readiness reported by /ready.
func (s *Server) SetReady(ready bool) {
	s.ready.Store(ready)
}

func (s *Server) registerRoutes() {
	s.router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "ok",
			"uptime":  time.Since(s.started).String(),
			"node":    s.cfg.NodeID,
			"role":    s.cfg.Role,
			"version": Version,
		})
	})

	s.router.GET("/ready", func(c *gin.Context) {
		status := http.StatusOK
		if !s.ready.Load() {
			status = http.StatusServiceUnavailable
		}
		c.JSON(status, gin.H{
			"ready":   s.ready.Load(),
			"uptime":  time.Since(s.started).String(),
			"node":    s.cfg.NodeID,
			"version": Version,
		})
	})

	s.router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	s.router.GET("/cookies", func(c *gin.Context) {
		if s.store == nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "no cookie store on this node"})
			return
		}
		c.JSON(http.StatusOK, s.cookieReport())
	})
}

// CookieReport describes store occupancy. Cookie values are never exposed.
type CookieReport struct {
	Capacity int           `json:"capacity"`
	Active   int           `json:"active"`
	TTL      string        `json:"ttl"`
	Clients  []CookieEntry `json:"clients"`
}

type CookieEntry struct {
	Client    string    `json:"client"`
	IssuedAt  time.Time `json:"issued_at"`
	Remaining string    `json:"remaining,omitempty"`
}

func (s *Server) cookieReport() CookieReport {
	entries := s.store.Snapshot()
	report := CookieReport{
		Capacity: s.store.Capacity(),
		Active:   len(entries),
		TTL:      s.store.TTL().String(),
		Clients:  make([]CookieEntry, 0, len(entries)),
	}
	for _, e := range entries {
		item := CookieEntry{Client: e.ClientID, IssuedAt: e.CreatedAt}
		if s.store.TTL() > 0 {
			item.Remaining = e.Remaining.Round(time.Millisecond).String()
		}
		report.Clients = append(report.Clients, item)
	}
	return report
}

// Serve listens on cfg.Addr until ctx is done.
func (s *Server) Serve(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Addr,
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", s.cfg.Addr).Str("node", s.cfg.NodeID).Msg("admin http listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		return nil
	}
}

func normalizeOrigins(origins []string) []string {
	if len(origins) == 0 {
		return []string{"http://localhost:3000"}
	}
	return origins
}
