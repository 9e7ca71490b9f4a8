// Package status serves the operator HTTP endpoints: health, the live
// session snapshot, recent audit rows and session cancellation.
package status

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/eden-chang/mas-bot/internal/history"
	"github.com/eden-chang/mas-bot/internal/reserve"
	"github.com/eden-chang/mas-bot/internal/session"
)

// Server is the operator HTTP server.
type Server struct {
	machine  *session.Machine
	recorder *history.Recorder
	pending  func() []reserve.Entry
	port     int
	started  time.Time
	engine   *gin.Engine
}

// ServerOpts holds parameters for creating a Server.
type ServerOpts struct {
	Machine  *session.Machine
	Recorder *history.Recorder      // optional
	Pending  func() []reserve.Entry // optional, reservation schedule view
	Port     int
}

// NewServer creates a Server and registers its routes.
func NewServer(opts ServerOpts) (*Server, error) {
	if opts.Machine == nil {
		return nil, fmt.Errorf("status: session machine is required")
	}
	if opts.Port <= 0 {
		return nil, fmt.Errorf("status: port %d is invalid", opts.Port)
	}

	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery())

	s := &Server{
		machine:  opts.Machine,
		recorder: opts.Recorder,
		pending:  opts.Pending,
		port:     opts.Port,
		started:  time.Now(),
		engine:   engine,
	}

	engine.GET("/healthz", s.handleHealth)
	engine.GET("/status", s.handleStatus)
	engine.GET("/history/posts", s.handleRecentPosts)
	engine.GET("/history/sessions", s.handleRecentSessions)
	engine.POST("/session/cancel", s.handleCancel)
	return s, nil
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", s.port),
		Handler: s.engine,
	}

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("status: serve: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("status: shutdown: %w", err)
	}
	return nil
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) handleStatus(c *gin.Context) {
	snap := s.machine.Snapshot()
	body := gin.H{
		"session":        snap,
		"uptime_seconds": int(time.Since(s.started).Seconds()),
	}
	if s.pending != nil {
		body["reservations_pending"] = len(s.pending())
	}
	c.JSON(http.StatusOK, body)
}

func (s *Server) handleRecentPosts(c *gin.Context) {
	posts, err := s.recorder.RecentPosts(queryLimit(c, 50))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"posts": posts})
}

func (s *Server) handleRecentSessions(c *gin.Context) {
	sessions, err := s.recorder.RecentSessions(queryLimit(c, 20))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"sessions": sessions})
}

func (s *Server) handleCancel(c *gin.Context) {
	if err := s.machine.Cancel(); err != nil {
		if errors.Is(err, session.ErrNotDispatching) {
			c.JSON(http.StatusConflict, gin.H{"error": "no dispatching session"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"status": "cancel requested"})
}

// queryLimit reads the limit query parameter, falling back to def.
func queryLimit(c *gin.Context, def int) int {
	raw := c.Query("limit")
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return def
	}
	return n
}
