// Package api exposes a small HTTP surface for monitoring a running
// simulation: health, controller state, and the stats snapshot.
package api

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v5"

	"github.com/kestrelhw/vcnsim/internal/npu"
)

// StatusProvider is what the server needs from the pipeline.
type StatusProvider interface {
	State() npu.SystemState
	Stats() npu.Stats
}

// Server serves monitoring endpoints over a pipeline.
type Server struct {
	pipeline StatusProvider
	started  time.Time
}

func NewServer(p StatusProvider) *Server {
	return &Server{pipeline: p, started: time.Now()}
}

// Register mounts all routes on the given echo instance.
func (s *Server) Register(e *echo.Echo) {
	e.GET("/healthz", s.handleHealth)
	e.GET("/v1/status", s.handleStatus)
	e.GET("/v1/stats", s.handleStats)
}

// StatusResponse is the compact view returned by /v1/status.
type StatusResponse struct {
	State  string `json:"state"`
	Busy   bool   `json:"busy"`
	Error  bool   `json:"error"`
	Cycles uint64 `json:"cycles"`
	Uptime string `json:"uptime"`
}

func (s *Server) handleHealth(c *echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleStatus(c *echo.Context) error {
	st := s.pipeline.Stats()
	return c.JSON(http.StatusOK, StatusResponse{
		State:  st.State,
		Busy:   st.Busy,
		Error:  st.Error,
		Cycles: st.Cycles,
		Uptime: time.Since(s.started).Round(time.Second).String(),
	})
}

func (s *Server) handleStats(c *echo.Context) error {
	return c.JSON(http.StatusOK, s.pipeline.Stats())
}
