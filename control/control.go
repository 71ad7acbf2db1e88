// Package control serves the demixing engine control surface over HTTP.
package control

import (
	"context"
	"errors"
	"expvar"
	"math"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/sirupsen/logrus"

	"pipelined.dev/demix"
	"pipelined.dev/demix/meter"
	"pipelined.dev/demix/metric"
)

// Controller is the control role of a shared engine. It's implemented by
// *demix.Handle.
type Controller interface {
	Channels() int
	State() demix.State
	SetEnabled(bool)
	SetDensity(demix.Density)
	SetTrainingIterations(uint16)
	Levels() demix.Levels
	Reset()
}

// Server is the Echo application.
type Server struct {
	echo   *echo.Echo
	ctrl   Controller
	levels *meter.Bank
	log    logrus.FieldLogger
}

// Levels are smoothed peaks of every channel.
type Levels struct {
	Input  []float64 `json:"input"`
	Output []float64 `json:"output"`
}

type enabledRequest struct {
	Enabled *bool `json:"enabled"`
}

type densityRequest struct {
	Density string `json:"density"`
}

type iterationsRequest struct {
	TrainingIterations *int `json:"training_iterations"`
}

// New constructs an Echo app with control routes.
func New(ctrl Controller, log logrus.FieldLogger) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.Recover())

	s := &Server{
		echo:   e,
		ctrl:   ctrl,
		levels: meter.NewBank(ctrl.Channels(), meter.DefaultDecay),
		log:    log,
	}
	s.registerRoutes()
	return s
}

// Echo exposes the underlying Echo instance for tests.
func (s *Server) Echo() *echo.Echo {
	return s.echo
}

func (s *Server) registerRoutes() {
	s.echo.GET("/engine", s.handleState)
	s.echo.PUT("/engine/enabled", s.handleEnabled)
	s.echo.PUT("/engine/density", s.handleDensity)
	s.echo.PUT("/engine/iterations", s.handleIterations)
	s.echo.POST("/engine/reset", s.handleReset)
	s.echo.GET("/levels", s.handleLevels)
	s.echo.GET("/metrics", s.handleMetrics)
	s.echo.GET("/debug/vars", echo.WrapHandler(expvar.Handler()))
}

// Run starts Echo and blocks until ctx cancellation or startup failure.
func (s *Server) Run(ctx context.Context, addr string) error {
	errCh := make(chan error, 1)
	go func() {
		s.log.WithField("addr", addr).Info("control surface listening")
		err := s.echo.Start(addr)
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.echo.Shutdown(shutCtx)
		return <-errCh
	}
}

func (s *Server) handleState(c echo.Context) error {
	return c.JSON(http.StatusOK, s.ctrl.State())
}

func (s *Server) handleEnabled(c echo.Context) error {
	var req enabledRequest
	if err := c.Bind(&req); err != nil {
		return err
	}
	if req.Enabled == nil {
		return echo.NewHTTPError(http.StatusBadRequest, "enabled is required")
	}
	s.ctrl.SetEnabled(*req.Enabled)
	return c.JSON(http.StatusOK, s.ctrl.State())
}

func (s *Server) handleDensity(c echo.Context) error {
	var req densityRequest
	if err := c.Bind(&req); err != nil {
		return err
	}
	d, err := demix.ParseDensity(req.Density)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	s.ctrl.SetDensity(d)
	return c.JSON(http.StatusOK, s.ctrl.State())
}

func (s *Server) handleIterations(c echo.Context) error {
	var req iterationsRequest
	if err := c.Bind(&req); err != nil {
		return err
	}
	if req.TrainingIterations == nil {
		return echo.NewHTTPError(http.StatusBadRequest, "training_iterations is required")
	}
	n := *req.TrainingIterations
	if n < 0 || n > math.MaxUint16 {
		return echo.NewHTTPError(http.StatusBadRequest, "training_iterations out of range")
	}
	s.ctrl.SetTrainingIterations(uint16(n))
	return c.JSON(http.StatusOK, s.ctrl.State())
}

func (s *Server) handleReset(c echo.Context) error {
	s.ctrl.Reset()
	return c.JSON(http.StatusOK, s.ctrl.State())
}

func (s *Server) handleLevels(c echo.Context) error {
	latest := s.ctrl.Levels()
	s.levels.Peak(latest.Input, latest.Output)
	input, output := s.levels.Next()
	return c.JSON(http.StatusOK, Levels{Input: input, Output: output})
}

func (s *Server) handleMetrics(c echo.Context) error {
	return c.JSON(http.StatusOK, metric.GetAll())
}
