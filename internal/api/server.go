// Package api implements the read-only HTTP introspection surface the
// external GUI polls: process health, flattened channel state, and the
// raw stats-store snapshot. It never mutates channel state.
package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/localbridge/hl7bridge/internal/eventbus"
	"github.com/localbridge/hl7bridge/internal/inbound"
	"github.com/localbridge/hl7bridge/internal/model"
	"github.com/localbridge/hl7bridge/internal/outbound"
	"github.com/localbridge/hl7bridge/internal/runtime"
	"github.com/localbridge/hl7bridge/internal/stats"
	"github.com/localbridge/hl7bridge/internal/translate"
)

// Server exposes the admin/introspection HTTP API over the three
// runtime managers and the shared stats store.
type Server struct {
	echo *echo.Echo
	port int

	translate *runtime.Manager[*translate.Channel]
	inbound   *runtime.Manager[*inbound.Channel]
	outbound  *runtime.Manager[*outbound.Channel]
	stats     *stats.Store
	bus       *eventbus.Bus
}

// New builds a Server wired to the three running managers.
func New(port int, tm *runtime.Manager[*translate.Channel], im *runtime.Manager[*inbound.Channel], om *runtime.Manager[*outbound.Channel], store *stats.Store, bus *eventbus.Bus) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.Recover())
	e.Use(middleware.Logger())

	s := &Server{
		echo:      e,
		port:      port,
		translate: tm,
		inbound:   im,
		outbound:  om,
		stats:     store,
		bus:       bus,
	}
	s.setupRoutes()
	return s
}

// Start runs the HTTP server until ctx is canceled, then shuts it down
// gracefully.
func (s *Server) Start(ctx context.Context) error {
	addr := fmt.Sprintf(":%d", s.port)

	errCh := make(chan error, 1)
	go func() {
		if err := s.echo.Start(addr); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return s.echo.Shutdown(shutdownCtx)
}

func (s *Server) setupRoutes() {
	api := s.echo.Group("/api")
	api.GET("/health", s.handleHealth)
	api.GET("/channels", s.handleChannels)
	api.GET("/channels/:kind/:name", s.handleChannelDetail)
	api.GET("/stats", s.handleStats)
}

func (s *Server) handleHealth(c echo.Context) error {
	status := "healthy"
	eventBus := "unavailable"
	if s.bus != nil {
		eventBus = "connected"
	} else {
		status = "degraded"
	}

	return c.JSON(http.StatusOK, map[string]interface{}{
		"status":    status,
		"timestamp": time.Now(),
		"eventBus":  eventBus,
	})
}

func (s *Server) handleChannels(c echo.Context) error {
	all := make([]model.ObservableChannelState, 0)
	all = append(all, s.translate.Snapshot()...)
	all = append(all, s.inbound.Snapshot()...)
	all = append(all, s.outbound.Snapshot()...)
	return c.JSON(http.StatusOK, all)
}

func (s *Server) handleChannelDetail(c echo.Context) error {
	kind := model.ChannelKind(c.Param("kind"))
	name := c.Param("name")

	var snapshot []model.ObservableChannelState
	switch kind {
	case model.KindTranslate:
		snapshot = s.translate.Snapshot()
	case model.KindInbound:
		snapshot = s.inbound.Snapshot()
	case model.KindOutbound:
		snapshot = s.outbound.Snapshot()
	default:
		return echo.NewHTTPError(http.StatusBadRequest, "unknown channel kind: "+string(kind))
	}

	for _, state := range snapshot {
		if state.Name == name {
			return c.JSON(http.StatusOK, state)
		}
	}
	return echo.NewHTTPError(http.StatusNotFound, "channel not found: "+name)
}

func (s *Server) handleStats(c echo.Context) error {
	return c.JSON(http.StatusOK, s.stats.Snapshot())
}
