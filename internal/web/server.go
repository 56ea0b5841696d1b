package web

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/klauspost/compress/gzhttp"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"

	"systempulse/internal/alerts"
	"systempulse/internal/collector"
	"systempulse/internal/db"
	"systempulse/internal/hub"
	"systempulse/internal/notifier"
	"systempulse/internal/source"
)

type Deps struct {
	Source      source.Source
	Repo        *db.Repository
	Collector   *collector.Collector
	Engine      *alerts.Engine
	Hub         *hub.Hub
	Telegram    *notifier.Telegram
	FrontendURL string
}

type Server struct {
	// base outlives single requests; collector runs and test alerts hang off it.
	base        context.Context
	src         source.Source
	repo        *db.Repository
	collector   *collector.Collector
	engine      *alerts.Engine
	hub         *hub.Hub
	notify      *notifier.Telegram
	frontendURL string
	log         zerolog.Logger
	upgrader    websocket.Upgrader
	echo        *echo.Echo
}

func NewServer(base context.Context, d Deps, logger zerolog.Logger) *Server {
	s := &Server{
		base:        base,
		src:         d.Source,
		repo:        d.Repo,
		collector:   d.Collector,
		engine:      d.Engine,
		hub:         d.Hub,
		notify:      d.Telegram,
		frontendURL: d.FrontendURL,
		log:         logger,
		echo:        echo.New(),
	}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     s.checkOrigin,
	}
	s.setupRoutes()
	return s
}

func (s *Server) Handler() http.Handler { return s.echo }

func (s *Server) setupRoutes() {
	e := s.echo
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Recover())
	e.Use(requestLogger(s.log))
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins:     []string{s.frontendURL},
		AllowMethods:     []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodOptions},
		AllowCredentials: true,
	}))

	e.GET("/healthz", s.handleHealthz)
	e.GET("/readyz", s.handleReadyz)
	e.GET("/ws", s.handleWS)

	gz := echo.WrapMiddleware(func(h http.Handler) http.Handler { return gzhttp.GzipHandler(h) })

	m := e.Group("/metrics", gz, renderErrors)
	m.GET("", s.handleCurrent)
	m.POST("", s.handleSaveCurrent)
	m.GET("/formatted", s.handleFormatted)
	m.GET("/history", s.handleHistory)
	m.GET("/latest", s.handleLatest)
	m.GET("/aggregated", s.handleAggregated)
	m.GET("/stats", s.handleStoreStats)
	m.POST("/collect", s.handleCollect)
	m.POST("/collector/start", s.handleCollectorStart)
	m.POST("/collector/stop", s.handleCollectorStop)
	m.GET("/collector/status", s.handleCollectorStatus)
	m.GET("/alerts/history", s.handleAlertHistory)
	m.GET("/alerts/thresholds", s.handleThresholds)
	m.PUT("/alerts/thresholds/:metric", s.handleUpdateThreshold)
	m.GET("/alerts/stats", s.handleAlertStats)
	m.POST("/alerts/test", s.handleTestAlerts)
	m.POST("/alerts/clear-cooldowns", s.handleClearCooldowns)
	m.GET("/websocket/clients", s.handleClients)
	m.POST("/websocket/notification", s.handleNotification)

	st := e.Group("/settings")
	st.GET("/telegram", s.handleGetTelegram)
	st.PUT("/telegram", s.handleSaveTelegram)
	st.POST("/telegram/test", s.handleTestTelegram)
}

func (s *Server) handleHealthz(c echo.Context) error {
	return c.String(http.StatusOK, "ok")
}

func (s *Server) handleReadyz(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), 2*time.Second)
	defer cancel()
	if err := s.repo.Ping(ctx); err != nil {
		return c.String(http.StatusServiceUnavailable, "db not ready")
	}
	return c.String(http.StatusOK, "ready")
}

func parseRange(v string) time.Duration {
	if v == "" {
		return time.Hour
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return time.Hour
	}
	if d <= 0 {
		return time.Hour
	}
	return d
}
