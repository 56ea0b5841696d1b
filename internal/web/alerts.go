package web

import (
	"errors"
	"net/http"
	"slices"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"systempulse/internal/alerts"
	"systempulse/internal/collector"
	"systempulse/internal/models"
	"systempulse/internal/notifier"
)

func (s *Server) handleAlertHistory(c echo.Context) error {
	limit, err := intParam(c, "limit", alerts.DefaultHistoryLimit, 1, alerts.HistoryCapacity)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, s.engine.History(limit))
}

func (s *Server) handleThresholds(c echo.Context) error {
	return c.JSON(http.StatusOK, s.engine.Thresholds())
}

func (s *Server) handleUpdateThreshold(c echo.Context) error {
	metric := c.Param("metric")
	known := slices.ContainsFunc(s.engine.Thresholds(), func(th models.AlertThreshold) bool {
		return th.Metric == metric
	})
	if !known {
		return echo.NewHTTPError(http.StatusNotFound, "unknown alert metric "+metric)
	}
	var patch models.ThresholdPatch
	if err := c.Bind(&patch); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid threshold body")
	}
	if !s.engine.UpdateThreshold(metric, patch) {
		return echo.NewHTTPError(http.StatusBadRequest, "warningThreshold must be below criticalThreshold")
	}
	for _, th := range s.engine.Thresholds() {
		if th.Metric == metric {
			return c.JSON(http.StatusOK, th)
		}
	}
	return echo.NewHTTPError(http.StatusNotFound, "unknown alert metric "+metric)
}

func (s *Server) handleAlertStats(c echo.Context) error {
	return c.JSON(http.StatusOK, s.engine.Stats())
}

func (s *Server) handleTestAlerts(c echo.Context) error {
	if _, err := s.collector.TriggerTestAlerts(s.base); err != nil {
		if errors.Is(err, collector.ErrLoadSimulationUnsupported) {
			return echo.NewHTTPError(http.StatusConflict, err.Error())
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusAccepted, map[string]string{
		"message": "Test alerts scheduled; high load is simulated briefly, then reverted",
	})
}

func (s *Server) handleClearCooldowns(c echo.Context) error {
	s.engine.ClearCooldowns()
	return c.JSON(http.StatusOK, map[string]string{"message": "Alert cooldowns cleared"})
}

func (s *Server) handleClients(c echo.Context) error {
	return c.JSON(http.StatusOK, s.hub.ConnectedInfo())
}

type notificationRequest struct {
	Title   string `json:"title"`
	Message string `json:"message"`
	Level   string `json:"level"`
}

func (s *Server) handleNotification(c echo.Context) error {
	var req notificationRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid notification body")
	}
	if strings.TrimSpace(req.Message) == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "message is required")
	}
	if req.Level == "" {
		req.Level = "info"
	}
	s.hub.BroadcastNotification(models.Notification{
		Type:      "notification",
		Title:     req.Title,
		Message:   req.Message,
		Level:     req.Level,
		Timestamp: time.Now().UTC(),
	})
	return c.JSON(http.StatusOK, map[string]any{
		"message":    "Notification sent",
		"recipients": s.hub.Count(),
	})
}

type telegramSettings struct {
	Token  string `json:"token"`
	ChatID string `json:"chatId"`
}

func (s *Server) handleGetTelegram(c echo.Context) error {
	chatID, hasToken := s.notify.Settings()
	return c.JSON(http.StatusOK, map[string]any{
		"chatId":     chatID,
		"hasToken":   hasToken,
		"configured": s.notify.Enabled(),
	})
}

func (s *Server) handleSaveTelegram(c echo.Context) error {
	var req telegramSettings
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid settings body")
	}
	token := strings.TrimSpace(req.Token)
	chatID := strings.TrimSpace(req.ChatID)
	if err := s.repo.SaveTelegramSettings(c.Request().Context(), token, chatID); err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	s.notify.Update(token, chatID)
	return c.JSON(http.StatusOK, map[string]any{
		"chatId":     chatID,
		"hasToken":   token != "",
		"configured": s.notify.Enabled(),
	})
}

func (s *Server) handleTestTelegram(c echo.Context) error {
	err := s.notify.Send(c.Request().Context(), "SystemPulse test alert: Telegram integration is working")
	if errors.Is(err, notifier.ErrNotConfigured) {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err != nil {
		return echo.NewHTTPError(http.StatusBadGateway, err.Error())
	}
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}
