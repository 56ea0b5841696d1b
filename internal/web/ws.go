package web

import (
	"encoding/json"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"

	"systempulse/internal/hub"
	"systempulse/internal/models"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4096
)

// clientFrame is an inbound frame; Data is ignored by every current event.
type clientFrame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

func (s *Server) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	if s.frontendURL != "" && strings.EqualFold(strings.TrimRight(origin, "/"), strings.TrimRight(s.frontendURL, "/")) {
		return true
	}
	u, err := url.Parse(origin)
	if err != nil {
		return false
	}
	return strings.EqualFold(u.Host, r.Host)
}

func (s *Server) handleWS(c echo.Context) error {
	conn, err := s.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		// the upgrader has already replied
		s.log.Debug().Err(err).Msg("websocket upgrade failed")
		return nil
	}
	id, send := s.hub.Connect(hub.ConnMeta{Address: c.RealIP(), UserAgent: c.Request().UserAgent()})

	done := make(chan struct{})
	go s.writePump(conn, send, done)
	s.readPump(conn, id)
	s.hub.Disconnect(id)
	<-done
	return nil
}

// writePump is the only writer on conn. It exits when send is closed or a
// write fails, and closes the connection on the way out.
func (s *Server) writePump(conn *websocket.Conn, send <-chan models.Envelope, done chan<- struct{}) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = conn.Close()
		close(done)
	}()
	for {
		select {
		case env, ok := <-send:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := conn.WriteJSON(env); err != nil {
				s.log.Debug().Err(err).Str("event", env.Event).Msg("websocket write failed")
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (s *Server) readPump(conn *websocket.Conn, id string) {
	conn.SetReadLimit(maxMessageSize)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseNoStatusReceived) {
				s.log.Warn().Err(err).Str("client", id).Msg("websocket closed unexpectedly")
			}
			return
		}
		var f clientFrame
		if err := json.Unmarshal(raw, &f); err != nil {
			s.log.Warn().Err(err).Str("client", id).Msg("malformed client frame")
			continue
		}
		s.dispatch(id, f)
	}
}

func (s *Server) dispatch(id string, f clientFrame) {
	now := time.Now().UTC()
	switch f.Event {
	case models.EventPing:
		s.hub.SendToClient(id, models.EventPong, models.Pong{Message: "pong", ClientID: id, Timestamp: now})
	case models.EventSubscribeMetrics:
		s.hub.Subscribe(id)
	case models.EventUnsubscribeMetrics:
		s.hub.Unsubscribe(id)
	case models.EventRequestCurrentMetrics:
		s.hub.SendToClient(id, models.EventMetricsUpdate, models.MetricsUpdate{
			Type:             "current_metrics",
			Data:             s.src.Current(),
			ConnectedClients: s.hub.Count(),
			Timestamp:        now,
		})
	case models.EventGetServerStats:
		s.hub.SendToClient(id, models.EventPerformanceUpdate, s.hub.Performance())
	default:
		s.log.Debug().Str("client", id).Str("event", f.Event).Msg("unknown client event")
	}
}
