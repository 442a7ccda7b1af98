package events

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/starford/orgview/internal/models"
)

// WSSettings tunes the WebSocket change feed.
type WSSettings struct {
	WriteTimeout time.Duration
	PingInterval time.Duration
	ReadTimeout  time.Duration
}

// DefaultWSSettings returns the settings used by NewWSHandler when none are given.
func DefaultWSSettings() WSSettings {
	return WSSettings{
		WriteTimeout: 5 * time.Second,
		PingInterval: 30 * time.Second,
		ReadTimeout:  75 * time.Second,
	}
}

// WSHandler streams document change events as JSON text frames
// ({"id","kind","path"}) to WebSocket clients (GET /ws).
type WSHandler struct {
	broker   *Broker
	logger   *slog.Logger
	settings WSSettings
	upgrader websocket.Upgrader
}

// NewWSHandler creates a WebSocket handler fed by broker.
func NewWSHandler(broker *Broker, logger *slog.Logger, settings WSSettings) *WSHandler {
	if settings.WriteTimeout <= 0 || settings.PingInterval <= 0 || settings.ReadTimeout <= 0 {
		settings = DefaultWSSettings()
	}
	return &WSHandler{
		broker:   broker,
		logger:   logger,
		settings: settings,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
	}
}

// ServeHTTP upgrades the connection and forwards change events until the
// client goes away or the broker closes.
func (h *WSHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written an HTTP error.
		h.logger.Debug("ws: upgrade failed", slog.String("error", err.Error()))
		return
	}
	defer ws.Close()

	ch := h.broker.Subscribe()
	defer h.broker.Unsubscribe(ch)

	done := make(chan struct{})
	go h.readLoop(ws, done)

	ping := time.NewTicker(h.settings.PingInterval)
	defer ping.Stop()

	for {
		select {
		case <-done:
			return
		case <-r.Context().Done():
			return
		case ev, ok := <-ch:
			if !ok {
				_ = ws.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"),
					time.Now().Add(h.settings.WriteTimeout))
				return
			}
			change, ok := ev.Data.(models.ChangeEvent)
			if !ok {
				continue
			}
			ws.SetWriteDeadline(time.Now().Add(h.settings.WriteTimeout))
			if err := ws.WriteJSON(change); err != nil {
				// A write deadline timeout cannot be recovered.
				h.logger.Debug("ws: write failed", slog.String("error", err.Error()))
				return
			}
		case <-ping.C:
			if err := ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(h.settings.WriteTimeout)); err != nil {
				return
			}
		}
	}
}

// readLoop drains client frames so control messages (pong, close) are
// processed, and signals done when the connection drops.
func (h *WSHandler) readLoop(ws *websocket.Conn, done chan<- struct{}) {
	defer close(done)

	ws.SetReadDeadline(time.Now().Add(h.settings.ReadTimeout))
	ws.SetPongHandler(func(string) error {
		ws.SetReadDeadline(time.Now().Add(h.settings.ReadTimeout))
		return nil
	})
	for {
		if _, _, err := ws.ReadMessage(); err != nil {
			return
		}
		ws.SetReadDeadline(time.Now().Add(h.settings.ReadTimeout))
	}
}
