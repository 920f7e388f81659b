package controllers

import (
	"net/http"
	"time"

	"github.com/Krish-Depani/session-admission/liveness"
	"github.com/Krish-Depani/session-admission/notifier"
	"github.com/Krish-Depani/session-admission/validators"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	log "github.com/sirupsen/logrus"
)

const (
	streamWriteTimeout = 10 * time.Second
	streamPingInterval = 30 * time.Second
	streamPongWait     = 2 * streamPingInterval
	streamBuffer       = 64
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

type DashboardController struct {
	svc *liveness.Service
	hub *notifier.Hub
}

func NewDashboardController(svc *liveness.Service, hub *notifier.Hub) *DashboardController {
	return &DashboardController{
		svc: svc,
		hub: hub,
	}
}

// StreamFrame is one websocket message. The first frame of every stream
// is a resync: events sent before the connection are never replayed.
type StreamFrame struct {
	Type  string      `json:"type"`
	Event interface{} `json:"event,omitempty"`
}

// GetActiveSessions reaps expired sessions and returns the live ones
func (dc *DashboardController) GetActiveSessions(c *gin.Context) {
	q, ok := validators.ValidateActiveSessionsQuery(c)
	if !ok {
		return
	}

	view, err := dc.svc.ActiveSessions(c.Request.Context(), q.Page, q.Limit)
	if err != nil {
		log.WithError(err).Error("Failed to read active sessions")
		sendResponse(c, http.StatusServiceUnavailable, "Failed to fetch sessions", nil, "Session store unavailable")
		return
	}

	sendResponse(c, http.StatusOK, "Active sessions retrieved successfully", view, nil)
}

// Stream pushes session change events to a dashboard over a websocket
func (dc *DashboardController) Stream(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.WithError(err).Warn("WebSocket upgrade failed")
		return
	}
	defer conn.Close()

	streamID := uuid.New().String()
	sub := dc.hub.Subscribe(streamBuffer)
	defer sub.Close()

	logger := log.WithField("stream_id", streamID)
	logger.Info("Dashboard stream opened")
	defer logger.Info("Dashboard stream closed")

	// The read side only services control frames and notices the close.
	closed := make(chan struct{})
	conn.SetReadDeadline(time.Now().Add(streamPongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(streamPongWait))
	})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	if err := writeFrame(conn, StreamFrame{Type: "resync"}); err != nil {
		logger.WithError(err).Debug("Failed to send resync frame")
		return
	}

	ping := time.NewTicker(streamPingInterval)
	defer ping.Stop()

	for {
		select {
		case <-closed:
			return
		case event, ok := <-sub.C:
			if !ok {
				return
			}
			if err := writeFrame(conn, StreamFrame{Type: "change", Event: event}); err != nil {
				logger.WithError(err).Debug("Failed to push event")
				return
			}
		case <-ping.C:
			deadline := time.Now().Add(streamWriteTimeout)
			if err := conn.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
				return
			}
		}
	}
}

func writeFrame(conn *websocket.Conn, frame StreamFrame) error {
	conn.SetWriteDeadline(time.Now().Add(streamWriteTimeout))
	return conn.WriteJSON(frame)
}
