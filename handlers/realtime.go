package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
	"p9e.in/farmops/middleware"
	"p9e.in/farmops/models"
	"p9e.in/farmops/pkg/realtime"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4096
	sendBuffer     = 32
	sseHeartbeat   = 30 * time.Second
)

// WelcomeMessage is sent to every new real-time connection.
const WelcomeMessage = "Welcome to the Farm Management System!"

var (
	errConnClosed   = errors.New("connection closed")
	errSlowConsumer = errors.New("connection send buffer is full")
)

// PrincipalResolver identifies the caller of a request.
type PrincipalResolver interface {
	ResolveRequest(r *http.Request) models.Principal
}

// RealtimeHandler serves the websocket and SSE notification channels.
type RealtimeHandler struct {
	resolver  PrincipalResolver
	directory *realtime.ConnectionDirectory
	upgrader  websocket.Upgrader
	log       *zap.Logger

	shutdown     chan struct{}
	shutdownOnce sync.Once
}

func NewRealtimeHandler(resolver PrincipalResolver, directory *realtime.ConnectionDirectory, log *zap.Logger) *RealtimeHandler {
	return &RealtimeHandler{
		resolver:  resolver,
		directory: directory,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		log:      log.Named("realtime"),
		shutdown: make(chan struct{}),
	}
}

// Shutdown ends every open websocket and stream. http.Server.Shutdown
// neither closes hijacked connections nor cancels streaming requests.
func (h *RealtimeHandler) Shutdown() {
	h.shutdownOnce.Do(func() { close(h.shutdown) })
}

func welcomeEvent() realtime.Event {
	return realtime.NotificationEvent(models.NotificationMessage{
		Message: WelcomeMessage,
		Data:    &models.NotificationData{Type: models.NotificationTypeWelcome},
	})
}

// queue is the buffered, non-blocking outbox shared by both transports.
type queue struct {
	id        string
	send      chan []byte
	done      chan struct{}
	closeOnce sync.Once
}

func newQueue() *queue {
	return &queue{
		id:   uuid.NewString(),
		send: make(chan []byte, sendBuffer),
		done: make(chan struct{}),
	}
}

func (q *queue) ID() string { return q.id }

// Send enqueues ev. A full buffer closes the connection instead of
// blocking the publisher.
func (q *queue) Send(ev realtime.Event) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	select {
	case <-q.done:
		return errConnClosed
	default:
	}
	select {
	case q.send <- payload:
		return nil
	default:
		q.close()
		return errSlowConsumer
	}
}

func (q *queue) close() {
	q.closeOnce.Do(func() { close(q.done) })
}

// wsConn is a websocket client connection.
type wsConn struct {
	*queue
	ws       *websocket.Conn
	shutdown <-chan struct{}
}

// readPump consumes client frames until the connection fails. Client
// messages carry no meaning; reading keeps pong handling alive.
func (c *wsConn) readPump() {
	defer c.close()
	c.ws.SetReadLimit(maxMessageSize)
	c.ws.SetReadDeadline(time.Now().Add(pongWait))
	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := c.ws.ReadMessage(); err != nil {
			return
		}
	}
}

func (c *wsConn) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.ws.Close()
	}()

	for {
		select {
		case payload := <-c.send:
			c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.TextMessage, payload); err != nil {
				c.close()
				return
			}
		case <-ticker.C:
			c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.close()
				return
			}
		case <-c.done:
			c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			c.ws.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		case <-c.shutdown:
			c.close()
			c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			c.ws.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"))
			return
		}
	}
}

// ServeWS upgrades the request to a websocket. Authenticated callers are
// registered for fan-out under their user id; anonymous callers only get
// the welcome message.
// GET /ws?token=
func (h *RealtimeHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	p := h.resolver.ResolveRequest(r)

	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Debug("websocket upgrade failed", zap.Error(err))
		return
	}
	conn := &wsConn{queue: newQueue(), ws: ws, shutdown: h.shutdown}
	go conn.writePump()

	conn.Send(welcomeEvent())

	if !p.IsAnonymous() {
		if err := h.directory.Register(p.UserID, conn); err != nil {
			h.log.Warn("failed to register connection", zap.String("principal", p.UserID.String()), zap.Error(err))
			conn.close()
			return
		}
		defer h.directory.Deregister(p.UserID, conn.ID())
		h.log.Info("🔌 websocket connected", zap.String("principal", p.UserID.String()), zap.String("conn", conn.ID()))
	}

	conn.readPump()
}

// Stream serves the same events over Server-Sent Events
// GET /api/v1/notifications/stream
func (h *RealtimeHandler) Stream(w http.ResponseWriter, r *http.Request) {
	p := middleware.GetPrincipal(r)

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "internal_error", "streaming not supported")
		return
	}

	conn := newQueue()
	if err := h.directory.Register(p.UserID, conn); err != nil {
		h.log.Warn("failed to register stream", zap.String("principal", p.UserID.String()), zap.Error(err))
		writeError(w, http.StatusServiceUnavailable, "unavailable", "real-time channel unavailable")
		return
	}
	defer h.directory.Deregister(p.UserID, conn.ID())
	defer conn.close()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.WriteHeader(http.StatusOK)

	conn.Send(welcomeEvent())
	flusher.Flush()

	ticker := time.NewTicker(sseHeartbeat)
	defer ticker.Stop()

	for {
		select {
		case payload := <-conn.send:
			if _, err := w.Write([]byte("data: " + string(payload) + "\n\n")); err != nil {
				return
			}
			flusher.Flush()
		case <-ticker.C:
			// comment lines keep proxies from closing an idle stream
			if _, err := w.Write([]byte(": heartbeat\n\n")); err != nil {
				return
			}
			flusher.Flush()
		case <-conn.done:
			return
		case <-h.shutdown:
			return
		case <-r.Context().Done():
			return
		}
	}
}
