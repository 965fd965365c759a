// Package ws is a development chat gateway: each websocket connection acts
// as one chat room, so the bot can be exercised without a Matrix homeserver.
package ws

import (
	"context"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"matrix-quiz-bot/internal/bot"
)

// EventHandler consumes inbound chat events (normally the Dispatcher).
type EventHandler interface {
	HandleEvent(ctx context.Context, ev bot.Event)
}

type roomConn struct {
	conn *websocket.Conn
	mu   sync.Mutex // serializes writes; replies and notices may interleave
}

func (rc *roomConn) writeText(body string) error {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	return rc.conn.WriteMessage(websocket.TextMessage, []byte(body))
}

// Gateway upgrades HTTP requests to websockets and bridges text frames to
// the dispatcher. It also implements bot.Messenger for the rooms it hosts:
// replies addressed to rooms without a live connection are dropped and logged.
type Gateway struct {
	handler  EventHandler
	upgrader websocket.Upgrader
	log      *logrus.Entry

	mu    sync.RWMutex
	rooms map[string]*roomConn
}

func NewGateway(log *logrus.Entry) *Gateway {
	return &Gateway{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		log:   log,
		rooms: make(map[string]*roomConn),
	}
}

// SetHandler attaches the dispatcher. Done after construction because the
// dispatcher's messenger fanout includes this gateway.
func (g *Gateway) SetHandler(handler EventHandler) {
	g.handler = handler
}

// ServeWS binds one connection to the room named in the query string and
// pumps its text frames through the dispatcher.
func (g *Gateway) ServeWS(w http.ResponseWriter, r *http.Request) {
	roomID := r.URL.Query().Get("roomId")
	userID := r.URL.Query().Get("userId")
	if roomID == "" || userID == "" {
		http.Error(w, "missing roomId or userId", http.StatusBadRequest)
		return
	}

	conn, err := g.upgrader.Upgrade(w, r, nil)
	if err != nil {
		g.log.WithError(err).Error("ws upgrade failed")
		return
	}

	rc := &roomConn{conn: conn}
	g.mu.Lock()
	g.rooms[roomID] = rc
	g.mu.Unlock()

	defer func() {
		g.mu.Lock()
		if g.rooms[roomID] == rc {
			delete(g.rooms, roomID)
		}
		g.mu.Unlock()
		conn.Close()
	}()

	g.log.WithFields(logrus.Fields{"room": roomID, "user": userID}).Info("dev chat connected")

	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		if msgType != websocket.TextMessage {
			continue
		}
		if g.handler == nil {
			continue
		}
		g.handler.HandleEvent(r.Context(), bot.Event{
			RoomID: roomID,
			Sender: userID,
			Body:   string(data),
		})
	}
}

// Send implements bot.Messenger for gateway-hosted rooms.
func (g *Gateway) Send(_ context.Context, roomID, body string) error {
	g.mu.RLock()
	rc, ok := g.rooms[roomID]
	g.mu.RUnlock()
	if !ok {
		g.log.WithField("room", roomID).Debug("no dev chat connection for room, dropping reply")
		return nil
	}
	if err := rc.writeText(body); err != nil {
		g.log.WithField("room", roomID).WithError(err).Error("ws write failed")
		return err
	}
	return nil
}
