package bot

import (
	"context"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"

	"matrix-quiz-bot/internal/domain"
)

var greetings = []string{"hello", "hi", "hey"}

// Dispatcher classifies inbound chat events and routes them to the engine.
// Handling is serialized per room for the full transition, external calls
// included, so answers land in delivery order and concurrent starts cannot
// race the session store. Different rooms proceed independently.
type Dispatcher struct {
	engine    *SessionEngine
	sessions  SessionStore
	messenger Messenger
	catalog   []domain.CatalogEntry
	log       *logrus.Entry

	mu    sync.Mutex
	rooms map[string]*sync.Mutex
}

func NewDispatcher(engine *SessionEngine, sessions SessionStore, messenger Messenger, catalog []domain.CatalogEntry, log *logrus.Entry) *Dispatcher {
	return &Dispatcher{
		engine:    engine,
		sessions:  sessions,
		messenger: messenger,
		catalog:   catalog,
		log:       log,
		rooms:     make(map[string]*sync.Mutex),
	}
}

// HandleEvent processes one inbound chat message. Events from the bot's
// own identity are discarded. The dispatcher never returns an error; every
// failure inside a handler resolves to a chat reply.
func (d *Dispatcher) HandleEvent(ctx context.Context, ev Event) {
	if ev.FromSelf {
		return
	}

	lock := d.roomLock(ev.RoomID)
	lock.Lock()
	defer lock.Unlock()

	d.log.WithFields(logrus.Fields{"room": ev.RoomID, "user": ev.Sender}).Debug("message received")

	normalized := strings.ToLower(strings.TrimSpace(ev.Body))
	switch {
	case strings.HasPrefix(normalized, "!quiz"):
		d.handleCommand(ctx, ev)
	case normalized == "help" || normalized == "!help":
		d.engine.RequestHelp(ctx, ev.RoomID, ev.Sender)
	default:
		if _, ok := d.sessions.Get(ev.RoomID); ok {
			d.engine.HandleAnswer(ctx, ev.RoomID, ev.Body)
			return
		}
		d.handleGeneral(ctx, ev)
	}
}

func (d *Dispatcher) handleCommand(ctx context.Context, ev Event) {
	parts := strings.Fields(ev.Body)
	if len(parts) < 2 {
		d.send(ctx, ev.RoomID, usageReply)
		return
	}

	switch strings.ToLower(parts[1]) {
	case "list":
		d.send(ctx, ev.RoomID, catalogReply(d.catalog))
	case "start":
		if len(parts) > 2 {
			d.engine.StartQuiz(ctx, ev.RoomID, ev.Sender, parts[2])
			return
		}
		d.send(ctx, ev.RoomID, unknownCommandReply)
	default:
		d.send(ctx, ev.RoomID, unknownCommandReply)
	}
}

// handleGeneral answers greetings with onboarding text and stays silent on
// everything else, including bare answer letters in rooms with no session.
func (d *Dispatcher) handleGeneral(ctx context.Context, ev Event) {
	lowered := strings.ToLower(ev.Body)
	for _, greeting := range greetings {
		if strings.Contains(lowered, greeting) {
			d.send(ctx, ev.RoomID, onboardingReply)
			return
		}
	}
}

func (d *Dispatcher) send(ctx context.Context, roomID, body string) {
	if err := d.messenger.Send(ctx, roomID, body); err != nil {
		d.log.WithField("room", roomID).WithError(err).Error("sending reply failed")
	}
}

// roomLock returns the per-room mutex, creating it on first use. Locks are
// never reclaimed; the map stays bounded by the number of rooms seen.
func (d *Dispatcher) roomLock(roomID string) *sync.Mutex {
	d.mu.Lock()
	defer d.mu.Unlock()
	lock, ok := d.rooms[roomID]
	if !ok {
		lock = &sync.Mutex{}
		d.rooms[roomID] = lock
	}
	return lock
}
