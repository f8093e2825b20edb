// Package realtime delivers position lifecycle messages to connected users
// over websockets. Delivery is best effort: a user with no open connection,
// or one whose send buffer is full, simply misses the push and falls back to
// polling the REST surface.
package realtime

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/vestra-platform/vestra_service/internal/domain/entities"
)

// Hub fans messages out to per-user rooms
type Hub struct {
	mu      sync.RWMutex
	rooms   map[uuid.UUID]map[*Client]struct{}
	logger  *zap.Logger
	onCount func(delta int)
}

// NewHub creates a new hub. onCount, if set, observes connect and disconnect
// deltas for gauge reporting.
func NewHub(logger *zap.Logger, onCount func(delta int)) *Hub {
	return &Hub{
		rooms:   make(map[uuid.UUID]map[*Client]struct{}),
		logger:  logger,
		onCount: onCount,
	}
}

func (h *Hub) register(c *Client) {
	h.mu.Lock()
	room, ok := h.rooms[c.userID]
	if !ok {
		room = make(map[*Client]struct{})
		h.rooms[c.userID] = room
	}
	room[c] = struct{}{}
	h.mu.Unlock()

	if h.onCount != nil {
		h.onCount(1)
	}
	h.logger.Debug("realtime client connected", zap.String("user_id", c.userID.String()))
}

func (h *Hub) unregister(c *Client) {
	h.mu.Lock()
	room, ok := h.rooms[c.userID]
	if ok {
		if _, present := room[c]; present {
			delete(room, c)
			close(c.send)
			if len(room) == 0 {
				delete(h.rooms, c.userID)
			}
			h.mu.Unlock()
			if h.onCount != nil {
				h.onCount(-1)
			}
			h.logger.Debug("realtime client disconnected", zap.String("user_id", c.userID.String()))
			return
		}
	}
	h.mu.Unlock()
}

// Push sends a message to every connection in the user's room without
// blocking. Slow consumers are dropped rather than waited on.
func (h *Hub) Push(_ context.Context, ownerID uuid.UUID, msg *entities.RealtimeMessage) {
	payload, err := json.Marshal(msg)
	if err != nil {
		h.logger.Error("failed to encode realtime message", zap.Error(err))
		return
	}

	h.mu.RLock()
	room := h.rooms[ownerID]
	var stale []*Client
	for client := range room {
		select {
		case client.send <- payload:
		default:
			stale = append(stale, client)
		}
	}
	h.mu.RUnlock()

	for _, client := range stale {
		h.logger.Warn("dropping slow realtime client", zap.String("user_id", ownerID.String()))
		h.unregister(client)
		client.conn.Close()
	}
}

// ClientCount returns the number of open connections
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	n := 0
	for _, room := range h.rooms {
		n += len(room)
	}
	return n
}

// Close disconnects every client
func (h *Hub) Close() {
	h.mu.Lock()
	closed := 0
	for _, room := range h.rooms {
		for client := range room {
			close(client.send)
			client.conn.Close()
			closed++
		}
	}
	h.rooms = make(map[uuid.UUID]map[*Client]struct{})
	h.mu.Unlock()

	if h.onCount != nil && closed > 0 {
		h.onCount(-closed)
	}
}
