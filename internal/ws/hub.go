package ws

import (
	"context"
	"sort"
	"sync"
	"time"
)

// SessionInfo describes one detection session for the HTTP API
type SessionInfo struct {
	SessionID       string    `json:"session_id"`
	Clients         int       `json:"clients"`
	FramesProcessed int64     `json:"frames_processed"`
	ConnectedAt     time.Time `json:"connected_at"`
}

type sessionMessage struct {
	sessionID string
	data      []byte
}

// Hub tracks the clients of every detection session. A session may briefly
// hold two clients while a reconnecting client replaces a dying one.
type Hub struct {
	clients    map[*Client]bool
	sessions   map[string]map[*Client]bool
	broadcast  chan sessionMessage
	register   chan *Client
	unregister chan *Client
	done       chan struct{}
	mu         sync.RWMutex
}

func NewHub() *Hub {
	return &Hub{
		clients:    make(map[*Client]bool),
		sessions:   make(map[string]map[*Client]bool),
		broadcast:  make(chan sessionMessage, 256),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
	}
}

// Run serves registrations until ctx is done, then closes every connection
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			h.closeAll()
			close(h.done)
			return
		case client := <-h.register:
			h.addClient(client)
		case client := <-h.unregister:
			h.removeClient(client)
		case msg := <-h.broadcast:
			h.broadcastToSession(msg)
		}
	}
}

// registerClient reports false once the hub has stopped
func (h *Hub) registerClient(client *Client) bool {
	select {
	case h.register <- client:
		return true
	case <-h.done:
		return false
	}
}

func (h *Hub) unregisterClient(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.done:
	}
}

func (h *Hub) addClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.clients[client] = true

	if h.sessions[client.sessionID] == nil {
		h.sessions[client.sessionID] = make(map[*Client]bool)
	}
	h.sessions[client.sessionID][client] = true
}

func (h *Hub) removeClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.clients[client]; ok {
		delete(h.clients, client)
		delete(h.sessions[client.sessionID], client)

		if len(h.sessions[client.sessionID]) == 0 {
			delete(h.sessions, client.sessionID)
		}
	}
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for client := range h.clients {
		client.close()
	}
	h.clients = make(map[*Client]bool)
	h.sessions = make(map[string]map[*Client]bool)
}

func (h *Hub) broadcastToSession(msg sessionMessage) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for client := range h.sessions[msg.sessionID] {
		client.enqueue(msg.data)
	}
}

// SendToSession queues data for every client of the session. It reports
// false when the session has no clients.
func (h *Hub) SendToSession(sessionID string, data []byte) bool {
	if h.ConnectedClients(sessionID) == 0 {
		return false
	}

	select {
	case h.broadcast <- sessionMessage{sessionID: sessionID, data: data}:
		return true
	case <-h.done:
		return false
	default:
		return false
	}
}

// TriggerCapture tells every client of the session to take the photo now
func (h *Hub) TriggerCapture(sessionID string) bool {
	return h.SendToSession(sessionID, newCaptureCommand())
}

func (h *Hub) ConnectedClients(sessionID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	return len(h.sessions[sessionID])
}

// Sessions lists the active sessions ordered by id
func (h *Hub) Sessions() []SessionInfo {
	h.mu.RLock()
	defer h.mu.RUnlock()

	infos := make([]SessionInfo, 0, len(h.sessions))
	for id, clients := range h.sessions {
		info := SessionInfo{SessionID: id, Clients: len(clients)}
		for client := range clients {
			info.FramesProcessed += client.frames.Load()
			if info.ConnectedAt.IsZero() || client.connectedAt.Before(info.ConnectedAt) {
				info.ConnectedAt = client.connectedAt
			}
		}
		infos = append(infos, info)
	}

	sort.Slice(infos, func(i, j int) bool {
		return infos[i].SessionID < infos[j].SessionID
	})
	return infos
}

// SessionCount returns the number of sessions with at least one client
func (h *Hub) SessionCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	return len(h.sessions)
}
