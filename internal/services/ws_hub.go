package services

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

const writeWait = 10 * time.Second

// Frame types sent to stream subscribers
const (
	MsgSnapshot = "snapshot"
	MsgResult   = "action_result"
	MsgClosed   = "stream_closed"
	MsgError    = "error"
)

// ErrOffline is returned when a user has no open stream
var ErrOffline = errors.New("user is not connected")

// WSMessage represents a WebSocket message
type WSMessage struct {
	Type    string `json:"type"`
	GroupID string `json:"group_id,omitempty"`
	Message string `json:"message,omitempty"`
	Data    any    `json:"data,omitempty"`
}

// Conn is the part of a websocket connection the hub writes to
type Conn interface {
	WriteJSON(v any) error
	SetWriteDeadline(t time.Time) error
	Close() error
}

// Peer is one open stream. Writes are serialized because a websocket
// connection supports a single concurrent writer.
type Peer struct {
	conn Conn
	mu   sync.Mutex
}

// Send writes msg to the peer
func (p *Peer) Send(msg WSMessage) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return fmt.Errorf("failed to set write deadline: %w", err)
	}
	if err := p.conn.WriteJSON(msg); err != nil {
		return fmt.Errorf("failed to send message: %w", err)
	}
	return nil
}

// WSHub manages WebSocket connections. A user may hold several streams.
type WSHub struct {
	mu          sync.RWMutex
	connections map[string]map[*Peer]struct{}
}

// NewWSHub creates a new WebSocket hub
func NewWSHub() *WSHub {
	return &WSHub{
		connections: make(map[string]map[*Peer]struct{}),
	}
}

// Register registers a new WebSocket connection for a user
func (h *WSHub) Register(userID string, conn Conn) *Peer {
	h.mu.Lock()
	defer h.mu.Unlock()

	p := &Peer{conn: conn}
	if h.connections[userID] == nil {
		h.connections[userID] = make(map[*Peer]struct{})
	}
	h.connections[userID][p] = struct{}{}

	log.Info().Str("user_id", userID).Int("streams", len(h.connections[userID])).Msg("WebSocket connection registered")
	return p
}

// Unregister closes and removes p. It returns how many streams the user
// still has open.
func (h *WSHub) Unregister(userID string, p *Peer) int {
	h.mu.Lock()
	defer h.mu.Unlock()

	peers := h.connections[userID]
	if _, ok := peers[p]; ok {
		p.conn.Close()
		delete(peers, p)
		log.Info().Str("user_id", userID).Msg("WebSocket connection unregistered")
	}
	if len(peers) == 0 {
		delete(h.connections, userID)
	}
	return len(peers)
}

// SendToUser sends a message to every stream of a user. Streams that fail
// are dropped.
func (h *WSHub) SendToUser(userID string, message WSMessage) error {
	h.mu.RLock()
	peers := make([]*Peer, 0, len(h.connections[userID]))
	for p := range h.connections[userID] {
		peers = append(peers, p)
	}
	h.mu.RUnlock()

	if len(peers) == 0 {
		return fmt.Errorf("%s: %w", userID, ErrOffline)
	}

	var errs []error
	for _, p := range peers {
		if err := p.Send(message); err != nil {
			h.Unregister(userID, p)
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// IsOnline checks if a user is online
func (h *WSHub) IsOnline(userID string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.connections[userID]) > 0
}

// Close closes every connection
func (h *WSHub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for userID, peers := range h.connections {
		for p := range peers {
			p.conn.Close()
		}
		delete(h.connections, userID)
	}
}
