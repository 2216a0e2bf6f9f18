package web

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/byteom/scanstation/internal/core/domain"
	"github.com/byteom/scanstation/internal/core/ports"
	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		origin := r.Header.Get("Origin")

		// Allow same-origin (no Origin header)
		if origin == "" {
			return true
		}

		u, err := url.Parse(origin)
		if err == nil && u.Host == r.Host {
			return true
		}

		log.Printf("WebSocket: Rejected origin: %s", origin)
		return false
	},
}

type WSMessage struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload"`
}

// WSManager pushes scan session view models to connected clients.
type WSManager struct {
	Session ports.ScanSession
	Clients map[*websocket.Conn]bool
	mu      sync.Mutex
}

func NewWSManager(session ports.ScanSession) *WSManager {
	return &WSManager{
		Session: session,
		Clients: make(map[*websocket.Conn]bool),
	}
}

// Start relays session updates until ctx is done or the session closes.
func (m *WSManager) Start(ctx context.Context) {
	updates, unsubscribe := m.Session.Subscribe()
	go func() {
		defer unsubscribe()
		for {
			select {
			case <-ctx.Done():
				m.closeAll()
				return
			case vm, ok := <-updates:
				if !ok {
					m.closeAll()
					return
				}
				m.BroadcastSession(vm)
			}
		}
	}()
}

func (m *WSManager) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Println("Upgrade error:", err)
		return
	}

	// The first frame is the current view so clients never render a blank state.
	m.mu.Lock()
	m.Clients[conn] = true
	m.writeLocked(conn, WSMessage{Type: "session", Payload: m.Session.View()})
	m.mu.Unlock()

	log.Printf("WebSocket connected: %s", r.RemoteAddr)

	// Clean up on disconnect
	go func() {
		defer func() {
			m.mu.Lock()
			if m.Clients[conn] {
				delete(m.Clients, conn)
				conn.Close()
			}
			m.mu.Unlock()
			log.Printf("WebSocket disconnected: %s", r.RemoteAddr)
		}()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				break
			}
		}
	}()
}

// BroadcastSession sends a view model to all connected clients
func (m *WSManager) BroadcastSession(vm domain.ViewModel) {
	m.broadcastMessage(WSMessage{Type: "session", Payload: vm})
}

func (m *WSManager) broadcastMessage(msg WSMessage) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for conn := range m.Clients {
		m.writeLocked(conn, msg)
	}
}

// writeLocked writes one message and drops the client on failure. Caller holds mu.
func (m *WSManager) writeLocked(conn *websocket.Conn, msg WSMessage) {
	data, err := json.Marshal(msg)
	if err != nil {
		log.Println("JSON marshal error:", err)
		return
	}
	conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
		conn.Close()
		delete(m.Clients, conn)
	}
}

func (m *WSManager) closeAll() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for conn := range m.Clients {
		conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "session closed"),
			time.Now().Add(time.Second))
		conn.Close()
		delete(m.Clients, conn)
	}
}

// ClientCount returns the number of connected clients.
func (m *WSManager) ClientCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Clients)
}
