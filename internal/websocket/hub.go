package websocket

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"healthetl/internal/infrastructure"
)

// TypeConnection is sent to a client once it is registered
const TypeConnection = "connection"

// broadcastBuffer bounds queued messages before new ones are dropped
const broadcastBuffer = 256

// Message is the envelope of every event pushed to clients
type Message struct {
	Type      string      `json:"type"`
	Step      string      `json:"step,omitempty"`
	Status    string      `json:"status,omitempty"`
	Data      interface{} `json:"data,omitempty"`
	Timestamp string      `json:"timestamp"`
	TraceID   string      `json:"trace_id,omitempty"`
}

// Hub maintains the set of active clients and broadcasts run events to them
type Hub struct {
	// Registered clients, owned by the Run loop
	clients map[*Client]bool

	broadcast  chan []byte
	register   chan *Client
	unregister chan *Client

	mu      sync.RWMutex
	running bool
	quit    chan struct{}
	done    chan struct{}

	logger *slog.Logger

	totalConnections atomic.Int64
	messagesSent     atomic.Int64
	messagesDropped  atomic.Int64
}

// NewHub creates a new Hub instance
func NewHub(logger *slog.Logger) *Hub {
	if logger == nil {
		logger = infrastructure.GetLogger()
	}

	return &Hub{
		clients:    make(map[*Client]bool),
		broadcast:  make(chan []byte, broadcastBuffer),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		quit:       make(chan struct{}),
		done:       make(chan struct{}),
		logger:     logger.With(slog.String("component", "websocket.hub")),
	}
}

// Start starts the hub loop. Calling it twice has no effect.
func (h *Hub) Start() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.running {
		return
	}
	h.running = true
	go h.run()
}

// Stop disconnects every client and ends the hub loop
func (h *Hub) Stop() {
	h.mu.Lock()
	if !h.running {
		h.mu.Unlock()
		return
	}
	h.running = false
	h.mu.Unlock()

	close(h.quit)
	<-h.done
}

func (h *Hub) run() {
	defer close(h.done)

	for {
		select {
		case <-h.quit:
			h.mu.Lock()
			for client := range h.clients {
				close(client.send)
				delete(h.clients, client)
			}
			h.mu.Unlock()
			h.logger.Info("hub_stopped")
			return

		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			count := len(h.clients)
			h.mu.Unlock()
			h.totalConnections.Add(1)

			ctx := client.context()
			h.logger.InfoContext(ctx, "client_registered",
				slog.Int("total_clients", count),
				slog.String("client_id", client.id),
				slog.String("remote_addr", client.remoteAddr))

			welcome, err := json.Marshal(Message{
				Type: TypeConnection,
				Data: map[string]interface{}{
					"status":    "connected",
					"client_id": client.id,
				},
				Timestamp: time.Now().Format(time.RFC3339),
				TraceID:   client.traceID,
			})
			if err == nil {
				select {
				case client.send <- welcome:
				default:
					h.logger.WarnContext(ctx, "client_buffer_full", slog.String("client_id", client.id))
				}
			}

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
			}
			count := len(h.clients)
			h.mu.Unlock()

			h.logger.InfoContext(client.context(), "client_unregistered",
				slog.Int("total_clients", count),
				slog.String("client_id", client.id),
				slog.Duration("connection_duration", time.Since(client.connectedAt)))

		case message := <-h.broadcast:
			h.mu.Lock()
			failed := 0
			for client := range h.clients {
				select {
				case client.send <- message:
					h.messagesSent.Add(1)
				default:
					// Slow client; disconnect rather than stall every other client
					close(client.send)
					delete(h.clients, client)
					failed++
				}
			}
			count := len(h.clients)
			h.mu.Unlock()

			h.logger.Debug("broadcast_sent",
				slog.Int("client_count", count),
				slog.Int("message_size", len(message)))
			if failed > 0 {
				h.logger.Warn("slow_clients_disconnected", slog.Int("count", failed))
			}
		}
	}
}

// BroadcastUpdate pushes a run event to every connected client. It never
// blocks the caller: events are dropped when the queue is full or the hub
// is stopped.
func (h *Hub) BroadcastUpdate(eventType, step, status string, metadata interface{}) {
	h.BroadcastMessage(Message{
		Type:      eventType,
		Step:      step,
		Status:    status,
		Data:      metadata,
		Timestamp: time.Now().Format(time.RFC3339),
	})
}

// BroadcastMessage queues msg for every connected client
func (h *Hub) BroadcastMessage(msg Message) {
	data, err := json.Marshal(msg)
	if err != nil {
		h.logger.Error("message_marshal_failed",
			slog.String("error", err.Error()),
			slog.String("message_type", msg.Type))
		return
	}

	select {
	case <-h.quit:
		return
	default:
	}

	select {
	case h.broadcast <- data:
	default:
		h.messagesDropped.Add(1)
		h.logger.Warn("broadcast_queue_full", slog.String("message_type", msg.Type))
	}
}

// Register adds a client to the hub
func (h *Hub) Register(client *Client) {
	select {
	case h.register <- client:
	case <-h.quit:
	}
}

// Unregister removes a client from the hub
func (h *Hub) Unregister(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.quit:
	}
}

// ClientCount returns the number of connected clients
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Stats returns hub counters for the health endpoint
func (h *Hub) Stats() map[string]interface{} {
	return map[string]interface{}{
		"active_clients":    h.ClientCount(),
		"total_connections": h.totalConnections.Load(),
		"messages_sent":     h.messagesSent.Load(),
		"messages_dropped":  h.messagesDropped.Load(),
	}
}

func (c *Client) context() context.Context {
	ctx := context.Background()
	if c.traceID != "" {
		ctx = infrastructure.WithTraceID(ctx, c.traceID)
	}
	return ctx
}
