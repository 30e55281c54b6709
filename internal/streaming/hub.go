// Package streaming broadcasts task and update lifecycle events to
// subscribed WebSocket clients — the live-progress surface dashboards
// and the bot notifier's human operators both attach to.
package streaming

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/driftcode/orchestra/internal/common/logger"
	"github.com/driftcode/orchestra/internal/eventbus"
)

// allSubject is the pseudo-subject a client subscribes to in order to
// receive every event the hub broadcasts, regardless of its real
// subject.
const allSubject = "*"

// Client represents one WebSocket client connection.
type Client struct {
	ID      string
	conn    *websocket.Conn
	subject map[string]bool // subjects (or allSubject) this client wants
	send    chan []byte
	hub     *Hub
	mu      sync.RWMutex
	logger  *logger.Logger
}

// NewClient creates a new hub-attached client.
func NewClient(id string, conn *websocket.Conn, hub *Hub, log *logger.Logger) *Client {
	return &Client{
		ID:      id,
		conn:    conn,
		subject: make(map[string]bool),
		send:    make(chan []byte, 256),
		hub:     hub,
		logger:  log.WithFields(zap.String("client_id", id)),
	}
}

// BroadcastMessage is one event the hub fans out to subscribed clients.
type BroadcastMessage struct {
	Subject string
	Event   *eventbus.Event
}

// Hub manages all connected WebSocket clients and routes broadcast
// events to whichever clients are subscribed to their subject.
type Hub struct {
	clients        map[*Client]bool
	subjectClients map[string]map[*Client]bool
	register       chan *Client
	unregister     chan *Client
	broadcast      chan *BroadcastMessage
	mu             sync.RWMutex
	log            *logger.Logger
}

// NewHub creates a new WebSocket hub.
func NewHub(log *logger.Logger) *Hub {
	return &Hub{
		clients:        make(map[*Client]bool),
		subjectClients: make(map[string]map[*Client]bool),
		register:       make(chan *Client),
		unregister:     make(chan *Client),
		broadcast:      make(chan *BroadcastMessage, 256),
		log:            log.WithFields(zap.String("component", "streaming_hub")),
	}
}

// Run starts the hub's processing loop until ctx is cancelled.
func (h *Hub) Run(ctx context.Context) {
	h.log.Info("streaming hub started")
	defer h.log.Info("streaming hub stopped")

	for {
		select {
		case <-ctx.Done():
			h.mu.Lock()
			for client := range h.clients {
				close(client.send)
			}
			h.clients = make(map[*Client]bool)
			h.subjectClients = make(map[string]map[*Client]bool)
			h.mu.Unlock()
			return

		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			h.mu.Unlock()
			h.log.Debug("client registered", zap.String("client_id", client.ID))

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
				for subject := range client.subject {
					h.removeFromSubjectLocked(subject, client)
				}
			}
			h.mu.Unlock()
			h.log.Debug("client unregistered", zap.String("client_id", client.ID))

		case msg := <-h.broadcast:
			h.deliver(msg)
		}
	}
}

func (h *Hub) deliver(msg *BroadcastMessage) {
	h.mu.RLock()
	recipients := make(map[*Client]bool)
	for c := range h.subjectClients[msg.Subject] {
		recipients[c] = true
	}
	for c := range h.subjectClients[allSubject] {
		recipients[c] = true
	}
	h.mu.RUnlock()

	if len(recipients) == 0 {
		return
	}

	data, err := json.Marshal(msg.Event)
	if err != nil {
		h.log.Error("failed to marshal event", zap.Error(err))
		return
	}

	for client := range recipients {
		select {
		case client.send <- data:
		default:
			h.dropSlowClient(client)
		}
	}
}

func (h *Hub) dropSlowClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[client]; !ok {
		return
	}
	delete(h.clients, client)
	close(client.send)
	for subject := range client.subject {
		h.removeFromSubjectLocked(subject, client)
	}
}

func (h *Hub) removeFromSubjectLocked(subject string, client *Client) {
	if clients, ok := h.subjectClients[subject]; ok {
		delete(clients, client)
		if len(clients) == 0 {
			delete(h.subjectClients, subject)
		}
	}
}

// Register adds a client to the hub.
func (h *Hub) Register(client *Client) { h.register <- client }

// Unregister removes a client from the hub.
func (h *Hub) Unregister(client *Client) { h.unregister <- client }

// Broadcast fans an event out to every client subscribed to subject
// (or to every event via allSubject).
func (h *Hub) Broadcast(subject string, event *eventbus.Event) {
	h.broadcast <- &BroadcastMessage{Subject: subject, Event: event}
}

// SubscribeClient subscribes a client to a subject.
func (h *Hub) SubscribeClient(client *Client, subject string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.subjectClients[subject]; !ok {
		h.subjectClients[subject] = make(map[*Client]bool)
	}
	h.subjectClients[subject][client] = true
	h.log.Debug("client subscribed", zap.String("client_id", client.ID), zap.String("subject", subject))
}

// UnsubscribeClient unsubscribes a client from a subject.
func (h *Hub) UnsubscribeClient(client *Client, subject string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.removeFromSubjectLocked(subject, client)
	h.log.Debug("client unsubscribed", zap.String("client_id", client.ID), zap.String("subject", subject))
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// SubjectSubscriberCount returns the number of clients subscribed to
// subject.
func (h *Hub) SubjectSubscriberCount(subject string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subjectClients[subject])
}

// AttachBus subscribes the hub to every lifecycle event on bus (via
// the NATS-style ">" wildcard) and rebroadcasts each one under its own
// event type as the subject, so WebSocket clients never need to know
// whether the bus is NATS-backed or in-memory.
func (h *Hub) AttachBus(bus eventbus.Bus) error {
	_, err := bus.Subscribe(">", func(_ context.Context, event *eventbus.Event) error {
		h.Broadcast(event.Type, event)
		return nil
	})
	return err
}
