// Gradesync - Offline-first school records sync
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/gradesync

package websocket

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/gradesync/internal/connectivity"
	"github.com/tomtom215/gradesync/internal/logging"
	"github.com/tomtom215/gradesync/internal/metrics"
	"github.com/tomtom215/gradesync/internal/models"
)

// Message types on the event stream.
const (
	MessageTypeConnectivity  = "connectivity"
	MessageTypeItemQueued    = "item_queued"
	MessageTypeSyncCompleted = "sync_completed"
	MessageTypePing          = "ping"
	MessageTypePong          = "pong"
	MessageTypeSubscribe     = "subscribe"
)

// Message is one event sent to the UI.
type Message struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

// Hub fans events out to connected UI clients. Publishing never blocks: when
// the broadcast buffer is full the event is dropped and counted.
type Hub struct {
	clients    map[*Client]bool
	broadcast  chan Message
	Register   chan *Client
	Unregister chan *Client
	mu         sync.RWMutex
}

// NewHub creates a hub. Serve must run for events to be delivered.
func NewHub() *Hub {
	return &Hub{
		broadcast:  make(chan Message, 256),
		Register:   make(chan *Client),
		Unregister: make(chan *Client),
		clients:    make(map[*Client]bool),
	}
}

// Serve runs the hub until ctx is done, then closes every client.
//
// Shutdown is checked first, then client lifecycle, then broadcasts, so a
// client registered before an event is published always receives it.
func (h *Hub) Serve(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			h.shutdown(ctx)
			return ctx.Err()
		default:
		}

		select {
		case client := <-h.Register:
			h.add(client)
			continue
		case client := <-h.Unregister:
			h.remove(client)
			continue
		default:
		}

		select {
		case <-ctx.Done():
			h.shutdown(ctx)
			return ctx.Err()
		case client := <-h.Register:
			h.add(client)
		case client := <-h.Unregister:
			h.remove(client)
		case message := <-h.broadcast:
			h.broadcastToClients(message)
		}
	}
}

func (h *Hub) add(client *Client) {
	h.mu.Lock()
	h.clients[client] = true
	n := len(h.clients)
	h.mu.Unlock()

	metrics.WSConnections.Set(float64(n))
	logging.Debug().Uint64("client_id", client.id).Int("total_clients", n).Msg("Event stream client connected")
}

func (h *Hub) remove(client *Client) {
	h.mu.Lock()
	if _, ok := h.clients[client]; ok {
		delete(h.clients, client)
		close(client.send)
	}
	n := len(h.clients)
	h.mu.Unlock()

	metrics.WSConnections.Set(float64(n))
	logging.Debug().Uint64("client_id", client.id).Int("total_clients", n).Msg("Event stream client disconnected")
}

func (h *Hub) shutdown(ctx context.Context) {
	n := h.ClientCount()
	h.closeAllClients()

	reason := "context_canceled"
	if ctx.Err() == context.DeadlineExceeded {
		reason = "context_deadline"
	}
	logging.Info().
		Str("component", "event-hub").
		Str("reason", reason).
		Int("clients_closed", n).
		Msg("Event hub stopped")
}

// broadcastToClients delivers message to every interested client in
// connection order. A client whose buffer is full is disconnected.
func (h *Hub) broadcastToClients(message Message) {
	h.mu.Lock()
	defer h.mu.Unlock()

	clients := make([]*Client, 0, len(h.clients))
	for client := range h.clients {
		clients = append(clients, client)
	}
	sort.Slice(clients, func(i, j int) bool {
		return clients[i].id < clients[j].id
	})

	var toRemove []*Client
	for _, client := range clients {
		if !client.wants(message.Type) {
			continue
		}
		select {
		case client.send <- message:
		default:
			toRemove = append(toRemove, client)
		}
	}

	for _, client := range toRemove {
		close(client.send)
		delete(h.clients, client)
		logging.Warn().Uint64("client_id", client.id).Msg("Event stream client too slow, disconnected")
	}
	if len(toRemove) > 0 {
		metrics.WSConnections.Set(float64(len(h.clients)))
	}
	metrics.WSMessagesSent.WithLabelValues(message.Type).Inc()
}

func (h *Hub) closeAllClients() {
	h.mu.Lock()
	defer h.mu.Unlock()

	clients := make([]*Client, 0, len(h.clients))
	for client := range h.clients {
		clients = append(clients, client)
	}
	sort.Slice(clients, func(i, j int) bool {
		return clients[i].id < clients[j].id
	})

	for _, client := range clients {
		close(client.send)
		delete(h.clients, client)
	}
	metrics.WSConnections.Set(0)
}

// Publish queues an event for every client.
func (h *Hub) Publish(messageType string, data interface{}) {
	select {
	case h.broadcast <- Message{Type: messageType, Data: data}:
	default:
		metrics.WSDropped.Inc()
		logging.Warn().Str("message_type", messageType).Msg("Broadcast buffer full, dropping event")
	}
}

// ConnectivityData is the payload of a connectivity event.
type ConnectivityData struct {
	Online bool   `json:"online"`
	At     string `json:"at"`
	Source string `json:"source"`
}

// BroadcastConnectivity publishes a connectivity edge. It has the
// signature of a connectivity.Monitor subscriber.
func (h *Hub) BroadcastConnectivity(ev connectivity.Event) {
	h.Publish(MessageTypeConnectivity, ConnectivityData{
		Online: ev.Online,
		At:     ev.At.UTC().Format(time.RFC3339),
		Source: ev.Source,
	})
}

// ItemQueuedData is the payload of an item_queued event.
type ItemQueuedData struct {
	ID        string                `json:"id"`
	Kind      models.EntityKind     `json:"kind"`
	Action    models.Action         `json:"action"`
	State     models.LifecycleState `json:"state"`
	CreatedAt string                `json:"created_at"`
}

// BroadcastItemQueued publishes a newly queued write.
func (h *Hub) BroadcastItemQueued(item *models.QueueItem) {
	h.Publish(MessageTypeItemQueued, ItemQueuedData{
		ID:        item.ID,
		Kind:      item.Kind,
		Action:    item.Action,
		State:     item.State,
		CreatedAt: item.CreatedAt.UTC().Format(time.RFC3339),
	})
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// MarshalMessage converts a message to JSON.
func MarshalMessage(msg Message) ([]byte, error) {
	return json.Marshal(msg)
}
