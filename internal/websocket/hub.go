package websocket

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/leagueops/scorekeeper/internal/domain"
)

// Message types
const (
	MessageTypeSubscribe   = "subscribe"
	MessageTypeUnsubscribe = "unsubscribe"
	MessageTypePing        = "ping"
	MessageTypePong        = "pong"
	MessageTypeError       = "error"
)

// ConnectionRegistry persists connection membership so that subscriptions
// survive process restarts and are visible to the dispatcher.
type ConnectionRegistry interface {
	Register(ctx context.Context, conn domain.Connection) error
	Unregister(ctx context.Context, tenantID, gameID, connectionID string) error
}

// Hub maintains the set of active clients keyed by game subscription. A
// subscription is scoped to the client's tenant; two tenants watching the
// same game id never share a fan-out group.
type Hub struct {
	// Subscribed clients by tenant/game key
	games map[string]map[*Client]bool

	// All connected clients by connection id
	clients map[string]*Client

	register    chan *Client
	unregister  chan *Client
	subscribe   chan *subscriptionRequest
	unsubscribe chan *subscriptionRequest

	registry ConnectionRegistry

	mu sync.RWMutex

	logger *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
}

type subscriptionRequest struct {
	client *Client
	gameID string
}

// NewHub creates a new Hub.
func NewHub(registry ConnectionRegistry, logger *slog.Logger) *Hub {
	ctx, cancel := context.WithCancel(context.Background())
	return &Hub{
		games:       make(map[string]map[*Client]bool),
		clients:     make(map[string]*Client),
		register:    make(chan *Client),
		unregister:  make(chan *Client),
		subscribe:   make(chan *subscriptionRequest, 64),
		unsubscribe: make(chan *subscriptionRequest, 64),
		registry:    registry,
		logger:      logger,
		ctx:         ctx,
		cancel:      cancel,
	}
}

func subKey(tenantID, gameID string) string {
	return tenantID + "/" + gameID
}

// Run starts the hub's main loop.
func (h *Hub) Run() {
	h.logger.Info("websocket hub started")
	for {
		select {
		case <-h.ctx.Done():
			h.logger.Info("websocket hub stopping")
			return

		case client := <-h.register:
			h.mu.Lock()
			h.clients[client.id] = client
			h.mu.Unlock()
			h.logger.Debug("client registered", "connection_id", client.id, "tenant_id", client.tenantID)

		case client := <-h.unregister:
			h.dropClient(client)

		case req := <-h.subscribe:
			h.addSubscription(req.client, req.gameID)

		case req := <-h.unsubscribe:
			h.removeSubscription(req.client, req.gameID)
		}
	}
}

// Stop stops the hub.
func (h *Hub) Stop() {
	h.cancel()
}

func (h *Hub) dropClient(client *Client) {
	h.mu.Lock()
	_, ok := h.clients[client.id]
	if ok {
		delete(h.clients, client.id)
		for key, clients := range h.games {
			if _, ok := clients[client]; ok {
				delete(clients, client)
				if len(clients) == 0 {
					delete(h.games, key)
				}
			}
		}
		close(client.send)
	}
	games := make([]string, 0, len(client.games))
	for gameID := range client.games {
		games = append(games, gameID)
	}
	h.mu.Unlock()
	if !ok {
		return
	}

	for _, gameID := range games {
		if err := h.registry.Unregister(h.ctx, client.tenantID, gameID, client.id); err != nil {
			h.logger.Warn("unregistering connection", "connection_id", client.id, "error", err)
		}
	}
	h.logger.Debug("client unregistered", "connection_id", client.id)
}

func (h *Hub) addSubscription(client *Client, gameID string) {
	h.mu.Lock()
	key := subKey(client.tenantID, gameID)
	if _, ok := h.games[key]; !ok {
		h.games[key] = make(map[*Client]bool)
	}
	h.games[key][client] = true
	client.games[gameID] = true
	h.mu.Unlock()

	err := h.registry.Register(h.ctx, domain.Connection{
		ID:          client.id,
		GameID:      gameID,
		TenantID:    client.tenantID,
		UserID:      client.userID,
		ConnectedAt: time.Now().UTC(),
	})
	if err != nil {
		h.logger.Warn("registering connection", "connection_id", client.id, "error", err)
	}
	h.logger.Debug("client subscribed", "connection_id", client.id, "game_id", gameID)
}

func (h *Hub) removeSubscription(client *Client, gameID string) {
	h.mu.Lock()
	key := subKey(client.tenantID, gameID)
	if clients, ok := h.games[key]; ok {
		delete(clients, client)
		if len(clients) == 0 {
			delete(h.games, key)
		}
	}
	delete(client.games, gameID)
	h.mu.Unlock()

	if err := h.registry.Unregister(h.ctx, client.tenantID, gameID, client.id); err != nil {
		h.logger.Warn("unregistering connection", "connection_id", client.id, "error", err)
	}
	h.logger.Debug("client unsubscribed", "connection_id", client.id, "game_id", gameID)
}

// Send delivers a pre-encoded message to one connection. It satisfies the
// dispatcher's sender contract; an unknown connection id means the peer
// disconnected after the registry listed it.
func (h *Hub) Send(connectionID string, message []byte) error {
	h.mu.RLock()
	client, ok := h.clients[connectionID]
	h.mu.RUnlock()
	if !ok {
		return fmt.Errorf("connection %s not attached to this node", connectionID)
	}
	select {
	case client.send <- message:
		return nil
	default:
		h.logger.Warn("client buffer full, dropping message", "connection_id", connectionID)
		return nil
	}
}

// Register adds a client to the hub.
func (h *Hub) Register(client *Client) {
	h.register <- client
}

// Unregister removes a client from the hub.
func (h *Hub) Unregister(client *Client) {
	h.unregister <- client
}

// Subscribe adds a client to a game subscription.
func (h *Hub) Subscribe(client *Client, gameID string) {
	h.subscribe <- &subscriptionRequest{client: client, gameID: gameID}
}

// Unsubscribe removes a client from a game subscription.
func (h *Hub) Unsubscribe(client *Client, gameID string) {
	h.unsubscribe <- &subscriptionRequest{client: client, gameID: gameID}
}

// SubscriberCount returns the number of local subscribers for a game.
func (h *Hub) SubscriberCount(tenantID, gameID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if clients, ok := h.games[subKey(tenantID, gameID)]; ok {
		return len(clients)
	}
	return 0
}

// TotalConnections returns the total number of connected clients.
func (h *Hub) TotalConnections() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// ack helper shared by client message handling
func encode(msg any) []byte {
	data, err := json.Marshal(msg)
	if err != nil {
		return nil
	}
	return data
}
