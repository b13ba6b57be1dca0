package broadcast

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/leagueops/scorekeeper/internal/domain"
	"github.com/leagueops/scorekeeper/internal/metrics"
)

// Message types delivered to subscribers.
const (
	MessageTypeSnapshot  = "game_snapshot"
	MessageTypeFinalized = "game_finalized"
)

// Message is the envelope delivered to each subscriber.
type Message struct {
	Type      string               `json:"type"`
	GameID    string               `json:"game_id"`
	Data      *domain.GameSnapshot `json:"data"`
	Timestamp time.Time            `json:"timestamp"`
}

// Sender delivers one message to one connection. The transport layer owns
// connection liveness; a send failure here is reported, not acted on.
type Sender interface {
	Send(connectionID string, message []byte) error
}

// ConnectionLister resolves live subscriptions for a game.
type ConnectionLister interface {
	ListByGame(ctx context.Context, tenantID, gameID string) ([]domain.Connection, error)
}

// Dispatcher fans snapshots out to a game's subscribers.
type Dispatcher struct {
	registry ConnectionLister
	sender   Sender
	logger   *slog.Logger
	metrics  *metrics.Metrics
}

// NewDispatcher creates a dispatcher.
func NewDispatcher(registry ConnectionLister, sender Sender, logger *slog.Logger, m *metrics.Metrics) *Dispatcher {
	return &Dispatcher{registry: registry, sender: sender, logger: logger, metrics: m}
}

// Broadcast delivers snap to every live subscriber of (game, tenant).
// Delivery is best-effort: one failing connection never blocks the rest,
// and no failure propagates to the triggering write.
func (d *Dispatcher) Broadcast(ctx context.Context, tenantID, gameID string, snap *domain.GameSnapshot, messageType string) {
	conns, err := d.registry.ListByGame(ctx, tenantID, gameID)
	if err != nil {
		d.logger.Warn("broadcast skipped: listing connections failed",
			"game_id", gameID, "error", err)
		return
	}
	if len(conns) == 0 {
		return
	}

	data, err := json.Marshal(Message{
		Type:      messageType,
		GameID:    gameID,
		Data:      snap,
		Timestamp: time.Now().UTC(),
	})
	if err != nil {
		d.logger.Error("broadcast skipped: marshaling snapshot failed",
			"game_id", gameID, "error", err)
		return
	}

	delivered := 0
	for _, conn := range conns {
		if err := d.sender.Send(conn.ID, data); err != nil {
			if d.metrics != nil {
				d.metrics.BroadcastDeliveries.WithLabelValues("failed").Inc()
			}
			d.logger.Debug("snapshot delivery failed",
				"connection_id", conn.ID, "game_id", gameID, "error", err)
			continue
		}
		delivered++
		if d.metrics != nil {
			d.metrics.BroadcastDeliveries.WithLabelValues("delivered").Inc()
		}
	}

	d.logger.Debug("snapshot broadcast",
		"game_id", gameID,
		"subscribers", len(conns),
		"delivered", delivered,
	)
}
