// Package kafka ingests scoring actions from the arena feed. Messages are
// keyed by game id at the producer, so partition ordering preserves the
// per-game event order the projection depends on.
package kafka

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/IBM/sarama"

	"github.com/leagueops/scorekeeper/internal/config"
	"github.com/leagueops/scorekeeper/internal/domain"
	"github.com/leagueops/scorekeeper/internal/scoring"
)

// ScoringAction is the feed message format. The feed is an internal trusted
// pipeline, so the tenant travels in the message instead of a token.
type ScoringAction struct {
	TenantID       string                     `json:"tenant_id"`
	UserID         string                     `json:"user_id,omitempty"`
	GameID         string                     `json:"game_id"`
	EventType      domain.EventType           `json:"event_type"`
	Payload        json.RawMessage            `json:"payload"`
	OccurredAt     time.Time                  `json:"occurred_at,omitempty"`
	IdempotencyKey string                     `json:"idempotency_key,omitempty"`
	Coordinates    *domain.SpatialCoordinates `json:"spatial_coordinates,omitempty"`
}

// ActionHandler processes scoring actions.
type ActionHandler interface {
	SubmitAction(ctx context.Context, auth domain.AuthContext, req scoring.ActionRequest) (*scoring.Result, error)
}

// Consumer consumes scoring actions from Kafka.
type Consumer struct {
	config        *config.KafkaConfig
	handler       ActionHandler
	logger        *slog.Logger
	consumerGroup sarama.ConsumerGroup
	ctx           context.Context
	cancel        context.CancelFunc
	wg            sync.WaitGroup
	ready         chan bool
}

// NewConsumer creates a new Kafka consumer.
func NewConsumer(cfg *config.KafkaConfig, handler ActionHandler, logger *slog.Logger) (*Consumer, error) {
	saramaConfig := sarama.NewConfig()
	saramaConfig.Version = sarama.V3_0_0_0
	saramaConfig.Consumer.Group.Rebalance.GroupStrategies = []sarama.BalanceStrategy{sarama.NewBalanceStrategyRoundRobin()}
	saramaConfig.Consumer.Offsets.Initial = sarama.OffsetNewest
	saramaConfig.Consumer.Return.Errors = true

	consumerGroup, err := sarama.NewConsumerGroup(cfg.Brokers, cfg.GroupID, saramaConfig)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Consumer{
		config:        cfg,
		handler:       handler,
		logger:        logger,
		consumerGroup: consumerGroup,
		ctx:           ctx,
		cancel:        cancel,
		ready:         make(chan bool),
	}, nil
}

// Start begins consuming messages from Kafka.
func (c *Consumer) Start() error {
	c.logger.Info("starting Kafka consumer",
		"brokers", c.config.Brokers,
		"topic", c.config.Topic,
		"group_id", c.config.GroupID,
	)

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		for {
			handler := &consumerGroupHandler{
				consumer: c,
				ready:    c.ready,
			}

			if err := c.consumerGroup.Consume(c.ctx, []string{c.config.Topic}, handler); err != nil {
				if err == sarama.ErrClosedConsumerGroup {
					return
				}
				c.logger.Error("error from consumer", "error", err)
			}

			if c.ctx.Err() != nil {
				return
			}

			c.ready = make(chan bool)
		}
	}()

	// Wait until consumer is ready
	<-c.ready
	c.logger.Info("Kafka consumer ready")

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		for {
			select {
			case <-c.ctx.Done():
				return
			case err, ok := <-c.consumerGroup.Errors():
				if !ok {
					return
				}
				c.logger.Error("consumer group error", "error", err)
			}
		}
	}()

	return nil
}

// Stop gracefully stops the consumer.
func (c *Consumer) Stop() error {
	c.logger.Info("stopping Kafka consumer")
	c.cancel()
	c.wg.Wait()
	return c.consumerGroup.Close()
}

// consumerGroupHandler implements sarama.ConsumerGroupHandler
type consumerGroupHandler struct {
	consumer *Consumer
	ready    chan bool
}

func (h *consumerGroupHandler) Setup(sarama.ConsumerGroupSession) error {
	close(h.ready)
	return nil
}

func (h *consumerGroupHandler) Cleanup(sarama.ConsumerGroupSession) error {
	return nil
}

// ConsumeClaim processes messages from a topic partition one at a time.
// Actions are applied strictly in partition order; a failed action is
// logged and skipped rather than retried, so a malformed message cannot
// wedge the partition. Producers retry through idempotency keys.
func (h *consumerGroupHandler) ConsumeClaim(session sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	for {
		select {
		case <-session.Context().Done():
			return nil

		case message, ok := <-claim.Messages():
			if !ok {
				return nil
			}

			var action ScoringAction
			if err := json.Unmarshal(message.Value, &action); err != nil {
				h.consumer.logger.Warn("failed to unmarshal message",
					"error", err,
					"offset", message.Offset,
					"partition", message.Partition,
				)
				session.MarkMessage(message, "")
				continue
			}

			if action.TenantID == "" || action.GameID == "" || action.EventType == "" {
				h.consumer.logger.Warn("invalid scoring action",
					"tenant_id", action.TenantID,
					"game_id", action.GameID,
					"event_type", action.EventType,
				)
				session.MarkMessage(message, "")
				continue
			}

			h.consumer.process(action, message)
			session.MarkMessage(message, "")
		}
	}
}

func (c *Consumer) process(action ScoringAction, message *sarama.ConsumerMessage) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	auth := domain.AuthContext{
		UserID:   action.UserID,
		TenantID: action.TenantID,
	}
	req := scoring.ActionRequest{
		GameID:         action.GameID,
		Type:           action.EventType,
		Payload:        action.Payload,
		OccurredAt:     action.OccurredAt,
		IdempotencyKey: action.IdempotencyKey,
		Source:         "feed",
		Coordinates:    action.Coordinates,
	}

	result, err := c.handler.SubmitAction(ctx, auth, req)
	if err != nil {
		c.logger.Error("failed to process action",
			"error", err,
			"game_id", action.GameID,
			"event_type", action.EventType,
			"offset", message.Offset,
			"partition", message.Partition,
		)
		return
	}

	c.logger.Debug("processed action",
		"game_id", action.GameID,
		"event_type", action.EventType,
		"event_id", result.Event.ID,
		"duplicate", result.Duplicate,
	)
}
