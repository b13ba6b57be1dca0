// Simulated arena feed: publishes scoring actions for a set of live games.
// Messages are keyed by game id so partition ordering matches game order.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"math/rand"
	"os"
	"os/signal"
	"strings"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/IBM/sarama"
	"github.com/google/uuid"
)

// ScoringAction mirrors the consumer's message format.
type ScoringAction struct {
	TenantID       string          `json:"tenant_id"`
	UserID         string          `json:"user_id,omitempty"`
	GameID         string          `json:"game_id"`
	EventType      string          `json:"event_type"`
	Payload        json.RawMessage `json:"payload"`
	OccurredAt     time.Time       `json:"occurred_at"`
	IdempotencyKey string          `json:"idempotency_key,omitempty"`
}

type simulatedGame struct {
	id       string
	homeTeam string
	awayTeam string
	period   int
	clock    int // seconds remaining in period
	started  bool
}

const periodLength = 20 * 60

func main() {
	brokers := flag.String("brokers", "localhost:9094", "Kafka brokers (comma-separated)")
	topic := flag.String("topic", "scoring-actions", "Kafka topic")
	tenantID := flag.String("tenant", uuid.New().String(), "Tenant ID")
	gameCount := flag.Int("games", 4, "Number of concurrent games to simulate")
	actionsPerSecond := flag.Int("rate", 5, "Actions per second across all games")
	duration := flag.Duration("duration", 0, "Duration to run (0 = forever)")
	flag.Parse()

	brokerList := strings.Split(*brokers, ",")

	fmt.Printf("arena feed producer\n")
	fmt.Printf("  brokers: %s\n", *brokers)
	fmt.Printf("  topic:   %s\n", *topic)
	fmt.Printf("  tenant:  %s\n", *tenantID)
	fmt.Printf("  games:   %d at %d actions/sec\n", *gameCount, *actionsPerSecond)

	config := sarama.NewConfig()
	config.Producer.RequiredAcks = sarama.WaitForLocal
	config.Producer.Compression = sarama.CompressionSnappy
	config.Producer.Flush.Frequency = 100 * time.Millisecond
	config.Producer.Flush.Messages = 100
	config.Producer.Return.Successes = true
	config.Producer.Return.Errors = true

	producer, err := sarama.NewAsyncProducer(brokerList, config)
	if err != nil {
		log.Fatalf("Failed to create producer: %v", err)
	}
	defer producer.Close()

	var successCount, errorCount int64
	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		for range producer.Successes() {
			atomic.AddInt64(&successCount, 1)
		}
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		for err := range producer.Errors() {
			atomic.AddInt64(&errorCount, 1)
			log.Printf("Producer error: %v", err)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	done := make(chan struct{})

	sendAction := func(action ScoringAction) {
		data, err := json.Marshal(action)
		if err != nil {
			log.Printf("Failed to marshal action: %v", err)
			return
		}

		msg := &sarama.ProducerMessage{
			Topic: *topic,
			Key:   sarama.StringEncoder(action.GameID),
			Value: sarama.ByteEncoder(data),
		}

		select {
		case producer.Input() <- msg:
		case <-done:
		}
	}

	games := make([]*simulatedGame, *gameCount)
	for i := range games {
		games[i] = &simulatedGame{
			id:       uuid.New().String(),
			homeTeam: uuid.New().String(),
			awayTeam: uuid.New().String(),
			period:   1,
			clock:    periodLength,
		}
	}

	interval := time.Second / time.Duration(*actionsPerSecond)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	statsTicker := time.NewTicker(5 * time.Second)
	defer statsTicker.Stop()

	var endTime time.Time
	if *duration > 0 {
		endTime = time.Now().Add(*duration)
	}

	var actionCount int64

	shutdown := func() {
		close(done)
		producer.AsyncClose()
		wg.Wait()
		fmt.Printf("done. sent: %d, errors: %d\n",
			atomic.LoadInt64(&successCount), atomic.LoadInt64(&errorCount))
	}

	fmt.Println("Press Ctrl+C to stop")

	for {
		select {
		case <-sigChan:
			fmt.Println("\nshutting down...")
			shutdown()
			return

		case <-ticker.C:
			if *duration > 0 && time.Now().After(endTime) {
				fmt.Println("\nduration reached, shutting down...")
				shutdown()
				return
			}

			game := games[rand.Intn(len(games))]
			sendAction(nextAction(*tenantID, game))
			atomic.AddInt64(&actionCount, 1)

		case <-statsTicker.C:
			fmt.Printf("[%s] actions: %d | sent: %d | errors: %d\n",
				time.Now().Format("15:04:05"),
				atomic.LoadInt64(&actionCount),
				atomic.LoadInt64(&successCount),
				atomic.LoadInt64(&errorCount),
			)
		}
	}
}

// nextAction advances one game's simulated state and emits the matching
// event. Each game starts once, plays through three periods, and loops back
// to a new game id after finalizing.
func nextAction(tenantID string, game *simulatedGame) ScoringAction {
	now := time.Now().UTC()
	action := ScoringAction{
		TenantID:       tenantID,
		UserID:         uuid.New().String(),
		GameID:         game.id,
		OccurredAt:     now,
		IdempotencyKey: uuid.New().String(),
	}

	if !game.started {
		game.started = true
		action.EventType = "GAME_STARTED"
		action.Payload = mustMarshal(map[string]any{"period": 1})
		return action
	}

	game.clock -= rand.Intn(120) + 30
	if game.clock <= 0 {
		if game.period >= 3 {
			action.EventType = "GAME_FINALIZED"
			action.Payload = mustMarshal(map[string]any{
				"final_home_score": rand.Intn(6),
				"final_away_score": rand.Intn(6),
			})
			// Next pick starts a fresh game
			*game = simulatedGame{
				id:       uuid.New().String(),
				homeTeam: uuid.New().String(),
				awayTeam: uuid.New().String(),
				period:   1,
				clock:    periodLength,
			}
			return action
		}
		action.EventType = "PERIOD_ENDED"
		action.Payload = mustMarshal(map[string]any{"period": game.period})
		game.period++
		game.clock = periodLength
		return action
	}

	team := game.homeTeam
	if rand.Intn(2) == 1 {
		team = game.awayTeam
	}
	clock := fmt.Sprintf("%02d:%02d", game.clock/60, game.clock%60)

	switch rand.Intn(10) {
	case 0:
		action.EventType = "GOAL_SCORED"
		action.Payload = mustMarshal(map[string]any{
			"team_id":        team,
			"player_id":      uuid.New().String(),
			"period":         game.period,
			"time_remaining": clock,
		})
	case 1:
		action.EventType = "PENALTY_ASSESSED"
		action.Payload = mustMarshal(map[string]any{
			"team_id":        team,
			"player_id":      uuid.New().String(),
			"period":         game.period,
			"time_remaining": clock,
			"infraction":     "tripping",
			"minutes":        2,
		})
	default:
		action.EventType = "SHOT_ON_GOAL"
		action.Payload = mustMarshal(map[string]any{
			"team_id":        team,
			"player_id":      uuid.New().String(),
			"period":         game.period,
			"time_remaining": clock,
		})
	}
	return action
}

func mustMarshal(v any) json.RawMessage {
	data, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return data
}
