package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"wallet/internal/websocket"
)

// BalanceChannel carries committed balance changes between server replicas.
const BalanceChannel = "wallet:balance_events"

const publishTimeout = 2 * time.Second

type BalanceEvent struct {
	UserID      string                  `json:"user_id"`
	Update      websocket.BalanceUpdate `json:"update"`
	PublishedAt time.Time               `json:"published_at"`
}

func encodeEvent(event BalanceEvent) ([]byte, error) {
	payload, err := json.Marshal(event)
	if err != nil {
		return nil, fmt.Errorf("marshal balance event: %w", err)
	}
	return payload, nil
}

func decodeEvent(payload string) (BalanceEvent, error) {
	var event BalanceEvent
	if err := json.Unmarshal([]byte(payload), &event); err != nil {
		return BalanceEvent{}, fmt.Errorf("decode balance event: %w", err)
	}
	if event.UserID == "" {
		return BalanceEvent{}, fmt.Errorf("decode balance event: missing user_id")
	}
	return event, nil
}

// Publisher fans balance updates out through Redis so that every replica's
// hub can reach the owner's sockets.
type Publisher struct {
	rdb     *redis.Client
	channel string
	logger  *zap.Logger
	now     func() time.Time
}

func NewPublisher(rdb *redis.Client, logger *zap.Logger) *Publisher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Publisher{rdb: rdb, channel: BalanceChannel, logger: logger, now: time.Now}
}

// BroadcastBalance publishes the update. Delivery is best effort: a failed
// publish is logged and dropped since the ledger is already committed.
func (p *Publisher) BroadcastBalance(userID string, update websocket.BalanceUpdate) {
	payload, err := encodeEvent(BalanceEvent{UserID: userID, Update: update, PublishedAt: p.now().UTC()})
	if err != nil {
		p.logger.Error("encode balance event", zap.Error(err))
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
	defer cancel()
	if err := p.rdb.Publish(ctx, p.channel, payload).Err(); err != nil {
		p.logger.Warn("publish balance event",
			zap.String("user_id", userID),
			zap.String("reference", update.Reference),
			zap.Error(err),
		)
	}
}

type Broadcaster interface {
	BroadcastBalance(userID string, update websocket.BalanceUpdate)
}

// Relay forwards balance events from Redis to the local hub.
type Relay struct {
	rdb     *redis.Client
	channel string
	hub     Broadcaster
	logger  *zap.Logger
}

func NewRelay(rdb *redis.Client, hub Broadcaster, logger *zap.Logger) *Relay {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Relay{rdb: rdb, channel: BalanceChannel, hub: hub, logger: logger}
}

// Run subscribes and blocks until ctx ends. It returns an error only when the
// subscription cannot be established.
func (r *Relay) Run(ctx context.Context) error {
	pubsub := r.rdb.Subscribe(ctx, r.channel)
	defer pubsub.Close()
	if _, err := pubsub.Receive(ctx); err != nil {
		return fmt.Errorf("subscribe %s: %w", r.channel, err)
	}
	r.logger.Info("balance relay subscribed", zap.String("channel", r.channel))

	messages := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-messages:
			if !ok {
				return nil
			}
			r.handle(msg.Payload)
		}
	}
}

func (r *Relay) handle(payload string) {
	event, err := decodeEvent(payload)
	if err != nil {
		r.logger.Warn("dropping balance event", zap.Error(err))
		return
	}
	r.hub.BroadcastBalance(event.UserID, event.Update)
}
