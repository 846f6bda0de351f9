package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"
)

// Fanout 把房间广播分发到所有实例
type Fanout interface {
	Publish(ctx context.Context, room string, payload []byte) error
	Close() error
}

// LocalFanout 单实例：直接交给本地 Hub
type LocalFanout struct {
	hub *Hub
}

func NewLocalFanout(hub *Hub) *LocalFanout {
	return &LocalFanout{hub: hub}
}

func (f *LocalFanout) Publish(ctx context.Context, room string, payload []byte) error {
	_, err := f.hub.Broadcast(ctx, room, payload)
	return err
}

func (f *LocalFanout) Close() error { return nil }

type fanoutEnvelope struct {
	Room string          `json:"room"`
	Data json.RawMessage `json:"data"`
}

// RedisFanout 通过 Redis pub/sub 广播；每个实例（包括发布者）都从订阅中投递给本地连接
type RedisFanout struct {
	client  *redis.Client
	channel string
	hub     *Hub
	pubsub  *redis.PubSub
	done    chan struct{}
	logger  *slog.Logger
}

// NewRedisFanout subscribes to channel and starts delivering to hub.
// The subscription is confirmed before it returns.
func NewRedisFanout(ctx context.Context, client *redis.Client, channel string, hub *Hub, logger *slog.Logger) (*RedisFanout, error) {
	if logger == nil {
		logger = slog.Default()
	}
	pubsub := client.Subscribe(ctx, channel)
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, fmt.Errorf("subscribe %s: %w", channel, err)
	}

	f := &RedisFanout{
		client:  client,
		channel: channel,
		hub:     hub,
		pubsub:  pubsub,
		done:    make(chan struct{}),
		logger:  logger.With("component", "fanout", "channel", channel),
	}
	go f.listen()
	return f, nil
}

func (f *RedisFanout) listen() {
	defer close(f.done)
	for msg := range f.pubsub.Channel() {
		var env fanoutEnvelope
		if err := json.Unmarshal([]byte(msg.Payload), &env); err != nil {
			f.logger.Warn("dropping malformed fanout message", "error", err)
			continue
		}
		if _, err := f.hub.Broadcast(context.Background(), env.Room, env.Data); err != nil {
			f.logger.Warn("local broadcast failed", "room", env.Room, "error", err)
			if errors.Is(err, ErrRelayUnavailable) {
				return
			}
		}
	}
}

func (f *RedisFanout) Publish(ctx context.Context, room string, payload []byte) error {
	data, err := json.Marshal(fanoutEnvelope{Room: room, Data: payload})
	if err != nil {
		return err
	}
	if err := f.client.Publish(ctx, f.channel, data).Err(); err != nil {
		return fmt.Errorf("publish to %s: %w", f.channel, err)
	}
	return nil
}

// Close 取消订阅并等待 listen 退出
func (f *RedisFanout) Close() error {
	err := f.pubsub.Close()
	<-f.done
	return err
}
