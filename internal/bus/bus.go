// Package bus carries the command/result rendezvous with the remote agent
// and the inbound telemetry stream over Redis pub/sub.
package bus

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/twinlab/nettwin/internal/config"
	"github.com/twinlab/nettwin/pkg/types"
)

// Pub/sub channel names shared with the agent.
const (
	ChannelCommands  = "nettwin:commands"
	ChannelTelemetry = "nettwin:telemetry"
	ChannelResults   = "nettwin:results"
)

// Bus is the Redis-backed message fabric between the engine and the agent.
// Commands flow engine to agent; telemetry and results flow agent to engine.
type Bus struct {
	client *redis.Client
	logger *slog.Logger

	stopCh chan struct{}
	wg     sync.WaitGroup
}

// New connects to Redis and verifies the connection.
func New(redisURL string, logger *slog.Logger) (*Bus, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis URL: %w", err)
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), config.RedisConnectTimeout)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("connecting to redis: %w", err)
	}

	logger.Info("connected to redis", "addr", opts.Addr)
	return &Bus{
		client: client,
		logger: logger.With("component", "bus"),
		stopCh: make(chan struct{}),
	}, nil
}

// Close stops all subscription loops and closes the connection.
func (b *Bus) Close() error {
	close(b.stopCh)
	b.wg.Wait()
	return b.client.Close()
}

// Client exposes the underlying connection for co-located consumers such as
// the snapshot cache.
func (b *Bus) Client() *redis.Client {
	return b.client
}

// PublishCommand sends a command message to the agent.
func (b *Bus) PublishCommand(ctx context.Context, msg types.CommandMessage) error {
	return b.publish(ctx, ChannelCommands, msg)
}

// PublishTelemetry sends a telemetry batch. Used by the simulated agent; the
// engine itself only subscribes.
func (b *Bus) PublishTelemetry(ctx context.Context, batch types.TelemetryBatch) error {
	return b.publish(ctx, ChannelTelemetry, batch)
}

// PublishResult sends a command result. Used by the simulated agent.
func (b *Bus) PublishResult(ctx context.Context, res types.CommandResult) error {
	return b.publish(ctx, ChannelResults, res)
}

func (b *Bus) publish(ctx context.Context, channel string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshaling %s message: %w", channel, err)
	}
	if err := b.client.Publish(ctx, channel, data).Err(); err != nil {
		return fmt.Errorf("publishing to %s: %w", channel, err)
	}
	return nil
}

// SubscribeTelemetry delivers each inbound telemetry batch to handle on a
// dedicated goroutine until Close.
func (b *Bus) SubscribeTelemetry(handle func(types.TelemetryBatch)) {
	subscribe(b, ChannelTelemetry, handle)
}

// SubscribeResults delivers each inbound command result to handle until
// Close.
func (b *Bus) SubscribeResults(handle func(types.CommandResult)) {
	subscribe(b, ChannelResults, handle)
}

// SubscribeCommands delivers each command message to handle until Close.
// Used by the simulated agent.
func (b *Bus) SubscribeCommands(handle func(types.CommandMessage)) {
	subscribe(b, ChannelCommands, handle)
}

// subscribe runs a receive loop for one channel. go-redis reconnects the
// pub/sub connection internally; on a receive error we back off briefly and
// resubscribe rather than giving up.
func subscribe[T any](b *Bus, channel string, handle func(T)) {
	b.wg.Add(1)
	go func() {
		defer b.wg.Done()

		for {
			select {
			case <-b.stopCh:
				return
			default:
			}

			sub := b.client.Subscribe(context.Background(), channel)
			receiveLoop(b, sub, channel, handle)
			sub.Close()

			select {
			case <-b.stopCh:
				return
			case <-time.After(time.Second):
			}
		}
	}()
}

func receiveLoop[T any](b *Bus, sub *redis.PubSub, channel string, handle func(T)) {
	ch := sub.Channel()
	for {
		select {
		case <-b.stopCh:
			return
		case msg, ok := <-ch:
			if !ok {
				b.logger.Warn("subscription closed, resubscribing", "channel", channel)
				return
			}
			var v T
			if err := json.Unmarshal([]byte(msg.Payload), &v); err != nil {
				b.logger.Error("dropping malformed message",
					"channel", channel,
					"error", err)
				continue
			}
			handle(v)
		}
	}
}
