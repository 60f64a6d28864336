package bridge

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/orchestra-mcp/socketclient/config"
	"github.com/orchestra-mcp/socketclient/src/types"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// relayed is the Redis payload: the envelope plus the publishing instance,
// so an instance can skip its own broadcasts.
type relayed struct {
	Origin   string         `json:"origin"`
	Envelope types.Envelope `json:"envelope"`
}

// topicChange is a pending SUBSCRIBE or UNSUBSCRIBE for one hub channel.
type topicChange struct {
	channel string
	join    bool
}

// RedisBridge relays hub channels through Redis pub/sub, one Redis channel
// per hub channel. Topics are subscribed while the channel has local members.
type RedisBridge struct {
	client *redis.Client
	prefix string
	origin string
	hub    BroadcastTarget
	logger zerolog.Logger

	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	changes chan topicChange

	mu     sync.RWMutex
	joined map[string]struct{}
	active bool
}

// NewRedisBridge creates a bridge. Nothing is dialed until Start.
func NewRedisBridge(cfg config.RedisConfig, hub BroadcastTarget, logger zerolog.Logger) *RedisBridge {
	ctx, cancel := context.WithCancel(context.Background())
	return &RedisBridge{
		client: redis.NewClient(&redis.Options{
			Addr:     cfg.Addr,
			Password: cfg.Password,
			DB:       cfg.DB,
		}),
		prefix:  cfg.Prefix,
		origin:  uuid.New().String(),
		hub:     hub,
		logger:  logger.With().Str("component", "redis-bridge").Logger(),
		ctx:     ctx,
		cancel:  cancel,
		changes: make(chan topicChange, 64),
		joined:  make(map[string]struct{}),
	}
}

func (b *RedisBridge) topic(channel string) string {
	return b.prefix + channel
}

// Start pings Redis, subscribes to every channel joined so far and starts
// relaying.
func (b *RedisBridge) Start() error {
	if err := b.client.Ping(b.ctx).Err(); err != nil {
		return fmt.Errorf("redis ping: %w", err)
	}

	b.mu.Lock()
	b.active = true
	topics := make([]string, 0, len(b.joined))
	for ch := range b.joined {
		topics = append(topics, b.topic(ch))
	}
	b.mu.Unlock()

	sub := b.client.Subscribe(b.ctx, topics...)
	if len(topics) > 0 {
		if _, err := sub.Receive(b.ctx); err != nil {
			b.mu.Lock()
			b.active = false
			b.mu.Unlock()
			sub.Close()
			return fmt.Errorf("redis subscribe: %w", err)
		}
	}

	b.wg.Add(1)
	go b.run(sub)

	b.logger.Info().
		Str("origin", b.origin).
		Int("channels", len(topics)).
		Msg("redis bridge started")
	return nil
}

// Join starts receiving channel from other instances.
func (b *RedisBridge) Join(channel string) {
	b.mu.Lock()
	if _, ok := b.joined[channel]; ok {
		b.mu.Unlock()
		return
	}
	b.joined[channel] = struct{}{}
	active := b.active
	b.mu.Unlock()

	if active {
		b.queue(topicChange{channel: channel, join: true})
	}
}

// Leave stops receiving channel.
func (b *RedisBridge) Leave(channel string) {
	b.mu.Lock()
	if _, ok := b.joined[channel]; !ok {
		b.mu.Unlock()
		return
	}
	delete(b.joined, channel)
	active := b.active
	b.mu.Unlock()

	if active {
		b.queue(topicChange{channel: channel})
	}
}

func (b *RedisBridge) queue(c topicChange) {
	select {
	case b.changes <- c:
	case <-b.ctx.Done():
	}
}

// Joined returns the channels currently relayed, sorted.
func (b *RedisBridge) Joined() []string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]string, 0, len(b.joined))
	for ch := range b.joined {
		out = append(out, ch)
	}
	sort.Strings(out)
	return out
}

// Publish relays env to the other instances that joined env.Channel.
func (b *RedisBridge) Publish(env types.Envelope) error {
	if env.Channel == "" {
		return ErrNoChannel
	}
	data, err := b.encode(env)
	if err != nil {
		return err
	}
	if err := b.client.Publish(b.ctx, b.topic(env.Channel), data).Err(); err != nil {
		return fmt.Errorf("redis publish %s: %w", env.Channel, err)
	}
	return nil
}

// Stop ends relaying and closes the Redis client.
func (b *RedisBridge) Stop() error {
	b.mu.Lock()
	b.active = false
	b.mu.Unlock()

	b.cancel()
	b.wg.Wait()
	return b.client.Close()
}

// Available reports whether the bridge is relaying.
func (b *RedisBridge) Available() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.active
}

func (b *RedisBridge) encode(env types.Envelope) ([]byte, error) {
	return json.Marshal(relayed{Origin: b.origin, Envelope: env})
}

// run owns the subscription: it applies membership changes and delivers
// incoming messages.
func (b *RedisBridge) run(sub *redis.PubSub) {
	defer b.wg.Done()
	defer sub.Close()

	msgs := sub.Channel()
	for {
		select {
		case c := <-b.changes:
			b.apply(sub, c)
		case msg, ok := <-msgs:
			if !ok {
				return
			}
			b.deliver(msg.Channel, msg.Payload)
		case <-b.ctx.Done():
			return
		}
	}
}

func (b *RedisBridge) apply(sub *redis.PubSub, c topicChange) {
	var err error
	if c.join {
		err = sub.Subscribe(b.ctx, b.topic(c.channel))
	} else {
		err = sub.Unsubscribe(b.ctx, b.topic(c.channel))
	}
	if err != nil {
		b.logger.Error().Err(err).Str("channel", c.channel).Bool("join", c.join).Msg("redis subscription change failed")
	}
}

// deliver hands a relayed envelope to the hub. Own broadcasts, envelopes
// whose channel does not match the topic and channels no longer joined are
// dropped.
func (b *RedisBridge) deliver(topic, payload string) {
	var r relayed
	if err := json.Unmarshal([]byte(payload), &r); err != nil {
		b.logger.Error().Err(err).Str("topic", topic).Msg("undecodable relay payload")
		return
	}
	if r.Origin == b.origin {
		return
	}
	channel, ok := strings.CutPrefix(topic, b.prefix)
	if !ok || channel != r.Envelope.Channel {
		b.logger.Warn().Str("topic", topic).Str("channel", r.Envelope.Channel).Msg("relay topic mismatch")
		return
	}

	b.mu.RLock()
	_, joined := b.joined[channel]
	b.mu.RUnlock()
	if !joined {
		return
	}

	b.logger.Debug().Str("origin", r.Origin).Str("channel", channel).Msg("relaying envelope")
	b.hub.BroadcastToLocal(r.Envelope)
}
