package crdtpubsub

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/dman-os/townframe-sub000/crdtjson/crdtpatch"
)

// RedisPubSub implements the PubSub interface using Redis channels. Messages are
// PatchMessage envelopes encoded as JSON.
type RedisPubSub struct {
	// client is the Redis client.
	client *redis.Client
	// options contains the configuration options.
	options *Options
	// subscriptions maps topic to subscriber id to subscription.
	subscriptions map[string]map[string]*redisSubscription
	// mutex protects the subscriptions map.
	mutex sync.Mutex
	// closed indicates whether the PubSub has been closed.
	closed bool
}

// redisSubscription represents a subscription to a Redis channel. Each one owns its
// own Redis PubSub connection.
type redisSubscription struct {
	// pubsub is the Redis pubsub connection.
	pubsub *redis.PubSub
	// handler is the subscriber function.
	handler SubscriberFunc
	// ctx is the context for the subscription.
	ctx context.Context
	// cancel is the cancel function for the context.
	cancel context.CancelFunc
	// done is a channel that is closed when the subscription is done.
	done chan struct{}
}

// NewRedisPubSub creates a new RedisPubSub with the specified Redis client and options.
func NewRedisPubSub(client *redis.Client, options *Options) (*RedisPubSub, error) {
	if client == nil {
		return nil, fmt.Errorf("redis client cannot be nil")
	}

	if options == nil {
		options = NewOptions()
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &RedisPubSub{
		client:        client,
		options:       options,
		subscriptions: make(map[string]map[string]*redisSubscription),
	}, nil
}

// Publish publishes a patch to the specified topic.
func (ps *RedisPubSub) Publish(ctx context.Context, topic string, patch *crdtpatch.Patch, format EncodingFormat) error {
	data, format, err := encodePatch(ps.options, patch, format)
	if err != nil {
		return err
	}
	return ps.PublishRaw(ctx, topic, data, format)
}

// PublishRaw publishes raw data to the specified topic.
func (ps *RedisPubSub) PublishRaw(ctx context.Context, topic string, data []byte, format EncodingFormat) error {
	ps.mutex.Lock()
	closed := ps.closed
	ps.mutex.Unlock()
	if closed {
		return ErrClosed
	}

	if format == "" {
		format = ps.options.DefaultFormat
	}

	msgData, err := json.Marshal(newMessage(ps.options, topic, data, format))
	if err != nil {
		return fmt.Errorf("failed to encode message: %w", err)
	}

	return ps.client.Publish(ctx, topic, msgData).Err()
}

// Subscribe subscribes to the specified topic and calls the handler for each received message.
// It returns once Redis has confirmed the subscription.
func (ps *RedisPubSub) Subscribe(ctx context.Context, topic string, subscriberID string, handler SubscriberFunc) error {
	ps.mutex.Lock()
	defer ps.mutex.Unlock()

	if ps.closed {
		return ErrClosed
	}
	if _, ok := ps.subscriptions[topic][subscriberID]; ok {
		return fmt.Errorf("already subscribed to topic: %s with subscriberID: %s", topic, subscriberID)
	}

	pubsub := ps.client.Subscribe(ctx, topic)
	if _, err := pubsub.Receive(ctx); err != nil {
		pubsub.Close()
		return fmt.Errorf("failed to subscribe to topic: %w", err)
	}

	subCtx, cancel := context.WithCancel(context.Background())
	sub := &redisSubscription{
		pubsub:  pubsub,
		handler: handler,
		ctx:     subCtx,
		cancel:  cancel,
		done:    make(chan struct{}),
	}
	if ps.subscriptions[topic] == nil {
		ps.subscriptions[topic] = make(map[string]*redisSubscription)
	}
	ps.subscriptions[topic][subscriberID] = sub

	go sub.handleMessages()
	return nil
}

// handleMessages handles messages for a subscription.
func (sub *redisSubscription) handleMessages() {
	defer close(sub.done)

	ch := sub.pubsub.Channel()
	for {
		select {
		case <-sub.ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}

			var patchMsg PatchMessage
			if err := json.Unmarshal([]byte(msg.Payload), &patchMsg); err != nil {
				logger.Warnf("failed to decode message on %s: %v", msg.Channel, err)
				continue
			}

			if err := sub.handler(sub.ctx, msg.Channel, patchMsg.Payload, patchMsg.Format); err != nil {
				logger.Warnf("failed to handle message on %s: %v", msg.Channel, err)
			}
		}
	}
}

func (sub *redisSubscription) stop() error {
	sub.cancel()
	err := sub.pubsub.Close()
	<-sub.done
	return err
}

// Unsubscribe unsubscribes from the specified topic.
func (ps *RedisPubSub) Unsubscribe(ctx context.Context, topic string, subscriberID string) error {
	ps.mutex.Lock()
	if ps.closed {
		ps.mutex.Unlock()
		return ErrClosed
	}
	sub, ok := ps.subscriptions[topic][subscriberID]
	if !ok {
		ps.mutex.Unlock()
		return fmt.Errorf("not subscribed to topic: %s with subscriberID: %s", topic, subscriberID)
	}
	delete(ps.subscriptions[topic], subscriberID)
	if len(ps.subscriptions[topic]) == 0 {
		delete(ps.subscriptions, topic)
	}
	ps.mutex.Unlock()

	if err := sub.stop(); err != nil {
		return fmt.Errorf("failed to unsubscribe from topic: %w", err)
	}
	return nil
}

// Close closes all subscriptions. The Redis client belongs to the caller and stays open.
func (ps *RedisPubSub) Close() error {
	ps.mutex.Lock()
	if ps.closed {
		ps.mutex.Unlock()
		return nil
	}
	ps.closed = true
	subscriptions := ps.subscriptions
	ps.subscriptions = make(map[string]map[string]*redisSubscription)
	ps.mutex.Unlock()

	var firstErr error
	for _, subs := range subscriptions {
		for _, sub := range subs {
			if err := sub.stop(); err != nil && firstErr == nil {
				firstErr = fmt.Errorf("failed to close pubsub client: %w", err)
			}
		}
	}
	return firstErr
}
