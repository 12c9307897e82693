package crdtpubsub

import (
	"context"
	"fmt"
	"sync"

	"github.com/dman-os/townframe-sub000/crdtjson/crdtpatch"
)

// MemoryPubSub implements the PubSub interface in process. Every subscriber gets its
// own queue so one slow handler does not block the others, and messages to one
// subscriber are handled in publish order.
type MemoryPubSub struct {
	// options contains the configuration options.
	options *Options
	// subscriptions maps topic to subscriber id to subscription.
	subscriptions map[string]map[string]*memorySubscription
	// mutex protects the subscriptions map.
	mutex sync.RWMutex
	// closed indicates whether the PubSub has been closed.
	closed bool
}

// memorySubscription represents a subscription to an in-memory topic.
type memorySubscription struct {
	// handler is the subscriber function.
	handler SubscriberFunc
	// queue carries messages to the delivery goroutine.
	queue chan PatchMessage
	// ctx is the context for the subscription.
	ctx context.Context
	// cancel is the cancel function for the context.
	cancel context.CancelFunc
	// done is closed when the delivery goroutine exits.
	done chan struct{}
}

const memoryQueueSize = 256

// NewMemoryPubSub creates a new MemoryPubSub with the specified options.
func NewMemoryPubSub(options *Options) (*MemoryPubSub, error) {
	if options == nil {
		options = NewOptions()
	}

	return &MemoryPubSub{
		options:       options,
		subscriptions: make(map[string]map[string]*memorySubscription),
	}, nil
}

// Publish publishes a patch to the specified topic.
func (ps *MemoryPubSub) Publish(ctx context.Context, topic string, patch *crdtpatch.Patch, format EncodingFormat) error {
	data, format, err := encodePatch(ps.options, patch, format)
	if err != nil {
		return err
	}
	return ps.PublishRaw(ctx, topic, data, format)
}

// PublishRaw publishes raw data to the specified topic.
func (ps *MemoryPubSub) PublishRaw(ctx context.Context, topic string, data []byte, format EncodingFormat) error {
	if format == "" {
		format = ps.options.DefaultFormat
	}
	msg := newMessage(ps.options, topic, data, format)

	ps.mutex.RLock()
	defer ps.mutex.RUnlock()

	if ps.closed {
		return ErrClosed
	}

	for _, sub := range ps.subscriptions[topic] {
		select {
		case sub.queue <- msg:
		case <-sub.ctx.Done():
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

func (sub *memorySubscription) run() {
	defer close(sub.done)
	for {
		select {
		case <-sub.ctx.Done():
			return
		case msg := <-sub.queue:
			if err := sub.handler(sub.ctx, msg.Topic, msg.Payload, msg.Format); err != nil {
				logger.Warnf("failed to handle message on %s: %v", msg.Topic, err)
			}
		}
	}
}

// Subscribe subscribes to the specified topic and calls the handler for each received message.
func (ps *MemoryPubSub) Subscribe(ctx context.Context, topic string, subscriberID string, handler SubscriberFunc) error {
	ps.mutex.Lock()
	defer ps.mutex.Unlock()

	if ps.closed {
		return ErrClosed
	}
	if _, ok := ps.subscriptions[topic][subscriberID]; ok {
		return fmt.Errorf("already subscribed to topic: %s with subscriberID: %s", topic, subscriberID)
	}

	subCtx, cancel := context.WithCancel(context.Background())
	sub := &memorySubscription{
		handler: handler,
		queue:   make(chan PatchMessage, memoryQueueSize),
		ctx:     subCtx,
		cancel:  cancel,
		done:    make(chan struct{}),
	}
	if ps.subscriptions[topic] == nil {
		ps.subscriptions[topic] = make(map[string]*memorySubscription)
	}
	ps.subscriptions[topic][subscriberID] = sub

	go sub.run()
	return nil
}

// Unsubscribe unsubscribes from the specified topic. It returns after any in-flight
// delivery to the subscriber has finished.
func (ps *MemoryPubSub) Unsubscribe(ctx context.Context, topic string, subscriberID string) error {
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

	sub.cancel()
	<-sub.done
	return nil
}

// Close closes the PubSub.
func (ps *MemoryPubSub) Close() error {
	ps.mutex.Lock()
	if ps.closed {
		ps.mutex.Unlock()
		return nil
	}
	ps.closed = true
	subscriptions := ps.subscriptions
	ps.subscriptions = make(map[string]map[string]*memorySubscription)
	ps.mutex.Unlock()

	for _, subs := range subscriptions {
		for _, sub := range subs {
			sub.cancel()
			<-sub.done
		}
	}
	return nil
}
