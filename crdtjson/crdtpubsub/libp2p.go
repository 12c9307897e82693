package crdtpubsub

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/libp2p/go-libp2p"
	"github.com/libp2p/go-libp2p/core/host"
	"github.com/libp2p/go-libp2p/core/peer"
	pubsub "github.com/libp2p/go-libp2p-pubsub"
	"github.com/multiformats/go-multiaddr"

	"github.com/dman-os/townframe-sub000/crdtjson/crdtpatch"
)

// LibP2POptions configures a LibP2PPubSub.
type LibP2POptions struct {
	// ListenAddrs are the multiaddrs the owned host listens on. Ignored when a host is supplied.
	ListenAddrs []string
	// BootstrapPeers are full p2p multiaddrs (including /p2p/<id>) to connect to on start.
	BootstrapPeers []string
}

// LibP2PPubSub implements the PubSub interface over libp2p gossipsub.
type LibP2PPubSub struct {
	options *Options
	host    host.Host
	// ownsHost is true when the host was created by NewLibP2PPubSub.
	ownsHost bool
	ps       *pubsub.PubSub

	mutex         sync.Mutex
	topics        map[string]*pubsub.Topic
	subscriptions map[string]map[string]*libp2pSubscription
	closed        bool
}

type libp2pSubscription struct {
	sub     *pubsub.Subscription
	handler SubscriberFunc
	ctx     context.Context
	cancel  context.CancelFunc
	done    chan struct{}
}

// NewLibP2PPubSub creates a gossipsub PubSub on h. When h is nil a host is created from
// p2pOptions.ListenAddrs and closed together with the PubSub.
func NewLibP2PPubSub(ctx context.Context, h host.Host, options *Options, p2pOptions *LibP2POptions) (*LibP2PPubSub, error) {
	if options == nil {
		options = NewOptions()
	}
	if p2pOptions == nil {
		p2pOptions = &LibP2POptions{}
	}

	ownsHost := false
	if h == nil {
		listen := p2pOptions.ListenAddrs
		if len(listen) == 0 {
			listen = []string{"/ip4/127.0.0.1/tcp/0"}
		}
		var err error
		h, err = libp2p.New(
			libp2p.ListenAddrStrings(listen...),
			libp2p.DisableRelay(),
		)
		if err != nil {
			return nil, fmt.Errorf("failed to create libp2p host: %w", err)
		}
		ownsHost = true
		logger.Infof("libp2p host created. ID: %s", h.ID())
	}

	ps, err := pubsub.NewGossipSub(ctx, h)
	if err != nil {
		if ownsHost {
			h.Close()
		}
		return nil, fmt.Errorf("failed to create gossipsub: %w", err)
	}

	for _, addr := range p2pOptions.BootstrapPeers {
		if err := connectPeer(ctx, h, addr); err != nil {
			logger.Warnf("failed to connect to bootstrap peer %s: %v", addr, err)
		}
	}

	return &LibP2PPubSub{
		options:       options,
		host:          h,
		ownsHost:      ownsHost,
		ps:            ps,
		topics:        make(map[string]*pubsub.Topic),
		subscriptions: make(map[string]map[string]*libp2pSubscription),
	}, nil
}

func connectPeer(ctx context.Context, h host.Host, addr string) error {
	ma, err := multiaddr.NewMultiaddr(addr)
	if err != nil {
		return fmt.Errorf("invalid multiaddr: %w", err)
	}
	info, err := peer.AddrInfoFromP2pAddr(ma)
	if err != nil {
		return fmt.Errorf("invalid peer address: %w", err)
	}
	if err := h.Connect(ctx, *info); err != nil {
		return err
	}
	logger.Infof("connected to peer %s", info.ID)
	return nil
}

// Host returns the underlying libp2p host.
func (ps *LibP2PPubSub) Host() host.Host {
	return ps.host
}

// Addrs returns the full p2p multiaddrs of the host, suitable as bootstrap peers.
func (ps *LibP2PPubSub) Addrs() []string {
	info := peer.AddrInfo{ID: ps.host.ID(), Addrs: ps.host.Addrs()}
	addrs, err := peer.AddrInfoToP2pAddrs(&info)
	if err != nil {
		return nil
	}
	out := make([]string, 0, len(addrs))
	for _, a := range addrs {
		out = append(out, a.String())
	}
	return out
}

// topic returns the joined topic, joining it on first use. Callers hold the mutex.
func (ps *LibP2PPubSub) topic(name string) (*pubsub.Topic, error) {
	if t, ok := ps.topics[name]; ok {
		return t, nil
	}
	t, err := ps.ps.Join(name)
	if err != nil {
		return nil, fmt.Errorf("failed to join topic %s: %w", name, err)
	}
	ps.topics[name] = t
	return t, nil
}

// Publish publishes a patch to the specified topic.
func (ps *LibP2PPubSub) Publish(ctx context.Context, topic string, patch *crdtpatch.Patch, format EncodingFormat) error {
	data, format, err := encodePatch(ps.options, patch, format)
	if err != nil {
		return err
	}
	return ps.PublishRaw(ctx, topic, data, format)
}

// PublishRaw publishes raw data to the specified topic.
func (ps *LibP2PPubSub) PublishRaw(ctx context.Context, topic string, data []byte, format EncodingFormat) error {
	if format == "" {
		format = ps.options.DefaultFormat
	}
	msgData, err := json.Marshal(newMessage(ps.options, topic, data, format))
	if err != nil {
		return fmt.Errorf("failed to encode message: %w", err)
	}

	ps.mutex.Lock()
	if ps.closed {
		ps.mutex.Unlock()
		return ErrClosed
	}
	t, err := ps.topic(topic)
	ps.mutex.Unlock()
	if err != nil {
		return err
	}

	return t.Publish(ctx, msgData)
}

// Subscribe subscribes to the specified topic and calls the handler for each received message.
func (ps *LibP2PPubSub) Subscribe(ctx context.Context, topic string, subscriberID string, handler SubscriberFunc) error {
	ps.mutex.Lock()
	defer ps.mutex.Unlock()

	if ps.closed {
		return ErrClosed
	}
	if _, ok := ps.subscriptions[topic][subscriberID]; ok {
		return fmt.Errorf("already subscribed to topic: %s with subscriberID: %s", topic, subscriberID)
	}

	t, err := ps.topic(topic)
	if err != nil {
		return err
	}
	s, err := t.Subscribe()
	if err != nil {
		return fmt.Errorf("failed to subscribe to topic: %w", err)
	}

	subCtx, cancel := context.WithCancel(context.Background())
	sub := &libp2pSubscription{
		sub:     s,
		handler: handler,
		ctx:     subCtx,
		cancel:  cancel,
		done:    make(chan struct{}),
	}
	if ps.subscriptions[topic] == nil {
		ps.subscriptions[topic] = make(map[string]*libp2pSubscription)
	}
	ps.subscriptions[topic][subscriberID] = sub

	go sub.handleMessages()
	return nil
}

func (sub *libp2pSubscription) handleMessages() {
	defer close(sub.done)
	for {
		msg, err := sub.sub.Next(sub.ctx)
		if err != nil {
			// cancelled or the subscription was closed
			return
		}

		var patchMsg PatchMessage
		if err := json.Unmarshal(msg.Data, &patchMsg); err != nil {
			logger.Warnw("failed to decode message", "topic", sub.sub.Topic(), "from", msg.ReceivedFrom, "error", err)
			continue
		}

		if err := sub.handler(sub.ctx, sub.sub.Topic(), patchMsg.Payload, patchMsg.Format); err != nil {
			logger.Warnf("failed to handle message on %s: %v", sub.sub.Topic(), err)
		}
	}
}

func (sub *libp2pSubscription) stop() {
	sub.cancel()
	sub.sub.Cancel()
	<-sub.done
}

// Unsubscribe unsubscribes from the specified topic.
func (ps *LibP2PPubSub) Unsubscribe(ctx context.Context, topic string, subscriberID string) error {
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

	sub.stop()
	return nil
}

// Close cancels all subscriptions and leaves every joined topic. An owned host is closed too.
func (ps *LibP2PPubSub) Close() error {
	ps.mutex.Lock()
	if ps.closed {
		ps.mutex.Unlock()
		return nil
	}
	ps.closed = true
	subscriptions := ps.subscriptions
	topics := ps.topics
	ps.subscriptions = nil
	ps.topics = nil
	ps.mutex.Unlock()

	for _, subs := range subscriptions {
		for _, sub := range subs {
			sub.stop()
		}
	}
	for name, t := range topics {
		if err := t.Close(); err != nil {
			logger.Debugf("failed to close topic %s: %v", name, err)
		}
	}
	if ps.ownsHost {
		return ps.host.Close()
	}
	return nil
}
