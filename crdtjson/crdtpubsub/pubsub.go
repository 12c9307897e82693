package crdtpubsub

import (
	"context"
	"errors"
	"fmt"

	logging "github.com/ipfs/go-log/v2"

	"github.com/dman-os/townframe-sub000/crdtjson/crdtpatch"
)

var logger = logging.Logger("crdtpubsub")

// ErrClosed is returned by operations on a closed PubSub.
var ErrClosed = errors.New("pubsub is closed")

// EncodingFormat represents the format used to encode CRDT patches.
type EncodingFormat string

const (
	// EncodingFormatJSON represents JSON encoding.
	EncodingFormatJSON EncodingFormat = "json"
	// EncodingFormatBase64 represents base64 over JSON, for transports that only carry text.
	EncodingFormatBase64 EncodingFormat = "base64"
)

// PatchMessage represents a message containing a CRDT patch.
type PatchMessage struct {
	// Topic is the topic the message was published to.
	Topic string `json:"topic"`
	// Payload is the encoded patch data.
	Payload []byte `json:"payload"`
	// Format is the encoding format used for the payload.
	Format EncodingFormat `json:"format"`
	// Metadata is optional metadata associated with the message.
	Metadata map[string]string `json:"metadata,omitempty"`
}

// SubscriberFunc is a function that handles a received patch message with raw data.
type SubscriberFunc func(ctx context.Context, topic string, data []byte, format EncodingFormat) error

// Publisher defines the interface for publishing CRDT patches.
type Publisher interface {
	// Publish publishes a patch to the specified topic.
	Publish(ctx context.Context, topic string, patch *crdtpatch.Patch, format EncodingFormat) error
	// PublishRaw publishes raw data to the specified topic.
	PublishRaw(ctx context.Context, topic string, data []byte, format EncodingFormat) error
	// Close closes the publisher.
	Close() error
}

// Subscriber defines the interface for subscribing to CRDT patches.
type Subscriber interface {
	// Subscribe subscribes to the specified topic and calls the handler for each received message.
	Subscribe(ctx context.Context, topic string, subscriberID string, handler SubscriberFunc) error
	// Unsubscribe unsubscribes from the specified topic.
	Unsubscribe(ctx context.Context, topic string, subscriberID string) error
	// Close closes the subscriber.
	Close() error
}

// PubSub combines the Publisher and Subscriber interfaces.
type PubSub interface {
	Publisher
	Subscriber
}

// Options represents configuration options for a PubSub implementation.
type Options struct {
	// DefaultFormat is the default encoding format to use.
	DefaultFormat EncodingFormat
	// ClientID identifies this replica in message metadata.
	ClientID string
}

// NewOptions creates a new Options with default values.
func NewOptions() *Options {
	return &Options{
		DefaultFormat: EncodingFormatJSON,
	}
}

// newMessage builds the message for data published on topic.
func newMessage(options *Options, topic string, data []byte, format EncodingFormat) PatchMessage {
	metadata := map[string]string{
		"format": string(format),
	}
	if options.ClientID != "" {
		metadata["client"] = options.ClientID
	}
	return PatchMessage{
		Topic:    topic,
		Payload:  data,
		Format:   format,
		Metadata: metadata,
	}
}

// encodePatch encodes patch in format, falling back to the default format.
func encodePatch(options *Options, patch *crdtpatch.Patch, format EncodingFormat) ([]byte, EncodingFormat, error) {
	if format == "" {
		format = options.DefaultFormat
	}
	encoder, err := GetEncoderDecoder(format)
	if err != nil {
		return nil, format, err
	}
	data, err := encoder.Encode(patch)
	if err != nil {
		return nil, format, fmt.Errorf("failed to encode patch: %w", err)
	}
	return data, format, nil
}

// DecodePatch decodes a payload received by a SubscriberFunc.
func DecodePatch(data []byte, format EncodingFormat) (*crdtpatch.Patch, error) {
	decoder, err := GetEncoderDecoder(format)
	if err != nil {
		return nil, err
	}
	return decoder.Decode(data)
}
