package mq

import (
	"context"
	"errors"
	"fmt"

	"github.com/cesilk/comfy-nodes/internal/config"
)

var (
	ErrTopicNotExists = errors.New("topic does not exist")
	ErrQueueFull      = errors.New("queue is full")
	ErrQueueClosed    = errors.New("queue closed")
	ErrTopicClosed    = errors.New("topic closed")
	ErrUnknownType    = errors.New("unknown mq type")
)

// Message is a received message. Payload is the raw bytes that were published.
type Message interface {
	Payload() []byte
}

type MQ interface {
	Publish(ctx context.Context, topic string, message []byte) error
	Receive(ctx context.Context, topic string) (Message, error)
	Ack(topic string, message Message) error
	CloseTopic(topic string) error
	Close() error
}

func NewMQ(cfg *config.Config) (MQ, error) {
	if cfg == nil || cfg.MQ == nil {
		return NewInMemoryMQ(config.DefaultQueueSize)
	}

	switch cfg.MQ.Type {
	case "", config.MQTypeInMemory:
		maxSize := cfg.MQ.MaxSize
		if maxSize <= 0 {
			maxSize = config.DefaultQueueSize
		}
		return NewInMemoryMQ(maxSize)
	case config.MQTypePulsar:
		if cfg.Pulsar == nil || cfg.Pulsar.URL == "" {
			return nil, errors.New("pulsar.url is required when mq.type is pulsar")
		}
		return NewPulsarMQ(cfg.Pulsar)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownType, cfg.MQ.Type)
	}
}
