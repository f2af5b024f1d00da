package mq

import (
	"context"
	"sync"
)

type inMemoryMessage []byte

func (m inMemoryMessage) Payload() []byte {
	return m
}

type InMemoryMQ struct {
	maxSize   int
	topics    sync.Map
	closeCh   chan struct{}
	closeOnce sync.Once
}

func NewInMemoryMQ(maxSize int) (*InMemoryMQ, error) {
	return &InMemoryMQ{
		maxSize: maxSize,
		closeCh: make(chan struct{}),
	}, nil
}

// memoryTopic guards ch so CloseTopic never closes it under a Publish.
type memoryTopic struct {
	mu     sync.RWMutex
	ch     chan []byte
	closed bool
}

func (t *memoryTopic) send(message []byte) error {
	t.mu.RLock()
	defer t.mu.RUnlock()

	if t.closed {
		return ErrTopicClosed
	}

	select {
	case t.ch <- message:
		return nil
	default:
		return ErrQueueFull
	}
}

func (t *memoryTopic) close() {
	t.mu.Lock()
	defer t.mu.Unlock()

	if !t.closed {
		t.closed = true
		close(t.ch)
	}
}

func (q *InMemoryMQ) topic(name string) *memoryTopic {
	if value, ok := q.topics.Load(name); ok {
		return value.(*memoryTopic)
	}
	value, _ := q.topics.LoadOrStore(name, &memoryTopic{ch: make(chan []byte, q.maxSize)})
	return value.(*memoryTopic)
}

func (q *InMemoryMQ) Publish(ctx context.Context, topic string, message []byte) error {
	t := q.topic(topic)

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-q.closeCh:
		return ErrQueueClosed
	default:
	}

	return t.send(message)
}

func (q *InMemoryMQ) Receive(ctx context.Context, topic string) (Message, error) {
	ch := q.topic(topic).ch

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-q.closeCh:
		return nil, ErrQueueClosed
	case data, ok := <-ch:
		if !ok {
			return nil, ErrTopicClosed
		}
		return inMemoryMessage(data), nil
	}
}

// Ack is a no-op; a message leaves the in-memory queue when it is received.
func (q *InMemoryMQ) Ack(topic string, message Message) error {
	return nil
}

// CloseTopic wakes pending receivers with ErrTopicClosed. A later Publish or
// Receive on the same name starts a fresh topic.
func (q *InMemoryMQ) CloseTopic(topic string) error {
	value, ok := q.topics.LoadAndDelete(topic)
	if !ok {
		return ErrTopicNotExists
	}

	value.(*memoryTopic).close()
	return nil
}

func (q *InMemoryMQ) Close() error {
	q.closeOnce.Do(func() {
		close(q.closeCh)
	})
	return nil
}
