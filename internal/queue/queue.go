package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/redis/go-redis/v9"
)

// Message types carried between processes.
const (
	TypeFrame        = "frame"
	TypeNotification = "notification"
)

// Message represents work to be processed.
type Message struct {
	Type string
	Body []byte
}

// Encode builds a message with a JSON body.
func Encode(typ string, v any) (Message, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return Message{}, fmt.Errorf("encode %s message: %w", typ, err)
	}
	return Message{Type: typ, Body: b}, nil
}

// Decode unmarshals the JSON body into v.
func (m Message) Decode(v any) error {
	return json.Unmarshal(m.Body, v)
}

// Queue is the abstraction over different backends.
type Queue interface {
	Publish(ctx context.Context, msg Message) error
	Consume(ctx context.Context) (<-chan Message, error)
}

// New selects a backend: "memory" or "redis".
func New(backend string, client *redis.Client, key string, size int) (Queue, error) {
	switch backend {
	case "", "memory":
		return NewInMemory(size), nil
	case "redis":
		if client == nil {
			return nil, errors.New("redis queue requires a client")
		}
		return NewRedisQueue(client, key), nil
	}
	return nil, fmt.Errorf("unknown queue backend %q", backend)
}

// InMemory is a minimal channel-backed queue for dev/testing.
type InMemory struct {
	ch chan Message
}

// NewInMemory creates a bounded in-memory queue.
func NewInMemory(size int) *InMemory {
	if size <= 0 {
		size = 64
	}
	return &InMemory{ch: make(chan Message, size)}
}

// Publish enqueues a message.
func (q *InMemory) Publish(ctx context.Context, msg Message) error {
	select {
	case q.ch <- msg:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Consume returns a channel for workers.
func (q *InMemory) Consume(ctx context.Context) (<-chan Message, error) {
	out := make(chan Message)
	go func() {
		defer close(out)
		for {
			select {
			case msg := <-q.ch:
				select {
				case out <- msg:
				case <-ctx.Done():
					return
				}
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

// RedisQueue is a Redis list used as a FIFO: LPUSH to publish, BRPOP to
// consume. Entries are JSON envelopes so any process can read them.
type RedisQueue struct {
	client *redis.Client
	key    string
}

func NewRedisQueue(client *redis.Client, key string) *RedisQueue {
	if key == "" {
		key = "attendance:frames"
	}
	return &RedisQueue{client: client, key: key}
}

func (q *RedisQueue) Publish(ctx context.Context, msg Message) error {
	entry, err := serialize(msg)
	if err != nil {
		return err
	}
	return q.client.LPush(ctx, q.key, entry).Err()
}

// Consume streams messages until ctx is done. Malformed entries are logged
// and dropped.
func (q *RedisQueue) Consume(ctx context.Context) (<-chan Message, error) {
	out := make(chan Message)
	go func() {
		defer close(out)
		for {
			res, err := q.client.BRPop(ctx, 5*time.Second, q.key).Result()
			switch {
			case ctx.Err() != nil:
				return
			case errors.Is(err, redis.Nil):
				continue
			case err != nil:
				log.Printf("queue %s: brpop: %v", q.key, err)
				time.Sleep(time.Second)
				continue
			}
			msg, err := deserialize(res[1])
			if err != nil {
				log.Printf("queue %s: dropping entry: %v", q.key, err)
				continue
			}
			select {
			case out <- msg:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

type envelope struct {
	Type string          `json:"type"`
	Body json.RawMessage `json:"body"`
}

func serialize(msg Message) (string, error) {
	if !json.Valid(msg.Body) {
		return "", fmt.Errorf("queue: %s body is not JSON", msg.Type)
	}
	raw, err := json.Marshal(envelope{Type: msg.Type, Body: msg.Body})
	if err != nil {
		return "", err
	}
	return string(raw), nil
}

func deserialize(s string) (Message, error) {
	var env envelope
	if err := json.Unmarshal([]byte(s), &env); err != nil {
		return Message{}, fmt.Errorf("queue: bad envelope: %w", err)
	}
	if env.Type == "" {
		return Message{}, errors.New("queue: envelope without type")
	}
	return Message{Type: env.Type, Body: []byte(env.Body)}, nil
}
