package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	sinkBuffer  = 256
	sinkTimeout = 5 * time.Second
)

// publisher is the part of the redis client the sink uses.
type publisher interface {
	Publish(ctx context.Context, channel string, message interface{}) *redis.IntCmd
	Close() error
}

// redisSink publishes every event record as JSON on a redis channel. The
// publish happens on its own goroutine; records are dropped when the
// buffer is full.
type redisSink struct {
	client  publisher
	channel string
	queue   chan eventRecord
	wg      sync.WaitGroup
	once    sync.Once
}

func newRedisSink(addr, channel string) (*redisSink, error) {
	if addr == "" {
		return nil, errors.New("redis address is empty")
	}
	if channel == "" {
		channel = "dlbridge:events"
	}
	client := redis.NewClient(&redis.Options{Addr: addr})
	ctx, cancel := context.WithTimeout(context.Background(), sinkTimeout)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("connect redis %s: %w", addr, err)
	}
	log().Infof("publishing events to redis %s channel %s", addr, channel)
	return startSink(client, channel), nil
}

func startSink(client publisher, channel string) *redisSink {
	r := &redisSink{
		client:  client,
		channel: channel,
		queue:   make(chan eventRecord, sinkBuffer),
	}
	r.wg.Add(1)
	go r.loop()
	return r
}

// Publish never blocks.
func (r *redisSink) Publish(rec eventRecord) {
	select {
	case r.queue <- rec:
	default:
		log().Warnf("redis sink full, event %s dropped", rec.ID)
	}
}

func (r *redisSink) loop() {
	defer r.wg.Done()
	for rec := range r.queue {
		b, err := json.Marshal(rec)
		if err != nil {
			log().Warnf("redis sink: %s", err)
			continue
		}
		ctx, cancel := context.WithTimeout(context.Background(), sinkTimeout)
		if err := r.client.Publish(ctx, r.channel, b).Err(); err != nil {
			log().Warnf("redis publish: %s", err)
		}
		cancel()
	}
}

// Close flushes the queued records and closes the client.
func (r *redisSink) Close() {
	r.once.Do(func() {
		close(r.queue)
		r.wg.Wait()
		if err := r.client.Close(); err != nil {
			log().Debugf("redis close: %s", err)
		}
	})
}
