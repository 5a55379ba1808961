package queue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

// streamMaxLen caps each run's stream. A run appends far fewer entries, so
// trimming only guards against a runaway producer.
const streamMaxLen = 1000

// Publisher appends transcript events to a run's stream.
type Publisher interface {
	Publish(ctx context.Context, ev TranscriptEvent) error
	Close() error
}

type redisPublisher struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
	logger *slog.Logger
}

// NewRedisPublisher returns a Publisher writing to "<prefix>:<run id>" streams.
// Streams expire ttl after their last write.
func NewRedisPublisher(client *redis.Client, prefix string, ttl time.Duration, logger *slog.Logger) Publisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &redisPublisher{
		client: client,
		prefix: prefix,
		ttl:    ttl,
		logger: logger,
	}
}

func (p *redisPublisher) Publish(ctx context.Context, ev TranscriptEvent) error {
	stream := StreamName(p.prefix, ev.RunID)

	if err := p.client.XAdd(ctx, &redis.XAddArgs{
		Stream: stream,
		MaxLen: streamMaxLen,
		Approx: true,
		Values: eventValues(ev),
	}).Err(); err != nil {
		return fmt.Errorf("publish transcript event: %w", err)
	}

	if p.ttl > 0 {
		if err := p.client.Expire(ctx, stream, p.ttl).Err(); err != nil {
			p.logger.WarnContext(ctx, "failed to set transcript stream ttl", "stream", stream, "error", err)
		}
	}

	p.logger.DebugContext(ctx, "published transcript event",
		"stream", stream,
		"kind", ev.Kind,
		"sequence", ev.Sequence)
	return nil
}

func (p *redisPublisher) Close() error {
	return p.client.Close()
}

// Reader replays a run's transcript from a given entry ID.
type Reader interface {
	// Read blocks up to block for entries after lastID. It returns no events
	// and no error when the wait times out.
	Read(ctx context.Context, runID, lastID string, block time.Duration) ([]TranscriptEvent, error)
}

type redisReader struct {
	client *redis.Client
	prefix string
}

func NewRedisReader(client *redis.Client, prefix string) Reader {
	return &redisReader{client: client, prefix: prefix}
}

func (r *redisReader) Read(ctx context.Context, runID, lastID string, block time.Duration) ([]TranscriptEvent, error) {
	if lastID == "" {
		lastID = "0"
	}
	stream := StreamName(r.prefix, runID)

	res, err := r.client.XRead(ctx, &redis.XReadArgs{
		Streams: []string{stream, lastID},
		Block:   block,
		Count:   100,
	}).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading transcript stream: %w", err)
	}

	var events []TranscriptEvent
	// XRead supports multiple streams, but we only read one so this outer loop only runs once.
	for _, streamRes := range res {
		for _, msg := range streamRes.Messages {
			ev, err := ParseEvent(msg)
			if err != nil {
				slog.WarnContext(ctx, "skipping malformed transcript entry",
					"error", err,
					"stream", stream)
				// Still advance past it.
				events = append(events, TranscriptEvent{ID: msg.ID})
				continue
			}
			events = append(events, ev)
		}
	}
	return events, nil
}
