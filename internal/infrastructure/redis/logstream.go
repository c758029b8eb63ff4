package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/hydrajobs/hydra/internal/domain"
)

const (
	logHistoryCap = 400
	logHistoryTTL = time.Hour
)

// Publish appends the chunk to the capped history list and fans it out
// to live subscribers via pub/sub.
func (s *Store) Publish(ctx context.Context, chunk domain.LogChunk) error {
	payload, err := json.Marshal(chunk)
	if err != nil {
		return fmt.Errorf("marshal log chunk: %w", err)
	}

	history := logHistoryKey(chunk.Domain, chunk.RunID)
	pipe := s.client.Pipeline()
	pipe.RPush(ctx, history, payload)
	pipe.LTrim(ctx, history, -logHistoryCap, -1)
	pipe.Expire(ctx, history, logHistoryTTL)
	pipe.Publish(ctx, logStreamKey(chunk.Domain, chunk.RunID), payload)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("publish log chunk: %w", err)
	}
	return nil
}

func (s *Store) History(ctx context.Context, dom, runID string, limit int64) ([]string, error) {
	if limit <= 0 {
		limit = 200
	}
	lines, err := s.client.LRange(ctx, logHistoryKey(dom, runID), -limit, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("log history: %w", err)
	}
	return lines, nil
}

// Subscribe streams raw chunk JSON until cancel is called or the context
// ends.
func (s *Store) Subscribe(ctx context.Context, dom, runID string) (<-chan string, func(), error) {
	sub := s.client.Subscribe(ctx, logStreamKey(dom, runID))
	// Force the subscription onto the wire before we report success.
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return nil, nil, fmt.Errorf("subscribe log stream: %w", err)
	}

	out := make(chan string, 64)
	go func() {
		defer close(out)
		for msg := range sub.Channel() {
			select {
			case out <- msg.Payload:
			case <-ctx.Done():
				return
			}
		}
	}()

	cancel := func() { _ = sub.Close() }
	return out, cancel, nil
}
