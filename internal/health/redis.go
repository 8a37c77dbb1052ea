package health

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/orrn/labeldispatch/internal/core"
)

// RedisSink stores the latest snapshot as a hash so other services can read
// the dispatcher's state without calling its API.
type RedisSink struct {
	client redis.Cmdable
	key    string
	ttl    time.Duration
}

// NewRedisSink takes a client whose lifecycle stays with the caller.
func NewRedisSink(client redis.Cmdable, key string, ttl time.Duration) *RedisSink {
	return &RedisSink{client: client, key: key, ttl: ttl}
}

func (s *RedisSink) Publish(ctx context.Context, snapshot core.HealthSnapshot) error {
	if err := s.client.HSet(ctx, s.key, snapshotFields(snapshot)).Err(); err != nil {
		return fmt.Errorf("redis hset %s: %w", s.key, err)
	}
	if s.ttl > 0 {
		if err := s.client.Expire(ctx, s.key, s.ttl).Err(); err != nil {
			return fmt.Errorf("redis expire %s: %w", s.key, err)
		}
	}
	return nil
}

func snapshotFields(snap core.HealthSnapshot) map[string]any {
	return map[string]any{
		"service_title":      snap.ServiceTitle,
		"machine_name":       snap.MachineName,
		"version":            snap.Version,
		"endpoint":           snap.Endpoint,
		"started_at":         formatTime(snap.StartedAt),
		"last_activity_time": formatTime(snap.LastActivityTime),
		"last_service_error": snap.LastServiceError,
		"last_error_time":    formatTime(snap.LastErrorTime),
		"processed_count":    strconv.FormatInt(snap.ProcessedCount, 10),
	}
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}
