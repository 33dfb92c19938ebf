package report

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/zsiec/vrx/internal/logger"
)

// ErrNotFound is returned for unknown report IDs.
var ErrNotFound = errors.New("report not found")

// Store archives reports.
type Store interface {
	Save(ctx context.Context, rep *Report) error
	Get(ctx context.Context, id string) (*Report, error)
	List(ctx context.Context, limit int64) ([]*Report, error)
	Delete(ctx context.Context, id string) error
}

// RedisStore keeps reports as JSON strings with a TTL and indexes them in
// a sorted set scored by finish time.
type RedisStore struct {
	client *redis.Client
	logger logger.Logger
	prefix string
	ttl    time.Duration
}

// NewRedisStore creates a Redis backed store. A non-positive ttl keeps
// reports forever.
func NewRedisStore(client *redis.Client, log logger.Logger, prefix string, ttl time.Duration) *RedisStore {
	if prefix == "" {
		prefix = "vrx:report:"
	}
	if log == nil {
		log = logger.NewNullLogger()
	}
	return &RedisStore{
		client: client,
		logger: log,
		prefix: prefix,
		ttl:    ttl,
	}
}

func (s *RedisStore) key(id string) string {
	return s.prefix + id
}

func (s *RedisStore) indexKey() string {
	return s.prefix + "index"
}

// Save stores rep and adds it to the index in one transaction.
func (s *RedisStore) Save(ctx context.Context, rep *Report) error {
	if rep.ID == "" {
		return fmt.Errorf("report has no ID")
	}

	data, err := json.Marshal(rep)
	if err != nil {
		return fmt.Errorf("failed to marshal report: %w", err)
	}

	ttl := s.ttl
	if ttl < 0 {
		ttl = 0
	}

	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, s.key(rep.ID), data, ttl)
		pipe.ZAdd(ctx, s.indexKey(), redis.Z{
			Score:  float64(rep.FinishedAt.UnixMilli()),
			Member: rep.ID,
		})
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to save report: %w", err)
	}

	s.logger.WithFields(map[string]interface{}{
		"report_id": rep.ID,
		"capture":   rep.CaptureFile,
	}).Info("Report stored")

	return nil
}

// Get retrieves a report by ID.
func (s *RedisStore) Get(ctx context.Context, id string) (*Report, error) {
	data, err := s.client.Get(ctx, s.key(id)).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		return nil, fmt.Errorf("failed to get report: %w", err)
	}

	var rep Report
	if err := json.Unmarshal(data, &rep); err != nil {
		return nil, fmt.Errorf("failed to unmarshal report: %w", err)
	}
	return &rep, nil
}

// List returns up to limit reports, newest first. Index entries whose
// report has expired are pruned.
func (s *RedisStore) List(ctx context.Context, limit int64) ([]*Report, error) {
	if limit <= 0 {
		return nil, nil
	}

	ids, err := s.client.ZRevRange(ctx, s.indexKey(), 0, limit-1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list reports: %w", err)
	}

	reports := make([]*Report, 0, len(ids))
	var stale []interface{}
	for _, id := range ids {
		rep, err := s.Get(ctx, id)
		if errors.Is(err, ErrNotFound) {
			stale = append(stale, id)
			continue
		}
		if err != nil {
			return nil, err
		}
		reports = append(reports, rep)
	}

	if len(stale) > 0 {
		if err := s.client.ZRem(ctx, s.indexKey(), stale...).Err(); err != nil {
			s.logger.WithError(err).Warn("Failed to prune expired reports from index")
		} else {
			s.logger.WithField("count", len(stale)).Debug("Pruned expired reports from index")
		}
	}

	return reports, nil
}

// Delete removes a report.
func (s *RedisStore) Delete(ctx context.Context, id string) error {
	deleted, err := s.client.Del(ctx, s.key(id)).Result()
	if err != nil {
		return fmt.Errorf("failed to delete report: %w", err)
	}
	if deleted == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}

	if err := s.client.ZRem(ctx, s.indexKey(), id).Err(); err != nil {
		s.logger.Warnf("Failed to remove report %s from index: %v", id, err)
	}
	return nil
}

// Close closes the Redis client.
func (s *RedisStore) Close() error {
	return s.client.Close()
}
