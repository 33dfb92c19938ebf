package health

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/zsiec/vrx/internal/capture"
)

const probeKey = "vrx:health:probe"

// minMarkers is how many frame-ending packets geometry estimation needs.
const minMarkers = 3

// CaptureChecker verifies that a capture holds enough of the selected
// stream to estimate its geometry.
type CaptureChecker struct {
	source capture.Source
}

// NewCaptureChecker creates a checker for source.
func NewCaptureChecker(source capture.Source) *CaptureChecker {
	return &CaptureChecker{source: source}
}

func (c *CaptureChecker) Name() string {
	return "capture"
}

// Check reads until it has seen enough marker packets. Non-RTP payloads
// on the selected port degrade the result.
func (c *CaptureChecker) Check(ctx context.Context) error {
	r, err := c.source.Open()
	if err != nil {
		return err
	}
	defer r.Close()

	var records, markers int
	for markers < minMarkers {
		if err := ctx.Err(); err != nil {
			return err
		}
		rec, err := r.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return fmt.Errorf("failed to read %s: %w", c.source.Name(), err)
		}
		records++
		if rec.Marker {
			markers++
		}
	}

	if markers < minMarkers {
		return fmt.Errorf("found %d marker packets in %d RTP packets, need %d", markers, records, minMarkers)
	}

	if sr, ok := r.(interface{ Stats() capture.ReadStats }); ok {
		if nonRTP := sr.Stats().NonRTP; nonRTP > 0 {
			return Degraded(fmt.Errorf("%d datagrams on the selected stream are not RTP", nonRTP))
		}
	}
	return nil
}

// RedisChecker checks Redis connectivity.
type RedisChecker struct {
	client *redis.Client
	name   string
}

// NewRedisChecker creates a new Redis health checker.
func NewRedisChecker(client *redis.Client) *RedisChecker {
	return &RedisChecker{
		client: client,
		name:   "redis",
	}
}

func (r *RedisChecker) Name() string {
	return r.name
}

// Check pings Redis and verifies that it accepts writes.
func (r *RedisChecker) Check(ctx context.Context) error {
	if err := r.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping failed: %w", err)
	}

	if err := r.client.Set(ctx, probeKey, "1", time.Minute).Err(); err != nil {
		return fmt.Errorf("redis is not writable: %w", err)
	}
	return r.client.Del(ctx, probeKey).Err()
}

// OutputChecker verifies that a file can be created at path. An existing
// file is reported as degraded since the run will overwrite it.
type OutputChecker struct {
	name string
	path string
}

// NewOutputChecker creates a checker named name for the output at path.
func NewOutputChecker(name, path string) *OutputChecker {
	return &OutputChecker{name: name, path: path}
}

func (o *OutputChecker) Name() string {
	return o.name
}

func (o *OutputChecker) Check(ctx context.Context) error {
	dir := filepath.Dir(o.path)
	info, err := os.Stat(dir)
	if err != nil {
		return fmt.Errorf("output directory: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("%s is not a directory", dir)
	}

	probe, err := os.CreateTemp(dir, ".vrx-check-*")
	if err != nil {
		return fmt.Errorf("output directory not writable: %w", err)
	}
	name := probe.Name()
	_ = probe.Close()
	_ = os.Remove(name)

	if _, err := os.Stat(o.path); err == nil {
		return Degraded(fmt.Errorf("%s exists and will be overwritten", o.path))
	}
	return nil
}
