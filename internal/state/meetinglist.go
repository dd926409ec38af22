// Package state caches hot poller output in Redis so aggregation runs
// avoid re-reading large XML documents from Postgres.
package state

import (
	"context"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/DE-IBH/b3lb/internal/logging"
)

// DefaultKeyPattern matches the poller's node meeting list keys.
const DefaultKeyPattern = "NML#%s"

// DefaultTTL keeps a cached list slightly longer than a poll interval.
const DefaultTTL = 30 * time.Second

// MeetingListCache holds the per-node getMeetings documents.
type MeetingListCache struct {
	client  *goredis.Client
	pattern string
	ttl     time.Duration
	logger  logging.Logger
}

func NewMeetingListCache(client *goredis.Client, pattern string, ttl time.Duration, logger logging.Logger) *MeetingListCache {
	if pattern == "" {
		pattern = DefaultKeyPattern
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &MeetingListCache{client: client, pattern: pattern, ttl: ttl, logger: logger}
}

func (c *MeetingListCache) key(nodeUUID string) string {
	return fmt.Sprintf(c.pattern, nodeUUID)
}

// Set stores a node's raw getMeetings document.
func (c *MeetingListCache) Set(ctx context.Context, nodeUUID, xml string) error {
	if err := c.client.Set(ctx, c.key(nodeUUID), xml, c.ttl).Err(); err != nil {
		return fmt.Errorf("cache node meeting list: %w", err)
	}
	return nil
}

// Get returns a cached document. A miss or a Redis failure returns
// found=false so callers fall back to the database copy.
func (c *MeetingListCache) Get(ctx context.Context, nodeUUID string) (string, bool) {
	xml, err := c.client.Get(ctx, c.key(nodeUUID)).Result()
	if err == goredis.Nil {
		return "", false
	}
	if err != nil {
		c.logger.WithError(err).WithField("node", nodeUUID).Debug("Meeting list cache read failed")
		return "", false
	}
	return xml, true
}

// Delete drops a node's cached document.
func (c *MeetingListCache) Delete(ctx context.Context, nodeUUID string) {
	if err := c.client.Del(ctx, c.key(nodeUUID)).Err(); err != nil {
		c.logger.WithError(err).WithField("node", nodeUUID).Debug("Meeting list cache delete failed")
	}
}
