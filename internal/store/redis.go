package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/eldtechnologies/messenger/internal/models"
)

// summaryTTL bounds how long an entry can outlive a missed invalidation.
const summaryTTL = 5 * time.Minute

// storeSummaryScript replaces the cached summary unless the entry already
// holds a newer version. An empty payload leaves only the version behind,
// which blocks refills from reads that started before the write.
//
// KEYS[1] summary key, ARGV[1] version, ARGV[2] payload, ARGV[3] ttl in ms
var storeSummaryScript = redis.NewScript(`
local cur = redis.call('HGET', KEYS[1], 'v')
if cur and tonumber(cur) > tonumber(ARGV[1]) then
	return 0
end
redis.call('DEL', KEYS[1])
if ARGV[2] == '' then
	redis.call('HSET', KEYS[1], 'v', ARGV[1])
else
	redis.call('HSET', KEYS[1], 'v', ARGV[1], 's', ARGV[2])
end
redis.call('PEXPIRE', KEYS[1], ARGV[3])
return 1
`)

// RedisCache caches conversation summaries in front of the tables.
// It is never the source of truth; a miss or an error falls through to the store.
type RedisCache struct {
	client *redis.Client
}

// NewRedisCache creates a new Redis cache.
func NewRedisCache(ctx context.Context, redisURL string) (*RedisCache, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, err
	}

	client := redis.NewClient(opts)

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, err
	}

	return &RedisCache{client: client}, nil
}

// NewRedisCacheFromClient wraps an existing client.
func NewRedisCacheFromClient(client *redis.Client) *RedisCache {
	return &RedisCache{client: client}
}

// Client returns the underlying Redis client.
func (c *RedisCache) Client() *redis.Client {
	return c.client
}

// Close closes the Redis connection.
func (c *RedisCache) Close() error {
	return c.client.Close()
}

// Ping checks the Redis connection.
func (c *RedisCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

// summaryKey returns the key for a cached conversation summary.
// The entry is a hash: "v" is the version, "s" the JSON summary.
func summaryKey(conversationID int64) string {
	return fmt.Sprintf("conversation:%d:summary", conversationID)
}

// summaryVersion orders summaries of one conversation by their last message.
func summaryVersion(lastMessageAt *time.Time) int64 {
	if lastMessageAt == nil {
		return 0
	}
	return lastMessageAt.UnixMilli()
}

func (c *RedisCache) storeSummary(ctx context.Context, conversationID, version int64, payload []byte) error {
	ttl := strconv.FormatInt(summaryTTL.Milliseconds(), 10)
	return storeSummaryScript.Run(ctx, c.client, []string{summaryKey(conversationID)}, version, payload, ttl).Err()
}

// GetSummary returns a cached summary, or nil on a miss.
func (c *RedisCache) GetSummary(ctx context.Context, conversationID int64) (*models.ConversationSummary, error) {
	data, err := c.client.HGet(ctx, summaryKey(conversationID), "s").Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, err
	}

	var summary models.ConversationSummary
	if err := json.Unmarshal(data, &summary); err != nil {
		// Drop entries we can no longer decode
		c.client.HDel(ctx, summaryKey(conversationID), "s")
		return nil, nil
	}
	return &summary, nil
}

// SetSummary caches a summary read from the tables. It is a no-op when the
// cache has already seen a newer last message for the conversation.
func (c *RedisCache) SetSummary(ctx context.Context, summary *models.ConversationSummary) error {
	data, err := json.Marshal(summary)
	if err != nil {
		return err
	}
	return c.storeSummary(ctx, summary.ID, summaryVersion(summary.LastMessageAt), data)
}

// ForgetSummary drops a cached summary after its last message moved to
// lastMessageAt. Refills older than that are refused until the entry expires.
func (c *RedisCache) ForgetSummary(ctx context.Context, conversationID int64, lastMessageAt time.Time) error {
	return c.storeSummary(ctx, conversationID, summaryVersion(&lastMessageAt), nil)
}
