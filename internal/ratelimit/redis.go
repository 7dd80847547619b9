package ratelimit

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const keyPrefix = "hearth:ratelimit:"

// takeScript trims the window, admits the request when there is room and
// returns {allowed, count, reset_ms} atomically.
var takeScript = redis.NewScript(`
local key = KEYS[1]
local now = tonumber(ARGV[1])
local window = tonumber(ARGV[2])
local limit = tonumber(ARGV[3])

redis.call('ZREMRANGEBYSCORE', key, '-inf', now - window)
local count = redis.call('ZCARD', key)
local allowed = 0
if count < limit then
	redis.call('ZADD', key, now, ARGV[4])
	redis.call('PEXPIRE', key, window)
	count = count + 1
	allowed = 1
end

local reset = now + window
local oldest = redis.call('ZRANGE', key, 0, 0, 'WITHSCORES')
if oldest[2] then
	reset = tonumber(oldest[2]) + window
end

return {allowed, count, reset}
`)

// RedisStore keeps each key's window in a sorted set scored by request time,
// so replicas sharing one Redis share one window.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore creates a store on an existing client.
func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

// Take records a request at now when the window has room.
func (s *RedisStore) Take(ctx context.Context, key string, rate Rate, now time.Time) (bool, Info, error) {
	nowMs := now.UnixMilli()
	member := fmt.Sprintf("%d-%s", nowMs, uuid.NewString())

	values, err := takeScript.Run(ctx, s.client, []string{keyPrefix + key},
		nowMs, rate.Window.Milliseconds(), rate.Limit, member).Int64Slice()
	if err != nil {
		return false, Info{}, fmt.Errorf("rate limit script: %w", err)
	}
	if len(values) != 3 {
		return false, Info{}, fmt.Errorf("rate limit script returned %d values", len(values))
	}

	return values[0] == 1, Info{
		Limit:     rate.Limit,
		Remaining: max(0, rate.Limit-int(values[1])),
		Reset:     time.UnixMilli(values[2]),
	}, nil
}

// Peek reports the window without recording a request.
func (s *RedisStore) Peek(ctx context.Context, key string, rate Rate, now time.Time) (Info, error) {
	redisKey := keyPrefix + key
	nowMs := now.UnixMilli()
	cutoff := nowMs - rate.Window.Milliseconds()

	var (
		count  *redis.IntCmd
		oldest *redis.ZSliceCmd
	)
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.ZRemRangeByScore(ctx, redisKey, "-inf", strconv.FormatInt(cutoff, 10))
		count = pipe.ZCard(ctx, redisKey)
		oldest = pipe.ZRangeWithScores(ctx, redisKey, 0, 0)
		return nil
	})
	if err != nil {
		return Info{}, fmt.Errorf("rate limit window: %w", err)
	}

	reset := now.Add(rate.Window)
	if entries := oldest.Val(); len(entries) > 0 {
		reset = time.UnixMilli(int64(entries[0].Score)).Add(rate.Window)
	}

	return Info{
		Limit:     rate.Limit,
		Remaining: max(0, rate.Limit-int(count.Val())),
		Reset:     reset,
	}, nil
}
