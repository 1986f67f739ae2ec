package repositories

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/BradenHooton/quizgate/internal/models"
	"github.com/redis/go-redis/v9"
)

// Each code is a hash at <prefix>:code:<CODE>; <prefix>:codes indexes them.
// Timestamps are unix milliseconds, 0 meaning unset.
const (
	fieldMaxUses     = "max_uses"
	fieldCurrentUses = "current_uses"
	fieldCreatedAt   = "created_at"
	fieldExpiresAt   = "expires_at"
	fieldLastUsedAt  = "last_used_at"
)

var consumeScript = redis.NewScript(`
local key = KEYS[1]
local now = tonumber(ARGV[1])
if redis.call('EXISTS', key) == 0 then
  return false
end
local maxUses = tonumber(redis.call('HGET', key, 'max_uses'))
local current = tonumber(redis.call('HGET', key, 'current_uses'))
local expiresAt = tonumber(redis.call('HGET', key, 'expires_at') or '0')
if current >= maxUses then
  return false
end
if expiresAt > 0 and now >= expiresAt then
  return false
end
redis.call('HINCRBY', key, 'current_uses', 1)
redis.call('HSET', key, 'last_used_at', ARGV[1])
return redis.call('HGETALL', key)
`)

var createScript = redis.NewScript(`
local key = KEYS[1]
if redis.call('EXISTS', key) == 1 then
  return 0
end
redis.call('HSET', key,
  'max_uses', ARGV[1],
  'current_uses', ARGV[2],
  'created_at', ARGV[3],
  'expires_at', ARGV[4],
  'last_used_at', ARGV[5])
if tonumber(ARGV[6]) > 0 then
  redis.call('PEXPIREAT', key, ARGV[6])
end
redis.call('SADD', KEYS[2], ARGV[7])
return 1
`)

var resetScript = redis.NewScript(`
local key = KEYS[1]
if redis.call('EXISTS', key) == 0 then
  return false
end
redis.call('HSET', key, 'current_uses', '0')
return redis.call('HGETALL', key)
`)

// RedisAccessCodeRepository stores codes in Redis. Consumption runs as a Lua
// script so the validity check and increment execute atomically server-side.
type RedisAccessCodeRepository struct {
	client    redis.UniversalClient
	prefix    string
	retention time.Duration
}

// NewRedisAccessCodeRepository creates a repository over an existing client.
// Expired codes are kept for retention before Redis drops them.
func NewRedisAccessCodeRepository(client redis.UniversalClient, prefix string, retention time.Duration) *RedisAccessCodeRepository {
	if prefix == "" {
		prefix = "quizgate"
	}
	return &RedisAccessCodeRepository{client: client, prefix: prefix, retention: retention}
}

func (r *RedisAccessCodeRepository) codeKey(code string) string {
	return r.prefix + ":code:" + code
}

func (r *RedisAccessCodeRepository) indexKey() string {
	return r.prefix + ":codes"
}

// FindValidAndConsume atomically consumes one use of a valid code
func (r *RedisAccessCodeRepository) FindValidAndConsume(ctx context.Context, code string, now time.Time) (*models.AccessCode, error) {
	key := models.NormalizeCode(code)

	res, err := consumeScript.Run(ctx, r.client, []string{r.codeKey(key)}, now.UnixMilli()).Result()
	if errors.Is(err, redis.Nil) {
		return nil, models.ErrCodeInvalid
	}
	if err != nil {
		return nil, mapRedisError(err)
	}

	return parseHashReply(key, res)
}

// Lookup reads a code without modifying it
func (r *RedisAccessCodeRepository) Lookup(ctx context.Context, code string) (*models.AccessCode, error) {
	key := models.NormalizeCode(code)

	fields, err := r.client.HGetAll(ctx, r.codeKey(key)).Result()
	if err != nil {
		return nil, mapRedisError(err)
	}
	if len(fields) == 0 {
		return nil, models.ErrNotFound
	}
	return codeFromFields(key, fields)
}

// Create stores a new code, failing with ErrConflict on duplicates
func (r *RedisAccessCodeRepository) Create(ctx context.Context, code *models.AccessCode) error {
	key := models.NormalizeCode(code.Code)

	var expireAt int64
	if code.ExpiresAt != nil {
		expireAt = code.ExpiresAt.Add(r.retention).UnixMilli()
	}

	created, err := createScript.Run(ctx, r.client,
		[]string{r.codeKey(key), r.indexKey()},
		code.MaxUses,
		code.CurrentUses,
		code.CreatedAt.UnixMilli(),
		millisOrZero(code.ExpiresAt),
		millisOrZero(code.LastUsedAt),
		expireAt,
		key,
	).Int()
	if err != nil {
		return mapRedisError(err)
	}
	if created == 0 {
		return models.ErrConflict
	}
	return nil
}

// Reset zeroes the use count of a code
func (r *RedisAccessCodeRepository) Reset(ctx context.Context, code string) (*models.AccessCode, error) {
	key := models.NormalizeCode(code)

	res, err := resetScript.Run(ctx, r.client, []string{r.codeKey(key)}).Result()
	if errors.Is(err, redis.Nil) {
		return nil, models.ErrNotFound
	}
	if err != nil {
		return nil, mapRedisError(err)
	}
	return parseHashReply(key, res)
}

// List returns all indexed codes, pruning index entries whose hash has expired
func (r *RedisAccessCodeRepository) List(ctx context.Context) ([]*models.AccessCode, error) {
	members, err := r.client.SMembers(ctx, r.indexKey()).Result()
	if err != nil {
		return nil, mapRedisError(err)
	}

	pipe := r.client.Pipeline()
	cmds := make([]*redis.MapStringStringCmd, len(members))
	for i, member := range members {
		cmds[i] = pipe.HGetAll(ctx, r.codeKey(member))
	}
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return nil, mapRedisError(err)
	}

	codes := make([]*models.AccessCode, 0, len(members))
	var stale []interface{}
	for i, cmd := range cmds {
		fields := cmd.Val()
		if len(fields) == 0 {
			stale = append(stale, members[i])
			continue
		}
		code, err := codeFromFields(members[i], fields)
		if err != nil {
			return nil, err
		}
		codes = append(codes, code)
	}

	if len(stale) > 0 {
		_ = r.client.SRem(ctx, r.indexKey(), stale...).Err()
	}

	sortCodes(codes)
	return codes, nil
}

// HealthCheck pings Redis
func (r *RedisAccessCodeRepository) HealthCheck(ctx context.Context) error {
	if err := r.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis health check failed: %w", err)
	}
	return nil
}

func parseHashReply(code string, reply interface{}) (*models.AccessCode, error) {
	items, ok := reply.([]interface{})
	if !ok || len(items)%2 != 0 {
		return nil, fmt.Errorf("unexpected redis reply %T", reply)
	}

	fields := make(map[string]string, len(items)/2)
	for i := 0; i < len(items); i += 2 {
		k, _ := items[i].(string)
		v, _ := items[i+1].(string)
		fields[k] = v
	}
	return codeFromFields(code, fields)
}

func codeFromFields(code string, fields map[string]string) (*models.AccessCode, error) {
	maxUses, err := strconv.Atoi(fields[fieldMaxUses])
	if err != nil {
		return nil, fmt.Errorf("corrupt %s for code %s: %w", fieldMaxUses, code, err)
	}
	currentUses, err := strconv.Atoi(fields[fieldCurrentUses])
	if err != nil {
		return nil, fmt.Errorf("corrupt %s for code %s: %w", fieldCurrentUses, code, err)
	}

	out := &models.AccessCode{
		Code:        code,
		MaxUses:     maxUses,
		CurrentUses: currentUses,
		ExpiresAt:   timeFromMillis(fields[fieldExpiresAt]),
		LastUsedAt:  timeFromMillis(fields[fieldLastUsedAt]),
	}
	if created := timeFromMillis(fields[fieldCreatedAt]); created != nil {
		out.CreatedAt = *created
	}
	return out, nil
}

func millisOrZero(t *time.Time) int64 {
	if t == nil {
		return 0
	}
	return t.UnixMilli()
}

func timeFromMillis(raw string) *time.Time {
	ms, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || ms == 0 {
		return nil
	}
	t := time.UnixMilli(ms).UTC()
	return &t
}

func mapRedisError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return errors.Join(models.ErrUnavailable, err)
	}
	var netErr interface{ Timeout() bool }
	if errors.As(err, &netErr) || errors.Is(err, redis.ErrClosed) {
		return errors.Join(models.ErrUnavailable, err)
	}
	return err
}
