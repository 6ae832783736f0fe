package repository

import (
	"context"
	"fmt"
	"time"

	"quickcourt/internal/config"
	"quickcourt/internal/models"

	"github.com/redis/go-redis/v9"
)

// claimScript sets every key to the booking ref only when all of them are
// absent. Returns the 1-based indexes of keys already held, empty on success.
var claimScript = redis.NewScript(`
local conflicts = {}
for i, key in ipairs(KEYS) do
	if redis.call('EXISTS', key) == 1 then
		table.insert(conflicts, i)
	end
end
if #conflicts > 0 then
	return conflicts
end
for i, key in ipairs(KEYS) do
	redis.call('SET', key, ARGV[1])
	if tonumber(ARGV[2]) > 0 then
		redis.call('PEXPIRE', key, ARGV[2])
	end
end
return conflicts
`)

// releaseScript deletes only the keys still holding the booking ref. A key
// re-claimed by another booking is left untouched.
var releaseScript = redis.NewScript(`
local released = 0
for i, key in ipairs(KEYS) do
	if redis.call('GET', key) == ARGV[1] then
		redis.call('DEL', key)
		released = released + 1
	end
end
return released
`)

// RedisAvailability keeps one claim record per (venue, date, slot) in Redis.
// The Lua scripts make multi-slot claim and release atomic server-side.
type RedisAvailability struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisClient создает новый клиент Redis на основе конфигурации
func NewRedisClient(cfg config.RedisConfig) *redis.Client {
	options := &redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
		PoolSize: cfg.PoolSize,
	}

	client := redis.NewClient(options)

	return client
}

// NewRedisAvailability wraps a client. ttl bounds the lifetime of claim
// records; zero keeps them until released.
func NewRedisAvailability(client *redis.Client, ttl time.Duration) *RedisAvailability {
	return &RedisAvailability{
		client: client,
		ttl:    ttl,
	}
}

func (r *RedisAvailability) GetSlotRecords(ctx context.Context, venueID int64, date time.Time) (map[string]string, error) {
	if r.client == nil {
		return nil, fmt.Errorf("redis client is nil")
	}

	keys := make([]string, len(models.DailySlots))
	for i, slot := range models.DailySlots {
		keys[i] = models.SlotKey{VenueID: venueID, Date: date, Slot: slot}.String()
	}

	values, err := r.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read slot records: %w", err)
	}

	records := make(map[string]string)
	for i, val := range values {
		if ref, ok := val.(string); ok && ref != "" {
			records[models.DailySlots[i]] = ref
		}
	}
	return records, nil
}

func (r *RedisAvailability) ConditionalClaim(ctx context.Context, keys []models.SlotKey, ref string) ([]string, error) {
	if r.client == nil {
		return nil, fmt.Errorf("redis client is nil")
	}

	redisKeys := make([]string, len(keys))
	for i, k := range keys {
		redisKeys[i] = k.String()
	}

	res, err := claimScript.Run(ctx, r.client, redisKeys, ref, r.ttl.Milliseconds()).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to claim slots: %w", err)
	}

	indexes, ok := res.([]interface{})
	if !ok {
		return nil, fmt.Errorf("unexpected claim script result %T", res)
	}

	conflicts := make([]string, 0, len(indexes))
	for _, raw := range indexes {
		idx, ok := raw.(int64)
		if !ok || idx < 1 || int(idx) > len(keys) {
			return nil, fmt.Errorf("unexpected claim script index %v", raw)
		}
		conflicts = append(conflicts, keys[idx-1].Slot)
	}
	return conflicts, nil
}

func (r *RedisAvailability) Release(ctx context.Context, keys []models.SlotKey, ref string) error {
	if r.client == nil {
		return fmt.Errorf("redis client is nil")
	}

	redisKeys := make([]string, len(keys))
	for i, k := range keys {
		redisKeys[i] = k.String()
	}

	if err := releaseScript.Run(ctx, r.client, redisKeys, ref).Err(); err != nil {
		return fmt.Errorf("failed to release slots: %w", err)
	}
	return nil
}

// Ping проверяет соединение с Redis
func Ping(ctx context.Context, client *redis.Client) error {
	_, err := client.Ping(ctx).Result()
	if err != nil {
		return fmt.Errorf("failed to ping Redis: %w", err)
	}
	return nil
}

// Close закрывает соединение с Redis
func Close(client *redis.Client) error {
	if client != nil {
		return client.Close()
	}
	return nil
}
