package recorder

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strconv"
	"time"

	"SwingSentinel/internal/model"

	goredis "github.com/go-redis/redis/v8"
)

const (
	redisKeyPrefix   = "swing:"
	redisMaxHistory  = 500
	redisMaxAlerts   = 1000
	redisAlertsKey   = redisKeyPrefix + "alerts"
	redisPingTimeout = 5 * time.Second
)

// RedisConfig configures the Redis mirror.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// RedisRecorder keeps recent candles per key in sorted sets scored by bar
// time, and recent alerts in a capped list.
type RedisRecorder struct {
	client *goredis.Client
}

// NewRedisRecorder creates the client and pings the server.
func NewRedisRecorder(cfg RedisConfig) (*RedisRecorder, error) {
	client := goredis.NewClient(&goredis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), redisPingTimeout)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	log.Printf("[INFO] redis recorder connected to %s", cfg.Addr)
	return &RedisRecorder{client: client}, nil
}

func candleKey(symbol, timeframe string) string {
	return redisKeyPrefix + "candles:" + symbol + ":" + timeframe
}

// RecordCandle replaces any member already stored at the same bar time.
func (r *RedisRecorder) RecordCandle(ctx context.Context, rec *CandleRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal candle: %w", err)
	}
	key := candleKey(rec.Symbol, rec.Timeframe)
	score := strconv.FormatInt(rec.BarTime.Unix(), 10)

	pipe := r.client.TxPipeline()
	pipe.ZRemRangeByScore(ctx, key, score, score)
	pipe.ZAdd(ctx, key, &goredis.Z{Score: float64(rec.BarTime.Unix()), Member: data})
	pipe.ZRemRangeByRank(ctx, key, 0, -int64(redisMaxHistory+1))
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis write candle %s: %w", key, err)
	}
	return nil
}

func (r *RedisRecorder) RecordAlert(ctx context.Context, evt *model.AlertEvent) error {
	data, err := json.Marshal(newAlertRow(evt))
	if err != nil {
		return fmt.Errorf("marshal alert: %w", err)
	}
	pipe := r.client.Pipeline()
	pipe.LPush(ctx, redisAlertsKey, data)
	pipe.LTrim(ctx, redisAlertsKey, 0, redisMaxAlerts-1)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis write alert: %w", err)
	}
	return nil
}

func (r *RedisRecorder) LoadRecent(ctx context.Context, key model.InstrumentKey, limit int) ([]model.Candle, error) {
	results, err := r.client.ZRevRangeByScore(ctx, candleKey(key.Symbol, key.Timeframe.String()), &goredis.ZRangeBy{
		Min:   "-inf",
		Max:   "+inf",
		Count: int64(limit),
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("redis read %s: %w", key, err)
	}
	out := make([]model.Candle, 0, len(results))
	for _, raw := range results {
		var rec CandleRecord
		if err := json.Unmarshal([]byte(raw), &rec); err != nil {
			return nil, fmt.Errorf("decode candle %s: %w", key, err)
		}
		out = append(out, rec.Candle())
	}
	reverse(out)
	return out, nil
}

func (r *RedisRecorder) Close() error {
	log.Println("[INFO] closing redis recorder")
	return r.client.Close()
}
