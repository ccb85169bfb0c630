package journal

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/michaelpento.lv/arbengine/config"
	"github.com/michaelpento.lv/arbengine/types"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	recordPrefix = "arb:exec:"
	statsPrefix  = "arb:stats:"
	stream       = "arb:executions"

	// streamMaxLen is approximate; redis trims whole macro nodes
	streamMaxLen int64 = 10000
)

// RedisJournal stores execution records for operators. Nothing in the engine
// reads them back.
type RedisJournal struct {
	rdb    *redis.Client
	ttl    time.Duration
	logger *zap.Logger
}

// NewRedisJournal connects to the configured redis and checks it answers
func NewRedisJournal(ctx context.Context, cfg config.RedisConfig, logger *zap.Logger) (*RedisJournal, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("failed to connect to redis at %s: %w", cfg.Addr, err)
	}
	return &RedisJournal{
		rdb:    rdb,
		ttl:    cfg.TTL,
		logger: logger,
	}, nil
}

// Record writes rec as JSON under its id, appends it to the executions stream
// and adds it to the daily statistics hash of its network
func (j *RedisJournal) Record(ctx context.Context, rec *types.ExecutionRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to encode execution record: %w", err)
	}

	statsKey := StatsKey(rec.Network, rec.Timestamp)

	pipe := j.rdb.TxPipeline()
	pipe.Set(ctx, recordPrefix+rec.ID, data, j.ttl)
	pipe.XAdd(ctx, &redis.XAddArgs{
		Stream: stream,
		MaxLen: streamMaxLen,
		Approx: true,
		Values: map[string]interface{}{
			"id":      rec.ID,
			"network": rec.Network.String(),
			"outcome": string(rec.Outcome),
			"record":  string(data),
		},
	})
	pipe.HIncrBy(ctx, statsKey, "attempts", 1)
	switch rec.Outcome {
	case types.OutcomeConfirmed:
		pipe.HIncrBy(ctx, statsKey, "successes", 1)
		if rec.ActualProfitUSD != nil {
			pipe.HIncrByFloat(ctx, statsKey, "profit_usd", *rec.ActualProfitUSD)
		}
	case types.OutcomeReverted:
		pipe.HIncrBy(ctx, statsKey, "reverts", 1)
	case types.OutcomeTimedOut:
		pipe.HIncrBy(ctx, statsKey, "timeouts", 1)
	case types.OutcomeFailed:
		pipe.HIncrBy(ctx, statsKey, "failures", 1)
	}
	if j.ttl > 0 {
		pipe.Expire(ctx, statsKey, j.ttl)
	}

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to journal execution %s: %w", rec.ID, err)
	}

	j.logger.Debug("Journaled execution",
		zap.String("id", rec.ID),
		zap.String("outcome", string(rec.Outcome)))
	return nil
}

// Close closes the redis connection
func (j *RedisJournal) Close() error {
	return j.rdb.Close()
}

// StatsKey returns the daily statistics hash of network for the local date of at
func StatsKey(network types.Network, at time.Time) string {
	return fmt.Sprintf("%s%s:%s", statsPrefix, network, at.Format("2006-01-02"))
}
