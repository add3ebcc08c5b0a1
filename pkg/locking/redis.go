package locking

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

var releaseScript = redis.NewScript(`
	if redis.call("get", KEYS[1]) == ARGV[1] then
		return redis.call("del", KEYS[1])
	else
		return 0
	end
`)

// RedisConfig holds Redis connection configuration
type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

// NewRedisClient connects and pings a go-redis client.
func NewRedisClient(ctx context.Context, cfg RedisConfig, logger ectologger.Logger) (*redis.Client, error) {
	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)

	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("failed to connect to Redis at %s: %w", addr, err)
	}

	logger.Infof("Connected to Redis at %s", addr)
	return rdb, nil
}

// Redis is a distributed Locker built on SET NX with a per-acquisition token.
// Keys expire after ttl so a crashed holder cannot wedge a cluster forever.
type Redis struct {
	rdb       redis.UniversalClient
	logger    ectologger.Logger
	keyPrefix string
	ttl       time.Duration
	wait      time.Duration
}

func NewRedis(rdb redis.UniversalClient, logger ectologger.Logger, keyPrefix string, ttl, wait time.Duration) *Redis {
	if keyPrefix == "" {
		keyPrefix = "iris:lock:"
	}
	if ttl <= 0 {
		ttl = 10 * time.Second
	}
	if wait <= 0 {
		wait = 5 * time.Second
	}
	return &Redis{
		rdb:       rdb,
		logger:    logger,
		keyPrefix: keyPrefix,
		ttl:       ttl,
		wait:      wait,
	}
}

func (l *Redis) Acquire(ctx context.Context, keys []string) (Release, error) {
	keys = NormalizeKeys(keys)
	token := uuid.New().String()
	deadline := time.Now().Add(l.wait)

	held := make([]string, 0, len(keys))
	for _, key := range keys {
		lockKey := l.keyPrefix + key
		if err := l.tryAcquire(ctx, lockKey, token, deadline); err != nil {
			l.release(ctx, held, token)
			return nil, err
		}
		held = append(held, lockKey)
	}

	l.logger.WithContext(ctx).Debugf("Acquired %d cluster locks", len(held))

	var once sync.Once
	return func(ctx context.Context) {
		once.Do(func() { l.release(ctx, held, token) })
	}, nil
}

// tryAcquire retries SET NX with capped exponential backoff until deadline.
func (l *Redis) tryAcquire(ctx context.Context, key, token string, deadline time.Time) error {
	backoff := 10 * time.Millisecond
	for {
		ok, err := l.rdb.SetNX(ctx, key, token, l.ttl).Result()
		if err != nil {
			return err
		}
		if ok {
			return nil
		}
		if !time.Now().Before(deadline) {
			return fmt.Errorf("%w: %s", ErrLockNotAcquired, key)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
			backoff *= 2
			if backoff > 500*time.Millisecond {
				backoff = 500 * time.Millisecond
			}
		}
	}
}

func (l *Redis) release(ctx context.Context, keys []string, token string) {
	// a cancelled request must still give its keys back
	ctx = context.WithoutCancel(ctx)
	for _, key := range keys {
		result, err := releaseScript.Run(ctx, l.rdb, []string{key}, token).Int64()
		if err != nil && !errors.Is(err, redis.Nil) {
			l.logger.WithContext(ctx).WithError(err).Errorf("Failed to release lock %s", key)
			continue
		}
		if result == 0 {
			l.logger.WithContext(ctx).Warnf("Lock %s expired before release", key)
		}
	}
}
