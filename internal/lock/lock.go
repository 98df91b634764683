// Package lock guards payroll runs so one employer is processed by a single
// run at a time, within the process and, when redis is configured, across
// processes. Runs for different periods of the same employer share YTD
// history, so they are serialized too.
package lock

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	redis "github.com/redis/go-redis/v9"
	"github.com/smallbiznis/payrun/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const keyPayrollRun = "payrun:run:%s"

var ErrLocked = errors.New("lock_held")

// RunLock combines the in-process and distributed locks.
type RunLock struct {
	local  *KeyedMutex
	remote *RedisLocker
	log    *zap.Logger
}

// NewRunLock builds an in-process lock, backed by redis when remote is set.
func NewRunLock(remote *RedisLocker, log *zap.Logger) *RunLock {
	if log == nil {
		log = zap.NewNop()
	}
	return &RunLock{
		local:  NewKeyedMutex(),
		remote: remote,
		log:    log.Named("payroll.lock"),
	}
}

// RunKey names the lock for one employer.
func RunKey(employerID snowflake.ID) string {
	return fmt.Sprintf(keyPayrollRun, employerID)
}

// Acquire takes key without waiting. It returns ErrLocked when another run
// holds it. The returned release func is safe to call once.
func (l *RunLock) Acquire(ctx context.Context, key string, ttl time.Duration) (func(), error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return nil, errors.New("lock key is empty")
	}
	if !l.local.TryLock(key) {
		return nil, ErrLocked
	}
	if l.remote == nil {
		return func() { l.local.Unlock(key) }, nil
	}

	token, ok, err := l.remote.TryLock(ctx, key, ttl)
	if err != nil {
		l.local.Unlock(key)
		return nil, fmt.Errorf("acquire run lock %s: %w", key, err)
	}
	if !ok {
		l.local.Unlock(key)
		return nil, ErrLocked
	}
	return func() {
		// The run context may already be done; release on a fresh one.
		releaseCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := l.remote.Release(releaseCtx, key, token); err != nil {
			l.log.Warn("failed to release run lock", zap.String("key", key), zap.Error(err))
		}
		l.local.Unlock(key)
	}, nil
}

type redisParams struct {
	fx.In

	Lc  fx.Lifecycle
	Cfg config.Config
	Log *zap.Logger
}

// NewRedisClient returns nil when redis is disabled.
func NewRedisClient(p redisParams) (redis.UniversalClient, error) {
	if !p.Cfg.Redis.Enabled {
		return nil, nil
	}
	addr := strings.TrimSpace(p.Cfg.Redis.Addr)
	if addr == "" {
		return nil, errors.New("redis addr is required when redis is enabled")
	}
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: strings.TrimSpace(p.Cfg.Redis.Password),
		DB:       p.Cfg.Redis.DB,
	})
	p.Lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			if err := client.Ping(ctx).Err(); err != nil {
				return fmt.Errorf("redis ping %s: %w", addr, err)
			}
			p.Log.Info("redis run lock enabled", zap.String("addr", addr))
			return nil
		},
		OnStop: func(ctx context.Context) error {
			return client.Close()
		},
	})
	return client, nil
}

var Module = fx.Module("payroll.lock",
	fx.Provide(NewRedisClient),
	fx.Provide(func(client redis.UniversalClient) *RedisLocker { return NewRedisLocker(client) }),
	fx.Provide(NewRunLock),
)
