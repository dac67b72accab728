package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	redis "github.com/redis/go-redis/v9"
	"github.com/smallbiznis/agentdesk/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const (
	keySubmission  = "agentdesk:submit:owner:%s"
	keyRequestLock = "agentdesk:lock:request:%s"
)

// Limiter throttles request submissions per agent and serializes lifecycle
// operations per request across processes. A nil Limiter allows everything.
type Limiter struct {
	client *redis.Client
	bucket *tokenBucket
	mutex  *mutex

	submissionRate  float64
	submissionBurst int
	lockTTL         time.Duration
	lockWait        time.Duration
}

// NewLimiter connects to Redis when rate limiting is enabled and returns nil otherwise.
func NewLimiter(lc fx.Lifecycle, cfg config.Config, log *zap.Logger) (*Limiter, error) {
	limitCfg := cfg.RateLimit
	if !limitCfg.Enabled {
		return nil, nil
	}

	addr := strings.TrimSpace(limitCfg.RedisAddr)
	if addr == "" {
		return nil, errors.New("rate limit redis addr is required")
	}

	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: strings.TrimSpace(limitCfg.RedisPassword),
		DB:       limitCfg.RedisDB,
	})
	limiter, err := NewLimiterWithClient(client, limitCfg)
	if err != nil {
		_ = client.Close()
		return nil, err
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			if err := client.Ping(ctx).Err(); err != nil {
				log.Warn("redis unreachable, submissions will fail open", zap.String("addr", addr), zap.Error(err))
			}
			return nil
		},
		OnStop: func(context.Context) error {
			return client.Close()
		},
	})
	return limiter, nil
}

func NewLimiterWithClient(client *redis.Client, cfg config.RateLimitConfig) (*Limiter, error) {
	if client == nil {
		return nil, errors.New("redis client is required")
	}
	if cfg.SubmissionRate <= 0 || cfg.SubmissionBurst <= 0 {
		return nil, errors.New("submission rate limit must be positive")
	}
	lockTTL := time.Duration(cfg.LifecycleLockTTLSeconds) * time.Second
	if lockTTL <= 0 {
		lockTTL = 15 * time.Second
	}
	lockWait := time.Duration(cfg.LifecycleLockWaitSeconds) * time.Second
	if lockWait < 0 {
		lockWait = 0
	}

	return &Limiter{
		client:          client,
		bucket:          newTokenBucket(client),
		mutex:           newMutex(client),
		submissionRate:  cfg.SubmissionRate,
		submissionBurst: cfg.SubmissionBurst,
		lockTTL:         lockTTL,
		lockWait:        lockWait,
	}, nil
}

func (l *Limiter) Enabled() bool {
	return l != nil && l.client != nil
}

// AllowSubmission takes a token from the owner's submission bucket.
func (l *Limiter) AllowSubmission(ctx context.Context, ownerID string) (Decision, error) {
	if !l.Enabled() {
		return Decision{Allowed: true}, nil
	}
	return l.bucket.take(ctx, fmt.Sprintf(keySubmission, strings.TrimSpace(ownerID)), l.submissionRate, l.submissionBurst)
}

// LockRequest holds the cross-process mutex for requestID until the returned
// release func is called.
func (l *Limiter) LockRequest(ctx context.Context, requestID string) (func(), error) {
	if !l.Enabled() {
		return func() {}, nil
	}
	key := fmt.Sprintf(keyRequestLock, strings.TrimSpace(requestID))
	h, err := l.mutex.lock(ctx, key, l.lockTTL, l.lockWait)
	if err != nil {
		return nil, err
	}
	return func() {
		releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), time.Second)
		defer cancel()
		_ = h.release(releaseCtx)
	}, nil
}
