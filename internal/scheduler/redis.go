package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"helper-dispatch/internal/dispatch"
	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	deadlineSet  = "dispatch:offer_deadlines"
	helperHash   = "dispatch:offer_helpers"
	claimTimeout = 5 * time.Second
)

// Commands is the slice of the redis client the scheduler uses. Satisfied
// by *redis.Client.
type Commands interface {
	TxPipeline() redis.Pipeliner
	ZRangeByScore(ctx context.Context, key string, opt *redis.ZRangeBy) *redis.StringSliceCmd
	ZRem(ctx context.Context, key string, members ...interface{}) *redis.IntCmd
	HGet(ctx context.Context, key, field string) *redis.StringCmd
	HDel(ctx context.Context, key string, fields ...string) *redis.IntCmd
	Ping(ctx context.Context) *redis.StatusCmd
}

// RedisScheduler is a durable stand-in for the in-process timeout
// supervisor. Response deadlines live in a redis ZSET scored by expiry
// time, so they survive a process restart and can be polled by any
// dispatch instance. ZRem is the claim: whichever poller removes the
// member fires the expiry, exactly once.
type RedisScheduler struct {
	client       Commands
	timeout      time.Duration
	pollInterval time.Duration
	expire       dispatch.ExpiryHandler
	logger       *zap.Logger

	stopOnce sync.Once
	stopCh   chan struct{}
	doneCh   chan struct{}
}

func NewRedisScheduler(client Commands, timeout, pollInterval time.Duration, logger *zap.Logger) *RedisScheduler {
	return &RedisScheduler{
		client:       client,
		timeout:      timeout,
		pollInterval: pollInterval,
		logger:       logger.With(zap.String("component", "redis_scheduler")),
		stopCh:       make(chan struct{}),
		doneCh:       make(chan struct{}),
	}
}

// SetExpiryHandler wires the timeout target; set once at startup before Start.
func (s *RedisScheduler) SetExpiryHandler(h dispatch.ExpiryHandler) {
	s.expire = h
}

// Arm records the response deadline for the booking's current offer,
// replacing any previous deadline for the same booking.
func (s *RedisScheduler) Arm(bookingID, helperID uuid.UUID) {
	ctx, cancel := context.WithTimeout(context.Background(), claimTimeout)
	defer cancel()

	deadline := time.Now().Add(s.timeout)

	pipe := s.client.TxPipeline()
	pipe.ZAdd(ctx, deadlineSet, &redis.Z{
		Score:  float64(deadline.UnixMilli()),
		Member: bookingID.String(),
	})
	pipe.HSet(ctx, helperHash, bookingID.String(), helperID.String())

	if _, err := pipe.Exec(ctx); err != nil {
		s.logger.Error("Failed to arm durable response timer",
			zap.String("booking_id", bookingID.String()),
			zap.Error(err))
		return
	}

	s.logger.Info("Durable response timer armed",
		zap.String("booking_id", bookingID.String()),
		zap.String("helper_id", helperID.String()),
		zap.Time("deadline", deadline))
}

// Cancel drops the booking's deadline. Safe when none exists.
func (s *RedisScheduler) Cancel(bookingID uuid.UUID) {
	ctx, cancel := context.WithTimeout(context.Background(), claimTimeout)
	defer cancel()

	pipe := s.client.TxPipeline()
	pipe.ZRem(ctx, deadlineSet, bookingID.String())
	pipe.HDel(ctx, helperHash, bookingID.String())

	if _, err := pipe.Exec(ctx); err != nil {
		s.logger.Error("Failed to cancel durable response timer",
			zap.String("booking_id", bookingID.String()),
			zap.Error(err))
		return
	}

	s.logger.Info("Durable response timer cancelled",
		zap.String("booking_id", bookingID.String()))
}

// Start launches the poll loop. Stop or ctx cancellation ends it.
func (s *RedisScheduler) Start(ctx context.Context) {
	go s.run(ctx)
}

func (s *RedisScheduler) Stop() {
	s.stopOnce.Do(func() { close(s.stopCh) })
	<-s.doneCh
}

func (s *RedisScheduler) run(ctx context.Context) {
	defer close(s.doneCh)

	ticker := time.NewTicker(s.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stopCh:
			return
		case <-ticker.C:
			if err := s.fireDue(ctx); err != nil {
				s.logger.Error("Failed to process due response deadlines", zap.Error(err))
			}
		}
	}
}

func (s *RedisScheduler) fireDue(ctx context.Context) error {
	now := float64(time.Now().UnixMilli())

	members, err := s.client.ZRangeByScore(ctx, deadlineSet, &redis.ZRangeBy{
		Min: "0",
		Max: fmt.Sprintf("%f", now),
	}).Result()
	if err != nil {
		return fmt.Errorf("failed to read due deadlines: %w", err)
	}

	for _, member := range members {
		removed, err := s.client.ZRem(ctx, deadlineSet, member).Result()
		if err != nil {
			s.logger.Error("Failed to claim due deadline",
				zap.String("booking_id", member),
				zap.Error(err))
			continue
		}
		if removed == 0 {
			// another instance claimed it, or the offer was cancelled
			continue
		}

		helperStr, err := s.client.HGet(ctx, helperHash, member).Result()
		if err != nil {
			s.logger.Error("Claimed deadline has no helper record",
				zap.String("booking_id", member),
				zap.Error(err))
			continue
		}
		s.client.HDel(ctx, helperHash, member)

		bookingID, err := uuid.Parse(member)
		if err != nil {
			s.logger.Error("Invalid booking id in deadline set", zap.String("member", member))
			continue
		}
		helperID, err := uuid.Parse(helperStr)
		if err != nil {
			s.logger.Error("Invalid helper id in deadline hash", zap.String("value", helperStr))
			continue
		}

		s.logger.Info("Durable response timer fired",
			zap.String("booking_id", bookingID.String()),
			zap.String("helper_id", helperID.String()))

		if s.expire != nil {
			s.expire(ctx, bookingID, helperID)
		}
	}

	return nil
}

func (s *RedisScheduler) HealthCheck(ctx context.Context) error {
	if err := s.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis health check failed: %w", err)
	}
	return nil
}
