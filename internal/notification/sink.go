package notification

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Sink delivers fire-and-forget notifications after dispatch state
// transitions. Callers never depend on delivery success.
type Sink interface {
	NotifyHelper(ctx context.Context, helperID uuid.UUID, event Event) error
	NotifyRequester(ctx context.Context, requesterID uuid.UUID, event Event) error
}

// envelope is the wire form published per event
type envelope struct {
	Event     string      `json:"event"`
	Payload   interface{} `json:"payload"`
	EmittedAt time.Time   `json:"emitted_at"`
}

// RedisSink publishes events on per-recipient pub/sub channels
// (helper_<id>, user_<id>) for delivery gateways to fan out.
type RedisSink struct {
	client *redis.Client
	logger *zap.Logger
}

func NewRedisSink(client *redis.Client, logger *zap.Logger) *RedisSink {
	return &RedisSink{client: client, logger: logger}
}

func (s *RedisSink) NotifyHelper(ctx context.Context, helperID uuid.UUID, event Event) error {
	return s.publish(ctx, fmt.Sprintf("helper_%s", helperID), event)
}

func (s *RedisSink) NotifyRequester(ctx context.Context, requesterID uuid.UUID, event Event) error {
	return s.publish(ctx, fmt.Sprintf("user_%s", requesterID), event)
}

func (s *RedisSink) publish(ctx context.Context, channel string, event Event) error {
	data, err := json.Marshal(envelope{
		Event:     event.EventName(),
		Payload:   event,
		EmittedAt: time.Now(),
	})
	if err != nil {
		return fmt.Errorf("failed to marshal notification: %w", err)
	}

	if err := s.client.Publish(ctx, channel, data).Err(); err != nil {
		s.logger.Warn("Failed to publish notification",
			zap.String("channel", channel),
			zap.String("event", event.EventName()),
			zap.Error(err))
		return fmt.Errorf("failed to publish notification: %w", err)
	}

	s.logger.Debug("Notification published",
		zap.String("channel", channel),
		zap.String("event", event.EventName()))
	return nil
}

// LogSink writes notifications to the log only; used in tests and when no
// delivery backend is configured.
type LogSink struct {
	logger *zap.Logger
}

func NewLogSink(logger *zap.Logger) *LogSink {
	return &LogSink{logger: logger}
}

func (s *LogSink) NotifyHelper(ctx context.Context, helperID uuid.UUID, event Event) error {
	s.logger.Info("Helper notification",
		zap.String("helper_id", helperID.String()),
		zap.String("event", event.EventName()),
		zap.Any("payload", event))
	return nil
}

func (s *LogSink) NotifyRequester(ctx context.Context, requesterID uuid.UUID, event Event) error {
	s.logger.Info("Requester notification",
		zap.String("requester_id", requesterID.String()),
		zap.String("event", event.EventName()),
		zap.Any("payload", event))
	return nil
}
