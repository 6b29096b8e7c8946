package kafka

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/segmentio/kafka-go"

	"github.com/turtacn/ThreatCanvas/internal/config"
	"github.com/turtacn/ThreatCanvas/internal/infrastructure/monitoring/logging"
)

// MergeEventHandler processes one merge event.  A returned error leaves the
// message uncommitted so it is redelivered.
type MergeEventHandler func(ctx context.Context, ev MergeEvent) error

// Consumer reads merge events for the background worker.
type Consumer struct {
	reader *kafka.Reader
	logger logging.Logger
}

func NewConsumer(cfg config.KafkaConfig, logger logging.Logger) *Consumer {
	return &Consumer{
		reader: kafka.NewReader(kafka.ReaderConfig{
			Brokers: cfg.Brokers,
			GroupID: cfg.GroupID,
			Topic:   TopicModelMerged,
		}),
		logger: logger,
	}
}

// Run consumes until ctx is canceled.  Malformed messages are committed and
// dropped; handler errors leave the offset alone for redelivery.
func (c *Consumer) Run(ctx context.Context, handler MergeEventHandler) error {
	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return nil
			}
			return err
		}

		var ev MergeEvent
		if err := json.Unmarshal(msg.Value, &ev); err != nil {
			c.logger.Warn("dropping malformed merge event",
				logging.Int64("offset", msg.Offset), logging.Err(err))
			if err := c.reader.CommitMessages(ctx, msg); err != nil {
				return err
			}
			continue
		}

		if err := handler(ctx, ev); err != nil {
			c.logger.Error("merge event handling failed, leaving uncommitted",
				logging.String("model_id", ev.ModelID), logging.Err(err))
			continue
		}
		if err := c.reader.CommitMessages(ctx, msg); err != nil {
			return err
		}
	}
}

func (c *Consumer) Close() error {
	return c.reader.Close()
}
