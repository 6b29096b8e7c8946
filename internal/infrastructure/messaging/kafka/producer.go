package kafka

import (
	"context"
	"encoding/json"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/turtacn/ThreatCanvas/internal/config"
	"github.com/turtacn/ThreatCanvas/internal/domain/threatmodel"
	"github.com/turtacn/ThreatCanvas/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/ThreatCanvas/pkg/errors"
)

// Producer writes merge events.  Messages are keyed by model ID so events
// for one model stay ordered within a partition.
type Producer struct {
	writer *kafka.Writer
	logger logging.Logger
}

func NewProducer(cfg config.KafkaConfig, logger logging.Logger) *Producer {
	return &Producer{
		writer: &kafka.Writer{
			Addr:                   kafka.TCP(cfg.Brokers...),
			Topic:                  TopicModelMerged,
			Balancer:               &kafka.Hash{},
			MaxAttempts:            max(cfg.ProducerRetries, 1),
			BatchTimeout:           time.Duration(cfg.BatchTimeoutMS) * time.Millisecond,
			RequiredAcks:           kafka.RequireAll,
			AllowAutoTopicCreation: true,
		},
		logger: logger,
	}
}

func (p *Producer) PublishMergeEvent(ctx context.Context, ev MergeEvent) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeSerialization, "failed to encode merge event")
	}
	err = p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(ev.ModelID),
		Value: payload,
		Time:  ev.OccurredAt,
	})
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeExternalService, "failed to publish merge event")
	}
	return nil
}

func (p *Producer) Close() error {
	return p.writer.Close()
}

// MergeNotifier adapts the producer to the merge service's notification
// hook.  Publishing failures are logged, never propagated: event delivery
// must not undo a committed merge.
type MergeNotifier struct {
	producer *Producer
	logger   logging.Logger
}

func NewMergeNotifier(producer *Producer, logger logging.Logger) *MergeNotifier {
	return &MergeNotifier{producer: producer, logger: logger}
}

func (n *MergeNotifier) MergeCompleted(ctx context.Context, primary *threatmodel.ThreatModel, md *threatmodel.MergeMetadata) {
	ev := MergeEvent{
		ModelID:       primary.ID.String(),
		ModelName:     primary.Name,
		ModelVersion:  primary.ModelVersion,
		MergedFrom:    md.MergedFrom,
		MergedBy:      md.MergedBy,
		MergeStrategy: md.MergeStrategy,
		Metrics:       md.Metrics,
		OccurredAt:    md.MergedAt,
	}
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := n.producer.PublishMergeEvent(ctx, ev); err != nil {
		n.logger.Error("merge event publish failed",
			logging.String("model_id", ev.ModelID), logging.Err(err))
	}
}
