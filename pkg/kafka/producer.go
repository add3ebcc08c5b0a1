package kafka

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/segmentio/kafka-go"

	"github.com/Ramsey-B/iris/pkg/metrics"
	"github.com/Ramsey-B/iris/pkg/tracing"
)

// SchemaVersion is the current event schema version
const SchemaVersion = "1.0"

// MessageWriter is the part of kafka.Writer the producer uses.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Producer handles Kafka event emission
type Producer struct {
	writer MessageWriter
	logger ectologger.Logger
	topic  string
}

// ProducerConfig holds Kafka producer configuration
type ProducerConfig struct {
	Brokers      []string
	Topic        string
	BatchSize    int
	BatchTimeout time.Duration
	RequiredAcks int
	Compression  string
}

// NewProducer creates a new Kafka producer
func NewProducer(cfg ProducerConfig, logger ectologger.Logger) *Producer {
	var compression kafka.Compression
	switch cfg.Compression {
	case "gzip":
		compression = kafka.Gzip
	case "lz4":
		compression = kafka.Lz4
	case "zstd":
		compression = kafka.Zstd
	case "snappy", "":
		compression = kafka.Snappy
	}

	writer := &kafka.Writer{
		Addr:                   kafka.TCP(cfg.Brokers...),
		Balancer:               &kafka.Hash{},
		BatchSize:              cfg.BatchSize,
		BatchTimeout:           cfg.BatchTimeout,
		RequiredAcks:           kafka.RequiredAcks(cfg.RequiredAcks),
		Compression:            compression,
		AllowAutoTopicCreation: true,
	}

	return NewProducerWithWriter(writer, cfg.Topic, logger)
}

// NewProducerWithWriter wraps an existing writer. The writer must not set its
// own Topic.
func NewProducerWithWriter(writer MessageWriter, topic string, logger ectologger.Logger) *Producer {
	return &Producer{
		writer: writer,
		logger: logger,
		topic:  topic,
	}
}

// Close closes the producer
func (p *Producer) Close() error {
	return p.writer.Close()
}

func (p *Producer) Topic() string {
	return p.topic
}

// ClusterEvent describes a contact cluster after a write.
type ClusterEvent struct {
	EventType         string          `json:"event_type"`
	SchemaVersion     string          `json:"schema_version"`
	PrimaryContactID  int64           `json:"primary_contact_id"`
	ContactID         *int64          `json:"contact_id,omitempty"`
	DemotedPrimaryIDs []int64         `json:"demoted_primary_ids,omitempty"`
	Cluster           json.RawMessage `json:"cluster"`
	Timestamp         time.Time       `json:"timestamp"`
}

// PublishClusterEvents publishes events keyed by primary contact id, so every
// event for one cluster lands on the same partition.
func (p *Producer) PublishClusterEvents(ctx context.Context, events ...*ClusterEvent) error {
	ctx, span := tracing.StartSpan(ctx, "kafka.Producer.PublishClusterEvents")
	defer span.End()

	if len(events) == 0 {
		return nil
	}

	traceParent := tracing.GetTraceParent(ctx)
	messages := make([]kafka.Message, len(events))
	for i, event := range events {
		if event.Timestamp.IsZero() {
			event.Timestamp = time.Now().UTC()
		}
		if event.SchemaVersion == "" {
			event.SchemaVersion = SchemaVersion
		}

		data, err := json.Marshal(event)
		if err != nil {
			return err
		}

		headers := []kafka.Header{
			{Key: "event_type", Value: []byte(event.EventType)},
			{Key: "schema_version", Value: []byte(event.SchemaVersion)},
		}
		if traceParent != "" {
			headers = append(headers, kafka.Header{Key: "traceparent", Value: []byte(traceParent)})
		}

		messages[i] = kafka.Message{
			Topic:   p.topic,
			Key:     []byte(strconv.FormatInt(event.PrimaryContactID, 10)),
			Value:   data,
			Headers: headers,
		}
	}

	if err := p.writer.WriteMessages(ctx, messages...); err != nil {
		metrics.RecordKafkaPublish(p.topic, "error", len(messages))
		p.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"batch_size": len(events),
		}).Error("Failed to publish cluster events")
		return err
	}
	metrics.RecordKafkaPublish(p.topic, "success", len(messages))

	p.logger.WithContext(ctx).WithFields(map[string]any{
		"batch_size": len(events),
	}).Debug("Published cluster events")

	return nil
}
