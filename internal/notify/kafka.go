package notify

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rileyhilliard/gridmon/internal/errors"
	"github.com/rileyhilliard/gridmon/internal/evaluate"
	"github.com/segmentio/kafka-go"
)

// MessageWriter is the part of *kafka.Writer the transport uses.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaOptions configures the Kafka transport.
type KafkaOptions struct {
	Brokers      []string
	Topic        string
	WriteTimeout time.Duration
}

// Kafka publishes one JSON message per result, keyed by hostname so a
// host's results stay on one partition.
type Kafka struct {
	w     MessageWriter
	topic string
	now   func() time.Time
}

// NewKafka creates a synchronous writer for opts.Topic.
func NewKafka(opts KafkaOptions) *Kafka {
	w := &kafka.Writer{
		Addr:         kafka.TCP(opts.Brokers...),
		Topic:        opts.Topic,
		Balancer:     &kafka.Hash{},
		BatchTimeout: 50 * time.Millisecond,
		WriteTimeout: opts.WriteTimeout,
		RequiredAcks: kafka.RequireOne,
		MaxAttempts:  1,
		Async:        false,
	}
	return NewKafkaWithWriter(w, opts.Topic)
}

// NewKafkaWithWriter wraps an existing writer.
func NewKafkaWithWriter(w MessageWriter, topic string) *Kafka {
	return &Kafka{w: w, topic: topic, now: time.Now}
}

func (k *Kafka) Name() string { return "kafka" }

// record is the message value.
type record struct {
	CycleID string `json:"cycle_id,omitempty"`
	evaluate.Result
}

// Send writes the whole batch in one call. A single attempt is made.
func (k *Kafka) Send(ctx context.Context, batch *Batch) error {
	now := k.now()
	msgs := make([]kafka.Message, 0, len(batch.Results))
	for _, r := range batch.Results {
		value, err := json.Marshal(record{CycleID: batch.CycleID, Result: r})
		if err != nil {
			return errors.WrapWithCode(err, errors.ErrDispatch,
				"Couldn't encode result for "+r.Hostname, "")
		}
		msgs = append(msgs, kafka.Message{
			Key:   []byte(r.Hostname),
			Value: value,
			Headers: []kafka.Header{
				{Key: "cycle_id", Value: []byte(batch.CycleID)},
				{Key: "sensor", Value: []byte(r.Sensor)},
			},
			Time: now,
		})
	}

	if err := k.w.WriteMessages(ctx, msgs...); err != nil {
		return errors.WrapWithCode(err, errors.ErrDispatch,
			"Couldn't publish results to Kafka topic "+k.topic,
			"Check notify.kafka.brokers are reachable.")
	}
	return nil
}

// Close flushes and closes the writer.
func (k *Kafka) Close() error {
	return k.w.Close()
}
