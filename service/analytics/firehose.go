package analytics

import (
	"encoding/json"

	"github.com/Shopify/sarama"
	"github.com/pkg/errors"
)

const defaultTopic = "opsflow.analytics.events"

// Firehose mirrors raw analytics events to a Kafka topic, keyed by
// event name so per-event ordering survives partitioning.
type Firehose struct {
	producer sarama.SyncProducer
	topic    string
}

func NewFirehose(brokers []string, topic string) (*Firehose, error) {
	if topic == "" {
		topic = defaultTopic
	}

	cfg := sarama.NewConfig()
	cfg.Producer.Return.Successes = true
	cfg.Producer.Return.Errors = true
	cfg.Producer.RequiredAcks = sarama.WaitForAll
	cfg.Producer.Retry.Max = 3
	cfg.Producer.Partitioner = sarama.NewHashPartitioner

	producer, err := sarama.NewSyncProducer(brokers, cfg)
	if err != nil {
		return nil, errors.Wrap(err, "kafka producer")
	}
	return &Firehose{producer: producer, topic: topic}, nil
}

func (f *Firehose) Publish(event string, payload map[string]any) error {
	value, err := json.Marshal(payload)
	if err != nil {
		return errors.Wrap(err, "marshal analytics event")
	}
	_, _, err = f.producer.SendMessage(&sarama.ProducerMessage{
		Topic: f.topic,
		Key:   sarama.StringEncoder(event),
		Value: sarama.ByteEncoder(value),
	})
	return errors.Wrapf(err, "publish %s", event)
}

func (f *Firehose) Close() error { return f.producer.Close() }
