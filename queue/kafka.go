package queue

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/janelia-flyem/voltasks/tasks"
	"github.com/janelia-flyem/voltasks/volume"

	"github.com/Shopify/sarama"
)

// KafkaMaxMessageSize is the max message size in bytes for a Kafka message.
const KafkaMaxMessageSize = 980 * 1024

// KafkaConfig describes the kafka servers and topic receiving descriptors.
type KafkaConfig struct {
	Servers []string
	Topic   string
}

// KafkaSink publishes each descriptor as a JSON message keyed by the
// descriptor's key, so resubmitted work lands on the same partition.
type KafkaSink struct {
	producer sarama.SyncProducer
	topic    string
}

// NewKafkaSink connects a synchronous producer to the configured servers.
func NewKafkaSink(kc KafkaConfig) (*KafkaSink, error) {
	if len(kc.Servers) == 0 {
		return nil, fmt.Errorf("no kafka servers configured")
	}
	if kc.Topic == "" {
		return nil, fmt.Errorf("no kafka topic configured")
	}
	config := sarama.NewConfig()
	config.Version = sarama.V0_11_0_0 // record headers
	config.Producer.MaxMessageBytes = KafkaMaxMessageSize
	config.Producer.RequiredAcks = sarama.WaitForAll
	config.Producer.Return.Successes = true
	producer, err := sarama.NewSyncProducer(kc.Servers, config)
	if err != nil {
		return nil, err
	}
	volume.Infof("Kafka topic for task descriptors: %s\n", kc.Topic)
	return NewKafkaSinkFromProducer(producer, kc.Topic), nil
}

// NewKafkaSinkFromProducer wraps an existing producer.
func NewKafkaSinkFromProducer(producer sarama.SyncProducer, topic string) *KafkaSink {
	return &KafkaSink{producer: producer, topic: topic}
}

// kafkaMessage is the JSON value of each published message.
type kafkaMessage struct {
	tasks.Descriptor
	Key   string `json:"key"`
	RunID string `json:"run_id,omitempty"`
}

func (s *KafkaSink) Put(ctx context.Context, batch []tasks.Descriptor) error {
	if len(batch) == 0 {
		return nil
	}
	runID := RunID(ctx)
	var headers []sarama.RecordHeader
	if runID != "" {
		headers = []sarama.RecordHeader{{Key: []byte("run-id"), Value: []byte(runID)}}
	}
	msgs := make([]*sarama.ProducerMessage, len(batch))
	for i, d := range batch {
		key := d.Key()
		value, err := json.Marshal(kafkaMessage{Descriptor: d, Key: key, RunID: runID})
		if err != nil {
			return err
		}
		msgs[i] = &sarama.ProducerMessage{
			Topic:   s.topic,
			Key:     sarama.StringEncoder(key),
			Value:   sarama.ByteEncoder(value),
			Headers: headers,
		}
	}
	if err := s.producer.SendMessages(msgs); err != nil {
		if errs, ok := err.(sarama.ProducerErrors); ok {
			for _, perr := range errs {
				volume.Errorf("error on kafka send to topic %s: %v\n", perr.Msg.Topic, perr.Err)
			}
		}
		return fmt.Errorf("unable to publish %d descriptors to kafka topic %s: %w", len(batch), s.topic, err)
	}
	return nil
}

// Close makes sure the producer is flushed before stopping.
func (s *KafkaSink) Close() error {
	if err := s.producer.Close(); err != nil {
		volume.Errorf("Kafka producer had error on close: %v\n", err)
		return err
	}
	volume.Infof("Successfully shut down kafka producer.\n")
	return nil
}
