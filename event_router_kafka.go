package evloop

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/segmentio/kafka-go"
)

const kafkaWriteTimeout = 5 * time.Second

// KafkaEventRouter publishes events asynchronously, keyed by connection id.
type KafkaEventRouter struct {
	ctx      context.Context
	cancel   context.CancelFunc
	producer *kafka.Writer
}

func NewKafkaEventRouter(config EventsConfig) (*KafkaEventRouter, error) {
	brokers := getBrokers(config)
	if len(brokers) == 0 || config.KafkaTopic == "" {
		return nil, fmt.Errorf("%w: kafka router needs brokers and topic", ErrInvalidConfig)
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &KafkaEventRouter{
		ctx:    ctx,
		cancel: cancel,
		producer: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Topic:        config.KafkaTopic,
			RequiredAcks: kafka.RequireOne,
			Async:        true,
			Balancer:     &kafka.RoundRobin{},
			WriteTimeout: kafkaWriteTimeout,
			Completion: func(messages []kafka.Message, err error) {
				if err != nil {
					log.Error().Msgf("got error while publishing %d events: %+v", len(messages), err)
				}
			},
		},
	}, nil
}

func (kef *KafkaEventRouter) Process(key string, event *Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return err
	}
	message := kafka.Message{
		Key:   []byte(key),
		Value: data,
	}
	return kef.producer.WriteMessages(kef.ctx, message)
}

func (kef *KafkaEventRouter) Close() error {
	defer kef.cancel()
	return kef.producer.Close()
}

func getBrokers(config EventsConfig) []string {
	var brokers []string
	for _, broker := range strings.Split(config.KafkaBrokers, ",") {
		if broker = strings.TrimSpace(broker); broker != "" {
			brokers = append(brokers, broker)
		}
	}
	return brokers
}
