package evloop

import (
	"github.com/rs/zerolog/log"
)

type EventRouter interface {
	Process(key string, event *Event) error
}

// LogEventRouter writes lifecycle events to the global logger at debug level.
type LogEventRouter struct{}

func (LogEventRouter) Process(key string, event *Event) error {
	if log.Debug().Enabled() {
		log.Debug().Msgf("[%s] %s event: %+v", key, event.TypeName(), event.MetaData)
	}
	return nil
}

// NewEventRouter picks kafka when brokers are configured and the log router otherwise.
func NewEventRouter(config EventsConfig) (EventRouter, error) {
	if config.KafkaBrokers == "" {
		return LogEventRouter{}, nil
	}
	return NewKafkaEventRouter(config)
}
