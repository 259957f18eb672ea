package evloop

import (
	"encoding/json"
	"io"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestNewEventRouter(t *testing.T) {
	router, err := NewEventRouter(EventsConfig{})
	require.NoError(t, err)
	require.IsType(t, LogEventRouter{}, router)
	require.NoError(t, router.Process("key", &Event{Type: EventAccepted}))

	router, err = NewEventRouter(EventsConfig{KafkaBrokers: "a:1, ,b:2", KafkaTopic: "t"})
	require.NoError(t, err)
	kafkaRouter, ok := router.(*KafkaEventRouter)
	require.True(t, ok)
	require.Equal(t, "t", kafkaRouter.producer.Topic)
	require.Equal(t, "a:1,b:2", kafkaRouter.producer.Addr.String())
	require.NoError(t, kafkaRouter.Close())
	// nothing is sent once the writer is closed
	require.ErrorIs(t, kafkaRouter.Process("key", &Event{Type: EventClosed}), io.ErrClosedPipe)
}

func TestGetBrokers(t *testing.T) {
	require.Equal(t, []string{"a:1", "b:2"}, getBrokers(EventsConfig{KafkaBrokers: " a:1, ,b:2 ,"}))
	require.Empty(t, getBrokers(EventsConfig{KafkaBrokers: " , "}))
}

func TestKafkaEventRouterRejectsIncompleteConfig(t *testing.T) {
	_, err := NewKafkaEventRouter(EventsConfig{KafkaTopic: "t"})
	require.ErrorIs(t, err, ErrInvalidConfig)
	_, err = NewKafkaEventRouter(EventsConfig{KafkaBrokers: " , ", KafkaTopic: "t"})
	require.ErrorIs(t, err, ErrInvalidConfig)
	_, err = NewEventRouter(EventsConfig{KafkaBrokers: "a:1"})
	require.ErrorIs(t, err, ErrInvalidConfig)
}

func TestEventJson(t *testing.T) {
	accepted := time.Unix(1700000000, 0)
	c := &Connection{
		fd:    7,
		id:    "conn-7",
		addr:  &net.TCPAddr{IP: net.IPv4(10, 0, 0, 1), Port: 4000},
		state: StateClosedByTimeout,
		gen:   3,
		stats: ConnStats{AcceptedAt: accepted, ReceivedBytes: 5, SentBytes: 5},
	}
	event := genConnEvent(c, EventEvicted, accepted.Add(1500*time.Millisecond))
	data, err := json.Marshal(event)
	require.NoError(t, err)

	var decoded Event
	require.NoError(t, json.Unmarshal(data, &decoded))
	require.Equal(t, "conn-7", decoded.Id)
	require.Equal(t, "evicted", decoded.TypeName())
	require.Equal(t, "evicted", decoded.Msg)
	require.Equal(t, accepted.Add(1500*time.Millisecond).UnixMilli(), decoded.Timestamp)
	require.Equal(t, "10.0.0.1:4000", decoded.MetaData["peer"])
	require.Equal(t, StateClosedByTimeout.String(), decoded.MetaData["reason"])
	require.Equal(t, float64(1500), decoded.MetaData["lifetime_ms"])
	require.Equal(t, float64(7), decoded.MetaData["fd"])

	rejected := genRejectedEvent("10.0.0.1", 4, accepted)
	require.Equal(t, "rejected", rejected.TypeName())
	require.NotEmpty(t, rejected.Id)
	require.Equal(t, int64(4), rejected.MetaData["evictions"])
}
