package evloop

import (
	"time"

	"github.com/google/uuid"
)

const (
	EventAccepted = iota + 1
	EventClosed
	EventEvicted
	EventRejected
)

var eventNames = map[int]string{
	EventAccepted: "accepted",
	EventClosed:   "closed",
	EventEvicted:  "evicted",
	EventRejected: "rejected",
}

type Event struct {
	Id        string                 `json:"id"`
	Timestamp int64                  `json:"timestamp"`
	Type      int                    `json:"type"`
	MetaData  map[string]interface{} `json:"metaData"`
	Msg       string                 `json:"msg"`
}

func (e *Event) TypeName() string {
	return eventNames[e.Type]
}

func genConnEvent(c *Connection, eventType int, now time.Time) *Event {
	meta := map[string]interface{}{
		"fd":         c.fd,
		"generation": c.gen,
		"received":   c.stats.ReceivedBytes,
		"sent":       c.stats.SentBytes,
	}
	if c.addr != nil {
		meta["peer"] = c.addr.String()
	}
	if eventType != EventAccepted {
		meta["reason"] = c.state.String()
		meta["lifetime_ms"] = now.Sub(c.stats.AcceptedAt).Milliseconds()
	}
	return &Event{
		Id:        c.id,
		Timestamp: now.UnixMilli(),
		Type:      eventType,
		MetaData:  meta,
		Msg:       eventNames[eventType],
	}
}

func genRejectedEvent(peer string, evictions int64, now time.Time) *Event {
	return &Event{
		Id:        uuid.NewString(),
		Timestamp: now.UnixMilli(),
		Type:      EventRejected,
		MetaData:  map[string]interface{}{"peer": peer, "evictions": evictions},
		Msg:       eventNames[EventRejected],
	}
}
