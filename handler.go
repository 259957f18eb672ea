package evloop

import (
	"github.com/rs/zerolog/log"
)

// PayloadHandler receives the raw bytes of a connection. Payloads are opaque
// to the reactor. OnData gets one read worth of data; the slice is reused
// after the call returns. Returning an error closes the connection.
type PayloadHandler interface {
	OnOpen(c *Connection)
	OnData(c *Connection, data []byte) error
	OnClose(c *Connection, reason ConnState)
}

// EchoHandler writes every chunk back to its sender.
type EchoHandler struct{}

func (EchoHandler) OnOpen(c *Connection) {
	if log.Debug().Enabled() {
		log.Debug().Msgf("[%d] open echo session: %s", c.fd, c.id)
	}
}

func (EchoHandler) OnData(c *Connection, data []byte) error {
	_, err := c.Write(data)
	if err != nil {
		log.Error().Msgf("got error while writing data to peer: %+v", err)
	}
	return err
}

func (EchoHandler) OnClose(c *Connection, reason ConnState) {
	if log.Debug().Enabled() {
		log.Debug().Msgf("[%d] close echo session: %s reason: %s", c.fd, c.id, reason)
	}
}

// DiscardHandler drops all payload. Connections only live until they idle out.
type DiscardHandler struct{}

func (DiscardHandler) OnOpen(*Connection) {}

func (DiscardHandler) OnData(*Connection, []byte) error { return nil }

func (DiscardHandler) OnClose(*Connection, ConnState) {}
