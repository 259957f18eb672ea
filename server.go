//go:build linux

package evloop

import (
	"context"
	"io"
	"net"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sys/unix"
)

const statsReportInterval = 20 * time.Second

// Server wires a Config to a listening socket and one Reactor.
type Server struct {
	config   *Config
	listenFd int
	addr     net.Addr
	reactor  *Reactor
	router   EventRouter
	tracker  *EvictionTracker
}

// NewServer binds the listener and prepares the reactor. Extra options are
// applied after the ones derived from config.
func NewServer(config *Config, handler PayloadHandler, opts ...ReactorOption) (*Server, error) {
	if config == nil {
		config = DefaultConfig()
	}
	if err := validateConfig(config); err != nil {
		return nil, err
	}
	if config.Listener.RaiseNoFile {
		if _, err := RaiseOpenFilesLimit(config.Reactor.FdLimit); err != nil {
			log.Error().Msgf("got error while raising open files limit: %+v", err)
		}
	}
	router, err := NewEventRouter(config.Events)
	if err != nil {
		return nil, err
	}
	s := &Server{config: config, router: router}
	if config.Evictions.Enabled {
		s.tracker, err = NewEvictionTracker(config.Evictions)
		if err != nil {
			s.closeResources()
			return nil, err
		}
	}
	s.listenFd, err = Listen(config.Listener.Net, config.Listener.Address, config.Listener.Backlog, config.Listener.ReusePort)
	if err != nil {
		s.closeResources()
		return nil, err
	}
	s.addr, err = ListenerAddr(s.listenFd)
	if err != nil {
		s.closeListener()
		s.closeResources()
		return nil, err
	}
	reactorOpts := []ReactorOption{
		WithEventRouter(router),
		WithSocketOptions(socketOptionsApplier(config.Listener)),
	}
	if s.tracker != nil {
		reactorOpts = append(reactorOpts, WithEvictionTracker(s.tracker))
	}
	s.reactor, err = NewReactor(config.Reactor, s.listenFd, handler, append(reactorOpts, opts...)...)
	if err != nil {
		s.closeListener()
		s.closeResources()
		return nil, err
	}
	log.Info().Msgf("listening on %s %s", config.Listener.Net, s.addr)
	return s, nil
}

func (s *Server) Addr() net.Addr {
	return s.addr
}

func (s *Server) Stats() StatsSnapshot {
	return s.reactor.Stats()
}

// Run serves until Stop or a termination signal, then releases everything.
func (s *Server) Run() error {
	ctx, cancel := context.WithCancel(context.Background())
	go s.reportStats(ctx)
	err := s.reactor.Run()
	cancel()
	s.closeListener()
	s.closeResources()
	return err
}

func (s *Server) Stop() error {
	return s.reactor.Stop()
}

func (s *Server) reportStats(ctx context.Context) {
	ticker := time.NewTicker(statsReportInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			stats := s.reactor.Stats()
			log.Info().Msgf("active: %d accepted: %d evicted: %d rejected: %d received: %d sent: %d",
				stats.Active, stats.Accepted, stats.ClosedByTimeout, stats.Rejected, stats.ReceivedBytes, stats.SentBytes)
		}
	}
}

func (s *Server) closeListener() {
	if err := unix.Close(s.listenFd); err != nil {
		log.Error().Msgf("got error while closing listener: %+v", err)
	}
	if s.config.Listener.Net == "unix" {
		_ = unix.Unlink(s.config.Listener.Address)
	}
}

func (s *Server) closeResources() {
	if closer, ok := s.router.(io.Closer); ok {
		if err := closer.Close(); err != nil {
			log.Error().Msgf("got error while closing event router: %+v", err)
		}
	}
	if s.tracker != nil {
		s.tracker.Close()
	}
}
