package evloop

import (
	"go.uber.org/atomic"
)

// ReactorStats are updated by the loop and safe to read from any goroutine.
type ReactorStats struct {
	Accepted         *atomic.Uint64
	Rejected         *atomic.Uint64
	Active           *atomic.Int64
	ClosedByPeer     *atomic.Uint64
	ClosedByError    *atomic.Uint64
	ClosedByTimeout  *atomic.Uint64
	ClosedByShutdown *atomic.Uint64
	Ticks            *atomic.Uint64
	ReceivedBytes    *atomic.Uint64
	SentBytes        *atomic.Uint64
	Delegated        *atomic.Uint64
	Completed        *atomic.Uint64
}

func newReactorStats() *ReactorStats {
	return &ReactorStats{
		Accepted:         atomic.NewUint64(0),
		Rejected:         atomic.NewUint64(0),
		Active:           atomic.NewInt64(0),
		ClosedByPeer:     atomic.NewUint64(0),
		ClosedByError:    atomic.NewUint64(0),
		ClosedByTimeout:  atomic.NewUint64(0),
		ClosedByShutdown: atomic.NewUint64(0),
		Ticks:            atomic.NewUint64(0),
		ReceivedBytes:    atomic.NewUint64(0),
		SentBytes:        atomic.NewUint64(0),
		Delegated:        atomic.NewUint64(0),
		Completed:        atomic.NewUint64(0),
	}
}

func (s *ReactorStats) closed(reason ConnState) {
	switch reason {
	case StateClosedByPeer:
		s.ClosedByPeer.Inc()
	case StateClosedByError:
		s.ClosedByError.Inc()
	case StateClosedByTimeout:
		s.ClosedByTimeout.Inc()
	case StateClosedByShutdown:
		s.ClosedByShutdown.Inc()
	}
	s.Active.Dec()
}

// StatsSnapshot is a plain copy of ReactorStats.
type StatsSnapshot struct {
	Accepted         uint64
	Rejected         uint64
	Active           int64
	ClosedByPeer     uint64
	ClosedByError    uint64
	ClosedByTimeout  uint64
	ClosedByShutdown uint64
	Ticks            uint64
	ReceivedBytes    uint64
	SentBytes        uint64
	Delegated        uint64
	// Completed counts worker hand-backs applied by the loop, stale ones included.
	Completed        uint64
}

func (s *ReactorStats) Snapshot() StatsSnapshot {
	return StatsSnapshot{
		Accepted:         s.Accepted.Load(),
		Rejected:         s.Rejected.Load(),
		Active:           s.Active.Load(),
		ClosedByPeer:     s.ClosedByPeer.Load(),
		ClosedByError:    s.ClosedByError.Load(),
		ClosedByTimeout:  s.ClosedByTimeout.Load(),
		ClosedByShutdown: s.ClosedByShutdown.Load(),
		Ticks:            s.Ticks.Load(),
		ReceivedBytes:    s.ReceivedBytes.Load(),
		SentBytes:        s.SentBytes.Load(),
		Delegated:        s.Delegated.Load(),
		Completed:        s.Completed.Load(),
	}
}
