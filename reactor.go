//go:build linux

package evloop

import (
	"errors"
	"net"
	"runtime"
	"sync"
	"syscall"
	"time"

	"github.com/eapache/queue"
	"github.com/rs/zerolog/log"
	"go.uber.org/atomic"
	"golang.org/x/sys/unix"
)

// RegistrationID identifies one registration of an fd. The low half is the
// fd, the high half a sequence number, so a reused fd gets a new id.
type RegistrationID uint64

func (id RegistrationID) Fd() int {
	return int(uint32(id))
}

type ReactorOption func(r *Reactor)

func WithClock(clock func() time.Time) ReactorOption {
	return func(r *Reactor) {
		r.clock = clock
	}
}

func WithTicker(ticker Ticker) ReactorOption {
	return func(r *Reactor) {
		r.ticker = ticker
	}
}

func WithEventRouter(router EventRouter) ReactorOption {
	return func(r *Reactor) {
		r.router = router
	}
}

func WithEvictionTracker(tracker *EvictionTracker) ReactorOption {
	return func(r *Reactor) {
		r.tracker = tracker
	}
}

// WithSignals replaces the process signals routed into the loop. Without
// arguments the loop only sees what is injected through Stop or the bridge.
func WithSignals(sigs ...syscall.Signal) ReactorOption {
	return func(r *Reactor) {
		r.signals = sigs
	}
}

// WithSocketOptions is applied to every accepted fd before registration.
func WithSocketOptions(apply func(fd int)) ReactorOption {
	return func(r *Reactor) {
		r.sockopts = apply
	}
}

type completion struct {
	c        *Connection
	gen      uint64
	received int
	err      error
}

// Reactor multiplexes the listening socket, the signal pipe and all client
// connections over one epoll instance. Everything except Stop and Stats must
// be called from the goroutine running Run.
type Reactor struct {
	Name         string
	config       ReactorConfig
	mode         TriggerMode
	idleTimeout  time.Duration
	listenFd     int
	poller       *Poller
	bridge       *SignalBridge
	signals      []syscall.Signal
	table        *ConnectionTable
	timers       TimerStore
	handler      PayloadHandler
	router       EventRouter
	tracker      *EvictionTracker
	pool         *WorkerPool
	ticker       Ticker
	clock        func() time.Time
	sockopts     func(fd int)
	stats        *ReactorStats
	isRunning    *atomic.Bool
	closed       *atomic.Bool
	tickPending  bool
	shutdown     bool
	expired      []*Connection
	registration uint64

	compMu      sync.Mutex
	completions *queue.Queue
}

// NewReactor prepares a loop for listenFd. A negative listenFd runs the loop
// without accepting, connections are then added through Attach.
func NewReactor(config ReactorConfig, listenFd int, handler PayloadHandler, opts ...ReactorOption) (*Reactor, error) {
	if err := validateReactorConfig(&config, nil); err != nil {
		return nil, err
	}
	if log.Debug().Enabled() {
		log.Debug().Msgf("init reactor:%+v", config)
	} else {
		log.Info().Msgf("init reactor:%s", config.Name)
	}
	r := &Reactor{
		Name:        config.Name,
		config:      config,
		mode:        config.TriggerMode(),
		idleTimeout: config.IdleTimeout(),
		listenFd:    listenFd,
		signals:     DefaultSignals,
		handler:     handler,
		router:      LogEventRouter{},
		ticker:      ItimerTicker{},
		clock:       time.Now,
		stats:       newReactorStats(),
		isRunning:   atomic.NewBool(false),
		closed:      atomic.NewBool(false),
		completions: queue.New(),
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.handler == nil {
		r.handler = DiscardHandler{}
	}
	timers, err := NewTimerStore(config, r.clock)
	if err != nil {
		return nil, err
	}
	r.timers = timers
	r.table = NewConnectionTable(config.FdLimit, config.ReadBufferSize, r.expire)
	r.table.sent = r.stats.SentBytes

	poller, err := openPoller(config.EventBufferSize)
	if err != nil {
		log.Error().Msgf("can't open poller: %+v", err)
		return nil, err
	}
	bridge, err := NewSignalBridge(r.signals...)
	if err != nil {
		poller.Close()
		return nil, err
	}
	r.poller = poller
	r.bridge = bridge
	if config.delegated() {
		r.pool = NewWorkerPool(config.Workers)
	}
	return r, nil
}

func (r *Reactor) Stats() StatsSnapshot {
	return r.stats.Snapshot()
}

func (r *Reactor) IsRunning() bool {
	return r.isRunning.Load()
}

// Stop asks the loop to shut down after the current batch. It is safe to
// call from any goroutine, including before Run.
func (r *Reactor) Stop() error {
	if r.closed.Load() {
		return nil
	}
	if err := r.bridge.Notify(syscall.SIGTERM); err != nil && !errors.Is(err, ErrBridgeClosed) {
		return err
	}
	return nil
}

// Run blocks until shutdown is requested or waiting fails.
func (r *Reactor) Run() error {
	if r.config.LockOsThread {
		runtime.LockOSThread()
		defer runtime.UnlockOSThread()
	}
	defer r.teardown()
	if r.listenFd >= 0 {
		if err := r.poller.Add(r.listenFd, Readable, r.mode, false); err != nil {
			return err
		}
	}
	if err := r.poller.Add(r.bridge.Fd(), Readable, EdgeTriggered, false); err != nil {
		return err
	}
	if err := r.ticker.Arm(r.timers.Interval()); err != nil {
		log.Error().Msgf("got error while arming tick: %+v", err)
	}
	r.isRunning.Store(true)
	for !r.shutdown {
		events, err := r.poller.Wait(blocked)
		if err != nil {
			log.Error().Msgf("got error while waiting for the net events: %+v", err)
			return err
		}
		for i := range events {
			r.dispatch(&events[i])
		}
		if r.pool != nil {
			r.applyCompletions()
		}
		if r.tickPending {
			r.tick()
		}
	}
	log.Info().Msgf("reactor %s is shutting down", r.Name)
	return nil
}

// Register adds fd to the poller with the configured one-shot setting.
func (r *Reactor) Register(fd int, interest Interest, mode TriggerMode) (RegistrationID, error) {
	if err := r.poller.Add(fd, interest, mode, r.config.OneShot); err != nil {
		return 0, err
	}
	r.registration++
	return RegistrationID(r.registration<<32 | uint64(uint32(fd))), nil
}

func (r *Reactor) Deregister(fd int) error {
	return r.poller.Delete(fd)
}

// RearmOneShot re-enables delivery for a one-shot connection fd, asking for
// write readiness too while a write is pending.
func (r *Reactor) RearmOneShot(fd int) error {
	c := r.table.Get(fd)
	if c == nil {
		return ErrInvalidFd
	}
	return r.rearm(c)
}

func (r *Reactor) rearm(c *Connection) error {
	interest := Readable
	if len(c.pending) > 0 {
		interest |= Writable
	}
	return r.poller.Modify(c.fd, interest, r.mode, true)
}

// Attach adopts an already connected non-blocking fd as if it was accepted.
func (r *Reactor) Attach(fd int) (*Connection, error) {
	var addr net.Addr
	if sa, err := unix.Getpeername(fd); err == nil {
		addr = sockaddrToAddr(sa)
	}
	return r.openConn(fd, addr)
}

func (r *Reactor) dispatch(ev *unix.EpollEvent) {
	fd := int(ev.Fd)
	switch {
	case fd == r.listenFd:
		r.accept()
	case fd == r.bridge.Fd():
		r.drainSignals()
	case r.poller.IsWakeFd(fd):
		r.poller.drainWake()
		r.applyCompletions()
	default:
		r.handleConnEvent(fd, ev.Events)
	}
}

func (r *Reactor) drainSignals() {
	_, err := r.bridge.Drain(func(sig syscall.Signal) {
		switch ClassifySignal(sig) {
		case SignalTick:
			r.tickPending = true
		case SignalShutdown:
			log.Info().Msgf("received %s", sig)
			r.shutdown = true
		default:
			if log.Debug().Enabled() {
				log.Debug().Msgf("ignore signal %s", sig)
			}
		}
	})
	if err != nil {
		log.Error().Msgf("got error while draining signals: %+v", err)
	}
}

// expire is the eviction callback of every connection. It runs inside a
// tick, so it only queues the connection.
func (r *Reactor) expire(c *Connection) {
	r.expired = append(r.expired, c)
}

func (r *Reactor) tick() {
	r.tickPending = false
	r.timers.Tick()
	for i, c := range r.expired {
		r.closeConn(c, StateClosedByTimeout)
		r.expired[i] = nil
	}
	r.expired = r.expired[:0]
	r.stats.Ticks.Inc()
	if err := r.ticker.Arm(r.timers.Interval()); err != nil {
		log.Error().Msgf("got error while arming tick: %+v", err)
	}
	if log.Debug().Enabled() {
		log.Debug().Msgf("tick: connections:%d timers:%d stats:%+v", r.table.Len(), r.timers.Len(), r.stats.Snapshot())
	}
}

// touch records activity on c and pushes its deadline.
func (r *Reactor) touch(c *Connection) {
	c.stats.LastActivity = r.clock()
	if c.state == StateAccepted {
		c.state = StateActive
	}
	if c.timer != nil && c.timer.Linked() {
		c.timer = r.timers.Refresh(c.timer, r.idleTimeout)
	} else {
		c.timer = r.timers.Schedule(c, r.idleTimeout)
	}
}

// closeConn is the single exit of a connection. It is a no-op for a freed
// slot or a terminal state, and is postponed while a worker owns c.
func (r *Reactor) closeConn(c *Connection, reason ConnState) {
	if c.fd == freeSlot || c.state.Terminal() {
		return
	}
	c.mu.Lock()
	if c.busy.Load() {
		if c.deferred == StateFree {
			c.deferred = reason
		}
		c.mu.Unlock()
		return
	}
	c.deferred = StateFree
	c.mu.Unlock()

	fd := c.fd
	c.state = reason
	if err := r.Deregister(fd); err != nil && log.Debug().Enabled() {
		log.Debug().Msgf("[%d] %+v", fd, err)
	}
	if err := unix.Close(fd); err != nil {
		log.Error().Msgf("[%d] got error while closing connection: %+v", fd, err)
	}
	if c.timer != nil {
		r.timers.Cancel(c.timer)
		c.timer = nil
	}
	r.handler.OnClose(c, reason)

	eventType := EventClosed
	if reason == StateClosedByTimeout {
		eventType = EventEvicted
		if r.tracker != nil {
			if host := hostOf(c.addr); host != "" {
				count := r.tracker.Record(host)
				if log.Debug().Enabled() {
					log.Debug().Msgf("[%d] evicted %s, %d evictions in window", fd, host, count)
				}
			}
		}
	}
	r.route(c.id, genConnEvent(c, eventType, r.clock()))
	r.stats.closed(reason)
	r.table.Release(fd)
}

func (r *Reactor) route(key string, event *Event) {
	if r.router == nil {
		return
	}
	if err := r.router.Process(key, event); err != nil {
		log.Warn().Msgf("got error while routing %s event: %+v", event.TypeName(), err)
	}
}

func (r *Reactor) postCompletion(done completion) {
	r.compMu.Lock()
	r.completions.Add(done)
	r.compMu.Unlock()
	if err := r.poller.Wake(); err != nil {
		log.Error().Msgf("got error while waking reactor: %+v", err)
	}
}

func (r *Reactor) nextCompletion() (completion, bool) {
	r.compMu.Lock()
	defer r.compMu.Unlock()
	if r.completions.Length() == 0 {
		return completion{}, false
	}
	return r.completions.Remove().(completion), true
}

// applyCompletions takes over connections handed back by workers.
func (r *Reactor) applyCompletions() {
	for {
		done, ok := r.nextCompletion()
		if !ok {
			return
		}
		r.applyCompletion(done)
		r.stats.Completed.Inc()
	}
}

// applyCompletion drops hand-backs for a slot that was closed or reused
// meanwhile.
func (r *Reactor) applyCompletion(done completion) {
	c := done.c
	if c.fd == freeSlot || c.gen != done.gen {
		return
	}
	switch {
	case done.err != nil:
		r.closeConn(c, closeReason(done.err))
	case done.received > 0:
		c.deferred = StateFree
		r.touch(c)
	case c.deferred != StateFree:
		reason := c.deferred
		c.deferred = StateFree
		r.closeConn(c, reason)
	}
}

func (r *Reactor) teardown() {
	r.isRunning.Store(false)
	if err := r.ticker.Stop(); err != nil {
		log.Error().Msgf("got error while stopping tick: %+v", err)
	}
	if r.pool != nil {
		r.pool.Close()
		r.applyCompletions()
	}
	r.table.Each(func(c *Connection) bool {
		r.closeConn(c, StateClosedByShutdown)
		return true
	})
	r.timers.Clear()
	r.closed.Store(true)
	r.bridge.Close()
	r.poller.Close()
}
