package schedz

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/zoobzio/clockz"
	"github.com/zoobzio/hookz"
	"github.com/zoobzio/metricz"
	"github.com/zoobzio/tracez"
)

// Observability constants for the scheduler core.
const (
	// Metrics.
	SchedulerAdmittedTotal  = metricz.Key("scheduler.admitted.total")
	SchedulerQuantaTotal    = metricz.Key("scheduler.quanta.total")
	SchedulerDemotionsTotal = metricz.Key("scheduler.demotions.total")
	SchedulerFinishedTotal  = metricz.Key("scheduler.finished.total")
	SchedulerIdleWaitsTotal = metricz.Key("scheduler.idle-waits.total")
	SchedulerLiveGauge      = metricz.Key("scheduler.live.current")

	// Spans.
	SchedulerQuantumSpan = tracez.Key("scheduler.quantum")

	// Tags.
	SchedulerTagPID     = tracez.Tag("scheduler.pid")
	SchedulerTagTier    = tracez.Tag("scheduler.tier")
	SchedulerTagQuantum = tracez.Tag("scheduler.quantum.units")
	SchedulerTagOutcome = tracez.Tag("scheduler.outcome")

	// Hook event keys.
	EventAdmitted     = hookz.Key("scheduler.admitted")
	EventQuantumStart = hookz.Key("scheduler.quantum-start")
	EventQuantumEnd   = hookz.Key("scheduler.quantum-end")
	EventDemoted      = hookz.Key("scheduler.demoted")
	EventFinished     = hookz.Key("scheduler.finished")
	EventIdle         = hookz.Key("scheduler.idle")
)

// SchedulerEvent describes one observable scheduling decision. The same
// event shape backs every hook key; fields that do not apply to a given
// key are zero.
type SchedulerEvent struct {
	Timestamp  time.Time
	PID        int // process the event concerns
	Tier       int // tier where the event happened
	TargetTier int // migration or reinsertion destination
	Quantum    int // slice length in time units
	Live       int // live processes after the event
	Ready      int // processes sitting in ready queues
	Blocked    int // processes held by the I/O detour
}

// Default configuration values, matching the classic three-tier shape.
const (
	DefaultTiers       = 3
	DefaultBaseQuantum = 2
	DefaultIOBlockTime = 3
	DefaultUnit        = time.Second
)

// Config sets the shape and pacing of a Scheduler. The zero value of any
// field falls back to its default.
type Config struct {
	// Tiers is the number of priority queues.
	Tiers int

	// BaseQuantum is the tier-0 time slice, in units.
	BaseQuantum int

	// IOBlockTime is the simulated I/O duration, in units.
	IOBlockTime int

	// Unit is the wall-clock length of one scheduler time unit. Tests set
	// this to a millisecond to run workloads in real time without waiting.
	Unit time.Duration

	// InboxCapacity bounds the signal inbox ring.
	InboxCapacity int
}

func (c Config) withDefaults() Config {
	if c.Tiers == 0 {
		c.Tiers = DefaultTiers
	}
	if c.BaseQuantum == 0 {
		c.BaseQuantum = DefaultBaseQuantum
	}
	if c.IOBlockTime == 0 {
		c.IOBlockTime = DefaultIOBlockTime
	}
	if c.Unit == 0 {
		c.Unit = DefaultUnit
	}
	if c.InboxCapacity == 0 {
		c.InboxCapacity = DefaultInboxCapacity
	}
	return c
}

// Scheduler is a multi-level feedback queue over suspended OS children.
// It owns every ready queue, the auxiliary queue, the signal inbox, and
// the I/O detour pool; one mutex protects all of it. The scheduler spends
// nearly all of its time sleeping through quanta, so a single lock costs
// nothing and removes whole classes of ordering bugs.
//
// All state lives on the value: two schedulers in one process do not share
// anything except, on POSIX systems, the process-wide signal dispositions
// installed by a SignalBridge.
type Scheduler struct {
	mu         sync.Mutex
	policy     TierPolicy
	queues     []*readyQueue
	aux        *readyQueue
	inbox      *Inbox
	pool       *detourPool
	procs      map[int]*Process
	controller ProcessController
	clock      clockz.Clock
	metrics    *metricz.Registry
	tracer     *tracez.Tracer
	hooks      *hookz.Hooks[SchedulerEvent]
	unit       time.Duration
	ioBlock    int
	live       int
	blocked    int
	current    *Process
	activeTier int
	cyclesLeft int
}

// New creates a Scheduler driving children through the given controller.
// It fails when the controller is nil or the configuration does not
// describe a usable queue shape; nothing is partially constructed on error.
func New(controller ProcessController, cfg Config) (*Scheduler, error) {
	if controller == nil {
		return nil, ErrNilController
	}
	cfg = cfg.withDefaults()

	policy := TierPolicy{Tiers: cfg.Tiers, BaseQuantum: cfg.BaseQuantum}
	if err := policy.Validate(); err != nil {
		return nil, fmt.Errorf("scheduler setup: %w", err)
	}
	if cfg.IOBlockTime < 1 {
		return nil, fmt.Errorf("scheduler setup: io block time must be >= 1, got %d", cfg.IOBlockTime)
	}
	if cfg.Unit < 0 {
		return nil, fmt.Errorf("scheduler setup: unit must be positive, got %v", cfg.Unit)
	}

	metrics := metricz.New()
	metrics.Counter(SchedulerAdmittedTotal)
	metrics.Counter(SchedulerQuantaTotal)
	metrics.Counter(SchedulerDemotionsTotal)
	metrics.Counter(SchedulerFinishedTotal)
	metrics.Counter(SchedulerIdleWaitsTotal)
	metrics.Gauge(SchedulerLiveGauge)
	metrics.Counter(DetourBlockedTotal)
	metrics.Counter(DetourReadmittedTotal)
	metrics.Counter(DetourDiscardedTotal)
	metrics.Gauge(DetourBlockedGauge)

	queues := make([]*readyQueue, policy.Tiers)
	for i := range queues {
		queues[i] = newReadyQueue(i)
	}

	s := &Scheduler{
		policy:     policy,
		queues:     queues,
		aux:        newReadyQueue(-1),
		inbox:      NewInbox(cfg.InboxCapacity),
		procs:      make(map[int]*Process),
		controller: controller,
		clock:      clockz.RealClock,
		metrics:    metrics,
		tracer:     tracez.New(),
		hooks:      hookz.New[SchedulerEvent](),
		unit:       cfg.Unit,
		ioBlock:    cfg.IOBlockTime,
		activeTier: 0,
		cyclesLeft: policy.Runs(0),
	}
	s.pool = &detourPool{s: s}
	return s, nil
}

// Admit registers a suspended child at the top-priority tier. Admission
// order within tier 0 is preserved until first scheduling.
func (s *Scheduler) Admit(pid int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.procs[pid]; ok {
		return ErrDuplicateProcess
	}
	p := &Process{PID: pid, state: StateReady}
	s.procs[pid] = p
	s.queues[0].pushBack(pid)
	s.live++
	s.metrics.Counter(SchedulerAdmittedTotal).Inc()
	s.metrics.Gauge(SchedulerLiveGauge).Set(float64(s.live))
	s.emit(context.Background(), EventAdmitted, SchedulerEvent{
		PID:  pid,
		Tier: 0,
		Live: s.live,
	})
	return nil
}

// Run executes the scheduling loop until every admitted process has
// terminated, then waits for outstanding detour workers before returning.
// With an empty workload it returns immediately.
//
// Context cancellation is honored between quanta; the per-quantum sleep
// itself is not cancellable, matching the capture-then-drain discipline of
// the inbox.
func (s *Scheduler) Run(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			s.pool.wait()
			return &Error{Op: "run", Err: err, Canceled: true, Timestamp: s.clock.Now()}
		}

		s.mu.Lock()
		if s.live <= 0 {
			s.mu.Unlock()
			break
		}
		if s.blocked >= s.live {
			// Everyone is parked in the detour. Wait a unit for a worker
			// to re-admit someone instead of spinning through empty tiers.
			blocked := s.blocked
			s.mu.Unlock()
			s.metrics.Counter(SchedulerIdleWaitsTotal).Inc()
			s.emit(ctx, EventIdle, SchedulerEvent{Blocked: blocked})
			select {
			case <-s.clock.After(s.unit):
			case <-ctx.Done():
			}
			continue
		}

		// Tiers rotate deterministically. An empty tier still burns one
		// cycle per outer iteration, bounding starvation of lower tiers
		// while guaranteeing rotation progress.
		if s.cyclesLeft == 0 {
			s.activeTier = (s.activeTier + 1) % s.policy.Tiers
			s.cyclesLeft = s.policy.Runs(s.activeTier)
		}
		s.cyclesLeft--
		tier := s.activeTier
		queue := s.queues[tier]
		quantum := s.policy.Quantum(tier)
		s.mu.Unlock()

		if err := s.serveTier(ctx, tier, queue, quantum); err != nil {
			s.pool.wait()
			return err
		}

		// Processes demoted in place at the lowest tier were staged in the
		// auxiliary queue so they could not be re-picked within the visit
		// that demoted them. Surface them for the next visit.
		s.mu.Lock()
		s.aux.transferAllTo(queue)
		s.mu.Unlock()
	}

	s.pool.wait()
	return nil
}

// serveTier drains one tier for a single visit: every process found in the
// queue gets exactly one slice. The queue is fixed for the duration of the
// visit even though the active tier bookkeeping may be rotated by the next
// outer iteration.
func (s *Scheduler) serveTier(ctx context.Context, tier int, queue *readyQueue, quantum int) error {
	for {
		if err := ctx.Err(); err != nil {
			return &Error{Op: "run", Err: err, Canceled: true, Timestamp: s.clock.Now()}
		}

		s.mu.Lock()
		pid, ok := queue.popFront()
		if !ok {
			s.mu.Unlock()
			return nil
		}
		p := s.procs[pid]
		p.state = StateRunning
		s.current = p
		s.mu.Unlock()

		qctx, span := s.tracer.StartSpan(ctx, SchedulerQuantumSpan)
		span.SetTag(SchedulerTagPID, strconv.Itoa(pid))
		span.SetTag(SchedulerTagTier, strconv.Itoa(tier))
		span.SetTag(SchedulerTagQuantum, strconv.Itoa(quantum))

		s.metrics.Counter(SchedulerQuantaTotal).Inc()
		s.emit(qctx, EventQuantumStart, SchedulerEvent{PID: pid, Tier: tier, Quantum: quantum})

		if err := s.controller.Resume(pid); err != nil {
			s.clearCurrent()
			span.Finish()
			return &Error{Op: "resume", PID: pid, Tier: tier, Err: err, Timestamp: s.clock.Now()}
		}
		<-s.clock.After(time.Duration(quantum) * s.unit)
		if err := s.controller.Suspend(pid); err != nil {
			s.clearCurrent()
			span.Finish()
			return &Error{Op: "suspend", PID: pid, Tier: tier, Err: err, Timestamp: s.clock.Now()}
		}

		s.emit(qctx, EventQuantumEnd, SchedulerEvent{PID: pid, Tier: tier, Quantum: quantum})

		s.mu.Lock()
		outcome := s.decide(qctx, p, tier)
		s.current = nil
		s.mu.Unlock()

		span.SetTag(SchedulerTagOutcome, outcome)
		span.Finish()
	}
}

// decide drains the inbox and applies every captured event to the process
// that just ran, in arrival order, then demotes it if no event consumed it.
// Must be called with the scheduler mutex held.
func (s *Scheduler) decide(ctx context.Context, p *Process, tier int) string {
	for _, kind := range s.inbox.Drain() {
		switch kind {
		case IORequest:
			// A second I/O request in the same quantum, or one trailing an
			// exit, has no process left to detour.
			if p.state != StateRunning {
				continue
			}
			p.state = StateIORequested
			s.pool.block(ctx, p, s.policy.Higher(tier))
		case ProcessExit:
			if p.state == StateTerminated {
				continue
			}
			p.state = StateTerminated
			s.live--
			s.metrics.Counter(SchedulerFinishedTotal).Inc()
			s.metrics.Gauge(SchedulerLiveGauge).Set(float64(s.live))
			s.emit(ctx, EventFinished, SchedulerEvent{
				PID:     p.PID,
				Tier:    tier,
				Live:    s.live,
				Ready:   s.readyCount(),
				Blocked: s.blocked,
			})
			_ = s.controller.Reap(p.PID) //nolint:errcheck
		}
	}

	if p.state == StateIORequested {
		return "io"
	}
	if p.state == StateTerminated {
		return "finished"
	}

	// No event consumed the process: it exhausted its quantum. The lowest
	// tier demotes into the auxiliary queue so the process cannot be
	// re-picked within the visit that demoted it.
	target := s.policy.Lower(tier)
	p.state = StateReady
	if target == tier {
		s.aux.pushBack(p.PID)
	} else {
		s.queues[target].pushBack(p.PID)
	}
	s.metrics.Counter(SchedulerDemotionsTotal).Inc()
	s.emit(ctx, EventDemoted, SchedulerEvent{
		PID:        p.PID,
		Tier:       tier,
		TargetTier: target,
		Live:       s.live,
	})
	return "demoted"
}

func (s *Scheduler) clearCurrent() {
	s.mu.Lock()
	s.current = nil
	s.mu.Unlock()
}

// readyCount sums the ready and auxiliary queues. Must be called with the
// scheduler mutex held.
func (s *Scheduler) readyCount() int {
	n := s.aux.size()
	for _, q := range s.queues {
		n += q.size()
	}
	return n
}

func (s *Scheduler) emit(ctx context.Context, key hookz.Key, e SchedulerEvent) {
	if e.Timestamp.IsZero() {
		e.Timestamp = s.clock.Now()
	}
	_ = s.hooks.Emit(ctx, key, e) //nolint:errcheck
}

// Live returns the number of admitted, not-yet-terminated processes.
func (s *Scheduler) Live() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.live
}

// Blocked returns the number of processes currently held by the I/O detour.
func (s *Scheduler) Blocked() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.blocked
}

// ProcessState reports the lifecycle state of an admitted pid.
func (s *Scheduler) ProcessState(pid int) (ProcessState, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.procs[pid]
	if !ok {
		return 0, false
	}
	return p.state, true
}

// Snapshot is a consistent copy of the scheduler's queue occupancy, taken
// under the mutex. CurrentPID is zero when no process holds the slot.
type Snapshot struct {
	Tiers      [][]int
	Aux        []int
	CurrentPID int
	ActiveTier int
	CyclesLeft int
	Live       int
	Blocked    int
}

// Snapshot returns the scheduler's occupancy at a mutex-released instant.
func (s *Scheduler) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap := Snapshot{
		Tiers:      make([][]int, len(s.queues)),
		Aux:        s.aux.snapshot(),
		ActiveTier: s.activeTier,
		CyclesLeft: s.cyclesLeft,
		Live:       s.live,
		Blocked:    s.blocked,
	}
	for i, q := range s.queues {
		snap.Tiers[i] = q.snapshot()
	}
	if s.current != nil {
		snap.CurrentPID = s.current.PID
	}
	return snap
}

// Policy returns the tier policy in effect.
func (s *Scheduler) Policy() TierPolicy {
	return s.policy
}

// Inbox returns the signal inbox, for wiring a SignalBridge or for tests
// that stand in for one.
func (s *Scheduler) Inbox() *Inbox {
	return s.inbox
}

// Metrics returns the metrics registry for this scheduler.
func (s *Scheduler) Metrics() *metricz.Registry {
	return s.metrics
}

// Tracer returns the tracer for this scheduler.
func (s *Scheduler) Tracer() *tracez.Tracer {
	return s.tracer
}

// WithClock sets a custom clock for testing. Call before Run.
func (s *Scheduler) WithClock(clock clockz.Clock) *Scheduler {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clock = clock
	return s
}

// OnAdmitted registers a handler for process admissions.
func (s *Scheduler) OnAdmitted(handler func(context.Context, SchedulerEvent) error) error {
	_, err := s.hooks.Hook(EventAdmitted, handler)
	return err
}

// OnQuantumStart registers a handler for the start of each served slice.
func (s *Scheduler) OnQuantumStart(handler func(context.Context, SchedulerEvent) error) error {
	_, err := s.hooks.Hook(EventQuantumStart, handler)
	return err
}

// OnQuantumEnd registers a handler for the end of each served slice.
func (s *Scheduler) OnQuantumEnd(handler func(context.Context, SchedulerEvent) error) error {
	_, err := s.hooks.Hook(EventQuantumEnd, handler)
	return err
}

// OnDemoted registers a handler for quantum-exhaustion migrations.
func (s *Scheduler) OnDemoted(handler func(context.Context, SchedulerEvent) error) error {
	_, err := s.hooks.Hook(EventDemoted, handler)
	return err
}

// OnFinished registers a handler for process completions.
func (s *Scheduler) OnFinished(handler func(context.Context, SchedulerEvent) error) error {
	_, err := s.hooks.Hook(EventFinished, handler)
	return err
}

// OnIdle registers a handler for idle waits while every live process is
// blocked in the detour.
func (s *Scheduler) OnIdle(handler func(context.Context, SchedulerEvent) error) error {
	_, err := s.hooks.Hook(EventIdle, handler)
	return err
}

// OnIOBlocked registers a handler for processes entering the I/O detour.
func (s *Scheduler) OnIOBlocked(handler func(context.Context, SchedulerEvent) error) error {
	_, err := s.hooks.Hook(EventIOBlocked, handler)
	return err
}

// OnIOReadmitted registers a handler for processes returning from the
// detour into their promoted tier.
func (s *Scheduler) OnIOReadmitted(handler func(context.Context, SchedulerEvent) error) error {
	_, err := s.hooks.Hook(EventIOReadmitted, handler)
	return err
}

// OnIODiscarded registers a handler for detoured processes found
// terminated at reinsertion time.
func (s *Scheduler) OnIODiscarded(handler func(context.Context, SchedulerEvent) error) error {
	_, err := s.hooks.Hook(EventIODiscarded, handler)
	return err
}

// Close releases observability resources. It does not stop a running
// scheduler; cancel the Run context for that.
func (s *Scheduler) Close() error {
	if s.tracer != nil {
		s.tracer.Close()
	}
	s.hooks.Close()
	return nil
}
