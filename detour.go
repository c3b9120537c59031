package schedz

import (
	"context"
	"sync"
	"time"

	"github.com/zoobzio/hookz"
	"github.com/zoobzio/metricz"
)

// Observability constants for the I/O detour.
const (
	// Metrics.
	DetourBlockedTotal    = metricz.Key("detour.blocked.total")
	DetourReadmittedTotal = metricz.Key("detour.readmitted.total")
	DetourDiscardedTotal  = metricz.Key("detour.discarded.total")
	DetourBlockedGauge    = metricz.Key("detour.blocked.current")

	// Hook event keys.
	EventIOBlocked    = hookz.Key("detour.blocked")
	EventIOReadmitted = hookz.Key("detour.readmitted")
	EventIODiscarded  = hookz.Key("detour.discarded")
)

// detourPool holds processes that voluntarily released the CPU for I/O.
// Each blocked process gets its own worker goroutine that simulates the
// I/O wait on the scheduler clock and then re-admits the process at its
// promoted tier. Workers share nothing but the scheduler mutex and the
// ready queues.
type detourPool struct {
	s  *Scheduler
	wg sync.WaitGroup
}

// block hands a process to a fresh worker targeting the given reinsertion
// tier. The caller must hold the scheduler mutex; the blocked count becomes
// visible atomically with the process leaving the current slot.
func (d *detourPool) block(ctx context.Context, p *Process, target int) {
	d.s.blocked++
	d.s.metrics.Counter(DetourBlockedTotal).Inc()
	d.s.metrics.Gauge(DetourBlockedGauge).Set(float64(d.s.blocked))
	d.s.emit(ctx, EventIOBlocked, SchedulerEvent{
		PID:        p.PID,
		TargetTier: target,
		Live:       d.s.live,
		Blocked:    d.s.blocked,
	})
	d.wg.Add(1)
	go d.worker(ctx, p, target)
}

func (d *detourPool) worker(ctx context.Context, p *Process, target int) {
	defer d.wg.Done()

	<-d.s.clock.After(time.Duration(d.s.ioBlock) * d.s.unit)

	d.s.mu.Lock()
	defer d.s.mu.Unlock()

	d.s.blocked--
	d.s.metrics.Gauge(DetourBlockedGauge).Set(float64(d.s.blocked))

	// A process that exited during its final quantum may already have been
	// reaped by the time the block elapses. The tombstone tells us the
	// scheduler no longer owns this pid; re-queueing it would resurrect a
	// dead identifier.
	if p.state == StateTerminated {
		d.s.metrics.Counter(DetourDiscardedTotal).Inc()
		d.s.emit(ctx, EventIODiscarded, SchedulerEvent{
			PID:     p.PID,
			Live:    d.s.live,
			Blocked: d.s.blocked,
		})
		return
	}

	p.state = StateReady
	d.s.queues[target].pushBack(p.PID)
	d.s.metrics.Counter(DetourReadmittedTotal).Inc()
	d.s.emit(ctx, EventIOReadmitted, SchedulerEvent{
		PID:        p.PID,
		TargetTier: target,
		Live:       d.s.live,
		Blocked:    d.s.blocked,
	})
}

// wait blocks until every outstanding worker has re-admitted or discarded
// its process.
func (d *detourPool) wait() {
	d.wg.Wait()
}
