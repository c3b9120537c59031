package schedz

import (
	"context"
	"testing"
	"time"

	"github.com/zoobzio/clockz"
)

// fakeClock is the slice of the fake clock's surface these tests drive.
type fakeClock interface {
	clockz.Clock
	Advance(time.Duration)
	BlockUntilReady()
}

// advanceUntil steps the fake clock until the condition holds, failing the
// test if it never does. Stepping in a loop sidesteps the race between a
// worker registering its timer and the clock being advanced past it.
func advanceUntil(t *testing.T, clock fakeClock, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not reached before deadline")
		}
		clock.BlockUntilReady()
		clock.Advance(time.Second)
		time.Sleep(time.Millisecond)
	}
}

// detach pulls the pid out of tier 0 and hands it to the detour pool, as
// the core does when it observes an I/O request for the current process.
func detach(sched *Scheduler, pid, target int) *Process {
	sched.mu.Lock()
	defer sched.mu.Unlock()
	sched.queues[0].popFront()
	p := sched.procs[pid]
	p.state = StateIORequested
	sched.pool.block(context.Background(), p, target)
	return p
}

func TestDetour(t *testing.T) {
	t.Run("Readmits At The Target Tier After The Block", func(t *testing.T) {
		clock := clockz.NewFakeClock()
		sched, _ := newTestScheduler(t, Config{}, nil)
		sched.WithClock(clock)
		if err := sched.Admit(900); err != nil {
			t.Fatalf("Admit: %v", err)
		}

		detach(sched, 900, 1)
		if sched.Blocked() != 1 {
			t.Fatalf("blocked = %d, want 1", sched.Blocked())
		}

		advanceUntil(t, clock, func() bool {
			snap := sched.Snapshot()
			return len(snap.Tiers[1]) == 1 && snap.Tiers[1][0] == 900
		})

		if sched.Blocked() != 0 {
			t.Errorf("blocked = %d, want 0", sched.Blocked())
		}
		if state, _ := sched.ProcessState(900); state != StateReady {
			t.Errorf("state = %v, want ready", state)
		}
		sched.pool.wait()
	})

	t.Run("Discards A Process Terminated While Blocked", func(t *testing.T) {
		clock := clockz.NewFakeClock()
		sched, _ := newTestScheduler(t, Config{}, nil)
		sched.WithClock(clock)
		if err := sched.Admit(901); err != nil {
			t.Fatalf("Admit: %v", err)
		}

		p := detach(sched, 901, 0)

		// An exit drained after the handoff tombstones the record.
		sched.mu.Lock()
		p.state = StateTerminated
		sched.live--
		sched.mu.Unlock()

		advanceUntil(t, clock, func() bool {
			return sched.Blocked() == 0
		})
		sched.pool.wait()

		snap := sched.Snapshot()
		for i, tier := range snap.Tiers {
			if len(tier) != 0 {
				t.Errorf("tier %d = %v, want empty", i, tier)
			}
		}
		if state, _ := sched.ProcessState(901); state != StateTerminated {
			t.Errorf("state = %v, want terminated", state)
		}
	})

	t.Run("Blocked Count Never Exceeds Live", func(t *testing.T) {
		clock := clockz.NewFakeClock()
		sched, _ := newTestScheduler(t, Config{}, nil)
		sched.WithClock(clock)
		for _, pid := range []int{910, 911} {
			if err := sched.Admit(pid); err != nil {
				t.Fatalf("Admit(%d): %v", pid, err)
			}
		}

		detach(sched, 910, 0)
		detach(sched, 911, 0)

		if blocked, live := sched.Blocked(), sched.Live(); blocked > live {
			t.Errorf("blocked %d exceeds live %d", blocked, live)
		}

		advanceUntil(t, clock, func() bool {
			return sched.Blocked() == 0
		})
		sched.pool.wait()

		snap := sched.Snapshot()
		if len(snap.Tiers[0]) != 2 {
			t.Errorf("tier 0 = %v, want both pids back", snap.Tiers[0])
		}
	})
}
