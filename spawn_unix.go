//go:build unix

package schedz

import (
	"fmt"
	"os"
	"os/exec"
	"os/signal"
	"syscall"
	"time"

	"github.com/zoobzio/clockz"
)

// DefaultHandshakeTimeout bounds how long the spawner waits for a child to
// announce readiness before stopping it anyway.
const DefaultHandshakeTimeout = time.Second

// ExecSpawner starts workload children via exec and hands them to the
// scheduler already stopped.
//
// Startup uses an explicit handshake: a cooperating child raises SIGUSR2
// once its own signal handlers are installed, and only then is it stopped.
// Children that never signal are stopped after the handshake timeout,
// which degrades to a plain grace period rather than stalling admission.
type ExecSpawner struct {
	clock   clockz.Clock
	timeout time.Duration
}

// NewExecSpawner creates a spawner with the default handshake timeout.
func NewExecSpawner() *ExecSpawner {
	return &ExecSpawner{
		clock:   clockz.RealClock,
		timeout: DefaultHandshakeTimeout,
	}
}

// WithHandshakeTimeout sets the readiness wait bound.
func (sp *ExecSpawner) WithHandshakeTimeout(d time.Duration) *ExecSpawner {
	sp.timeout = d
	return sp
}

// WithClock sets a custom clock for testing.
func (sp *ExecSpawner) WithClock(clock clockz.Clock) *ExecSpawner {
	sp.clock = clock
	return sp
}

// Spawn starts the child, waits for its readiness signal, stops it, and
// returns its pid. A child that cannot be started or stopped is reported
// as a spawn failure and never reaches a ready queue.
func (sp *ExecSpawner) Spawn(line ExecLine) (int, error) {
	ready := make(chan os.Signal, 1)
	signal.Notify(ready, syscall.SIGUSR2)
	defer signal.Stop(ready)

	argv := line.Argv()
	cmd := exec.Command(argv[0], argv[1:]...) //nolint:gosec // workload lines are the operator's own input
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	if err := cmd.Start(); err != nil {
		return 0, fmt.Errorf("starting %s: %w", line.Program, err)
	}
	pid := cmd.Process.Pid

	select {
	case <-ready:
	case <-sp.clock.After(sp.timeout):
	}

	if err := syscall.Kill(pid, syscall.SIGSTOP); err != nil {
		return 0, fmt.Errorf("stopping %s (pid %d): %w", line.Program, pid, err)
	}

	// Reap the OS child whenever it dies so it never lingers as a zombie.
	go func() {
		_ = cmd.Wait() //nolint:errcheck
	}()

	return pid, nil
}
