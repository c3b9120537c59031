//go:build unix

// Command schedz runs the MLFQ scheduler over a workload read from stdin.
//
// Workload grammar, one entry per line:
//
//	exec <program> (<int>[, <int>]*)
//
// Parsing stops at the first line that does not begin with 'e'. Each child
// is started suspended, admitted at the top-priority tier, and then
// time-sliced until every admitted process has terminated.
//
// Exit codes: 0 on normal completion, 1 on setup or runtime failure, 2 on
// a malformed workload.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"github.com/zoobzio/schedz"
)

var (
	flagTiers       int
	flagBaseQuantum int
	flagIOBlock     int
	flagUnit        time.Duration
	flagVerbose     bool
)

func main() {
	root := &cobra.Command{
		Use:   "schedz",
		Short: "Multi-level feedback queue scheduler for child processes",
		Long: `schedz reads a workload description from stdin, spawns each program as a
suspended child, and time-slices the children across priority tiers.
Children signal I/O requests with SIGUSR1 and completion with SIGUSR2.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          run,
	}

	root.Flags().IntVarP(&flagTiers, "tiers", "t", schedz.DefaultTiers, "number of priority tiers")
	root.Flags().IntVarP(&flagBaseQuantum, "quantum", "q", schedz.DefaultBaseQuantum, "tier-0 quantum in time units")
	root.Flags().IntVarP(&flagIOBlock, "io-block", "b", schedz.DefaultIOBlockTime, "simulated I/O duration in time units")
	root.Flags().DurationVarP(&flagUnit, "unit", "u", schedz.DefaultUnit, "wall-clock length of one time unit")
	root.Flags().BoolVarP(&flagVerbose, "verbose", "v", false, "log quantum interruptions and idle waits")

	if err := root.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "schedz: %v\n", err)
		if errors.Is(err, schedz.ErrMalformedWorkload) {
			os.Exit(2)
		}
		os.Exit(1)
	}
}

func run(cmd *cobra.Command, _ []string) error {
	cfg := schedz.Config{
		Tiers:       flagTiers,
		BaseQuantum: flagBaseQuantum,
		IOBlockTime: flagIOBlock,
		Unit:        flagUnit,
	}

	sched, err := schedz.New(schedz.NewOSController(), cfg)
	if err != nil {
		return err
	}
	defer sched.Close()

	if err := subscribe(cmd, sched); err != nil {
		return err
	}

	admitter := schedz.NewAdmitter(sched, schedz.NewExecSpawner())
	n, err := admitter.AdmitAll(os.Stdin)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%d processes waiting to be executed\n", n)

	bridge := schedz.NewSignalBridge(sched.Inbox())
	bridge.Start()
	defer bridge.Stop()

	return sched.Run(context.Background())
}

// subscribe wires the observable log lines to the scheduler's hook stream.
func subscribe(cmd *cobra.Command, sched *schedz.Scheduler) error {
	out := cmd.OutOrStdout()

	logf := func(format string, args ...any) {
		fmt.Fprintf(out, format+"\n", args...)
	}

	hooks := []error{
		sched.OnAdmitted(func(_ context.Context, e schedz.SchedulerEvent) error {
			logf("process %d admitted to queue #0", e.PID)
			return nil
		}),
		sched.OnQuantumStart(func(_ context.Context, e schedz.SchedulerEvent) error {
			logf("scheduling process %d on queue #%d for %d units", e.PID, e.Tier, e.Quantum)
			return nil
		}),
		sched.OnDemoted(func(_ context.Context, e schedz.SchedulerEvent) error {
			if e.TargetTier == e.Tier {
				logf("process %d will remain in queue #%d", e.PID, e.Tier)
			} else {
				logf("process %d will migrate from queue #%d to queue #%d", e.PID, e.Tier, e.TargetTier)
			}
			return nil
		}),
		sched.OnIOBlocked(func(_ context.Context, e schedz.SchedulerEvent) error {
			logf("process %d is blocked by IO", e.PID)
			return nil
		}),
		sched.OnIOReadmitted(func(_ context.Context, e schedz.SchedulerEvent) error {
			logf("process %d is no longer blocked by IO, back in queue #%d", e.PID, e.TargetTier)
			return nil
		}),
		sched.OnFinished(func(_ context.Context, e schedz.SchedulerEvent) error {
			logf("process %d finished", e.PID)
			if e.Live > 0 {
				logf("there are %d remaining processes: %d in queue, %d blocked by IO",
					e.Live, e.Ready, e.Blocked)
			} else {
				logf("no remaining processes")
			}
			return nil
		}),
	}

	if flagVerbose {
		hooks = append(hooks,
			sched.OnQuantumEnd(func(_ context.Context, e schedz.SchedulerEvent) error {
				logf("interrupted process %d", e.PID)
				return nil
			}),
			sched.OnIdle(func(_ context.Context, e schedz.SchedulerEvent) error {
				logf("all %d live processes blocked by IO, waiting", e.Blocked)
				return nil
			}),
		)
	}

	return errors.Join(hooks...)
}
