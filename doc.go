// Package schedz implements a multi-level feedback queue (MLFQ) scheduler
// for OS child processes, with a cooperative, simulated I/O subsystem.
//
// # Overview
//
// schedz time-slices a set of suspended children by resuming one at a time
// for the quantum of its priority tier, then suspending it and deciding its
// fate from the notifications it sent in the meantime. Processes that burn
// their whole quantum migrate toward lower-priority tiers with longer
// slices; processes that voluntarily release the CPU for I/O are parked in
// a detour for a fixed simulated duration and re-admitted one tier higher.
//
// # Core Concepts
//
//   - Scheduler: the MLFQ core. Owns the per-tier ready queues, the
//     auxiliary staging queue, the signal inbox, and the I/O detour pool,
//     all protected by a single mutex.
//   - TierPolicy: the queue shape. Quantum(i) doubles per tier while the
//     per-rotation cycle budget Runs(i) halves, so every tier gets the same
//     nominal time budget per full rotation.
//   - Inbox: a bounded FIFO carrying raw child notifications (I/O request,
//     exit) from asynchronous delivery to the loop's single drain point per
//     quantum.
//   - SignalBridge: converts SIGUSR1/SIGUSR2 into inbox events using the
//     os/signal channel machinery, so no work happens in handler context.
//   - ProcessController: the only process-control surface the core touches;
//     the POSIX implementation maps to SIGCONT, SIGSTOP, and SIGKILL.
//   - Admitter/Spawner: reads the textual workload, starts each child
//     suspended, and enqueues it at the top tier.
//
// # Observability
//
// The scheduler emits typed hookz events for every observable decision
// (admission, each served quantum, migrations, detour entry and exit,
// completion), keeps metricz counters and gauges under the scheduler.* and
// detour.* namespaces, and opens a tracez span per served quantum. The
// cmd/schedz binary's log output is nothing but a hook subscriber.
//
// # Usage Example
//
//	sched, err := schedz.New(schedz.NewOSController(), schedz.Config{})
//	if err != nil {
//	    return err
//	}
//	defer sched.Close()
//
//	admitter := schedz.NewAdmitter(sched, schedz.NewExecSpawner())
//	if _, err := admitter.AdmitAll(os.Stdin); err != nil {
//	    return err
//	}
//
//	bridge := schedz.NewSignalBridge(sched.Inbox())
//	bridge.Start()
//	defer bridge.Stop()
//
//	return sched.Run(context.Background())
//
// Time is abstracted behind clockz throughout: every quantum sleep, idle
// wait, and simulated I/O block goes through the scheduler's clock, so
// tests can shrink the time unit or drive a fake clock deterministically.
package schedz
