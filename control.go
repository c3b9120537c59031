package schedz

// ProcessController is the scheduler's only handle on OS process control.
// The core never touches a child directly: it resumes one for a quantum,
// suspends it, and eventually reaps it, all by identifier.
//
// Implementations must tolerate being called for a pid whose child has
// already died; Reap in particular is best-effort.
type ProcessController interface {
	// Resume continues a stopped process.
	Resume(pid int) error

	// Suspend stops a running process.
	Suspend(pid int) error

	// Reap terminates the process and releases OS bookkeeping.
	Reap(pid int) error
}
