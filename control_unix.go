//go:build unix

package schedz

import "syscall"

// osController drives children with POSIX job-control signals. Suspension
// uses SIGSTOP rather than SIGTSTP so a child cannot catch or ignore it.
type osController struct{}

// NewOSController returns a ProcessController backed by SIGCONT, SIGSTOP,
// and SIGKILL.
func NewOSController() ProcessController {
	return osController{}
}

func (osController) Resume(pid int) error {
	return syscall.Kill(pid, syscall.SIGCONT)
}

func (osController) Suspend(pid int) error {
	return syscall.Kill(pid, syscall.SIGSTOP)
}

// Reap is best-effort: by the time the scheduler observes an exit the child
// may already be gone, and ESRCH is not an error worth surfacing.
func (osController) Reap(pid int) error {
	err := syscall.Kill(pid, syscall.SIGKILL)
	if err == syscall.ESRCH {
		return nil
	}
	return err
}
