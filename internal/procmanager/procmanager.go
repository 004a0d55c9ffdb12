// Package procmanager implements the kill-before-link collaborator from
// spec sections 4.6, 4.9 and 5: before relinking an exe or dll, any
// previously launched instance must be terminated so its file lock is
// released, retrying until the kill is confirmed since the lock can
// persist briefly after the signal is sent.
//
// Termination itself is grounded in the teacher's OSCommand.Kill
// (pkg/commands/os_windows.go), which walks the process's descendants via
// CreateToolhelp32Snapshot before killing each one; here that walk is
// delegated to the same third-party package the teacher's sibling
// projects use for it, github.com/jesseduffield/kill, applied to the PID
// this package tracked when the process was launched.
package procmanager

import (
	"os"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/jesseduffield/kill"
	"golang.org/x/xerrors"
)

// pidSuffix names the sidecar file next to a binary that records the PID
// of the instance `run`/`debug` most recently launched.
const pidSuffix = ".pid"

func pidFile(binaryPath string) string {
	return binaryPath + pidSuffix
}

// RecordLaunch persists cmd's PID alongside binaryPath so a later build
// can find and terminate it before relinking. Called by the `run` and
// `debug` subcommands immediately after starting the process.
func RecordLaunch(binaryPath string, cmd *exec.Cmd) error {
	if cmd.Process == nil {
		return xerrors.New("procmanager: cmd has not been started")
	}
	pid := strconv.Itoa(cmd.Process.Pid)
	if err := os.WriteFile(pidFile(binaryPath), []byte(pid), 0644); err != nil {
		return xerrors.Errorf("procmanager: recording launch of %s: %w", binaryPath, err)
	}
	return nil
}

// Forget removes the tracked PID for binaryPath, e.g. after the process
// exits on its own.
func Forget(binaryPath string) {
	os.Remove(pidFile(binaryPath))
}

// KillBeforeLink terminates the tracked previous instance of binaryPath,
// if any, retrying up to maxAttempts times with a short pause between
// attempts since the OS may not release the file lock the instant the
// process dies. A binary that was never launched, or whose tracked
// process has already exited, is a no-op success.
func KillBeforeLink(binaryPath string) error {
	return killWithRetry(binaryPath, 10, 50*time.Millisecond)
}

func killWithRetry(binaryPath string, maxAttempts int, pause time.Duration) error {
	raw, err := os.ReadFile(pidFile(binaryPath))
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return xerrors.Errorf("procmanager: %w", err)
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(raw)))
	if err != nil {
		Forget(binaryPath)
		return nil
	}

	proc, err := os.FindProcess(pid)
	if err != nil {
		Forget(binaryPath)
		return nil
	}

	var lastErr error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		cmd := &exec.Cmd{Process: proc}
		if err := kill.Kill(cmd); err != nil {
			lastErr = err
			time.Sleep(pause)
			continue
		}
		Forget(binaryPath)
		return nil
	}
	return xerrors.Errorf("procmanager: could not terminate previous instance of %s after %d attempts: %w", binaryPath, maxAttempts, lastErr)
}
