package procmanager

import (
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"testing"
)

func TestRecordLaunchRequiresStartedProcess(t *testing.T) {
	cmd := &exec.Cmd{}
	if err := RecordLaunch(filepath.Join(t.TempDir(), "app.exe"), cmd); err == nil {
		t.Error("RecordLaunch with an unstarted *exec.Cmd = nil error, want an error")
	}
}

func TestRecordLaunchAndForget(t *testing.T) {
	binary := filepath.Join(t.TempDir(), "app.exe")
	self, err := os.FindProcess(os.Getpid())
	if err != nil {
		t.Fatal(err)
	}
	cmd := &exec.Cmd{Process: self}

	if err := RecordLaunch(binary, cmd); err != nil {
		t.Fatalf("RecordLaunch: %v", err)
	}
	raw, err := os.ReadFile(pidFile(binary))
	if err != nil {
		t.Fatalf("reading pid sidecar: %v", err)
	}
	if got, _ := strconv.Atoi(string(raw)); got != os.Getpid() {
		t.Errorf("pid sidecar = %q, want %d", raw, os.Getpid())
	}

	Forget(binary)
	if _, err := os.Stat(pidFile(binary)); !os.IsNotExist(err) {
		t.Errorf("pid sidecar still exists after Forget, stat err = %v", err)
	}
}

func TestKillBeforeLinkNoopWhenNeverLaunched(t *testing.T) {
	binary := filepath.Join(t.TempDir(), "never-launched.exe")
	if err := KillBeforeLink(binary); err != nil {
		t.Errorf("KillBeforeLink(never launched) = %v, want nil (no-op)", err)
	}
}

func TestKillBeforeLinkForgetsCorruptPidFile(t *testing.T) {
	binary := filepath.Join(t.TempDir(), "app.exe")
	if err := os.WriteFile(pidFile(binary), []byte("not-a-pid"), 0644); err != nil {
		t.Fatal(err)
	}
	if err := KillBeforeLink(binary); err != nil {
		t.Errorf("KillBeforeLink(corrupt pid) = %v, want nil (treated as already gone)", err)
	}
	if _, err := os.Stat(pidFile(binary)); !os.IsNotExist(err) {
		t.Error("corrupt pid sidecar should be removed")
	}
}
