package treekill

import (
	"os/exec"
	"syscall"
	"testing"
	"time"
)

func TestKillTerminatesProcessGroup(t *testing.T) {
	cmd := exec.Command("sh", "-c", "sleep 5 & wait")
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	if err := cmd.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}

	done := make(chan error, 1)
	go func() { done <- cmd.Wait() }()

	if err := Kill(cmd.Process.Pid); err != nil {
		t.Fatalf("Kill: %v", err)
	}

	select {
	case <-done:
	case <-time.After(3 * time.Second):
		t.Fatal("process group did not exit after Kill")
	}
}

func TestKillRejectsNonPositivePid(t *testing.T) {
	if err := Kill(0); err == nil {
		t.Error("expected error for pid 0")
	}
	if err := Kill(-5); err == nil {
		t.Error("expected error for negative pid")
	}
}
