//go:build !windows

package verify

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"testing"
	"time"
)

func TestExecRunner_TimeoutKillsChildren(t *testing.T) {
	dir := t.TempDir()
	v := New(&ExecRunner{}, Options{
		Command: "sleep 30 & echo $! > child.pid; wait",
		Timeout: 300 * time.Millisecond,
	})

	start := time.Now()
	res := v.Verify(context.Background(), dir)
	elapsed := time.Since(start)

	if res.Succeeded || res.Environment {
		t.Fatalf("timeout should be a plain failure, got %+v", res)
	}
	if elapsed > 3*time.Second {
		t.Errorf("Verify took %s after a 300ms timeout", elapsed)
	}

	data, err := os.ReadFile(filepath.Join(dir, "child.pid"))
	if err != nil {
		t.Fatalf("read child pid: %v", err)
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		t.Fatalf("parse child pid %q: %v", data, err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for processAlive(pid) {
		if time.Now().After(deadline) {
			t.Fatalf("child process %d still running after timeout", pid)
		}
		time.Sleep(20 * time.Millisecond)
	}
}

// processAlive treats zombies as dead: an orphan killed in a container may
// wait a while for init to reap it.
func processAlive(pid int) bool {
	if err := syscall.Kill(pid, 0); errors.Is(err, syscall.ESRCH) {
		return false
	}
	stat, err := os.ReadFile("/proc/" + strconv.Itoa(pid) + "/stat")
	if err != nil {
		return !os.IsNotExist(err)
	}
	s := string(stat)
	i := strings.LastIndexByte(s, ')')
	if i < 0 || i+2 >= len(s) {
		return true
	}
	return s[i+2] != 'Z'
}
