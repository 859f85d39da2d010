//go:build windows

package verify

import "os/exec"

func configureProcess(cmd *exec.Cmd) {}
