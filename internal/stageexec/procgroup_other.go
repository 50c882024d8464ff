//go:build !unix

package stageexec

import "os/exec"

func configureProcessGroup(*exec.Cmd) {}

func signalExitCode(*exec.ExitError) int { return 1 }
