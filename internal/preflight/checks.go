package preflight

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"

	"golang.org/x/sys/unix"
)

// CheckDirectoryAccess verifies that path is a directory the current user can
// traverse and read, and write when writable is set.
func CheckDirectoryAccess(name, path string, writable bool) Result {
	if strings.TrimSpace(path) == "" {
		return Result{Name: name, Detail: "not configured"}
	}
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Result{Name: name, Detail: fmt.Sprintf("%s (error: does not exist)", path)}
		}
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: stat: %v)", path, err)}
	}
	if !info.IsDir() {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: is not a directory)", path)}
	}
	mode := uint32(unix.R_OK | unix.X_OK)
	label := "read ok"
	if writable {
		mode |= unix.W_OK
		label = "read/write ok"
	}
	if err := unix.Access(path, mode); err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: insufficient permissions: %v)", path, err)}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (%s)", path, label)}
}

// CheckPython runs the interpreter once to confirm it starts inside the tools
// directory and reports its version.
func CheckPython(ctx context.Context, interpreter, toolsDir string) Result {
	const name = "Python interpreter"
	if strings.TrimSpace(interpreter) == "" {
		return Result{Name: name, Detail: "not configured"}
	}

	checkCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()

	cmd := exec.CommandContext(checkCtx, interpreter, "--version") //nolint:gosec
	if info, err := os.Stat(toolsDir); err == nil && info.IsDir() {
		cmd.Dir = toolsDir
	}
	output, err := cmd.CombinedOutput()
	if err != nil {
		detail := strings.TrimSpace(string(output))
		if detail == "" {
			detail = err.Error()
		}
		return Result{Name: name, Detail: fmt.Sprintf("%s failed to start (%s)", interpreter, detail)}
	}
	return Result{Name: name, Passed: true, Detail: strings.TrimSpace(string(output))}
}
