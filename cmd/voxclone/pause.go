package main

import (
	"bufio"
	"fmt"
	"io"
	"os"

	"github.com/mattn/go-isatty"
)

// stdinIsTerminal decides whether the end-of-run pause applies.
var stdinIsTerminal = isTerminal

// waitForEnter blocks until a line is read from in, but only when in is an
// interactive terminal. Piped or redirected input never blocks.
func waitForEnter(in io.Reader, out io.Writer) {
	if !stdinIsTerminal(in) {
		return
	}
	fmt.Fprint(out, "Press Enter to exit...")
	_, _ = bufio.NewReader(in).ReadString('\n')
}

func isTerminal(v any) bool {
	file, ok := v.(*os.File)
	if !ok {
		return false
	}
	fd := file.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}
