package main

import (
	"fmt"
	"io"
	"strings"
)

type statusKind int

const (
	statusInfo statusKind = iota
	statusOK
	statusWarn
	statusError
)

const (
	ansiReset  = "\x1b[0m"
	ansiRed    = "\x1b[31m"
	ansiGreen  = "\x1b[32m"
	ansiYellow = "\x1b[33m"
	ansiBlue   = "\x1b[34m"
)

const statusLabelWidth = 22

var statusLabels = map[statusKind]struct{ text, color string }{
	statusInfo:  {"INFO", ansiBlue},
	statusOK:    {"OK", ansiGreen},
	statusWarn:  {"WARN", ansiYellow},
	statusError: {"ERROR", ansiRed},
}

// statusReport accumulates the sections printed by check and counts the
// warnings and errors it saw.
type statusReport struct {
	colorize bool
	lines    []string
	warnings int
	errors   int
}

func newStatusReport(w io.Writer) *statusReport {
	return &statusReport{colorize: isTerminal(w)}
}

func (r *statusReport) paint(color, s string) string {
	if !r.colorize || color == "" {
		return s
	}
	return color + s + ansiReset
}

func (r *statusReport) section(title string) {
	if len(r.lines) > 0 {
		r.lines = append(r.lines, "")
	}
	header := fmt.Sprintf("== %s ==", strings.TrimSpace(title))
	r.lines = append(r.lines,
		r.paint(ansiBlue, header),
		r.paint(ansiBlue, strings.Repeat("-", len(header))),
	)
}

func (r *statusReport) note(text string) {
	r.lines = append(r.lines, text)
}

func (r *statusReport) status(label string, kind statusKind, message string) {
	switch kind {
	case statusWarn:
		r.warnings++
	case statusError:
		r.errors++
	}
	meta := statusLabels[kind]
	text := "[" + meta.text + "]"
	if message != "" {
		text += " " + message
	}
	r.lines = append(r.lines, r.paint(meta.color, fmt.Sprintf("  %-*s %s", statusLabelWidth, label+":", text)))
}

func (r *statusReport) String() string {
	tally := "All checks passed"
	if r.errors > 0 || r.warnings > 0 {
		tally = fmt.Sprintf("%d error(s), %d warning(s)", r.errors, r.warnings)
	}
	return strings.Join(append(r.lines, "", tally), "\n")
}
