// Package stageexec runs a single pipeline stage as a child process and
// classifies how it ended.
//
// The executor expands the stage's command template, starts the process in
// its own process group inside the tools directory, streams stdout and stderr
// line by line into the structured logger, and maps the exit status to
// Success, Failure(code) or NotFound. It never transforms stage output and
// never retries.
package stageexec
