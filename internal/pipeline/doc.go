// Package pipeline drives one voice-clone run through its six stages.
//
// A run moves Init -> Guarded -> Cleaned -> Running -> Completed, or ends
// Aborted from any of those states. The Orchestrator owns the sequence: it
// checks the environment, installs optional Python packages, resets the
// transient workspace, runs separation with the fallback resolver behind it,
// then runs slicing through post-processing and stops at the first failure.
//
// ExitCode maps the error returned by Orchestrator.Execute to the process
// exit status the CLI reports.
package pipeline
