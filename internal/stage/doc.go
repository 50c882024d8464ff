// Package stage defines the six statically ordered pipeline stages, the run
// context handed to each one, and the classified result of running it.
//
// Definitions are built from configuration and may be overridden by a YAML
// stage manifest. Every definition names the workspace slot it reads from and
// the slot it writes to; the command template is expanded against a
// RunContext right before execution.
package stage
