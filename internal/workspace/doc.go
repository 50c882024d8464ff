// Package workspace owns the on-disk staging directories the pipeline stages
// read from and write to.
//
// Layout derives every directory from configuration and the model name.
// Reset empties the transient stage directories before a run and fails fast
// on the first directory it cannot clear, so no stage ever starts on a
// partially reset workspace. The per-model log directory persists across runs.
// Lock serializes runs that share a workspace.
package workspace
