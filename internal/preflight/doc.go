// Package preflight provides the environment checks that must pass before a
// pipeline run touches the workspace.
//
// These checks run in two contexts:
//   - The orchestrator calls RunAll during the Init to Guarded transition.
//     Any failure aborts the run as an environment error before a stage runs.
//   - The CLI "voxclone check" command renders the same results as a table.
package preflight
