// Package journal persists the history of pipeline runs in SQLite.
//
// Every run gets a row in runs and one row per executed stage in
// stage_results. The Observer type records a run as it happens; List and
// Stages serve the "voxclone history" command. The database lives in the
// state directory and is opened in WAL mode so a history query never blocks a
// running pipeline.
package journal
