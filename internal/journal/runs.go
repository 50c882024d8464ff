package journal

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

const runColumns = "id, model, language, device, source, skip_separation, state, exit_code, fallback_applied, error_message, started_at, finished_at"

// ErrNotFound is returned when a run ID is unknown.
var ErrNotFound = errors.New("run not found")

// InsertRun records the start of a run.
func (s *Store) InsertRun(ctx context.Context, rec RunRecord) error {
	if strings.TrimSpace(rec.ID) == "" {
		return errors.New("run id is required")
	}
	if rec.StartedAt.IsZero() {
		rec.StartedAt = time.Now()
	}
	if rec.State == "" {
		rec.State = "init"
	}
	_, err := s.execWithRetry(ctx,
		`INSERT INTO runs (id, model, language, device, source, skip_separation, state, started_at)
         VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.Model, rec.Language, rec.Device, nullString(rec.Source), boolToInt(rec.SkipSeparation),
		rec.State, formatTime(rec.StartedAt),
	)
	if err != nil {
		return fmt.Errorf("insert run %s: %w", rec.ID, err)
	}
	return nil
}

// UpsertStage records or replaces the result of one stage.
func (s *Store) UpsertStage(ctx context.Context, rec StageRecord) error {
	_, err := s.execWithRetry(ctx,
		`INSERT INTO stage_results (run_id, stage, ordinal, outcome, exit_code, elapsed_ms, fallback_used, skipped, error_message)
         VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
         ON CONFLICT(run_id, stage) DO UPDATE SET
            outcome = excluded.outcome,
            exit_code = excluded.exit_code,
            elapsed_ms = excluded.elapsed_ms,
            fallback_used = excluded.fallback_used,
            skipped = excluded.skipped,
            error_message = excluded.error_message`,
		rec.RunID, rec.Stage, rec.Ordinal, rec.Outcome, rec.ExitCode, rec.Elapsed.Milliseconds(),
		boolToInt(rec.FallbackUsed), boolToInt(rec.Skipped), nullString(rec.ErrorMessage),
	)
	if err != nil {
		return fmt.Errorf("record stage %s for run %s: %w", rec.Stage, rec.RunID, err)
	}
	return nil
}

// FinishRun stores the terminal state of a run.
func (s *Store) FinishRun(ctx context.Context, id, state string, exitCode int, fallbackApplied bool, errMsg string, finished time.Time) error {
	if finished.IsZero() {
		finished = time.Now()
	}
	res, err := s.execWithRetry(ctx,
		`UPDATE runs SET state = ?, exit_code = ?, fallback_applied = ?, error_message = ?, finished_at = ?
         WHERE id = ?`,
		state, exitCode, boolToInt(fallbackApplied), nullString(errMsg), formatTime(finished), id,
	)
	if err != nil {
		return fmt.Errorf("finish run %s: %w", id, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return nil
}

// List returns runs newest first.
func (s *Store) List(ctx context.Context, filter Filter) ([]RunRecord, error) {
	ctx = ensureContext(ctx)
	query := "SELECT " + runColumns + " FROM runs"
	var args []any
	if model := strings.TrimSpace(filter.Model); model != "" {
		query += " WHERE model = ?"
		args = append(args, model)
	}
	query += " ORDER BY started_at DESC, id DESC"
	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var out []RunRecord
	for rows.Next() {
		rec, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// Get returns a single run by ID or ID prefix.
func (s *Store) Get(ctx context.Context, id string) (RunRecord, error) {
	ctx = ensureContext(ctx)
	id = strings.TrimSpace(id)
	if id == "" {
		return RunRecord{}, fmt.Errorf("%w: empty id", ErrNotFound)
	}
	rows, err := s.db.QueryContext(ctx,
		"SELECT "+runColumns+" FROM runs WHERE id = ? OR id LIKE ? ORDER BY started_at DESC LIMIT 2",
		id, id+"%")
	if err != nil {
		return RunRecord{}, fmt.Errorf("get run %s: %w", id, err)
	}
	defer rows.Close()

	var matches []RunRecord
	for rows.Next() {
		rec, err := scanRun(rows)
		if err != nil {
			return RunRecord{}, err
		}
		if rec.ID == id {
			return rec, nil
		}
		matches = append(matches, rec)
	}
	if err := rows.Err(); err != nil {
		return RunRecord{}, err
	}
	switch len(matches) {
	case 0:
		return RunRecord{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	case 1:
		return matches[0], nil
	default:
		return RunRecord{}, fmt.Errorf("run id prefix %q is ambiguous", id)
	}
}

// Stages returns the stage results of a run in execution order.
func (s *Store) Stages(ctx context.Context, runID string) ([]StageRecord, error) {
	ctx = ensureContext(ctx)
	rows, err := s.db.QueryContext(ctx,
		`SELECT run_id, stage, ordinal, outcome, exit_code, elapsed_ms, fallback_used, skipped, error_message
         FROM stage_results WHERE run_id = ? ORDER BY ordinal`, runID)
	if err != nil {
		return nil, fmt.Errorf("list stages for run %s: %w", runID, err)
	}
	defer rows.Close()

	var out []StageRecord
	for rows.Next() {
		var (
			rec       StageRecord
			elapsedMS int64
			fallback  int
			skipped   int
			errMsg    sql.NullString
		)
		if err := rows.Scan(&rec.RunID, &rec.Stage, &rec.Ordinal, &rec.Outcome, &rec.ExitCode,
			&elapsedMS, &fallback, &skipped, &errMsg); err != nil {
			return nil, fmt.Errorf("scan stage result: %w", err)
		}
		rec.Elapsed = time.Duration(elapsedMS) * time.Millisecond
		rec.FallbackUsed = fallback != 0
		rec.Skipped = skipped != 0
		rec.ErrorMessage = errMsg.String
		out = append(out, rec)
	}
	return out, rows.Err()
}

// Prune deletes finished runs that started before cutoff and returns how many
// were removed.
func (s *Store) Prune(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.execWithRetry(ctx,
		"DELETE FROM runs WHERE finished_at IS NOT NULL AND started_at < ?", formatTime(cutoff))
	if err != nil {
		return 0, fmt.Errorf("prune runs: %w", err)
	}
	return res.RowsAffected()
}

func scanRun(scanner interface{ Scan(dest ...any) error }) (RunRecord, error) {
	var (
		rec         RunRecord
		source      sql.NullString
		skip        int
		exitCode    sql.NullInt64
		fallback    int
		errMsg      sql.NullString
		startedRaw  string
		finishedRaw sql.NullString
	)
	if err := scanner.Scan(&rec.ID, &rec.Model, &rec.Language, &rec.Device, &source, &skip, &rec.State,
		&exitCode, &fallback, &errMsg, &startedRaw, &finishedRaw); err != nil {
		return RunRecord{}, fmt.Errorf("scan run: %w", err)
	}
	rec.Source = source.String
	rec.SkipSeparation = skip != 0
	if exitCode.Valid {
		code := int(exitCode.Int64)
		rec.ExitCode = &code
	}
	rec.FallbackApplied = fallback != 0
	rec.ErrorMessage = errMsg.String
	rec.StartedAt = parseTime(startedRaw)
	if finishedRaw.Valid {
		rec.FinishedAt = parseTime(finishedRaw.String)
	}
	return rec, nil
}

// timeLayout keeps a fixed number of fractional digits so stored timestamps
// sort lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(raw string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return time.Time{}
	}
	return t
}

func nullString(value string) sql.NullString {
	value = strings.TrimSpace(value)
	return sql.NullString{String: value, Valid: value != ""}
}

func boolToInt(v bool) int {
	if v {
		return 1
	}
	return 0
}
