package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// BuildRecord is one row of the build history. Build is zero for fatal
// builds, which never receive a number.
type BuildRecord struct {
	ID          int64     `json:"id"`
	Runner      string    `json:"runner"`
	Build       int       `json:"build,omitempty"`
	Outcome     string    `json:"outcome"`
	Errors      int       `json:"errors"`
	Warnings    int       `json:"warnings"`
	Artifact    string    `json:"artifact,omitempty"`
	Digest      string    `json:"digest,omitempty"`
	DurationMs  int64     `json:"duration_ms"`
	Error       string    `json:"error,omitempty"`
	SkipReason  string    `json:"skip_reason,omitempty"`
	CompletedAt time.Time `json:"completed_at"`
}

// History reads and writes build records.
type History struct {
	db *sql.DB
}

func NewHistory(db *sql.DB) *History {
	return &History{db: db}
}

// Insert stores rec and returns its row id.
func (h *History) Insert(ctx context.Context, rec BuildRecord) (int64, error) {
	if rec.Runner == "" {
		return 0, fmt.Errorf("runner is empty")
	}
	if rec.CompletedAt.IsZero() {
		rec.CompletedAt = time.Now()
	}

	res, err := h.db.ExecContext(ctx, `
INSERT INTO builds(runner, build, outcome, errors, warnings, artifact, digest, duration_ms, error, completed_at)
VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?, ?);
`, rec.Runner, nullInt(rec.Build), rec.Outcome, rec.Errors, rec.Warnings,
		nullString(rec.Artifact), nullString(rec.Digest), rec.DurationMs, nullString(rec.Error),
		rec.CompletedAt.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return 0, fmt.Errorf("insert build: %w", err)
	}
	return res.LastInsertId()
}

// MarkSkipped records why a build's execution was skipped.
func (h *History) MarkSkipped(ctx context.Context, id int64, reason string) error {
	if _, err := h.db.ExecContext(ctx, `UPDATE builds SET skip_reason = ? WHERE id = ?;`, reason, id); err != nil {
		return fmt.Errorf("mark skipped: %w", err)
	}
	return nil
}

// Recent returns up to limit records for runner, newest first. An empty
// runner returns records of every runner.
func (h *History) Recent(ctx context.Context, runner string, limit int) ([]BuildRecord, error) {
	if limit <= 0 {
		limit = 20
	}

	rows, err := h.db.QueryContext(ctx, `
SELECT id, runner, build, outcome, errors, warnings, artifact, digest, duration_ms, error, skip_reason, completed_at
FROM builds
WHERE ? = '' OR runner = ?
ORDER BY id DESC
LIMIT ?;
`, runner, runner, limit)
	if err != nil {
		return nil, fmt.Errorf("query builds: %w", err)
	}
	defer rows.Close()

	var out []BuildRecord
	for rows.Next() {
		var (
			rec                                     BuildRecord
			build                                   sql.NullInt64
			artifact, digest, errText, skip, doneAt sql.NullString
		)
		if err := rows.Scan(&rec.ID, &rec.Runner, &build, &rec.Outcome, &rec.Errors, &rec.Warnings,
			&artifact, &digest, &rec.DurationMs, &errText, &skip, &doneAt); err != nil {
			return nil, fmt.Errorf("scan build: %w", err)
		}
		rec.Build = int(build.Int64)
		rec.Artifact = artifact.String
		rec.Digest = digest.String
		rec.Error = errText.String
		rec.SkipReason = skip.String
		if t, err := time.Parse(time.RFC3339Nano, doneAt.String); err == nil {
			rec.CompletedAt = t
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate builds: %w", err)
	}
	return out, nil
}

// Prune keeps the newest keep records of runner and deletes the rest.
func (h *History) Prune(ctx context.Context, runner string, keep int) (int64, error) {
	res, err := h.db.ExecContext(ctx, `
DELETE FROM builds
WHERE runner = ? AND id NOT IN (
  SELECT id FROM builds WHERE runner = ? ORDER BY id DESC LIMIT ?
);
`, runner, runner, keep)
	if err != nil {
		return 0, fmt.Errorf("prune builds: %w", err)
	}
	return res.RowsAffected()
}

func nullInt(v int) sql.NullInt64 {
	return sql.NullInt64{Int64: int64(v), Valid: v != 0}
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
