package database

import (
	"context"

	"github.com/jackc/pgx/v5/pgtype"
)

const insertImportLog = `-- name: InsertImportLog :exec
INSERT INTO import_logs (
    import_id, level, row_number, field_name, field_value,
    expected_value, failure_category, message, details
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`

type InsertImportLogParams struct {
	ImportID        int64
	Level           string
	RowNumber       pgtype.Int4
	FieldName       pgtype.Text
	FieldValue      pgtype.Text
	ExpectedValue   pgtype.Text
	FailureCategory pgtype.Text
	Message         string
	Details         []byte
}

func (q *Queries) InsertImportLog(ctx context.Context, arg InsertImportLogParams) error {
	_, err := q.db.Exec(ctx, insertImportLog,
		arg.ImportID,
		arg.Level,
		arg.RowNumber,
		arg.FieldName,
		arg.FieldValue,
		arg.ExpectedValue,
		arg.FailureCategory,
		arg.Message,
		arg.Details,
	)
	return err
}

const importLogColumns = `id, import_id, level, row_number, field_name, field_value,
       expected_value, failure_category, message, details, created_at`

const listImportLogs = `-- name: ListImportLogs :many
SELECT ` + importLogColumns + `
FROM import_logs
WHERE import_id = $1
ORDER BY id DESC`

func (q *Queries) ListImportLogs(ctx context.Context, importID int64) ([]ImportLog, error) {
	return q.queryImportLogs(ctx, listImportLogs, importID)
}

const listImportLogsByLevel = `-- name: ListImportLogsByLevel :many
SELECT ` + importLogColumns + `
FROM import_logs
WHERE import_id = $1 AND level = $2
ORDER BY id ASC`

type ListImportLogsByLevelParams struct {
	ImportID int64
	Level    string
}

func (q *Queries) ListImportLogsByLevel(ctx context.Context, arg ListImportLogsByLevelParams) ([]ImportLog, error) {
	return q.queryImportLogs(ctx, listImportLogsByLevel, arg.ImportID, arg.Level)
}

func (q *Queries) queryImportLogs(ctx context.Context, query string, args ...interface{}) ([]ImportLog, error) {
	rows, err := q.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []ImportLog
	for rows.Next() {
		var i ImportLog
		if err := rows.Scan(
			&i.ID,
			&i.ImportID,
			&i.Level,
			&i.RowNumber,
			&i.FieldName,
			&i.FieldValue,
			&i.ExpectedValue,
			&i.FailureCategory,
			&i.Message,
			&i.Details,
			&i.CreatedAt,
		); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

const upsertImportSummary = `-- name: UpsertImportSummary :exec
INSERT INTO import_summaries (
    import_id, phase, total_rows, valid_rows, error_rows,
    failure_breakdown, validation_time_ms, status
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
ON CONFLICT (import_id, phase) DO UPDATE
SET total_rows = EXCLUDED.total_rows,
    valid_rows = EXCLUDED.valid_rows,
    error_rows = EXCLUDED.error_rows,
    failure_breakdown = EXCLUDED.failure_breakdown,
    validation_time_ms = EXCLUDED.validation_time_ms,
    status = EXCLUDED.status`

type UpsertImportSummaryParams struct {
	ImportID         int64
	Phase            string
	TotalRows        int32
	ValidRows        int32
	ErrorRows        int32
	FailureBreakdown []byte
	ValidationTimeMs int64
	Status           string
}

func (q *Queries) UpsertImportSummary(ctx context.Context, arg UpsertImportSummaryParams) error {
	_, err := q.db.Exec(ctx, upsertImportSummary,
		arg.ImportID,
		arg.Phase,
		arg.TotalRows,
		arg.ValidRows,
		arg.ErrorRows,
		arg.FailureBreakdown,
		arg.ValidationTimeMs,
		arg.Status,
	)
	return err
}

const getLatestImportSummary = `-- name: GetLatestImportSummary :one
SELECT import_id, phase, total_rows, valid_rows, error_rows,
       failure_breakdown, validation_time_ms, status, created_at
FROM import_summaries
WHERE import_id = $1
ORDER BY CASE phase WHEN 'commit' THEN 0 ELSE 1 END
LIMIT 1`

func (q *Queries) GetLatestImportSummary(ctx context.Context, importID int64) (ImportSummary, error) {
	row := q.db.QueryRow(ctx, getLatestImportSummary, importID)
	var i ImportSummary
	err := row.Scan(
		&i.ImportID,
		&i.Phase,
		&i.TotalRows,
		&i.ValidRows,
		&i.ErrorRows,
		&i.FailureBreakdown,
		&i.ValidationTimeMs,
		&i.Status,
		&i.CreatedAt,
	)
	return i, err
}
