package database

import (
	"context"

	"github.com/jackc/pgx/v5"
)

const getStatesByNames = `-- name: GetStatesByNames :many
SELECT id, name FROM states WHERE name = ANY($1::text[])`

func (q *Queries) GetStatesByNames(ctx context.Context, names []string) ([]NamedID, error) {
	return q.queryNamedIDs(ctx, getStatesByNames, names)
}

const getCategoriesByNames = `-- name: GetCategoriesByNames :many
SELECT id, name FROM categories WHERE name = ANY($1::text[])`

func (q *Queries) GetCategoriesByNames(ctx context.Context, names []string) ([]NamedID, error) {
	return q.queryNamedIDs(ctx, getCategoriesByNames, names)
}

const getMeasuresByNames = `-- name: GetMeasuresByNames :many
SELECT id, name FROM measures WHERE name = ANY($1::text[])`

func (q *Queries) GetMeasuresByNames(ctx context.Context, names []string) ([]NamedID, error) {
	return q.queryNamedIDs(ctx, getMeasuresByNames, names)
}

const getDataSourcesByNames = `-- name: GetDataSourcesByNames :many
SELECT id, name FROM data_sources WHERE name = ANY($1::text[])`

func (q *Queries) GetDataSourcesByNames(ctx context.Context, names []string) ([]NamedID, error) {
	return q.queryNamedIDs(ctx, getDataSourcesByNames, names)
}

func (q *Queries) queryNamedIDs(ctx context.Context, query string, names []string) ([]NamedID, error) {
	rows, err := q.db.Query(ctx, query, names)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, pgx.RowToStructByPos[NamedID])
}

// The no-op update makes RETURNING yield the existing row on conflict.
const upsertDataSource = `-- name: UpsertDataSource :one
INSERT INTO data_sources (name) VALUES ($1)
ON CONFLICT (name) DO UPDATE SET name = EXCLUDED.name
RETURNING id`

func (q *Queries) UpsertDataSource(ctx context.Context, name string) (int64, error) {
	var id int64
	err := q.db.QueryRow(ctx, upsertDataSource, name).Scan(&id)
	return id, err
}

const createImportSession = `-- name: CreateImportSession :one
INSERT INTO import_sessions (id, name, import_id, data_source_id, record_count)
VALUES ($1, $2, $3, $4, $5)
RETURNING id, name, import_id, data_source_id, record_count, created_at`

type CreateImportSessionParams = ImportSession

func (q *Queries) CreateImportSession(ctx context.Context, arg CreateImportSessionParams) (ImportSession, error) {
	row := q.db.QueryRow(ctx, createImportSession,
		arg.ID,
		arg.Name,
		arg.ImportID,
		arg.DataSourceID,
		arg.RecordCount,
	)
	var i ImportSession
	err := row.Scan(
		&i.ID,
		&i.Name,
		&i.ImportID,
		&i.DataSourceID,
		&i.RecordCount,
		&i.CreatedAt,
	)
	return i, err
}

// CopyStatisticValues bulk-loads values with the COPY protocol.
func (q *Queries) CopyStatisticValues(ctx context.Context, values []StatisticValue) (int64, error) {
	return q.db.CopyFrom(ctx,
		pgx.Identifier{"statistic_values"},
		[]string{"state_id", "measure_id", "value", "year", "import_session_id"},
		pgx.CopyFromSlice(len(values), func(i int) ([]any, error) {
			v := values[i]
			return []any{v.StateID, v.MeasureID, v.Value, v.Year, v.ImportSessionID}, nil
		}),
	)
}
