package database

import (
	"context"

	"github.com/jackc/pgx/v5/pgtype"
)

const importColumns = `id, name, file_name, file_size, content_hash, status, error_message,
       uploaded_by, created_at, updated_at, completed_at`

func scanImport(row interface{ Scan(...any) error }) (Import, error) {
	var i Import
	err := row.Scan(
		&i.ID,
		&i.Name,
		&i.FileName,
		&i.FileSize,
		&i.ContentHash,
		&i.Status,
		&i.ErrorMessage,
		&i.UploadedBy,
		&i.CreatedAt,
		&i.UpdatedAt,
		&i.CompletedAt,
	)
	return i, err
}

const createImport = `-- name: CreateImport :one
INSERT INTO imports (name, file_name, file_size, content_hash, uploaded_by)
VALUES ($1, $2, $3, $4, $5)
RETURNING ` + importColumns

type CreateImportParams struct {
	Name        string
	FileName    string
	FileSize    int64
	ContentHash string
	UploadedBy  string
}

func (q *Queries) CreateImport(ctx context.Context, arg CreateImportParams) (Import, error) {
	row := q.db.QueryRow(ctx, createImport,
		arg.Name,
		arg.FileName,
		arg.FileSize,
		arg.ContentHash,
		arg.UploadedBy,
	)
	return scanImport(row)
}

const getImportByHash = `-- name: GetImportByHash :one
SELECT ` + importColumns + `
FROM imports
WHERE content_hash = $1`

func (q *Queries) GetImportByHash(ctx context.Context, contentHash string) (Import, error) {
	return scanImport(q.db.QueryRow(ctx, getImportByHash, contentHash))
}

const getImportByID = `-- name: GetImportByID :one
SELECT ` + importColumns + `
FROM imports
WHERE id = $1`

func (q *Queries) GetImportByID(ctx context.Context, id int64) (Import, error) {
	return scanImport(q.db.QueryRow(ctx, getImportByID, id))
}

const getImportStatusForUpdate = `-- name: GetImportStatusForUpdate :one
SELECT status FROM imports WHERE id = $1 FOR UPDATE`

func (q *Queries) GetImportStatusForUpdate(ctx context.Context, id int64) (string, error) {
	var status string
	err := q.db.QueryRow(ctx, getImportStatusForUpdate, id).Scan(&status)
	return status, err
}

const updateImportStatus = `-- name: UpdateImportStatus :exec
UPDATE imports
SET status = $2,
    error_message = $3,
    updated_at = now(),
    completed_at = CASE WHEN $4::boolean THEN now() ELSE completed_at END
WHERE id = $1`

type UpdateImportStatusParams struct {
	ID           int64
	Status       string
	ErrorMessage pgtype.Text
	Completed    bool
}

func (q *Queries) UpdateImportStatus(ctx context.Context, arg UpdateImportStatusParams) error {
	_, err := q.db.Exec(ctx, updateImportStatus,
		arg.ID,
		arg.Status,
		arg.ErrorMessage,
		arg.Completed,
	)
	return err
}

const listImports = `-- name: ListImports :many
SELECT ` + importColumns + `
FROM imports
ORDER BY created_at DESC, id DESC
LIMIT $1 OFFSET $2`

type ListImportsParams struct {
	Limit  int32
	Offset int32
}

func (q *Queries) ListImports(ctx context.Context, arg ListImportsParams) ([]Import, error) {
	rows, err := q.db.Query(ctx, listImports, arg.Limit, arg.Offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []Import
	for rows.Next() {
		i, err := scanImport(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}
