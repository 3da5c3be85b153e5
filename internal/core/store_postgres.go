package core

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	db "github.com/JonMunkholm/statimport/internal/database"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// contentHashConstraint is the unique constraint backing the dedup gate.
const contentHashConstraint = "imports_content_hash_key"

// pgUniqueViolation is the SQLSTATE for unique_violation.
const pgUniqueViolation = "23505"

// PostgresStore implements Store on a pgx connection pool.
type PostgresStore struct {
	pool *pgxpool.Pool
	q    *db.Queries
}

// NewPostgresStore creates a Store backed by pool.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool, q: db.New(pool)}
}

// ----------------------------------------------------------------------------
// Imports
// ----------------------------------------------------------------------------

func (s *PostgresStore) FindImportByHash(ctx context.Context, hash string) (ImportRecord, error) {
	row, err := s.q.GetImportByHash(ctx, hash)
	if err != nil {
		return ImportRecord{}, notFound(err)
	}
	return importFromRow(row), nil
}

func (s *PostgresStore) CreateImport(ctx context.Context, params NewImport) (ImportRecord, error) {
	row, err := s.q.CreateImport(ctx, db.CreateImportParams{
		Name:        params.Name,
		FileName:    params.FileName,
		FileSize:    params.FileSize,
		ContentHash: params.ContentHash,
		UploadedBy:  params.UploadedBy,
	})
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation && pgErr.ConstraintName == contentHashConstraint {
			return ImportRecord{}, ErrDuplicateContent
		}
		return ImportRecord{}, err
	}
	return importFromRow(row), nil
}

// UpdateImportStatus locks the row, checks the transition and writes the new
// status in one transaction so concurrent writers cannot skip a state.
func (s *PostgresStore) UpdateImportStatus(ctx context.Context, id int64, status ImportStatus, errMsg string) error {
	return s.withTx(ctx, func(q *db.Queries) error {
		current, err := q.GetImportStatusForUpdate(ctx, id)
		if err != nil {
			return notFound(err)
		}
		if !ImportStatus(current).CanTransition(status) {
			return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, current, status)
		}
		return q.UpdateImportStatus(ctx, db.UpdateImportStatusParams{
			ID:           id,
			Status:       string(status),
			ErrorMessage: ToPgText(errMsg),
			Completed:    status.Terminal(),
		})
	})
}

func (s *PostgresStore) GetImport(ctx context.Context, id int64) (ImportRecord, error) {
	row, err := s.q.GetImportByID(ctx, id)
	if err != nil {
		return ImportRecord{}, notFound(err)
	}
	return importFromRow(row), nil
}

func (s *PostgresStore) ListImports(ctx context.Context, limit, offset int) ([]ImportRecord, error) {
	rows, err := s.q.ListImports(ctx, db.ListImportsParams{
		Limit:  int32(limit),
		Offset: int32(offset),
	})
	if err != nil {
		return nil, err
	}
	records := make([]ImportRecord, 0, len(rows))
	for _, row := range rows {
		records = append(records, importFromRow(row))
	}
	return records, nil
}

// ----------------------------------------------------------------------------
// Audit log and summaries
// ----------------------------------------------------------------------------

// AppendLogs writes entries in order inside one transaction.
func (s *PostgresStore) AppendLogs(ctx context.Context, entries []ImportLog) error {
	if len(entries) == 0 {
		return nil
	}
	return s.withTx(ctx, func(q *db.Queries) error {
		for _, e := range entries {
			details, err := marshalDetails(e.Details)
			if err != nil {
				return err
			}
			if err := q.InsertImportLog(ctx, db.InsertImportLogParams{
				ImportID:        e.ImportID,
				Level:           string(e.Level),
				RowNumber:       ToPgInt4Ptr(e.RowNumber),
				FieldName:       ToPgText(e.FieldName),
				FieldValue:      ToPgText(e.FieldValue),
				ExpectedValue:   ToPgText(e.ExpectedValue),
				FailureCategory: ToPgText(string(e.Category)),
				Message:         e.Message,
				Details:         details,
			}); err != nil {
				return fmt.Errorf("insert log: %w", err)
			}
		}
		return nil
	})
}

func (s *PostgresStore) ListLogs(ctx context.Context, importID int64) ([]ImportLog, error) {
	rows, err := s.q.ListImportLogs(ctx, importID)
	if err != nil {
		return nil, err
	}
	return logsFromRows(rows)
}

func (s *PostgresStore) ListLogsByLevel(ctx context.Context, importID int64, level LogLevel) ([]ImportLog, error) {
	rows, err := s.q.ListImportLogsByLevel(ctx, db.ListImportLogsByLevelParams{
		ImportID: importID,
		Level:    string(level),
	})
	if err != nil {
		return nil, err
	}
	return logsFromRows(rows)
}

func (s *PostgresStore) SaveSummary(ctx context.Context, summary ValidationSummary) error {
	breakdown, err := json.Marshal(summary.FailureBreakdown)
	if err != nil {
		return fmt.Errorf("marshal failure breakdown: %w", err)
	}
	return s.q.UpsertImportSummary(ctx, db.UpsertImportSummaryParams{
		ImportID:         summary.ImportID,
		Phase:            string(summary.Phase),
		TotalRows:        int32(summary.TotalRows),
		ValidRows:        int32(summary.ValidRows),
		ErrorRows:        int32(summary.ErrorRows),
		FailureBreakdown: breakdown,
		ValidationTimeMs: summary.ValidationTimeMs,
		Status:           string(summary.Status),
	})
}

func (s *PostgresStore) LatestSummary(ctx context.Context, importID int64) (ValidationSummary, error) {
	row, err := s.q.GetLatestImportSummary(ctx, importID)
	if err != nil {
		return ValidationSummary{}, notFound(err)
	}
	breakdown := map[FailureCategory]int{}
	if len(row.FailureBreakdown) > 0 {
		if err := json.Unmarshal(row.FailureBreakdown, &breakdown); err != nil {
			return ValidationSummary{}, fmt.Errorf("decode failure breakdown: %w", err)
		}
	}
	return ValidationSummary{
		ImportID:         row.ImportID,
		Phase:            SummaryPhase(row.Phase),
		TotalRows:        int(row.TotalRows),
		ValidRows:        int(row.ValidRows),
		ErrorRows:        int(row.ErrorRows),
		FailureBreakdown: breakdown,
		ValidationTimeMs: row.ValidationTimeMs,
		Status:           SummaryStatus(row.Status),
		CreatedAt:        FromPgTime(row.CreatedAt),
	}, nil
}

// ----------------------------------------------------------------------------
// Reference lookups
// ----------------------------------------------------------------------------

func (s *PostgresStore) StatesByName(ctx context.Context, names []string) (map[string]int64, error) {
	return namedIDs(s.q.GetStatesByNames(ctx, names))
}

func (s *PostgresStore) CategoriesByName(ctx context.Context, names []string) (map[string]int64, error) {
	return namedIDs(s.q.GetCategoriesByNames(ctx, names))
}

func (s *PostgresStore) MeasuresByName(ctx context.Context, names []string) (map[string]int64, error) {
	return namedIDs(s.q.GetMeasuresByNames(ctx, names))
}

// ----------------------------------------------------------------------------
// Commit
// ----------------------------------------------------------------------------

// WithCommitTx runs fn in a transaction; any error rolls back every write.
func (s *PostgresStore) WithCommitTx(ctx context.Context, fn func(tx CommitTx) error) error {
	return s.withTx(ctx, func(q *db.Queries) error {
		return fn(&pgCommitTx{q: q})
	})
}

type pgCommitTx struct {
	q *db.Queries
}

// EnsureDataSource returns the id for name, inserting it on first use. The
// lookup runs first so repeat imports do not take a row lock on the upsert.
func (t *pgCommitTx) EnsureDataSource(ctx context.Context, name string) (int64, error) {
	ids, err := namedIDs(t.q.GetDataSourcesByNames(ctx, []string{name}))
	if err != nil {
		return 0, fmt.Errorf("look up data source %q: %w", name, err)
	}
	if id, ok := ids[name]; ok {
		return id, nil
	}
	return t.q.UpsertDataSource(ctx, name)
}

func (t *pgCommitTx) CreateSession(ctx context.Context, session ImportSession) (ImportSession, error) {
	row, err := t.q.CreateImportSession(ctx, db.CreateImportSessionParams{
		ID:           ToPgUUID(session.ID),
		Name:         session.Name,
		ImportID:     ToPgInt8(session.ImportID),
		DataSourceID: session.DataSourceID,
		RecordCount:  int32(session.RecordCount),
	})
	if err != nil {
		return ImportSession{}, err
	}
	session.CreatedAt = FromPgTime(row.CreatedAt)
	return session, nil
}

func (t *pgCommitTx) InsertRecords(ctx context.Context, records []CommittedRecord) (int64, error) {
	values := make([]db.StatisticValue, len(records))
	for i, r := range records {
		values[i] = db.StatisticValue{
			StateID:         r.StateID,
			MeasureID:       r.MeasureID,
			Value:           r.Value,
			Year:            int32(r.Year),
			ImportSessionID: ToPgUUID(r.SessionID),
		}
	}
	return t.q.CopyStatisticValues(ctx, values)
}

// ----------------------------------------------------------------------------
// Helpers
// ----------------------------------------------------------------------------

func (s *PostgresStore) withTx(ctx context.Context, fn func(q *db.Queries) error) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // no-op after commit

	if err := fn(s.q.WithTx(tx)); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

func notFound(err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	return err
}

func namedIDs(rows []db.NamedID, err error) (map[string]int64, error) {
	if err != nil {
		return nil, err
	}
	out := make(map[string]int64, len(rows))
	for _, r := range rows {
		out[r.Name] = r.ID
	}
	return out, nil
}

func marshalDetails(details map[string]any) ([]byte, error) {
	if len(details) == 0 {
		return nil, nil
	}
	b, err := json.Marshal(details)
	if err != nil {
		return nil, fmt.Errorf("marshal log details: %w", err)
	}
	return b, nil
}

func importFromRow(row db.Import) ImportRecord {
	return ImportRecord{
		ID:           row.ID,
		Name:         row.Name,
		FileName:     row.FileName,
		FileSize:     row.FileSize,
		ContentHash:  row.ContentHash,
		Status:       ImportStatus(row.Status),
		ErrorMessage: FromPgText(row.ErrorMessage),
		UploadedBy:   row.UploadedBy,
		CreatedAt:    FromPgTime(row.CreatedAt),
		UpdatedAt:    FromPgTime(row.UpdatedAt),
		CompletedAt:  FromPgTimePtr(row.CompletedAt),
	}
}

func logsFromRows(rows []db.ImportLog) ([]ImportLog, error) {
	logs := make([]ImportLog, 0, len(rows))
	for _, row := range rows {
		category := FailureCategory(FromPgText(row.FailureCategory))
		if category != "" && !category.Valid() {
			return nil, fmt.Errorf("decode log %d: unknown failure category %q", row.ID, category)
		}
		var details map[string]any
		if len(row.Details) > 0 {
			if err := json.Unmarshal(row.Details, &details); err != nil {
				return nil, fmt.Errorf("decode log %d details: %w", row.ID, err)
			}
		}
		logs = append(logs, ImportLog{
			ID:            row.ID,
			ImportID:      row.ImportID,
			Level:         LogLevel(row.Level),
			RowNumber:     FromPgInt4Ptr(row.RowNumber),
			FieldName:     FromPgText(row.FieldName),
			FieldValue:    FromPgText(row.FieldValue),
			ExpectedValue: FromPgText(row.ExpectedValue),
			Category:      category,
			Message:       row.Message,
			Details:       details,
			CreatedAt:     FromPgTime(row.CreatedAt),
		})
	}
	return logs, nil
}

var _ Store = (*PostgresStore)(nil)
