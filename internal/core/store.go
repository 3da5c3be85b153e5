package core

import (
	"context"
	"errors"
)

var (
	// ErrNotFound is returned when an import or summary does not exist.
	ErrNotFound = errors.New("import not found")

	// ErrDuplicateContent is returned by CreateImport when an import with the
	// same content hash already exists.
	ErrDuplicateContent = errors.New("duplicate content hash")

	// ErrInvalidTransition is returned when a status update would move an
	// import backwards or skip a state.
	ErrInvalidTransition = errors.New("invalid import status transition")
)

// ImportStore persists ImportRecords.
type ImportStore interface {
	// FindImportByHash returns ErrNotFound if no import has the hash.
	FindImportByHash(ctx context.Context, hash string) (ImportRecord, error)
	// CreateImport inserts a record in StatusUploaded. It returns
	// ErrDuplicateContent when the hash is already taken.
	CreateImport(ctx context.Context, params NewImport) (ImportRecord, error)
	// UpdateImportStatus moves an import to status. It returns
	// ErrInvalidTransition if the move is not allowed.
	UpdateImportStatus(ctx context.Context, id int64, status ImportStatus, errMsg string) error
	GetImport(ctx context.Context, id int64) (ImportRecord, error)
	ListImports(ctx context.Context, limit, offset int) ([]ImportRecord, error)
}

// LogStore persists audit entries and summaries.
type LogStore interface {
	AppendLogs(ctx context.Context, entries []ImportLog) error
	// ListLogs returns entries newest first.
	ListLogs(ctx context.Context, importID int64) ([]ImportLog, error)
	// ListLogsByLevel returns entries of one level in the order they were written.
	ListLogsByLevel(ctx context.Context, importID int64, level LogLevel) ([]ImportLog, error)
	SaveSummary(ctx context.Context, summary ValidationSummary) error
	// LatestSummary returns the commit summary if present, else the
	// validation summary, else ErrNotFound.
	LatestSummary(ctx context.Context, importID int64) (ValidationSummary, error)
}

// CommitTx is the set of writes performed atomically by a commit.
type CommitTx interface {
	// EnsureDataSource returns the id of the named data source, creating it if needed.
	EnsureDataSource(ctx context.Context, name string) (int64, error)
	CreateSession(ctx context.Context, session ImportSession) (ImportSession, error)
	InsertRecords(ctx context.Context, records []CommittedRecord) (int64, error)
}

// CommitStore runs fn inside a transaction. If fn returns an error every
// write made through the CommitTx is rolled back.
type CommitStore interface {
	WithCommitTx(ctx context.Context, fn func(tx CommitTx) error) error
}

// Store is the full persistence surface used by Service.
type Store interface {
	ImportStore
	LogStore
	CommitStore
	ReferenceLookup
}
