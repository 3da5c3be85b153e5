package database

import (
	"github.com/jackc/pgx/v5/pgtype"
)

type Import struct {
	ID           int64
	Name         string
	FileName     string
	FileSize     int64
	ContentHash  string
	Status       string
	ErrorMessage pgtype.Text
	UploadedBy   string
	CreatedAt    pgtype.Timestamptz
	UpdatedAt    pgtype.Timestamptz
	CompletedAt  pgtype.Timestamptz
}

type ImportLog struct {
	ID              int64
	ImportID        int64
	Level           string
	RowNumber       pgtype.Int4
	FieldName       pgtype.Text
	FieldValue      pgtype.Text
	ExpectedValue   pgtype.Text
	FailureCategory pgtype.Text
	Message         string
	Details         []byte
	CreatedAt       pgtype.Timestamptz
}

type ImportSummary struct {
	ImportID         int64
	Phase            string
	TotalRows        int32
	ValidRows        int32
	ErrorRows        int32
	FailureBreakdown []byte
	ValidationTimeMs int64
	Status           string
	CreatedAt        pgtype.Timestamptz
}

type ImportSession struct {
	ID           pgtype.UUID
	Name         string
	ImportID     pgtype.Int8
	DataSourceID int64
	RecordCount  int32
	CreatedAt    pgtype.Timestamptz
}

type StatisticValue struct {
	StateID         int64
	MeasureID       int64
	Value           float64
	Year            int32
	ImportSessionID pgtype.UUID
}

// NamedID is a reference entity's name and id.
type NamedID struct {
	ID   int64
	Name string
}
