package core

import (
	"time"

	"github.com/google/uuid"
)

// FailureCategory classifies why a row (or a whole import) did not validate.
type FailureCategory string

const (
	CategoryMissingRequired  FailureCategory = "missing_required"
	CategoryInvalidReference FailureCategory = "invalid_reference"
	CategoryDataType         FailureCategory = "data_type"
	CategoryBusinessRule     FailureCategory = "business_rule"
	CategoryDatabaseError    FailureCategory = "database_error"
	CategoryCSVParsing       FailureCategory = "csv_parsing"
)

// FailureCategories lists every category in reporting order.
var FailureCategories = []FailureCategory{
	CategoryMissingRequired,
	CategoryInvalidReference,
	CategoryDataType,
	CategoryBusinessRule,
	CategoryDatabaseError,
	CategoryCSVParsing,
}

// Valid reports whether c is one of the known categories.
func (c FailureCategory) Valid() bool {
	switch c {
	case CategoryMissingRequired, CategoryInvalidReference, CategoryDataType,
		CategoryBusinessRule, CategoryDatabaseError, CategoryCSVParsing:
		return true
	}
	return false
}

// ImportStatus is the lifecycle state of an ImportRecord.
type ImportStatus string

const (
	StatusUploaded         ImportStatus = "uploaded"
	StatusValidating       ImportStatus = "validating"
	StatusValidationFailed ImportStatus = "validation_failed"
	StatusImporting        ImportStatus = "importing"
	StatusImported         ImportStatus = "imported"
	StatusFailed           ImportStatus = "failed"
)

// transitions lists the forward moves allowed from each status.
var transitions = map[ImportStatus][]ImportStatus{
	StatusUploaded:   {StatusValidating, StatusFailed},
	StatusValidating: {StatusValidationFailed, StatusImporting, StatusFailed},
	StatusImporting:  {StatusImported, StatusFailed},
}

// CanTransition reports whether an import in status s may move to next.
func (s ImportStatus) CanTransition(next ImportStatus) bool {
	for _, allowed := range transitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Terminal reports whether no further transition is possible.
func (s ImportStatus) Terminal() bool {
	return len(transitions[s]) == 0
}

// ImportRecord is one bulk-upload attempt.
type ImportRecord struct {
	ID           int64        `json:"id"`
	Name         string       `json:"name"`
	FileName     string       `json:"fileName"`
	FileSize     int64        `json:"fileSize"`
	ContentHash  string       `json:"contentHash"`
	Status       ImportStatus `json:"status"`
	ErrorMessage string       `json:"errorMessage,omitempty"`
	UploadedBy   string       `json:"uploadedBy"`
	CreatedAt    time.Time    `json:"createdAt"`
	UpdatedAt    time.Time    `json:"updatedAt"`
	CompletedAt  *time.Time   `json:"completedAt,omitempty"`
}

// NewImport contains the fields needed to create an ImportRecord.
type NewImport struct {
	Name        string
	FileName    string
	FileSize    int64
	ContentHash string
	UploadedBy  string
}

// RawRow is one parsed data line prior to validation.
type RawRow struct {
	Number int               // Physical line number; the header is line 1
	Values map[string]string // Trimmed values keyed by lower-cased column name
}

// Get returns the trimmed value for column and whether the column was present.
func (r RawRow) Get(column string) (string, bool) {
	v, ok := r.Values[column]
	return v, ok
}

// ValidationFailure is one detected problem with a row or the file.
type ValidationFailure struct {
	RowNumber     int             `json:"rowNumber"`
	FieldName     string          `json:"fieldName,omitempty"`
	FieldValue    string          `json:"fieldValue,omitempty"`
	ExpectedValue string          `json:"expectedValue,omitempty"`
	Category      FailureCategory `json:"category"`
	Message       string          `json:"message"`
	Details       map[string]any  `json:"details,omitempty"`
}

// NormalizedRow is a row that passed every validation phase.
type NormalizedRow struct {
	RowNumber int
	State     string
	Category  string
	Measure   string
	Value     float64
	Year      int
}

// SummaryPhase names the pipeline phase a summary describes.
type SummaryPhase string

const (
	PhaseValidation SummaryPhase = "validation"
	PhaseCommit     SummaryPhase = "commit"
)

// SummaryStatus is the terminal status recorded on a summary.
type SummaryStatus string

const (
	SummaryValidatedFailed SummaryStatus = "validated_failed"
	SummaryValidatedPassed SummaryStatus = "validated_passed"
	SummaryImportedSuccess SummaryStatus = "imported_success"
	SummaryImportedFailed  SummaryStatus = "imported_failed"
)

// ValidationSummary aggregates the outcome of a phase for one import.
type ValidationSummary struct {
	ImportID         int64                   `json:"importId"`
	Phase            SummaryPhase            `json:"phase"`
	TotalRows        int                     `json:"totalRows"`
	ValidRows        int                     `json:"validRows"`
	ErrorRows        int                     `json:"errorRows"`
	FailureBreakdown map[FailureCategory]int `json:"failureBreakdown"`
	ValidationTimeMs int64                   `json:"validationTimeMs"`
	Status           SummaryStatus           `json:"status"`
	CreatedAt        time.Time               `json:"createdAt"`
}

// LogLevel classifies an audit log entry.
type LogLevel string

const (
	LevelInfo            LogLevel = "info"
	LevelValidationError LogLevel = "validation_error"
	LevelSystemError     LogLevel = "system_error"
)

// ImportLog is one append-only audit entry for an import.
type ImportLog struct {
	ID            int64           `json:"id"`
	ImportID      int64           `json:"importId"`
	Level         LogLevel        `json:"level"`
	RowNumber     *int            `json:"rowNumber,omitempty"`
	FieldName     string          `json:"fieldName,omitempty"`
	FieldValue    string          `json:"fieldValue,omitempty"`
	ExpectedValue string          `json:"expectedValue,omitempty"`
	Category      FailureCategory `json:"category,omitempty"`
	Message       string          `json:"message"`
	Details       map[string]any  `json:"details,omitempty"`
	CreatedAt     time.Time       `json:"createdAt"`
}

// ImportSession groups every record written by one successful commit.
type ImportSession struct {
	ID           uuid.UUID `json:"id"`
	Name         string    `json:"name"`
	ImportID     int64     `json:"importId"`
	DataSourceID int64     `json:"dataSourceId"`
	RecordCount  int       `json:"recordCount"`
	CreatedAt    time.Time `json:"createdAt"`
}

// CommittedRecord is one persisted statistic value.
type CommittedRecord struct {
	StateID   int64
	MeasureID int64
	Value     float64
	Year      int
	SessionID uuid.UUID
}

// ImportStats holds row accounting for an ImportResult.
type ImportStats struct {
	TotalRows int `json:"totalRows"`
	ValidRows int `json:"validRows"`
	ErrorRows int `json:"errorRows"`
}

// ResultSummary is the optional summary block of an ImportResult.
type ResultSummary struct {
	FailureBreakdown map[FailureCategory]int `json:"failureBreakdown"`
	ProcessingTimeMs string                  `json:"processingTimeMs"`
}

// ImportResult is returned to the caller of ImportCSV.
type ImportResult struct {
	Success   bool           `json:"success"`
	ImportID  int64          `json:"importId"`
	Message   string         `json:"message"`
	Status    ImportStatus   `json:"status,omitempty"`
	Duplicate bool           `json:"duplicate,omitempty"`
	Stats     ImportStats    `json:"stats"`
	Summary   *ResultSummary `json:"summary,omitempty"`
}

// ImportDetails bundles an import with its audit trail.
type ImportDetails struct {
	Import  ImportRecord       `json:"import"`
	Logs    []ImportLog        `json:"logs"`
	Summary *ValidationSummary `json:"summary"`
}
