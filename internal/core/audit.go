package core

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
)

// FailedRowsHeader is the header line of the failed-rows export.
var FailedRowsHeader = []string{
	"Row Number", "Field Name", "Field Value", "Expected Value", "Failure Category", "Message",
}

// AuditLog is the append-only audit trail for imports. Entries are never
// updated; summaries are stored separately, one per import and phase.
type AuditLog struct {
	store  LogStore
	logger *slog.Logger
}

// NewAuditLog creates an AuditLog backed by store.
func NewAuditLog(store LogStore, logger *slog.Logger) *AuditLog {
	if logger == nil {
		logger = slog.Default()
	}
	return &AuditLog{store: store, logger: logger}
}

// Info records a lifecycle event.
func (a *AuditLog) Info(ctx context.Context, importID int64, message string, details map[string]any) error {
	return a.append(ctx, ImportLog{
		ImportID: importID,
		Level:    LevelInfo,
		Message:  message,
		Details:  details,
	})
}

// ValidationErrors records one validation_error entry per failure, in order.
func (a *AuditLog) ValidationErrors(ctx context.Context, importID int64, failures []ValidationFailure) error {
	if len(failures) == 0 {
		return nil
	}
	entries := make([]ImportLog, 0, len(failures))
	for _, f := range failures {
		entry := ImportLog{
			ImportID:      importID,
			Level:         LevelValidationError,
			FieldName:     f.FieldName,
			FieldValue:    f.FieldValue,
			ExpectedValue: f.ExpectedValue,
			Category:      f.Category,
			Message:       f.Message,
			Details:       failureDetails(f),
		}
		if f.RowNumber > 0 {
			row := f.RowNumber
			entry.RowNumber = &row
		}
		entries = append(entries, entry)
	}
	if err := a.store.AppendLogs(ctx, entries); err != nil {
		return fmt.Errorf("append validation errors: %w", err)
	}
	return nil
}

// failureDetails copies f.Details and adds the support code and suggested
// action for the failure message.
func failureDetails(f ValidationFailure) map[string]any {
	msg, ok := MapFailure(f)
	if !ok {
		return f.Details
	}
	details := make(map[string]any, len(f.Details)+2)
	for k, v := range f.Details {
		details[k] = v
	}
	details["code"] = msg.Code
	details["action"] = msg.Action
	return details
}

// SystemError records an unexpected error. The category is always database_error.
func (a *AuditLog) SystemError(ctx context.Context, importID int64, cause error, details map[string]any) error {
	a.logger.Error("import system error", "import_id", importID, "error", cause)

	if details == nil {
		details = map[string]any{}
	}
	var pgCode interface{ SQLState() string }
	if errors.As(cause, &pgCode) {
		details["sqlState"] = pgCode.SQLState()
	}
	details["userMessage"] = FormatUserError(cause)

	return a.append(ctx, ImportLog{
		ImportID: importID,
		Level:    LevelSystemError,
		Category: CategoryDatabaseError,
		Message:  cause.Error(),
		Details:  details,
	})
}

// SaveSummary stores the summary for its phase.
func (a *AuditLog) SaveSummary(ctx context.Context, importID int64, summary ValidationSummary) error {
	summary.ImportID = importID
	if err := a.store.SaveSummary(ctx, summary); err != nil {
		return fmt.Errorf("save %s summary: %w", summary.Phase, err)
	}
	return nil
}

// Logs returns every entry for an import, newest first.
func (a *AuditLog) Logs(ctx context.Context, importID int64) ([]ImportLog, error) {
	return a.store.ListLogs(ctx, importID)
}

// Summary returns the most recent summary, or nil if none was written.
func (a *AuditLog) Summary(ctx context.Context, importID int64) (*ValidationSummary, error) {
	summary, err := a.store.LatestSummary(ctx, importID)
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &summary, nil
}

// FailedRowsCSV renders every validation_error entry as a CSV line, in the
// order the entries were logged. Every field is double-quoted.
func (a *AuditLog) FailedRowsCSV(ctx context.Context, importID int64) (string, error) {
	entries, err := a.store.ListLogsByLevel(ctx, importID, LevelValidationError)
	if err != nil {
		return "", fmt.Errorf("list validation errors: %w", err)
	}

	var b strings.Builder
	writeQuotedLine(&b, FailedRowsHeader)
	for _, e := range entries {
		row := ""
		if e.RowNumber != nil {
			row = strconv.Itoa(*e.RowNumber)
		}
		writeQuotedLine(&b, []string{
			row,
			e.FieldName,
			e.FieldValue,
			e.ExpectedValue,
			string(e.Category),
			e.Message,
		})
	}
	return b.String(), nil
}

func (a *AuditLog) append(ctx context.Context, entry ImportLog) error {
	if err := a.store.AppendLogs(ctx, []ImportLog{entry}); err != nil {
		return fmt.Errorf("append %s log: %w", entry.Level, err)
	}
	return nil
}

// writeQuotedLine writes fields with every value quoted. encoding/csv only
// quotes when needed, so it cannot produce this format.
func writeQuotedLine(b *strings.Builder, fields []string) {
	for i, f := range fields {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteByte('"')
		b.WriteString(strings.ReplaceAll(f, `"`, `""`))
		b.WriteByte('"')
	}
	b.WriteByte('\n')
}
