package core

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/JonMunkholm/statimport/internal/config"
	"github.com/JonMunkholm/statimport/internal/logging"
)

// Service is the import pipeline entry point.
type Service struct {
	store     Store
	cfg       *config.Config
	audit     *AuditLog
	runner    *ValidationRunner
	committer *ImportCommitter
	limiter   *ImportLimiter
}

// NewService creates a Service over store using cfg.
func NewService(store Store, cfg *config.Config) (*Service, error) {
	if store == nil {
		return nil, errors.New("new service: nil store")
	}
	if cfg == nil {
		return nil, errors.New("new service: nil config")
	}

	validator := NewRowValidator(cfg.Import.MinYear, cfg.Import.MaxYear)
	return &Service{
		store:     store,
		cfg:       cfg,
		audit:     NewAuditLog(store, slog.Default()),
		runner:    NewValidationRunner(validator, NewReferenceResolver(store)),
		committer: NewImportCommitter(store, cfg.Import.DataSourceName),
		limiter:   NewImportLimiter(cfg.Upload.MaxConcurrent, cfg.Upload.MaxWaitTime),
	}, nil
}

// SetClock overrides the time source used for year validation.
func (s *Service) SetClock(now func() time.Time) {
	s.runner.validator.Now = now
}

// ImportCSV runs the full pipeline for one uploaded file: dedup gate, parse,
// validate, and commit if every row is valid.
//
// Row problems, parse failures, duplicates and commit failures are all
// reported through the returned ImportResult. An error is returned only when
// the import could not be recorded at all (limiter rejection, oversized file,
// store unavailable before the record was created).
func (s *Service) ImportCSV(ctx context.Context, uploaderID, fileName string, data []byte) (*ImportResult, error) {
	if err := s.limiter.Acquire(ctx); err != nil {
		return nil, err
	}
	defer s.limiter.Release()

	if s.cfg.Upload.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.Upload.Timeout)
		defer cancel()
	}

	if max := s.cfg.Upload.MaxFileSize; max > 0 && int64(len(data)) > max {
		return nil, fmt.Errorf("file too large: %d bytes exceeds limit of %d", len(data), max)
	}

	hash := ContentHash(data)
	existing, err := s.store.FindImportByHash(ctx, hash)
	if err == nil {
		return duplicateResult(existing), nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, fmt.Errorf("check duplicate: %w", err)
	}

	rec, err := s.store.CreateImport(ctx, NewImport{
		Name:        displayName(fileName),
		FileName:    fileName,
		FileSize:    int64(len(data)),
		ContentHash: hash,
		UploadedBy:  uploaderID,
	})
	if errors.Is(err, ErrDuplicateContent) {
		// Lost a race with an identical upload; report the winner.
		existing, ferr := s.store.FindImportByHash(ctx, hash)
		if ferr != nil {
			return nil, fmt.Errorf("find duplicate import: %w", ferr)
		}
		return duplicateResult(existing), nil
	}
	if err != nil {
		return nil, fmt.Errorf("create import: %w", err)
	}

	return s.run(ctx, rec, data), nil
}

// pipeline carries per-import state through run.
type pipeline struct {
	rec    ImportRecord
	status ImportStatus
	start  time.Time
	logger *slog.Logger
	// bg outlives the caller's deadline so terminal writes always happen.
	bg context.Context
}

func (s *Service) run(ctx context.Context, rec ImportRecord, data []byte) (result *ImportResult) {
	p := &pipeline{
		rec:    rec,
		status: rec.Status,
		start:  time.Now(),
		logger: logging.WithFields(ctx, "import_id", rec.ID, "file", rec.FileName),
		bg:     context.WithoutCancel(ctx),
	}
	var stats ImportStats

	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("panic in import", "panic", r)
			result = s.fail(p, fmt.Errorf("internal error: %v", r), stats, nil)
		}
	}()

	p.logger.Info("import started", "size", rec.FileSize, "uploaded_by", rec.UploadedBy)
	started := map[string]any{
		"fileName":    rec.FileName,
		"fileSize":    rec.FileSize,
		"contentHash": rec.ContentHash,
		"uploadedBy":  rec.UploadedBy,
	}
	if meta := RequestMetaFromContext(ctx); meta.ClientIP != "" {
		started["clientIp"] = meta.ClientIP
		started["userAgent"] = meta.UserAgent
	}
	if err := s.audit.Info(p.bg, rec.ID, "Import started", started); err != nil {
		return s.fail(p, err, stats, nil)
	}

	if err := s.transition(p, StatusValidating, ""); err != nil {
		return s.fail(p, err, stats, nil)
	}

	table, err := ParseTable(rec.FileName, data)
	if err != nil {
		var perr *ParseError
		if !errors.As(err, &perr) {
			return s.fail(p, err, stats, nil)
		}
		return s.parseFailed(p, perr)
	}
	stats.TotalRows = len(table.Rows)

	run, err := s.runner.Run(ctx, table.Rows)
	if err != nil {
		return s.fail(p, fmt.Errorf("validate: %w", err), stats, nil)
	}
	stats = ImportStats{
		TotalRows: run.Summary.TotalRows,
		ValidRows: run.Summary.ValidRows,
		ErrorRows: run.Summary.ErrorRows,
	}

	if err := s.audit.ValidationErrors(p.bg, rec.ID, run.Failures); err != nil {
		return s.fail(p, err, stats, nil)
	}
	if err := s.audit.SaveSummary(p.bg, rec.ID, run.Summary); err != nil {
		return s.fail(p, err, stats, nil)
	}

	if !run.Passed() {
		msg := fmt.Sprintf("Validation failed: %d of %d rows have errors", stats.ErrorRows, stats.TotalRows)
		p.logger.Warn("validation failed",
			"total_rows", stats.TotalRows,
			"error_rows", stats.ErrorRows,
			"failures", len(run.Failures),
		)
		if err := s.transition(p, StatusValidationFailed, msg); err != nil {
			return s.fail(p, err, stats, nil)
		}
		s.info(p, msg, breakdownDetails(run.Summary.FailureBreakdown))
		return &ImportResult{
			ImportID: rec.ID,
			Message:  msg,
			Status:   p.status,
			Stats:    stats,
			Summary:  p.resultSummary(run.Summary.FailureBreakdown),
		}
	}

	if err := s.transition(p, StatusImporting, ""); err != nil {
		return s.fail(p, err, stats, nil)
	}
	s.info(p, fmt.Sprintf("Validation passed, committing %d rows", len(run.Rows)), nil)

	session, err := s.committer.Commit(ctx, CommitRequest{
		ImportID: rec.ID,
		FileName: rec.FileName,
		Rows:     run.Rows,
		Snapshot: run.Snapshot,
	})
	if err != nil {
		return s.fail(p, err, stats, &run.Summary)
	}

	// The summary follows the status so a failed transition never leaves
	// imported_success behind.
	if err := s.transition(p, StatusImported, ""); err != nil {
		return s.fail(p, err, stats, &run.Summary)
	}

	commitSummary := run.Summary
	commitSummary.Phase = PhaseCommit
	commitSummary.Status = SummaryImportedSuccess
	if err := s.audit.SaveSummary(p.bg, rec.ID, commitSummary); err != nil {
		p.logger.Error("failed to save commit summary", "error", err)
	}

	details := map[string]any{"recordCount": len(run.Rows)}
	if session != nil {
		details["sessionId"] = session.ID.String()
		details["sessionName"] = session.Name
	}
	s.info(p, "Import completed", details)
	p.logger.Info("import completed", "rows", len(run.Rows), "duration_ms", time.Since(p.start).Milliseconds())

	return &ImportResult{
		Success:  true,
		ImportID: rec.ID,
		Message:  fmt.Sprintf("Successfully imported %d rows", len(run.Rows)),
		Status:   p.status,
		Stats:    stats,
		Summary:  p.resultSummary(run.Summary.FailureBreakdown),
	}
}

// parseFailed records a csv_parsing failure and ends the import in
// validation_failed with zero counts.
func (s *Service) parseFailed(p *pipeline, perr *ParseError) *ImportResult {
	p.logger.Warn("parse failed", "error", perr)

	if err := s.audit.ValidationErrors(p.bg, p.rec.ID, []ValidationFailure{perr.Failure()}); err != nil {
		return s.fail(p, err, ImportStats{}, nil)
	}
	summary := ValidationSummary{
		Phase:            PhaseValidation,
		FailureBreakdown: map[FailureCategory]int{},
		ValidationTimeMs: time.Since(p.start).Milliseconds(),
		Status:           SummaryValidatedFailed,
	}
	if err := s.audit.SaveSummary(p.bg, p.rec.ID, summary); err != nil {
		return s.fail(p, err, ImportStats{}, nil)
	}

	msg := "Validation failed: " + perr.Error()
	if err := s.transition(p, StatusValidationFailed, msg); err != nil {
		return s.fail(p, err, ImportStats{}, nil)
	}

	return &ImportResult{
		ImportID: p.rec.ID,
		Message:  msg,
		Status:   p.status,
		Summary:  p.resultSummary(summary.FailureBreakdown),
	}
}

// fail logs cause as a system error and moves the import to failed. When
// validated is non-nil the commit phase had started and an imported_failed
// summary is written.
func (s *Service) fail(p *pipeline, cause error, stats ImportStats, validated *ValidationSummary) *ImportResult {
	if err := s.audit.SystemError(p.bg, p.rec.ID, cause, map[string]any{"status": string(p.status)}); err != nil {
		p.logger.Error("failed to record system error", "error", err)
	}

	var breakdown map[FailureCategory]int
	if validated != nil {
		failed := *validated
		failed.Phase = PhaseCommit
		failed.Status = SummaryImportedFailed
		breakdown = failed.FailureBreakdown
		if err := s.audit.SaveSummary(p.bg, p.rec.ID, failed); err != nil {
			p.logger.Error("failed to save commit summary", "error", err)
		}
	}

	if p.status.CanTransition(StatusFailed) {
		if err := s.transition(p, StatusFailed, cause.Error()); err != nil {
			p.logger.Error("failed to mark import failed", "error", err)
		}
	}

	return &ImportResult{
		ImportID: p.rec.ID,
		Message:  "Import failed: " + FormatUserError(cause),
		Status:   StatusFailed,
		Stats:    stats,
		Summary:  p.resultSummary(breakdown),
	}
}

// info appends a lifecycle entry. The pipeline outcome does not depend on
// it, so a failed append is only logged.
func (s *Service) info(p *pipeline, msg string, details map[string]any) {
	if err := s.audit.Info(p.bg, p.rec.ID, msg, details); err != nil {
		p.logger.Error("failed to record audit entry", "message", msg, "error", err)
	}
}

func (s *Service) transition(p *pipeline, next ImportStatus, errMsg string) error {
	if !p.status.CanTransition(next) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, p.status, next)
	}
	if err := s.store.UpdateImportStatus(p.bg, p.rec.ID, next, errMsg); err != nil {
		return fmt.Errorf("set status %s: %w", next, err)
	}
	p.logger.Debug("import status changed", "from", p.status, "to", next)
	p.status = next
	return nil
}

func (p *pipeline) resultSummary(breakdown map[FailureCategory]int) *ResultSummary {
	if breakdown == nil {
		breakdown = map[FailureCategory]int{}
	}
	return &ResultSummary{
		FailureBreakdown: breakdown,
		ProcessingTimeMs: strconv.FormatInt(time.Since(p.start).Milliseconds(), 10),
	}
}

// GetImportDetails returns an import with its logs (newest first) and its
// latest summary, which is nil if none was written.
func (s *Service) GetImportDetails(ctx context.Context, importID int64) (*ImportDetails, error) {
	rec, err := s.store.GetImport(ctx, importID)
	if err != nil {
		return nil, fmt.Errorf("get import %d: %w", importID, err)
	}
	logs, err := s.audit.Logs(ctx, importID)
	if err != nil {
		return nil, fmt.Errorf("list logs: %w", err)
	}
	summary, err := s.audit.Summary(ctx, importID)
	if err != nil {
		return nil, fmt.Errorf("get summary: %w", err)
	}
	return &ImportDetails{Import: rec, Logs: logs, Summary: summary}, nil
}

// GetFailedRowsCSV exports an import's validation errors as CSV.
func (s *Service) GetFailedRowsCSV(ctx context.Context, importID int64) (string, error) {
	if _, err := s.store.GetImport(ctx, importID); err != nil {
		return "", fmt.Errorf("get import %d: %w", importID, err)
	}
	return s.audit.FailedRowsCSV(ctx, importID)
}

// DefaultHistoryLimit caps ListImports when no limit is given.
const DefaultHistoryLimit = 50

// ListImports returns recent imports, newest first.
func (s *Service) ListImports(ctx context.Context, limit, offset int) ([]ImportRecord, error) {
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	if offset < 0 {
		offset = 0
	}
	return s.store.ListImports(ctx, limit, offset)
}

// LimiterStatus reports how many imports are running.
func (s *Service) LimiterStatus() LimiterStatus {
	return s.limiter.Status()
}

// WaitForImports blocks until in-flight imports finish or ctx is done.
func (s *Service) WaitForImports(ctx context.Context) error {
	return s.limiter.WaitForDrain(ctx)
}

func duplicateResult(existing ImportRecord) *ImportResult {
	return &ImportResult{
		ImportID:  existing.ID,
		Duplicate: true,
		Status:    existing.Status,
		Message: fmt.Sprintf("This file was already imported as import #%d (%s) on %s",
			existing.ID, existing.FileName, existing.CreatedAt.Format("2006-01-02 15:04")),
	}
}

func displayName(fileName string) string {
	base := filepath.Base(fileName)
	name := strings.TrimSuffix(base, filepath.Ext(base))
	if name == "" || name == "." {
		return base
	}
	return name
}

func breakdownDetails(breakdown map[FailureCategory]int) map[string]any {
	details := make(map[string]any, len(breakdown))
	for _, c := range FailureCategories {
		if n := breakdown[c]; n > 0 {
			details[string(c)] = n
		}
	}
	return details
}
