package core

import (
	"context"
	"time"
)

// RunResult is the outcome of validating a whole file.
type RunResult struct {
	Rows     []NormalizedRow     // Rows that passed every phase; empty if any failure exists
	Failures []ValidationFailure // Ordered by row number
	Snapshot *ReferenceSnapshot
	Summary  ValidationSummary
}

// Passed reports whether no failures were found.
func (r *RunResult) Passed() bool {
	return len(r.Failures) == 0
}

// ValidationRunner orchestrates RowValidator across every row of a file.
type ValidationRunner struct {
	validator *RowValidator
	resolver  *ReferenceResolver
}

// NewValidationRunner creates a runner.
func NewValidationRunner(validator *RowValidator, resolver *ReferenceResolver) *ValidationRunner {
	return &ValidationRunner{validator: validator, resolver: resolver}
}

// Run validates rows. Row problems are reported in the result; the returned
// error is only set when the reference snapshot could not be loaded.
func (r *ValidationRunner) Run(ctx context.Context, rows []RawRow) (*RunResult, error) {
	start := time.Now()

	// byRow keeps each row's failures together so output stays in row order
	// even though phase 4 runs after phases 1-3 have finished.
	byRow := make([][]ValidationFailure, len(rows))
	survivors := make([]NormalizedRow, 0, len(rows))
	survivorIdx := make([]int, 0, len(rows))

	for i, row := range rows {
		norm, failure := r.validator.Validate(row)
		if failure != nil {
			byRow[i] = append(byRow[i], *failure)
			continue
		}
		survivors = append(survivors, norm)
		survivorIdx = append(survivorIdx, i)
	}

	snap, err := r.resolver.Load(ctx, survivors)
	if err != nil {
		return nil, err
	}

	valid := make([]NormalizedRow, 0, len(survivors))
	for j, norm := range survivors {
		if refFailures := ValidateReferences(norm, snap); len(refFailures) > 0 {
			byRow[survivorIdx[j]] = append(byRow[survivorIdx[j]], refFailures...)
			continue
		}
		valid = append(valid, norm)
	}

	result := &RunResult{Snapshot: snap}
	breakdown := make(map[FailureCategory]int)
	errorRows := 0
	for _, fs := range byRow {
		if len(fs) == 0 {
			continue
		}
		errorRows++
		breakdown[fs[0].Category]++
		result.Failures = append(result.Failures, fs...)
	}

	if len(result.Failures) == 0 {
		result.Rows = valid
	}

	status := SummaryValidatedPassed
	if errorRows > 0 {
		status = SummaryValidatedFailed
	}

	result.Summary = ValidationSummary{
		Phase:            PhaseValidation,
		TotalRows:        len(rows),
		ValidRows:        len(rows) - errorRows,
		ErrorRows:        errorRows,
		FailureBreakdown: breakdown,
		ValidationTimeMs: time.Since(start).Milliseconds(),
		Status:           status,
	}

	return result, nil
}
