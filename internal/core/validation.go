package core

// validation.go provides row-level validation for import data before commit.
//
// Validation runs in strict phase order:
//  1. Missing required fields
//  2. Data types (value is a finite number, year is an integer)
//  3. Business rules (non-negative value, year within bounds and not in the future)
//  4. Reference integrity against a pre-loaded ReferenceSnapshot
//
// Phases 1-3 are row-local and stop at the first failure. Phase 4 runs only
// over rows that survived 1-3 and reports every unknown name independently.

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// Default year bounds for imported observations.
const (
	DefaultMinYear = 1990
	DefaultMaxYear = 2030
)

// RowValidator validates RawRows against fixed field and business rules.
// It holds no mutable state and is safe for concurrent use.
type RowValidator struct {
	MinYear int
	MaxYear int
	Now     func() time.Time
}

// NewRowValidator creates a validator with the given year bounds.
// Zero bounds fall back to DefaultMinYear and DefaultMaxYear.
func NewRowValidator(minYear, maxYear int) *RowValidator {
	if minYear == 0 {
		minYear = DefaultMinYear
	}
	if maxYear == 0 {
		maxYear = DefaultMaxYear
	}
	return &RowValidator{MinYear: minYear, MaxYear: maxYear, Now: time.Now}
}

// Validate runs phases 1-3 on a row. It returns the normalized row, or the
// first failure found.
func (v *RowValidator) Validate(row RawRow) (NormalizedRow, *ValidationFailure) {
	for _, col := range RequiredColumns {
		if raw, ok := row.Get(col); !ok || raw == "" {
			return NormalizedRow{}, &ValidationFailure{
				RowNumber:     row.Number,
				FieldName:     col,
				ExpectedValue: "non-empty value",
				Category:      CategoryMissingRequired,
				Message:       fmt.Sprintf("Missing required field: %s", col),
			}
		}
	}

	rawValue, _ := row.Get(ColumnValue)
	value, err := parseDecimal(rawValue)
	if err != nil || math.IsNaN(value) || math.IsInf(value, 0) {
		return NormalizedRow{}, &ValidationFailure{
			RowNumber:     row.Number,
			FieldName:     ColumnValue,
			FieldValue:    rawValue,
			ExpectedValue: "finite number",
			Category:      CategoryDataType,
			Message:       fmt.Sprintf("Invalid number format for value: %q", rawValue),
		}
	}

	rawYear, _ := row.Get(ColumnYear)
	year, err := strconv.Atoi(rawYear)
	if err != nil {
		return NormalizedRow{}, &ValidationFailure{
			RowNumber:     row.Number,
			FieldName:     ColumnYear,
			FieldValue:    rawYear,
			ExpectedValue: "integer year",
			Category:      CategoryDataType,
			Message:       fmt.Sprintf("Invalid integer format for year: %q", rawYear),
		}
	}

	if value < 0 {
		return NormalizedRow{}, &ValidationFailure{
			RowNumber:     row.Number,
			FieldName:     ColumnValue,
			FieldValue:    rawValue,
			ExpectedValue: ">= 0",
			Category:      CategoryBusinessRule,
			Message:       "Value must be non-negative",
		}
	}

	if f := v.checkYear(row.Number, rawYear, year); f != nil {
		return NormalizedRow{}, f
	}

	state, _ := row.Get(ColumnState)
	category, _ := row.Get(ColumnCategory)
	measure, _ := row.Get(ColumnStatistic)

	return NormalizedRow{
		RowNumber: row.Number,
		State:     state,
		Category:  category,
		Measure:   measure,
		Value:     value,
		Year:      year,
	}, nil
}

func (v *RowValidator) checkYear(rowNumber int, raw string, year int) *ValidationFailure {
	now := time.Now
	if v.Now != nil {
		now = v.Now
	}
	currentYear := now().Year()

	if year > currentYear {
		return &ValidationFailure{
			RowNumber:     rowNumber,
			FieldName:     ColumnYear,
			FieldValue:    raw,
			ExpectedValue: fmt.Sprintf("<= %d", currentYear),
			Category:      CategoryBusinessRule,
			Message:       fmt.Sprintf("Year %d is after the current year (%d)", year, currentYear),
			Details:       map[string]any{"currentYear": currentYear},
		}
	}
	if year < v.MinYear || year > v.MaxYear {
		return &ValidationFailure{
			RowNumber:     rowNumber,
			FieldName:     ColumnYear,
			FieldValue:    raw,
			ExpectedValue: fmt.Sprintf("%d-%d", v.MinYear, v.MaxYear),
			Category:      CategoryBusinessRule,
			Message:       fmt.Sprintf("Year must be between %d and %d", v.MinYear, v.MaxYear),
		}
	}
	return nil
}

// ValidateReferences runs phase 4 on a normalized row. Each unknown name
// produces its own invalid_reference failure.
func ValidateReferences(row NormalizedRow, snap *ReferenceSnapshot) []ValidationFailure {
	var failures []ValidationFailure

	check := func(field, name, kind string, known map[string]int64) {
		if _, ok := known[name]; ok {
			return
		}
		failures = append(failures, ValidationFailure{
			RowNumber:     row.RowNumber,
			FieldName:     field,
			FieldValue:    name,
			ExpectedValue: "existing " + kind + " name",
			Category:      CategoryInvalidReference,
			Message:       fmt.Sprintf("Unknown %s: %q", kind, name),
		})
	}

	check(ColumnState, row.State, "state", snap.States)
	check(ColumnCategory, row.Category, "category", snap.Categories)
	check(ColumnStatistic, row.Measure, "statistic", snap.Measures)

	return failures
}

var errHexNumber = errors.New("hexadecimal numbers are not accepted")

// parseDecimal is strconv.ParseFloat restricted to decimal notation.
func parseDecimal(s string) (float64, error) {
	digits := strings.TrimLeft(s, "+-")
	if len(digits) >= 2 && digits[0] == '0' && (digits[1] == 'x' || digits[1] == 'X') {
		return 0, errHexNumber
	}
	return strconv.ParseFloat(s, 64)
}
