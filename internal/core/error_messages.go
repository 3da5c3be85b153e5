package core

// error_messages.go maps technical errors to user-friendly messages with
// codes for support reference. When users encounter errors, they can quote
// the code to support staff for faster diagnosis.
//
// # Database Errors (DB001-DB099)
//
//	DB001 - Duplicate key: A record with this key already exists
//	        Patterns: "duplicate key"
//	DB002 - Unique constraint: This value must be unique but already exists
//	        Patterns: "unique constraint", "violates unique"
//	DB003 - Foreign key: A referenced state or statistic no longer exists
//	        Patterns: "foreign key constraint", "violates foreign key"
//	DB004 - Connection refused: Unable to connect to database
//	DB005 - Connection reset: Database connection was interrupted
//	DB006 - Timeout: Operation timed out
//	DB007 - Deadlock: Database was busy with conflicting operations
//
// # Validation Errors (VAL001-VAL099)
//
//	VAL001 - Missing field: A required field is empty
//	VAL002 - Invalid number: A value is not a number
//	VAL003 - Invalid year: A year is not a whole number
//	VAL004 - Out of range: A year is outside the accepted range
//	VAL005 - Negative value: Values must be zero or greater
//	VAL006 - Unknown reference: A state, category or statistic is not recognized
//
// Validation codes reach users through MapFailure. AuditLog stores the code
// and action in each validation_error entry's details.
//
// # File Errors (FILE001-FILE099)
//
//	FILE001 - File too large: File exceeds maximum size limit
//	FILE002 - Encoding error: File is not UTF-8
//	FILE003 - Empty file: The uploaded file has no header row
//	FILE004 - Header not found: None of the expected columns were found
//	FILE005 - Invalid CSV: File could not be parsed
//	FILE006 - No file: No file was provided
//
// # Import Errors (IMP001-IMP099)
//
//	IMP001 - Duplicate file: This file was already imported
//	IMP002 - Import not found: No import has this id
//	IMP003 - Invalid state: The import cannot move to the requested status
//	IMP004 - Missing reference: Reference data changed during the import
//
// # Request Errors (UPL001-UPL099)
//
//	UPL001 - System busy: Too many uploads in progress
//	UPL002 - Request cancelled: Request was cancelled
//	UPL003 - Request timeout: Request timed out
//
// # Default Error (ERR000)
//
//	ERR000 - Unknown error: An unexpected error occurred
//
// Patterns are matched case-insensitively using strings.Contains. The first
// matching pattern wins, so more specific patterns come first.

import (
	"errors"
	"fmt"
	"strings"
)

// UserMessage provides user-friendly error information with actionable guidance.
type UserMessage struct {
	Message string // What happened (user-friendly)
	Action  string // What to do about it
	Code    string // Error code for support reference
}

// errorPattern defines a pattern to match and its corresponding user message.
type errorPattern struct {
	pattern string
	msg     UserMessage
}

// errorPatterns maps technical error patterns (case-insensitive) to user messages.
// Order matters: the content hash constraint must match before the generic
// duplicate key pattern, and the csv sub-errors before "invalid csv".
var errorPatterns = []errorPattern{
	// =========================================================================
	// Import Errors (IMP001-IMP004)
	// =========================================================================
	{
		pattern: "imports_content_hash_key",
		msg: UserMessage{
			Message: "This file was already imported",
			Action:  "Check the import history for the earlier upload",
			Code:    "IMP001",
		},
	},
	{
		pattern: "duplicate content hash",
		msg: UserMessage{
			Message: "This file was already imported",
			Action:  "Check the import history for the earlier upload",
			Code:    "IMP001",
		},
	},
	{
		pattern: "import not found",
		msg: UserMessage{
			Message: "Import not found",
			Action:  "Verify the import id is correct",
			Code:    "IMP002",
		},
	},
	{
		pattern: "invalid import status transition",
		msg: UserMessage{
			Message: "The import cannot move to the requested status",
			Action:  "Upload the file again to start a new import",
			Code:    "IMP003",
		},
	},
	{
		pattern: "missing from reference snapshot",
		msg: UserMessage{
			Message: "Reference data changed during the import",
			Action:  "Upload the file again",
			Code:    "IMP004",
		},
	},

	// =========================================================================
	// Database Constraint Errors (DB001-DB003)
	// =========================================================================
	{
		pattern: "duplicate key",
		msg: UserMessage{
			Message: "A record with this key already exists",
			Action:  "Check for duplicate rows in your file",
			Code:    "DB001",
		},
	},
	{
		pattern: "unique constraint",
		msg: UserMessage{
			Message: "This value must be unique but already exists",
			Action:  "Check for duplicate entries in your file",
			Code:    "DB002",
		},
	},
	{
		pattern: "violates unique",
		msg: UserMessage{
			Message: "A duplicate value was found",
			Action:  "Review your data for duplicate key values",
			Code:    "DB002",
		},
	},
	{
		pattern: "foreign key constraint",
		msg: UserMessage{
			Message: "A referenced state or statistic no longer exists",
			Action:  "Upload the file again once reference data is restored",
			Code:    "DB003",
		},
	},
	{
		pattern: "violates foreign key",
		msg: UserMessage{
			Message: "A referenced state or statistic no longer exists",
			Action:  "Upload the file again once reference data is restored",
			Code:    "DB003",
		},
	},

	// =========================================================================
	// Database Connection Errors (DB004-DB007)
	// =========================================================================
	{
		pattern: "connection refused",
		msg: UserMessage{
			Message: "Unable to connect to database",
			Action:  "Please try again in a few moments",
			Code:    "DB004",
		},
	},
	{
		pattern: "connection reset",
		msg: UserMessage{
			Message: "Database connection was interrupted",
			Action:  "Please try again",
			Code:    "DB005",
		},
	},
	{
		pattern: "timeout",
		msg: UserMessage{
			Message: "Operation timed out",
			Action:  "Try uploading a smaller file or try again later",
			Code:    "DB006",
		},
	},
	{
		pattern: "deadlock",
		msg: UserMessage{
			Message: "Database was busy with conflicting operations",
			Action:  "Please try again",
			Code:    "DB007",
		},
	},

	// =========================================================================
	// Validation Errors (VAL001-VAL006)
	// =========================================================================
	{
		pattern: "missing required field",
		msg: UserMessage{
			Message: "A required field is empty",
			Action:  "Fill in State, Category, Statistic, Value and Year on every row",
			Code:    "VAL001",
		},
	},
	{
		pattern: "invalid number format",
		msg: UserMessage{
			Message: "A value is not a number",
			Action:  "Remove units and thousands separators from the Value column",
			Code:    "VAL002",
		},
	},
	{
		pattern: "invalid integer format",
		msg: UserMessage{
			Message: "A year is not a whole number",
			Action:  "Use four-digit years such as 2021",
			Code:    "VAL003",
		},
	},
	{
		pattern: "year must be between",
		msg: UserMessage{
			Message: "A year is outside the accepted range",
			Action:  "Check the Year column for typos",
			Code:    "VAL004",
		},
	},
	{
		pattern: "after the current year",
		msg: UserMessage{
			Message: "A year is outside the accepted range",
			Action:  "Future years cannot be imported",
			Code:    "VAL004",
		},
	},
	{
		pattern: "must be non-negative",
		msg: UserMessage{
			Message: "Values must be zero or greater",
			Action:  "Correct negative values in the Value column",
			Code:    "VAL005",
		},
	},
	{
		pattern: "unknown state",
		msg: UserMessage{
			Message: "A state, category or statistic is not recognized",
			Action:  "Download failed rows to see which names did not match",
			Code:    "VAL006",
		},
	},
	{
		pattern: "unknown category",
		msg: UserMessage{
			Message: "A state, category or statistic is not recognized",
			Action:  "Download failed rows to see which names did not match",
			Code:    "VAL006",
		},
	},
	{
		pattern: "unknown statistic",
		msg: UserMessage{
			Message: "A state, category or statistic is not recognized",
			Action:  "Download failed rows to see which names did not match",
			Code:    "VAL006",
		},
	},

	// =========================================================================
	// File Errors (FILE001-FILE006)
	// =========================================================================
	{
		pattern: "file too large",
		msg: UserMessage{
			Message: "File exceeds maximum size limit",
			Action:  "Split the file into smaller chunks",
			Code:    "FILE001",
		},
	},
	{
		pattern: "encoding error",
		msg: UserMessage{
			Message: "File contains invalid characters",
			Action:  "Save file as UTF-8 encoding",
			Code:    "FILE002",
		},
	},
	{
		pattern: "empty file",
		msg: UserMessage{
			Message: "The uploaded file is empty",
			Action:  "Please upload a file with a header row",
			Code:    "FILE003",
		},
	},
	{
		pattern: "header row not found",
		msg: UserMessage{
			Message: "None of the expected columns were found",
			Action:  "Use the headers State, Category, Statistic, Value, Year",
			Code:    "FILE004",
		},
	},
	{
		pattern: "invalid csv",
		msg: UserMessage{
			Message: "File could not be parsed",
			Action:  "Ensure the file is comma-separated with consistent quoting",
			Code:    "FILE005",
		},
	},
	{
		pattern: "no file provided",
		msg: UserMessage{
			Message: "No file was provided",
			Action:  "Attach the file in the \"file\" form field",
			Code:    "FILE006",
		},
	},

	// =========================================================================
	// Request Errors (UPL001-UPL003)
	// =========================================================================
	{
		pattern: "too many uploads",
		msg: UserMessage{
			Message: "System is busy processing other uploads",
			Action:  "Please wait a moment and try again",
			Code:    "UPL001",
		},
	},
	{
		pattern: "context canceled",
		msg: UserMessage{
			Message: "Request was cancelled",
			Action:  "Please try again",
			Code:    "UPL002",
		},
	},
	{
		pattern: "context deadline exceeded",
		msg: UserMessage{
			Message: "Request timed out",
			Action:  "Try uploading a smaller file or check your connection",
			Code:    "UPL003",
		},
	},
}

// defaultMessage is returned when no pattern matches (ERR000).
// Support staff should check application logs for the original technical
// error when users report ERR000.
var defaultMessage = UserMessage{
	Message: "An unexpected error occurred",
	Action:  "Please try again or contact support",
	Code:    "ERR000",
}

// MapError converts a technical error to a user-friendly message.
// It searches through known error patterns (case-insensitive) and returns
// the first match. If no pattern matches, a generic fallback message with
// code ERR000 is returned.
func MapError(err error) UserMessage {
	if err == nil {
		return UserMessage{}
	}

	errStr := strings.ToLower(err.Error())

	for _, ep := range errorPatterns {
		if strings.Contains(errStr, ep.pattern) {
			return ep.msg
		}
	}

	return defaultMessage
}

// MapFailure returns the user message for a row-level validation failure.
// ok is false when no VAL or FILE pattern covers the failure message.
func MapFailure(f ValidationFailure) (msg UserMessage, ok bool) {
	msg = MapError(errors.New(f.Message))
	return msg, msg.Code != defaultMessage.Code
}

// FormatUserError creates a formatted error string for display.
// The format is: "Message (Code: XXX). Action"
func FormatUserError(err error) string {
	msg := MapError(err)
	if msg.Message == "" {
		return ""
	}
	return fmt.Sprintf("%s (Code: %s). %s", msg.Message, msg.Code, msg.Action)
}

// IsUserFacing reports whether err matches a known pattern rather than the
// generic ERR000 fallback.
func IsUserFacing(err error) bool {
	if err == nil {
		return false
	}
	return MapError(err).Code != defaultMessage.Code
}

// UserError wraps a technical error with a user-friendly message.
// The original error is preserved for logging.
type UserError struct {
	Technical error       // Original technical error for logging
	User      UserMessage // User-friendly message for display
}

func (e *UserError) Error() string {
	return e.User.Message
}

func (e *UserError) Unwrap() error {
	return e.Technical
}

// NewUserError creates a UserError by mapping a technical error to a
// user-friendly message. Returns nil if err is nil.
func NewUserError(err error) *UserError {
	if err == nil {
		return nil
	}
	return &UserError{
		Technical: err,
		User:      MapError(err),
	}
}
