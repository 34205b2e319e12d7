// # Error Codes Reference
//
// This file defines user-friendly error messages with codes for support
// reference. Codes are grouped by category; the first matching pattern wins,
// so domain codes are listed ahead of the generic database and request ones
// they may wrap.
//
// # Import Session Errors (IMP001-IMP009)
//
//	IMP001 - Import session not found
//	         Patterns: "import session not found"
//	IMP002 - This import is being committed
//	         Patterns: "import session is busy"
//	IMP003 - This import is still in progress
//	         Patterns: "import session is still active"
//	IMP004 - That action is not available at this step
//	         Patterns: "invalid state transition"
//	IMP005 - Some rows still have errors
//	         Patterns: "commit blocked"
//	IMP006 - There are no rows to commit
//	         Patterns: "nothing to commit"
//	IMP007 - The file has too many rows
//	         Patterns: "too many rows"
//	IMP008 - The document is still being processed
//	         Patterns: "did not finish in time"
//	IMP009 - That row no longer exists
//	         Patterns: "row index out of range"
//
// # Staging Errors (STG001-STG003)
//
//	STG001 - Extraction results could not be read
//	         Patterns: "staging store unavailable"
//	STG002 - The correlation key is not valid
//	         Patterns: "invalid staging key"
//	STG003 - No staged rows were found for this key
//	         Patterns: "staged import not found"
//
// # Mapping Errors (MAP001-MAP006)
//
//	MAP001 - A required field has no column
//	         Patterns: "required destination field is not mapped"
//	MAP002 - A field is mapped to more than one column
//	         Patterns: "destination field mapped more than once"
//	MAP003 - Unknown destination field
//	         Patterns: "unknown destination field"
//	MAP004 - The column mapping is not valid
//	         Patterns: "invalid mapping"
//	MAP005 - A preset with this name already exists
//	         Patterns: "preset already exists"
//	MAP006 - Preset not found
//	         Patterns: "preset not found"
//
// # Extraction Errors (EXT001-EXT005)
//
//	EXT001 - Document import is not available
//	         Patterns: "extraction service is not configured"
//	EXT002 - The document could not be sent for extraction
//	         Patterns: "extraction dispatch failed"
//	EXT003 - The link is not a valid http(s) URL
//	         Patterns: "invalid link"
//	EXT004 - The linked file could not be downloaded
//	         Patterns: "fetch link"
//	EXT005 - The linked file is not valid JSON
//	         Patterns: "invalid json"
//
// # Validation Errors (VAL001-VAL003)
//
//	VAL001 - Invalid date format detected
//	         Patterns: "invalid date"
//	VAL002 - Invalid amount detected
//	         Patterns: "invalid number", "invalid amount"
//	VAL003 - Some rows have errors
//	         Patterns: "rows have validation errors"
//
// # File Errors (FILE001-FILE006)
//
//	FILE001 - File exceeds maximum size limit
//	          Patterns: "file too large"
//	FILE002 - File is not a valid CSV
//	          Patterns: "invalid csv"
//	FILE003 - File contains invalid characters
//	          Patterns: "encoding error"
//	FILE004 - No file was selected
//	          Patterns: "no file provided"
//	FILE005 - The uploaded file is empty
//	          Patterns: "empty file"
//	FILE006 - This file type is not supported
//	          Patterns: "unsupported file type"
//
// # Database Errors (DB001-DB007)
//
//	DB001 - A record with this ID already exists
//	        Patterns: "duplicate key"
//	DB002 - This value must be unique but already exists
//	        Patterns: "unique constraint"
//	DB002 - A duplicate value was found
//	        Patterns: "violates unique"
//	DB004 - Unable to connect to database
//	        Patterns: "connection refused"
//	DB005 - Database connection was interrupted
//	        Patterns: "connection reset"
//	DB006 - Operation timed out
//	        Patterns: "timeout"
//	DB007 - Database was busy with conflicting operations
//	        Patterns: "deadlock"
//
// # Request Errors (REQ001, UPL002-UPL005)
//
//	REQ001 - The request is not valid
//	         Patterns: "invalid request"
//	UPL002 - System is busy processing other uploads
//	         Patterns: "too many uploads"
//	UPL004 - Request was cancelled
//	         Patterns: "context canceled"
//	UPL005 - Request timed out
//	         Patterns: "context deadline exceeded"
//
// # Rate Limiting (RATE001)
//
//	RATE001 - Too many requests
//	          Patterns: "rate limit"
//
// # Default Error (ERR000)
//
// Fallback when no specific pattern matches. Check application logs for the
// original technical error.

package core

import (
	"fmt"
	"strings"
)

// UserMessage provides user-friendly error information with actionable guidance.
type UserMessage struct {
	Message string `json:"message"` // What happened (user-friendly)
	Action  string `json:"action"`  // What to do about it
	Code    string `json:"code"`    // Error code for support reference
}

// errorPattern defines a pattern to match and its corresponding user message.
type errorPattern struct {
	pattern string
	msg     UserMessage
}

// errorPatterns maps technical error patterns (case-insensitive) to user
// messages. Order matters: more specific patterns come first.
var errorPatterns = []errorPattern{
	// =========================================================================
	// Import Session Errors (IMP001-IMP009)
	// These errors occur while moving an import through its lifecycle.
	// =========================================================================
	{
		pattern: "import session not found",
		msg: UserMessage{
			Message: "Import session not found",
			Action:  "The import may have expired. Please start a new import",
			Code:    "IMP001",
		},
	},
	{
		pattern: "import session is busy",
		msg: UserMessage{
			Message: "This import is being committed",
			Action:  "Wait for the commit to finish, then refresh",
			Code:    "IMP002",
		},
	},
	{
		pattern: "import session is still active",
		msg: UserMessage{
			Message: "This import is still in progress",
			Action:  "Cancel the import before removing it",
			Code:    "IMP003",
		},
	},
	{
		pattern: "invalid state transition",
		msg: UserMessage{
			Message: "That action is not available at this step",
			Action:  "Refresh the import to see its current state",
			Code:    "IMP004",
		},
	},
	{
		pattern: "commit blocked",
		msg: UserMessage{
			Message: "Some rows still have errors",
			Action:  "Fix or delete the highlighted rows, then commit again",
			Code:    "IMP005",
		},
	},
	{
		pattern: "nothing to commit",
		msg: UserMessage{
			Message: "There are no rows to commit",
			Action:  "Add at least one row before committing",
			Code:    "IMP006",
		},
	},
	{
		pattern: "too many rows",
		msg: UserMessage{
			Message: "The file has too many rows",
			Action:  "Split the file into smaller imports",
			Code:    "IMP007",
		},
	},
	{
		pattern: "did not finish in time",
		msg: UserMessage{
			Message: "The document is still being processed",
			Action:  "Retry polling or cancel the import",
			Code:    "IMP008",
		},
	},
	{
		pattern: "row index out of range",
		msg: UserMessage{
			Message: "That row no longer exists",
			Action:  "Refresh the review table",
			Code:    "IMP009",
		},
	},

	// =========================================================================
	// Staging Errors (STG001-STG003)
	// These errors occur when reading or writing staged extraction results.
	// =========================================================================
	{
		pattern: "staging store unavailable",
		msg: UserMessage{
			Message: "Extraction results could not be read",
			Action:  "Please try again in a few moments",
			Code:    "STG001",
		},
	},
	{
		pattern: "invalid staging key",
		msg: UserMessage{
			Message: "The correlation key is not valid",
			Action:  "Use 1-200 letters, digits, '.', '_', ':' or '-'",
			Code:    "STG002",
		},
	},
	{
		pattern: "staged import not found",
		msg: UserMessage{
			Message: "No staged rows were found for this key",
			Action:  "Check the key or wait for extraction to finish",
			Code:    "STG003",
		},
	},

	// =========================================================================
	// Mapping Errors (MAP001-MAP006)
	// These errors occur when a column mapping is unusable.
	// =========================================================================
	{
		pattern: "required destination field is not mapped",
		msg: UserMessage{
			Message: "A required field has no column",
			Action:  "Map date, description and amount to a column",
			Code:    "MAP001",
		},
	},
	{
		pattern: "destination field mapped more than once",
		msg: UserMessage{
			Message: "A field is mapped to more than one column",
			Action:  "Keep one column per field",
			Code:    "MAP002",
		},
	},
	{
		pattern: "unknown destination field",
		msg: UserMessage{
			Message: "Unknown destination field",
			Action:  "Use date, description, amount, category or document_id",
			Code:    "MAP003",
		},
	},
	{
		pattern: "invalid mapping",
		msg: UserMessage{
			Message: "The column mapping is not valid",
			Action:  "Review the mapping and try again",
			Code:    "MAP004",
		},
	},
	{
		pattern: "preset already exists",
		msg: UserMessage{
			Message: "A preset with this name already exists",
			Action:  "Choose a different preset name",
			Code:    "MAP005",
		},
	},
	{
		pattern: "preset not found",
		msg: UserMessage{
			Message: "Preset not found",
			Action:  "Refresh the preset list",
			Code:    "MAP006",
		},
	},

	// =========================================================================
	// Extraction Errors (EXT001-EXT005)
	// These errors occur when talking to the document-extraction service.
	// =========================================================================
	{
		pattern: "extraction service is not configured",
		msg: UserMessage{
			Message: "Document import is not available",
			Action:  "Upload a CSV file instead or contact your administrator",
			Code:    "EXT001",
		},
	},
	{
		pattern: "extraction dispatch failed",
		msg: UserMessage{
			Message: "The document could not be sent for extraction",
			Action:  "Please try again in a few moments",
			Code:    "EXT002",
		},
	},
	{
		pattern: "invalid link",
		msg: UserMessage{
			Message: "The link is not a valid http(s) URL",
			Action:  "Paste the full share link",
			Code:    "EXT003",
		},
	},
	{
		pattern: "fetch link",
		msg: UserMessage{
			Message: "The linked file could not be downloaded",
			Action:  "Check that the link is shared publicly",
			Code:    "EXT004",
		},
	},
	{
		pattern: "invalid json",
		msg: UserMessage{
			Message: "The linked file is not valid JSON",
			Action:  "Link to a JSON array of rows",
			Code:    "EXT005",
		},
	},

	// =========================================================================
	// Validation Errors (VAL001-VAL003)
	// These errors occur when data doesn't match expected formats.
	// =========================================================================
	{
		pattern: "invalid date",
		msg: UserMessage{
			Message: "Invalid date format detected",
			Action:  "Use YYYY-MM-DD, MM/DD/YYYY, or Jan 15, 2024",
			Code:    "VAL001",
		},
	},
	{
		pattern: "invalid number",
		msg: UserMessage{
			Message: "Invalid amount detected",
			Action:  "Use digits with an optional minus sign or parentheses",
			Code:    "VAL002",
		},
	},
	{
		pattern: "invalid amount",
		msg: UserMessage{
			Message: "Invalid amount detected",
			Action:  "Use digits with an optional minus sign or parentheses",
			Code:    "VAL002",
		},
	},
	{
		pattern: "rows have validation errors",
		msg: UserMessage{
			Message: "Some rows have errors",
			Action:  "Fix the highlighted rows and try again",
			Code:    "VAL003",
		},
	},

	// =========================================================================
	// File Errors (FILE001-FILE006)
	// These errors occur when processing uploaded files.
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
		pattern: "invalid csv",
		msg: UserMessage{
			Message: "File is not a valid CSV",
			Action:  "Ensure file is comma-separated with consistent columns",
			Code:    "FILE002",
		},
	},
	{
		pattern: "encoding error",
		msg: UserMessage{
			Message: "File contains invalid characters",
			Action:  "Save file as UTF-8 encoding",
			Code:    "FILE003",
		},
	},
	{
		pattern: "no file provided",
		msg: UserMessage{
			Message: "No file was selected",
			Action:  "Please select a file to upload",
			Code:    "FILE004",
		},
	},
	{
		pattern: "empty file",
		msg: UserMessage{
			Message: "The uploaded file is empty",
			Action:  "Please upload a file with data rows",
			Code:    "FILE005",
		},
	},
	{
		pattern: "unsupported file type",
		msg: UserMessage{
			Message: "This file type is not supported",
			Action:  "Upload a CSV, PDF or image",
			Code:    "FILE006",
		},
	},

	// =========================================================================
	// Database Errors (DB001-DB007)
	// These errors occur when the transaction store rejects a batch or is unreachable.
	// =========================================================================
	{
		pattern: "duplicate key",
		msg: UserMessage{
			Message: "A record with this ID already exists",
			Action:  "Remove duplicate rows and commit again",
			Code:    "DB001",
		},
	},
	{
		pattern: "unique constraint",
		msg: UserMessage{
			Message: "This value must be unique but already exists",
			Action:  "Check for duplicate entries",
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
			Action:  "Please try again later",
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
	// Request Errors (REQ001, UPL002-UPL005)
	// These errors occur around request handling and dispatch capacity.
	// =========================================================================
	{
		pattern: "invalid request",
		msg: UserMessage{
			Message: "The request is not valid",
			Action:  "Check the highlighted fields and try again",
			Code:    "REQ001",
		},
	},
	{
		pattern: "too many uploads",
		msg: UserMessage{
			Message: "System is busy processing other uploads",
			Action:  "Please wait a moment and try again",
			Code:    "UPL002",
		},
	},
	{
		pattern: "context canceled",
		msg: UserMessage{
			Message: "Request was cancelled",
			Action:  "Please try again",
			Code:    "UPL004",
		},
	},
	{
		pattern: "context deadline exceeded",
		msg: UserMessage{
			Message: "Request timed out",
			Action:  "Try a smaller file or check your connection",
			Code:    "UPL005",
		},
	},

	// =========================================================================
	// Rate Limiting (RATE001)
	// These errors occur when request limits are exceeded.
	// =========================================================================
	{
		pattern: "rate limit",
		msg: UserMessage{
			Message: "Too many requests",
			Action:  "Please wait a moment before trying again",
			Code:    "RATE001",
		},
	},
}

// defaultMessage is returned when no pattern matches (ERR000).
var defaultMessage = UserMessage{
	Message: "An unexpected error occurred",
	Action:  "Please try again or contact support",
	Code:    "ERR000",
}

// MapError converts a technical error to a user-friendly message.
// It returns the first pattern match, or the ERR000 fallback.
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
// ERR000 fallback.
func IsUserFacing(err error) bool {
	if err == nil {
		return false
	}
	return MapError(err).Code != defaultMessage.Code
}

// UserError pairs a technical error with its user-facing message.
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

// NewUserError maps err to a UserError. Returns nil if err is nil.
func NewUserError(err error) *UserError {
	if err == nil {
		return nil
	}
	return &UserError{
		Technical: err,
		User:      MapError(err),
	}
}
