package core

import (
	"errors"
	"fmt"
	"testing"

	"github.com/JonMunkholm/ledgerimport/internal/mapping"
	"github.com/JonMunkholm/ledgerimport/internal/staging"
)

func TestMapError(t *testing.T) {
	tests := []struct {
		name        string
		err         error
		wantCode    string
		wantMessage string
	}{
		{
			name:        "nil error returns empty",
			err:         nil,
			wantCode:    "",
			wantMessage: "",
		},
		{
			name:        "unknown session maps correctly",
			err:         fmt.Errorf("%w: abc", ErrSessionNotFound),
			wantCode:    "IMP001",
			wantMessage: "Import session not found",
		},
		{
			name:        "invalid transition maps correctly",
			err:         checkTransition(StateCommitted, StateMapping),
			wantCode:    "IMP004",
			wantMessage: "That action is not available at this step",
		},
		{
			name:        "blocked commit maps before generic row errors",
			err:         fmt.Errorf("%w: 2 of 5 rows", ErrRowsInvalid),
			wantCode:    "IMP005",
			wantMessage: "Some rows still have errors",
		},
		{
			name:        "staging outage maps before connection refused",
			err:         fmt.Errorf("take: %w: %w", staging.ErrUnavailable, errors.New("dial tcp: connection refused")),
			wantCode:    "STG001",
			wantMessage: "Extraction results could not be read",
		},
		{
			name:        "missing required field maps before invalid mapping",
			err:         fmt.Errorf("%w: amount: required destination field is not mapped", mapping.ErrInvalidMapping),
			wantCode:    "MAP001",
			wantMessage: "A required field has no column",
		},
		{
			name:        "documents disabled maps correctly",
			err:         ErrDocumentsDisabled,
			wantCode:    "EXT001",
			wantMessage: "Document import is not available",
		},
		{
			name:        "duplicate key maps correctly",
			err:         errors.New("commit: ERROR: duplicate key value violates unique constraint"),
			wantCode:    "DB001",
			wantMessage: "A record with this ID already exists",
		},
		{
			name:        "connection refused maps correctly",
			err:         errors.New("commit: dial tcp: connection refused"),
			wantCode:    "DB004",
			wantMessage: "Unable to connect to database",
		},
		{
			name:        "file too large maps correctly",
			err:         errors.New("file too large: 200MB exceeds limit"),
			wantCode:    "FILE001",
			wantMessage: "File exceeds maximum size limit",
		},
		{
			name:        "unsupported file type maps correctly",
			err:         fmt.Errorf("%w: application/zip", ErrUnsupportedFileType),
			wantCode:    "FILE006",
			wantMessage: "This file type is not supported",
		},
		{
			name:        "too many uploads maps correctly",
			err:         ErrTooManyUploads,
			wantCode:    "UPL002",
			wantMessage: "System is busy processing other uploads",
		},
		{
			name:        "rate limit maps correctly",
			err:         errors.New("rate limit exceeded"),
			wantCode:    "RATE001",
			wantMessage: "Too many requests",
		},
		{
			name:        "unknown error returns default",
			err:         errors.New("some random internal error"),
			wantCode:    "ERR000",
			wantMessage: "An unexpected error occurred",
		},
		{
			name:        "case insensitive matching",
			err:         errors.New("DUPLICATE KEY value violates"),
			wantCode:    "DB001",
			wantMessage: "A record with this ID already exists",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := MapError(tt.err)
			if got.Code != tt.wantCode {
				t.Errorf("MapError() code = %q, want %q", got.Code, tt.wantCode)
			}
			if got.Message != tt.wantMessage {
				t.Errorf("MapError() message = %q, want %q", got.Message, tt.wantMessage)
			}
		})
	}
}

func TestFormatUserError(t *testing.T) {
	result := FormatUserError(ErrNothingToCommit)

	expected := "There are no rows to commit (Code: IMP006). Add at least one row before committing"
	if result != expected {
		t.Errorf("FormatUserError() = %q, want %q", result, expected)
	}

	if got := FormatUserError(nil); got != "" {
		t.Errorf("FormatUserError(nil) = %q, want empty", got)
	}
}

func TestIsUserFacing(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{
			name: "nil error is not user facing",
			err:  nil,
			want: false,
		},
		{
			name: "known error is user facing",
			err:  staging.ErrInvalidKey,
			want: true,
		},
		{
			name: "unknown error is not user facing",
			err:  errors.New("random internal error xyz"),
			want: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := IsUserFacing(tt.err)
			if got != tt.want {
				t.Errorf("IsUserFacing() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestNewUserError(t *testing.T) {
	t.Run("nil error returns nil", func(t *testing.T) {
		if got := NewUserError(nil); got != nil {
			t.Errorf("NewUserError(nil) = %v, want nil", got)
		}
	})

	t.Run("wraps technical error with user message", func(t *testing.T) {
		techErr := fmt.Errorf("%w: 7", ErrRowIndex)
		userErr := NewUserError(techErr)

		if userErr.Error() != "That row no longer exists" {
			t.Errorf("Error() = %q, want user message", userErr.Error())
		}

		if !errors.Is(userErr, ErrRowIndex) {
			t.Error("Unwrap() should return original error")
		}
	})
}

func TestErrorPatternsHaveCodes(t *testing.T) {
	for _, ep := range errorPatterns {
		if ep.pattern == "" || ep.msg.Code == "" || ep.msg.Message == "" || ep.msg.Action == "" {
			t.Errorf("incomplete pattern entry: %+v", ep)
		}
	}
}
