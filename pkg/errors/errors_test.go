package errors

import (
	"errors"
	"fmt"
	"testing"
)

func TestNew(t *testing.T) {
	err := New(ErrCodeInvalidSpec, "test message: %s", "value")

	if err.Code != ErrCodeInvalidSpec {
		t.Errorf("Code = %v, want %v", err.Code, ErrCodeInvalidSpec)
	}

	if err.Message != "test message: value" {
		t.Errorf("Message = %v, want %v", err.Message, "test message: value")
	}

	expected := "INVALID_SPEC: test message: value"
	if err.Error() != expected {
		t.Errorf("Error() = %v, want %v", err.Error(), expected)
	}
}

func TestWrap(t *testing.T) {
	cause := errors.New("underlying error")
	err := Wrap(ErrCodeNetwork, cause, "failed to fetch")

	if err.Code != ErrCodeNetwork {
		t.Errorf("Code = %v, want %v", err.Code, ErrCodeNetwork)
	}

	if err.Cause != cause {
		t.Errorf("Cause = %v, want %v", err.Cause, cause)
	}

	unwrapped := errors.Unwrap(err)
	if unwrapped != cause {
		t.Errorf("Unwrap() = %v, want %v", unwrapped, cause)
	}

	if !errors.Is(err, cause) {
		t.Error("errors.Is(err, cause) = false, want true")
	}
}

func TestIs(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		code     Code
		expected bool
	}{
		{
			name:     "matching code",
			err:      New(ErrCodeVersionConflict, "test"),
			code:     ErrCodeVersionConflict,
			expected: true,
		},
		{
			name:     "non-matching code",
			err:      New(ErrCodeVersionConflict, "test"),
			code:     ErrCodeCircularDependency,
			expected: false,
		},
		{
			name:     "plain error",
			err:      errors.New("plain"),
			code:     ErrCodeInternal,
			expected: false,
		},
		{
			name:     "wrapped structured error",
			err:      fmt.Errorf("context: %w", New(ErrCodeChecksumMismatch, "bad digest")),
			code:     ErrCodeChecksumMismatch,
			expected: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Is(tt.err, tt.code); got != tt.expected {
				t.Errorf("Is() = %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestGetCode(t *testing.T) {
	if code := GetCode(New(ErrCodeStuckUpdate, "stuck")); code != ErrCodeStuckUpdate {
		t.Errorf("GetCode() = %v, want %v", code, ErrCodeStuckUpdate)
	}
	if code := GetCode(errors.New("plain")); code != "" {
		t.Errorf("GetCode() = %v, want empty", code)
	}
}

func TestUserMessage(t *testing.T) {
	err := New(ErrCodeDependentsExist, "package in use")
	if msg := UserMessage(err); msg != "package in use" {
		t.Errorf("UserMessage() = %q, want %q", msg, "package in use")
	}

	plain := errors.New("boom")
	if msg := UserMessage(plain); msg != "boom" {
		t.Errorf("UserMessage() = %q, want %q", msg, "boom")
	}
}

func TestValidatePackageName(t *testing.T) {
	valid := []string{"requests", "go-chi", "lib_ssl", "a", "pkg.name"}
	for _, name := range valid {
		if err := ValidatePackageName(name); err != nil {
			t.Errorf("ValidatePackageName(%q) = %v, want nil", name, err)
		}
	}

	invalid := []string{"", "../etc", "a/b", "a\\b", "a\x00b", string(make([]byte, 300))}
	for _, name := range invalid {
		if err := ValidatePackageName(name); err == nil {
			t.Errorf("ValidatePackageName(%q) = nil, want error", name)
		}
	}
}
