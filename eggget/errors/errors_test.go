package errors

import (
	stderrors "errors"
	"fmt"
	"strings"
	"testing"
)

func TestEggError_Error(t *testing.T) {
	tests := []struct {
		name    string
		err     *EggError
		wantStr string
	}{
		{
			name: "basic error",
			err: &EggError{
				Code:    "TEST_ERROR",
				Message: "test message",
			},
			wantStr: "[TEST_ERROR] test message",
		},
		{
			name: "error with cause",
			err: &EggError{
				Code:    "TEST_ERROR",
				Message: "test message",
				Cause:   stderrors.New("underlying error"),
			},
			wantStr: "underlying error",
		},
		{
			name: "error with details",
			err: &EggError{
				Code:    "TEST_ERROR",
				Message: "test message",
				Details: map[string]interface{}{"offset": 14},
			},
			wantStr: "details",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.err.Error()
			if !strings.Contains(got, tt.wantStr) {
				t.Errorf("Error() = %q, want to contain %q", got, tt.wantStr)
			}
		})
	}
}

func TestEggError_WithCause(t *testing.T) {
	cause := stderrors.New("root cause")
	err := ErrDecode.WithCause(cause)

	if err.Cause != cause {
		t.Errorf("WithCause() cause = %v, want %v", err.Cause, cause)
	}

	if !stderrors.Is(err, cause) {
		t.Error("WithCause() should allow errors.Is to reach the cause")
	}
}

func TestEggError_WithDetail(t *testing.T) {
	err := ErrTruncated.WithDetail("offset", int64(32))

	if err.Details["offset"] != int64(32) {
		t.Errorf("WithDetail() offset = %v, want 32", err.Details["offset"])
	}

	if _, exists := ErrTruncated.Details["offset"]; exists {
		t.Error("WithDetail() must not mutate the sentinel")
	}
}

func TestEggError_WithMessage(t *testing.T) {
	err := ErrNotFound.WithMessage("custom message")

	if err.Message != "custom message" {
		t.Errorf("WithMessage() message = %q, want 'custom message'", err.Message)
	}
}

func TestEggError_IsMatchesCode(t *testing.T) {
	derived := ErrTruncated.WithDetail("offset", int64(18)).WithCause(stderrors.New("short read"))
	wrapped := fmt.Errorf("read entry: %w", derived)

	if !stderrors.Is(wrapped, ErrTruncated) {
		t.Error("errors.Is() should match a derived error by code")
	}
	if stderrors.Is(wrapped, ErrUnrecognizedTag) {
		t.Error("errors.Is() matched a different code")
	}
}

func TestIsEggError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{
			name: "EggError",
			err:  ErrNotFound,
			want: true,
		},
		{
			name: "wrapped EggError",
			err:  fmt.Errorf("outer: %w", ErrNotFound.WithDetail("name", "a.txt")),
			want: true,
		},
		{
			name: "standard error",
			err:  stderrors.New("test"),
			want: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsEggError(tt.err); got != tt.want {
				t.Errorf("IsEggError() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestGetErrorCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{
			name: "EggError",
			err:  ErrUnsupportedChunk,
			want: "UNSUPPORTED_CHUNK",
		},
		{
			name: "EggError with modifications",
			err:  ErrUnsupportedMethod.WithDetail("method", 7),
			want: "UNSUPPORTED_METHOD",
		},
		{
			name: "standard error",
			err:  stderrors.New("test"),
			want: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := GetErrorCode(tt.err); got != tt.want {
				t.Errorf("GetErrorCode() = %q, want %q", got, tt.want)
			}
		})
	}
}
