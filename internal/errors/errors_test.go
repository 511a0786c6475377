package errors

import (
	stderrors "errors"
	"fmt"
	"io/fs"
	"strings"
	"testing"
)

func TestSalawatError_Error(t *testing.T) {
	err := &SalawatError{
		Code:    ErrCorruptState,
		Status:  500,
		Message: "counter state is corrupt",
	}

	expected := "CORRUPT_STATE: counter state is corrupt"
	if err.Error() != expected {
		t.Errorf("Error() = %q, want %q", err.Error(), expected)
	}
}

func TestNewInvalidRequest(t *testing.T) {
	err := NewInvalidRequest("amount is required")

	if err.Code != ErrInvalidRequest {
		t.Errorf("Code = %q, want %q", err.Code, ErrInvalidRequest)
	}
	if err.Status != 400 {
		t.Errorf("Status = %d, want 400", err.Status)
	}
	if err.Message != "amount is required" {
		t.Errorf("Message = %q, want %q", err.Message, "amount is required")
	}
}

func TestNewOverflow(t *testing.T) {
	err := NewOverflow(9, 1)

	if err.Code != ErrOverflow {
		t.Errorf("Code = %q, want %q", err.Code, ErrOverflow)
	}
	if err.Status != 422 {
		t.Errorf("Status = %d, want 422", err.Status)
	}
	if err.Details["total"] != int64(9) || err.Details["delta"] != int64(1) {
		t.Errorf("Details = %v, want total=9 delta=1", err.Details)
	}
}

func TestNewCorruptState(t *testing.T) {
	cause := fmt.Errorf("invalid character 'x'")
	err := NewCorruptState("/tmp/counter.json", cause)

	if err.Code != ErrCorruptState {
		t.Errorf("Code = %q, want %q", err.Code, ErrCorruptState)
	}
	if err.Details["location"] != "/tmp/counter.json" {
		t.Errorf("Details[location] = %v, want /tmp/counter.json", err.Details["location"])
	}
	if !stderrors.Is(err, cause) {
		t.Error("expected cause to be reachable through Unwrap")
	}
}

func TestNewPersistenceFailure(t *testing.T) {
	err := NewPersistenceFailure("commit", fs.ErrPermission)

	if err.Code != ErrPersistenceFailure {
		t.Errorf("Code = %q, want %q", err.Code, ErrPersistenceFailure)
	}
	if err.Status != 503 {
		t.Errorf("Status = %d, want 503", err.Status)
	}
	if !stderrors.Is(err, fs.ErrPermission) {
		t.Error("expected fs.ErrPermission in chain")
	}
}

func TestNewPersistenceFailure_MessageOmitsCause(t *testing.T) {
	cause := &fs.PathError{Op: "open", Path: "/home/x/.salawat/counter.json", Err: fs.ErrPermission}
	err := NewPersistenceFailure("read state", cause)

	if err.Message != "read state failed" {
		t.Errorf("Message = %q, want %q", err.Message, "read state failed")
	}
	if !strings.Contains(err.Error(), cause.Path) {
		t.Errorf("Error() = %q, want cause for logs", err.Error())
	}
}

func TestNewBusy(t *testing.T) {
	err := NewBusy("5s")

	if err.Code != ErrBusy {
		t.Errorf("Code = %q, want %q", err.Code, ErrBusy)
	}
	if err.Details["waited"] != "5s" {
		t.Errorf("Details[waited] = %v, want 5s", err.Details["waited"])
	}
}

func TestNewInternal(t *testing.T) {
	t.Run("with error", func(t *testing.T) {
		err := NewInternal(fmt.Errorf("disk on fire"))
		if err.Message != "internal error" {
			t.Errorf("Message = %q, want %q", err.Message, "internal error")
		}
		if err.Error() != "INTERNAL: internal error: disk on fire" {
			t.Errorf("Error() = %q, want cause appended", err.Error())
		}
	})
	t.Run("nil error", func(t *testing.T) {
		err := NewInternal(nil)
		if err.Message != "internal error" {
			t.Errorf("Message = %q, want %q", err.Message, "internal error")
		}
	})
}

func TestIs(t *testing.T) {
	tests := []struct {
		name string
		err  error
		code ErrorCode
		want bool
	}{
		{"matching code", NewBusy("1s"), ErrBusy, true},
		{"different code", NewBusy("1s"), ErrCorruptState, false},
		{"wrapped", fmt.Errorf("apply: %w", NewOverflow(1, 1)), ErrOverflow, true},
		{"plain error", fmt.Errorf("boom"), ErrInternal, false},
		{"nil", nil, ErrInternal, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Is(tt.err, tt.code); got != tt.want {
				t.Errorf("Is() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestCodeOf(t *testing.T) {
	if got := CodeOf(NewCancelled("apply", nil)); got != ErrCancelled {
		t.Errorf("CodeOf() = %q, want %q", got, ErrCancelled)
	}
	if got := CodeOf(fmt.Errorf("plain")); got != ErrInternal {
		t.Errorf("CodeOf(plain) = %q, want %q", got, ErrInternal)
	}
}
