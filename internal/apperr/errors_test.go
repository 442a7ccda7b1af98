package apperr

import (
	"errors"
	"testing"
)

func TestValidationError_UnwrapsAndSortsFields(t *testing.T) {
	err := error(&ValidationError{Fields: map[string]string{"status": "must be a valid value", "due": "bad date"}})
	if !errors.Is(err, ErrValidation) {
		t.Fatal("expected ErrValidation")
	}
	want := "validation failed: due: bad date; status: must be a valid value"
	if err.Error() != want {
		t.Errorf("Error() = %q, want %q", err.Error(), want)
	}
}

func TestTransport_WrapsBoth(t *testing.T) {
	err := Transport(ErrConflict)
	if !errors.Is(err, ErrTransport) || !errors.Is(err, ErrConflict) {
		t.Errorf("err = %v, want both ErrTransport and ErrConflict", err)
	}
	if Transport(nil) != nil {
		t.Error("Transport(nil) should be nil")
	}
}
