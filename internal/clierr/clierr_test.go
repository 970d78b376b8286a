package clierr

import (
	"errors"
	"os"
	"testing"
)

func TestWrapKeepsCause(t *testing.T) {
	err := Wrap(StoreUnavailable, os.ErrNotExist, "opening store")
	if err.Error() != "opening store: "+os.ErrNotExist.Error() {
		t.Fatalf("message = %q", err.Error())
	}
	if !errors.Is(err, os.ErrNotExist) {
		t.Fatal("errors.Is should see the wrapped cause")
	}
	var cliErr *Error
	if !errors.As(error(err), &cliErr) || cliErr.Code != StoreUnavailable {
		t.Fatalf("errors.As = %+v", cliErr)
	}
}

func TestExitCode(t *testing.T) {
	tests := []struct {
		code string
		want int
	}{
		{InternalError, 2},
		{InvalidInput, 1},
		{WritebackFailed, 1},
	}
	for _, tt := range tests {
		if got := New(tt.code, "x").ExitCode(); got != tt.want {
			t.Errorf("ExitCode(%s) = %d, want %d", tt.code, got, tt.want)
		}
	}
}
