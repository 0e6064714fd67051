package apperr

import (
	"database/sql"
	"errors"
	"fmt"
	"testing"
)

func TestKindOf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Kind
	}{
		{"validation", Validation("width must be >= 1"), KindValidation},
		{"not found", NotFound("track", "abc"), KindNotFound},
		{"conflict", Conflict("duplicate"), KindConflict},
		{"precondition", Precondition("job is %s", "running"), KindPrecondition},
		{"storage", Storage("insert clip", sql.ErrConnDone), KindStorage},
		{"wrapped", fmt.Errorf("create: %w", NotFound("project", "p1")), KindNotFound},
		{"plain", errors.New("boom"), ""},
		{"nil", nil, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := KindOf(tt.err); got != tt.want {
				t.Errorf("KindOf() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestStorageKeepsExistingKind(t *testing.T) {
	err := Storage("update track", NotFound("track", "t1"))
	if !Is(err, KindNotFound) {
		t.Fatalf("Storage() reclassified a not_found error: %v", err)
	}
	if Storage("noop", nil) != nil {
		t.Fatal("Storage(nil) should be nil")
	}
}

func TestErrorMessage(t *testing.T) {
	err := Storage("insert event", sql.ErrTxDone)
	if got := err.Error(); got != "insert event: "+sql.ErrTxDone.Error() {
		t.Errorf("Error() = %q", got)
	}
	if !errors.Is(err, sql.ErrTxDone) {
		t.Error("Storage error should unwrap to the driver error")
	}
	if got := NotFound("clip", "c1").Error(); got != "clip c1 not found" {
		t.Errorf("Error() = %q", got)
	}
}
