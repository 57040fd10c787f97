package apperr

import (
	"errors"
	"fmt"
	"testing"
)

func TestMigrationError_MatchesKindAndCause(t *testing.T) {
	cause := errors.New("no such table: widgets")
	err := fmt.Errorf("store: open: %w", &MigrationError{Version: 2, Description: "add_widgets", Err: cause})

	if !errors.Is(err, ErrMigration) {
		t.Error("expected ErrMigration to match")
	}
	if !errors.Is(err, cause) {
		t.Error("expected cause to match")
	}
	var me *MigrationError
	if !errors.As(err, &me) || me.Version != 2 {
		t.Errorf("errors.As = %+v", me)
	}
}

func TestValidation_NilPassesThrough(t *testing.T) {
	if Validation(nil) != nil {
		t.Error("Validation(nil) should be nil")
	}
	if !errors.Is(Validation(errors.New("bad")), ErrValidation) {
		t.Error("expected ErrValidation")
	}
}
