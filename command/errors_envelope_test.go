package command

import (
	"context"
	"testing"

	goerrors "github.com/goliatone/go-errors"

	"github.com/goliatone/go-leads/core"
)

func TestUpsertAccountCommand_NilStoreReturnsRichError(t *testing.T) {
	var cmd *UpsertAccountCommand
	err := cmd.Execute(context.Background(), UpsertAccountMessage{})
	if err == nil {
		t.Fatalf("expected command dependency error")
	}

	var rich *goerrors.Error
	if !goerrors.As(err, &rich) {
		t.Fatalf("expected go-errors envelope, got %T", err)
	}
	if rich.Category != goerrors.CategoryInternal {
		t.Fatalf("expected internal category, got %q", rich.Category)
	}
	if rich.TextCode != core.LeadsErrorInternal {
		t.Fatalf("expected %q text code, got %q", core.LeadsErrorInternal, rich.TextCode)
	}
}
