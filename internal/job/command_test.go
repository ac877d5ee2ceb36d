package job

import (
	"context"
	"strings"
	"testing"

	logx "cronpoll/pkg/logx"
)

func TestCommandRuns(t *testing.T) {
	t.Parallel()
	run, err := Command(`sh -c "exit 0"`, logx.Nop())
	if err != nil {
		t.Fatalf("Command: %v", err)
	}
	if err := run(context.Background()); err != nil {
		t.Fatalf("run: %v", err)
	}
}

func TestCommandFailureIncludesOutput(t *testing.T) {
	t.Parallel()
	run, err := Command(`sh -c "echo boom >&2; exit 3"`, logx.Nop())
	if err != nil {
		t.Fatalf("Command: %v", err)
	}
	err = run(context.Background())
	if err == nil {
		t.Fatal("expected failure for exit 3")
	}
	if !strings.Contains(err.Error(), "boom") {
		t.Fatalf("error should carry output tail, got: %v", err)
	}
}

func TestCommandRejectsBadQuoting(t *testing.T) {
	t.Parallel()
	if _, err := Command(`echo "unterminated`, logx.Nop()); err == nil {
		t.Fatal("expected quoting error at build time")
	}
}

func TestCommandRejectsEmpty(t *testing.T) {
	t.Parallel()
	if _, err := Command("   ", logx.Nop()); err == nil {
		t.Fatal("expected error for empty command")
	}
}
