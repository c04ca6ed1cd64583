package broker

import (
	"fmt"
	"log/slog"

	"github.com/mattn/go-shellwords"
)

// QuoteBash runs a best-effort shell tokenizer over a bash command before
// it is dispatched, purely for diagnostics: spec.md §4.7 is explicit that
// "shell quoting for bash is the caller's responsibility — commands are
// dispatched verbatim to the broker", so this never rewrites cmd, it only
// logs a warning when the command looks malformed (unbalanced quotes,
// trailing backslash) before the operator wastes a dispatch on it.
func QuoteBash(cmd string) {
	parser := shellwords.NewParser()
	if _, err := parser.Parse(cmd); err != nil {
		slog.Warn("broker: bash command failed shell-token validation", "command", cmd, "error", err)
	}
}

// ValidateBash returns a descriptive error if cmd cannot be tokenized as a
// shell command line. Callers treat this as advisory (e.g. logging a
// warning at job-creation time) rather than rejecting the job outright,
// since a command can be valid shell even when go-shellwords' simplified
// tokenizer balks at it.
func ValidateBash(cmd string) error {
	parser := shellwords.NewParser()
	if _, err := parser.Parse(cmd); err != nil {
		return fmt.Errorf("bash command tokenization: %w", err)
	}
	return nil
}
