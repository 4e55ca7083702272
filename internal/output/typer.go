// Package output routes generated text to its sink: a keystroke
// injector for typed chat, or the speech pipeline for voice lines.
package output

import (
	"context"
	"fmt"
	"log/slog"
	"os/exec"
	"unicode/utf8"
)

// DefaultMaxMessageLength mirrors the in-game chat box limit.
const DefaultMaxMessageLength = 120

// Typer delivers a message into the game's chat. Implementations must
// honor dryRun by performing no real input.
type Typer interface {
	Send(ctx context.Context, text string, dryRun bool) error
}

// ExecTyper hands the message to an external keystroke-injection
// helper as its last argument. The helper owns opening the chat box,
// typing, and submitting; platform input APIs stay out of this
// process.
type ExecTyper struct {
	command   string
	args      []string
	maxLength int
	logger    *slog.Logger
}

// NewExecTyper creates a typer invoking command. maxLength <= 0 uses
// DefaultMaxMessageLength.
func NewExecTyper(command string, args []string, maxLength int, logger *slog.Logger) *ExecTyper {
	if maxLength <= 0 {
		maxLength = DefaultMaxMessageLength
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &ExecTyper{command: command, args: args, maxLength: maxLength, logger: logger}
}

// Send implements Typer.
func (t *ExecTyper) Send(ctx context.Context, text string, dryRun bool) error {
	text = truncate(text, t.maxLength, t.logger)

	if dryRun {
		t.logger.Info("[dry-run] would type in chat",
			slog.String("text", text), slog.String("command", t.command))
		return nil
	}

	args := append(append([]string{}, t.args...), text)
	if out, err := exec.CommandContext(ctx, t.command, args...).CombinedOutput(); err != nil {
		return fmt.Errorf("typer helper %s: %w (%s)", t.command, err, out)
	}
	return nil
}

// DebugTyper logs the message instead of typing it.
type DebugTyper struct {
	Logger *slog.Logger
}

// Send implements Typer.
func (d DebugTyper) Send(ctx context.Context, text string, dryRun bool) error {
	logger := d.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.Info("debug typer", slog.String("text", text), slog.Bool("dry_run", dryRun))
	return nil
}

func truncate(text string, max int, logger *slog.Logger) string {
	if len(text) <= max {
		return text
	}
	logger.Warn("message too long, truncating",
		slog.Int("length", len(text)), slog.Int("max", max))
	cut := text[:max]
	// Don't split a multi-byte rune at the boundary.
	for len(cut) > 0 && !utf8.ValidString(cut) {
		cut = cut[:len(cut)-1]
	}
	return cut
}

var (
	_ Typer = (*ExecTyper)(nil)
	_ Typer = DebugTyper{}
)
