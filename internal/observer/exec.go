package observer

import (
	"context"
	"log/slog"
	"os/exec"
	"strings"
)

// Exec runs an external capture helper (screen grab, OCR, whatever the
// user wires up) and returns its trimmed stdout as context. The helper
// owns all platform specifics; any failure or timeout yields an empty
// string.
type Exec struct {
	command string
	args    []string
	logger  *slog.Logger
}

// NewExec creates an observer running command with args per call.
func NewExec(command string, args []string, logger *slog.Logger) *Exec {
	if logger == nil {
		logger = slog.Default()
	}
	return &Exec{command: command, args: args, logger: logger}
}

// Context implements Observer. The caller's ctx bounds the helper's
// runtime; on expiry the process is killed and "" is returned.
func (e *Exec) Context(ctx context.Context) string {
	out, err := exec.CommandContext(ctx, e.command, e.args...).Output()
	if err != nil {
		e.logger.Debug("context helper failed",
			slog.String("command", e.command),
			slog.String("error", err.Error()))
		return ""
	}
	return strings.TrimSpace(string(out))
}

var _ Observer = (*Exec)(nil)
