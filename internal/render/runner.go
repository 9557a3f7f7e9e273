package render

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"os/exec"
	"strings"
	"time"
)

// Command is one external renderer invocation.
type Command struct {
	Name    string
	Args    []string
	Dir     string
	Timeout time.Duration
}

func (c Command) String() string {
	return strings.Join(append([]string{c.Name}, c.Args...), " ")
}

// Result describes how a command ended. Output is combined stdout and stderr,
// kept for diagnostics only.
type Result struct {
	Output   []byte
	Duration time.Duration
	TimedOut bool
	Canceled bool
}

// Runner lets us stub external commands in tests.
type Runner interface {
	Run(ctx context.Context, cmd Command, logger *slog.Logger) (Result, error)
}

const (
	maxCapturedOutput = 64 << 10
	maxLoggedOutput   = 8 << 10
)

// ExecRunner runs commands as child processes. When the deadline fires or ctx is
// cancelled the whole process group is killed, so renderer helpers do not outlive it.
type ExecRunner struct {
	// WaitDelay bounds how long Run waits for output pipes after the kill.
	WaitDelay time.Duration
}

func (r ExecRunner) Run(ctx context.Context, c Command, logger *slog.Logger) (Result, error) {
	if logger == nil {
		logger = slog.Default()
	}
	runCtx := ctx
	if c.Timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, c.Timeout)
		defer cancel()
	}

	logger.Debug("running command", "cmd_line", c.String(), "timeout", c.Timeout)
	start := time.Now()

	cmd := exec.CommandContext(runCtx, c.Name, c.Args...)
	cmd.Dir = c.Dir
	out := &cappedBuffer{max: maxCapturedOutput}
	cmd.Stdout = out
	cmd.Stderr = out
	cmd.WaitDelay = r.WaitDelay
	if cmd.WaitDelay <= 0 {
		cmd.WaitDelay = 5 * time.Second
	}
	killProcessGroup(cmd)

	err := cmd.Run()
	res := Result{
		Output:   out.Bytes(),
		Duration: time.Since(start),
	}
	if ctxErr := runCtx.Err(); ctxErr != nil {
		// parent cancellation wins over our own deadline
		if ctx.Err() != nil && errors.Is(ctx.Err(), context.Canceled) {
			res.Canceled = true
		} else {
			res.TimedOut = errors.Is(ctxErr, context.DeadlineExceeded)
			res.Canceled = !res.TimedOut
		}
		if err == nil {
			err = ctxErr
		}
	}

	if err != nil {
		logger.Error("exec failed",
			"cmd", c.Name,
			"duration_ms", res.Duration.Milliseconds(),
			"timed_out", res.TimedOut,
			"canceled", res.Canceled,
			"error", err,
			"output", truncate(string(res.Output), maxLoggedOutput),
		)
	} else {
		logger.Debug("exec ok",
			"cmd", c.Name,
			"args", strings.Join(c.Args, " "),
			"duration_ms", res.Duration.Milliseconds(),
			"output_bytes", len(res.Output),
		)
	}
	return res, err
}

// cappedBuffer keeps the first max bytes and silently drops the rest.
type cappedBuffer struct {
	buf bytes.Buffer
	max int
}

func (b *cappedBuffer) Write(p []byte) (int, error) {
	if room := b.max - b.buf.Len(); room > 0 {
		if len(p) > room {
			b.buf.Write(p[:room])
		} else {
			b.buf.Write(p)
		}
	}
	return len(p), nil
}

func (b *cappedBuffer) Bytes() []byte { return b.buf.Bytes() }

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "...(truncated)"
}
