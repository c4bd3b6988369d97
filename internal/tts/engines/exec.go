package engines

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/mattn/go-shellwords"
)

// graceDelay is how long a subprocess gets to exit after an interrupt
// before it is killed.
const graceDelay = 100 * time.Millisecond

// maxOutput bounds what a synthesizer may write to stdout.
const maxOutput = 20 * 1024 * 1024

// splitCommand parses a configured command line such as
// "python3 -m piper --cuda" into argv.
func splitCommand(line string) ([]string, error) {
	argv, err := shellwords.Parse(line)
	if err != nil {
		return nil, fmt.Errorf("parse command %q: %w", line, err)
	}
	if len(argv) == 0 {
		return nil, fmt.Errorf("empty command")
	}
	return argv, nil
}

// run executes argv with stdin, bounded by timeout. On cancellation the
// process is interrupted first and killed if it lingers.
func run(ctx context.Context, engine string, timeout time.Duration, argv []string, stdin io.Reader) ([]byte, error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	cmd.Cancel = func() error { return cmd.Process.Signal(os.Interrupt) }
	cmd.WaitDelay = graceDelay
	if stdin == nil {
		stdin = strings.NewReader("")
	}
	cmd.Stdin = stdin

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	switch {
	case errors.Is(ctx.Err(), context.DeadlineExceeded):
		return nil, newError(engine, CodeTimeout, fmt.Sprintf("%s timed out after %s", argv[0], timeout), ctx.Err())
	case ctx.Err() != nil:
		return nil, ctx.Err()
	case errors.Is(err, exec.ErrNotFound):
		return nil, newError(engine, CodeUnavailable, argv[0]+" not found in PATH", err)
	case err != nil:
		return nil, newError(engine, CodeFailure, fmt.Sprintf("%s failed: %s", argv[0], lastLine(stderr.String())), err)
	}

	if stdout.Len() == 0 {
		return nil, newError(engine, CodeFailure, argv[0]+" produced no output: "+lastLine(stderr.String()), nil)
	}
	if stdout.Len() > maxOutput {
		return nil, newError(engine, CodeFailure, fmt.Sprintf("%s output too large: %d bytes", argv[0], stdout.Len()), nil)
	}
	return stdout.Bytes(), nil
}

func lastLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.LastIndexByte(s, '\n'); i >= 0 {
		return s[i+1:]
	}
	return s
}
