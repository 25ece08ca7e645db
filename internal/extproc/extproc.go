// Package extproc runs an external command that reads one JSON document on
// stdin and writes one JSON document on stdout.
package extproc

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"
)

// ErrNoCommand is returned when no executable is configured.
var ErrNoCommand = errors.New("no external command configured")

// Command describes an executable and its fixed arguments.
type Command struct {
	Path    string
	Args    []string
	Timeout time.Duration
}

// String renders the command line for logs.
func (c Command) String() string {
	return strings.TrimSpace(c.Path + " " + strings.Join(c.Args, " "))
}

// Call marshals in to the process's stdin and unmarshals its stdout into out.
func (c Command) Call(ctx context.Context, in, out interface{}) error {
	if c.Path == "" {
		return ErrNoCommand
	}
	if c.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.Timeout)
		defer cancel()
	}

	payload, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("encode request: %w", err)
	}

	cmd := exec.CommandContext(ctx, c.Path, c.Args...)
	cmd.Stdin = bytes.NewReader(payload)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	cmd.WaitDelay = time.Second

	if err := cmd.Run(); err != nil {
		msg := strings.TrimSpace(stderr.String())
		if msg != "" {
			return fmt.Errorf("%s: %w: %s", c.Path, err, msg)
		}
		return fmt.Errorf("%s: %w", c.Path, err)
	}

	if err := json.Unmarshal(stdout.Bytes(), out); err != nil {
		return fmt.Errorf("decode %s output: %w", c.Path, err)
	}
	return nil
}
