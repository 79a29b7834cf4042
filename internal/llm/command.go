package llm

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"
)

// Command runs an external program per completion, writing the prompt to
// its stdin and reading the completion from stdout.
type Command struct {
	argv     []string
	provider string
	timeout  time.Duration
	env      func([]string) []string
}

// NewCommand creates a client that runs argv.
func NewCommand(argv []string, timeout time.Duration) (*Command, error) {
	if len(argv) == 0 || strings.TrimSpace(argv[0]) == "" {
		return nil, fmt.Errorf("exec provider requires llm.command")
	}
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	return &Command{
		argv:     append([]string(nil), argv...),
		provider: "exec:" + argv[0],
		timeout:  timeout,
	}, nil
}

// NewClaudeCLI runs `claude -p` with model.
func NewClaudeCLI(model string, timeout time.Duration) *Command {
	c, _ := NewCommand([]string{"claude", "-p", "--model", model, "--max-turns", "1"}, timeout)
	c.provider = "claude-cli"
	// CLAUDE_* variables would make the CLI run its own hooks
	c.env = filterEnv
	return c
}

// Complete runs the command once.
func (c *Command) Complete(ctx context.Context, prompt string) (*Response, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, c.argv[0], c.argv[1:]...)
	cmd.Stdin = strings.NewReader(prompt)
	if c.env != nil {
		cmd.Env = c.env(os.Environ())
	}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("%s: %w (stderr: %s)", c.provider, err, strings.TrimSpace(stderr.String()))
	}

	return &Response{
		Content:  strings.TrimSpace(stdout.String()),
		Provider: c.provider,
	}, nil
}

func filterEnv(env []string) []string {
	filtered := make([]string, 0, len(env))
	for _, e := range env {
		if !strings.HasPrefix(e, "CLAUDE_") {
			filtered = append(filtered, e)
		}
	}
	return filtered
}
