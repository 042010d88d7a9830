package invoke

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"runtime"
	"sort"
	"strings"

	"github.com/charmbracelet/log"
)

// stderrTailLines bounds how much stderr is attached to a failure.
const stderrTailLines = 20

// CommandTarget is a target executed through a shell.
type CommandTarget struct {
	Name    string
	Command string
	Dir     string
	Env     map[string]string
}

// DefaultShell returns the platform shell prefix used to run commands.
func DefaultShell() []string {
	if runtime.GOOS == "windows" {
		return []string{"cmd", "/C"}
	}
	return []string{"sh", "-c"}
}

// CommandInvoker runs shell command targets. Every scope property is exported
// to the command environment and ${name} references in the command are
// expanded from the scope.
type CommandInvoker struct {
	shell   []string
	targets map[string]CommandTarget
	logger  *log.Logger
}

// NewCommandInvoker creates an invoker for the given targets. A nil shell
// selects DefaultShell; a nil logger discards command output.
func NewCommandInvoker(shell []string, targets []CommandTarget, logger *log.Logger) *CommandInvoker {
	if len(shell) == 0 {
		shell = DefaultShell()
	}
	m := make(map[string]CommandTarget, len(targets))
	for _, t := range targets {
		m[t.Name] = t
	}
	return &CommandInvoker{shell: shell, targets: m, logger: logger}
}

// Targets returns the sorted target names.
func (c *CommandInvoker) Targets() []string {
	names := make([]string, 0, len(c.targets))
	for name := range c.targets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Has reports whether a target is defined.
func (c *CommandInvoker) Has(name string) bool {
	_, ok := c.targets[name]
	return ok
}

// Invoke runs the target's command and waits for it to exit.
func (c *CommandInvoker) Invoke(ctx context.Context, target string, scope *Scope) error {
	t, ok := c.targets[target]
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownTarget, target)
	}
	if scope == nil {
		scope = NewScope()
	}

	command := scope.Expand(t.Command)
	args := append(append([]string{}, c.shell[1:]...), command)
	cmd := exec.CommandContext(ctx, c.shell[0], args...)
	cmd.Dir = scope.Expand(t.Dir)
	cmd.Env = commandEnv(t.Env, scope)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	c.logOutput(target, stdout.String(), stderr.String())
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			err = fmt.Errorf("command exited with code %d", exitErr.ExitCode())
		}
		if tail := tailLines(stderr.String(), stderrTailLines); tail != "" {
			return fmt.Errorf("target %q: %w\nstderr: %s", target, err, tail)
		}
		return fmt.Errorf("target %q: %w", target, err)
	}
	return nil
}

func (c *CommandInvoker) logOutput(target, stdout, stderr string) {
	if c.logger == nil {
		return
	}
	for _, line := range strings.Split(strings.TrimRight(stdout, "\n"), "\n") {
		if line != "" {
			c.logger.Debug(line, "target", target, "stream", "stdout")
		}
	}
	for _, line := range strings.Split(strings.TrimRight(stderr, "\n"), "\n") {
		if line != "" {
			c.logger.Debug(line, "target", target, "stream", "stderr")
		}
	}
}

// commandEnv builds the child environment: the process environment, then the
// target's env, then every scope property under its env-safe name.
func commandEnv(targetEnv map[string]string, scope *Scope) []string {
	env := os.Environ()
	keys := make([]string, 0, len(targetEnv))
	for k := range targetEnv {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		env = append(env, k+"="+scope.Expand(targetEnv[k]))
	}
	for _, name := range scope.Names() {
		v, _ := scope.Get(name)
		env = append(env, EnvName(name)+"="+v)
	}
	return env
}

// EnvName converts a property name to an environment variable name: letters
// are upper-cased and anything outside [A-Z0-9_] becomes an underscore.
func EnvName(name string) string {
	var b strings.Builder
	for i := 0; i < len(name); i++ {
		c := name[i]
		switch {
		case c >= 'a' && c <= 'z':
			b.WriteByte(c - 'a' + 'A')
		case (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9') || c == '_':
			b.WriteByte(c)
		default:
			b.WriteByte('_')
		}
	}
	return b.String()
}

func tailLines(s string, n int) string {
	s = strings.TrimRight(s, "\n")
	if s == "" {
		return ""
	}
	lines := strings.Split(s, "\n")
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return strings.Join(lines, "\n")
}
