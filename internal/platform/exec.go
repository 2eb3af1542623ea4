package platform

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"
)

// CommandRunner abstracts the read-only system probes used to identify the
// machine, so they can be replaced in tests.
type CommandRunner interface {
	Output(ctx context.Context, name string, args ...string) ([]byte, error)
	Exists(name string) bool
}

// OSCommandRunner executes real system commands.
type OSCommandRunner struct{}

// NewOSCommandRunner returns a CommandRunner that executes real system commands.
func NewOSCommandRunner() *OSCommandRunner {
	return &OSCommandRunner{}
}

// Output executes a command and returns its stdout.
func (r *OSCommandRunner) Output(ctx context.Context, name string, args ...string) ([]byte, error) {
	slog.Debug("exec", "cmd", name, "args", args)
	cmd := exec.CommandContext(ctx, name, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	out, err := cmd.Output()
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return nil, fmt.Errorf("%s %v: %w: %s", name, args, err, strings.TrimSpace(stderr.String()))
		}
		return nil, fmt.Errorf("%s %v: %w", name, args, err)
	}
	return out, nil
}

// Exists checks whether a command is available on the system PATH.
func (r *OSCommandRunner) Exists(name string) bool {
	_, err := exec.LookPath(name)
	return err == nil
}

// MockRunner records commands for testing without executing them.
type MockRunner struct {
	Commands  []MockCommand
	OutputMap map[string][]byte
	ErrorMap  map[string]error
	ExistsMap map[string]bool
}

// MockCommand records a single command invocation.
type MockCommand struct {
	Name string
	Args []string
}

// NewMockRunner creates a MockRunner with empty state.
func NewMockRunner() *MockRunner {
	return &MockRunner{
		OutputMap: make(map[string][]byte),
		ErrorMap:  make(map[string]error),
		ExistsMap: make(map[string]bool),
	}
}

// Key returns the map key used for OutputMap / ErrorMap lookups.
func (m *MockRunner) Key(name string, args ...string) string {
	return fmt.Sprintf("%s %v", name, args)
}

// Output records the command and returns preconfigured output or error.
// Unconfigured commands fail as if they were missing.
func (m *MockRunner) Output(_ context.Context, name string, args ...string) ([]byte, error) {
	m.Commands = append(m.Commands, MockCommand{Name: name, Args: args})
	key := m.Key(name, args...)
	if err, ok := m.ErrorMap[key]; ok {
		return nil, err
	}
	if out, ok := m.OutputMap[key]; ok {
		return out, nil
	}
	return nil, fmt.Errorf("%s: %w", name, exec.ErrNotFound)
}

// Exists returns the preconfigured existence value for the given command.
func (m *MockRunner) Exists(name string) bool {
	return m.ExistsMap[name]
}
