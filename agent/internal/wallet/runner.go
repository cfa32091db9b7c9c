package wallet

import (
	"context"
	"errors"
	"os/exec"
)

// Runner runs an external command and reports its exit code and stdout.
// err is non-nil only when the command could not be started or waited on;
// a non-zero exit is reported through code.
type Runner interface {
	Run(ctx context.Context, name string, args ...string) (code int, stdout []byte, err error)
}

// ExecRunner runs commands with os/exec.
type ExecRunner struct{}

// Run implements Runner.
func (ExecRunner) Run(ctx context.Context, name string, args ...string) (int, []byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	out, err := cmd.Output()
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return exitErr.ExitCode(), out, nil
		}
		return -1, out, err
	}
	return 0, out, nil
}
