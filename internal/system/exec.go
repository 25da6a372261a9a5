package system

import (
	"context"
	"os/exec"

	"github.com/pkg/errors"
)

// RunFunc executes an external command. Tests replace it.
type RunFunc func(ctx context.Context, name string, args ...string) error

// ExecRun runs the command and folds the tail of its output into the error.
func ExecRun(ctx context.Context, name string, args ...string) error {
	out, err := exec.CommandContext(ctx, name, args...).CombinedOutput()
	if err != nil {
		return errors.Wrapf(err, "%s failed: %s", name, tail(out, 400))
	}
	return nil
}

func tail(b []byte, n int) string {
	if len(b) > n {
		b = b[len(b)-n:]
	}
	return string(b)
}
