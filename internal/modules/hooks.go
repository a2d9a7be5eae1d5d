package modules

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/onramp-hpc/pce/internal/scheduler"
)

// RunHook executes an optional module hook script (relative to dir) with
// python, the module entry point convention. A missing script is a no-op. A
// non-zero exit returns an error carrying the hook's combined output.
func RunHook(ctx context.Context, run scheduler.CommandRunner, dir, script string) error {
	if _, err := os.Stat(filepath.Join(dir, script)); err != nil {
		return nil
	}

	out, err := run(ctx, dir, "python", script)
	if err != nil {
		msg := strings.TrimSpace(string(out))
		if msg == "" {
			msg = err.Error()
		}
		return fmt.Errorf("%s failed: %s", script, msg)
	}
	return nil
}
