package runtime

import (
	"fmt"
	"runtime/debug"
)

// recoveredError converts a recovered panic value into an error carrying the
// stack at the recovery point. Used wherever the runtime isolates plugin code.
func recoveredError(r any) error {
	if err, ok := r.(error); ok {
		return fmt.Errorf("panic: %w\n%s", err, debug.Stack())
	}
	return fmt.Errorf("panic: %v\n%s", r, debug.Stack())
}
