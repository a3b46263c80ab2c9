// Package runtime provides panic-safety helpers for background goroutines:
// the sweeper loop and reply waiters must never take the process down.
package runtime

import (
	"context"
	"fmt"
	"runtime/debug"

	"github.com/quayside/courier/internal/nilcheck"
	"github.com/quayside/courier/log"
)

// RecoverAndLog recovers a panic in the calling goroutine and logs it with
// the component and operation that were running. Use in a defer.
func RecoverAndLog(ctx context.Context, logger log.Logger, component, operation string) {
	recovered := recover()
	if recovered == nil {
		return
	}

	if nilcheck.Interface(logger) {
		logger = log.NewNop()
	}

	logger.Log(ctx, log.LevelError, "panic recovered",
		log.String("component", component),
		log.String("operation", operation),
		log.Any("panic", fmt.Sprintf("%v", recovered)),
		log.String("stack", string(debug.Stack())),
	)
}

// SafeGo runs fn on a new goroutine with panic recovery.
func SafeGo(logger log.Logger, name string, fn func()) {
	go func() {
		defer RecoverAndLog(context.Background(), logger, "runtime", name)

		fn()
	}()
}
