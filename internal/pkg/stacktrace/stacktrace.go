// Package stacktrace reports recovered panics with the frames that belong to
// this module, so logs point at our code rather than the runtime.
package stacktrace

import (
	"context"
	"fmt"
	"log/slog"
	"runtime"
	"runtime/debug"
	"strings"
)

const maxDepth = 64

// Frames returns "internal/<pkg>/<file>.go:<line>" entries for the current
// goroutine, skipping the given number of callers above Frames.
func Frames(skip int) []string {
	pcs := make([]uintptr, maxDepth)
	n := runtime.Callers(skip+2, pcs)
	frames := runtime.CallersFrames(pcs[:n])

	var out []string
	for {
		f, more := frames.Next()
		if i := strings.Index(f.File, "/internal/"); i >= 0 {
			out = append(out, fmt.Sprintf("%s:%d", f.File[i+1:], f.Line))
		}
		if !more {
			break
		}
	}
	return out
}

// Log records a recovered value. It must be called from the deferred function
// that called recover so the panicking frames are still on the stack.
func Log(ctx context.Context, msg string, rvr any, attrs ...any) {
	attrs = append(attrs, "panic", rvr)
	if frames := Frames(2); len(frames) > 0 {
		attrs = append(attrs, "stack", frames)
	} else {
		attrs = append(attrs, "stack", string(debug.Stack()))
	}
	slog.ErrorContext(ctx, msg, attrs...)
}
