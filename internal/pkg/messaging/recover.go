package messaging

import (
	"context"
	"fmt"

	"github.com/shandysiswandi/courier/internal/pkg/stacktrace"
)

func callHandlerWithRecover(ctx context.Context, kind string, fn func() error) (err error) {
	defer func() {
		if rvr := recover(); rvr != nil {
			stacktrace.Log(ctx, "panic in messaging handler", rvr, "kind", kind)
			err = fmt.Errorf("messaging: panic in %s handler: %v", kind, rvr)
		}
	}()

	return fn()
}
