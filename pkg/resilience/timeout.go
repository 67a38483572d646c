package resilience

import (
	"context"
	"errors"
	"fmt"
	"time"

	apperrors "github.com/Adithya-Monish-Kumar-K/docsearch/pkg/errors"
)

// WithTimeout runs fn under a deadline of d; d <= 0 means no deadline. When
// the deadline passes first the returned error wraps both errors.ErrTimeout
// and context.DeadlineExceeded. fn must honour its context or it will keep
// running after WithTimeout returns.
func WithTimeout(ctx context.Context, d time.Duration, name string, fn func(ctx context.Context) error) error {
	if d <= 0 {
		return fn(ctx)
	}
	tctx, cancel := context.WithTimeout(ctx, d)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- fn(tctx) }()

	var err error
	select {
	case err = <-done:
		if !errors.Is(err, context.DeadlineExceeded) {
			return err
		}
	case <-tctx.Done():
	}
	if perr := ctx.Err(); perr != nil {
		return fmt.Errorf("%s: %w", name, perr)
	}
	return fmt.Errorf("%s: %w after %v: %w", name, apperrors.ErrTimeout, d, context.DeadlineExceeded)
}
