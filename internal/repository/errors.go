package repository

import (
	"context"
	"errors"
	"fmt"

	"peertrust/internal/domain"
)

// StoreError wraps a backend failure of op. Cancellation and deadline errors
// belong to the caller and keep their own identity; anything else wraps
// domain.ErrStoreUnavailable. The cause stays reachable with errors.Is.
func StoreError(op string, err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%s: %w", op, err)
	}
	return fmt.Errorf("%w: %s: %w", domain.ErrStoreUnavailable, op, err)
}
