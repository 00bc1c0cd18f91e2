package bridge

import (
	"context"
	"fmt"

	"github.com/tonimelisma/cloudplay/internal/backend"
)

// CallAs performs a call and decodes the response as T, checking that the
// backend answered with the expected type tag.
func CallAs[T any](ctx context.Context, c Caller, fn backend.Function, wantType string) (T, error) {
	var zero T

	obj, err := c.Call(ctx, fn)
	if err != nil {
		return zero, err
	}

	if obj.Type != wantType {
		return zero, fmt.Errorf("%w: %s returned %q, want %q", ErrUnexpectedType, fn.Type(), obj.Type, wantType)
	}

	return backend.DecodeAs[T](obj)
}
