package domain

import (
	"errors"
	"fmt"
)

var (
	// Startup failures. No diagnosis capability exists without them.
	ErrCatalogLoad = errors.New("label catalog load failed")
	ErrModelLoad   = errors.New("model load failed")

	// Per-request failures, converted to user-facing text at the orchestration boundary.
	ErrDecode        = errors.New("image decode failed")
	ErrShapeMismatch = errors.New("tensor shape mismatch")
	ErrChatAdapter   = errors.New("chat adapter failed")

	ErrInvalidInput = errors.New("invalid input")
	ErrTemporary    = errors.New("temporary failure")
)

// WrapError preserves typed semantic errors with operation context.
func WrapError(kind error, operation string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w: %w", operation, kind, err)
}

func IsKind(err error, kind error) bool {
	return errors.Is(err, kind)
}
