package store

import (
	"errors"
	"fmt"
	"strings"
)

// Engine failure taxonomy. Every failure is returned to the caller typed and
// with no persisted state change; retry policy belongs to the caller.
var (
	ErrNotFound      = errors.New("not found")
	ErrValidation    = errors.New("invalid input")
	ErrTurnViolation = errors.New("not this participant's turn")
	ErrTerminalState = errors.New("record is in a terminal state")
)

// InsufficientStockError reports which manifest items had no stock left at
// settlement time. The trade and the ledger are left untouched.
type InsufficientStockError struct {
	ItemIDs []string
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for %s", strings.Join(e.ItemIDs, ", "))
}

// validationf wraps ErrValidation with a description, so callers can match
// with errors.Is while logs stay readable.
func validationf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}
