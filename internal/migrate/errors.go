package migrate

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/lib/pq"

	"github.com/strata-db/strata/internal/introspect"
)

// Error kinds surfaced by planning and execution
var (
	// ErrIntrospectionFailed re-exports the introspect sentinel so callers
	// can match every migrate error kind from one package.
	ErrIntrospectionFailed = introspect.ErrIntrospectionFailed

	// ErrTypeDetectionFailed means a dynamic-type column could not resolve
	// its donor column's live type. Guessing a type instead is the bug
	// class this error exists to prevent.
	ErrTypeDetectionFailed = errors.New("donor type detection failed")

	// ErrDestructiveBlocked means the plan contains a destructive step and
	// neither the unit nor the caller authorized it. Nothing was executed.
	ErrDestructiveBlocked = errors.New("destructive change blocked")

	// ErrConstraintViolation wraps database-enforced invariant failures
	// during execution. The unit's transaction was rolled back.
	ErrConstraintViolation = errors.New("constraint violation")

	// ErrExecutionTimeout means the connection cancelled a statement. The
	// unit was rolled back and is safe to retry.
	ErrExecutionTimeout = errors.New("execution timeout")

	// ErrInvalidUnit marks authoring mistakes caught at plan time
	ErrInvalidUnit = errors.New("invalid migration unit")
)

// Error carries the identity of the failing operation alongside the cause
type Error struct {
	Op         string
	Unit       int64
	Table      string
	Column     string
	Constraint string
	Err        error
}

func (e *Error) Error() string {
	var parts []string

	parts = append(parts, fmt.Sprintf("migrate: %s", e.Op))

	if e.Unit != 0 {
		parts = append(parts, fmt.Sprintf("unit=%d", e.Unit))
	}
	if e.Table != "" {
		parts = append(parts, fmt.Sprintf("table=%s", e.Table))
	}
	if e.Column != "" {
		parts = append(parts, fmt.Sprintf("column=%s", e.Column))
	}
	if e.Constraint != "" {
		parts = append(parts, fmt.Sprintf("constraint=%s", e.Constraint))
	}
	if e.Err != nil {
		parts = append(parts, e.Err.Error())
	}

	return strings.Join(parts, ": ")
}

func (e *Error) Unwrap() error {
	return e.Err
}

// classifyExecError maps driver-level failures onto the migrate error kinds.
// Everything else passes through verbatim so the operator sees the
// database's own message.
func classifyExecError(err error) error {
	if err == nil {
		return nil
	}

	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return fmt.Errorf("%w: %v", ErrExecutionTimeout, err)
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch {
		case pqErr.Code == "57014": // query_canceled
			return fmt.Errorf("%w: %v", ErrExecutionTimeout, err)
		case pqErr.Code.Class() == "23": // integrity constraint violation
			return fmt.Errorf("%w: %v", ErrConstraintViolation, err)
		}
	}

	return err
}
