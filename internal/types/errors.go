package types

import (
	"fmt"

	"github.com/matthewbaird/dirconsole/internal/schema"
)

// CoercionError reports input that cannot be represented under a field's
// semantic type.
type CoercionError struct {
	Type   schema.SemanticType
	Raw    any
	Reason string
}

func (e *CoercionError) Error() string {
	return fmt.Sprintf("cannot store %v as %s: %s", e.Raw, e.Type, e.Reason)
}

func newCoercionError(t schema.SemanticType, raw any, reason string) *CoercionError {
	return &CoercionError{Type: t, Raw: raw, Reason: reason}
}
