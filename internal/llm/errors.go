package llm

import (
	"fmt"

	"github.com/fiscalops/apbots/internal/common"
)

// ModelError reports a transport, quota or malformed-response failure.
type ModelError struct {
	Purpose string
	Err     error
}

func (e *ModelError) Error() string {
	return fmt.Sprintf("%s: %s: %v", common.ErrModelCall, e.Purpose, e.Err)
}

func (e *ModelError) Unwrap() []error { return []error{common.ErrModelCall, e.Err} }

// SchemaValidationError reports model output that failed validation
// even after lenient sanitizing.
type SchemaValidationError struct {
	Purpose string
	Raw     []byte
	Err     error
}

func (e *SchemaValidationError) Error() string {
	return fmt.Sprintf("%s: %s: %v", common.ErrSchemaValidation, e.Purpose, e.Err)
}

func (e *SchemaValidationError) Unwrap() []error {
	return []error{common.ErrSchemaValidation, e.Err}
}
