package dpschema

import "errors"

// Schema and DP dispatch errors (Spec Section 7: SchemaMismatch).
var (
	ErrUnknownDP         = errors.New("dpschema: unknown dp id")
	ErrWriteToReadOnly   = errors.New("dpschema: write to read-only dp")
	ErrReadFromWriteOnly = errors.New("dpschema: read from write-only dp")
	ErrTypeMismatch      = errors.New("dpschema: value type does not match dp sub-type")
	ErrOutOfRange        = errors.New("dpschema: value out of range")
	ErrUnknownEnum       = errors.New("dpschema: unknown enum string")
	ErrSchemaNotFound    = errors.New("dpschema: no schema for device id")
	ErrInvalidJSON       = errors.New("dpschema: malformed dp json")
)
