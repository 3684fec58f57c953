package hashchain

import "errors"

var (
	ErrValueNotInField = errors.New("hashchain: value is not a field element")
	ErrUnknownHasher   = errors.New("hashchain: unknown hasher")
	ErrNoInputs        = errors.New("hashchain: at least one input is required")
)
