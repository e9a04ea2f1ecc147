package document

import "errors"

// ErrInvalidDocument is returned when a document fails variant validation.
var ErrInvalidDocument = errors.New("document: invalid document")

// ErrUnknownShape is returned when provider output cannot be classified
// into any known variant.
var ErrUnknownShape = errors.New("document: unrecognized shape")
