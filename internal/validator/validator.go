package validator

import "github.com/garrettladley/rally/internal/xerrors"

type Validator interface {
	// Validate validates the fields of the struct and returns a map of errors.
	// returns nil if no errors are found
	Validate() map[string]string
}

// Validate wraps field errors in a 422. Callers must compare the result
// against nil before returning it as an error.
func Validate(v Validator) *xerrors.Error {
	if fields := v.Validate(); len(fields) > 0 {
		return xerrors.Validation(fields)
	}
	return nil
}
