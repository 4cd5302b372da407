package errors

import (
	"errors"
	"fmt"
)

// Errors shared by the storage backends.
var (
	ErrStoreClosed    = errors.New("store closed")
	ErrCorruptRecord  = errors.New("corrupt record")
	ErrMissingKeyData = errors.New("missing key material")
)

// Wrapf wraps an error with context using fmt.Errorf
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf(format+": %w", append(args, err)...)
}

// Is reports whether any error in err's chain matches target
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As finds the first error in err's chain that matches target
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}

// Join combines errs, dropping nils.
func Join(errs ...error) error {
	return errors.Join(errs...)
}
