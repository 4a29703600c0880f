package common

import (
	"path/filepath"
	"runtime"

	"emperror.dev/errors"
	"github.com/sirupsen/logrus"
)

// ErrWithCaller wraps the error message with the name of the calling function
func ErrWithCaller(err error) error {
	if err == nil {
		return nil
	}

	pc := make([]uintptr, 2)
	runtime.Callers(2, pc)
	fu := runtime.FuncForPC(pc[0] - 1)
	return errors.WithMessage(err, filepath.Base(fu.Name()))
}

// LogIgnoreError logs the error with the provided message if it's non nil,
// for best-effort operations whose failure should not propagate.
func LogIgnoreError(err error, msg string, data logrus.Fields) {
	if err == nil {
		return
	}

	l := logger
	if data != nil {
		l = l.WithFields(data)
	}

	l.WithError(err).Error(msg)
}

// UserError is an error caused by bad input from the invoking user. It is
// surfaced back to them directly and never logged as a system fault.
type UserError struct {
	Message string
}

func (u *UserError) Error() string {
	return u.Message
}

func NewUserError(msg string) error {
	return &UserError{Message: msg}
}

// IsUserError returns true if any error in the chain is a UserError
func IsUserError(err error) bool {
	var ue *UserError
	return errors.As(err, &ue)
}
