package strategy

import (
	"context"
	"errors"
	"fmt"
	"net"
)

// Failure keys reported to the failure endpoint as ?message=.
const (
	FailTimeout            = "timeout"
	FailServiceUnavailable = "service_unavailable"
	FailInvalidCredentials = "invalid_credentials"
	FailSessionExpired     = "session_expired"
	FailAccessDenied       = "access_denied"
	FailUnknown            = "unknown_error"
)

// Failure is a classified phase error.
type Failure struct {
	Type string
	Err  error
}

// Fail builds a Failure of the given type.
func Fail(typ string, err error) *Failure {
	return &Failure{Type: typ, Err: err}
}

func (f *Failure) Error() string {
	if f.Err == nil {
		return f.Type
	}
	return fmt.Sprintf("%s: %v", f.Type, f.Err)
}

func (f *Failure) Unwrap() error { return f.Err }

// AsFailure returns the Failure in err's chain, classifying plain errors.
func AsFailure(err error) *Failure {
	var f *Failure
	if errors.As(err, &f) {
		return f
	}
	if IsTimeout(err) {
		return Fail(FailTimeout, err)
	}
	return Fail(FailUnknown, err)
}

// IsTimeout reports deadline and network timeouts.
func IsTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}
