package consumer

import (
	"github.com/aws/smithy-go"
	"github.com/pkg/errors"
)

var (
	// ErrEndOfSession is returned by RunCycle when there is nothing left to
	// read right now: either no shards are tracked or no shard produced a
	// record. The shard map returned alongside it is still valid and should
	// be persisted.
	ErrEndOfSession = errors.New("end of session")

	// ErrStreamNotFound matches a ConfigError caused by a missing stream or
	// provider entity.
	ErrStreamNotFound = errors.New("stream not found")

	// ErrInvalidCredentials matches a ConfigError caused by rejected
	// credentials.
	ErrInvalidCredentials = errors.New("invalid credentials")
)

// ConfigError is a fatal provider error caused by the consumer's
// configuration: a stream that does not exist or credentials the provider
// rejects. It aborts the whole cycle and is never retried.
type ConfigError struct {
	Op      string
	Class   ErrorClass
	Code    string
	Message string

	err error
}

func newConfigError(op string, class ErrorClass, err error) *ConfigError {
	ce := &ConfigError{Op: op, Class: class, err: err}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		ce.Code = apiErr.ErrorCode()
		ce.Message = apiErr.ErrorMessage()
	}
	return ce
}

// Error returns the provider's error unchanged.
func (e *ConfigError) Error() string {
	return e.err.Error()
}

// Unwrap returns the underlying provider error.
func (e *ConfigError) Unwrap() error {
	return e.err
}

// Is matches ErrStreamNotFound and ErrInvalidCredentials.
func (e *ConfigError) Is(target error) bool {
	switch target {
	case ErrStreamNotFound:
		return e.Class == ResourceFatal
	case ErrInvalidCredentials:
		return e.Class == CredentialFatal
	}
	return false
}

// IsConfigError reports whether err is, or wraps, a ConfigError.
func IsConfigError(err error) bool {
	var ce *ConfigError
	return errors.As(err, &ce)
}
