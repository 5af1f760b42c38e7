package consumer

import (
	"context"
	"log/slog"
	"time"

	"github.com/aws/smithy-go"
	"github.com/juju/clock"
	"github.com/juju/retry"
	"github.com/pkg/errors"
)

// ErrorClass is the category a provider error falls into. It decides whether
// a call is retried, abandoned, or aborts the whole cycle.
type ErrorClass int

const (
	// Other errors stop the current worker only.
	Other ErrorClass = iota
	// Retryable errors are throttling responses worth waiting out.
	Retryable
	// ResourceFatal errors mean the stream or entity does not exist.
	ResourceFatal
	// CredentialFatal errors mean the provider rejected the credentials.
	CredentialFatal
)

func (c ErrorClass) String() string {
	switch c {
	case Retryable:
		return "retryable"
	case ResourceFatal:
		return "resource-fatal"
	case CredentialFatal:
		return "credential-fatal"
	default:
		return "other"
	}
}

// Fatal reports whether errors of this class abort the cycle.
func (c ErrorClass) Fatal() bool {
	return c == ResourceFatal || c == CredentialFatal
}

var errorCodeClasses = map[string]ErrorClass{
	"ProvisionedThroughputExceededException": Retryable,
	"ThrottlingException":                    Retryable,
	"LimitExceededException":                 Retryable,
	"KMSThrottlingException":                 Retryable,

	"ResourceNotFoundException": ResourceFatal,
	"NoSuchEntityException":     ResourceFatal,

	"UnrecognizedClientException": CredentialFatal,
	"InvalidSignatureException":   CredentialFatal,
	"ExpiredTokenException":       CredentialFatal,
	"AccessDeniedException":       CredentialFatal,
}

// Classify maps a provider error onto an ErrorClass using its error code.
// Errors that carry no provider code are classed as Other.
func Classify(err error) ErrorClass {
	var apiErr smithy.APIError
	if !errors.As(err, &apiErr) {
		return Other
	}
	return errorCodeClasses[apiErr.ErrorCode()]
}

// RetryPolicy retries provider calls that fail with a Retryable error after a
// fixed delay, up to MaxRetries times per call site.
type RetryPolicy struct {
	MaxRetries int
	Delay      time.Duration
	Clock      clock.Clock
	Logger     *slog.Logger

	// OnRetry is called before each backoff sleep.
	OnRetry func(err error, attempt int)
}

// Do calls fn until it succeeds or fails with something other than a
// Retryable error. On failure the returned class describes the last error;
// Retryable means the retries ran out.
func (p RetryPolicy) Do(ctx context.Context, fn func() error) (ErrorClass, error) {
	var (
		lastErr   error
		lastClass ErrorClass
	)

	err := retry.Call(retry.CallArgs{
		Func: func() error {
			lastErr = fn()
			if lastErr != nil {
				lastClass = Classify(lastErr)
			}
			return lastErr
		},
		IsFatalError: func(error) bool {
			return lastClass != Retryable
		},
		NotifyFunc: func(err error, attempt int) {
			if lastClass != Retryable || attempt > p.MaxRetries {
				return
			}
			p.Logger.Debug("provider throttled, backing off",
				slog.Int("attempt", attempt),
				slog.Duration("delay", p.Delay),
				slog.String("error", err.Error()),
			)
			if p.OnRetry != nil {
				p.OnRetry(err, attempt)
			}
		},
		Attempts: p.MaxRetries + 1,
		Delay:    p.Delay,
		Clock:    p.Clock,
		Stop:     ctx.Done(),
	})
	switch {
	case err == nil:
		return 0, nil
	case ctx.Err() != nil:
		return Other, ctx.Err()
	case lastErr == nil:
		return Other, errors.Wrap(err, "invalid retry policy")
	case retry.IsAttemptsExceeded(err):
		return Retryable, lastErr
	default:
		return lastClass, lastErr
	}
}
