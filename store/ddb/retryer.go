package ddb

import (
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/pkg/errors"
)

// Retryer interface contains one method that decides whether to retry based on error
type Retryer interface {
	ShouldRetry(error) bool
}

// DefaultRetryer retries throttled requests.
type DefaultRetryer struct {
	Retryer
}

// ShouldRetry when error occured
func (r *DefaultRetryer) ShouldRetry(err error) bool {
	var (
		throughput *types.ProvisionedThroughputExceededException
		limit      *types.RequestLimitExceeded
	)
	return errors.As(err, &throughput) || errors.As(err, &limit)
}
