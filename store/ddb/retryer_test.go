package ddb

import (
	"fmt"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

func TestDefaultRetyer(t *testing.T) {
	retryableError := &types.ProvisionedThroughputExceededException{Message: aws.String("error retryable")}
	// retryer is not nil and should returns according to what error is passed in.
	q := &DefaultRetryer{}
	if q.ShouldRetry(retryableError) != true {
		t.Errorf("expected ShouldRetry returns %v. got %v", true, q.ShouldRetry(retryableError))
	}

	wrapped := fmt.Errorf("operation error DynamoDB: PutItem, %w", &types.RequestLimitExceeded{Message: aws.String("too many requests")})
	if q.ShouldRetry(wrapped) != true {
		t.Errorf("expected ShouldRetry to see through wrapped errors")
	}

	nonRetryableError := &types.BackupInUseException{Message: aws.String("error not retryable")}
	shouldRetry := q.ShouldRetry(nonRetryableError)
	if shouldRetry != false {
		t.Errorf("expected ShouldRetry returns %v. got %v", false, shouldRetry)
	}
}
