package robusthttp

import (
	"context"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRetryPolicyRateLimit(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()

	retry, err := RetryPolicy(ctx, &http.Response{StatusCode: http.StatusTooManyRequests}, nil)
	assert.NoError(err)
	assert.False(retry)

	retry, err = RetryPolicy(ctx, &http.Response{StatusCode: http.StatusBadGateway}, nil)
	assert.NoError(err)
	assert.True(retry)

	retry, err = RetryPolicy(ctx, &http.Response{StatusCode: http.StatusOK}, nil)
	assert.NoError(err)
	assert.False(retry)
}
