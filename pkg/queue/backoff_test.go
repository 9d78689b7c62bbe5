package queue

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	httputil "github.com/quantifiedself/ingest-server/pkg/infrastructure/http"
)

func fetchFailureWithStatus(status int) *Failure {
	return FetchFailed(&httputil.HTTPError{StatusCode: status, Status: "err"})
}

func TestIncrement_AcceleratedForVendor400And500(t *testing.T) {
	policy := DefaultBackoff

	assert.Equal(t, 20, policy.Increment(fetchFailureWithStatus(400)))
	assert.Equal(t, 20, policy.Increment(fetchFailureWithStatus(500)))
}

func TestIncrement_DefaultForEverythingElse(t *testing.T) {
	policy := DefaultBackoff

	assert.Equal(t, 1, policy.Increment(fetchFailureWithStatus(404)))
	assert.Equal(t, 1, policy.Increment(fetchFailureWithStatus(503)))
	assert.Equal(t, 1, policy.Increment(FetchFailed(fmt.Errorf("connection refused"))))
	assert.Equal(t, 1, policy.Increment(NoCredential(nil)))
	assert.Equal(t, 1, policy.Increment(EmptyResult()))
	assert.Equal(t, 1, policy.Increment(ConversionFailed(fmt.Errorf("bad fit"))))
	assert.Equal(t, 1, policy.Increment(PersistenceFailed(fmt.Errorf("write failed"))))
	assert.Equal(t, 1, policy.Increment(Internal(fmt.Errorf("panic"))))
}

func TestNextRun_AlwaysStrictlyAfterNow(t *testing.T) {
	policy := DefaultBackoff
	now := time.Now()

	for count := 1; count <= 50; count++ {
		gate := policy.NextRun(now, count)
		assert.True(t, gate.After(now), "gate must be > now at retry count %d", count)
	}
}

func TestNextRun_NonDecreasingInRetryCount(t *testing.T) {
	policy := DefaultBackoff
	now := time.Now()

	prev := policy.NextRun(now, 1)
	for count := 2; count <= 50; count++ {
		gate := policy.NextRun(now, count)
		assert.False(t, gate.Before(prev), "gate decreased at retry count %d", count)
		prev = gate
	}
}

func TestNextRun_CappedAtMaxDelay(t *testing.T) {
	policy := DefaultBackoff
	now := time.Now()

	gate := policy.NextRun(now, 40)
	assert.Equal(t, now.Add(policy.MaxDelay), gate)
}

func TestExhausted(t *testing.T) {
	policy := DefaultBackoff

	assert.False(t, policy.Exhausted(0))
	assert.False(t, policy.Exhausted(policy.MaxRetryCount-1))
	assert.True(t, policy.Exhausted(policy.MaxRetryCount))
	assert.True(t, policy.Exhausted(policy.MaxRetryCount+20))
}
