package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestRecordBackendAttempt(t *testing.T) {
	before := testutil.ToFloat64(backendAttempts.WithLabelValues("piped", "success"))
	RecordBackendAttempt("piped", true, 0.2)
	after := testutil.ToFloat64(backendAttempts.WithLabelValues("piped", "success"))
	assert.Equal(t, before+1, after)
}

func TestRecordCacheEvictionsIgnoresZero(t *testing.T) {
	before := testutil.ToFloat64(cacheEvictions.WithLabelValues("streams"))
	RecordCacheEvictions("streams", 0)
	RecordCacheEvictions("streams", 50)
	after := testutil.ToFloat64(cacheEvictions.WithLabelValues("streams"))
	assert.Equal(t, before+50, after)
}
