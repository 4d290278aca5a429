package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestObserveRequest(t *testing.T) {
	before := testutil.ToFloat64(Requests.WithLabelValues("book", "list", "200"))
	ObserveRequest("book", "list", 200, 15*time.Millisecond)
	ObserveRequest("book", "list", 200, 5*time.Millisecond)
	assert.Equal(t, before+2, testutil.ToFloat64(Requests.WithLabelValues("book", "list", "200")))
	assert.GreaterOrEqual(t, testutil.CollectAndCount(RequestDuration), 1)
}
