package observability

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestStaleViewsDiscarded_Increments(t *testing.T) {
	before := testutil.ToFloat64(StaleViewsDiscarded)
	StaleViewsDiscarded.Inc()
	assert.Equal(t, before+1, testutil.ToFloat64(StaleViewsDiscarded))
}

func TestActionTransitions_Labels(t *testing.T) {
	c := ActionTransitions.WithLabelValues("buy", "pending")
	before := testutil.ToFloat64(c)
	c.Inc()
	assert.Equal(t, before+1, testutil.ToFloat64(c))
}
