package metrics

import (
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestHandlerExposesCollectors(t *testing.T) {
	EventsAppended.WithLabelValues("friend-removed").Inc()
	Deliveries.WithLabelValues("ok").Add(2)

	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	body := rec.Body.String()
	assert.Equal(t, 200, rec.Code)
	assert.Contains(t, body, `fitrank_outbox_events_appended_total{type="friend-removed"}`)
	assert.Contains(t, body, "fitrank_presence_buckets")
	assert.GreaterOrEqual(t, testutil.ToFloat64(Deliveries.WithLabelValues("ok")), 2.0)
}
