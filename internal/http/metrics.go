package httpserver

import (
	"expvar"
	"net/http"
	"strconv"

	"github.com/felixge/httpsnoop"
)

// expvar names are process-global, so the counters are registered once.
var (
	totalRequestsReceived      = expvar.NewInt("total_requests_received")
	totalResponsesSent         = expvar.NewInt("total_responses_sent")
	totalProcessingTimeMicros  = expvar.NewInt("total_processing_time_us")
	totalResponsesSentByStatus = expvar.NewMap("total_responses_sent_by_status")
)

func metrics(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		totalRequestsReceived.Add(1)

		m := httpsnoop.CaptureMetrics(next, w, r)

		totalResponsesSent.Add(1)
		totalProcessingTimeMicros.Add(m.Duration.Microseconds())
		totalResponsesSentByStatus.Add(strconv.Itoa(m.Code), 1)
	})
}
