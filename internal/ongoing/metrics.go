package ongoing

import "github.com/prometheus/client_golang/prometheus"

var (
	pollRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "outagewatch_poll_requests_total",
			Help: "Vendor API calls by mode and result.",
		},
		[]string{"mode", "result"},
	)
	transitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "outagewatch_ongoing_transitions_total",
			Help: "Ongoing-outage state changes.",
		},
		[]string{"transition"},
	)
	openGauge = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "outagewatch_ongoing_open",
			Help: "Outages tracked as open after the last poll.",
		},
	)
)

func init() {
	prometheus.MustRegister(pollRequests)
	prometheus.MustRegister(transitions)
	prometheus.MustRegister(openGauge)
}
