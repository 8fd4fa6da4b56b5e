package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "attendance"

var (
	TransportEvents = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace, Name: "transport_events_total", Help: "Transport events handled, by kind",
	}, []string{"kind"})
	HandlerErrors = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace, Name: "handler_errors_total", Help: "Transport event handler failures",
	})
	Deliveries = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace, Name: "deliveries_total", Help: "Best-effort sends, by kind and outcome",
	}, []string{"kind", "outcome"})
	AttendanceTransitions = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace, Name: "attendance_transitions_total", Help: "Attendance entry transitions",
	}, []string{"transition"})
	DigestRuns = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace, Name: "digest_runs_total", Help: "Digest sends, by trigger and outcome",
	}, []string{"trigger", "outcome"})
	LiveSessions = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace, Name: "live_sessions", Help: "Coordinators with an open session",
	})
	DBPing = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace, Name: "db_ping_seconds", Help: "Store ping latency",
		Buckets: prometheus.DefBuckets,
	})
)

func init() {
	prometheus.MustRegister(TransportEvents, HandlerErrors, Deliveries, AttendanceTransitions, DigestRuns, LiveSessions, DBPing)
}

func Handler() http.Handler { return promhttp.Handler() }

func ObserveDBPing(d time.Duration) { DBPing.Observe(d.Seconds()) }

// Outcome maps an error to the label used by the counters.
func Outcome(err error) string {
	if err != nil {
		return "failed"
	}
	return "ok"
}
