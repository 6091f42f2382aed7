// Package metrics exposes process-wide Prometheus collectors for the
// mounted filesystem's operation counts and latencies, served over
// /metrics by the mount command the way the teacher's own metrics
// package is wired into gcsfuse's mount command.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	opsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "mountpoint_s3",
		Name:      "fs_ops_total",
		Help:      "Total filesystem operations processed, by op and outcome.",
	}, []string{"op", "outcome"})

	opDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "mountpoint_s3",
		Name:      "fs_op_duration_seconds",
		Help:      "Filesystem operation latency in seconds, by op.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"op"})

	bytesRead = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "mountpoint_s3",
		Name:      "bytes_read_total",
		Help:      "Total bytes served from ReadFile.",
	})

	bytesWritten = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "mountpoint_s3",
		Name:      "bytes_written_total",
		Help:      "Total bytes accepted by WriteFile.",
	})
)

// RecordOp records one filesystem operation's outcome and latency. err is
// the error the operation returned (possibly a fuse.Errno, possibly nil);
// only whether it's nil is tracked here, not the code itself, since the
// code is already visible in logs.
func RecordOp(op string, start time.Time, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	opsTotal.WithLabelValues(op, outcome).Inc()
	opDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
}

// AddBytesRead adds n to the cumulative bytes-read counter.
func AddBytesRead(n int) {
	if n > 0 {
		bytesRead.Add(float64(n))
	}
}

// AddBytesWritten adds n to the cumulative bytes-written counter.
func AddBytesWritten(n int) {
	if n > 0 {
		bytesWritten.Add(float64(n))
	}
}

// Handler returns the http.Handler that serves the registered collectors
// in the Prometheus exposition format.
func Handler() http.Handler {
	return promhttp.Handler()
}
