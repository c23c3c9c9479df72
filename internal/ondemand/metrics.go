package ondemand

import (
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Stats is a point in time snapshot of engine counters
type Stats struct {
	Pending       int
	Queued        int
	Admitted      uint64
	Deduplicated  uint64
	Malformed     uint64
	Unsupported   uint64
	SendFailures  uint64
	Resolved      uint64
	Failed        uint64
	Late          uint64
	Timeouts      uint64
	ProgramErrors uint64
	LastSweep     time.Time
}

type counters struct {
	admitted      uint64
	deduplicated  uint64
	malformed     uint64
	unsupported   uint64
	sendFailures  uint64
	resolved      uint64
	failed        uint64
	late          uint64
	timeouts      uint64
	programErrors uint64

	latency prometheus.Histogram
}

func newCounters() *counters {
	return &counters{
		latency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "aca",
			Subsystem: "on_demand",
			Name:      "resolution_latency_seconds",
			Help:      "Round trip time from admission to authority reply",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2, 14),
		}),
	}
}

func inc(counter *uint64) {
	atomic.AddUint64(counter, 1)
}

func (c *counters) observeLatency(d time.Duration) {
	c.latency.Observe(d.Seconds())
}

var (
	descRequests = prometheus.NewDesc(
		"aca_on_demand_requests_total",
		"On-demand resolution requests by outcome",
		[]string{"outcome"}, nil,
	)
	descReplies = prometheus.NewDesc(
		"aca_on_demand_replies_total",
		"Authority replies by outcome",
		[]string{"outcome"}, nil,
	)
	descTimeouts = prometheus.NewDesc(
		"aca_on_demand_timeouts_total",
		"Pending requests abandoned after dwell time",
		nil, nil,
	)
	descPending = prometheus.NewDesc(
		"aca_on_demand_pending",
		"Requests waiting for an authority reply",
		nil, nil,
	)
	descQueued = prometheus.NewDesc(
		"aca_on_demand_queued_tasks",
		"Tasks waiting for a free worker",
		nil, nil,
	)
)

// engineCollector exports engine state to prometheus
type engineCollector struct {
	e *Engine
}

func (ec engineCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- descRequests
	ch <- descReplies
	ch <- descTimeouts
	ch <- descPending
	ch <- descQueued
	ec.e.counters.latency.Describe(ch)
}

func (ec engineCollector) Collect(ch chan<- prometheus.Metric) {
	s := ec.e.Stats()

	counter := func(desc *prometheus.Desc, val uint64, labels ...string) {
		ch <- prometheus.MustNewConstMetric(desc, prometheus.CounterValue, float64(val), labels...)
	}

	counter(descRequests, s.Admitted, "admitted")
	counter(descRequests, s.Deduplicated, "deduplicated")
	counter(descRequests, s.Malformed, "malformed")
	counter(descRequests, s.Unsupported, "unsupported")
	counter(descRequests, s.SendFailures, "send_failure")
	counter(descReplies, s.Resolved, "applied")
	counter(descReplies, s.Failed, "failed")
	counter(descReplies, s.Late, "late")
	counter(descReplies, s.ProgramErrors, "program_error")
	counter(descTimeouts, s.Timeouts)

	ch <- prometheus.MustNewConstMetric(descPending, prometheus.GaugeValue, float64(s.Pending))
	ch <- prometheus.MustNewConstMetric(descQueued, prometheus.GaugeValue, float64(s.Queued))
	ec.e.counters.latency.Collect(ch)
}
