// Package filter contains the gateway's request pipeline: an ordered chain of
// filters each of which either passes the request to the next stage or ends
// the chain with a terminal response.
package filter

import (
	"time"

	"github.com/trashgate/trashgate/pkg/gateway/data"

	"github.com/prometheus/client_golang/prometheus"
)

type Response interface {
	IsEnd() bool
}

// Next passes the request to the following filter, or to the upstream
// forwarder when the chain is exhausted.
type Next struct{}

func (n Next) IsEnd() bool {
	return false
}

// End stops the chain; the filter has written a terminal response.
type End struct{}

func (e End) IsEnd() bool {
	return true
}

type Filter interface {
	Run(d *data.Data) (Response, error)
	Type() string
}

type Chain struct {
	filters                []Filter
	metricErrorCount       *prometheus.CounterVec
	metricRunDuration      prometheus.Histogram
	metricRequestCount     *prometheus.CounterVec
	metricContextCancelled *prometheus.CounterVec
}

func NewChain() *Chain {
	return &Chain{
		filters: make([]Filter, 0),
		metricErrorCount: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "trashgate_filter_error_count",
			Help: "Number of errors encountered in filters",
		}, []string{"filter"}),
		metricRunDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "trashgate_filter_run_duration_seconds",
			Help:    "Duration of filter runs in seconds",
			Buckets: prometheus.DefBuckets,
		}),
		metricRequestCount: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "trashgate_filter_request_count",
			Help: "Number of requests processed by filters",
		}, []string{"filter"}),
		metricContextCancelled: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "trashgate_filter_context_cancelled_count",
			Help: "Number of times filter context was cancelled",
		}, []string{"filter", "error"}),
	}
}

func (c *Chain) AddFilter(f Filter) {
	c.filters = append(c.filters, f)
}

// Metrics returns the chain's collectors for registration.
func (c *Chain) Metrics() []prometheus.Collector {
	return []prometheus.Collector{
		c.metricErrorCount,
		c.metricRunDuration,
		c.metricRequestCount,
		c.metricContextCancelled,
	}
}

// Run executes the chain in order. It returns the name of the filter that
// ended the chain or errored, and whether a terminal response was written.
func (c *Chain) Run(d *data.Data) (string, bool, error) {
	for _, filter := range c.filters {
		t := time.Now()
		resp, err := filter.Run(d)
		c.metricRunDuration.Observe(time.Since(t).Seconds())
		c.metricRequestCount.WithLabelValues(filter.Type()).Inc()

		if d.Ctx.Err() != nil {
			c.metricContextCancelled.WithLabelValues(filter.Type(), d.Ctx.Err().Error()).Inc()
			return filter.Type(), false, d.Ctx.Err()
		}

		if err != nil {
			c.metricErrorCount.WithLabelValues(filter.Type()).Inc()
			return filter.Type(), false, err
		}
		if resp.IsEnd() {
			return filter.Type(), true, nil
		}
	}
	return "", false, nil
}
