// Package metrics exports camera statistics to Prometheus.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/teslashibe/go-basler/pkg/basler"
)

const namespace = "basler"

// StatsFunc returns the current statistics of the served camera.
type StatsFunc func() basler.Stats

// Collector reads camera statistics at scrape time.
type Collector struct {
	stats StatsFunc

	open         *prometheus.Desc
	opens        *prometheus.Desc
	framesRead   *prometheus.Desc
	notGrabbing  *prometheus.Desc
	grabFailures *prometheus.Desc
	timeouts     *prometheus.Desc
	lastBlockID  *prometheus.Desc
}

// NewCollector creates a collector over stats.
func NewCollector(stats StatsFunc) *Collector {
	labels := []string{"backend"}
	desc := func(name, help string) *prometheus.Desc {
		return prometheus.NewDesc(prometheus.BuildFQName(namespace, "camera", name), help, labels, nil)
	}
	return &Collector{
		stats: stats,
		open: prometheus.NewDesc(prometheus.BuildFQName(namespace, "camera", "open"),
			"Whether the camera holds a device.", []string{"backend", "model", "serial"}, nil),
		opens:        desc("opens_total", "Device opens."),
		framesRead:   desc("frames_read_total", "Frames delivered to the caller."),
		notGrabbing:  desc("not_grabbing_total", "Reads that found acquisition stopped."),
		grabFailures: desc("grab_failures_total", "Frames reported as failed by the device."),
		timeouts:     desc("timeouts_total", "Frame retrieves that timed out."),
		lastBlockID:  desc("last_block_id", "Block id of the last delivered frame."),
	}
}

// Describe implements prometheus.Collector.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.open
	ch <- c.opens
	ch <- c.framesRead
	ch <- c.notGrabbing
	ch <- c.grabFailures
	ch <- c.timeouts
	ch <- c.lastBlockID
}

// Collect implements prometheus.Collector.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	s := c.stats()

	open := 0.0
	if s.Open {
		open = 1
	}
	ch <- prometheus.MustNewConstMetric(c.open, prometheus.GaugeValue, open, s.Backend, s.Device.ModelName, s.Device.SerialNumber)
	ch <- prometheus.MustNewConstMetric(c.opens, prometheus.CounterValue, float64(s.Opens), s.Backend)
	ch <- prometheus.MustNewConstMetric(c.framesRead, prometheus.CounterValue, float64(s.FramesRead), s.Backend)
	ch <- prometheus.MustNewConstMetric(c.notGrabbing, prometheus.CounterValue, float64(s.NotGrabbing), s.Backend)
	ch <- prometheus.MustNewConstMetric(c.grabFailures, prometheus.CounterValue, float64(s.GrabFailures), s.Backend)
	ch <- prometheus.MustNewConstMetric(c.timeouts, prometheus.CounterValue, float64(s.Timeouts), s.Backend)
	ch <- prometheus.MustNewConstMetric(c.lastBlockID, prometheus.GaugeValue, float64(s.LastBlockID), s.Backend)
}

// NewRegistry returns a registry holding the camera collector and the
// standard process and Go runtime collectors.
func NewRegistry(stats StatsFunc) *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		NewCollector(stats),
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
		prometheus.NewGoCollector(),
	)
	return reg
}

// Handler serves reg in the Prometheus text format.
func Handler(reg *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
}
