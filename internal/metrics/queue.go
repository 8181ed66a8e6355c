package metrics

import (
	"context"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// QueueStats reports job counts per status.
type QueueStats interface {
	JobCounts(ctx context.Context) (map[string]int, error)
}

type queueCollector struct {
	stats QueueStats
	jobs  *prometheus.Desc
}

// NewQueueCollector reports the job queue by status on every scrape.
func NewQueueCollector(stats QueueStats) prometheus.Collector {
	return &queueCollector{
		stats: stats,
		jobs: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "queue", "jobs"),
			"Jobs in the generation queue by status.",
			[]string{"status"},
			nil,
		),
	}
}

func (c *queueCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.jobs
}

func (c *queueCollector) Collect(ch chan<- prometheus.Metric) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	counts, err := c.stats.JobCounts(ctx)
	if err != nil {
		slog.Error("failed to collect queue statistics", "error", err)
		return
	}
	for status, n := range counts {
		ch <- prometheus.MustNewConstMetric(c.jobs, prometheus.GaugeValue, float64(n), status)
	}
}
