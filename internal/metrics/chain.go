package metrics

import (
	"context"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/roach88/custody/internal/ledger"
)

// entryCounter is implemented by stores that can count their rows.
type entryCounter interface {
	Count(ctx context.Context) (int64, error)
}

// ChainCollector reports the chain length at scrape time. For stores that
// count rows it also reports the stored entry count, which falls below the
// length when rows have been removed.
type ChainCollector struct {
	store   ledger.ChainStore
	timeout time.Duration
	length  *prometheus.Desc
	stored  *prometheus.Desc
}

// NewChainCollector returns a collector reading the tip of s.
func NewChainCollector(s ledger.ChainStore) *ChainCollector {
	return &ChainCollector{
		store:   s,
		timeout: 2 * time.Second,
		length: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "chain", "length"),
			"Number of entries in the chain (tip index + 1).",
			nil,
			nil,
		),
		stored: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "chain", "stored_entries"),
			"Number of entry rows held by the store.",
			nil,
			nil,
		),
	}
}

// Describe returns all descriptions of the collector.
func (cc *ChainCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- cc.length
	if _, ok := cc.store.(entryCounter); ok {
		ch <- cc.stored
	}
}

// Collect reads the tip. A failed read skips the sample.
func (cc *ChainCollector) Collect(ch chan<- prometheus.Metric) {
	ctx, cancel := context.WithTimeout(context.Background(), cc.timeout)
	defer cancel()

	tip, ok, err := cc.store.Last(ctx)
	if err != nil {
		slog.Warn("chain collector: read tip failed", "error", err)
		return
	}

	var length float64
	if ok {
		length = float64(tip.Index + 1)
	}
	ch <- prometheus.MustNewConstMetric(cc.length, prometheus.GaugeValue, length)

	counter, ok := cc.store.(entryCounter)
	if !ok {
		return
	}
	n, err := counter.Count(ctx)
	if err != nil {
		slog.Warn("chain collector: count entries failed", "error", err)
		return
	}
	ch <- prometheus.MustNewConstMetric(cc.stored, prometheus.GaugeValue, float64(n))
}
