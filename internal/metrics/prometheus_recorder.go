package metrics

import (
	"fmt"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"
)

const namespace = "tsdist"

// PrometheusRecorder implements Recorder using Prometheus metrics.
type PrometheusRecorder struct {
	buildDuration  prom.Histogram
	changedFiles   *prom.CounterVec
	bundleResults  *prom.CounterVec
	bundleDuration prom.Histogram
	rebuilds       *prom.CounterVec
}

// NewPrometheusRecorder constructs the metrics and registers them on reg.
// A nil reg gets a private registry.
func NewPrometheusRecorder(reg *prom.Registry) *PrometheusRecorder {
	if reg == nil {
		reg = prom.NewRegistry()
	}
	pr := &PrometheusRecorder{
		buildDuration: prom.NewHistogram(prom.HistogramOpts{
			Namespace: namespace,
			Name:      "build_duration_seconds",
			Help:      "Total duration of a build across all source roots",
			Buckets:   prom.DefBuckets,
		}),
		changedFiles: prom.NewCounterVec(prom.CounterOpts{
			Namespace: namespace,
			Name:      "changed_files_total",
			Help:      "Files written per source root",
		}, []string{"root"}),
		bundleResults: prom.NewCounterVec(prom.CounterOpts{
			Namespace: namespace,
			Name:      "bundle_results_total",
			Help:      "Bundle outcomes by result",
		}, []string{"result"}),
		bundleDuration: prom.NewHistogram(prom.HistogramOpts{
			Namespace: namespace,
			Name:      "bundle_duration_seconds",
			Help:      "Duration of individual entry point bundles",
			Buckets:   prom.DefBuckets,
		}),
		rebuilds: prom.NewCounterVec(prom.CounterOpts{
			Namespace: namespace,
			Name:      "rebuilds_total",
			Help:      "Watch mode rebuilds by kind",
		}, []string{"kind"}),
	}
	reg.MustRegister(pr.buildDuration, pr.changedFiles, pr.bundleResults, pr.bundleDuration, pr.rebuilds)
	return pr
}

func (p *PrometheusRecorder) ObserveBuildDuration(d time.Duration) {
	if p == nil {
		return
	}
	p.buildDuration.Observe(d.Seconds())
}

func (p *PrometheusRecorder) AddChangedFiles(root string, n int) {
	if p == nil || n <= 0 {
		return
	}
	p.changedFiles.WithLabelValues(root).Add(float64(n))
}

func (p *PrometheusRecorder) IncBundleResult(result BundleResult) {
	if p == nil {
		return
	}
	p.bundleResults.WithLabelValues(string(result)).Inc()
}

func (p *PrometheusRecorder) ObserveBundleDuration(d time.Duration) {
	if p == nil {
		return
	}
	p.bundleDuration.Observe(d.Seconds())
}

func (p *PrometheusRecorder) IncRebuild(kind RebuildKind) {
	if p == nil {
		return
	}
	p.rebuilds.WithLabelValues(string(kind)).Inc()
}

// WriteTextfile writes every metric gathered from reg to path in the text
// exposition format, replacing the file atomically.
func WriteTextfile(path string, reg *prom.Registry) error {
	if err := prom.WriteToTextfile(path, reg); err != nil {
		return fmt.Errorf("write metrics to %s: %w", path, err)
	}
	return nil
}
