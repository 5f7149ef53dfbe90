// Package metrics records build observations.
//
// Components receive a Recorder and default to NoopRecorder, so collecting
// metrics never requires nil checks. The CLI swaps in a PrometheusRecorder
// when a metrics file is configured and writes the registry out in the text
// exposition format once the build finishes.
package metrics

import "time"

// BundleResult enumerates bundle outcomes for counters.
type BundleResult string

const (
	BundleSuccess BundleResult = "success"
	BundleFailed  BundleResult = "failed"
)

// RebuildKind distinguishes watch-mode rebuild sources.
type RebuildKind string

const (
	RebuildBundle RebuildKind = "bundle"
	RebuildFile   RebuildKind = "file"
)

// Recorder defines the observability hooks of a build.
type Recorder interface {
	ObserveBuildDuration(d time.Duration)
	AddChangedFiles(root string, n int)
	IncBundleResult(result BundleResult)
	ObserveBundleDuration(d time.Duration)
	IncRebuild(kind RebuildKind)
}

// NoopRecorder is a Recorder that does nothing.
type NoopRecorder struct{}

func (NoopRecorder) ObserveBuildDuration(time.Duration)  {}
func (NoopRecorder) AddChangedFiles(string, int)         {}
func (NoopRecorder) IncBundleResult(BundleResult)        {}
func (NoopRecorder) ObserveBundleDuration(time.Duration) {}
func (NoopRecorder) IncRebuild(RebuildKind)              {}
