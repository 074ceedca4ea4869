// Package metrics records build observations. Components take a Recorder
// and default to NoopRecorder, so metrics stay optional.
package metrics

import "time"

// Phase names a timed step of a build.
type Phase string

const (
	PhaseDiscover Phase = "discover"
	PhaseCompile  Phase = "compile"
	PhaseIndex    Phase = "index"
	PhaseResolve  Phase = "resolve"
	PhaseWrite    Phase = "write"
)

// DocumentResult labels per-document counters.
type DocumentResult string

const (
	DocumentBuilt  DocumentResult = "built"
	DocumentFailed DocumentResult = "failed"
)

// Recorder receives build observations. Implementations must be safe for
// concurrent use.
type Recorder interface {
	ObservePhaseDuration(phase Phase, d time.Duration)
	ObserveBuildDuration(d time.Duration)
	IncBuildOutcome(outcome string) // success|partial|fatal
	AddDocuments(result DocumentResult, n int)
}

// NoopRecorder discards everything.
type NoopRecorder struct{}

func (NoopRecorder) ObservePhaseDuration(Phase, time.Duration) {}
func (NoopRecorder) ObserveBuildDuration(time.Duration)        {}
func (NoopRecorder) IncBuildOutcome(string)                    {}
func (NoopRecorder) AddDocuments(DocumentResult, int)          {}
