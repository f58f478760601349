package domain

import "time"

// RunStatus is the lifecycle of one pipeline execution.
type RunStatus string

const (
	RunRunning   RunStatus = "running"
	RunCompleted RunStatus = "completed"
	RunFailed    RunStatus = "failed"
)

// RunStats are the per-run counters surfaced in logs, the status endpoint and
// the pipeline_runs table.
type RunStats struct {
	Fetched    int `json:"fetched"`
	Grouped    int `json:"grouped"`
	Posted     int `json:"posted"`
	Approved   int `json:"approved"`
	Rejected   int `json:"rejected"`
	Promoted   int `json:"promoted"`
	Deployed   int `json:"deployed"`
	Failed     int `json:"failed"`
	TimedOut   int `json:"timed_out"`
	Categories int `json:"categorized"`
}

// PipelineRun records one execution of the pipeline, manual or scheduled.
type PipelineRun struct {
	ID         string
	Trigger    string // "interval" or "manual"
	Status     RunStatus
	Stats      RunStats
	Error      string
	StartedAt  time.Time
	FinishedAt *time.Time
}

// Duration returns the wall time of the run, using now for runs still going.
func (r PipelineRun) Duration(now time.Time) time.Duration {
	if r.FinishedAt != nil {
		return r.FinishedAt.Sub(r.StartedAt)
	}
	return now.Sub(r.StartedAt)
}
