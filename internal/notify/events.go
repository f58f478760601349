package notify

// Event types emitted by the pipeline. The Notify.Events config filter uses
// these names.
const (
	EventRunCompleted = "run_completed"
	EventRunFailed    = "run_failed"
	EventDeployFailed = "deploy_failed"
	EventDeployed     = "market_deployed"
	EventError        = "error"
)
