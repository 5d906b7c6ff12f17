package constants

// RunStatus is the canonical status for rows in bot_runs.
type RunStatus string

// Stable values (store these exact strings in DB).
const (
	RunStatusPending   RunStatus = "pending"   // created, not yet scheduled
	RunStatusQueued    RunStatus = "queued"    // waiting for the run worker
	RunStatusRunning   RunStatus = "running"   // documents in progress
	RunStatusCompleted RunStatus = "completed" // every document attempted
	RunStatusCancelled RunStatus = "cancelled" // stopped at a document boundary
	RunStatusFailed    RunStatus = "failed"    // error escaped the run loop
)

// Terminal reports whether no further transition is allowed.
func (s RunStatus) Terminal() bool {
	switch s {
	case RunStatusCompleted, RunStatusCancelled, RunStatusFailed:
		return true
	}
	return false
}

// Outcome is the per-document result recorded in bot_process_log.
type Outcome string

const (
	OutcomeSuccess   Outcome = "success"
	OutcomeDuplicate Outcome = "duplicate"
	OutcomeFailure   Outcome = "failure"
)

// Sentinel identifiers written to the process log when no actuator id exists.
const (
	IdentifierDuplicate        = "Duplicate"
	IdentifierReviewBlocked    = "ReviewBlocked"
	IdentifierExtractionFailed = "Extraction Failed"
	IdentifierDryRun           = "DryRun"
)

// MaxLogMessageLen caps error text stored per document.
const MaxLogMessageLen = 240
