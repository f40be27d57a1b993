package session

// Mode selects what a session does with each region.
type Mode string

const (
	ModeTraining  Mode = "training"
	ModeInference Mode = "inference"
)

// Valid reports whether m is a known mode.
func (m Mode) Valid() bool { return m == ModeTraining || m == ModeInference }

// State is the lifecycle position of a session. A session moves strictly
// forward: Idle, Scanning, Processing, Finalizing, Done.
type State int

const (
	StateIdle State = iota
	StateScanning
	StateProcessing
	StateFinalizing
	StateDone
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateScanning:
		return "scanning"
	case StateProcessing:
		return "processing"
	case StateFinalizing:
		return "finalizing"
	case StateDone:
		return "done"
	default:
		return "unknown"
	}
}

// Form statuses.
const (
	StatusOK        = "ok"
	StatusFailed    = "failed"
	StatusCancelled = "cancelled"
)

// Region outcomes.
const (
	OutcomeLabeled   = "labeled"
	OutcomeSkipped   = "skipped"
	OutcomeFlagged   = "flagged"
	OutcomeEmpty     = "empty"
	OutcomePredicted = "predicted"
	OutcomeDegraded  = "degraded"
	OutcomeError     = "error"
)
