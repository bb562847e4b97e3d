package synchronizer

// State is the phase of the run currently in progress.
type State int32

const (
	// Idle means no run is in progress.
	Idle State = iota
	// Capturing means snapshots of affected instances are being taken.
	Capturing
	// FetchingAndRegistering means definitions are fetched and installed one
	// type id at a time.
	FetchingAndRegistering
	// Restoring means snapshots are being applied back onto instances.
	Restoring
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Capturing:
		return "capturing"
	case FetchingAndRegistering:
		return "fetching_and_registering"
	case Restoring:
		return "restoring"
	default:
		return "unknown"
	}
}

// RunResult classifies a finished run.
type RunResult string

const (
	// ResultNoop is an empty batch.
	ResultNoop RunResult = "noop"
	// ResultOK means every type id in the batch was installed.
	ResultOK RunResult = "ok"
	// ResultPartial means some but not all type ids were installed.
	ResultPartial RunResult = "partial"
	// ResultFailed means nothing was installed or the run panicked.
	ResultFailed RunResult = "failed"
)
