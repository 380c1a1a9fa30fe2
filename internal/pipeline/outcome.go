package pipeline

// OutcomeKind is the terminal state of a run.
type OutcomeKind string

const (
	OutcomeUpToDate  OutcomeKind = "up-to-date"
	OutcomeNoChanges OutcomeKind = "no-changes"
	OutcomePublished OutcomeKind = "published"
	OutcomeFailed    OutcomeKind = "failed"
)

// Warning is a non-fatal problem reported alongside a successful outcome.
type Warning struct {
	Stage   Stage
	Message string
}

// Outcome is what Orchestrator.Run returns.
type Outcome struct {
	Kind       OutcomeKind
	Target     UpdateTarget
	NewVersion string
	// PullRequest is set when Kind is OutcomePublished.
	PullRequest *PullRequestDescriptor
	// Stage and Err are set when Kind is OutcomeFailed.
	Stage    Stage
	Err      error
	Reason   string
	Warnings []Warning
}

// Failed reports whether the run stopped on an error.
func (o Outcome) Failed() bool {
	return o.Kind == OutcomeFailed
}

func failed(t UpdateTarget, stage Stage, err error) Outcome {
	return Outcome{
		Kind:   OutcomeFailed,
		Target: t,
		Stage:  stage,
		Err:    &StageError{Stage: stage, Err: err},
		Reason: err.Error(),
	}
}
