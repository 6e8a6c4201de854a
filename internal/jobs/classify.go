package jobs

import "fmt"

// Action is the user action available for a job in its current state.
type Action string

const (
	ActionNone        Action = ""
	ActionCancel      Action = "cancel"
	ActionRetry       Action = "retry"
	ActionViewResults Action = "view-results"
)

// Label is the button text shown for the action.
func (a Action) Label() string {
	switch a {
	case ActionCancel:
		return "cancel"
	case ActionRetry:
		return "retry"
	case ActionViewResults:
		return "go to results"
	}
	return ""
}

// Label returns the canonical short label for a status.
func Label(s Status) string {
	return string(BucketOf(s))
}

// DecoratedLabel returns the label for rec, with the error name appended when
// includeError is set and the record carries an error.
func DecoratedLabel(rec *Record, includeError bool) string {
	if rec == nil {
		return string(BucketNotFound)
	}
	label := Label(rec.Status)
	if includeError && rec.Error != nil && rec.Error.Name != "" {
		return label + ": " + rec.Error.Name
	}
	return label
}

// ActionFor returns the action available for rec. Invalid records get ActionNone.
func ActionFor(rec *Record) Action {
	switch {
	case !rec.Valid():
		return ActionNone
	case CanCancel(rec.Status):
		return ActionCancel
	case CanRetry(rec.Status):
		return ActionRetry
	case rec.Status == StatusCompleted && rec.HasResult():
		return ActionViewResults
	}
	return ActionNone
}

// CanCancel reports whether a job in status s can be cancelled.
func CanCancel(s Status) bool {
	return s.Valid() && !IsTerminal(s)
}

// CanRetry reports whether a job in status s can be retried. A job that does not
// exist is retried by submitting it again.
func CanRetry(s Status) bool {
	return s == StatusTerminated || s == StatusError || s == StatusDoesNotExist
}

// NiceState returns the long-form state name used in status summaries.
func NiceState(s Status) string {
	switch s {
	case StatusCreated, StatusEstimating, StatusQueued, StatusRunning:
		return string(s)
	case StatusTerminated:
		return "cancellation"
	case StatusError:
		return "error"
	case StatusCompleted:
		return "success"
	case StatusDoesNotExist:
		return "does not exist"
	}
	return "invalid"
}

// ErrorString formats a job error as "<name>: Error code: <code>".
func ErrorString(e *JobError) string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("%s: Error code: %d", e.Name, e.Code)
}

// FSMState is the mode/stage pair that an app runner tracks for a job.
type FSMState struct {
	Mode  string
	Stage string
}

// FSMStateFor maps a record onto the app runner's mode and stage.
func FSMStateFor(rec *Record) (FSMState, bool) {
	if !rec.Valid() {
		return FSMState{}, false
	}
	switch rec.Status {
	case StatusCreated, StatusEstimating, StatusQueued:
		return FSMState{Mode: "processing", Stage: "queued"}, true
	case StatusRunning:
		return FSMState{Mode: "processing", Stage: "running"}, true
	case StatusCompleted:
		return FSMState{Mode: "success"}, true
	case StatusTerminated:
		return FSMState{Mode: "canceled"}, true
	case StatusError:
		if rec.Running != nil {
			return FSMState{Mode: "error", Stage: "running"}, true
		}
		return FSMState{Mode: "error", Stage: "queued"}, true
	}
	return FSMState{}, false
}

// StatusFromFSM returns the short status text for an app runner mode and stage.
// It returns "" when the pair does not describe a displayable state.
func StatusFromFSM(mode, stage string) string {
	switch mode {
	case "error", "internal-error":
		return "error"
	case "canceling", "canceled":
		return "canceled"
	case "success":
		return "success"
	case "processing":
		if stage == "running" || stage == "queued" {
			return stage
		}
	}
	return ""
}
