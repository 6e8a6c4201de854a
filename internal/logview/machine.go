// Package logview implements the state machine behind a job log viewer: which phase
// the job is in and whether the viewer is listening for status, waiting for a log
// response or looping on log requests.
package logview

import "jobwatch/internal/jobs"

// Mode is the viewer phase.
type Mode string

const (
	ModeNew          Mode = "new"
	ModeQueued       Mode = "queued"
	ModeRunning      Mode = "running"
	ModeCompleted    Mode = "completed"
	ModeError        Mode = "error"
	ModeTerminated   Mode = "terminated"
	ModeDoesNotExist Mode = "does-not-exist"
)

// Terminal reports whether m accepts no further transitions.
func (m Mode) Terminal() bool {
	switch m {
	case ModeCompleted, ModeError, ModeTerminated, ModeDoesNotExist:
		return true
	}
	return false
}

// ModeFor maps a job status onto a viewer mode. Unknown statuses map to ModeNew.
func ModeFor(s jobs.Status) Mode {
	switch s {
	case jobs.StatusCreated, jobs.StatusEstimating, jobs.StatusQueued:
		return ModeQueued
	case jobs.StatusRunning:
		return ModeRunning
	case jobs.StatusCompleted:
		return ModeCompleted
	case jobs.StatusError:
		return ModeError
	case jobs.StatusTerminated:
		return ModeTerminated
	case jobs.StatusDoesNotExist:
		return ModeDoesNotExist
	}
	return ModeNew
}

// Flags are the viewer's side flags. They always change together with the mode.
type Flags struct {
	ListeningForStatus bool
	WaitingForLogs     bool
	LoopingForLogs     bool
}

// State is a mode and its flags.
type State struct {
	Mode  Mode
	Flags Flags
}

// Machine holds the viewer state. It is not safe for concurrent use; the owner
// serializes inputs.
type Machine struct {
	state State
}

// New returns a machine in ModeNew, listening for status.
func New() *Machine {
	return &Machine{state: State{
		Mode:  ModeNew,
		Flags: Flags{ListeningForStatus: true},
	}}
}

// State returns the current state.
func (m *Machine) State() State {
	return m.state
}

// Status applies a job status. It reports false, leaving the state untouched, when
// the machine is already terminal or the status maps to the current mode.
func (m *Machine) Status(s jobs.Status) (State, bool) {
	if m.state.Mode.Terminal() {
		return m.state, false
	}
	next := ModeFor(s)
	if next == ModeNew || next == m.state.Mode {
		return m.state, false
	}

	st := m.state
	st.Mode = next
	switch next {
	case ModeQueued:
		st.Flags.ListeningForStatus = true
		st.Flags.LoopingForLogs = false
	case ModeRunning:
		st.Flags.ListeningForStatus = true
		st.Flags.LoopingForLogs = true
	case ModeDoesNotExist:
		st.Flags = Flags{}
	default:
		st.Flags.ListeningForStatus = false
		st.Flags.LoopingForLogs = false
	}
	m.state = st
	return m.state, true
}

// DoesNotExist moves the machine to ModeDoesNotExist and clears every flag.
func (m *Machine) DoesNotExist() (State, bool) {
	if m.state.Mode.Terminal() {
		return m.state, false
	}
	m.state = State{Mode: ModeDoesNotExist}
	return m.state, true
}

// LogsRequested marks a log request as outstanding.
func (m *Machine) LogsRequested() State {
	if m.state.Mode != ModeDoesNotExist {
		m.state.Flags.WaitingForLogs = true
	}
	return m.state
}

// LogsReceived clears the outstanding log request.
func (m *Machine) LogsReceived() State {
	m.state.Flags.WaitingForLogs = false
	return m.state
}

// LogsDeleted records that the job's logs are gone. A finished job stops waiting
// and looping. A job that is still going keeps looping with a retry pending so
// later log output is picked up.
func (m *Machine) LogsDeleted() State {
	if m.state.Mode.Terminal() {
		m.state.Flags.WaitingForLogs = false
		m.state.Flags.LoopingForLogs = false
		return m.state
	}
	if m.state.Mode == ModeRunning {
		m.state.Flags.LoopingForLogs = true
		m.state.Flags.WaitingForLogs = true
	}
	return m.state
}
