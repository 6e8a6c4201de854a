package jobs

import (
	"time"
)

const (
	LineUnknown  = "Determining job state..."
	LineNotFound = "This job was not found, or may not have been registered with this narrative."
)

// Composer builds human-readable status lines for a job record.
type Composer struct {
	// Now supplies the current time for durations of jobs that are still queued.
	Now func() time.Time
	// Location is the time zone timestamps are rendered in. Defaults to UTC.
	Location *time.Location
}

// ComposeLines is Composer.Lines with the wall clock and UTC.
func ComposeLines(rec *Record, showHistory bool) []string {
	return Composer{}.Lines(rec, showHistory)
}

// Lines returns the status lines for rec. Without history only the line describing
// the current phase is returned. With history the queue and run durations precede
// it, each only when the phase has ended.
func (c Composer) Lines(rec *Record, showHistory bool) []string {
	if !rec.Valid() {
		return []string{LineUnknown}
	}
	if rec.Status == StatusDoesNotExist {
		return []string{LineNotFound}
	}

	current := c.currentLine(rec)
	if !showHistory || IsQueued(rec.Status) {
		return []string{current}
	}

	var lines []string
	if queued, ok := c.queueDuration(rec); ok {
		lines = append(lines, "Queued for "+queued)
	}
	if IsTerminal(rec.Status) && rec.Running != nil && rec.Finished != nil {
		if ran := NiceDuration(millis(*rec.Finished - *rec.Running)); ran != "" {
			lines = append(lines, "Ran for "+ran)
		}
	}
	return append(lines, current)
}

func (c Composer) currentLine(rec *Record) string {
	switch rec.Status {
	case StatusCreated, StatusEstimating, StatusQueued:
		return "In the queue since " + c.niceTime(&rec.Created)
	case StatusRunning:
		return "Started running job at " + c.niceTime(rec.Running)
	case StatusTerminated, StatusError, StatusCompleted:
		line := "Finished with " + NiceState(rec.Status)
		finished := rec.Finished
		if finished == nil {
			finished = rec.Updated
		}
		if finished == nil {
			return line
		}
		return line + " at " + c.niceTime(finished)
	}
	return LineUnknown
}

// queueDuration measures from creation to the first of running, finished or now.
// It is only reported once the job has left the queue.
func (c Composer) queueDuration(rec *Record) (string, bool) {
	var end *int64
	switch {
	case rec.Running != nil:
		end = rec.Running
	case rec.Finished != nil:
		end = rec.Finished
	default:
		return "", false
	}
	now := c.now().UnixMilli()
	until := *end
	if now < until {
		until = now
	}
	d := NiceDuration(millis(until - rec.Created))
	return d, d != ""
}

func (c Composer) niceTime(ms *int64) string {
	if ms == nil {
		return "an unknown time"
	}
	return NiceTime(*ms, c.Location)
}

func (c Composer) now() time.Time {
	if c.Now != nil {
		return c.Now()
	}
	return time.Now()
}

func millis(ms int64) time.Duration {
	return time.Duration(ms) * time.Millisecond
}
