package jobs

import "time"

var (
	tCreated  int64 = 1610065000000
	tQueued   int64 = 1610065200000
	tRunning  int64 = 1610065500000
	tFinished int64 = 1610065800000
	tUpdated  int64 = 12345678910
)

func ms(v int64) *int64 { return &v }

var (
	lineQueued      = "In the queue since " + NiceTime(tCreated, time.UTC)
	lineRunning     = "Started running job at " + NiceTime(tRunning, time.UTC)
	lineTermination = "Finished with cancellation at " + NiceTime(tFinished, time.UTC)
	lineError       = "Finished with error at " + NiceTime(tFinished, time.UTC)
	lineSuccess     = "Finished with success at " + NiceTime(tFinished, time.UTC)
	lineQueueHist   = "Queued for " + NiceDuration(millis(tRunning-tCreated))
	lineQueueNoRun  = "Queued for " + NiceDuration(millis(tFinished-tCreated))
	lineRunHist     = "Ran for " + NiceDuration(millis(tFinished-tRunning))
)

// fixture is a valid job state together with what each function should make of it.
type fixture struct {
	raw          map[string]any
	line         string
	history      []string
	action       Action
	label        string
	labelWithErr string
	niceState    string
	errorString  string
	fsm          FSMState
}

func validFixtures() []fixture {
	return []fixture{
		{
			raw:       map[string]any{"job_id": "job created", "status": "created", "created": float64(tCreated), "updated": float64(tCreated)},
			line:      lineQueued,
			history:   []string{lineQueued},
			action:    ActionCancel,
			label:     "queued",
			niceState: "created",
			fsm:       FSMState{Mode: "processing", Stage: "queued"},
		},
		{
			raw:       map[string]any{"job_id": "job estimating", "status": "estimating", "created": float64(tCreated), "updated": float64(tCreated)},
			line:      lineQueued,
			history:   []string{lineQueued},
			action:    ActionCancel,
			label:     "queued",
			niceState: "estimating",
			fsm:       FSMState{Mode: "processing", Stage: "queued"},
		},
		{
			raw:       map[string]any{"job_id": "job in the queue", "status": "queued", "created": float64(tCreated), "queued": float64(tQueued), "updated": float64(tUpdated)},
			line:      lineQueued,
			history:   []string{lineQueued},
			action:    ActionCancel,
			label:     "queued",
			niceState: "queued",
			fsm:       FSMState{Mode: "processing", Stage: "queued"},
		},
		{
			raw: map[string]any{
				"job_id": "job cancelled whilst in the queue", "status": "terminated",
				"created": float64(tCreated), "queued": float64(tQueued), "finished": float64(tFinished), "updated": float64(tUpdated),
			},
			line:      lineTermination,
			history:   []string{lineQueueNoRun, lineTermination},
			action:    ActionRetry,
			label:     "cancelled",
			niceState: "cancellation",
			fsm:       FSMState{Mode: "canceled"},
		},
		{
			raw: map[string]any{
				"job_id": "job running", "status": "running",
				"created": float64(tCreated), "queued": float64(tQueued), "running": float64(tRunning), "updated": float64(tUpdated),
			},
			line:      lineRunning,
			history:   []string{lineQueueHist, lineRunning},
			action:    ActionCancel,
			label:     "running",
			niceState: "running",
			fsm:       FSMState{Mode: "processing", Stage: "running"},
		},
		{
			raw: map[string]any{
				"job_id": "job cancelled during run", "status": "terminated",
				"created": float64(tCreated), "queued": float64(tQueued), "running": float64(tRunning),
				"finished": float64(tFinished), "updated": float64(tUpdated),
			},
			line:      lineTermination,
			history:   []string{lineQueueHist, lineRunHist, lineTermination},
			action:    ActionRetry,
			label:     "cancelled",
			niceState: "cancellation",
			fsm:       FSMState{Mode: "canceled"},
		},
		{
			raw: map[string]any{
				"job_id": "job died whilst queueing", "status": "error",
				"error":   map[string]any{"code": float64(666), "name": "Queue error", "message": "Job died in the queue"},
				"created": float64(tCreated), "queued": float64(tQueued), "finished": float64(tFinished), "updated": float64(tUpdated),
			},
			line:         lineError,
			history:      []string{lineQueueNoRun, lineError},
			action:       ActionRetry,
			label:        "failed",
			labelWithErr: "failed: Queue error",
			niceState:    "error",
			errorString:  "Queue error: Error code: 666",
			fsm:          FSMState{Mode: "error", Stage: "queued"},
		},
		{
			raw: map[string]any{
				"job_id": "job died with error", "status": "error",
				"error":   map[string]any{"code": float64(-32000), "name": "Server error", "message": "App woke up from its nap very cranky!"},
				"created": float64(tCreated), "queued": float64(tQueued), "running": float64(tRunning),
				"finished": float64(tFinished), "updated": float64(tUpdated),
			},
			line:         lineError,
			history:      []string{lineQueueHist, lineRunHist, lineError},
			action:       ActionRetry,
			label:        "failed",
			labelWithErr: "failed: Server error",
			niceState:    "error",
			errorString:  "Server error: Error code: -32000",
			fsm:          FSMState{Mode: "error", Stage: "running"},
		},
		{
			raw: map[string]any{
				"job_id": "job finished with success", "status": "completed",
				"created": float64(tCreated), "queued": float64(tQueued), "running": float64(tRunning),
				"finished": float64(tFinished), "updated": float64(tUpdated),
				"result": []any{map[string]any{"report_name": "kb_megahit_report", "report_ref": "57373/16/1"}},
			},
			line:      lineSuccess,
			history:   []string{lineQueueHist, lineRunHist, lineSuccess},
			action:    ActionViewResults,
			label:     "success",
			niceState: "success",
			fsm:       FSMState{Mode: "success"},
		},
	}
}

func unknownFixture() fixture {
	return fixture{
		raw:       map[string]any{"job_id": "unknown job", "status": "does_not_exist", "created": float64(tCreated), "other": "key", "another": "key"},
		line:      LineNotFound,
		history:   []string{LineNotFound},
		action:    ActionRetry,
		label:     "not found",
		niceState: "does not exist",
	}
}

func allFixtures() []fixture {
	return append(validFixtures(), unknownFixture())
}

func invalidJobStates() []any {
	return []any{
		1,
		"foo",
		[]any{"a", "list"},
		map[string]any{"job_id": "somejob", "other": "key"},
		map[string]any{"created": "at_some_point", "other": "key"},
		map[string]any{"job_id": "baz", "create": float64(12345)},
		map[string]any{"job_id": "whatever", "status": "running"},
		map[string]any{"job_id": "no job status", "created": float64(12345678), "status": "who cares?"},
		nil,
		map[string]any(nil),
	}
}

// mustRecord decodes a fixture; fixtures are valid by construction.
func mustRecord(raw map[string]any) Record {
	rec, err := ParseRecord(raw)
	if err != nil {
		panic(err)
	}
	return rec
}

func recordsByStatus() map[Status]Record {
	out := make(map[Status]Record)
	for _, f := range allFixtures() {
		rec := mustRecord(f.raw)
		if _, ok := out[rec.Status]; !ok {
			out[rec.Status] = rec
		}
	}
	return out
}
