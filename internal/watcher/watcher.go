// Package watcher drives job viewers over the message bus: it requests job status
// and logs, listens for push updates, polls when pushes stop, and tears itself down
// once the job is finished.
package watcher

import (
	"context"
	"errors"
	"log/slog"
	"reflect"
	"sync"
	"time"

	"jobwatch/internal/bus"
	"jobwatch/internal/jobs"
	"jobwatch/internal/logview"
	"jobwatch/internal/observability"
	"jobwatch/pkg/api"

	"github.com/google/uuid"
	"github.com/jinzhu/copier"
	"github.com/jonboulle/clockwork"
)

var (
	ErrJobIDRequired  = errors.New("requires a job id to start")
	ErrAlreadyStarted = errors.New("watcher already started")
)

// Log panel messages.
const (
	MessageQueued = "Job is queued; logs will be available when the job is running."
	MessageNoLogs = "No log entries to show."
)

const (
	DefaultPollInterval    = 5 * time.Second
	DefaultLogPollInterval = 2 * time.Second
)

// View renders what the watcher learns. All calls come from the watcher's event
// loop, never concurrently, and never after Stop returns.
type View interface {
	// RenderStatus shows the status lines. rec is nil while the job state is unknown.
	RenderStatus(rec *jobs.Record, lines []string)
	// AppendLogLines adds lines to the end of the log panel.
	AppendLogLines(lines []api.LogLine)
	// ShowLogMessage replaces the log panel content with a message.
	ShowLogMessage(text string)
	// ClearLogs empties the log panel.
	ClearLogs()
}

// Options tune a Watcher. Zero values get defaults. A log request that stays
// unanswered for PollInterval is sent again.
type Options struct {
	PollInterval    time.Duration
	LogPollInterval time.Duration
	ShowHistory     bool
	Clock           clockwork.Clock
	Location        *time.Location
	Logger          *slog.Logger
	Metrics         *observability.WatcherMetrics
}

func (o Options) withDefaults() Options {
	if o.PollInterval <= 0 {
		o.PollInterval = DefaultPollInterval
	}
	if o.LogPollInterval <= 0 {
		o.LogPollInterval = DefaultLogPollInterval
	}
	if o.Clock == nil {
		o.Clock = clockwork.NewRealClock()
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	return o
}

// Snapshot is a copy of a watcher's state, safe to read from any goroutine.
type Snapshot struct {
	JobID       string
	State       logview.State
	Record      *jobs.Record
	Info        *jobs.Info
	StatusLines []string
	Lines       []api.LogLine
}

// Watcher follows one job. It owns the job's record and log lines; nothing else
// writes them.
type Watcher struct {
	bus      bus.Bus
	view     View
	opts     Options
	logger   *slog.Logger
	composer jobs.Composer

	// event loop state
	jobID          string
	machine        *logview.Machine
	record         *jobs.Record
	info           *jobs.Info
	statusLines    []string
	lines          []api.LogLine
	nextLine       int
	statusInFlight bool
	logReq         *logRequest
	finished       bool
	pollTimer      clockwork.Timer
	logTimer       clockwork.Timer // next latest-log poll, or the retry of logReq
	sub            bus.Subscription

	mu   sync.RWMutex
	snap Snapshot

	lifecycle sync.Mutex
	started   bool
	cancel    context.CancelFunc
	done      chan struct{}
}

// New creates a watcher that renders into view.
func New(b bus.Bus, view View, opts Options) *Watcher {
	opts = opts.withDefaults()
	return &Watcher{
		bus:      b,
		view:     view,
		opts:     opts,
		logger:   opts.Logger,
		composer: jobs.Composer{Now: opts.Clock.Now, Location: opts.Location},
		machine:  logview.New(),
		done:     make(chan struct{}),
	}
}

// Start subscribes to the job's updates and begins watching. A valid initial record
// is applied before Start returns; otherwise the job status is requested.
func (w *Watcher) Start(ctx context.Context, jobID string, initial *jobs.Record) error {
	if jobID == "" {
		return ErrJobIDRequired
	}

	w.lifecycle.Lock()
	defer w.lifecycle.Unlock()
	if w.started {
		return ErrAlreadyStarted
	}

	loopCtx, cancel := context.WithCancel(ctx)
	sub, err := w.bus.Subscribe(loopCtx, bus.Filter{JobID: jobID, Topics: api.UpdateTopics})
	if err != nil {
		cancel()
		return err
	}

	w.started = true
	w.cancel = cancel
	w.sub = sub
	w.jobID = jobID
	w.logger = w.logger.With("job_id", jobID)

	w.renderStatus()
	if initial != nil && initial.Valid() && initial.JobID == jobID {
		w.onStatus(loopCtx, *initial)
	} else {
		w.requestStatus(loopCtx, api.TopicRequestJobStatus)
		w.schedulePoll()
	}
	w.syncSnapshot()

	go w.run(loopCtx)
	return nil
}

// Stop tears the watcher down and waits for its event loop to exit. It must not be
// called from a View method.
func (w *Watcher) Stop() {
	w.lifecycle.Lock()
	started, cancel := w.started, w.cancel
	w.lifecycle.Unlock()

	if !started {
		return
	}
	cancel()
	<-w.done
}

// Done is closed once the watcher has stopped, either through Stop or because the
// job finished and its logs were fetched.
func (w *Watcher) Done() <-chan struct{} {
	return w.done
}

// Snapshot returns a copy of the current state.
func (w *Watcher) Snapshot() Snapshot {
	w.mu.RLock()
	defer w.mu.RUnlock()

	var out Snapshot
	if err := copier.CopyWithOption(&out, &w.snap, copier.Option{DeepCopy: true}); err != nil {
		w.logger.Error("failed to copy watcher snapshot", "error", err)
		return w.snap
	}
	return out
}

func (w *Watcher) run(ctx context.Context) {
	defer close(w.done)
	defer w.teardown()

	for !w.finished {
		var pollC, logC <-chan time.Time
		if w.pollTimer != nil {
			pollC = w.pollTimer.Chan()
		}
		if w.logTimer != nil {
			logC = w.logTimer.Chan()
		}

		select {
		case <-ctx.Done():
			return
		case msg, ok := <-w.sub.C():
			if !ok {
				return
			}
			w.handle(ctx, msg)
		case <-pollC:
			w.pollTimer = nil
			w.onPollTick(ctx)
		case <-logC:
			w.logTimer = nil
			w.onLogTick(ctx)
		}
		w.syncSnapshot()
	}
}

func (w *Watcher) teardown() {
	w.stopPolling()
	w.stopLogTimer()
	w.sub.Unsubscribe()
	w.logger.Debug("watcher stopped", "mode", w.machine.State().Mode)
}

func (w *Watcher) handle(ctx context.Context, msg bus.Message) {
	switch msg.Topic {
	case api.TopicJobStatus:
		var payload api.StatusMessage
		if err := msg.Decode(&payload); err != nil {
			w.drop(ctx, msg.Topic, "undecodable")
			return
		}
		rec, err := jobs.ParseRecord(payload.JobState)
		if err != nil || rec.JobID != w.jobID {
			w.drop(ctx, msg.Topic, "invalid job state")
			return
		}
		w.onStatus(ctx, rec)

	case api.TopicJobLogs:
		var payload api.LogsMessage
		if err := msg.Decode(&payload); err != nil {
			w.drop(ctx, msg.Topic, "undecodable")
			return
		}
		w.onLogs(ctx, payload)

	case api.TopicJobLogDeleted:
		w.onLogsDeleted()

	case api.TopicJobDoesNotExist:
		w.onDoesNotExist()

	case api.TopicJobInfo:
		var payload api.InfoMessage
		if err := msg.Decode(&payload); err != nil {
			w.drop(ctx, msg.Topic, "undecodable")
			return
		}
		info, err := jobs.ParseInfo(payload.JobInfo)
		if err != nil {
			w.drop(ctx, msg.Topic, "invalid job info")
			return
		}
		w.info = &info
	}
}

func (w *Watcher) onStatus(ctx context.Context, rec jobs.Record) {
	w.statusInFlight = false

	if reason := w.stale(rec); reason != "" {
		w.drop(ctx, api.TopicJobStatus, reason)
		return
	}
	if w.record != nil && reflect.DeepEqual(*w.record, rec) {
		w.schedulePoll()
		return
	}

	w.record = &rec
	if rec.Status == jobs.StatusDoesNotExist {
		w.onDoesNotExist()
		return
	}

	state, changed := w.machine.Status(rec.Status)
	w.renderStatus()

	switch {
	case state.Mode.Terminal():
		w.stopPolling()
		// an open latest-log request is answered first; its answer or retry sends the final one
		if w.logReq == nil {
			w.stopLogTimer()
			w.requestFinalLogs(ctx)
		}
		return
	case state.Mode == logview.ModeQueued && changed:
		w.stopLogTimer()
		w.logReq = nil
		w.view.ShowLogMessage(MessageQueued)
	case state.Mode == logview.ModeRunning && changed:
		w.requestLatestLogs(ctx)
	}
	w.schedulePoll()
}

// stale explains why rec must not replace the held record, or returns "".
func (w *Watcher) stale(rec jobs.Record) string {
	if w.machine.State().Mode.Terminal() {
		return "job already finished"
	}
	if w.record != nil && w.record.Updated != nil && rec.Updated != nil && *rec.Updated < *w.record.Updated {
		return "older than held state"
	}
	return ""
}

func (w *Watcher) onLogs(ctx context.Context, msg api.LogsMessage) {
	added := w.merge(msg.Logs)
	if len(added) > 0 {
		w.view.AppendLogLines(added)
	}
	if w.logReq == nil || msg.RequestID != w.logReq.id {
		// a pushed page, or a late answer to an abandoned request
		return
	}

	final := w.logReq.topic == api.TopicRequestJobLog
	w.logReq = nil
	w.stopLogTimer()
	state := w.machine.LogsReceived()
	if len(w.lines) == 0 && state.Mode.Terminal() {
		w.view.ShowLogMessage(MessageNoLogs)
	}

	switch {
	case state.Mode == logview.ModeDoesNotExist:
	case state.Mode.Terminal():
		// a full log longer than one page is fetched page by page
		if final && (len(added) == 0 || w.nextLine >= msg.Logs.MaxLines) {
			w.finished = true
			return
		}
		w.requestFinalLogs(ctx)
	case state.Mode == logview.ModeRunning && state.Flags.LoopingForLogs:
		w.scheduleLogTimer(w.opts.LogPollInterval)
	}
}

// merge appends the lines of page that lie past what has been rendered, returning
// the new ones. Lines are positioned by the page's first offset.
func (w *Watcher) merge(page api.LogPage) []api.LogLine {
	var added []api.LogLine
	for i, line := range page.Lines {
		pos := page.First + i
		if pos < w.nextLine {
			continue
		}
		w.lines = append(w.lines, line)
		added = append(added, line)
		w.nextLine = pos + 1
	}
	return added
}

func (w *Watcher) onLogsDeleted() {
	w.logReq = nil
	w.stopLogTimer()
	state := w.machine.LogsDeleted()
	w.lines = nil
	w.nextLine = 0
	w.view.ShowLogMessage(MessageNoLogs)

	switch {
	case state.Mode.Terminal():
		w.finished = true
	case state.Mode == logview.ModeRunning:
		w.scheduleLogTimer(w.opts.LogPollInterval)
	}
}

func (w *Watcher) onDoesNotExist() {
	if _, changed := w.machine.DoesNotExist(); !changed {
		return
	}
	w.stopPolling()
	w.stopLogTimer()
	w.logReq = nil
	w.lines = nil
	w.renderStatus()
	w.view.ClearLogs()
	w.finished = true
}

func (w *Watcher) onPollTick(ctx context.Context) {
	if w.machine.State().Mode.Terminal() {
		return
	}

	if w.statusInFlight {
		// the last request went unanswered for a whole interval; allow a new one next tick
		w.statusInFlight = false
	} else {
		w.requestStatus(ctx, api.TopicRequestJobUpdate)
	}
	w.schedulePoll()
}

// onLogTick polls for the latest lines while running. When a request is still
// open it has gone unanswered, so it is dropped and sent again.
func (w *Watcher) onLogTick(ctx context.Context) {
	if w.logReq != nil {
		w.logger.Debug("log request unanswered", "topic", w.logReq.topic, "request_id", w.logReq.id)
		w.logReq = nil
	}

	mode := w.machine.State().Mode
	switch {
	case mode == logview.ModeRunning:
		w.requestLogs(ctx, api.TopicRequestLatestJobLog, api.LogOptions{})
	case mode.Terminal() && mode != logview.ModeDoesNotExist:
		w.requestFinalLogs(ctx)
	}
}

func (w *Watcher) requestStatus(ctx context.Context, topic string) {
	if w.statusInFlight {
		return
	}
	if w.publish(ctx, topic, api.JobRequest{JobID: w.jobID}) {
		w.statusInFlight = true
	}
}

func (w *Watcher) requestLatestLogs(ctx context.Context) {
	w.requestLogs(ctx, api.TopicRequestLatestJobLog, api.LogOptions{})
}

// requestFinalLogs asks for every line not yet rendered.
func (w *Watcher) requestFinalLogs(ctx context.Context) {
	first := w.nextLine
	w.requestLogs(ctx, api.TopicRequestJobLog, api.LogOptions{FirstLine: &first})
}

// logRequest is the log request awaiting its answer.
type logRequest struct {
	id    string
	topic string
}

// requestLogs sends a log request unless one is open, and arms the retry timer. A
// failed publish leaves no request open, so the retry sends it again.
func (w *Watcher) requestLogs(ctx context.Context, topic string, opts api.LogOptions) {
	if w.logReq != nil {
		return
	}
	req := api.LogRequest{JobID: w.jobID, RequestID: uuid.NewString(), Options: opts}
	if w.publish(ctx, topic, req) {
		w.logReq = &logRequest{id: req.RequestID, topic: topic}
	}
	w.machine.LogsRequested()
	w.scheduleLogTimer(w.opts.PollInterval)
}

func (w *Watcher) publish(ctx context.Context, topic string, payload any) bool {
	msg, err := bus.NewMessage(topic, w.jobID, payload)
	if err != nil {
		w.logger.Error("failed to build request", "topic", topic, "error", err)
		return false
	}
	if err := w.bus.Publish(ctx, msg); err != nil {
		w.logger.Warn("failed to publish request", "topic", topic, "error", err)
		w.opts.Metrics.PublishFailed(ctx, topic)
		return false
	}
	w.opts.Metrics.RequestPublished(ctx, topic)
	return true
}

func (w *Watcher) drop(ctx context.Context, topic, reason string) {
	w.logger.Debug("dropping message", "topic", topic, "reason", reason)
	w.opts.Metrics.MessageDropped(ctx, topic, reason)
}

func (w *Watcher) renderStatus() {
	var rec *jobs.Record
	if w.record != nil {
		r := *w.record
		rec = &r
	}
	if w.machine.State().Mode == logview.ModeDoesNotExist {
		w.statusLines = []string{jobs.LineNotFound}
	} else {
		w.statusLines = w.composer.Lines(rec, w.opts.ShowHistory)
	}
	w.view.RenderStatus(rec, w.statusLines)
}

func (w *Watcher) schedulePoll() {
	w.stopPolling()
	w.pollTimer = w.opts.Clock.NewTimer(w.opts.PollInterval)
}

func (w *Watcher) stopPolling() {
	if w.pollTimer != nil {
		w.pollTimer.Stop()
		w.pollTimer = nil
	}
}

func (w *Watcher) scheduleLogTimer(d time.Duration) {
	w.stopLogTimer()
	w.logTimer = w.opts.Clock.NewTimer(d)
}

func (w *Watcher) stopLogTimer() {
	if w.logTimer != nil {
		w.logTimer.Stop()
		w.logTimer = nil
	}
}

func (w *Watcher) syncSnapshot() {
	snap := Snapshot{
		JobID:       w.jobID,
		State:       w.machine.State(),
		Record:      w.record,
		Info:        w.info,
		StatusLines: w.statusLines,
		Lines:       w.lines,
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if err := copier.CopyWithOption(&w.snap, &snap, copier.Option{DeepCopy: true}); err != nil {
		w.logger.Error("failed to copy watcher snapshot", "error", err)
	}
}
