package watcher

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"reflect"
	"sync"
	"time"

	"jobwatch/internal/bus"
	"jobwatch/internal/jobs"
	"jobwatch/pkg/api"

	"github.com/jinzhu/copier"
	"github.com/jonboulle/clockwork"
)

var ErrNotBatch = errors.New("job is not a batch job")

// Row is one line of a batch job table. Index 0 is the batch parent.
type Row struct {
	Index  int
	JobID  string
	Name   string
	Label  string
	Action jobs.Action
	Status jobs.Status
}

// ListView renders a batch job table.
type ListView interface {
	RenderRows(rows []Row)
	RenderSummary(summary jobs.BatchSummary)
}

// RowName picks the display name for a row: the info description, then the app
// name, then the job id.
func RowName(index int, jobID string, info *jobs.Info) string {
	switch {
	case info != nil && info.Description != "":
		return info.Description
	case info != nil && info.AppName != "":
		return info.AppName
	case jobID != "":
		return jobID
	case index == 0:
		return "Batch job"
	}
	return fmt.Sprintf("Sub job %d", index)
}

// List follows a batch job and every one of its children, keeping a row per job.
type List struct {
	bus    bus.Bus
	view   ListView
	opts   Options
	logger *slog.Logger

	// event loop state
	parentID  string
	childIDs  []string
	children  map[string]int
	records   map[string]*jobs.Record
	infos     map[string]*jobs.Info
	inFlight  map[string]bool
	pollTimer clockwork.Timer
	sub       bus.Subscription

	mu      sync.RWMutex
	rows    []Row
	summary jobs.BatchSummary

	lifecycle sync.Mutex
	started   bool
	cancel    context.CancelFunc
	done      chan struct{}
}

// NewList creates a batch list that renders into view.
func NewList(b bus.Bus, view ListView, opts Options) *List {
	opts = opts.withDefaults()
	return &List{
		bus:      b,
		view:     view,
		opts:     opts,
		logger:   opts.Logger,
		children: make(map[string]int),
		records:  make(map[string]*jobs.Record),
		infos:    make(map[string]*jobs.Info),
		inFlight: make(map[string]bool),
		done:     make(chan struct{}),
	}
}

// Start requests info for parent and info and status for each of its children, then
// tracks them all. The parent row follows later pushes and polls of the parent.
func (l *List) Start(ctx context.Context, parent jobs.Record) error {
	if parent.JobID == "" {
		return ErrJobIDRequired
	}
	if !parent.IsBatch() {
		return ErrNotBatch
	}

	l.lifecycle.Lock()
	defer l.lifecycle.Unlock()
	if l.started {
		return ErrAlreadyStarted
	}

	loopCtx, cancel := context.WithCancel(ctx)
	sub, err := l.bus.Subscribe(loopCtx, bus.Filter{Topics: api.UpdateTopics})
	if err != nil {
		cancel()
		return err
	}

	l.started = true
	l.cancel = cancel
	l.sub = sub
	l.parentID = parent.JobID
	l.childIDs = append([]string(nil), parent.ChildJobs...)
	l.records[parent.JobID] = &parent
	l.logger = l.logger.With("batch_id", parent.JobID)
	for i, id := range l.childIDs {
		l.children[id] = i + 1
	}

	l.publish(loopCtx, api.TopicRequestJobInfo, parent.JobID)
	for _, id := range l.childIDs {
		l.publish(loopCtx, api.TopicRequestJobInfo, id)
		l.requestStatus(loopCtx, api.TopicRequestJobStatus, id)
	}
	l.render()
	l.schedulePoll()

	go l.run(loopCtx)
	return nil
}

// Stop tears the list down and waits for its event loop to exit.
func (l *List) Stop() {
	l.lifecycle.Lock()
	started, cancel := l.started, l.cancel
	l.lifecycle.Unlock()

	if !started {
		return
	}
	cancel()
	<-l.done
}

// Done is closed once the list has stopped.
func (l *List) Done() <-chan struct{} {
	return l.done
}

// Rows returns a copy of the current rows.
func (l *List) Rows() []Row {
	l.mu.RLock()
	defer l.mu.RUnlock()

	var out []Row
	if err := copier.CopyWithOption(&out, &l.rows, copier.Option{DeepCopy: true}); err != nil {
		l.logger.Error("failed to copy rows", "error", err)
	}
	return out
}

// Summary returns the current batch summary.
func (l *List) Summary() jobs.BatchSummary {
	l.mu.RLock()
	defer l.mu.RUnlock()

	var out jobs.BatchSummary
	if err := copier.CopyWithOption(&out, &l.summary, copier.Option{DeepCopy: true}); err != nil {
		l.logger.Error("failed to copy summary", "error", err)
	}
	return out
}

func (l *List) run(ctx context.Context) {
	defer close(l.done)
	defer func() {
		if l.pollTimer != nil {
			l.pollTimer.Stop()
		}
		l.sub.Unsubscribe()
	}()

	for !l.finished() {
		var pollC <-chan time.Time
		if l.pollTimer != nil {
			pollC = l.pollTimer.Chan()
		}

		select {
		case <-ctx.Done():
			return
		case msg, ok := <-l.sub.C():
			if !ok {
				return
			}
			if _, child := l.children[msg.JobID]; !child && msg.JobID != l.parentID {
				continue
			}
			if l.handle(msg) {
				l.render()
			}
		case <-pollC:
			l.pollTimer = nil
			l.onPollTick(ctx)
		}
	}
}

// finished reports whether every child has reached a terminal status.
func (l *List) finished() bool {
	for id := range l.children {
		rec := l.records[id]
		if rec == nil || !jobs.IsTerminal(rec.Status) {
			return false
		}
	}
	return true
}

// handle applies msg and reports whether any row changed.
func (l *List) handle(msg bus.Message) bool {
	switch msg.Topic {
	case api.TopicJobStatus:
		var payload api.StatusMessage
		if err := msg.Decode(&payload); err != nil {
			return false
		}
		rec, err := jobs.ParseRecord(payload.JobState)
		if err != nil || rec.JobID != msg.JobID {
			l.opts.Metrics.MessageDropped(context.Background(), msg.Topic, "invalid job state")
			return false
		}
		return l.onStatus(rec)

	case api.TopicJobDoesNotExist:
		rec := jobs.Record{JobID: msg.JobID, Status: jobs.StatusDoesNotExist, Created: l.opts.Clock.Now().UnixMilli()}
		if held := l.records[msg.JobID]; held != nil {
			rec.Created = held.Created
		}
		return l.onStatus(rec)

	case api.TopicJobInfo:
		var payload api.InfoMessage
		if err := msg.Decode(&payload); err != nil {
			return false
		}
		info, err := jobs.ParseInfo(payload.JobInfo)
		if err != nil {
			return false
		}
		l.infos[msg.JobID] = &info
		return true
	}
	return false
}

func (l *List) onStatus(rec jobs.Record) bool {
	l.inFlight[rec.JobID] = false

	held := l.records[rec.JobID]
	if held != nil {
		if jobs.IsTerminal(held.Status) {
			return false
		}
		if held.Updated != nil && rec.Updated != nil && *rec.Updated < *held.Updated {
			return false
		}
		if reflect.DeepEqual(*held, rec) {
			return false
		}
	}
	l.records[rec.JobID] = &rec
	return true
}

func (l *List) onPollTick(ctx context.Context) {
	for _, id := range append([]string{l.parentID}, l.childIDs...) {
		if rec := l.records[id]; rec != nil && jobs.IsTerminal(rec.Status) {
			continue
		}
		if l.inFlight[id] {
			l.inFlight[id] = false
			continue
		}
		l.requestStatus(ctx, api.TopicRequestJobUpdate, id)
	}
	l.schedulePoll()
}

func (l *List) requestStatus(ctx context.Context, topic, jobID string) {
	if l.inFlight[jobID] {
		return
	}
	l.inFlight[jobID] = l.publish(ctx, topic, jobID)
}

func (l *List) publish(ctx context.Context, topic, jobID string) bool {
	msg, err := bus.NewMessage(topic, jobID, api.JobRequest{JobID: jobID})
	if err != nil {
		l.logger.Error("failed to build request", "topic", topic, "job_id", jobID, "error", err)
		return false
	}
	if err := l.bus.Publish(ctx, msg); err != nil {
		l.logger.Warn("failed to publish request", "topic", topic, "job_id", jobID, "error", err)
		l.opts.Metrics.PublishFailed(ctx, topic)
		return false
	}
	l.opts.Metrics.RequestPublished(ctx, topic)
	return true
}

func (l *List) schedulePoll() {
	if l.pollTimer != nil {
		l.pollTimer.Stop()
	}
	l.pollTimer = l.opts.Clock.NewTimer(l.opts.PollInterval)
}

func (l *List) render() {
	parent := l.records[l.parentID]
	rows := make([]Row, 0, len(l.childIDs)+1)
	rows = append(rows, Row{
		Index:  0,
		JobID:  l.parentID,
		Name:   RowName(0, l.parentID, l.infos[l.parentID]),
		Label:  jobs.DecoratedLabel(parent, true),
		Action: jobs.ActionFor(parent),
		Status: parent.Status,
	})

	var records []jobs.Record
	for i, id := range l.childIDs {
		row := Row{Index: i + 1, JobID: id, Name: RowName(i+1, id, l.infos[id])}
		if rec := l.records[id]; rec != nil {
			row.Label = jobs.DecoratedLabel(rec, true)
			row.Action = jobs.ActionFor(rec)
			row.Status = rec.Status
			records = append(records, *rec)
		}
		rows = append(rows, row)
	}
	summary := jobs.Summary(records)

	l.mu.Lock()
	l.rows = rows
	l.summary = summary
	l.mu.Unlock()

	l.view.RenderRows(rows)
	l.view.RenderSummary(summary)
}
