// Package responder answers job viewer requests on the bus from the job store and
// pushes updates when job states or logs change.
package responder

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"jobwatch/internal/bus"
	"jobwatch/internal/jobs"
	"jobwatch/internal/logger"
	"jobwatch/internal/observability"
	"jobwatch/internal/store"
	"jobwatch/pkg/api"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const DefaultPageSize = 1000

// Store combines the repositories the responder reads and writes.
type Store interface {
	store.JobStore
	store.LogStore
}

// Options tune a Responder.
type Options struct {
	// PageSize caps the lines in one job-logs message.
	PageSize int
	Limiter  *Limiter
	Metrics  *observability.ResponderMetrics
	Logger   *slog.Logger
}

// Responder serves the request topics of every job.
type Responder struct {
	bus     bus.Bus
	store   Store
	opts    Options
	logger  *slog.Logger
	tracer  trace.Tracer
	started chan struct{}
}

// New creates a responder.
func New(b bus.Bus, s Store, opts Options) *Responder {
	if opts.PageSize <= 0 {
		opts.PageSize = DefaultPageSize
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Responder{
		bus:     b,
		store:   s,
		opts:    opts,
		logger:  opts.Logger,
		tracer:  otel.Tracer("jobwatch/responder"),
		started: make(chan struct{}),
	}
}

// Started is closed once Run has subscribed.
func (r *Responder) Started() <-chan struct{} {
	return r.started
}

// Run answers requests until ctx is cancelled. Requests are served one at a time
// in arrival order, so responses for a job never overtake each other.
func (r *Responder) Run(ctx context.Context) error {
	sub, err := r.bus.Subscribe(ctx, bus.Filter{Topics: api.RequestTopics})
	if err != nil {
		return fmt.Errorf("subscribe to requests: %w", err)
	}
	defer sub.Unsubscribe()
	close(r.started)

	r.logger.Info("responder listening", "topics", api.RequestTopics)
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-sub.C():
			if !ok {
				return nil
			}
			r.Handle(ctx, msg)
		}
	}
}

// Handle answers a single request message.
func (r *Responder) Handle(ctx context.Context, msg bus.Message) {
	start := time.Now()
	ctx = bus.Extract(ctx, msg)
	ctx = logger.WithRequestID(logger.WithJobID(ctx, msg.JobID), uuid.NewString())
	ctx, span := r.tracer.Start(ctx, "responder."+msg.Topic, trace.WithAttributes(
		attribute.String("job.id", msg.JobID),
		attribute.String("bus.topic", msg.Topic),
	))
	defer span.End()

	log := logger.FromContext(ctx, r.logger)

	outcome := observability.OutcomeOK
	switch {
	case msg.JobID == "":
		outcome = observability.OutcomeError
		log.Warn("dropping request without job id", "topic", msg.Topic)
	case !r.opts.Limiter.Allow(msg.JobID):
		outcome = observability.OutcomeRateLimited
		log.Warn("rate limited request", "topic", msg.Topic)
	default:
		var err error
		outcome, err = r.answer(ctx, msg)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			log.Error("failed to answer request", "topic", msg.Topic, "error", err)
		}
	}

	span.SetAttributes(attribute.String("responder.outcome", outcome))
	r.opts.Metrics.Handled(ctx, msg.Topic, outcome, time.Since(start))
}

func (r *Responder) answer(ctx context.Context, msg bus.Message) (string, error) {
	switch msg.Topic {
	case api.TopicRequestJobStatus, api.TopicRequestJobUpdate:
		rec, err := r.store.GetJobState(ctx, msg.JobID)
		if errors.Is(err, store.ErrNotFound) {
			return observability.OutcomeNotFound, r.PublishDoesNotExist(ctx, msg.JobID)
		}
		if err != nil {
			return observability.OutcomeError, err
		}
		return observability.OutcomeOK, r.PublishStatus(ctx, *rec)

	case api.TopicRequestJobLog, api.TopicRequestLatestJobLog:
		var req api.LogRequest
		if len(msg.Payload) > 0 {
			if err := msg.Decode(&req); err != nil {
				return observability.OutcomeError, fmt.Errorf("decode log request: %w", err)
			}
		}

		var page *store.LogPage
		var err error
		if msg.Topic == api.TopicRequestLatestJobLog && req.Options.FirstLine == nil {
			page, err = r.store.GetLatestLogs(ctx, msg.JobID, r.opts.PageSize)
		} else {
			first := 0
			if req.Options.FirstLine != nil {
				first = *req.Options.FirstLine
			}
			page, err = r.store.GetLogs(ctx, msg.JobID, first, r.opts.PageSize)
		}

		switch {
		case errors.Is(err, store.ErrLogsDeleted):
			return observability.OutcomeLogsDeleted, r.PublishLogsDeleted(ctx, msg.JobID)
		case errors.Is(err, store.ErrNotFound):
			return observability.OutcomeNotFound, r.PublishDoesNotExist(ctx, msg.JobID)
		case err != nil:
			return observability.OutcomeError, err
		}
		return observability.OutcomeOK, r.publishLogs(ctx, msg.JobID, req.RequestID, page)

	case api.TopicRequestJobInfo:
		info, err := r.store.GetJobInfo(ctx, msg.JobID)
		if errors.Is(err, store.ErrNotFound) {
			// a job without info still has a state; viewers fall back to the job id
			return observability.OutcomeNotFound, nil
		}
		if err != nil {
			return observability.OutcomeError, err
		}
		return observability.OutcomeOK, r.PublishInfo(ctx, *info)
	}
	return observability.OutcomeError, fmt.Errorf("unknown request topic %q", msg.Topic)
}

// PublishStatus pushes a job-status message for rec.
func (r *Responder) PublishStatus(ctx context.Context, rec jobs.Record) error {
	state, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	return r.publish(ctx, api.TopicJobStatus, rec.JobID, api.StatusMessage{JobID: rec.JobID, JobState: state})
}

// PublishLogs pushes a job-logs message carrying page.
func (r *Responder) PublishLogs(ctx context.Context, jobID string, page *store.LogPage) error {
	return r.publishLogs(ctx, jobID, "", page)
}

func (r *Responder) publishLogs(ctx context.Context, jobID, requestID string, page *store.LogPage) error {
	return r.publish(ctx, api.TopicJobLogs, jobID, api.LogsMessage{JobID: jobID, RequestID: requestID, Logs: ToAPIPage(page)})
}

// PublishLogsDeleted pushes a job-log-deleted message.
func (r *Responder) PublishLogsDeleted(ctx context.Context, jobID string) error {
	return r.publish(ctx, api.TopicJobLogDeleted, jobID, api.JobRequest{JobID: jobID})
}

// PublishDoesNotExist pushes a job-does-not-exist message.
func (r *Responder) PublishDoesNotExist(ctx context.Context, jobID string) error {
	return r.publish(ctx, api.TopicJobDoesNotExist, jobID, api.JobRequest{JobID: jobID})
}

// PublishInfo pushes a job-info message.
func (r *Responder) PublishInfo(ctx context.Context, info jobs.Info) error {
	raw, err := json.Marshal(info)
	if err != nil {
		return err
	}
	return r.publish(ctx, api.TopicJobInfo, info.JobID, api.InfoMessage{JobID: info.JobID, JobInfo: raw})
}

func (r *Responder) publish(ctx context.Context, topic, jobID string, payload any) error {
	msg, err := bus.NewMessage(topic, jobID, payload)
	if err != nil {
		return err
	}
	return r.bus.Publish(ctx, msg)
}

// ToAPIPage converts a stored log page to its wire form. Line positions are 1-based.
func ToAPIPage(page *store.LogPage) api.LogPage {
	if page == nil {
		return api.LogPage{Lines: []api.LogLine{}}
	}
	out := api.LogPage{First: page.First, MaxLines: page.Total, Lines: make([]api.LogLine, len(page.Lines))}
	for i, line := range page.Lines {
		out.Lines[i] = api.LogLine{Line: line.Line, IsError: line.IsError, LinePos: line.Index + 1}
		if !line.CreatedAt.IsZero() {
			out.Lines[i].TS = line.CreatedAt.UnixMilli()
		}
	}
	return out
}
