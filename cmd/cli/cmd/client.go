package cmd

import (
	"context"
	"errors"
	"fmt"
	"time"

	"jobwatch/internal/bus"
	"jobwatch/internal/jobs"
	"jobwatch/pkg/api"

	"github.com/google/uuid"
)

var (
	ErrJobNotFound = errors.New("job does not exist")
	ErrLogsDeleted = errors.New("job logs were deleted")
	ErrNoResponse  = errors.New("no response from the responder")
)

// JobClient makes one-shot requests over the bus and waits for the answer.
type JobClient struct {
	Bus     bus.Bus
	Timeout time.Duration
}

// NewJobClient creates a new client on b.
func NewJobClient(b bus.Bus, timeout time.Duration) *JobClient {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &JobClient{Bus: b, Timeout: timeout}
}

// GetStatus sends request-job-status and returns the job state.
func (c *JobClient) GetStatus(ctx context.Context, jobID string) (*jobs.Record, error) {
	msg, err := c.roundTrip(ctx, api.TopicRequestJobStatus, jobID, api.JobRequest{JobID: jobID}, nil,
		api.TopicJobStatus, api.TopicJobDoesNotExist)
	if err != nil {
		return nil, err
	}
	if msg.Topic == api.TopicJobDoesNotExist {
		return nil, ErrJobNotFound
	}

	var payload api.StatusMessage
	if err := msg.Decode(&payload); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}
	rec, err := jobs.ParseRecord(payload.JobState)
	if err != nil {
		return nil, err
	}
	if rec.Status == jobs.StatusDoesNotExist {
		return nil, ErrJobNotFound
	}
	return &rec, nil
}

// GetInfo sends request-job-info. A job without info yields nil and no error.
func (c *JobClient) GetInfo(ctx context.Context, jobID string) (*jobs.Info, error) {
	msg, err := c.roundTrip(ctx, api.TopicRequestJobInfo, jobID, api.JobRequest{JobID: jobID}, nil, api.TopicJobInfo)
	if errors.Is(err, ErrNoResponse) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var payload api.InfoMessage
	if err := msg.Decode(&payload); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}
	info, err := jobs.ParseInfo(payload.JobInfo)
	if err != nil {
		return nil, err
	}
	return &info, nil
}

// GetLogs sends request-job-log for the page starting at firstLine (0-based).
// Pages pushed while it waits are skipped.
func (c *JobClient) GetLogs(ctx context.Context, jobID string, firstLine int) (*api.LogPage, error) {
	req := api.LogRequest{JobID: jobID, RequestID: uuid.NewString(), Options: api.LogOptions{FirstLine: &firstLine}}
	answers := func(msg bus.Message) bool {
		if msg.Topic != api.TopicJobLogs {
			return true
		}
		var payload api.LogsMessage
		return msg.Decode(&payload) == nil && payload.RequestID == req.RequestID
	}
	msg, err := c.roundTrip(ctx, api.TopicRequestJobLog, jobID, req, answers,
		api.TopicJobLogs, api.TopicJobLogDeleted, api.TopicJobDoesNotExist)
	if err != nil {
		return nil, err
	}

	switch msg.Topic {
	case api.TopicJobDoesNotExist:
		return nil, ErrJobNotFound
	case api.TopicJobLogDeleted:
		return nil, ErrLogsDeleted
	}

	var payload api.LogsMessage
	if err := msg.Decode(&payload); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}
	return &payload.Logs, nil
}

// roundTrip subscribes before publishing so the answer cannot be missed. With a
// non-nil accept, messages it rejects are skipped.
func (c *JobClient) roundTrip(ctx context.Context, topic, jobID string, payload any, accept func(bus.Message) bool, answers ...string) (bus.Message, error) {
	ctx, cancel := context.WithTimeout(ctx, c.Timeout)
	defer cancel()

	sub, err := c.Bus.Subscribe(ctx, bus.Filter{JobID: jobID, Topics: answers})
	if err != nil {
		return bus.Message{}, fmt.Errorf("subscribe: %w", err)
	}
	defer sub.Unsubscribe()

	msg, err := bus.NewMessage(topic, jobID, payload)
	if err != nil {
		return bus.Message{}, err
	}
	if err := c.Bus.Publish(ctx, msg); err != nil {
		return bus.Message{}, fmt.Errorf("request failed: %w", err)
	}

	for {
		select {
		case <-ctx.Done():
			return bus.Message{}, ErrNoResponse
		case answer, ok := <-sub.C():
			if !ok {
				return bus.Message{}, ErrNoResponse
			}
			if accept == nil || accept(answer) {
				return answer, nil
			}
		}
	}
}
