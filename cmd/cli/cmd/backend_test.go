package cmd

import (
	"context"
	"encoding/json"
	"sync"
	"testing"

	"jobwatch/internal/bus"
	"jobwatch/internal/jobs"
	"jobwatch/pkg/api"

	"github.com/spf13/viper"
)

func resetViper() {
	viper.Reset()
	viper.SetEnvPrefix("JOBWATCH")
	viper.AutomaticEnv()
}

// fakeBackend answers viewer requests from fixed data.
type fakeBackend struct {
	states   map[string]jobs.Record
	infos    map[string]jobs.Info
	logs     map[string][]string
	deleted  map[string]bool
	pageSize int

	mu       sync.Mutex
	requests []string
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{
		states:   map[string]jobs.Record{},
		infos:    map[string]jobs.Info{},
		logs:     map[string][]string{},
		deleted:  map[string]bool{},
		pageSize: 1000,
	}
}

func (f *fakeBackend) requestCount(topic string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, r := range f.requests {
		if r == topic {
			n++
		}
	}
	return n
}

// useBackend points openBus at an in-memory bus served by f.
func useBackend(t *testing.T, f *fakeBackend) {
	t.Helper()
	b := bus.NewMemory()
	ctx, cancel := context.WithCancel(context.Background())

	sub, err := b.Subscribe(ctx, bus.Filter{Topics: api.RequestTopics})
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	go func() {
		for msg := range sub.C() {
			f.answer(ctx, b, msg)
		}
	}()

	prev := openBus
	openBus = func() (bus.Bus, error) { return b, nil }
	t.Cleanup(func() {
		openBus = prev
		cancel()
		b.Close()
	})
}

func (f *fakeBackend) answer(ctx context.Context, b bus.Bus, msg bus.Message) {
	f.mu.Lock()
	f.requests = append(f.requests, msg.Topic)
	f.mu.Unlock()

	publish := func(topic string, payload any) {
		out, _ := bus.NewMessage(topic, msg.JobID, payload)
		b.Publish(ctx, out)
	}

	rec, known := f.states[msg.JobID]
	switch msg.Topic {
	case api.TopicRequestJobStatus, api.TopicRequestJobUpdate:
		if !known {
			publish(api.TopicJobDoesNotExist, api.JobRequest{JobID: msg.JobID})
			return
		}
		state, _ := json.Marshal(rec)
		publish(api.TopicJobStatus, api.StatusMessage{JobID: msg.JobID, JobState: state})

	case api.TopicRequestJobLog, api.TopicRequestLatestJobLog:
		switch {
		case !known:
			publish(api.TopicJobDoesNotExist, api.JobRequest{JobID: msg.JobID})
			return
		case f.deleted[msg.JobID]:
			publish(api.TopicJobLogDeleted, api.JobRequest{JobID: msg.JobID})
			return
		}
		var req api.LogRequest
		msg.Decode(&req)
		all := f.logs[msg.JobID]
		first := max(len(all)-f.pageSize, 0)
		if req.Options.FirstLine != nil {
			first = *req.Options.FirstLine
		}
		page := api.LogPage{First: first, MaxLines: len(all), Lines: []api.LogLine{}}
		for i := first; i < len(all) && i < first+f.pageSize; i++ {
			page.Lines = append(page.Lines, api.LogLine{Line: all[i], LinePos: i + 1})
		}
		publish(api.TopicJobLogs, api.LogsMessage{JobID: msg.JobID, RequestID: req.RequestID, Logs: page})

	case api.TopicRequestJobInfo:
		if info, ok := f.infos[msg.JobID]; ok {
			raw, _ := json.Marshal(info)
			publish(api.TopicJobInfo, api.InfoMessage{JobID: msg.JobID, JobInfo: raw})
		}
	}
}

const (
	msCreated  int64 = 1610064000000
	msRunning  int64 = msCreated + 5*60*1000
	msFinished int64 = msRunning + 500*1000
)

func completedJob(jobID string) jobs.Record {
	running, finished := msRunning, msFinished
	return jobs.Record{JobID: jobID, Status: jobs.StatusCompleted, Created: msCreated, Running: &running, Finished: &finished}
}
