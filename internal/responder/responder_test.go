package responder

import (
	"context"
	"errors"
	"testing"
	"time"

	"jobwatch/internal/bus"
	"jobwatch/internal/jobs"
	"jobwatch/internal/store"
	"jobwatch/pkg/api"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type harness struct {
	t     *testing.T
	bus   *bus.Memory
	store *memStore
	r     *Responder
	outbox bus.Subscription
}

func newHarness(t *testing.T, opts Options) *harness {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	b := bus.NewMemory()
	t.Cleanup(func() { b.Close() })

	outbox, err := b.Subscribe(ctx, bus.Filter{Topics: api.UpdateTopics})
	require.NoError(t, err)

	s := newMemStore()
	r := New(b, s, opts)
	go r.Run(ctx)

	select {
	case <-r.Started():
	case <-time.After(time.Second):
		t.Fatal("responder did not start")
	}
	return &harness{t: t, bus: b, store: s, r: r, outbox: outbox}
}

func (h *harness) request(topic, jobID string, payload any) {
	h.t.Helper()
	msg, err := bus.NewMessage(topic, jobID, payload)
	require.NoError(h.t, err)
	require.NoError(h.t, h.bus.Publish(context.Background(), msg))
}

func (h *harness) expect(topic string) bus.Message {
	h.t.Helper()
	select {
	case msg := <-h.outbox.C():
		require.Equal(h.t, topic, msg.Topic)
		return msg
	case <-time.After(time.Second):
		h.t.Fatalf("no %s message", topic)
	}
	return bus.Message{}
}

func (h *harness) expectNothing() {
	h.t.Helper()
	select {
	case msg := <-h.outbox.C():
		h.t.Fatalf("unexpected %s message", msg.Topic)
	case <-time.After(30 * time.Millisecond):
	}
}

func (h *harness) seed(rec jobs.Record, lines ...string) {
	h.t.Helper()
	require.NoError(h.t, h.store.UpsertJobState(context.Background(), rec))
	if len(lines) == 0 {
		return
	}
	batch := make([]store.LogLine, len(lines))
	for i, l := range lines {
		batch[i] = store.LogLine{Line: l}
	}
	_, err := h.store.AppendLogs(context.Background(), rec.JobID, batch)
	require.NoError(h.t, err)
}

func running(jobID string) jobs.Record {
	return jobs.Record{JobID: jobID, Status: jobs.StatusRunning, Created: 1610064000000}
}

func TestResponder_StatusRequest(t *testing.T) {
	h := newHarness(t, Options{})
	h.seed(running("job-1"))

	h.request(api.TopicRequestJobStatus, "job-1", api.JobRequest{JobID: "job-1"})

	msg := h.expect(api.TopicJobStatus)
	var payload api.StatusMessage
	require.NoError(t, msg.Decode(&payload))
	rec, err := jobs.ParseRecord(payload.JobState)
	require.NoError(t, err)
	assert.Equal(t, "job-1", rec.JobID)
	assert.Equal(t, jobs.StatusRunning, rec.Status)
}

func TestResponder_UpdateRequestForUnknownJob(t *testing.T) {
	h := newHarness(t, Options{})

	h.request(api.TopicRequestJobUpdate, "missing", api.JobRequest{JobID: "missing"})

	msg := h.expect(api.TopicJobDoesNotExist)
	assert.Equal(t, "missing", msg.JobID)
}

func TestResponder_LatestLogs(t *testing.T) {
	h := newHarness(t, Options{PageSize: 2})
	h.seed(running("job-1"), "a", "b", "c")

	h.request(api.TopicRequestLatestJobLog, "job-1", api.LogRequest{JobID: "job-1", RequestID: "req-7"})

	var payload api.LogsMessage
	require.NoError(t, h.expect(api.TopicJobLogs).Decode(&payload))
	assert.Equal(t, "req-7", payload.RequestID)
	assert.Equal(t, 1, payload.Logs.First)
	assert.Equal(t, 3, payload.Logs.MaxLines)
	require.Len(t, payload.Logs.Lines, 2)
	assert.Equal(t, "b", payload.Logs.Lines[0].Line)
	assert.Equal(t, 2, payload.Logs.Lines[0].LinePos)
}

func TestResponder_LogsFromFirstLine(t *testing.T) {
	h := newHarness(t, Options{})
	h.seed(running("job-1"), "a", "b", "c")

	first := 1
	h.request(api.TopicRequestJobLog, "job-1", api.LogRequest{JobID: "job-1", Options: api.LogOptions{FirstLine: &first}})

	var payload api.LogsMessage
	require.NoError(t, h.expect(api.TopicJobLogs).Decode(&payload))
	assert.Equal(t, 1, payload.Logs.First)
	require.Len(t, payload.Logs.Lines, 2)
	assert.Equal(t, "c", payload.Logs.Lines[1].Line)
}

func TestResponder_DeletedLogs(t *testing.T) {
	h := newHarness(t, Options{})
	h.seed(running("job-1"), "a")
	require.NoError(t, h.store.DeleteLogs(context.Background(), "job-1"))

	h.request(api.TopicRequestJobLog, "job-1", api.LogRequest{JobID: "job-1"})

	h.expect(api.TopicJobLogDeleted)
}

func TestResponder_InfoRequest(t *testing.T) {
	h := newHarness(t, Options{})
	require.NoError(t, h.store.UpsertJobInfo(context.Background(), jobs.Info{JobID: "job-1", JobParams: []map[string]any{{"x": 1}}, AppName: "kb_uploader"}))

	h.request(api.TopicRequestJobInfo, "job-1", api.JobRequest{JobID: "job-1"})

	var payload api.InfoMessage
	require.NoError(t, h.expect(api.TopicJobInfo).Decode(&payload))
	info, err := jobs.ParseInfo(payload.JobInfo)
	require.NoError(t, err)
	assert.Equal(t, "kb_uploader", info.AppName)
}

func TestResponder_MissingInfoIsSilent(t *testing.T) {
	h := newHarness(t, Options{})

	h.request(api.TopicRequestJobInfo, "job-1", api.JobRequest{JobID: "job-1"})

	h.expectNothing()
}

func TestResponder_RateLimited(t *testing.T) {
	h := newHarness(t, Options{Limiter: NewLimiter(0.001, 1)})
	h.seed(running("job-1"))

	h.request(api.TopicRequestJobStatus, "job-1", nil)
	h.expect(api.TopicJobStatus)

	h.request(api.TopicRequestJobStatus, "job-1", nil)
	h.expectNothing()
}

func TestResponder_StoreErrorSendsNothing(t *testing.T) {
	h := newHarness(t, Options{})
	h.store.getErr = errors.New("connection refused")

	h.request(api.TopicRequestJobStatus, "job-1", nil)

	h.expectNothing()
}

func TestToAPIPage(t *testing.T) {
	created := time.UnixMilli(1610064000123)
	page := ToAPIPage(&store.LogPage{
		First: 4,
		Total: 6,
		Lines: []store.LogLine{{Index: 4, Line: "x", CreatedAt: created}, {Index: 5, Line: "y", IsError: true}},
	})

	assert.Equal(t, 4, page.First)
	assert.Equal(t, 6, page.MaxLines)
	assert.Equal(t, api.LogLine{Line: "x", LinePos: 5, TS: 1610064000123}, page.Lines[0])
	assert.Equal(t, api.LogLine{Line: "y", IsError: true, LinePos: 6}, page.Lines[1])

	empty := ToAPIPage(nil)
	assert.NotNil(t, empty.Lines)
	assert.Empty(t, empty.Lines)
}
