package responder

import (
	"context"
	"sync"

	"jobwatch/internal/jobs"
	"jobwatch/internal/store"
)

// memStore is an in-memory Store for tests.
type memStore struct {
	mu      sync.Mutex
	states  map[string]jobs.Record
	infos   map[string]jobs.Info
	logs    map[string][]store.LogLine
	deleted map[string]bool

	// forced errors
	getErr error
}

func newMemStore() *memStore {
	return &memStore{
		states:  map[string]jobs.Record{},
		infos:   map[string]jobs.Info{},
		logs:    map[string][]store.LogLine{},
		deleted: map[string]bool{},
	}
}

func (m *memStore) GetJobState(_ context.Context, jobID string) (*jobs.Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.getErr != nil {
		return nil, m.getErr
	}
	rec, ok := m.states[jobID]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &rec, nil
}

func (m *memStore) ListJobStates(_ context.Context, ids []string) ([]jobs.Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []jobs.Record
	for _, id := range ids {
		if rec, ok := m.states[id]; ok {
			out = append(out, rec)
		}
	}
	return out, nil
}

func (m *memStore) UpsertJobState(_ context.Context, rec jobs.Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.states[rec.JobID] = rec
	return nil
}

func (m *memStore) GetJobInfo(_ context.Context, jobID string) (*jobs.Info, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	info, ok := m.infos[jobID]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &info, nil
}

func (m *memStore) UpsertJobInfo(_ context.Context, info jobs.Info) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.infos[info.JobID] = info
	return nil
}

func (m *memStore) CountByStatus(_ context.Context) (map[jobs.Status]int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := map[jobs.Status]int64{}
	for _, rec := range m.states {
		out[rec.Status]++
	}
	return out, nil
}

func (m *memStore) check(jobID string) error {
	if _, ok := m.states[jobID]; !ok {
		return store.ErrNotFound
	}
	if m.deleted[jobID] {
		return store.ErrLogsDeleted
	}
	return nil
}

func (m *memStore) GetLogs(_ context.Context, jobID string, firstLine, limit int) (*store.LogPage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.check(jobID); err != nil {
		return nil, err
	}
	all := m.logs[jobID]
	page := &store.LogPage{First: firstLine, Total: len(all)}
	for i := firstLine; i < len(all) && i < firstLine+limit; i++ {
		page.Lines = append(page.Lines, all[i])
	}
	return page, nil
}

func (m *memStore) GetLatestLogs(ctx context.Context, jobID string, limit int) (*store.LogPage, error) {
	m.mu.Lock()
	first := max(len(m.logs[jobID])-limit, 0)
	m.mu.Unlock()
	return m.GetLogs(ctx, jobID, first, limit)
}

func (m *memStore) AppendLogs(_ context.Context, jobID string, lines []store.LogLine) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.states[jobID]; !ok {
		return 0, store.ErrNotFound
	}
	if m.deleted[jobID] {
		m.deleted[jobID] = false
		m.logs[jobID] = nil
	}
	for _, l := range lines {
		l.Index = len(m.logs[jobID])
		m.logs[jobID] = append(m.logs[jobID], l)
	}
	return len(m.logs[jobID]), nil
}

func (m *memStore) DeleteLogs(_ context.Context, jobID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.states[jobID]; !ok {
		return store.ErrNotFound
	}
	m.deleted[jobID] = true
	delete(m.logs, jobID)
	return nil
}
