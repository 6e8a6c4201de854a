package cmd

import (
	"strings"
	"testing"

	"jobwatch/internal/watcher"
	"jobwatch/pkg/api"
)

func TestLogsCommand_PagesThroughLog(t *testing.T) {
	resetViper()
	followLogs = false

	backend := newFakeBackend()
	backend.pageSize = 2
	backend.states["job-1"] = completedJob("job-1")
	backend.logs["job-1"] = []string{"Log line 1", "Log line 2", "Log line 3"}
	useBackend(t, backend)

	output, err := runCommand(t, "logs", "job-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	for _, want := range []string{"Log line 1", "Log line 2", "Log line 3"} {
		if !strings.Contains(output, want) {
			t.Errorf("expected %q, got: %s", want, output)
		}
	}
	if n := backend.requestCount(api.TopicRequestJobLog); n != 2 {
		t.Errorf("expected 2 page requests, got %d", n)
	}
}

func TestLogsCommand_EmptyLog(t *testing.T) {
	resetViper()
	followLogs = false

	backend := newFakeBackend()
	backend.states["job-1"] = completedJob("job-1")
	useBackend(t, backend)

	output, err := runCommand(t, "logs", "job-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(output, watcher.MessageNoLogs) {
		t.Errorf("expected no logs message, got: %s", output)
	}
}

func TestLogsCommand_DeletedLog(t *testing.T) {
	resetViper()
	followLogs = false

	backend := newFakeBackend()
	backend.states["job-1"] = completedJob("job-1")
	backend.deleted["job-1"] = true
	useBackend(t, backend)

	output, err := runCommand(t, "logs", "job-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(output, watcher.MessageNoLogs) {
		t.Errorf("expected no logs message, got: %s", output)
	}
}

func TestLogsCommand_Follow(t *testing.T) {
	resetViper()
	defer func() { followLogs = false }()

	backend := newFakeBackend()
	backend.states["job-1"] = completedJob("job-1")
	backend.logs["job-1"] = []string{"done"}
	useBackend(t, backend)

	output, err := runCommand(t, "logs", "job-1", "--follow")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(output, "done") {
		t.Errorf("expected log line, got: %s", output)
	}
	if strings.Contains(output, "Finished with") {
		t.Errorf("status lines should be hidden, got: %s", output)
	}
}
