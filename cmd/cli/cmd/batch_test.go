package cmd

import (
	"strings"
	"testing"

	"jobwatch/internal/jobs"
)

func TestBatchCommand_FollowsChildren(t *testing.T) {
	resetViper()

	failed := completedJob("child-2")
	failed.Status = jobs.StatusError

	backend := newFakeBackend()
	backend.states["parent"] = jobs.Record{JobID: "parent", Status: jobs.StatusRunning, Created: msCreated, BatchJob: true, ChildJobs: []string{"child-1", "child-2"}}
	backend.states["child-1"] = completedJob("child-1")
	backend.states["child-2"] = failed
	backend.infos["parent"] = jobs.Info{JobID: "parent", Description: "Nightly import"}
	backend.infos["child-1"] = jobs.Info{JobID: "child-1", JobParams: []map[string]any{{"x": 1}}, Description: "Import reads"}
	useBackend(t, backend)

	output, err := runCommand(t, "batch", "parent")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	for _, want := range []string{"NAME", "Nightly import", "Import reads", "child-2", "retry", "batch job finished: 1 success, 1 failed"} {
		if !strings.Contains(output, want) {
			t.Errorf("expected %q, got: %s", want, output)
		}
	}
}

func TestBatchCommand_NotBatch(t *testing.T) {
	resetViper()

	backend := newFakeBackend()
	backend.states["job-1"] = completedJob("job-1")
	useBackend(t, backend)

	output, err := runCommand(t, "batch", "job-1")
	if err == nil {
		t.Fatal("expected an error for a plain job")
	}
	if !strings.Contains(output, "is not a batch job") {
		t.Errorf("unexpected output: %s", output)
	}
}
