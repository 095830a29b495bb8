package memengine_test

import (
	"context"
	"testing"

	"spate/internal/engine"
	"spate/internal/engine/memengine"
)

func TestAddPauseResumeRemove(t *testing.T) {
	e := memengine.New()
	ctx := context.Background()

	var changes []engine.StatusChange
	e.OnStatusChange(func(c engine.StatusChange) { changes = append(changes, c) })

	result, err := e.Execute(ctx, engine.Command{Op: engine.OpAdd, Payload: map[string]any{"name": "fedora.iso"}})
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	jobID := result.(map[string]any)["job_id"].(string)

	if _, err := e.Execute(ctx, engine.Command{Op: engine.OpPause, JobID: jobID}); err != nil {
		t.Fatalf("pause: %v", err)
	}
	status, err := e.Execute(ctx, engine.Command{Op: engine.OpStatus, JobID: jobID})
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if status.(map[string]any)["state"] != "paused" {
		t.Fatalf("state = %v, want paused", status.(map[string]any)["state"])
	}

	if _, err := e.Execute(ctx, engine.Command{Op: engine.OpResume, JobID: jobID}); err != nil {
		t.Fatalf("resume: %v", err)
	}
	if _, err := e.Execute(ctx, engine.Command{Op: engine.OpRemove, JobID: jobID}); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if _, err := e.Execute(ctx, engine.Command{Op: engine.OpStatus, JobID: jobID}); err == nil {
		t.Fatal("status of removed job succeeded")
	}

	if len(changes) != 3 {
		t.Fatalf("status changes = %d, want 3", len(changes))
	}
	if changes[0].State != "queued" || changes[1].State != "paused" || changes[2].State != "running" {
		t.Fatalf("change sequence = %+v", changes)
	}
}

func TestListSorted(t *testing.T) {
	e := memengine.New()
	ctx := context.Background()

	for _, name := range []string{"a.iso", "b.iso"} {
		if _, err := e.Execute(ctx, engine.Command{Op: engine.OpAdd, Payload: map[string]any{"name": name}}); err != nil {
			t.Fatalf("add %s: %v", name, err)
		}
	}
	result, err := e.Execute(ctx, engine.Command{Op: engine.OpList})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	views := result.([]map[string]any)
	if len(views) != 2 || views[0]["job_id"] != "job-1" || views[1]["job_id"] != "job-2" {
		t.Fatalf("list = %+v", views)
	}
}

func TestUnknownJobAndOp(t *testing.T) {
	e := memengine.New()
	ctx := context.Background()

	if _, err := e.Execute(ctx, engine.Command{Op: engine.OpPause, JobID: "ghost"}); err == nil {
		t.Fatal("pause of unknown job succeeded")
	}
	if _, err := e.Execute(ctx, engine.Command{Op: "defrag"}); err == nil {
		t.Fatal("unknown op succeeded")
	}
	if _, err := e.Execute(ctx, engine.Command{Op: engine.OpAdd}); err == nil {
		t.Fatal("add without name succeeded")
	}
}
