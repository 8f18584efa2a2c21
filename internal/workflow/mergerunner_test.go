package workflow

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"vid2doc/internal/guide"
	"vid2doc/internal/queue"
	"vid2doc/internal/services"
)

type fakeMerger struct {
	steps     []guide.ProcessedStep
	projectID string
	sessionID string
	merged    guide.ProcessedStep
	err       error
}

func (f *fakeMerger) MergeSteps(_ context.Context, steps []guide.ProcessedStep, projectID, sessionID string) (guide.ProcessedStep, error) {
	f.steps = steps
	f.projectID = projectID
	f.sessionID = sessionID
	return f.merged, f.err
}

func mergeJob(t *testing.T, input MergeInput) *queue.Job {
	t.Helper()
	data, err := json.Marshal(input)
	if err != nil {
		t.Fatalf("marshal input: %v", err)
	}
	return &queue.Job{ID: "merge-1", Kind: queue.KindMerge, InputJSON: string(data)}
}

func TestMergeRunnerSortsAndMerges(t *testing.T) {
	merger := &fakeMerger{merged: guide.ProcessedStep{SerialNumber: 2, Title: "merged", VideoDuration: 18}}
	runner := NewMergeRunner(merger)

	// Out of order on the wire; serials stay contiguous once sorted.
	job := mergeJob(t, MergeInput{
		ProjectID: "project-7",
		Steps: []guide.ProcessedStep{
			{SerialNumber: 3, Timestamp: 20},
			{SerialNumber: 2, Timestamp: 5},
		},
	})
	resultJSON, err := runner.Run(context.Background(), job)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if merger.projectID != "project-7" || merger.sessionID != "merge-1" {
		t.Fatalf("unexpected merge target: %s/%s", merger.projectID, merger.sessionID)
	}
	if merger.steps[0].Timestamp != 5 || merger.steps[1].Timestamp != 20 {
		t.Fatalf("steps not sorted by timestamp: %+v", merger.steps)
	}

	var merged guide.ProcessedStep
	if err := json.Unmarshal([]byte(resultJSON), &merged); err != nil {
		t.Fatalf("result not JSON: %v", err)
	}
	if merged.Title != "merged" || merged.VideoDuration != 18 {
		t.Fatalf("unexpected merged step: %+v", merged)
	}
}

func TestMergeRunnerRejectsNonConsecutiveSteps(t *testing.T) {
	runner := NewMergeRunner(&fakeMerger{})
	job := mergeJob(t, MergeInput{
		Steps: []guide.ProcessedStep{
			{SerialNumber: 2, Timestamp: 5},
			{SerialNumber: 5, Timestamp: 20},
		},
	})
	if _, err := runner.Run(context.Background(), job); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestMergeRunnerRejectsEmptyInput(t *testing.T) {
	runner := NewMergeRunner(&fakeMerger{})
	job := &queue.Job{ID: "merge-2", Kind: queue.KindMerge, InputJSON: `{"steps":[]}`}
	if _, err := runner.Run(context.Background(), job); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	job.InputJSON = "not json"
	if _, err := runner.Run(context.Background(), job); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error for bad JSON, got %v", err)
	}
}

func TestMergeRunnerFallsBackToJobID(t *testing.T) {
	merger := &fakeMerger{}
	runner := NewMergeRunner(merger)
	job := mergeJob(t, MergeInput{
		Steps: []guide.ProcessedStep{
			{SerialNumber: 1, Timestamp: 5},
			{SerialNumber: 2, Timestamp: 20},
		},
	})
	if _, err := runner.Run(context.Background(), job); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if merger.projectID != "merge-1" {
		t.Fatalf("project fallback = %q", merger.projectID)
	}
}
