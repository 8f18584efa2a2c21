package workflow

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"

	"vid2doc/internal/guide"
	"vid2doc/internal/queue"
	"vid2doc/internal/services"
)

// stepMerger is the merge surface the runner depends on.
type stepMerger interface {
	MergeSteps(ctx context.Context, steps []guide.ProcessedStep, projectID, sessionID string) (guide.ProcessedStep, error)
}

// MergeRunner executes queued merge jobs.
type MergeRunner struct {
	merger stepMerger
}

// NewMergeRunner wires a runner around the merge service.
func NewMergeRunner(merger stepMerger) *MergeRunner {
	return &MergeRunner{merger: merger}
}

// Run merges the job's steps and returns the merged step as JSON.
func (r *MergeRunner) Run(ctx context.Context, job *queue.Job) (string, error) {
	var input MergeInput
	if err := json.Unmarshal([]byte(job.InputJSON), &input); err != nil {
		return "", fmt.Errorf("%w: decode merge input: %v", services.ErrValidation, err)
	}
	if len(input.Steps) == 0 {
		return "", fmt.Errorf("%w: merge job has no steps", services.ErrValidation)
	}

	sort.SliceStable(input.Steps, func(i, j int) bool {
		return input.Steps[i].Timestamp < input.Steps[j].Timestamp
	})
	if !guide.ValidConsecutive(input.Steps) {
		return "", fmt.Errorf("%w: steps are not consecutive", services.ErrValidation)
	}

	projectID := input.ProjectID
	if projectID == "" {
		projectID = job.ID
	}
	merged, err := r.merger.MergeSteps(ctx, input.Steps, projectID, job.ID)
	if err != nil {
		return "", err
	}

	resultJSON, err := json.Marshal(merged)
	if err != nil {
		return "", fmt.Errorf("encode merged step: %w", err)
	}
	return string(resultJSON), nil
}
