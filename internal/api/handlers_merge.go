package api

import (
	"encoding/json"
	"net/http"
	"net/url"
	"sort"
	"strings"

	"vid2doc/internal/guide"
	"vid2doc/internal/logging"
	"vid2doc/internal/queue"
	"vid2doc/internal/workflow"
)

type mergeRequest struct {
	ProjectID string                `json:"projectId"`
	Steps     []guide.ProcessedStep `json:"steps"`
}

type mergeResponse struct {
	guide.ProcessedStep
	ProjectID string `json:"projectId"`
}

// handleMergeSteps validates and merges a run of consecutive steps. The merge
// runs synchronously; a job row is still recorded so the result shows up in
// the job listing, created directly in processing so the workflow manager
// cannot claim it.
func (s *Server) handleMergeSteps(w http.ResponseWriter, r *http.Request) {
	if s.merger == nil {
		s.writeError(w, http.StatusServiceUnavailable, "merging is not configured")
		return
	}

	var body mergeRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	projectID := body.ProjectID
	if projectID == "" && len(body.Steps) > 0 {
		projectID = extractProjectID(body.Steps[0].VideoPath)
	}
	if len(body.Steps) == 0 || projectID == "" {
		s.writeError(w, http.StatusBadRequest, "Steps or projectId is missing")
		return
	}

	steps := make([]guide.ProcessedStep, len(body.Steps))
	copy(steps, body.Steps)
	sort.SliceStable(steps, func(i, j int) bool { return steps[i].Timestamp < steps[j].Timestamp })
	if !guide.ValidConsecutive(steps) {
		s.writeError(w, http.StatusBadRequest, "Steps are not consecutive or invalid")
		return
	}

	inputJSON, err := json.Marshal(workflow.MergeInput{ProjectID: projectID, Steps: steps})
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	job, err := s.store.NewJob(r.Context(), queue.NewJobParams{
		Kind:          queue.KindMerge,
		InputJSON:     string(inputJSON),
		InitialStatus: queue.StatusProcessing,
	})
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	merged, err := s.merger.MergeSteps(r.Context(), steps, projectID, job.ID)
	if err != nil {
		s.logger.Error("merge failed", logging.FieldJobID, job.ID, logging.Error(err))
		if markErr := s.store.MarkFailed(r.Context(), job.ID, err.Error()); markErr != nil {
			s.logger.Error("failed to record merge failure", logging.FieldJobID, job.ID, logging.Error(markErr))
		}
		s.writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error":   "Failed to merge steps",
			"message": err.Error(),
		})
		return
	}

	resultJSON, err := json.Marshal(merged)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if err := s.store.MarkCompleted(r.Context(), job.ID, string(resultJSON)); err != nil {
		s.logger.Error("failed to record merge completion", logging.FieldJobID, job.ID, logging.Error(err))
	}
	s.writeJSON(w, http.StatusOK, mergeResponse{ProcessedStep: merged, ProjectID: projectID})
}

// extractProjectID pulls the project segment out of a stored clip URL, which
// is keyed as <projectId>/videos/<name>.
func extractProjectID(clipURL string) string {
	parsed, err := url.Parse(clipURL)
	if err != nil {
		return ""
	}
	segments := strings.Split(strings.Trim(parsed.Path, "/"), "/")
	if len(segments) == 0 || segments[0] == "" {
		return ""
	}
	return segments[0]
}
