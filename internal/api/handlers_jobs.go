package api

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"vid2doc/internal/queue"
)

// jobSnapshot mirrors the webhook payload so polling and push callers see
// the same shape.
type jobSnapshot struct {
	JobID    string          `json:"jobId"`
	Status   string          `json:"status"`
	Progress queue.Progress  `json:"progress"`
	Result   json.RawMessage `json:"result,omitempty"`
	Error    string          `json:"error,omitempty"`
}

func snapshotJob(job *queue.Job) jobSnapshot {
	snapshot := jobSnapshot{
		JobID:    job.ID,
		Status:   string(job.Status),
		Progress: job.Progress,
		Error:    job.ErrorMessage,
	}
	if job.ResultJSON != "" {
		snapshot.Result = json.RawMessage(job.ResultJSON)
	}
	return snapshot
}

func (s *Server) handleJob(w http.ResponseWriter, r *http.Request) {
	jobID := mux.Vars(r)["jobId"]
	job, err := s.store.GetByID(r.Context(), jobID)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if job == nil {
		s.writeJSON(w, http.StatusNotFound, map[string]string{"message": "Job not found"})
		return
	}
	s.writeJSON(w, http.StatusOK, snapshotJob(job))
}

func (s *Server) handleGetAllJobs(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	jobs, err := s.store.ListRecent(r.Context(), limit)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	snapshots := make([]jobSnapshot, 0, len(jobs))
	for _, job := range jobs {
		snapshots = append(snapshots, snapshotJob(job))
	}
	s.writeJSON(w, http.StatusOK, snapshots)
}
