package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"os"
	"path/filepath"

	"github.com/google/uuid"

	"vid2doc/internal/logging"
	"vid2doc/internal/queue"
	"vid2doc/internal/sources"
	"vid2doc/internal/workflow"
)

// submitRequest carries the caller's submission body for the URL routes and
// the non-file fields of the multipart route.
type submitRequest struct {
	URL                    string          `json:"url"`
	URLs                   []string        `json:"urls"`
	PreferredNumberOfSteps string          `json:"preferredNumberOfSteps"`
	PreferredLanguage      string          `json:"preferredLanguage"`
	PreferredTonality      string          `json:"preferredTonality"`
	CallbackURL            string          `json:"callbackUrl"`
	WebhookSecret          string          `json:"webhookSecret"`
	CreatorInfo            json.RawMessage `json:"creatorInfo"`
}

func (r submitRequest) options() workflow.Options {
	return workflow.Options{
		PreferredNumberOfSteps: r.PreferredNumberOfSteps,
		PreferredLanguage:      r.PreferredLanguage,
		PreferredTonality:      r.PreferredTonality,
		CallbackURL:            r.CallbackURL,
		WebhookSecret:          r.WebhookSecret,
		CreatorInfo:            r.CreatorInfo,
	}
}

type acceptedResponse struct {
	JobID   string `json:"jobId"`
	Status  string `json:"status"`
	Message string `json:"message"`
}

type multiURLEntry struct {
	JobID     string `json:"jobId"`
	MediaPath string `json:"mediaPath"`
	Status    string `json:"status"`
	Message   string `json:"message"`
}

func (s *Server) handleWithURL(w http.ResponseWriter, r *http.Request) {
	var body submitRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if body.URL == "" {
		s.writeError(w, http.StatusBadRequest, "Video URL is required")
		return
	}
	kind := sources.Classify(body.URL)
	if kind == sources.KindInvalid {
		s.writeError(w, http.StatusBadRequest, "Invalid video URL. Only Loom and YouTube URLs are supported.")
		return
	}

	optionsJSON, err := body.options().Encode()
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	job, err := s.store.NewJob(r.Context(), queue.NewJobParams{
		Kind:        queue.KindVideo,
		SourceURL:   body.URL,
		SourceKind:  string(kind),
		OptionsJSON: optionsJSON,
	})
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.writeJSON(w, http.StatusAccepted, acceptedResponse{
		JobID:   job.ID,
		Status:  string(job.Status),
		Message: "Processing started",
	})
}

func (s *Server) handleWithMultiURLs(w http.ResponseWriter, r *http.Request) {
	var body submitRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if len(body.URLs) == 0 {
		s.writeError(w, http.StatusBadRequest, "Array of video URLs is required")
		return
	}

	optionsJSON, err := body.options().Encode()
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	entries := make([]multiURLEntry, 0, len(body.URLs))
	valid := 0
	for _, rawURL := range body.URLs {
		kind := sources.Classify(rawURL)
		if kind == sources.KindInvalid {
			entries = append(entries, multiURLEntry{
				JobID:     "N/A",
				MediaPath: rawURL,
				Status:    string(queue.StatusFailed),
				Message:   "Invalid URL",
			})
			continue
		}
		job, err := s.store.NewJob(r.Context(), queue.NewJobParams{
			Kind:        queue.KindVideo,
			SourceURL:   rawURL,
			SourceKind:  string(kind),
			OptionsJSON: optionsJSON,
		})
		if err != nil {
			s.writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		valid++
		entries = append(entries, multiURLEntry{
			JobID:     job.ID,
			MediaPath: rawURL,
			Status:    string(job.Status),
			Message:   "Processing started",
		})
	}
	if valid == 0 {
		s.writeError(w, http.StatusBadRequest, "No valid URLs to process")
		return
	}
	s.writeJSON(w, http.StatusAccepted, map[string]any{
		"jobIds":  entries,
		"message": "Processing started for valid URLs",
	})
}

func (s *Server) handleWithFile(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.maxUploadBytes)
	file, _, err := r.FormFile("video")
	if err != nil {
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			s.writeError(w, http.StatusRequestEntityTooLarge, "Video file exceeds the upload size limit")
			return
		}
		s.writeError(w, http.StatusBadRequest, "Video file is required")
		return
	}
	defer file.Close()

	uploadPath := filepath.Join(s.uploadDir, uuid.NewString()+".mp4")
	if err := s.saveUpload(file, uploadPath); err != nil {
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			s.writeError(w, http.StatusRequestEntityTooLarge, "Video file exceeds the upload size limit")
			return
		}
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	body := submitRequest{
		PreferredNumberOfSteps: r.FormValue("preferredNumberOfSteps"),
		PreferredLanguage:      r.FormValue("preferredLanguage"),
		PreferredTonality:      r.FormValue("preferredTonality"),
		CallbackURL:            r.FormValue("callbackUrl"),
		WebhookSecret:          r.FormValue("webhookSecret"),
	}
	if creator := r.FormValue("creatorInfo"); creator != "" {
		body.CreatorInfo = json.RawMessage(creator)
	}
	optionsJSON, err := body.options().Encode()
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	job, err := s.store.NewJob(r.Context(), queue.NewJobParams{
		Kind:        queue.KindVideo,
		SourcePath:  uploadPath,
		OptionsJSON: optionsJSON,
	})
	if err != nil {
		os.Remove(uploadPath)
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.logger.Info("upload accepted", logging.FieldJobID, job.ID, logging.String("path", uploadPath))
	s.writeJSON(w, http.StatusAccepted, acceptedResponse{
		JobID:   job.ID,
		Status:  string(job.Status),
		Message: "Processing started",
	})
}

func (s *Server) saveUpload(src io.Reader, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	dst, err := os.Create(path)
	if err != nil {
		return err
	}
	defer dst.Close()
	if _, err := io.Copy(dst, src); err != nil {
		os.Remove(path)
		return err
	}
	return dst.Close()
}
