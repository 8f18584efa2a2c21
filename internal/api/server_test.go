package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"

	"vid2doc/internal/api"
	"vid2doc/internal/config"
	"vid2doc/internal/guide"
	"vid2doc/internal/queue"
	"vid2doc/internal/testsupport"
)

type fakeMerger struct {
	merged guide.ProcessedStep
	err    error

	steps     []guide.ProcessedStep
	projectID string
	sessionID string
}

func (f *fakeMerger) MergeSteps(_ context.Context, steps []guide.ProcessedStep, projectID, sessionID string) (guide.ProcessedStep, error) {
	f.steps = steps
	f.projectID = projectID
	f.sessionID = sessionID
	return f.merged, f.err
}

type testEnv struct {
	server *httptest.Server
	store  *queue.Store
	merger *fakeMerger
	cfg    *config.Config
}

func newTestEnv(t *testing.T, opts ...testsupport.ConfigOption) *testEnv {
	t.Helper()
	cfg := testsupport.NewConfig(t, opts...)
	store := testsupport.MustOpenStore(t, cfg)
	merger := &fakeMerger{}
	server := httptest.NewServer(api.New(cfg, store, merger, nil).Router())
	t.Cleanup(server.Close)
	return &testEnv{server: server, store: store, merger: merger, cfg: cfg}
}

func (e *testEnv) postJSON(t *testing.T, path string, body any) *http.Response {
	t.Helper()
	data, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal body: %v", err)
	}
	resp, err := http.Post(e.server.URL+path, "application/json", bytes.NewReader(data))
	if err != nil {
		t.Fatalf("POST %s: %v", path, err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decodeBody(t *testing.T, resp *http.Response, out any) {
	t.Helper()
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		t.Fatalf("decode response: %v", err)
	}
}

func TestWithURLAcceptsSupportedSource(t *testing.T) {
	env := newTestEnv(t)

	resp := env.postJSON(t, "/api/video/with-url", map[string]any{
		"url":               "https://youtu.be/dQw4w9WgXcQ",
		"preferredLanguage": "french",
		"callbackUrl":       "https://example.com/hook",
	})
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	var accepted struct {
		JobID   string `json:"jobId"`
		Status  string `json:"status"`
		Message string `json:"message"`
	}
	decodeBody(t, resp, &accepted)
	if accepted.Status != "pending" || accepted.Message != "Processing started" {
		t.Fatalf("unexpected ack: %+v", accepted)
	}

	job, err := env.store.GetByID(context.Background(), accepted.JobID)
	if err != nil || job == nil {
		t.Fatalf("job not stored: %v %v", job, err)
	}
	if job.SourceURL != "https://youtu.be/dQw4w9WgXcQ" || job.SourceKind != "youtube" {
		t.Fatalf("unexpected job source: %q %q", job.SourceURL, job.SourceKind)
	}
	if !strings.Contains(job.OptionsJSON, `"preferredLanguage":"french"`) {
		t.Fatalf("options not stored: %q", job.OptionsJSON)
	}
}

func TestWithURLRejectsUnsupportedSource(t *testing.T) {
	env := newTestEnv(t)

	resp := env.postJSON(t, "/api/video/with-url", map[string]string{"url": "https://vimeo.com/12345"})
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d", resp.StatusCode)
	}

	stats, err := env.store.Stats(context.Background())
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if stats.Total != 0 {
		t.Fatalf("rejected URL must not create a job, total = %d", stats.Total)
	}
}

func TestWithMultiURLsMarksInvalidEntries(t *testing.T) {
	env := newTestEnv(t)

	resp := env.postJSON(t, "/api/video/with-multi-urls", map[string]any{
		"urls": []string{"https://vimeo.com/12345", "https://www.loom.com/share/abc"},
	})
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	var body struct {
		JobIDs []struct {
			JobID     string `json:"jobId"`
			MediaPath string `json:"mediaPath"`
			Status    string `json:"status"`
			Message   string `json:"message"`
		} `json:"jobIds"`
	}
	decodeBody(t, resp, &body)
	if len(body.JobIDs) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(body.JobIDs))
	}
	if body.JobIDs[0].JobID != "N/A" || body.JobIDs[0].Status != "failed" || body.JobIDs[0].Message != "Invalid URL" {
		t.Fatalf("invalid entry marker wrong: %+v", body.JobIDs[0])
	}
	if body.JobIDs[1].JobID == "N/A" || body.JobIDs[1].Status != "pending" {
		t.Fatalf("valid entry wrong: %+v", body.JobIDs[1])
	}
}

func TestWithMultiURLsRejectsWhenNothingValid(t *testing.T) {
	env := newTestEnv(t)

	resp := env.postJSON(t, "/api/video/with-multi-urls", map[string]any{
		"urls": []string{"https://vimeo.com/1", "ftp://nowhere"},
	})
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d", resp.StatusCode)
	}
}

func TestWithFileStoresUploadAndQueuesJob(t *testing.T) {
	env := newTestEnv(t)

	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	part, err := writer.CreateFormFile("video", "demo.mp4")
	if err != nil {
		t.Fatalf("CreateFormFile: %v", err)
	}
	if _, err := part.Write([]byte("fake video bytes")); err != nil {
		t.Fatalf("write part: %v", err)
	}
	if err := writer.WriteField("preferredTonality", "casual"); err != nil {
		t.Fatalf("WriteField: %v", err)
	}
	writer.Close()

	resp, err := http.Post(env.server.URL+"/api/video/with-file", writer.FormDataContentType(), &buf)
	if err != nil {
		t.Fatalf("POST with-file: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusAccepted {
		payload, _ := io.ReadAll(resp.Body)
		t.Fatalf("status = %d body = %s", resp.StatusCode, payload)
	}

	var accepted struct {
		JobID string `json:"jobId"`
	}
	decodeBody(t, resp, &accepted)
	job, err := env.store.GetByID(context.Background(), accepted.JobID)
	if err != nil || job == nil {
		t.Fatalf("job not stored: %v %v", job, err)
	}
	if job.SourcePath == "" {
		t.Fatal("upload path not recorded")
	}
	data, err := os.ReadFile(job.SourcePath)
	if err != nil {
		t.Fatalf("read upload: %v", err)
	}
	if string(data) != "fake video bytes" {
		t.Fatalf("upload content mismatch: %q", data)
	}
	if !strings.Contains(job.OptionsJSON, `"preferredTonality":"casual"`) {
		t.Fatalf("form options not stored: %q", job.OptionsJSON)
	}
}

func TestWithFileRequiresVideoField(t *testing.T) {
	env := newTestEnv(t)

	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	writer.Close()
	resp, err := http.Post(env.server.URL+"/api/video/with-file", writer.FormDataContentType(), &buf)
	if err != nil {
		t.Fatalf("POST with-file: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d", resp.StatusCode)
	}
}

func TestMergeStepsReturnsMergedStep(t *testing.T) {
	env := newTestEnv(t)
	env.merger.merged = guide.ProcessedStep{
		SerialNumber:  2,
		Title:         "Open",
		Timestamp:     5,
		Description:   "Open the app and save.",
		VideoPath:     "https://cdn.example/project-7/merged/video_5_20.mp4",
		VideoDuration: 12,
	}

	resp := env.postJSON(t, "/api/video/merge-steps", map[string]any{
		"projectId": "project-7",
		"steps": []map[string]any{
			{"serialNumber": 3, "timestamp": 20, "videoPath": "https://cdn.example/project-7/videos/video_20.mp4"},
			{"serialNumber": 2, "timestamp": 5, "videoPath": "https://cdn.example/project-7/videos/video_5.mp4"},
		},
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	var merged struct {
		SerialNumber  int     `json:"serialNumber"`
		ProjectID     string  `json:"projectId"`
		VideoDuration float64 `json:"videoDuration"`
	}
	decodeBody(t, resp, &merged)
	if merged.ProjectID != "project-7" || merged.SerialNumber != 2 || merged.VideoDuration != 12 {
		t.Fatalf("unexpected merge response: %+v", merged)
	}
	if env.merger.steps[0].Timestamp != 5 || env.merger.steps[1].Timestamp != 20 {
		t.Fatalf("steps not sorted before merge: %+v", env.merger.steps)
	}

	// The synchronous merge still leaves a completed job row behind.
	job, err := env.store.GetByID(context.Background(), env.merger.sessionID)
	if err != nil || job == nil {
		t.Fatalf("merge job not stored: %v %v", job, err)
	}
	if job.Kind != queue.KindMerge || job.Status != queue.StatusCompleted {
		t.Fatalf("unexpected merge job state: %s %s", job.Kind, job.Status)
	}
}

func TestMergeStepsDerivesProjectFromClipURL(t *testing.T) {
	env := newTestEnv(t)

	resp := env.postJSON(t, "/api/video/merge-steps", map[string]any{
		"steps": []map[string]any{
			{"serialNumber": 1, "timestamp": 5, "videoPath": "https://cdn.example/project-9/videos/video_5.mp4"},
			{"serialNumber": 2, "timestamp": 20, "videoPath": "https://cdn.example/project-9/videos/video_20.mp4"},
		},
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if env.merger.projectID != "project-9" {
		t.Fatalf("project not derived from clip URL: %q", env.merger.projectID)
	}
}

func TestMergeStepsRejectsNonConsecutiveSteps(t *testing.T) {
	env := newTestEnv(t)

	resp := env.postJSON(t, "/api/video/merge-steps", map[string]any{
		"projectId": "project-7",
		"steps": []map[string]any{
			{"serialNumber": 2, "timestamp": 5},
			{"serialNumber": 5, "timestamp": 20},
		},
	})
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	var body struct {
		Error string `json:"error"`
	}
	decodeBody(t, resp, &body)
	if body.Error != "Steps are not consecutive or invalid" {
		t.Fatalf("unexpected error: %q", body.Error)
	}
}

func TestMergeStepsRecordsFailure(t *testing.T) {
	env := newTestEnv(t)
	env.merger.err = errors.New("clip download failed")

	resp := env.postJSON(t, "/api/video/merge-steps", map[string]any{
		"projectId": "project-7",
		"steps": []map[string]any{
			{"serialNumber": 1, "timestamp": 5},
			{"serialNumber": 2, "timestamp": 20},
		},
	})
	if resp.StatusCode != http.StatusInternalServerError {
		t.Fatalf("status = %d", resp.StatusCode)
	}

	job, err := env.store.GetByID(context.Background(), env.merger.sessionID)
	if err != nil || job == nil {
		t.Fatalf("merge job not stored: %v %v", job, err)
	}
	if job.Status != queue.StatusFailed || job.ErrorMessage != "clip download failed" {
		t.Fatalf("unexpected merge job state: %s %q", job.Status, job.ErrorMessage)
	}
}

func TestJobSnapshotAndNotFound(t *testing.T) {
	env := newTestEnv(t)
	job := testsupport.NewVideoJob(t, env.store, "https://youtu.be/abc")
	if err := env.store.MarkCompleted(context.Background(), job.ID, `{"title":"done"}`); err != nil {
		t.Fatalf("MarkCompleted: %v", err)
	}

	resp, err := http.Get(env.server.URL + "/api/video/job/" + job.ID)
	if err != nil {
		t.Fatalf("GET job: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	var snapshot struct {
		JobID  string          `json:"jobId"`
		Status string          `json:"status"`
		Result json.RawMessage `json:"result"`
	}
	decodeBody(t, resp, &snapshot)
	if snapshot.JobID != job.ID || snapshot.Status != "completed" || string(snapshot.Result) != `{"title":"done"}` {
		t.Fatalf("unexpected snapshot: %+v", snapshot)
	}

	missing, err := http.Get(env.server.URL + "/api/video/job/nope")
	if err != nil {
		t.Fatalf("GET missing job: %v", err)
	}
	defer missing.Body.Close()
	if missing.StatusCode != http.StatusNotFound {
		t.Fatalf("status = %d", missing.StatusCode)
	}
}

func TestGetAllJobsDefaultsToFive(t *testing.T) {
	env := newTestEnv(t)
	for i := 0; i < 7; i++ {
		testsupport.NewVideoJob(t, env.store, fmt.Sprintf("https://youtu.be/v%d", i))
	}

	resp, err := http.Get(env.server.URL + "/api/video/get-all-jobs")
	if err != nil {
		t.Fatalf("GET get-all-jobs: %v", err)
	}
	defer resp.Body.Close()
	var jobs []json.RawMessage
	decodeBody(t, resp, &jobs)
	if len(jobs) != 5 {
		t.Fatalf("expected default limit of 5, got %d", len(jobs))
	}
}

func TestBearerTokenGuardsVideoRoutes(t *testing.T) {
	env := newTestEnv(t, testsupport.WithAPIToken("sekret"))

	resp, err := http.Get(env.server.URL + "/api/video/test")
	if err != nil {
		t.Fatalf("GET test: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("unauthenticated status = %d", resp.StatusCode)
	}

	req, err := http.NewRequest(http.MethodGet, env.server.URL+"/api/video/test", nil)
	if err != nil {
		t.Fatalf("NewRequest: %v", err)
	}
	req.Header.Set("Authorization", "Bearer sekret")
	authed, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("authorized GET: %v", err)
	}
	defer authed.Body.Close()
	if authed.StatusCode != http.StatusOK {
		t.Fatalf("authorized status = %d", authed.StatusCode)
	}

	// The health probe stays open for load balancers.
	health, err := http.Get(env.server.URL + "/healthz")
	if err != nil {
		t.Fatalf("GET healthz: %v", err)
	}
	health.Body.Close()
	if health.StatusCode != http.StatusOK {
		t.Fatalf("health status = %d", health.StatusCode)
	}
}
