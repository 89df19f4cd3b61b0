package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/hibiken/asynq"

	"github.com/stemsplit/api/internal/config"
	apperrors "github.com/stemsplit/api/internal/errors"
	"github.com/stemsplit/api/internal/model"
	"github.com/stemsplit/api/internal/repository"
	"github.com/stemsplit/api/internal/service"
	"github.com/stemsplit/api/internal/storage"
)

type memJobRepo struct {
	jobs map[string]*model.Job
}

func (r *memJobRepo) Create(ctx context.Context, jobType model.JobType, input model.JobInput, params json.RawMessage) (*model.Job, error) {
	if !model.IsValidJobType(jobType) {
		return nil, apperrors.NewValidationError("invalid job type %q", jobType)
	}
	job := &model.Job{
		ID:        uuid.New().String(),
		Type:      jobType,
		Status:    model.JobStatusQueued,
		Input:     input,
		Params:    params,
		CreatedAt: time.Now().UTC(),
		UpdatedAt: time.Now().UTC(),
	}
	r.jobs[job.ID] = job
	return job, nil
}

func (r *memJobRepo) Get(ctx context.Context, id string) (*model.Job, error) {
	job, ok := r.jobs[id]
	if !ok {
		return nil, fmt.Errorf("%s: %w", id, apperrors.ErrJobNotFound)
	}
	return job, nil
}

func (r *memJobRepo) UpdateStatus(ctx context.Context, id string, status model.JobStatus, opts ...repository.UpdateOption) (*model.Job, error) {
	job, ok := r.jobs[id]
	if !ok {
		return nil, fmt.Errorf("%s: %w", id, apperrors.ErrJobNotFound)
	}
	job.Status = status
	for _, opt := range opts {
		opt(job)
	}
	return job, nil
}

type memAudioRepo struct {
	audio map[string]*model.Audio
}

func (r *memAudioRepo) Create(ctx context.Context, id, filename, filePath string) (*model.Audio, error) {
	a := &model.Audio{ID: id, Filename: filename, FilePath: filePath, CreatedAt: time.Now().UTC()}
	r.audio[id] = a
	return a, nil
}

func (r *memAudioRepo) Get(ctx context.Context, id string) (*model.Audio, error) {
	a, ok := r.audio[id]
	if !ok {
		return nil, fmt.Errorf("%s: %w", id, apperrors.ErrAudioNotFound)
	}
	return a, nil
}

type memAudioStore struct{}

func (memAudioStore) SaveAudio(ctx context.Context, audioID, filename string, data io.Reader) (string, error) {
	if _, err := io.Copy(io.Discard, data); err != nil {
		return "", err
	}
	return storage.AudioKey(audioID, filename), nil
}

func (memAudioStore) ResolveAudio(ctx context.Context, relPath string) (string, error) {
	return "/tmp/" + relPath, nil
}

type nopEnqueuer struct{}

func (nopEnqueuer) Enqueue(task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error) {
	return &asynq.TaskInfo{ID: uuid.New().String()}, nil
}

type testApp struct {
	app   *fiber.App
	jobs  *memJobRepo
	audio *memAudioRepo
}

func setupApp(t *testing.T) *testApp {
	t.Helper()

	jobs := &memJobRepo{jobs: make(map[string]*model.Job)}
	audio := &memAudioRepo{audio: make(map[string]*model.Audio)}

	validate := validator.New()
	jobService := service.NewJobService(jobs, audio, nopEnqueuer{}, config.WorkerConfig{Queue: "audio", MaxRetry: 3})
	audioService := service.NewAudioService(audio, memAudioStore{})

	jobHandler := NewJobHandler(jobService, validate)
	audioHandler := NewAudioHandler(audioService, validate, 50)

	app := fiber.New()
	api := app.Group("/api")
	api.Post("/audio", audioHandler.Upload)
	api.Post("/jobs", jobHandler.Create)
	api.Get("/jobs/:jobId", jobHandler.Get)

	return &testApp{app: app, jobs: jobs, audio: audio}
}

func (ta *testApp) seedAudio(t *testing.T) string {
	t.Helper()
	id := uuid.New().String()
	if _, err := ta.audio.Create(context.Background(), id, "song.mp3", "audio/"+id+"/song.mp3"); err != nil {
		t.Fatalf("seed audio: %v", err)
	}
	return id
}

func doJSON(t *testing.T, app *fiber.App, method, path, body string) *http.Response {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := app.Test(req, -1)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	return resp
}

func parseJSON(t *testing.T, resp *http.Response) map[string]interface{} {
	t.Helper()
	defer resp.Body.Close()
	var result map[string]interface{}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return result
}

func errorCode(t *testing.T, resp *http.Response) string {
	t.Helper()
	result := parseJSON(t, resp)
	errObj, ok := result["error"].(map[string]interface{})
	if !ok {
		t.Fatalf("expected error envelope, got %v", result)
	}
	code, _ := errObj["code"].(string)
	return code
}

func TestCreateJob_Endpoint(t *testing.T) {
	ta := setupApp(t)
	audioID := ta.seedAudio(t)

	body := fmt.Sprintf(`{"type": "stem_separation", "input": {"audio_id": "%s"}}`, audioID)
	resp := doJSON(t, ta.app, http.MethodPost, "/api/jobs", body)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("status = %d, want 201", resp.StatusCode)
	}

	result := parseJSON(t, resp)
	if result["job_id"] == nil || result["job_id"] == "" {
		t.Error("expected job_id in response")
	}
	if result["status"] != "queued" {
		t.Errorf("status = %v, want queued", result["status"])
	}
}

func TestCreateJob_InvalidBody(t *testing.T) {
	ta := setupApp(t)

	resp := doJSON(t, ta.app, http.MethodPost, "/api/jobs", `{not json`)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", resp.StatusCode)
	}
	if code := errorCode(t, resp); code != "VALIDATION_ERROR" {
		t.Errorf("code = %q", code)
	}
}

func TestCreateJob_MissingAudioID(t *testing.T) {
	ta := setupApp(t)

	resp := doJSON(t, ta.app, http.MethodPost, "/api/jobs", `{"type": "stem_separation", "input": {}}`)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", resp.StatusCode)
	}
}

func TestCreateJob_UnknownAudio(t *testing.T) {
	ta := setupApp(t)

	body := fmt.Sprintf(`{"type": "stem_separation", "input": {"audio_id": "%s"}}`, uuid.New().String())
	resp := doJSON(t, ta.app, http.MethodPost, "/api/jobs", body)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", resp.StatusCode)
	}
}

func TestCreateJob_UnknownType(t *testing.T) {
	ta := setupApp(t)
	audioID := ta.seedAudio(t)

	body := fmt.Sprintf(`{"type": "remix", "input": {"audio_id": "%s"}}`, audioID)
	resp := doJSON(t, ta.app, http.MethodPost, "/api/jobs", body)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", resp.StatusCode)
	}
}

func TestGetJob_Endpoint(t *testing.T) {
	ta := setupApp(t)
	audioID := ta.seedAudio(t)

	body := fmt.Sprintf(`{"type": "midi_conversion", "input": {"audio_id": "%s"}, "params": {"save_notes": true}}`, audioID)
	created := parseJSON(t, doJSON(t, ta.app, http.MethodPost, "/api/jobs", body))
	jobID, _ := created["job_id"].(string)

	resp := doJSON(t, ta.app, http.MethodGet, "/api/jobs/"+jobID, "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	result := parseJSON(t, resp)
	if result["job_id"] != jobID {
		t.Errorf("job_id = %v, want %s", result["job_id"], jobID)
	}
	if result["type"] != "midi_conversion" {
		t.Errorf("type = %v", result["type"])
	}
}

func TestGetJob_NotFoundEndpoint(t *testing.T) {
	ta := setupApp(t)

	resp := doJSON(t, ta.app, http.MethodGet, "/api/jobs/"+uuid.New().String(), "")
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", resp.StatusCode)
	}
	if code := errorCode(t, resp); code != "NOT_FOUND" {
		t.Errorf("code = %q", code)
	}
}

func uploadRequest(t *testing.T, filename string, content []byte) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	part, err := w.CreateFormFile("file", filename)
	if err != nil {
		t.Fatalf("create form file: %v", err)
	}
	if _, err := part.Write(content); err != nil {
		t.Fatalf("write form file: %v", err)
	}
	w.Close()

	req := httptest.NewRequest(http.MethodPost, "/api/audio", &buf)
	req.Header.Set("Content-Type", w.FormDataContentType())
	return req
}

func TestUploadAudio_Endpoint(t *testing.T) {
	ta := setupApp(t)

	resp, err := ta.app.Test(uploadRequest(t, "my song.mp3", []byte("ID3fakeaudio")), -1)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("status = %d, want 201", resp.StatusCode)
	}

	result := parseJSON(t, resp)
	audioID, _ := result["audio_id"].(string)
	if audioID == "" {
		t.Fatal("expected audio_id in response")
	}
	if result["filename"] != "my_song.mp3" {
		t.Errorf("filename = %v, want sanitized my_song.mp3", result["filename"])
	}
	if _, ok := ta.audio.audio[audioID]; !ok {
		t.Error("audio record not registered")
	}
}

func TestUploadAudio_UnsupportedExtension(t *testing.T) {
	ta := setupApp(t)

	resp, err := ta.app.Test(uploadRequest(t, "notes.txt", []byte("hello")), -1)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", resp.StatusCode)
	}
}

func TestUploadAudio_MissingFile(t *testing.T) {
	ta := setupApp(t)

	req := httptest.NewRequest(http.MethodPost, "/api/audio", nil)
	resp, err := ta.app.Test(req, -1)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", resp.StatusCode)
	}
}
