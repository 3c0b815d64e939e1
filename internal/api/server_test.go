package api

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"chunkscribe/internal/deps"
	"chunkscribe/internal/history"
	"chunkscribe/internal/media"
	"chunkscribe/internal/segment"
	"chunkscribe/internal/services/transcription"
	"chunkscribe/internal/workflow"
)

type stubProber struct{}

func (stubProber) Probe(_ context.Context, path string) (media.File, error) {
	return media.File{Path: path, DurationSeconds: 100, SizeBytes: 1000}, nil
}

type stubExtractor struct{}

func (stubExtractor) EncodeRange(_ context.Context, _ string, start, end float64, dest string) error {
	return os.WriteFile(dest, make([]byte, int(end-start)), 0o644)
}

type stubTranscriber struct {
	block bool
}

func (s stubTranscriber) Transcribe(ctx context.Context, _ segment.Audio, _ transcription.Options) (transcription.Result, error) {
	if s.block {
		<-ctx.Done()
		return transcription.Result{}, ctx.Err()
	}
	return transcription.Result{Text: "hello world"}, nil
}

type fixture struct {
	router  http.Handler
	manager *Manager
	source  string
	outDir  string
}

func newFixture(t *testing.T, token string, tx transcription.Transcriber) *fixture {
	t.Helper()
	base := t.TempDir()
	store, err := history.Open(filepath.Join(base, "history.db"))
	if err != nil {
		t.Fatalf("history.Open failed: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	source := filepath.Join(base, "talk.mp3")
	if err := os.WriteFile(source, make([]byte, 1000), 0o644); err != nil {
		t.Fatalf("write source: %v", err)
	}
	outDir := filepath.Join(base, "out")

	factory := func() (*workflow.Pipeline, error) {
		return workflow.NewPipeline(workflow.Dependencies{
			Prober:      stubProber{},
			Planner:     segment.NewPlanner(segment.Options{}, segment.FixedCuts, nil),
			Extractor:   stubExtractor{},
			Transcriber: tx,
			History:     store,
		}, workflow.Settings{WorkRoot: filepath.Join(base, "work")}, nil)
	}
	manager := NewManager(factory, workflow.Options{
		Model:          "whisper-1",
		ByteLimit:      1 << 20,
		MaxConcurrency: 2,
		OutputDir:      outDir,
	}, store, nil)
	t.Cleanup(manager.Close)

	cfg := ServerConfig{
		Token:   token,
		Manager: manager,
		Dependencies: func(context.Context) []deps.Status {
			return []deps.Status{{Name: "FFmpeg", Command: "ffmpeg", Available: true}}
		},
	}
	return &fixture{router: NewRouter(cfg, nil), manager: manager, source: source, outDir: outDir}
}

func (f *fixture) do(t *testing.T, method, path, body, token string) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rr := httptest.NewRecorder()
	f.router.ServeHTTP(rr, req)
	return rr
}

func decodeRun(t *testing.T, rr *httptest.ResponseRecorder) Run {
	t.Helper()
	var resp RunResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode run response %q: %v", rr.Body.String(), err)
	}
	return resp.Run
}

func (f *fixture) waitFor(t *testing.T, id, token string, done func(Run) bool) Run {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		rr := f.do(t, http.MethodGet, "/api/runs/"+id, "", token)
		if rr.Code == http.StatusOK {
			if run := decodeRun(t, rr); done(run) {
				return run
			}
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("run %s did not reach the expected state", id)
	return Run{}
}

func TestHealthSkipsAuth(t *testing.T) {
	f := newFixture(t, "secret", stubTranscriber{})
	rr := f.do(t, http.MethodGet, "/health", "", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rr.Code)
	}
	var resp HealthResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode health: %v", err)
	}
	if resp.Status != "ok" || len(resp.Dependencies) != 1 {
		t.Fatalf("unexpected health payload: %+v", resp)
	}
	if rr.Header().Get("X-Request-ID") == "" {
		t.Fatal("expected X-Request-ID header")
	}
}

func TestAPIRequiresToken(t *testing.T) {
	f := newFixture(t, "secret", stubTranscriber{})
	if rr := f.do(t, http.MethodGet, "/api/runs", "", ""); rr.Code != http.StatusUnauthorized {
		t.Fatalf("missing token status = %d, want 401", rr.Code)
	}
	if rr := f.do(t, http.MethodGet, "/api/runs", "", "wrong"); rr.Code != http.StatusUnauthorized {
		t.Fatalf("wrong token status = %d, want 401", rr.Code)
	}
	if rr := f.do(t, http.MethodGet, "/api/runs", "", "secret"); rr.Code != http.StatusOK {
		t.Fatalf("valid token status = %d, want 200", rr.Code)
	}
}

func TestCreateRunRejectsBadRequests(t *testing.T) {
	f := newFixture(t, "", stubTranscriber{})
	tests := []struct {
		name string
		body string
	}{
		{"malformed json", `{"path":`},
		{"unknown field", `{"path":"` + f.source + `","speed":2}`},
		{"missing path", `{}`},
		{"relative path", `{"path":"talk.mp3"}`},
		{"missing file", `{"path":"/definitely/not/here.mp3"}`},
		{"bad language", `{"path":"` + f.source + `","language":"klingonese"}`},
		{"relative output", `{"path":"` + f.source + `","outputDir":"out"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := f.do(t, http.MethodPost, "/api/runs", tt.body, "")
			if rr.Code != http.StatusBadRequest {
				t.Fatalf("status = %d, want 400 (body %s)", rr.Code, rr.Body.String())
			}
		})
	}
	if f.manager.ActiveCount() != 0 {
		t.Fatal("rejected requests must not start runs")
	}
}

func TestRunLifecycle(t *testing.T) {
	f := newFixture(t, "", stubTranscriber{})

	rr := f.do(t, http.MethodPost, "/api/runs", `{"path":"`+f.source+`","language":"English"}`, "")
	if rr.Code != http.StatusAccepted {
		t.Fatalf("create status = %d, body %s", rr.Code, rr.Body.String())
	}
	created := decodeRun(t, rr)
	if created.ID == "" || created.Source != f.source {
		t.Fatalf("unexpected created run: %+v", created)
	}
	if loc := rr.Header().Get("Location"); loc != "/api/runs/"+created.ID {
		t.Fatalf("unexpected Location %q", loc)
	}

	run := f.waitFor(t, created.ID, "", func(r Run) bool { return !r.Active && r.State == string(workflow.StateDone) })
	if run.TranscriptPath != filepath.Join(f.outDir, "talk.txt") {
		t.Fatalf("unexpected transcript path %q", run.TranscriptPath)
	}
	if run.TotalSegments != 1 || run.CompletedSegments != 1 {
		t.Fatalf("unexpected segment counts: %+v", run)
	}

	rr = f.do(t, http.MethodGet, "/api/runs/"+created.ID+"/transcript", "", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("transcript status = %d", rr.Code)
	}
	if body := rr.Body.String(); body != "hello world\n" {
		t.Fatalf("unexpected transcript %q", body)
	}
	if rr := f.do(t, http.MethodGet, "/api/runs/"+created.ID+"/transcript?format=srt", "", ""); rr.Code != http.StatusNotFound {
		t.Fatalf("srt without cues status = %d, want 404", rr.Code)
	}

	rr = f.do(t, http.MethodGet, "/api/runs?limit=10", "", "")
	var list RunListResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &list); err != nil {
		t.Fatalf("decode list: %v", err)
	}
	if len(list.Runs) != 1 || list.Runs[0].ID != created.ID {
		t.Fatalf("unexpected list: %+v", list.Runs)
	}

	if rr := f.do(t, http.MethodDelete, "/api/runs/"+created.ID, "", ""); rr.Code != http.StatusConflict {
		t.Fatalf("cancel finished run status = %d, want 409", rr.Code)
	}
}

func TestCancelActiveRun(t *testing.T) {
	f := newFixture(t, "", stubTranscriber{block: true})

	rr := f.do(t, http.MethodPost, "/api/runs", `{"path":"`+f.source+`"}`, "")
	if rr.Code != http.StatusAccepted {
		t.Fatalf("create status = %d, body %s", rr.Code, rr.Body.String())
	}
	created := decodeRun(t, rr)
	if !created.Active {
		t.Fatal("new run should be active")
	}

	if rr := f.do(t, http.MethodDelete, "/api/runs/"+created.ID, "", ""); rr.Code != http.StatusAccepted {
		t.Fatalf("cancel status = %d, body %s", rr.Code, rr.Body.String())
	}
	run := f.waitFor(t, created.ID, "", func(r Run) bool { return !r.Active })
	if run.State != string(workflow.StateCancelled) {
		t.Fatalf("state = %s, want cancelled", run.State)
	}
	if _, err := os.Stat(filepath.Join(f.outDir, "talk.txt")); !os.IsNotExist(err) {
		t.Fatalf("cancelled run must not write a transcript (err=%v)", err)
	}
}

func TestUnknownRun(t *testing.T) {
	f := newFixture(t, "", stubTranscriber{})
	for _, method := range []string{http.MethodGet, http.MethodDelete} {
		if rr := f.do(t, method, "/api/runs/nope", "", ""); rr.Code != http.StatusNotFound {
			t.Fatalf("%s unknown run status = %d, want 404", method, rr.Code)
		}
	}
	if rr := f.do(t, http.MethodGet, "/api/runs?limit=-1", "", ""); rr.Code != http.StatusBadRequest {
		t.Fatalf("bad limit status = %d, want 400", rr.Code)
	}
}

func TestManagerRefusesAfterClose(t *testing.T) {
	f := newFixture(t, "", stubTranscriber{})
	f.manager.Close()
	if _, err := f.manager.Start(CreateRunRequest{Path: f.source}); err == nil {
		t.Fatal("expected error after Close")
	}
}
