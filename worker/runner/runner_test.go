package runner

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"

	"mediaFetcher/api/kafka"
	"mediaFetcher/api/models"
	"mediaFetcher/api/repository"
	"mediaFetcher/worker/fetcher"
	"mediaFetcher/worker/pool"
)

type mockFetcher struct {
	fetchFunc func(ctx context.Context, req fetcher.Request) (string, error)
}

func (m *mockFetcher) Fetch(ctx context.Context, req fetcher.Request) (string, error) {
	return m.fetchFunc(ctx, req)
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []kafka.JobEvent
}

func (p *recordingPublisher) PublishJobEvent(ctx context.Context, event *kafka.JobEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, *event)
	return nil
}

func (p *recordingPublisher) Close() error { return nil }

func (p *recordingPublisher) types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.events))
	for _, e := range p.events {
		out = append(out, e.Type)
	}
	return out
}

type harness struct {
	repo   *repository.MemoryRepo
	pool   *pool.WorkerPool
	events *recordingPublisher
	runner *Runner
	dir    string
}

func newHarness(t *testing.T, f fetcher.Fetcher, debug bool) *harness {
	t.Helper()

	logger := zaptest.NewLogger(t)
	h := &harness{
		repo:   repository.NewMemoryRepo(),
		pool:   pool.NewWorkerPool(4, logger),
		events: &recordingPublisher{},
		dir:    t.TempDir(),
	}
	h.runner = NewRunner(h.repo, f, h.pool, h.events, logger, Options{
		StorageDir:  h.dir,
		Debug:       debug,
		SettleDelay: 10 * time.Millisecond,
	})
	return h
}

// launch registers the job, runs it and waits for the pool to drain.
func (h *harness) launch(t *testing.T, job models.Job, credential string) *models.Job {
	t.Helper()

	ctx := context.Background()
	if err := h.repo.Create(ctx, &job); err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if err := h.runner.Launch(job, credential); err != nil {
		t.Fatalf("Launch failed: %v", err)
	}
	if err := h.pool.Shutdown(ctx); err != nil {
		t.Fatalf("Shutdown failed: %v", err)
	}

	got, err := h.repo.Get(ctx, job.ID)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	return got
}

func writeFile(t *testing.T, path string) {
	t.Helper()
	if err := os.WriteFile(path, []byte("media-bytes"), 0o644); err != nil {
		t.Fatalf("Failed to write %s: %v", path, err)
	}
}

func TestRunner_AudioCompletesWithNormalizedExtension(t *testing.T) {
	f := &mockFetcher{fetchFunc: func(ctx context.Context, req fetcher.Request) (string, error) {
		intermediate := filepath.Join(req.OutputDir, req.BaseName+"_title.webm")
		writeFile(t, intermediate)
		writeFile(t, filepath.Join(req.OutputDir, req.BaseName+"_title.mp3"))
		return intermediate, nil
	}}
	h := newHarness(t, f, false)

	job := h.launch(t, models.Job{ID: "J", Target: "https://example.com/v", OutputKind: models.OutputAudio}, "")

	if job.Status != models.StatusCompleted {
		t.Fatalf("Expected completed, got %s (%s)", job.Status, job.Error)
	}
	if job.Result.FileName != "J_title.mp3" {
		t.Errorf("Expected file name J_title.mp3, got %s", job.Result.FileName)
	}
	if job.Result.ContentType != "audio/mpeg" {
		t.Errorf("Expected audio/mpeg, got %s", job.Result.ContentType)
	}
	if job.Result.Size != int64(len("media-bytes")) {
		t.Errorf("Expected size %d, got %d", len("media-bytes"), job.Result.Size)
	}
	if _, err := os.Stat(filepath.Join(h.dir, "J_title.webm")); !os.IsNotExist(err) {
		t.Error("Expected intermediate file to be removed")
	}

	if got := h.events.types(); len(got) != 1 || got[0] != kafka.EventJobCompleted {
		t.Errorf("Expected one completed event, got %v", got)
	}
}

func TestRunner_VideoExtensionIsEnforced(t *testing.T) {
	f := &mockFetcher{fetchFunc: func(ctx context.Context, req fetcher.Request) (string, error) {
		path := filepath.Join(req.OutputDir, req.BaseName+"_clip.mkv")
		writeFile(t, path)
		return path, nil
	}}
	h := newHarness(t, f, false)

	job := h.launch(t, models.Job{ID: "V", Target: "https://example.com/v", OutputKind: models.OutputVideo}, "")

	if job.Status != models.StatusCompleted {
		t.Fatalf("Expected completed, got %s (%s)", job.Status, job.Error)
	}
	if job.Result.FileName != "V_clip.mp4" {
		t.Errorf("Expected V_clip.mp4, got %s", job.Result.FileName)
	}
	if _, err := os.Stat(filepath.Join(h.dir, "V_clip.mp4")); err != nil {
		t.Errorf("Expected normalized file on disk: %v", err)
	}
	if _, err := os.Stat(filepath.Join(h.dir, "V_clip.mkv")); !os.IsNotExist(err) {
		t.Error("Expected original extension to be gone")
	}
}

func TestRunner_FetchFailureSummarized(t *testing.T) {
	f := &mockFetcher{fetchFunc: func(ctx context.Context, req fetcher.Request) (string, error) {
		writeFile(t, filepath.Join(req.OutputDir, req.BaseName+"_title.webm.part"))
		return "", &fetcher.Error{
			Message:   "ERROR: Unsupported URL: https://nowhere.invalid\nTraceback (most recent call last):\n  File \"/usr/lib/yt_dlp\"",
			UserFault: true,
		}
	}}
	h := newHarness(t, f, false)

	job := h.launch(t, models.Job{ID: "F", Target: "https://nowhere.invalid", OutputKind: models.OutputAudio}, "")

	if job.Status != models.StatusFailed {
		t.Fatalf("Expected failed, got %s", job.Status)
	}
	if job.Error != "ERROR: Unsupported URL: https://nowhere.invalid" {
		t.Errorf("Expected first line only, got %q", job.Error)
	}
	if strings.Contains(job.Error, "\n") {
		t.Errorf("Expected single-line error, got %q", job.Error)
	}
	if job.Result != nil {
		t.Errorf("Expected no result, got %+v", job.Result)
	}

	leftovers, _ := filepath.Glob(filepath.Join(h.dir, "F_*"))
	if len(leftovers) != 0 {
		t.Errorf("Expected artifacts to be removed, found %v", leftovers)
	}

	if got := h.events.types(); len(got) != 1 || got[0] != kafka.EventJobFailed {
		t.Errorf("Expected one failed event, got %v", got)
	}
}

func TestRunner_DebugExposesFullError(t *testing.T) {
	full := "ERROR: boom\ndetail line"
	f := &mockFetcher{fetchFunc: func(ctx context.Context, req fetcher.Request) (string, error) {
		return "", errors.New(full)
	}}
	h := newHarness(t, f, true)

	job := h.launch(t, models.Job{ID: "D", Target: "x", OutputKind: models.OutputVideo}, "")

	if job.Error != full {
		t.Errorf("Expected full error in debug mode, got %q", job.Error)
	}
}

func TestRunner_LongErrorTruncated(t *testing.T) {
	f := &mockFetcher{fetchFunc: func(ctx context.Context, req fetcher.Request) (string, error) {
		return "", errors.New(strings.Repeat("x", 1000))
	}}
	h := newHarness(t, f, false)

	job := h.launch(t, models.Job{ID: "L", Target: "x", OutputKind: models.OutputVideo}, "")

	if len(job.Error) != maxErrorLength {
		t.Errorf("Expected error capped at %d, got %d", maxErrorLength, len(job.Error))
	}
}

func TestRunner_PanicBecomesFailure(t *testing.T) {
	f := &mockFetcher{fetchFunc: func(ctx context.Context, req fetcher.Request) (string, error) {
		panic("unexpected nil map")
	}}
	h := newHarness(t, f, false)

	job := h.launch(t, models.Job{ID: "P", Target: "x", OutputKind: models.OutputVideo}, "")

	if job.Status != models.StatusFailed {
		t.Fatalf("Expected failed, got %s", job.Status)
	}
	if job.Error != msgInternal {
		t.Errorf("Expected %q, got %q", msgInternal, job.Error)
	}
}

func TestRunner_MissingOutputFails(t *testing.T) {
	f := &mockFetcher{fetchFunc: func(ctx context.Context, req fetcher.Request) (string, error) {
		return filepath.Join(req.OutputDir, req.BaseName+"_ghost.mp4"), nil
	}}
	h := newHarness(t, f, false)

	job := h.launch(t, models.Job{ID: "M", Target: "x", OutputKind: models.OutputVideo}, "")

	if job.Status != models.StatusFailed {
		t.Fatalf("Expected failed, got %s", job.Status)
	}
	if job.Error != errProducedFileMissing.Error() {
		t.Errorf("Expected %q, got %q", errProducedFileMissing.Error(), job.Error)
	}
}

func TestRunner_ForeignOutputRejected(t *testing.T) {
	f := &mockFetcher{fetchFunc: func(ctx context.Context, req fetcher.Request) (string, error) {
		path := filepath.Join(req.OutputDir, "someone-else.mp4")
		writeFile(t, path)
		return path, nil
	}}
	h := newHarness(t, f, false)

	job := h.launch(t, models.Job{ID: "R", Target: "x", OutputKind: models.OutputVideo}, "")

	if job.Status != models.StatusFailed {
		t.Fatalf("Expected failed, got %s", job.Status)
	}
	if strings.Contains(job.Error, h.dir) {
		t.Errorf("Expected error without storage path, got %q", job.Error)
	}
}

func TestRunner_CredentialOnlyReachesFetcher(t *testing.T) {
	var got fetcher.Request
	f := &mockFetcher{fetchFunc: func(ctx context.Context, req fetcher.Request) (string, error) {
		got = req
		path := filepath.Join(req.OutputDir, req.BaseName+"_a.mp4")
		writeFile(t, path)
		return path, nil
	}}
	h := newHarness(t, f, false)

	h.launch(t, models.Job{ID: "C", Target: "https://example.com/v", OutputKind: models.OutputVideo}, "SID=secret")

	if got.Credential != "SID=secret" {
		t.Errorf("Expected credential to reach fetcher, got %q", got.Credential)
	}
	if got.BaseName != "C" || got.OutputDir != h.dir {
		t.Errorf("Unexpected fetch request: %+v", got)
	}
	for _, e := range h.events.events {
		if strings.Contains(e.Error+e.FileName, "secret") {
			t.Errorf("Credential leaked into event: %+v", e)
		}
	}
}

func TestRunner_SameTargetGetsDistinctFiles(t *testing.T) {
	f := &mockFetcher{fetchFunc: func(ctx context.Context, req fetcher.Request) (string, error) {
		path := filepath.Join(req.OutputDir, req.BaseName+"_same_title.mp3")
		writeFile(t, path)
		return path, nil
	}}
	h := newHarness(t, f, false)
	ctx := context.Background()

	ids := []string{"A1", "B2"}
	for _, id := range ids {
		job := models.Job{ID: id, Target: "https://example.com/v", OutputKind: models.OutputAudio}
		_ = h.repo.Create(ctx, &job)
		if err := h.runner.Launch(job, ""); err != nil {
			t.Fatalf("Launch failed: %v", err)
		}
	}
	_ = h.pool.Shutdown(ctx)

	names := map[string]bool{}
	for _, id := range ids {
		job, _ := h.repo.Get(ctx, id)
		if job.Status != models.StatusCompleted {
			t.Fatalf("Job %s not completed: %s", id, job.Error)
		}
		names[job.Result.FileName] = true
	}
	if len(names) != 2 {
		t.Errorf("Expected two distinct file names, got %v", names)
	}
}

func TestRunner_AbandonedJobFails(t *testing.T) {
	f := &mockFetcher{fetchFunc: func(ctx context.Context, req fetcher.Request) (string, error) {
		t.Error("Fetch should not run for an abandoned job")
		return "", nil
	}}
	h := newHarness(t, f, false)

	job := models.Job{ID: "S", Target: "x", OutputKind: models.OutputVideo}
	_ = h.repo.Create(context.Background(), &job)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	h.runner.run(ctx, job, "")

	got, _ := h.repo.Get(context.Background(), "S")
	if got.Status != models.StatusFailed || got.Error != msgShuttingDown {
		t.Errorf("Expected failed with %q, got %s %q", msgShuttingDown, got.Status, got.Error)
	}
}

func TestRunner_LaunchIsNonBlocking(t *testing.T) {
	release := make(chan struct{})
	f := &mockFetcher{fetchFunc: func(ctx context.Context, req fetcher.Request) (string, error) {
		<-release
		return "", errors.New("stopped")
	}}
	h := newHarness(t, f, false)

	job := models.Job{ID: "N", Target: "x", OutputKind: models.OutputVideo}
	_ = h.repo.Create(context.Background(), &job)

	if err := h.runner.Launch(job, ""); err != nil {
		t.Fatalf("Launch failed: %v", err)
	}

	got, _ := h.repo.Get(context.Background(), "N")
	if got.Status != models.StatusProcessing {
		t.Errorf("Expected processing right after launch, got %s", got.Status)
	}

	close(release)
	_ = h.pool.Shutdown(context.Background())

	got, _ = h.repo.Get(context.Background(), "N")
	if got.Status != models.StatusFailed {
		t.Errorf("Expected failed after fetch returned, got %s", got.Status)
	}
}
