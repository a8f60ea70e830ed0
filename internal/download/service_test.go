package download

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/heimdex/heimdex-fetch/internal/engine"
	"github.com/heimdex/heimdex-fetch/internal/jobs"
)

type fakeEngine struct {
	mu         sync.Mutex
	requests   []engine.Request
	downloadFn func(ctx context.Context, req engine.Request, onProgress engine.ProgressFunc) error
}

func (f *fakeEngine) Probe(ctx context.Context, sourceID string, socketTimeout time.Duration) (*engine.Metadata, error) {
	return nil, errors.New("not implemented")
}

func (f *fakeEngine) Simulate(ctx context.Context, sourceID, format string, socketTimeout time.Duration) (*engine.Simulation, error) {
	return nil, errors.New("not implemented")
}

func (f *fakeEngine) Download(ctx context.Context, req engine.Request, onProgress engine.ProgressFunc) error {
	f.mu.Lock()
	f.requests = append(f.requests, req)
	f.mu.Unlock()
	return f.downloadFn(ctx, req, onProgress)
}

func (f *fakeEngine) Version(ctx context.Context) (string, error) {
	return "test", nil
}

// writeOutput stands in for the engine writing its output file.
func writeOutput(req engine.Request, ext string, data []byte) string {
	path := strings.Replace(req.OutputTemplate, "%(ext)s", ext, 1)
	os.WriteFile(path, data, 0o644)
	return path
}

func newTestService(t *testing.T, fn func(ctx context.Context, req engine.Request, onProgress engine.ProgressFunc) error) (*Service, *jobs.Store, *fakeEngine, string) {
	t.Helper()
	dir := t.TempDir()
	store := jobs.NewStore()
	eng := &fakeEngine{downloadFn: fn}
	svc := NewService(store, eng, Config{Dir: dir, PublicURL: "http://localhost:8000/"})
	return svc, store, eng, dir
}

func TestService_VideoCompletesViaReportedPath(t *testing.T) {
	svc, store, eng, _ := newTestService(t, func(ctx context.Context, req engine.Request, onProgress engine.ProgressFunc) error {
		path := writeOutput(req, "mp4", []byte("video bytes"))
		onProgress(engine.Progress{Token: req.Token, Status: engine.ProgressFinished, Filename: path})
		return nil
	})

	id, err := svc.StartVideo("abc123", 720, "My Video")
	if err != nil {
		t.Fatalf("StartVideo: %v", err)
	}
	svc.Wait()

	job, ok := store.Get(id)
	if !ok {
		t.Fatal("job missing")
	}
	if job.Status != jobs.StatusComplete {
		t.Fatalf("status = %s (%s), want complete", job.Status, job.Message)
	}
	if job.Message != "Download complete. File available locally." {
		t.Errorf("message = %q", job.Message)
	}
	wantURL := "http://localhost:8000/download/My_Video_abc123_720p.mp4"
	if job.DownloadURL == nil || *job.DownloadURL != wantURL {
		t.Errorf("download_url = %v, want %q", job.DownloadURL, wantURL)
	}
	if job.SizeMB == nil || *job.SizeMB <= 0 {
		t.Errorf("file_size_mb = %v, want > 0", job.SizeMB)
	}

	req := eng.requests[0]
	if req.MergeFormat != "mp4" || req.ExtractAudio {
		t.Errorf("video request = %+v", req)
	}
	if req.Format != VideoFormat(720) {
		t.Errorf("format = %q", req.Format)
	}
	if store.Pending() != 0 {
		t.Errorf("Pending() = %d, want 0", store.Pending())
	}
}

func TestService_AudioFallsBackToExpectedName(t *testing.T) {
	svc, store, eng, _ := newTestService(t, func(ctx context.Context, req engine.Request, onProgress engine.ProgressFunc) error {
		writeOutput(req, "mp3", []byte("audio"))
		return nil
	})

	id, _ := svc.StartAudio("xyz", 192, "Song")
	svc.Wait()

	job, _ := store.Get(id)
	if job.Status != jobs.StatusComplete {
		t.Fatalf("status = %s (%s), want complete", job.Status, job.Message)
	}
	if job.Quality != 192 || job.Kind != jobs.KindAudio {
		t.Errorf("job = %+v", job)
	}
	if !strings.HasSuffix(*job.DownloadURL, "/download/Song_xyz_192kbps.mp3") {
		t.Errorf("download_url = %q", *job.DownloadURL)
	}
	if req := eng.requests[0]; !req.ExtractAudio || req.AudioFormat != "mp3" {
		t.Errorf("audio request = %+v", req)
	}
}

func TestService_PatternScanFindsOtherExtension(t *testing.T) {
	svc, store, _, _ := newTestService(t, func(ctx context.Context, req engine.Request, onProgress engine.ProgressFunc) error {
		writeOutput(req, "webm", []byte("webm bytes"))
		return nil
	})

	id, _ := svc.StartVideo("abc123", 1080, "Clip")
	svc.Wait()

	job, _ := store.Get(id)
	if job.Status != jobs.StatusComplete {
		t.Fatalf("status = %s (%s), want complete", job.Status, job.Message)
	}
	if !strings.HasSuffix(*job.DownloadURL, "Clip_abc123_1080p.webm") {
		t.Errorf("download_url = %q", *job.DownloadURL)
	}
}

func TestService_EmptyOutputFailsAndIsRemoved(t *testing.T) {
	var written string
	svc, store, _, _ := newTestService(t, func(ctx context.Context, req engine.Request, onProgress engine.ProgressFunc) error {
		written = writeOutput(req, "mp4", nil)
		return nil
	})

	id, _ := svc.StartVideo("abc123", 720, "Empty")
	svc.Wait()

	job, _ := store.Get(id)
	if job.Status != jobs.StatusFailed {
		t.Fatalf("status = %s, want failed", job.Status)
	}
	if job.Message != "Download resulted in an empty file." {
		t.Errorf("message = %q", job.Message)
	}
	if job.DownloadURL != nil || job.SizeMB != nil {
		t.Error("failed job must not carry result fields")
	}
	if _, err := os.Stat(written); !os.IsNotExist(err) {
		t.Errorf("empty output still present: %v", err)
	}
}

func TestService_MissingOutputFails(t *testing.T) {
	svc, store, _, _ := newTestService(t, func(ctx context.Context, req engine.Request, onProgress engine.ProgressFunc) error {
		return nil
	})

	id, _ := svc.StartVideo("abc123", 720, "Nothing")
	svc.Wait()

	job, _ := store.Get(id)
	if job.Status != jobs.StatusFailed {
		t.Fatalf("status = %s, want failed", job.Status)
	}
	if job.Message != "Could not locate the video file after download process." {
		t.Errorf("message = %q", job.Message)
	}
}

func TestService_EngineErrorIsClassified(t *testing.T) {
	svc, store, _, _ := newTestService(t, func(ctx context.Context, req engine.Request, onProgress engine.ProgressFunc) error {
		return engine.Classify("ERROR: [youtube] abc123: Private video", 1)
	})

	id, _ := svc.StartVideo("abc123", 720, "Secret")
	aid, _ := svc.StartAudio("abc123", 128, "Secret")
	svc.Wait()

	job, _ := store.Get(id)
	if job.Status != jobs.StatusFailed || job.Message != "This video is private." {
		t.Errorf("video job = %s %q", job.Status, job.Message)
	}
	ajob, _ := store.Get(aid)
	if ajob.Status != jobs.StatusFailed || ajob.Message != "Audio download failed: This video is private." {
		t.Errorf("audio job = %s %q", ajob.Status, ajob.Message)
	}
}

func TestService_PanicIsRecordedAsFailure(t *testing.T) {
	svc, store, _, _ := newTestService(t, func(ctx context.Context, req engine.Request, onProgress engine.ProgressFunc) error {
		panic("engine exploded")
	})

	id, _ := svc.StartVideo("abc123", 720, "Boom")
	svc.Wait()

	job, _ := store.Get(id)
	if job.Status != jobs.StatusFailed {
		t.Fatalf("status = %s, want failed", job.Status)
	}
	if !strings.Contains(job.Message, "engine exploded") {
		t.Errorf("message = %q", job.Message)
	}
	if store.Pending() != 0 {
		t.Errorf("token leaked: Pending() = %d", store.Pending())
	}
}

func TestService_PendingUntilWorkerRuns(t *testing.T) {
	svc, store, _, _ := newTestService(t, func(ctx context.Context, req engine.Request, onProgress engine.ProgressFunc) error {
		writeOutput(req, "mp4", []byte("x"))
		return nil
	})
	svc.sem = make(chan struct{}, 1)
	svc.sem <- struct{}{}

	id, _ := svc.StartVideo("abc123", 720, "Queued")
	job, _ := store.Get(id)
	if job.Status != jobs.StatusPending {
		t.Fatalf("status = %s, want pending", job.Status)
	}
	if job.Message != "Download request received" {
		t.Errorf("message = %q", job.Message)
	}

	<-svc.sem
	svc.Wait()

	job, _ = store.Get(id)
	if job.Status != jobs.StatusComplete {
		t.Errorf("status = %s (%s), want complete", job.Status, job.Message)
	}
}

func TestService_ConcurrentJobsAreIsolated(t *testing.T) {
	svc, store, _, _ := newTestService(t, func(ctx context.Context, req engine.Request, onProgress engine.ProgressFunc) error {
		path := writeOutput(req, "mp4", []byte(req.SourceID))
		onProgress(engine.Progress{Token: req.Token, Status: engine.ProgressFinished, Filename: path})
		return nil
	})

	const n = 50
	ids := make(map[string]string, n)
	for i := 0; i < n; i++ {
		src := fmt.Sprintf("src%d", i)
		id, err := svc.StartVideo(src, 480, "T")
		if err != nil {
			t.Fatalf("StartVideo: %v", err)
		}
		ids[id] = src
	}
	svc.Wait()

	all := store.List()
	if len(all) != n {
		t.Fatalf("List() = %d jobs, want %d", len(all), n)
	}
	for id, src := range ids {
		job := all[id]
		if job.Status != jobs.StatusComplete {
			t.Errorf("job %s status = %s (%s)", id, job.Status, job.Message)
			continue
		}
		if job.SourceID != src || !strings.Contains(*job.DownloadURL, "_"+src+"_480p") {
			t.Errorf("job %s mixed up: %+v", id, job)
		}
	}
	if store.Pending() != 0 {
		t.Errorf("Pending() = %d, want 0", store.Pending())
	}
}

func TestService_OutputTemplateInDir(t *testing.T) {
	svc, _, eng, dir := newTestService(t, func(ctx context.Context, req engine.Request, onProgress engine.ProgressFunc) error {
		return errors.New("stop")
	})

	svc.StartVideo("abc123", 720, "Foo/Bar: Baz?")
	svc.Wait()

	want := filepath.Join(dir, "FooBar_Baz_abc123_720p.%(ext)s")
	if got := eng.requests[0].OutputTemplate; got != want {
		t.Errorf("OutputTemplate = %q, want %q", got, want)
	}
}
