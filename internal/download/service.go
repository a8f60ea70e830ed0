// Package download runs fetch jobs. A Service creates the job record, spawns
// one worker goroutine per request and returns immediately; the worker drives
// the record to a terminal status.
package download

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/dustin/go-humanize"

	"github.com/heimdex/heimdex-fetch/internal/engine"
	"github.com/heimdex/heimdex-fetch/internal/jobs"
	"github.com/heimdex/heimdex-fetch/internal/logging"
)

type Config struct {
	Dir           string // output directory, shared with the sweeper
	PublicURL     string // base of download_url values
	MaxConcurrent int    // 0 = one goroutine per request, unbounded
	Logger        *slog.Logger
}

type Service struct {
	store  *jobs.Store
	engine engine.Engine
	cfg    Config
	logger *slog.Logger

	sem chan struct{}
	wg  sync.WaitGroup
}

func NewService(store *jobs.Store, eng engine.Engine, cfg Config) *Service {
	s := &Service{
		store:  store,
		engine: eng,
		cfg:    cfg,
		logger: logging.WithComponent(logging.OrDiscard(cfg.Logger), "download"),
	}
	s.cfg.PublicURL = strings.TrimRight(cfg.PublicURL, "/")
	if cfg.MaxConcurrent > 0 {
		s.sem = make(chan struct{}, cfg.MaxConcurrent)
	}
	return s
}

// StartVideo dispatches a video fetch and returns the job id.
func (s *Service) StartVideo(sourceID string, resolution int, title string) (string, error) {
	id, err := s.store.Create(jobs.KindVideo, jobs.Attrs{SourceID: sourceID, Title: title, Resolution: resolution})
	if err != nil {
		return "", err
	}

	stem := VideoStem(title, sourceID, resolution)
	s.spawn(task{
		jobID:    id,
		kind:     jobs.KindVideo,
		sourceID: sourceID,
		stem:     stem,
		ext:      "mp4",
		startMsg: "Starting download with yt-dlp...",
		runMsg:   "Downloading video...",
		doneMsg:  "Download complete. File available locally.",
		req: engine.Request{
			SourceID:       sourceID,
			Format:         VideoFormat(resolution),
			OutputTemplate: filepath.Join(s.cfg.Dir, stem+".%(ext)s"),
			MergeFormat:    "mp4",
		},
	})
	return id, nil
}

// StartAudio dispatches an audio extraction and returns the job id.
func (s *Service) StartAudio(sourceID string, kbps int, title string) (string, error) {
	id, err := s.store.Create(jobs.KindAudio, jobs.Attrs{SourceID: sourceID, Title: title, Quality: kbps})
	if err != nil {
		return "", err
	}

	stem := AudioStem(title, sourceID, kbps)
	s.spawn(task{
		jobID:    id,
		kind:     jobs.KindAudio,
		sourceID: sourceID,
		stem:     stem,
		ext:      "mp3",
		startMsg: "Starting audio download with yt-dlp...",
		runMsg:   "Extracting audio...",
		doneMsg:  "Audio download complete. File available locally.",
		req: engine.Request{
			SourceID:       sourceID,
			Format:         AudioFormat(kbps),
			OutputTemplate: filepath.Join(s.cfg.Dir, stem+".%(ext)s"),
			ExtractAudio:   true,
			AudioFormat:    "mp3",
		},
	})
	return id, nil
}

// Wait blocks until every dispatched worker has returned.
func (s *Service) Wait() {
	s.wg.Wait()
}

type task struct {
	jobID    string
	kind     jobs.Kind
	sourceID string
	stem     string
	ext      string
	startMsg string
	runMsg   string
	doneMsg  string
	req      engine.Request
}

func (s *Service) spawn(t task) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if s.sem != nil {
			s.sem <- struct{}{}
			defer func() { <-s.sem }()
		}
		s.run(context.Background(), t)
	}()
}

// run drives one job to a terminal status. Nothing escapes it: engine and
// local failures, and panics, are all recorded on the job.
func (s *Service) run(ctx context.Context, t task) {
	logger := logging.WithJobID(logging.WithSourceID(s.logger, t.sourceID), t.jobID)

	token := s.store.Open(t.jobID)
	defer s.store.Release(token)

	defer func() {
		if r := recover(); r != nil {
			logger.Error("worker panic", "panic", r)
			s.store.Update(t.jobID, jobs.StatusFailed, Classify(t.kind, fmt.Errorf("%v", r)))
		}
	}()

	s.store.Update(t.jobID, jobs.StatusProcessing, msgInitializing)
	s.store.Update(t.jobID, jobs.StatusProcessing, t.startMsg)
	s.store.Update(t.jobID, jobs.StatusProcessing, t.runMsg)

	logger.Info("download started", "format", t.req.Format, "kind", t.kind)

	req := t.req
	req.Token = token
	err := s.engine.Download(ctx, req, func(p engine.Progress) {
		switch p.Status {
		case engine.ProgressFinished:
			s.store.Deliver(p.Token, p.Filename)
		case engine.ProgressDownloading:
			if p.TotalBytes > 0 {
				logger.Debug("download progress",
					"downloaded", humanize.IBytes(uint64(p.DownloadedBytes)),
					"total", humanize.IBytes(uint64(p.TotalBytes)),
				)
			}
		}
	})
	if err != nil {
		s.fail(logger, t, err)
		return
	}

	reported, _ := s.store.Take(token)
	path, err := ResolveOutput(s.cfg.Dir, t.stem, t.ext, reported)
	if err != nil {
		s.fail(logger, t, err)
		return
	}

	info, err := os.Stat(path)
	if err != nil {
		s.fail(logger, t, fmt.Errorf("stat output: %w", err))
		return
	}
	if info.Size() == 0 {
		if rmErr := os.Remove(path); rmErr != nil && !os.IsNotExist(rmErr) {
			logger.Warn("failed to remove empty output", "path", logging.SanitizePath(path), "error", rmErr)
		}
		s.fail(logger, t, ErrOutputEmpty)
		return
	}

	s.store.Update(t.jobID, jobs.StatusProcessing, msgPreparing)

	name := filepath.Base(path)
	downloadURL := s.cfg.PublicURL + "/download/" + url.PathEscape(name)
	sizeMB := float64(info.Size()) / (1024 * 1024)

	s.store.Update(t.jobID, jobs.StatusComplete, t.doneMsg, jobs.WithResult(downloadURL, sizeMB))
	logger.Info("download complete", "file", name, "size", humanize.IBytes(uint64(info.Size())))
}

func (s *Service) fail(logger *slog.Logger, t task, err error) {
	msg := Classify(t.kind, err)
	logger.Warn("download failed", "error", err, "kind", engine.KindOf(err))
	s.store.Update(t.jobID, jobs.StatusFailed, msg)
}
