// Package estimate answers "what will this cost to fetch" for a source. It
// dry-runs the fetch engine for a fixed matrix of video resolutions and audio
// bitrates, retrying with widening timeouts, and falls back to an analytic
// model whenever a real size cannot be obtained. Estimate never fails.
package estimate

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/heimdex/heimdex-fetch/internal/download"
	"github.com/heimdex/heimdex-fetch/internal/engine"
	"github.com/heimdex/heimdex-fetch/internal/logging"
)

const (
	probeTimeout = 120 * time.Second
	maxAttempts  = 4
)

// SizeEntry is one cell of the size matrix. Estimated is false only for
// sizes reported by a real dry run.
type SizeEntry struct {
	Filesize  int64 `json:"filesize"`
	Estimated bool  `json:"estimated"`
	Adjusted  bool  `json:"adjusted,omitempty"`
}

type SizeCounts struct {
	Video int `json:"video"`
	Audio int `json:"audio"`
}

// FormatDebug records what the engine negotiated for one resolution.
type FormatDebug struct {
	VideoFormatID string `json:"video_format_id,omitempty"`
	AudioFormatID string `json:"audio_format_id,omitempty"`
	VideoHeight   int    `json:"video_height,omitempty"`
	FormatID      string `json:"format_id,omitempty"`
	Height        int    `json:"height,omitempty"`
}

type Result struct {
	Success               bool                `json:"success"`
	Title                 string              `json:"title"`
	Duration              float64             `json:"duration"`
	VideoFormats          map[int]SizeEntry   `json:"video_formats"`
	AudioFormats          map[int]SizeEntry   `json:"audio_formats"`
	Thumbnail             *string             `json:"thumbnail"`
	EstimatedOnly         bool                `json:"estimated_only"`
	ActualSizesCount      *SizeCounts         `json:"actual_sizes_count,omitempty"`
	FormatDebug           map[int]FormatDebug `json:"format_debug,omitempty"`
	Message               string              `json:"message,omitempty"`
	ProcessingTimeSeconds float64             `json:"processing_time_seconds"`
}

type Simulator struct {
	engine engine.Engine
	logger *slog.Logger
	sleep  func(ctx context.Context, d time.Duration) error
	now    func() time.Time
}

func NewSimulator(eng engine.Engine, logger *slog.Logger) *Simulator {
	return &Simulator{
		engine: eng,
		logger: logging.WithComponent(logging.OrDiscard(logger), "estimate"),
		sleep:  sleepContext,
		now:    time.Now,
	}
}

// Estimate builds the size matrix for sourceID.
func (s *Simulator) Estimate(ctx context.Context, sourceID string) (res Result) {
	start := s.now()
	logger := logging.WithSourceID(s.logger, sourceID)

	var meta *engine.Metadata
	defer func() {
		if r := recover(); r != nil {
			logger.Error("estimate panic, using analytic estimates", "panic", r)
			if meta == nil || meta.Duration <= 0 {
				res = s.failed(sourceID, fmt.Errorf("%v", r), start)
				return
			}
			title, thumbnail := describe(meta)
			res = analyticResult(title, meta.Duration, thumbnail)
			res.Message = "Aggressive simulation failed, using improved estimation"
			res.ProcessingTimeSeconds = s.elapsed(start)
		}
	}()

	var err error
	meta, err = s.engine.Probe(ctx, sourceID, probeTimeout)
	if err != nil {
		logger.Warn("metadata probe failed, using analytic estimates", "error", err)
		return s.failed(sourceID, err, start)
	}

	title, thumbnail := describe(meta)

	if meta.Duration <= 0 {
		logger.Info("duration unknown, using analytic estimates", "default_duration", DefaultDuration)
		res = analyticResult(title, DefaultDuration, thumbnail)
		res.Message = "Could not determine duration, using improved estimation"
		res.ProcessingTimeSeconds = s.elapsed(start)
		return res
	}

	infoTimeout, simTimeout := Timeouts(meta.Duration)
	logger.Info("simulating sizes",
		"duration", meta.Duration,
		"info_timeout", infoTimeout.String(),
		"sim_timeout", simTimeout.String(),
	)

	res = Result{
		Success:      true,
		Title:        title,
		Duration:     meta.Duration,
		VideoFormats: make(map[int]SizeEntry, len(VideoResolutions)),
		AudioFormats: make(map[int]SizeEntry, len(AudioBitrates)),
		Thumbnail:    thumbnail,
		FormatDebug:  make(map[int]FormatDebug),
	}
	counts := &SizeCounts{}

	for _, r := range VideoResolutions {
		sim, ok := s.simulate(ctx, logger, sourceID, download.VideoFormat(r), simTimeout, videoPolicy, fmt.Sprintf("%dp", r))
		if !ok {
			logger.Info("all attempts failed, using analytic estimate", "resolution", r)
			res.VideoFormats[r] = SizeEntry{Filesize: VideoEstimate(r, meta.Duration), Estimated: true}
			continue
		}
		res.VideoFormats[r] = SizeEntry{Filesize: sim.TotalSize()}
		res.FormatDebug[r] = debugFor(sim)
		counts.Video++
	}

	CorrectDuplicates(res.VideoFormats)

	for _, q := range AudioBitrates {
		sim, ok := s.simulate(ctx, logger, sourceID, download.AudioFormat(q), simTimeout, audioPolicy, fmt.Sprintf("%dkbps", q))
		if !ok {
			logger.Info("all attempts failed, using analytic estimate", "quality", q)
			res.AudioFormats[q] = SizeEntry{Filesize: AudioEstimate(q, meta.Duration), Estimated: true}
			continue
		}
		res.AudioFormats[q] = SizeEntry{Filesize: sim.TotalSize()}
		counts.Audio++
	}

	for size, group := range duplicates(res.VideoFormats) {
		logger.Warn("multiple resolutions share a size", "resolutions", group, "size", humanize.Bytes(uint64(size)))
	}

	if len(res.FormatDebug) == 0 {
		res.FormatDebug = nil
	}
	res.ActualSizesCount = counts
	res.ProcessingTimeSeconds = s.elapsed(start)

	logger.Info("simulation complete",
		"video_sizes", fmt.Sprintf("%d/%d", counts.Video, len(VideoResolutions)),
		"audio_sizes", fmt.Sprintf("%d/%d", counts.Audio, len(AudioBitrates)),
		"seconds", res.ProcessingTimeSeconds,
	)
	return res
}

// retryPolicy widens the socket timeout per attempt and backs off after
// failed attempts.
type retryPolicy struct {
	timeoutStep time.Duration
	backoffBase time.Duration
	backoffStep time.Duration
	backoffMax  time.Duration
}

var (
	videoPolicy = retryPolicy{timeoutStep: 30 * time.Second, backoffBase: 10 * time.Second, backoffStep: 5 * time.Second, backoffMax: 30 * time.Second}
	audioPolicy = retryPolicy{timeoutStep: 20 * time.Second, backoffBase: 5 * time.Second, backoffStep: 3 * time.Second, backoffMax: 20 * time.Second}
)

func (p retryPolicy) timeout(base time.Duration, attempt int) time.Duration {
	return base + time.Duration(attempt)*p.timeoutStep
}

func (p retryPolicy) backoff(attempt int) time.Duration {
	return min(p.backoffBase+time.Duration(attempt)*p.backoffStep, p.backoffMax)
}

// simulate dry-runs one format up to maxAttempts times. A run that succeeds
// without a size is retried immediately; an engine failure sleeps first.
func (s *Simulator) simulate(ctx context.Context, logger *slog.Logger, sourceID, format string, base time.Duration, p retryPolicy, label string) (*engine.Simulation, bool) {
	for attempt := 0; attempt < maxAttempts; attempt++ {
		timeout := p.timeout(base, attempt)
		sim, err := s.engine.Simulate(ctx, sourceID, format, timeout)
		if err == nil {
			if sim != nil && sim.TotalSize() > 0 {
				logger.Debug("got actual size", "target", label, "attempt", attempt+1, "size", humanize.Bytes(uint64(sim.TotalSize())))
				return sim, true
			}
			logger.Debug("no size returned", "target", label, "attempt", attempt+1)
			continue
		}

		logger.Debug("simulation attempt failed", "target", label, "attempt", attempt+1, "timeout", timeout.String(), "error", err)
		if attempt == maxAttempts-1 {
			break
		}
		if err := s.sleep(ctx, p.backoff(attempt)); err != nil {
			return nil, false
		}
	}
	return nil, false
}

func debugFor(sim *engine.Simulation) FormatDebug {
	if len(sim.RequestedFormats) > 0 {
		d := FormatDebug{
			VideoFormatID: sim.RequestedFormats[0].FormatID,
			VideoHeight:   sim.RequestedFormats[0].Height,
			AudioFormatID: "none",
		}
		if len(sim.RequestedFormats) > 1 {
			d.AudioFormatID = sim.RequestedFormats[1].FormatID
		}
		return d
	}
	return FormatDebug{FormatID: sim.FormatID, Height: sim.Height}
}

// describe returns the display title and optional thumbnail of a probe.
func describe(meta *engine.Metadata) (string, *string) {
	title := meta.Title
	if title == "" {
		title = "Unknown Title"
	}
	var thumbnail *string
	if meta.Thumbnail != "" {
		t := meta.Thumbnail
		thumbnail = &t
	}
	return title, thumbnail
}

// failed is the response when the source could not be probed at all.
func (s *Simulator) failed(sourceID string, err error, start time.Time) Result {
	res := analyticResult(fmt.Sprintf("Video %s", sourceID), DefaultDuration, nil)
	res.Message = fmt.Sprintf("Error occurred: %s...", truncateRunes(err.Error(), 50))
	res.ProcessingTimeSeconds = s.elapsed(start)
	return res
}

func analyticResult(title string, duration float64, thumbnail *string) Result {
	return Result{
		Success:       true,
		Title:         title,
		Duration:      duration,
		VideoFormats:  analyticVideo(duration),
		AudioFormats:  analyticAudio(duration),
		Thumbnail:     thumbnail,
		EstimatedOnly: true,
	}
}

func (s *Simulator) elapsed(start time.Time) float64 {
	return math.Round(s.now().Sub(start).Seconds()*100) / 100
}

func truncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
