package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/lrstanley/go-ytdlp"

	"github.com/heimdex/heimdex-fetch/internal/logging"
)

const progressInterval = 500 * time.Millisecond

var userAgents = []string{
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/122.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/122.0.0.0 Safari/537.36",
	"Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/122.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64; rv:124.0) Gecko/20100101 Firefox/124.0",
}

// Config holds the yt-dlp engine's configuration.
type Config struct {
	BinaryPath    string        // path to yt-dlp; empty = let go-ytdlp resolve it
	MaxFileSizeMB int           // passed as --max-filesize when > 0
	SocketTimeout time.Duration // socket timeout for downloads
	Retries       int           // retries and fragment retries for downloads
	Logger        *slog.Logger
}

// DefaultConfig returns production-ready defaults.
func DefaultConfig(logger *slog.Logger) Config {
	return Config{
		SocketTimeout: 60 * time.Second,
		Retries:       5,
		Logger:        logger,
	}
}

// YtDlpEngine drives yt-dlp through go-ytdlp. Every call builds a fresh
// command, so one engine is safe for concurrent use.
type YtDlpEngine struct {
	cfg    Config
	logger *slog.Logger
}

func NewYtDlpEngine(cfg Config) *YtDlpEngine {
	if cfg.SocketTimeout <= 0 {
		cfg.SocketTimeout = 60 * time.Second
	}
	if cfg.Retries <= 0 {
		cfg.Retries = 5
	}
	logger := logging.WithComponent(logging.OrDiscard(cfg.Logger), "engine")
	logger.Info("fetch engine initialised", "binary", cfg.BinaryPath)
	return &YtDlpEngine{cfg: cfg, logger: logger}
}

func (e *YtDlpEngine) Probe(ctx context.Context, sourceID string, socketTimeout time.Duration) (*Metadata, error) {
	ctx, cancel := context.WithTimeout(ctx, wallTimeout(socketTimeout))
	defer cancel()

	res, err := e.command(socketTimeout, 5).
		DumpJSON().
		SkipDownload().
		Run(ctx, SourceURL(sourceID))
	if err != nil {
		return nil, e.failed(ctx, "probe", res, err)
	}

	view, err := firstInfo(res)
	if err != nil {
		return nil, err
	}
	return view.metadata(), nil
}

func (e *YtDlpEngine) Simulate(ctx context.Context, sourceID, format string, socketTimeout time.Duration) (*Simulation, error) {
	ctx, cancel := context.WithTimeout(ctx, wallTimeout(socketTimeout))
	defer cancel()

	res, err := e.command(socketTimeout, 10).
		Format(format).
		Simulate().
		DumpJSON().
		Run(ctx, SourceURL(sourceID))
	if err != nil {
		return nil, e.failed(ctx, "simulate", res, err)
	}

	view, err := firstInfo(res)
	if err != nil {
		return nil, err
	}
	return view.simulation(), nil
}

// Download runs one fetch. Downloading updates are forwarded as they arrive;
// a single ProgressFinished update carrying the last finished filename is
// sent after the engine exits successfully.
func (e *YtDlpEngine) Download(ctx context.Context, req Request, onProgress ProgressFunc) error {
	cmd := e.command(e.cfg.SocketTimeout, e.cfg.Retries).
		Format(req.Format).
		Output(req.OutputTemplate)
	if e.cfg.MaxFileSizeMB > 0 {
		cmd.MaxFileSize(fmt.Sprintf("%dM", e.cfg.MaxFileSizeMB))
	}
	if req.MergeFormat != "" {
		cmd.MergeOutputFormat(req.MergeFormat)
	}
	if req.ExtractAudio {
		cmd.ExtractAudio().AudioFormat(req.AudioFormat)
	}

	var (
		mu       sync.Mutex
		finished string
	)
	cmd.ProgressFunc(progressInterval, func(update ytdlp.ProgressUpdate) {
		p := progressFrom(update, req.Token)
		switch p.Status {
		case ProgressFinished:
			if p.Filename != "" {
				mu.Lock()
				finished = p.Filename
				mu.Unlock()
			}
		case ProgressDownloading:
			if onProgress != nil {
				onProgress(p)
			}
		}
	})

	res, err := cmd.Run(ctx, SourceURL(req.SourceID))
	if err != nil {
		return e.failed(ctx, "download", res, err)
	}

	mu.Lock()
	path := finished
	mu.Unlock()
	if path != "" && onProgress != nil {
		onProgress(Progress{Token: req.Token, Status: ProgressFinished, Filename: path})
	}
	return nil
}

func (e *YtDlpEngine) Version(ctx context.Context) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	cmd := ytdlp.New()
	if e.cfg.BinaryPath != "" {
		cmd.SetExecutable(e.cfg.BinaryPath)
	}
	res, err := cmd.Run(ctx, "--version")
	if err != nil {
		return "", e.failed(ctx, "version", res, err)
	}
	return strings.TrimSpace(res.Stdout), nil
}

// command returns a builder carrying the flags every invocation shares.
func (e *YtDlpEngine) command(socketTimeout time.Duration, retries int) *ytdlp.Command {
	cmd := ytdlp.New().
		NoPlaylist().
		NoWarnings().
		NoCheckCertificates().
		AddHeaders("User-Agent:" + userAgents[rand.IntN(len(userAgents))]).
		AddHeaders("Accept-Language:en-US,en;q=0.5").
		SocketTimeout(socketTimeout.Seconds()).
		Retries(strconv.Itoa(retries)).
		FragmentRetries(strconv.Itoa(retries))
	if e.cfg.BinaryPath != "" {
		cmd.SetExecutable(e.cfg.BinaryPath)
	}
	return cmd
}

func (e *YtDlpEngine) failed(ctx context.Context, op string, res *ytdlp.Result, err error) error {
	engErr := failure(ctx, res, err)
	e.logger.Warn("engine command failed",
		"op", op,
		"kind", engErr.Kind,
		"exit_code", engErr.ExitCode,
		"error", engErr.Message,
	)
	return engErr
}

// failure classifies a failed run. A cancelled or expired ctx wins over
// whatever the engine printed on its way out.
func failure(ctx context.Context, res *ytdlp.Result, err error) *Error {
	exitCode := -1
	stderr := ""
	if res != nil {
		exitCode = res.ExitCode
		stderr = res.Stderr
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return &Error{Kind: KindUnknown, Message: fmt.Sprintf("engine call aborted: %v", ctxErr), ExitCode: exitCode}
	}
	if strings.TrimSpace(stderr) == "" {
		stderr = err.Error()
	}
	return Classify(stderr, exitCode)
}

// wallTimeout bounds a whole dry run. The socket timeout only covers
// individual reads.
func wallTimeout(socketTimeout time.Duration) time.Duration {
	if socketTimeout <= 0 {
		socketTimeout = 60 * time.Second
	}
	return 3 * socketTimeout
}

func progressFrom(update ytdlp.ProgressUpdate, token string) Progress {
	p := Progress{
		Token:           token,
		Filename:        update.Filename,
		DownloadedBytes: int64(update.DownloadedBytes),
		TotalBytes:      int64(update.TotalBytes),
	}
	switch update.Status {
	case ytdlp.ProgressStatusFinished:
		p.Status = ProgressFinished
	case ytdlp.ProgressStatusDownloading:
		p.Status = ProgressDownloading
	default:
		p.Status = string(update.Status)
	}
	return p
}

var errNoInfo = errors.New("engine returned no info")

func firstInfo(res *ytdlp.Result) (*infoView, error) {
	infos, err := res.GetExtractedInfo()
	if err != nil {
		return nil, fmt.Errorf("cannot parse engine output: %w", err)
	}
	if len(infos) == 0 || infos[0] == nil {
		return nil, errNoInfo
	}
	return viewOf(infos[0])
}

// formatView and infoView select the yt-dlp info-dict keys the engine port
// exposes. They are filled from the library's ExtractedInfo by key.
type formatView struct {
	FormatID       string  `json:"format_id"`
	Height         float64 `json:"height"`
	Filesize       float64 `json:"filesize"`
	FilesizeApprox float64 `json:"filesize_approx"`
}

func (f formatView) format() Format {
	return Format{
		FormatID:       f.FormatID,
		Height:         int(f.Height),
		Filesize:       int64(f.Filesize),
		FilesizeApprox: int64(f.FilesizeApprox),
	}
}

type infoView struct {
	formatView
	Title            string       `json:"title"`
	Duration         float64      `json:"duration"`
	Thumbnail        string       `json:"thumbnail"`
	RequestedFormats []formatView `json:"requested_formats"`
}

func viewOf(info *ytdlp.ExtractedInfo) (*infoView, error) {
	data, err := json.Marshal(info)
	if err != nil {
		return nil, fmt.Errorf("encode engine info: %w", err)
	}
	var v infoView
	if err := json.Unmarshal(data, &v); err != nil {
		return nil, fmt.Errorf("decode engine info: %w", err)
	}
	return &v, nil
}

func (v *infoView) metadata() *Metadata {
	return &Metadata{Title: v.Title, Duration: v.Duration, Thumbnail: v.Thumbnail}
}

func (v *infoView) simulation() *Simulation {
	sim := &Simulation{Format: v.format()}
	for _, f := range v.RequestedFormats {
		sim.RequestedFormats = append(sim.RequestedFormats, f.format())
	}
	return sim
}
