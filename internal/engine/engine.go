// Package engine is the boundary to the media fetch engine (yt-dlp). It
// exposes metadata probes, dry-run format simulation and real downloads, and
// reports failures as typed *Error values.
package engine

import (
	"context"
	"time"
)

// Engine is the contract the service uses to talk to the fetch engine.
type Engine interface {
	// Probe fetches lightweight metadata without negotiating formats.
	Probe(ctx context.Context, sourceID string, socketTimeout time.Duration) (*Metadata, error)

	// Simulate negotiates format against the source without transferring
	// media and reports what would be fetched.
	Simulate(ctx context.Context, sourceID, format string, socketTimeout time.Duration) (*Simulation, error)

	// Download writes the selected streams under req.OutputTemplate. Progress
	// updates carry req.Token so callers can route them to their owner.
	Download(ctx context.Context, req Request, onProgress ProgressFunc) error

	// Version returns the engine's version string.
	Version(ctx context.Context) (string, error)
}

type Metadata struct {
	Title     string  `json:"title"`
	Duration  float64 `json:"duration"`
	Thumbnail string  `json:"thumbnail,omitempty"`
}

// Format is one negotiated stream.
type Format struct {
	FormatID       string `json:"format_id,omitempty"`
	Height         int    `json:"height,omitempty"`
	Filesize       int64  `json:"filesize,omitempty"`
	FilesizeApprox int64  `json:"filesize_approx,omitempty"`
}

// Size prefers the exact size and falls back to the approximation.
func (f Format) Size() int64 {
	if f.Filesize > 0 {
		return f.Filesize
	}
	return f.FilesizeApprox
}

// Simulation is the outcome of a dry run. RequestedFormats is set when the
// engine selected a separate video and audio stream to be merged.
type Simulation struct {
	Format
	RequestedFormats []Format
}

// TotalSize is the byte size the download would produce: the sum of the split
// pair when present, otherwise the single selected format.
func (s *Simulation) TotalSize() int64 {
	if len(s.RequestedFormats) > 0 {
		var total int64
		for _, f := range s.RequestedFormats {
			total += f.Size()
		}
		return total
	}
	return s.Size()
}

// Request describes one download invocation.
type Request struct {
	SourceID       string
	Format         string
	OutputTemplate string
	Token          string
	MergeFormat    string // e.g. "mp4"; empty leaves streams as negotiated
	ExtractAudio   bool
	AudioFormat    string // used when ExtractAudio is set
}

const (
	ProgressDownloading = "downloading"
	ProgressFinished    = "finished"
)

// Progress is an asynchronous update from a running download. Filename is the
// final output path once Status is ProgressFinished.
type Progress struct {
	Token           string
	Status          string
	Filename        string
	DownloadedBytes int64
	TotalBytes      int64
}

type ProgressFunc func(Progress)

// SourceURL returns the watch URL for a source identifier.
func SourceURL(sourceID string) string {
	return "https://www.youtube.com/watch?v=" + sourceID
}
