package download

import (
	"errors"

	"github.com/heimdex/heimdex-fetch/internal/engine"
	"github.com/heimdex/heimdex-fetch/internal/jobs"
)

const (
	msgInitializing = "Initializing download..."
	msgPreparing    = "Preparing local download link..."
)

var kindMessages = map[engine.ErrorKind]string{
	engine.KindUnsupported: "The video URL is unsupported or invalid.",
	engine.KindUnavailable: "This video is unavailable.",
	engine.KindPrivate:     "This video is private.",
	engine.KindForbidden:   "Access denied (403 Forbidden).",
	engine.KindNotFound:    "Video not found (404).",
	engine.KindRateLimited: "Too many requests (429).",
}

// Classify maps a worker failure to the message recorded on the job. Audio
// jobs get an "Audio download failed: " prefix.
func Classify(kind jobs.Kind, err error) string {
	msg := classify(kind, err)
	if kind == jobs.KindAudio {
		return "Audio download failed: " + msg
	}
	return msg
}

func classify(kind jobs.Kind, err error) string {
	switch {
	case errors.Is(err, ErrOutputEmpty):
		if kind == jobs.KindAudio {
			return "Downloaded audio file is empty."
		}
		return "Download resulted in an empty file."
	case errors.Is(err, ErrOutputMissing):
		if kind == jobs.KindAudio {
			return "Downloaded audio file not found after download."
		}
		return "Could not locate the video file after download process."
	}

	var engErr *engine.Error
	if errors.As(err, &engErr) {
		if msg, ok := kindMessages[engErr.Kind]; ok {
			return msg
		}
		if engErr.Kind == engine.KindTooLarge {
			return engErr.Message
		}
		return "Download failed (yt-dlp): " + engErr.Message
	}
	return "An unexpected error occurred: " + err.Error()
}
