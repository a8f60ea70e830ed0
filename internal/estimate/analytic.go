package estimate

import (
	"math"
	"time"
)

// DefaultDuration stands in when a source's duration is unknown.
const DefaultDuration = 600.0

var (
	// VideoResolutions is the simulation order.
	VideoResolutions = []int{720, 1080, 480, 360}
	AudioBitrates    = []int{128, 192, 256, 320}
)

// baseBitrates are typical video bitrates in kbps.
var baseBitrates = map[int]float64{
	360:  450,
	480:  850,
	720:  1300,
	1080: 2800,
}

var audioEfficiency = map[int]float64{
	128: 0.88,
	192: 0.90,
	256: 0.92,
	320: 0.94,
}

const compressionFactor = 0.90

// Timeouts returns the metadata and simulation socket timeouts for a source
// of the given duration in seconds.
func Timeouts(duration float64) (info, sim time.Duration) {
	switch {
	case duration <= 300:
		return 60 * time.Second, 90 * time.Second
	case duration <= 900:
		return 90 * time.Second, 120 * time.Second
	case duration <= 1800:
		return 120 * time.Second, 180 * time.Second
	case duration <= 3600:
		return 150 * time.Second, 240 * time.Second
	case duration <= 7200:
		return 180 * time.Second, 300 * time.Second
	default:
		return 240 * time.Second, 360 * time.Second
	}
}

func durationDiscount(duration float64) float64 {
	switch {
	case duration > 7200:
		return 0.94
	case duration > 3600:
		return 0.96
	case duration > 1800:
		return 0.98
	default:
		return 1.0
	}
}

// VideoEstimate is the analytic byte size of a video at resolution.
// Unknown resolutions estimate to zero.
func VideoEstimate(resolution int, duration float64) int64 {
	kbps := baseBitrates[resolution] * durationDiscount(duration) * compressionFactor
	return bytesFor(kbps, duration)
}

// AudioEstimate is the analytic byte size of an audio track at kbps.
func AudioEstimate(kbps int, duration float64) int64 {
	factor := 1.0
	if duration > 1800 {
		factor = 0.98
	}
	effective := float64(kbps) * audioEfficiency[kbps] * factor
	return bytesFor(effective, duration)
}

func bytesFor(kbps, duration float64) int64 {
	if duration <= 0 {
		return 0
	}
	return int64(kbps * duration * 1000 / 8)
}

// CorrectDuplicates separates 480 and 360 when they report the same size,
// a known negotiation artifact: 480 becomes 15% larger than 360. Other
// entries are left alone.
func CorrectDuplicates(entries map[int]SizeEntry) {
	e480, ok480 := entries[480]
	e360, ok360 := entries[360]
	if !ok480 || !ok360 || e480.Filesize != e360.Filesize {
		return
	}
	e480.Filesize = int64(math.Round(float64(e360.Filesize) * 1.15))
	e480.Adjusted = true
	entries[480] = e480
}

// duplicates groups resolutions that share a byte size.
func duplicates(entries map[int]SizeEntry) map[int64][]int {
	bySize := make(map[int64][]int)
	for _, res := range VideoResolutions {
		if e, ok := entries[res]; ok {
			bySize[e.Filesize] = append(bySize[e.Filesize], res)
		}
	}
	for size, group := range bySize {
		if len(group) < 2 {
			delete(bySize, size)
		}
	}
	return bySize
}

func analyticVideo(duration float64) map[int]SizeEntry {
	out := make(map[int]SizeEntry, len(VideoResolutions))
	for _, res := range VideoResolutions {
		out[res] = SizeEntry{Filesize: VideoEstimate(res, duration), Estimated: true}
	}
	return out
}

func analyticAudio(duration float64) map[int]SizeEntry {
	out := make(map[int]SizeEntry, len(AudioBitrates))
	for _, kbps := range AudioBitrates {
		out[kbps] = SizeEntry{Filesize: AudioEstimate(kbps, duration), Estimated: true}
	}
	return out
}
