package download

import (
	"fmt"
	"strings"
	"unicode"
)

const maxTitleLen = 60

// SafeTitle keeps letters, digits, spaces, dashes and underscores, trims
// trailing spaces, folds spaces to underscores and caps the result at 60
// characters.
func SafeTitle(title string) string {
	var b strings.Builder
	for _, r := range title {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || r == ' ' || r == '-' || r == '_' {
			b.WriteRune(r)
		}
	}
	s := strings.ReplaceAll(strings.TrimRight(b.String(), " "), " ", "_")
	if runes := []rune(s); len(runes) > maxTitleLen {
		s = string(runes[:maxTitleLen])
	}
	return s
}

// VideoStem is the output file name, without extension, for a video job.
func VideoStem(title, sourceID string, resolution int) string {
	return fmt.Sprintf("%s_%s_%dp", SafeTitle(title), sourceID, resolution)
}

// AudioStem is the output file name, without extension, for an audio job.
func AudioStem(title, sourceID string, kbps int) string {
	return fmt.Sprintf("%s_%s_%dkbps", SafeTitle(title), sourceID, kbps)
}

// VideoFormat returns the format selector for a target height. 480 and 360
// are pinned to a tight height band so neighbouring resolutions do not
// negotiate the same stream; other heights take the best stream at or below
// the target.
func VideoFormat(resolution int) string {
	switch resolution {
	case 480:
		return bandedFormat(480, 360)
	case 360:
		return bandedFormat(360, 240)
	}
	h := resolution
	return strings.Join([]string{
		fmt.Sprintf("bestvideo[height<=%d][ext=mp4][vcodec^=avc1]+bestaudio[ext=m4a]", h),
		fmt.Sprintf("bestvideo[height<=%d][ext=mp4]+bestaudio[ext=m4a]", h),
		fmt.Sprintf("bestvideo[height<=%d][vcodec^=avc1]+bestaudio", h),
		fmt.Sprintf("bestvideo[height<=%d]+bestaudio", h),
		fmt.Sprintf("bestvideo[height<=%d][ext=webm]+bestaudio[ext=opus]", h),
		fmt.Sprintf("bestvideo[height<=%d][ext=webm]+bestaudio", h),
		fmt.Sprintf("best[height<=%d][ext=mp4]", h),
		fmt.Sprintf("best[height<=%d]", h),
	}, "/")
}

func bandedFormat(h, floor int) string {
	return strings.Join([]string{
		fmt.Sprintf("bestvideo[height=%d][ext=mp4][vcodec^=avc1]+bestaudio[ext=m4a]", h),
		fmt.Sprintf("bestvideo[height<=%d][height>%d][ext=mp4][vcodec^=avc1]+bestaudio[ext=m4a]", h, floor),
		fmt.Sprintf("bestvideo[height=%d][ext=mp4]+bestaudio[ext=m4a]", h),
		fmt.Sprintf("bestvideo[height<=%d][height>%d][ext=mp4]+bestaudio[ext=m4a]", h, floor),
		fmt.Sprintf("bestvideo[height<=%d][vcodec^=avc1]+bestaudio", h),
		fmt.Sprintf("bestvideo[height<=%d]+bestaudio", h),
		fmt.Sprintf("best[height=%d][ext=mp4]", h),
		fmt.Sprintf("best[height<=%d][height>%d]", h, floor),
	}, "/")
}

// AudioFormat returns the format selector for a target bitrate in kbps.
func AudioFormat(kbps int) string {
	return fmt.Sprintf("bestaudio[abr<=%d]/bestaudio/best", kbps)
}
