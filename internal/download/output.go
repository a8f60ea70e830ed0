package download

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

var (
	ErrOutputMissing = errors.New("output file not found after download")
	ErrOutputEmpty   = errors.New("output file is empty")
)

// partialSuffixes mark engine scratch files that must never be reported as
// the finished output.
var partialSuffixes = []string{".part", ".ytdl", ".temp"}

// ResolveOutput finds the file a download produced. It tries, in order, the
// path reported by the engine, the expected name stem.ext in dir, and any
// stem.* in dir. The first regular file wins.
func ResolveOutput(dir, stem, ext, reported string) (string, error) {
	if reported != "" && isRegular(reported) {
		return reported, nil
	}

	expected := filepath.Join(dir, stem+"."+ext)
	if isRegular(expected) {
		return expected, nil
	}

	matches, err := filepath.Glob(filepath.Join(dir, stem+".*"))
	if err != nil {
		return "", fmt.Errorf("scan output dir: %w", err)
	}
	sort.Strings(matches)
	for _, m := range matches {
		if isPartial(m) {
			continue
		}
		if isRegular(m) {
			return m, nil
		}
	}
	return "", ErrOutputMissing
}

func isRegular(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular()
}

func isPartial(path string) bool {
	for _, s := range partialSuffixes {
		if strings.HasSuffix(path, s) {
			return true
		}
	}
	return false
}
