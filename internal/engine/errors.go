package engine

import (
	"errors"
	"fmt"
	"strings"
)

type ErrorKind string

const (
	KindUnsupported ErrorKind = "unsupported"
	KindUnavailable ErrorKind = "unavailable"
	KindPrivate     ErrorKind = "private"
	KindForbidden   ErrorKind = "forbidden"
	KindNotFound    ErrorKind = "not_found"
	KindRateLimited ErrorKind = "rate_limited"
	KindTooLarge    ErrorKind = "too_large"
	KindUnknown     ErrorKind = "unknown"
)

// Error is a classified engine failure.
type Error struct {
	Kind     ErrorKind
	Message  string
	ExitCode int
}

func (e *Error) Error() string {
	return fmt.Sprintf("engine error (%s): %s", e.Kind, e.Message)
}

// KindOf returns the kind of an engine error, or KindUnknown for anything else.
func KindOf(err error) ErrorKind {
	var engErr *Error
	if errors.As(err, &engErr) {
		return engErr.Kind
	}
	return KindUnknown
}

// patterns are checked in order; the first match wins.
var patterns = []struct {
	needle string
	kind   ErrorKind
}{
	{"Unsupported URL", KindUnsupported},
	{"Video unavailable", KindUnavailable},
	{"Private video", KindPrivate},
	{"HTTP Error 403", KindForbidden},
	{"HTTP Error 404", KindNotFound},
	{"HTTP Error 429", KindRateLimited},
	{"larger than max-filesize", KindTooLarge},
	{"File too large", KindTooLarge},
}

// Classify turns engine diagnostics into an *Error. The message is the last
// ERROR line when present, otherwise the last non-empty line.
func Classify(stderr string, exitCode int) *Error {
	kind := KindUnknown
	for _, p := range patterns {
		if strings.Contains(stderr, p.needle) {
			kind = p.kind
			break
		}
	}
	return &Error{Kind: kind, Message: lastErrorLine(stderr), ExitCode: exitCode}
}

func lastErrorLine(s string) string {
	lines := strings.Split(strings.TrimSpace(s), "\n")
	last := ""
	for i := len(lines) - 1; i >= 0; i-- {
		line := strings.TrimSpace(lines[i])
		if line == "" {
			continue
		}
		if last == "" {
			last = line
		}
		if strings.HasPrefix(line, "ERROR:") {
			return strings.TrimSpace(strings.TrimPrefix(line, "ERROR:"))
		}
	}
	if last == "" {
		return "engine exited without diagnostics"
	}
	return last
}
