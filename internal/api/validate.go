package api

import (
	"math"
	"slices"
	"strconv"
	"strings"

	"github.com/spf13/cast"
)

const maxSourceIDLen = 15

var (
	videoResolutions = []int{360, 480, 720, 1080}
	audioQualities   = []int{128, 192, 256, 320}
)

// ValidSourceID reports whether id is 1 to 15 ASCII letters, digits, dashes
// or underscores with at least one letter or digit.
func ValidSourceID(id string) bool {
	if id == "" || len(id) > maxSourceIDLen {
		return false
	}
	alnum := false
	for i := 0; i < len(id); i++ {
		c := id[i]
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9':
			alnum = true
		case c == '-' || c == '_':
		default:
			return false
		}
	}
	return alnum
}

// parseChoice coerces a loosely typed JSON value to one of allowed. A
// missing value yields def.
func parseChoice(v any, def int, allowed []int) (int, bool) {
	if v == nil {
		return def, true
	}

	var (
		n   int
		err error
	)
	switch x := v.(type) {
	case string:
		// decimal only: no 0x or octal prefixes
		n, err = strconv.Atoi(strings.TrimSpace(x))
	case float64:
		if x != math.Trunc(x) {
			return 0, false
		}
		n, err = cast.ToIntE(x)
	default:
		n, err = cast.ToIntE(x)
	}
	if err != nil || !slices.Contains(allowed, n) {
		return 0, false
	}
	return n, true
}

func titleOr(title *string, def string) string {
	if title == nil || *title == "" {
		return def
	}
	return *title
}
