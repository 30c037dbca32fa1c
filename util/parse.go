package util

import (
	"strconv"
	"strings"
)

func ParseInt(str string, fallback int) int {
	if v, err := strconv.Atoi(str); err == nil {
		return v
	}
	return fallback
}

func ParseBool(str string, fallback bool) bool {
	if v, err := strconv.ParseBool(str); err == nil {
		return v
	}
	return fallback
}

// ParseUint64 parses a log index; surrounding whitespace is ignored.
func ParseUint64(str string) (uint64, error) {
	return strconv.ParseUint(strings.TrimSpace(str), 10, 64)
}
