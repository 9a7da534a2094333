package util

import (
	"strconv"
)

// ParseIntParam parses an optional integer parameter. An empty string
// yields defaultValue; anything else must parse.
func ParseIntParam(s string, defaultValue int) (int, error) {
	if s == "" {
		return defaultValue, nil
	}
	return strconv.Atoi(s)
}

// ParseBoolParam parses an optional boolean parameter the same way.
func ParseBoolParam(s string, defaultValue bool) (bool, error) {
	if s == "" {
		return defaultValue, nil
	}
	return strconv.ParseBool(s)
}
