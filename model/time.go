package model

import (
	"fmt"
	"strconv"
	"strings"
)

// ParseTime converts a GTFS "H:MM:SS" time to seconds since
// midnight. Hours may exceed 23. Anything that doesn't look like a
// time yields 0.
func ParseTime(s string) int {
	secs, err := ParseTimeStrict(s)
	if err != nil {
		return 0
	}
	return secs
}

// ParseTimeStrict is ParseTime for user input, failing on anything
// but three non-negative numeric fields.
func ParseTimeStrict(s string) (int, error) {
	split := strings.Split(strings.TrimSpace(s), ":")
	if len(split) != 3 {
		return 0, fmt.Errorf("time '%s' is not on form H:MM:SS", s)
	}

	hms := [3]int{}
	for i, str := range split {
		j, err := strconv.Atoi(str)
		if err != nil || j < 0 {
			return 0, fmt.Errorf("time '%s' has invalid field '%s'", s, str)
		}
		hms[i] = j
	}

	return hms[0]*3600 + hms[1]*60 + hms[2], nil
}

// ParseTimePair parses arrival and departure of a stop time, letting
// each fall back to the other when missing.
func ParseTimePair(arrival string, departure string) (int, int) {
	if strings.TrimSpace(arrival) == "" {
		arrival = departure
	}
	if strings.TrimSpace(departure) == "" {
		departure = arrival
	}
	return ParseTime(arrival), ParseTime(departure)
}

// FormatTime is the inverse of ParseTime, producing "HH:MM:SS".
func FormatTime(secs int) string {
	if secs < 0 {
		secs = 0
	}
	h := secs / 3600
	m := (secs % 3600) / 60
	s := secs % 60
	return fmt.Sprintf("%02d:%02d:%02d", h, m, s)
}

// FormatHHMM renders seconds since midnight as "HH:MM".
func FormatHHMM(secs int) string {
	if secs < 0 {
		secs = 0
	}
	return fmt.Sprintf("%02d:%02d", secs/3600, (secs%3600)/60)
}
