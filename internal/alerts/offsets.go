package alerts

import (
	"log/slog"
	"sort"
	"strconv"
	"strings"
)

// DefaultOffsets is the built-in alert schedule: days before renewal at
// which alerts fire, largest lead time first.
var DefaultOffsets = []int{30, 25, 20, 10}

// ResolveOffsets parses a comma-separated list of day-offsets. The result is
// duplicate-free and sorted descending. An absent or empty value yields
// DefaultOffsets. A value with any invalid token is discarded entirely in
// favor of the defaults; partial parses are never accepted.
func ResolveOffsets(raw string) []int {
	if strings.TrimSpace(raw) == "" {
		return append([]int(nil), DefaultOffsets...)
	}

	seen := make(map[int]bool)
	offsets := make([]int, 0)
	for _, token := range strings.Split(raw, ",") {
		token = strings.TrimSpace(token)
		n, err := strconv.Atoi(token)
		if err != nil || n < 0 {
			slog.Warn("invalid alert offsets, using defaults",
				"raw", raw,
				"token", token,
			)
			return append([]int(nil), DefaultOffsets...)
		}
		if !seen[n] {
			seen[n] = true
			offsets = append(offsets, n)
		}
	}

	sort.Sort(sort.Reverse(sort.IntSlice(offsets)))
	return offsets
}
