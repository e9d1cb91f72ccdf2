package sysfs

import (
	"strconv"
	"strings"
)

// ParseCPUList expands a kernel CPU range list such as "0-3,5,7-9" into
// the individual indices [0 1 2 3 5 7 8 9]. Empty input yields an empty
// slice; malformed parts are skipped.
func ParseCPUList(content string) []int {
	result := []int{}
	trimmed := strings.TrimSpace(content)
	if trimmed == "" {
		return result
	}

	for _, part := range strings.Split(trimmed, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}

		if strings.Contains(part, "-") {
			bounds := strings.SplitN(part, "-", 2)
			start, err := strconv.Atoi(bounds[0])
			if err != nil {
				continue
			}
			end, err := strconv.Atoi(bounds[1])
			if err != nil {
				continue
			}
			for i := start; i <= end; i++ {
				result = append(result, i)
			}
			continue
		}

		idx, err := strconv.Atoi(part)
		if err != nil {
			continue
		}
		result = append(result, idx)
	}

	return result
}

// ParseList splits a whitespace-separated sysfs value list into fields.
func ParseList(content string) []string {
	return strings.Fields(content)
}
