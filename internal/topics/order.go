package topics

import (
	"strconv"
	"strings"
)

// compareVersions orders dotted release labels segment by segment. Numeric
// segments compare as numbers, anything else lexically, and missing segments
// count as zero, so "3.9" and "3.9.0" are equal. It is used only to place a
// version inside the release catalog; the version gate itself compares raw
// strings.
func compareVersions(a, b string) int {
	left := splitVersion(a)
	right := splitVersion(b)
	for i := 0; i < max(len(left), len(right)); i++ {
		l, r := segmentAt(left, i), segmentAt(right, i)
		if c := compareSegment(l, r); c != 0 {
			return c
		}
	}
	return 0
}

func splitVersion(v string) []string {
	v = strings.TrimPrefix(strings.TrimSpace(v), "v")
	if v == "" {
		return nil
	}
	return strings.Split(v, ".")
}

func segmentAt(parts []string, i int) string {
	if i < len(parts) {
		return parts[i]
	}
	return "0"
}

func compareSegment(a, b string) int {
	an, aerr := strconv.Atoi(a)
	bn, berr := strconv.Atoi(b)
	switch {
	case aerr == nil && berr == nil:
		switch {
		case an < bn:
			return -1
		case an > bn:
			return 1
		}
		return 0
	case aerr == nil:
		return -1
	case berr == nil:
		return 1
	default:
		return strings.Compare(a, b)
	}
}
