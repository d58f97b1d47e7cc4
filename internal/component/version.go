package component

import (
	"sort"
	"strconv"
	"strings"
)

// CompareVersions orders tags segment by segment, numerically where both
// segments are numbers and lexically otherwise. It returns -1, 0 or 1.
func CompareVersions(a, b Version) int {
	as := strings.Split(string(a), ".")
	bs := strings.Split(string(b), ".")

	for i := 0; i < len(as) || i < len(bs); i++ {
		if i >= len(as) {
			return -1
		}
		if i >= len(bs) {
			return 1
		}
		if c := compareSegment(as[i], bs[i]); c != 0 {
			return c
		}
	}
	return 0
}

func compareSegment(a, b string) int {
	an, aerr := strconv.ParseUint(a, 10, 64)
	bn, berr := strconv.ParseUint(b, 10, 64)

	switch {
	case aerr == nil && berr == nil:
		if an < bn {
			return -1
		} else if an > bn {
			return 1
		}
		return 0
	case aerr == nil:
		// numeric segments sort before pre-release style labels
		return -1
	case berr == nil:
		return 1
	default:
		return strings.Compare(a, b)
	}
}

// SortVersions sorts tags in ascending order
func SortVersions(vs []Version) {
	sort.SliceStable(vs, func(i, j int) bool { return CompareVersions(vs[i], vs[j]) < 0 })
}

// Latest returns the greatest version, or "" for an empty list
func Latest(vs []Version) Version {
	var latest Version
	for _, v := range vs {
		if latest == "" || CompareVersions(v, latest) > 0 {
			latest = v
		}
	}
	return latest
}
