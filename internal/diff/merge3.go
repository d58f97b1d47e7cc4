package diff

import (
	"bytes"
	"strings"
	"unicode/utf8"

	"github.com/sergi/go-diff/diffmatchpatch"
)

// Conflict markers
const (
	MarkerStart     = "<<<<<<<"
	MarkerSeparator = "======="
	MarkerEnd       = ">>>>>>>"
)

// binarySniffLen matches the prefix git inspects for NUL bytes
const binarySniffLen = 8000

// Labels name the two sides of a conflict region
type Labels struct {
	Ours   string
	Theirs string
}

// MergeResult is the outcome of a three-way merge
type MergeResult struct {
	Content   []byte
	Conflicts int
}

// hunk replaces ancestor lines [Start, End) with Lines
type hunk struct {
	Start, End int
	Lines      []string
	side       int
}

const (
	sideOurs = iota
	sideTheirs
)

// IsBinary reports whether content cannot be treated as text
func IsBinary(content []byte) bool {
	sniff := content
	if len(sniff) > binarySniffLen {
		sniff = sniff[:binarySniffLen]
	}
	if bytes.IndexByte(sniff, 0) >= 0 {
		return true
	}
	return !utf8.Valid(content)
}

// Merge3 incorporates the changes ancestor→ours and ancestor→theirs into
// one result. Non-overlapping hunks are applied from both sides, identical
// overlapping edits are taken once, and differing overlapping edits are
// emitted as conflict regions with ours first. Callers must check IsBinary
// beforehand; binary input is merged line-wise as if it were text.
func Merge3(ancestor, ours, theirs []byte, labels Labels) (*MergeResult, error) {
	switch {
	case bytes.Equal(ours, theirs), bytes.Equal(ancestor, theirs):
		return &MergeResult{Content: ours}, nil
	case bytes.Equal(ancestor, ours):
		return &MergeResult{Content: theirs}, nil
	}

	base := splitLines(string(ancestor))

	oursHunks, err := hunks(base, splitLines(string(ours)), sideOurs)
	if err != nil {
		return nil, err
	}
	theirsHunks, err := hunks(base, splitLines(string(theirs)), sideTheirs)
	if err != nil {
		return nil, err
	}
	all := mergeHunks(oursHunks, theirsHunks)

	var out strings.Builder
	result := &MergeResult{}
	cursor := 0

	for i := 0; i < len(all); {
		start, end := all[i].Start, all[i].End
		j := i + 1
		for j < len(all) && overlaps(start, end, all[j]) {
			end = max(end, all[j].End)
			j++
		}
		group := all[i:j]
		i = j

		writeLines(&out, base[cursor:start])
		cursor = end

		var mine, other []hunk
		for _, h := range group {
			if h.side == sideOurs {
				mine = append(mine, h)
			} else {
				other = append(other, h)
			}
		}

		switch {
		case len(other) == 0:
			writeLines(&out, apply(base, start, end, mine))
		case len(mine) == 0:
			writeLines(&out, apply(base, start, end, other))
		default:
			a := apply(base, start, end, mine)
			b := apply(base, start, end, other)
			if equalLines(a, b) {
				writeLines(&out, a)
				continue
			}
			result.Conflicts++
			writeConflict(&out, a, b, labels)
		}
	}
	writeLines(&out, base[cursor:])

	result.Content = []byte(out.String())
	return result, nil
}

// hunks converts the edit script ancestor→other into replacement hunks
func hunks(base, other []string, side int) ([]hunk, error) {
	ops, err := diffLines(base, other)
	if err != nil {
		return nil, err
	}

	var out []hunk
	var cur *hunk
	pos := 0

	for _, op := range ops {
		switch op.Type {
		case diffmatchpatch.DiffEqual:
			if cur != nil {
				out = append(out, *cur)
				cur = nil
			}
			pos += len(op.Lines)
		case diffmatchpatch.DiffDelete:
			if cur == nil {
				cur = &hunk{Start: pos, End: pos, side: side}
			}
			pos += len(op.Lines)
			cur.End = pos
		case diffmatchpatch.DiffInsert:
			if cur == nil {
				cur = &hunk{Start: pos, End: pos, side: side}
			}
			cur.Lines = append(cur.Lines, op.Lines...)
		}
	}
	if cur != nil {
		out = append(out, *cur)
	}
	return out, nil
}

// mergeHunks interleaves both sides ordered by (Start, End), ours first on ties
func mergeHunks(a, b []hunk) []hunk {
	out := make([]hunk, 0, len(a)+len(b))
	i, j := 0, 0
	for i < len(a) && j < len(b) {
		if b[j].Start < a[i].Start || (b[j].Start == a[i].Start && b[j].End < a[i].End) {
			out = append(out, b[j])
			j++
		} else {
			out = append(out, a[i])
			i++
		}
	}
	out = append(out, a[i:]...)
	return append(out, b[j:]...)
}

// overlaps reports whether h touches the region [start, end). Insertions at
// the boundary of a region, or two insertions at one point, also overlap.
func overlaps(start, end int, h hunk) bool {
	if h.Start < end {
		return true
	}
	return h.Start == end && (h.Start == h.End || start == end)
}

// apply rewrites base[start:end) with one side's hunks
func apply(base []string, start, end int, hs []hunk) []string {
	var lines []string
	pos := start
	for _, h := range hs {
		lines = append(lines, base[pos:h.Start]...)
		lines = append(lines, h.Lines...)
		pos = h.End
	}
	return append(lines, base[pos:end]...)
}

func equalLines(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func writeLines(sb *strings.Builder, lines []string) {
	for _, l := range lines {
		sb.WriteString(l)
	}
}

func writeConflict(sb *strings.Builder, ours, theirs []string, labels Labels) {
	writeMarker(sb, MarkerStart, labels.Ours)
	writeTerminated(sb, ours)
	writeMarker(sb, MarkerSeparator, "")
	writeTerminated(sb, theirs)
	writeMarker(sb, MarkerEnd, labels.Theirs)
}

func writeMarker(sb *strings.Builder, marker, label string) {
	sb.WriteString(marker)
	if label != "" {
		sb.WriteString(" ")
		sb.WriteString(label)
	}
	sb.WriteString("\n")
}

// writeTerminated writes lines so a following marker starts its own line
func writeTerminated(sb *strings.Builder, lines []string) {
	writeLines(sb, lines)
	if n := len(lines); n > 0 && !strings.HasSuffix(lines[n-1], "\n") {
		sb.WriteString("\n")
	}
}

// HasConflictMarkers reports whether content contains a conflict region
func HasConflictMarkers(content []byte) bool {
	for _, line := range splitLines(string(content)) {
		if strings.HasPrefix(line, MarkerStart+" ") || strings.TrimRight(line, "\n") == MarkerStart {
			return true
		}
	}
	return false
}
