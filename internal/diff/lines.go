package diff

import (
	"fmt"
	"strings"

	"github.com/sergi/go-diff/diffmatchpatch"
)

// Lines are encoded as runes counting up from the start of the BMP private
// use area. No surrogates lie above it, so every encoded line is a valid
// scalar value and survives string conversion.
const (
	firstLineRune = 0xE000
	maxLines      = 0x10FFFF - firstLineRune
)

// lineOp is a run of whole lines sharing one edit operation
type lineOp struct {
	Type  diffmatchpatch.Operation
	Lines []string
}

// lineIndex interns lines so two texts can be diffed one rune per line
type lineIndex struct {
	ids   map[string]rune
	lines []string
}

func newLineIndex() *lineIndex {
	return &lineIndex{ids: make(map[string]rune)}
}

func (x *lineIndex) encode(lines []string) ([]rune, error) {
	out := make([]rune, len(lines))
	for i, line := range lines {
		r, ok := x.ids[line]
		if !ok {
			if len(x.lines) >= maxLines {
				return nil, fmt.Errorf("too many distinct lines to diff (%d)", len(x.lines))
			}
			r = rune(firstLineRune + len(x.lines))
			x.ids[line] = r
			x.lines = append(x.lines, line)
		}
		out[i] = r
	}
	return out, nil
}

func (x *lineIndex) decode(rs []rune) []string {
	out := make([]string, len(rs))
	for i, r := range rs {
		out[i] = x.lines[r-firstLineRune]
	}
	return out
}

// splitLines splits text into lines, each keeping its trailing newline.
// A final line without a newline is kept as is.
func splitLines(s string) []string {
	if s == "" {
		return nil
	}
	lines := strings.SplitAfter(s, "\n")
	if lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	}
	return lines
}

// diffLines computes the line edit script turning a into b
func diffLines(a, b []string) ([]lineOp, error) {
	idx := newLineIndex()
	ra, err := idx.encode(a)
	if err != nil {
		return nil, err
	}
	rb, err := idx.encode(b)
	if err != nil {
		return nil, err
	}

	dmp := diffmatchpatch.New()
	// Merges must be reproducible, so the bisection never gives up early.
	dmp.DiffTimeout = 0
	diffs := dmp.DiffMainRunes(ra, rb, false)

	ops := make([]lineOp, 0, len(diffs))
	for _, d := range diffs {
		if d.Text == "" {
			continue
		}
		ops = append(ops, lineOp{Type: d.Type, Lines: idx.decode([]rune(d.Text))})
	}
	return ops, nil
}
