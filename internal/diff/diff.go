package diff

import (
	"strings"

	"github.com/pmezard/go-difflib/difflib"
	"github.com/sergi/go-diff/diffmatchpatch"
)

// DefaultContext is the number of context lines in unified hunks
const DefaultContext = 3

// DiffResult represents the result of comparing two versions of a file
type DiffResult struct {
	// UnifiedDiff is the traditional unified diff format
	UnifiedDiff string `json:"unified_diff"`
	// Lines contains line-by-line diff information
	Lines []DiffLine `json:"lines"`
	// Stats contains summary statistics
	Stats DiffStats `json:"stats"`
	// HasChanges indicates if there are any differences
	HasChanges bool `json:"has_changes"`
	// Binary is set when either side is not text; no lines are produced
	Binary bool `json:"binary,omitempty"`
}

// DiffLine represents a single line in the diff
type DiffLine struct {
	Type       DiffLineType `json:"type"`
	OldLineNum int          `json:"old_line_num,omitempty"`
	NewLineNum int          `json:"new_line_num,omitempty"`
	Content    string       `json:"content"`
}

// DiffLineType represents the type of diff line
type DiffLineType string

const (
	DiffLineContext DiffLineType = "context"
	DiffLineAdded   DiffLineType = "added"
	DiffLineRemoved DiffLineType = "removed"
)

// DiffStats contains summary statistics about the diff
type DiffStats struct {
	LinesAdded   int `json:"lines_added"`
	LinesRemoved int `json:"lines_removed"`
	LinesChanged int `json:"lines_changed"`
}

// Compare generates a diff between two contents
func Compare(oldContent, newContent []byte) (*DiffResult, error) {
	return CompareVersions(oldContent, newContent, "old", "new")
}

// CompareVersions compares two version contents and returns a structured
// diff whose unified header carries the given labels
func CompareVersions(oldContent, newContent []byte, oldLabel, newLabel string) (*DiffResult, error) {
	result := &DiffResult{
		Lines: []DiffLine{},
	}

	if string(oldContent) == string(newContent) {
		return result, nil
	}
	result.HasChanges = true

	if IsBinary(oldContent) || IsBinary(newContent) {
		result.Binary = true
		return result, nil
	}

	oldLines := splitLines(string(oldContent))
	newLines := splitLines(string(newContent))

	ops, err := diffLines(oldLines, newLines)
	if err != nil {
		return nil, err
	}

	result.UnifiedDiff, err = Unified(oldLabel, newLabel, oldLines, newLines, DefaultContext)
	if err != nil {
		return nil, err
	}
	result.Lines, result.Stats = generateLineDiff(ops)

	return result, nil
}

// Unified renders a classic unified patch for a↦b
func Unified(aName, bName string, a, b []string, context int) (string, error) {
	if context <= 0 {
		context = DefaultContext
	}
	return difflib.GetUnifiedDiffString(difflib.UnifiedDiff{
		A:        a,
		B:        b,
		FromFile: aName,
		ToFile:   bName,
		Context:  context,
	})
}

// generateLineDiff creates a structured line-by-line diff
func generateLineDiff(ops []lineOp) ([]DiffLine, DiffStats) {
	var lines []DiffLine
	var stats DiffStats

	oldLineNum := 1
	newLineNum := 1

	for _, op := range ops {
		for _, line := range op.Lines {
			content := strings.TrimSuffix(line, "\n")

			switch op.Type {
			case diffmatchpatch.DiffEqual:
				lines = append(lines, DiffLine{
					Type:       DiffLineContext,
					OldLineNum: oldLineNum,
					NewLineNum: newLineNum,
					Content:    content,
				})
				oldLineNum++
				newLineNum++

			case diffmatchpatch.DiffDelete:
				lines = append(lines, DiffLine{
					Type:       DiffLineRemoved,
					OldLineNum: oldLineNum,
					Content:    content,
				})
				oldLineNum++
				stats.LinesRemoved++

			case diffmatchpatch.DiffInsert:
				lines = append(lines, DiffLine{
					Type:       DiffLineAdded,
					NewLineNum: newLineNum,
					Content:    content,
				})
				newLineNum++
				stats.LinesAdded++
			}
		}
	}

	// Estimate changed lines (where a removal is followed by an addition)
	stats.LinesChanged = min(stats.LinesAdded, stats.LinesRemoved)

	return lines, stats
}
