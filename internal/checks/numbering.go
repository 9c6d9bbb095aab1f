package checks

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/pmezard/go-difflib/difflib"
	"go.uber.org/zap"

	"github.com/eugenenazirov/releasecheck/internal/releaseconfig"
	"github.com/eugenenazirov/releasecheck/internal/storage"
)

// numberedLine matches a release key directly under release_images.
var numberedLine = regexp.MustCompile(`^\s{2}\d+:`)

// CheckNumbering requires the release keys of file to read 1, 2, ... N in
// document order. On the first mismatch it logs a renumbered listing of the
// file and returns a numbering violation carrying that listing.
func CheckNumbering(store storage.Storage, file string, logger *zap.Logger) error {
	if logger == nil {
		logger = zap.NewNop()
	}

	data, err := readConfig(store, file)
	if err != nil {
		return err
	}

	doc, err := releaseconfig.Parse(file, data)
	if err != nil {
		return parseViolation(file, err)
	}

	for i, entry := range doc.Entries {
		want := i + 1
		if got, convErr := entry.Number(); convErr == nil && got == want {
			continue
		}

		suggestion := SuggestNumbering(data)
		logger.Error("numbering seems incorrect, try updating to the following",
			zap.String("file", file),
			zap.Int("position", want),
			zap.String("found", entry.Key),
		)
		logger.Info("suggested numbering", zap.String("file", file), zap.String("listing", suggestion))
		if diff := numberingDiff(file, data, suggestion); diff != "" {
			logger.Info("suggested numbering diff", zap.String("file", file), zap.String("diff", diff))
		}

		return &Violation{
			Rule:       RuleNumbering,
			File:       file,
			Line:       entry.Line,
			Key:        entry.Key,
			Position:   want,
			Message:    fmt.Sprintf("entry %d in %s is numbered incorrectly as %s (expected %d), please correct the ordering", want, file, entry.Key, want),
			Suggestion: suggestion,
			kind:       ErrNumbering,
		}
	}

	return nil
}

// SuggestNumbering rewrites every top-level release key of data with a
// running counter starting at 1, leaving all other lines untouched.
func SuggestNumbering(data []byte) string {
	lines := strings.Split(string(data), "\n")
	counter := 1
	for i, line := range lines {
		loc := numberedLine.FindStringIndex(line)
		if loc == nil {
			continue
		}
		lines[i] = fmt.Sprintf("  %d:%s", counter, line[loc[1]:])
		counter++
	}
	return strings.Join(lines, "\n")
}

func numberingDiff(file string, current []byte, suggestion string) string {
	diff, err := difflib.GetUnifiedDiffString(difflib.UnifiedDiff{
		A:        difflib.SplitLines(string(current)),
		B:        difflib.SplitLines(suggestion),
		FromFile: file,
		ToFile:   file + " (renumbered)",
		Context:  1,
	})
	if err != nil {
		return ""
	}
	return diff
}
