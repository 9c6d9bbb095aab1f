package checks

import (
	"bufio"
	"bytes"
	"fmt"
	"strings"

	"github.com/eugenenazirov/releasecheck/internal/releaseconfig"
	"github.com/eugenenazirov/releasecheck/internal/storage"
)

// CheckExcludedContent fails on the first line of file that contains
// excluded, compared case-insensitively. An empty pattern excludes nothing.
func CheckExcludedContent(store storage.Storage, file, excluded string) error {
	if excluded == "" {
		return nil
	}

	data, err := readConfig(store, file)
	if err != nil {
		return err
	}

	needle := strings.ToLower(excluded)
	return scanLines(data, func(lineNo int, line string) error {
		if !strings.Contains(strings.ToLower(line), needle) {
			return nil
		}
		return &Violation{
			Rule:    RuleExcludedContent,
			File:    file,
			Line:    lineNo,
			Message: fmt.Sprintf("%s found in %s, ensure there are no conflicting job types here", excluded, file),
			kind:    ErrExcludedContent,
		}
	})
}

// CheckForbiddenFlag fails on the first line of file that contains flag verbatim.
func CheckForbiddenFlag(store storage.Storage, file, flag string) error {
	if flag == "" {
		return nil
	}

	data, err := readConfig(store, file)
	if err != nil {
		return err
	}

	return scanLines(data, func(lineNo int, line string) error {
		if !strings.Contains(line, flag) {
			return nil
		}
		return &Violation{
			Rule:    RuleForbiddenFlag,
			File:    file,
			Line:    lineNo,
			Message: fmt.Sprintf("%q is not permitted in patch file %s", flag, file),
			kind:    ErrForbiddenFlag,
		}
	})
}

// CheckParseable fails when file is not a single well-formed YAML document.
func CheckParseable(store storage.Storage, file string) error {
	data, err := readConfig(store, file)
	if err != nil {
		return err
	}
	if err := releaseconfig.Validate(data); err != nil {
		return parseViolation(file, err)
	}
	return nil
}

func readConfig(store storage.Storage, file string) ([]byte, error) {
	data, err := store.ReadFile(file)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", file, err)
	}
	return data, nil
}

// scanLines calls fn for every line of data with its 1-based number and
// stops at the first error fn returns.
func scanLines(data []byte, fn func(lineNo int, line string) error) error {
	scanner := bufio.NewScanner(bytes.NewReader(data))
	scanner.Buffer(make([]byte, 0, 64*1024), len(data)+1)

	lineNo := 0
	for scanner.Scan() {
		lineNo++
		if err := fn(lineNo, scanner.Text()); err != nil {
			return err
		}
	}
	return scanner.Err()
}
