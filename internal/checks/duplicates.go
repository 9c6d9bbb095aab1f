package checks

import (
	"fmt"

	"github.com/google/go-cmp/cmp"

	"github.com/eugenenazirov/releasecheck/internal/releaseconfig"
	"github.com/eugenenazirov/releasecheck/internal/storage"
)

type seenGrouping struct {
	file  string
	key   string
	value any
}

// CheckNoDuplicates walks the release groupings of files in order and fails
// on the first grouping equal to one already seen, in the same file or an
// earlier one.
func CheckNoDuplicates(store storage.Storage, files ...string) error {
	var seen []seenGrouping

	for _, file := range files {
		data, err := readConfig(store, file)
		if err != nil {
			return err
		}

		doc, err := releaseconfig.Parse(file, data)
		if err != nil {
			return parseViolation(file, err)
		}

		for _, entry := range doc.Entries {
			for _, prev := range seen {
				if !cmp.Equal(prev.value, entry.Value) {
					continue
				}
				return &Violation{
					Rule: RuleDuplicates,
					File: file,
					Line: entry.Line,
					Key:  entry.Key,
					Message: fmt.Sprintf(
						"found duplicate config for %v under key %s in %s, first seen under key %s in %s",
						entry.Value, entry.Key, file, prev.key, prev.file,
					),
					kind: ErrDuplicateGrouping,
				}
			}
			seen = append(seen, seenGrouping{file: file, key: entry.Key, value: entry.Value})
		}
	}

	return nil
}
