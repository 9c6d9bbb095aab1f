package checks

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/eugenenazirov/releasecheck/internal/storage"
)

func newStore(t *testing.T, files map[string]string) *storage.MemoryStorage {
	t.Helper()

	store := storage.NewMemoryStorage()
	for name, content := range files {
		require.NoError(t, store.SetFile(name, []byte(content)))
	}
	return store
}

func TestCheckExcludedContent(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		content  string
		excluded string
		wantLine int
	}{
		{
			name:     "clean file",
			content:  "release_images:\n  1:\n    framework: pytorch\n    job_type: training\n",
			excluded: "inference",
		},
		{
			name:     "exact match",
			content:  "release_images:\n  1:\n    framework: pytorch\n    job_type: inference\n",
			excluded: "inference",
			wantLine: 4,
		},
		{
			name:     "case insensitive match",
			content:  "release_images:\n  1:\n    # Inference images live elsewhere\n",
			excluded: "inference",
			wantLine: 3,
		},
		{
			name:     "first offending line is reported",
			content:  "release_images:\n  1: [TRAINING]\n  2: [training]\n",
			excluded: "training",
			wantLine: 2,
		},
		{
			name:     "empty pattern excludes nothing",
			content:  "anything at all\n",
			excluded: "",
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			store := newStore(t, map[string]string{"f.yml": tt.content})
			err := CheckExcludedContent(store, "f.yml", tt.excluded)

			if tt.wantLine == 0 {
				require.NoError(t, err)
				return
			}

			require.ErrorIs(t, err, ErrExcludedContent)
			v, ok := AsViolation(err)
			require.True(t, ok)
			assert.Equal(t, RuleExcludedContent, v.Rule)
			assert.Equal(t, "f.yml", v.File)
			assert.Equal(t, tt.wantLine, v.Line)
			assert.Contains(t, err.Error(), tt.excluded)
		})
	}
}

func TestCheckForbiddenFlag(t *testing.T) {
	t.Parallel()

	clean := "release_images:\n  1:\n    force_release: False\n    note: force_release true is lower case\n"
	store := newStore(t, map[string]string{
		"clean.yml": clean,
		"bad.yml":   "release_images:\n  1:\n    framework: pytorch\n    force_release: True\n",
	})

	require.NoError(t, CheckForbiddenFlag(store, "clean.yml", DefaultForbiddenFlag))

	err := CheckForbiddenFlag(store, "bad.yml", DefaultForbiddenFlag)
	require.ErrorIs(t, err, ErrForbiddenFlag)
	v, ok := AsViolation(err)
	require.True(t, ok)
	assert.Equal(t, 4, v.Line)
	assert.Equal(t, RuleForbiddenFlag, v.Rule)
}

func TestCheckParseable(t *testing.T) {
	t.Parallel()

	store := newStore(t, map[string]string{
		"good.yml":  "release_images:\n  1: [a]\n",
		"empty.yml": "",
		"bad.yml":   "release_images:\n  1: [a\n",
	})

	require.NoError(t, CheckParseable(store, "good.yml"))
	require.NoError(t, CheckParseable(store, "empty.yml"))

	err := CheckParseable(store, "bad.yml")
	require.ErrorIs(t, err, ErrInvalidYAML)
	v, ok := AsViolation(err)
	require.True(t, ok)
	assert.Equal(t, RuleParse, v.Rule)
	assert.Contains(t, err.Error(), "failed to load bad.yml as YAML")

	// the original decoder error stays reachable
	var inner interface{ Unwrap() []error }
	require.True(t, errors.As(err, &inner))
	assert.Len(t, inner.Unwrap(), 2)
}

func TestRepeatedKeysFailEveryParsingCheckAlike(t *testing.T) {
	t.Parallel()

	store := newStore(t, map[string]string{
		"f.yml": "release_images:\n  1:\n    framework: pytorch\n    force_release: False\n    force_release: False\n  2:\n    framework: jax\n",
	})

	for name, err := range map[string]error{
		"parseable":  CheckParseable(store, "f.yml"),
		"numbering":  CheckNumbering(store, "f.yml", nil),
		"duplicates": CheckNoDuplicates(store, "f.yml"),
	} {
		require.ErrorIs(t, err, ErrInvalidYAML, name)
		v, ok := AsViolation(err)
		require.True(t, ok, name)
		assert.Equal(t, RuleParse, v.Rule, name)
	}
}

func TestChecksReportMissingFiles(t *testing.T) {
	t.Parallel()

	store := storage.NewMemoryStorage()

	assert.ErrorIs(t, CheckParseable(store, "missing.yml"), storage.ErrNotFound)
	assert.ErrorIs(t, CheckExcludedContent(store, "missing.yml", "training"), storage.ErrNotFound)
	assert.ErrorIs(t, CheckForbiddenFlag(store, "missing.yml", DefaultForbiddenFlag), storage.ErrNotFound)
	assert.ErrorIs(t, CheckNumbering(store, "missing.yml", nil), storage.ErrNotFound)
	assert.ErrorIs(t, CheckNoDuplicates(store, "missing.yml"), storage.ErrNotFound)

	_, isViolation := AsViolation(CheckParseable(store, "missing.yml"))
	assert.False(t, isViolation)
}

func TestCheckNumbering(t *testing.T) {
	t.Parallel()

	t.Run("sequential keys pass", func(t *testing.T) {
		store := newStore(t, map[string]string{
			"f.yml": "release_images:\n  1: [a]\n  2: [b]\n  3: [c]\n",
		})
		require.NoError(t, CheckNumbering(store, "f.yml", zap.NewNop()))
	})

	t.Run("empty mapping passes", func(t *testing.T) {
		store := newStore(t, map[string]string{"f.yml": "release_images: {}\n"})
		require.NoError(t, CheckNumbering(store, "f.yml", nil))
	})

	t.Run("gap fails at first mismatch", func(t *testing.T) {
		content := "release_images:\n  1: [a]\n  2: [b]\n  4: [c]\n  5: [d]\n"
		store := newStore(t, map[string]string{"f.yml": content})

		core, logs := observer.New(zapcore.InfoLevel)
		err := CheckNumbering(store, "f.yml", zap.New(core))

		require.ErrorIs(t, err, ErrNumbering)
		v, ok := AsViolation(err)
		require.True(t, ok)
		assert.Equal(t, 3, v.Position)
		assert.Equal(t, "4", v.Key)
		assert.Equal(t, 4, v.Line)
		assert.Contains(t, err.Error(), "numbered incorrectly as 4")
		assert.Equal(t, "release_images:\n  1: [a]\n  2: [b]\n  3: [c]\n  4: [d]\n", v.Suggestion)

		require.Equal(t, 1, logs.FilterMessage("numbering seems incorrect, try updating to the following").Len())
		listing := logs.FilterMessage("suggested numbering").All()
		require.Len(t, listing, 1)
		assert.Equal(t, v.Suggestion, listing[0].ContextMap()["listing"])

		diffs := logs.FilterMessage("suggested numbering diff").All()
		require.Len(t, diffs, 1)
		diff, _ := diffs[0].ContextMap()["diff"].(string)
		assert.Contains(t, diff, "-  4: [c]")
		assert.Contains(t, diff, "+  3: [c]")
	})

	t.Run("out of order keys fail", func(t *testing.T) {
		store := newStore(t, map[string]string{
			"f.yml": "release_images:\n  2: [b]\n  1: [a]\n",
		})
		err := CheckNumbering(store, "f.yml", nil)
		v, ok := AsViolation(err)
		require.True(t, ok)
		assert.Equal(t, 1, v.Position)
		assert.Equal(t, "2", v.Key)
	})

	t.Run("non integer key fails", func(t *testing.T) {
		store := newStore(t, map[string]string{
			"f.yml": "release_images:\n  1: [a]\n  two: [b]\n",
		})
		err := CheckNumbering(store, "f.yml", nil)
		require.ErrorIs(t, err, ErrNumbering)
		v, _ := AsViolation(err)
		assert.Equal(t, "two", v.Key)
		assert.Equal(t, 2, v.Position)
	})

	t.Run("malformed yaml is a parse violation", func(t *testing.T) {
		store := newStore(t, map[string]string{"f.yml": "release_images:\n  1: [a\n"})
		require.ErrorIs(t, CheckNumbering(store, "f.yml", nil), ErrInvalidYAML)
	})

	t.Run("missing release images is a parse violation", func(t *testing.T) {
		store := newStore(t, map[string]string{"f.yml": "images:\n  1: [a]\n"})
		require.ErrorIs(t, CheckNumbering(store, "f.yml", nil), ErrInvalidYAML)
	})
}

func TestSuggestNumbering(t *testing.T) {
	t.Parallel()

	input := "---\nrelease_images:\n  1:\n    framework: pytorch\n  3:\n    framework: tensorflow\n    nested:\n      7: keep\n  3: [mxnet]\n"
	want := "---\nrelease_images:\n  1:\n    framework: pytorch\n  2:\n    framework: tensorflow\n    nested:\n      7: keep\n  3: [mxnet]\n"

	assert.Equal(t, want, SuggestNumbering([]byte(input)))
	assert.Equal(t, "", SuggestNumbering(nil))
}

func TestCheckNoDuplicates(t *testing.T) {
	t.Parallel()

	t.Run("distinct groupings pass", func(t *testing.T) {
		store := newStore(t, map[string]string{
			"a.yml": "release_images:\n  1: [x]\n  2: [y]\n",
			"b.yml": "release_images:\n  1: [x, y]\n  2:\n    framework: pytorch\n",
		})
		require.NoError(t, CheckNoDuplicates(store, "a.yml", "b.yml"))
	})

	t.Run("duplicate across files names the later file", func(t *testing.T) {
		store := newStore(t, map[string]string{
			"a.yml": "release_images:\n  1: [w]\n  2: [x]\n",
			"b.yml": "release_images:\n  1: [p]\n  2: [q]\n  3: [r]\n  4: [s]\n  5: [x]\n",
		})

		err := CheckNoDuplicates(store, "a.yml", "b.yml")
		require.ErrorIs(t, err, ErrDuplicateGrouping)
		v, ok := AsViolation(err)
		require.True(t, ok)
		assert.Equal(t, "b.yml", v.File)
		assert.Equal(t, "5", v.Key)
		assert.Equal(t, 6, v.Line)
		assert.Contains(t, err.Error(), "first seen under key 2 in a.yml")
	})

	t.Run("duplicate within one file", func(t *testing.T) {
		store := newStore(t, map[string]string{
			"a.yml": "release_images:\n  1:\n    framework: pytorch\n    version: '2.3'\n  2:\n    version: '2.3'\n    framework: pytorch\n",
		})
		err := CheckNoDuplicates(store, "a.yml")
		v, ok := AsViolation(err)
		require.True(t, ok)
		assert.Equal(t, "2", v.Key)
		assert.Equal(t, RuleDuplicates, v.Rule)
	})

	t.Run("order matters for lists", func(t *testing.T) {
		store := newStore(t, map[string]string{
			"a.yml": "release_images:\n  1: [x, y]\n  2: [y, x]\n",
		})
		require.NoError(t, CheckNoDuplicates(store, "a.yml"))
	})
}
