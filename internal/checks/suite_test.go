package checks

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

const (
	validTraining = `release_images:
  1:
    framework: "pytorch"
    version: "2.3.0"
    customer_type: "sagemaker"
    arch_type: "x86"
    force_release: False
  2:
    framework: "tensorflow"
    version: "2.16.1"
    customer_type: "ec2"
    force_release: False
`
	validInference = `release_images:
  1:
    framework: "pytorch"
    version: "2.3.0"
    customer_type: "sagemaker"
    arch_type: "graviton"
    force_release: False
`
	validPatches = `release_images:
  1:
    framework: "pytorch"
    version: "2.1.0"
    customer_type: "ec2"
    force_release: False
`
)

func validFiles() map[string]string {
	f := DefaultFiles()
	return map[string]string{
		f.Training:  validTraining,
		f.Inference: validInference,
		f.Patches:   validPatches,
	}
}

func TestSuiteRunAllPass(t *testing.T) {
	t.Parallel()

	store := newStore(t, validFiles())
	suite := NewSuite(store, DefaultFiles(), zaptest.NewLogger(t))

	report, err := suite.Run()
	require.NoError(t, err)
	require.Len(t, report.Results, 5)
	assert.True(t, report.Passed())
	assert.Empty(t, report.Failed())
	assert.NoError(t, report.Err())

	names := make([]string, 0, len(report.Results))
	for _, res := range report.Results {
		names = append(names, res.Check)
	}
	assert.Equal(t, []string{NameTraining, NameInference, NamePatches, NameNumbering, NameNoOverlaps}, names)
}

func TestSuiteRunCollectsEveryFailure(t *testing.T) {
	t.Parallel()

	files := validFiles()
	f := DefaultFiles()
	files[f.Training] = strings.Replace(validTraining, `customer_type: "ec2"`, `customer_type: "ec2"  # not for inference`, 1)
	files[f.Patches] = strings.Replace(validPatches, "force_release: False", "force_release: True", 1)

	store := newStore(t, files)
	suite := NewSuite(store, f, zaptest.NewLogger(t))

	report, err := suite.Run()
	require.NoError(t, err)
	assert.False(t, report.Passed())

	failed := report.Failed()
	require.Len(t, failed, 2)
	assert.Equal(t, NameTraining, failed[0].Check)
	assert.ErrorIs(t, failed[0].Err, ErrExcludedContent)
	assert.Equal(t, NamePatches, failed[1].Check)
	assert.ErrorIs(t, failed[1].Err, ErrForbiddenFlag)

	combined := report.Err()
	require.Error(t, combined)
	assert.ErrorIs(t, combined, ErrExcludedContent)
	assert.ErrorIs(t, combined, ErrForbiddenFlag)
	assert.Contains(t, combined.Error(), NameTraining)
	assert.Contains(t, combined.Error(), NamePatches)
}

func TestSuiteDetectsDuplicatesAcrossFiles(t *testing.T) {
	t.Parallel()

	files := validFiles()
	f := DefaultFiles()
	files[f.Patches] = validInference

	store := newStore(t, files)
	report, err := NewSuite(store, f, zaptest.NewLogger(t)).Run(NameNoOverlaps)
	require.NoError(t, err)
	require.Len(t, report.Results, 1)

	v, ok := AsViolation(report.Results[0].Err)
	require.True(t, ok)
	assert.Equal(t, f.Inference, v.File)
	assert.Equal(t, "1", v.Key)
	assert.Contains(t, v.Message, f.Patches)
}

func TestSuiteNumberingStopsAtFirstBadFile(t *testing.T) {
	t.Parallel()

	files := validFiles()
	f := DefaultFiles()
	files[f.Training] = strings.Replace(validTraining, "  2:\n", "  3:\n", 1)
	files[f.Inference] = strings.Replace(validInference, "  1:\n", "  7:\n", 1)

	report, err := NewSuite(newStore(t, files), f, zaptest.NewLogger(t)).Run(NameNumbering)
	require.NoError(t, err)

	v, ok := AsViolation(report.Results[0].Err)
	require.True(t, ok)
	assert.Equal(t, f.Training, v.File)
	assert.Equal(t, 2, v.Position)
	assert.Equal(t, "3", v.Key)
}

func TestSuiteSelection(t *testing.T) {
	t.Parallel()

	suite := NewSuite(newStore(t, validFiles()), DefaultFiles(), nil)

	report, err := suite.Run(NamePatches, NameTraining, NamePatches)
	require.NoError(t, err)
	require.Len(t, report.Results, 2)
	assert.Equal(t, NamePatches, report.Results[0].Check)
	assert.Equal(t, NameTraining, report.Results[1].Check)

	_, err = suite.Run(NameTraining, "release-images-bogus")
	require.ErrorIs(t, err, ErrUnknownCheck)
	assert.Contains(t, err.Error(), "release-images-bogus")
}

func TestSuiteObserverAndClock(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	clock := func() time.Time {
		now = now.Add(10 * time.Millisecond)
		return now
	}

	var observed []Result
	suite := NewSuite(newStore(t, validFiles()), DefaultFiles(), zaptest.NewLogger(t),
		WithClock(clock),
		WithObserver(func(r Result) { observed = append(observed, r) }),
	)

	report, err := suite.Run()
	require.NoError(t, err)
	require.Len(t, observed, len(report.Results))
	for _, res := range observed {
		assert.Equal(t, 10*time.Millisecond, res.Duration)
	}
}

func TestSuiteForbiddenFlagOverride(t *testing.T) {
	t.Parallel()

	files := validFiles()
	f := DefaultFiles()
	files[f.Patches] = validPatches + "    example: True\n"

	suite := NewSuite(newStore(t, files), f, nil, WithForbiddenFlag("example: True"))
	report, err := suite.Run(NamePatches)
	require.NoError(t, err)
	assert.ErrorIs(t, report.Results[0].Err, ErrForbiddenFlag)

	for _, c := range suite.Checks() {
		if c.Name == NamePatches {
			assert.Contains(t, c.Description, "example: True")
		}
	}
}

func TestSuiteMissingFileFailsCheck(t *testing.T) {
	t.Parallel()

	files := validFiles()
	delete(files, DefaultFiles().Inference)

	report, err := NewSuite(newStore(t, files), DefaultFiles(), nil).Run()
	require.NoError(t, err)

	failed := report.Failed()
	require.Len(t, failed, 3)
	assert.Equal(t, NameInference, failed[0].Check)
	assert.Equal(t, NameNumbering, failed[1].Check)
	assert.Equal(t, NameNoOverlaps, failed[2].Check)
}

func TestFilesAllOrder(t *testing.T) {
	t.Parallel()

	f := DefaultFiles()
	assert.Equal(t, []string{f.Patches, f.Training, f.Inference}, f.All())
}
