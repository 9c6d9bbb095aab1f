package checks

import (
	"fmt"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/eugenenazirov/releasecheck/internal/storage"
)

// Names of the checks a Suite defines.
const (
	NameTraining   = "release-images-training"
	NameInference  = "release-images-inference"
	NamePatches    = "release-images-patches"
	NameNumbering  = "release-images-numbering"
	NameNoOverlaps = "release-images-no-overlaps"
)

const (
	imageTypeTraining  = "training"
	imageTypeInference = "inference"

	// DefaultForbiddenFlag may never appear in the patches file.
	DefaultForbiddenFlag = "force_release: True"
)

// Files names the three release image config files.
type Files struct {
	Training  string
	Inference string
	Patches   string
}

// DefaultFiles returns the file names used at the repository root.
func DefaultFiles() Files {
	return Files{
		Training:  "release_images_training.yml",
		Inference: "release_images_inference.yml",
		Patches:   "release_images_patches.yml",
	}
}

// All lists the files in the order cross-file checks read them.
func (f Files) All() []string {
	return []string{f.Patches, f.Training, f.Inference}
}

// Check is a named, runnable validation over one or more files.
type Check struct {
	Name        string
	Description string
	Files       []string

	run func(store storage.Storage) error
}

// Result is the outcome of one check.
type Result struct {
	Check    string
	Files    []string
	Err      error
	Duration time.Duration
}

// Passed reports whether the check found no problems.
func (r Result) Passed() bool {
	return r.Err == nil
}

// Report collects the results of a suite run in execution order.
type Report struct {
	Results []Result
}

// Passed reports whether every check in the run passed.
func (r Report) Passed() bool {
	for _, res := range r.Results {
		if !res.Passed() {
			return false
		}
	}
	return true
}

// Failed returns the results of the checks that did not pass.
func (r Report) Failed() []Result {
	var failed []Result
	for _, res := range r.Results {
		if !res.Passed() {
			failed = append(failed, res)
		}
	}
	return failed
}

// Err combines every failure of the run into one error, or nil.
func (r Report) Err() error {
	var err error
	for _, res := range r.Failed() {
		err = multierr.Append(err, fmt.Errorf("%s: %w", res.Check, res.Err))
	}
	return err
}

// SuiteOption configures a Suite.
type SuiteOption func(*Suite)

// WithObserver registers fn to be called with every check result.
func WithObserver(fn func(Result)) SuiteOption {
	return func(s *Suite) {
		s.observers = append(s.observers, fn)
	}
}

// WithForbiddenFlag overrides the flag rejected in the patches file.
func WithForbiddenFlag(flag string) SuiteOption {
	return func(s *Suite) {
		s.forbiddenFlag = flag
	}
}

// WithClock overrides the time source used for check durations, primarily for tests.
func WithClock(clock func() time.Time) SuiteOption {
	return func(s *Suite) {
		s.clock = clock
	}
}

// Suite binds the release image checks to a set of files.
type Suite struct {
	store         storage.Storage
	files         Files
	forbiddenFlag string
	logger        *zap.Logger
	observers     []func(Result)
	clock         func() time.Time

	checks []Check
}

// NewSuite returns a suite reading files from store.
func NewSuite(store storage.Storage, files Files, logger *zap.Logger, opts ...SuiteOption) *Suite {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Suite{
		store:         store,
		files:         files,
		forbiddenFlag: DefaultForbiddenFlag,
		logger:        logger,
		clock:         time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.checks = s.define()
	return s
}

func (s *Suite) define() []Check {
	f := s.files
	return []Check{
		{
			Name:        NameTraining,
			Description: "training config is valid YAML and does not mention inference",
			Files:       []string{f.Training},
			run: func(store storage.Storage) error {
				if err := CheckExcludedContent(store, f.Training, imageTypeInference); err != nil {
					return err
				}
				return CheckParseable(store, f.Training)
			},
		},
		{
			Name:        NameInference,
			Description: "inference config is valid YAML and does not mention training",
			Files:       []string{f.Inference},
			run: func(store storage.Storage) error {
				if err := CheckExcludedContent(store, f.Inference, imageTypeTraining); err != nil {
					return err
				}
				return CheckParseable(store, f.Inference)
			},
		},
		{
			Name:        NamePatches,
			Description: fmt.Sprintf("patches config does not contain %q", s.forbiddenFlag),
			Files:       []string{f.Patches},
			run: func(store storage.Storage) error {
				return CheckForbiddenFlag(store, f.Patches, s.forbiddenFlag)
			},
		},
		{
			Name:        NameNumbering,
			Description: "release keys are numbered 1..N in every config",
			Files:       f.All(),
			run: func(store storage.Storage) error {
				for _, file := range f.All() {
					if err := CheckNumbering(store, file, s.logger); err != nil {
						return err
					}
				}
				return nil
			},
		},
		{
			Name:        NameNoOverlaps,
			Description: "no image grouping appears more than once across configs",
			Files:       f.All(),
			run: func(store storage.Storage) error {
				return CheckNoDuplicates(store, f.All()...)
			},
		},
	}
}

// Checks returns the checks the suite defines, in default execution order.
func (s *Suite) Checks() []Check {
	out := make([]Check, len(s.checks))
	copy(out, s.checks)
	return out
}

// Run executes the named checks in the given order, or every check when no
// names are given. A failing check does not stop the ones after it.
func (s *Suite) Run(names ...string) (Report, error) {
	selected, err := s.selectChecks(names)
	if err != nil {
		return Report{}, err
	}

	report := Report{Results: make([]Result, 0, len(selected))}
	for _, check := range selected {
		start := s.clock()
		checkErr := check.run(s.store)
		res := Result{
			Check:    check.Name,
			Files:    check.Files,
			Err:      checkErr,
			Duration: s.clock().Sub(start),
		}

		if checkErr != nil {
			s.logger.Error("check failed", zap.String("check", check.Name), zap.Error(checkErr))
		} else {
			s.logger.Info("check passed", zap.String("check", check.Name), zap.Duration("duration", res.Duration))
		}

		for _, observe := range s.observers {
			observe(res)
		}
		report.Results = append(report.Results, res)
	}

	return report, nil
}

func (s *Suite) selectChecks(names []string) ([]Check, error) {
	if len(names) == 0 {
		return s.Checks(), nil
	}

	byName := make(map[string]Check, len(s.checks))
	for _, c := range s.checks {
		byName[c.Name] = c
	}

	seen := make(map[string]struct{}, len(names))
	selected := make([]Check, 0, len(names))
	for _, name := range names {
		c, ok := byName[name]
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrUnknownCheck, name)
		}
		if _, dup := seen[name]; dup {
			continue
		}
		seen[name] = struct{}{}
		selected = append(selected, c)
	}
	return selected, nil
}
