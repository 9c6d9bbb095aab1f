package checks

import (
	"errors"
	"fmt"
)

var (
	// ErrExcludedContent is returned when a config file references an image type it must not contain.
	ErrExcludedContent = errors.New("excluded image type referenced")
	// ErrInvalidYAML is returned when a config file cannot be parsed.
	ErrInvalidYAML = errors.New("invalid YAML")
	// ErrNumbering is returned when release keys are not numbered 1..N in order.
	ErrNumbering = errors.New("release numbering out of sequence")
	// ErrDuplicateGrouping is returned when the same image grouping appears more than once.
	ErrDuplicateGrouping = errors.New("duplicate image grouping")
	// ErrForbiddenFlag is returned when a patch config carries a disallowed flag.
	ErrForbiddenFlag = errors.New("forbidden flag present")
	// ErrUnknownCheck is returned when a check is selected by a name the suite does not define.
	ErrUnknownCheck = errors.New("unknown check")
)

// Rule identifies which kind of check produced a violation.
type Rule string

const (
	RuleExcludedContent Rule = "excluded-content"
	RuleParse           Rule = "parse"
	RuleNumbering       Rule = "numbering"
	RuleDuplicates      Rule = "duplicates"
	RuleForbiddenFlag   Rule = "forbidden-flag"
)

// Violation describes a single failed assertion against a config file.
// errors.Is matches the sentinel for its rule and, for parse failures, the
// underlying YAML error.
type Violation struct {
	Rule    Rule
	File    string
	Line    int
	Key     string
	Message string

	// Position is the 1-based entry index for numbering violations.
	Position int
	// Suggestion holds the renumbered listing for numbering violations.
	Suggestion string

	kind  error
	cause error
}

func (v *Violation) Error() string {
	if v.Line > 0 {
		return fmt.Sprintf("%s:%d: %s", v.File, v.Line, v.Message)
	}
	return fmt.Sprintf("%s: %s", v.File, v.Message)
}

func (v *Violation) Unwrap() []error {
	errs := make([]error, 0, 2)
	if v.kind != nil {
		errs = append(errs, v.kind)
	}
	if v.cause != nil {
		errs = append(errs, v.cause)
	}
	return errs
}

// AsViolation extracts a *Violation from err.
func AsViolation(err error) (*Violation, bool) {
	var v *Violation
	if errors.As(err, &v) {
		return v, true
	}
	return nil, false
}

func parseViolation(file string, err error) *Violation {
	return &Violation{
		Rule:    RuleParse,
		File:    file,
		Message: fmt.Sprintf("failed to load %s as YAML, check the contents of the file, correct errors and retry: %v", file, err),
		kind:    ErrInvalidYAML,
		cause:   err,
	}
}
