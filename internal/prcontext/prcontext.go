// Package prcontext decides whether the process runs on behalf of a pull
// request, based on the CI environment.
package prcontext

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/google/go-github/v68/github"
)

// Sources a pull-request signal can come from.
const (
	SourceBuildContext  = "build-context"
	SourceGitHubActions = "github-actions"
	SourceCodeBuild     = "codebuild"
)

// ErrEventPayload is returned when the GitHub event payload cannot be read or decoded.
var ErrEventPayload = errors.New("invalid GitHub event payload")

// PullRequest holds the details of the pull request being built, when known.
type PullRequest struct {
	Owner   string
	Repo    string
	Number  int
	BaseRef string
	HeadRef string
	HeadSHA string
}

// Context is the outcome of detection.
type Context struct {
	IsPR        bool
	Source      string
	PullRequest *PullRequest
}

// LookupFunc reads an environment variable, like os.LookupEnv.
type LookupFunc func(key string) (string, bool)

// ReadFileFunc reads a file, like os.ReadFile.
type ReadFileFunc func(name string) ([]byte, error)

// FromEnvironment detects the pull-request context of the current process.
func FromEnvironment() (Context, error) {
	return Detect(os.LookupEnv, os.ReadFile)
}

// Detect inspects, in order, BUILD_CONTEXT, the GitHub Actions event and the
// CodeBuild webhook variables.
func Detect(lookup LookupFunc, readFile ReadFileFunc) (Context, error) {
	get := func(key string) string {
		v, _ := lookup(key)
		return strings.TrimSpace(v)
	}

	if v, _ := lookup("BUILD_CONTEXT"); v == "PR" {
		return Context{IsPR: true, Source: SourceBuildContext}, nil
	}

	switch get("GITHUB_EVENT_NAME") {
	case "pull_request", "pull_request_target":
		ctx := Context{IsPR: true, Source: SourceGitHubActions}
		path := get("GITHUB_EVENT_PATH")
		if path == "" {
			return ctx, nil
		}
		pr, err := readGitHubEvent(path, readFile)
		if err != nil {
			return Context{}, err
		}
		ctx.PullRequest = pr
		return ctx, nil
	}

	if event := get("CODEBUILD_WEBHOOK_EVENT"); strings.HasPrefix(event, "PULL_REQUEST_") {
		ctx := Context{IsPR: true, Source: SourceCodeBuild}
		if trigger := get("CODEBUILD_WEBHOOK_TRIGGER"); strings.HasPrefix(trigger, "pr/") {
			if n, err := strconv.Atoi(strings.TrimPrefix(trigger, "pr/")); err == nil {
				ctx.PullRequest = &PullRequest{
					Number:  n,
					BaseRef: strings.TrimPrefix(get("CODEBUILD_WEBHOOK_BASE_REF"), "refs/heads/"),
					HeadRef: strings.TrimPrefix(get("CODEBUILD_WEBHOOK_HEAD_REF"), "refs/heads/"),
					HeadSHA: get("CODEBUILD_RESOLVED_SOURCE_VERSION"),
				}
			}
		}
		return ctx, nil
	}

	return Context{}, nil
}

// pull_request and pull_request_target share the same payload shape.
func readGitHubEvent(path string, readFile ReadFileFunc) (*PullRequest, error) {
	payload, err := readFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: read %s: %v", ErrEventPayload, path, err)
	}

	parsed, err := github.ParseWebHook("pull_request", payload)
	if err != nil {
		return nil, fmt.Errorf("%w: decode %s: %v", ErrEventPayload, path, err)
	}
	event, ok := parsed.(*github.PullRequestEvent)
	if !ok {
		return nil, fmt.Errorf("%w: %s is not a pull request event", ErrEventPayload, path)
	}

	pr := event.GetPullRequest()
	number := event.GetNumber()
	if number == 0 {
		number = pr.GetNumber()
	}

	return &PullRequest{
		Owner:   event.GetRepo().GetOwner().GetLogin(),
		Repo:    event.GetRepo().GetName(),
		Number:  number,
		BaseRef: pr.GetBase().GetRef(),
		HeadRef: pr.GetHead().GetRef(),
		HeadSHA: pr.GetHead().GetSHA(),
	}, nil
}

// String renders a short description for logs.
func (c Context) String() string {
	if !c.IsPR {
		return "not a pull request"
	}
	if c.PullRequest == nil || c.PullRequest.Number == 0 {
		return "pull request (" + c.Source + ")"
	}
	if c.PullRequest.Owner != "" {
		return fmt.Sprintf("%s/%s#%d (%s)", c.PullRequest.Owner, c.PullRequest.Repo, c.PullRequest.Number, c.Source)
	}
	return fmt.Sprintf("#%d (%s)", c.PullRequest.Number, c.Source)
}
