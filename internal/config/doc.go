// Package config loads runtime configuration from multiple sources (YAML files,
// environment variables, CLI flags) with precedence: CLI flags > Environment
// variables > YAML config > Defaults. It exposes strongly typed settings for
// the checks, the CLI and the validation service, and locates the repository
// that holds the release image configs.
package config
