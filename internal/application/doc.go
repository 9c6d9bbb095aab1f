// Package application provides application initialization and dependency wiring
// for service mode. It creates the repository storage, metrics recorder,
// handlers, router and HTTP server, keeping the main package focused on CLI
// parsing and orchestration.
package application
