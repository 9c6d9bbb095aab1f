// Package checks validates the release image config files of a repository:
// every file parses, the training and inference files do not reference each
// other's image type, release keys are numbered 1..N, no image grouping is
// listed twice and the patches file carries no forced release.
//
// Each check stops at its first violation. Suite runs the checks as a set
// and collects their outcomes into a Report.
package checks
