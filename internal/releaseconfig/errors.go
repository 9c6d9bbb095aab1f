package releaseconfig

import "errors"

var (
	// ErrMissingReleaseImages is returned when the document has no top-level release_images mapping key.
	ErrMissingReleaseImages = errors.New("document does not define " + TopLevelKey)
	// ErrNotMapping is returned when release_images is present but is not a mapping.
	ErrNotMapping = errors.New(TopLevelKey + " must be a mapping of release numbers to image groupings")
	// ErrMultipleDocuments is returned when a config file holds more than one YAML document.
	ErrMultipleDocuments = errors.New("expected a single YAML document")
)
