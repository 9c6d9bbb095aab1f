package releaseconfig

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// TopLevelKey is the key holding the release config document in every file.
const TopLevelKey = "release_images"

// Entry is one numbered image grouping, in document order.
type Entry struct {
	Key   string
	Line  int
	Value any
}

// Number returns the entry key as an integer.
func (e Entry) Number() (int, error) {
	return strconv.Atoi(strings.TrimSpace(e.Key))
}

// Document is the release config held by a single file.
type Document struct {
	Name    string
	Entries []Entry
}

// Validate reports whether data is a single well-formed YAML document
// without repeated mapping keys, the same rules Parse applies to entries.
// The decoded content is discarded.
func Validate(data []byte) error {
	root, err := decodeRoot(data)
	if err != nil || root == nil {
		return err
	}
	var decoded any
	if err := root.Decode(&decoded); err != nil {
		return fmt.Errorf("parse YAML: %w", err)
	}
	return nil
}

// Parse decodes the release_images mapping of the named file, keeping the
// keys in the order they appear in the file.
func Parse(name string, data []byte) (*Document, error) {
	root, err := decodeRoot(data)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", name, err)
	}

	mapping, err := releaseImages(root)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", name, err)
	}

	doc := &Document{
		Name:    name,
		Entries: make([]Entry, 0, len(mapping.Content)/2),
	}
	for i := 0; i+1 < len(mapping.Content); i += 2 {
		key, value := mapping.Content[i], mapping.Content[i+1]

		var decoded any
		if err := value.Decode(&decoded); err != nil {
			return nil, fmt.Errorf("parse %s: decode entry %q at line %d: %w", name, key.Value, key.Line, err)
		}
		doc.Entries = append(doc.Entries, Entry{
			Key:   key.Value,
			Line:  key.Line,
			Value: decoded,
		})
	}

	return doc, nil
}

// decodeRoot returns the first document node, or nil for an empty stream.
func decodeRoot(data []byte) (*yaml.Node, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))

	var root *yaml.Node
	for {
		var node yaml.Node
		err := dec.Decode(&node)
		if errors.Is(err, io.EOF) {
			return root, nil
		}
		if err != nil {
			return nil, fmt.Errorf("parse YAML: %w", err)
		}
		if root != nil {
			return nil, ErrMultipleDocuments
		}
		root = &node
	}
}

func releaseImages(root *yaml.Node) (*yaml.Node, error) {
	if root == nil {
		return nil, ErrMissingReleaseImages
	}

	top := root
	if top.Kind == yaml.DocumentNode && len(top.Content) > 0 {
		top = top.Content[0]
	}
	if top.Kind != yaml.MappingNode {
		return nil, ErrMissingReleaseImages
	}

	for i := 0; i+1 < len(top.Content); i += 2 {
		if top.Content[i].Value != TopLevelKey {
			continue
		}
		value := top.Content[i+1]
		if value.Kind == yaml.AliasNode && value.Alias != nil {
			value = value.Alias
		}
		if value.Kind != yaml.MappingNode {
			return nil, ErrNotMapping
		}
		return value, nil
	}

	return nil, ErrMissingReleaseImages
}
