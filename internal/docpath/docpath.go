// Package docpath reads and writes values in nested document maps using
// dot-separated key paths such as "diagnosis.bacteriology.culture".
package docpath

import (
	"errors"
	"fmt"
	"strings"
)

// ErrInvalidPath is returned for empty paths or paths with empty segments.
var ErrInvalidPath = errors.New("invalid field path")

// Split breaks a path into its keys.
func Split(path string) ([]string, error) {
	if path == "" {
		return nil, ErrInvalidPath
	}
	keys := strings.Split(path, ".")
	for _, k := range keys {
		if k == "" {
			return nil, fmt.Errorf("%w: %q", ErrInvalidPath, path)
		}
	}
	return keys, nil
}

// Get returns the value stored at path and whether it was present.
func Get(m map[string]any, path string) (any, bool) {
	keys, err := Split(path)
	if err != nil {
		return nil, false
	}
	var cur any = m
	for _, k := range keys {
		node, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		cur, ok = node[k]
		if !ok {
			return nil, false
		}
	}
	return cur, true
}

// Set stores value at path, creating intermediate maps as needed.
// It fails when an intermediate key holds something other than a map.
func Set(m map[string]any, path string, value any) error {
	keys, err := Split(path)
	if err != nil {
		return err
	}
	node := m
	for i, k := range keys[:len(keys)-1] {
		next, ok := node[k]
		if !ok || next == nil {
			child := map[string]any{}
			node[k] = child
			node = child
			continue
		}
		child, ok := next.(map[string]any)
		if !ok {
			return fmt.Errorf("%w: %q is not an object", ErrInvalidPath, strings.Join(keys[:i+1], "."))
		}
		node = child
	}
	node[keys[len(keys)-1]] = value
	return nil
}

// Delete removes the value at path. Missing paths are a no-op.
func Delete(m map[string]any, path string) {
	keys, err := Split(path)
	if err != nil {
		return
	}
	node := m
	for _, k := range keys[:len(keys)-1] {
		child, ok := node[k].(map[string]any)
		if !ok {
			return
		}
		node = child
	}
	delete(node, keys[len(keys)-1])
}
