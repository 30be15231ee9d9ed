package paths

import (
	"fmt"
	"path/filepath"
	"strings"
)

// Limits bounds namespace path validation.
type Limits struct {
	MaxLen   int
	MaxDepth int
}

// PathError reports a namespace path that failed validation.
type PathError struct {
	Path   string
	Reason string
}

func (e *PathError) Error() string {
	return fmt.Sprintf("invalid path %q: %s", e.Path, e.Reason)
}

// ValidateComponent rejects names that cannot appear as a single path
// component: empty, dot entries, embedded separators, or NUL bytes.
func ValidateComponent(name string) error {
	switch {
	case name == "":
		return &PathError{Path: name, Reason: "component must not be empty"}
	case name == "." || name == "..":
		return &PathError{Path: name, Reason: fmt.Sprintf("component %q is not permitted", name)}
	case strings.ContainsRune(name, '/'):
		return &PathError{Path: name, Reason: "component contains '/'"}
	case strings.ContainsRune(name, 0):
		return &PathError{Path: name, Reason: "component contains NUL byte"}
	}
	return nil
}

// Validate checks a namespace path against lim and returns its ordered
// components. Paths must be absolute; every component must satisfy
// ValidateComponent; length and depth are bounded.
func Validate(path string, lim Limits) ([]string, error) {
	if !strings.HasPrefix(path, "/") {
		return nil, &PathError{Path: path, Reason: "path must be absolute"}
	}
	if lim.MaxLen > 0 && len(path) > lim.MaxLen {
		return nil, &PathError{Path: path, Reason: fmt.Sprintf("path exceeds %d bytes", lim.MaxLen)}
	}
	var components []string
	for _, component := range strings.Split(path, "/")[1:] {
		if component == "" {
			continue
		}
		if err := ValidateComponent(component); err != nil {
			return nil, &PathError{Path: path, Reason: err.(*PathError).Reason}
		}
		components = append(components, component)
		if lim.MaxDepth > 0 && len(components) > lim.MaxDepth {
			return nil, &PathError{Path: path, Reason: fmt.Sprintf("path exceeds maximum depth of %d components", lim.MaxDepth)}
		}
	}
	return components, nil
}

// JoinRoot joins validated components onto a filesystem root. Callers must
// still verify the result stays under the root after cleaning; Resolve does
// both.
func JoinRoot(root string, components []string) string {
	return filepath.Join(append([]string{root}, components...)...)
}

// Resolve validates path against lim and resolves it under root, failing
// if the cleaned result would escape the root.
func Resolve(root, path string, lim Limits) (string, error) {
	components, err := Validate(path, lim)
	if err != nil {
		return "", err
	}
	resolved := filepath.Clean(JoinRoot(root, components))
	cleanRoot := filepath.Clean(root)
	if resolved != cleanRoot && !strings.HasPrefix(resolved, cleanRoot+string(filepath.Separator)) {
		return "", &PathError{Path: path, Reason: "path escapes mount root"}
	}
	return resolved, nil
}
