package backend

import "fmt"

// Backend is the namespace transport every client operation runs against.
// Paths are absolute namespace paths ("/gpu/GPU-0/info"), never host paths;
// each implementation maps them onto its own root.
type Backend interface {
	// List returns the sorted entry names of a namespace directory.
	List(path string) ([]string, error)
	// ReadFile returns a namespace file's contents, failing if they
	// exceed maxBytes.
	ReadFile(path string, maxBytes int) ([]byte, error)
	// WriteAppend appends payload to a namespace file, creating parents
	// as needed, and returns the number of bytes written.
	WriteAppend(path string, payload []byte) (int, error)
	// Close releases transport resources. Safe to call more than once.
	Close() error
}

// Error is a policy or transport failure surfaced to operators. The message
// is the full diagnostic; there is no structured cause to unwrap.
type Error struct {
	Msg string
}

func (e *Error) Error() string {
	return e.Msg
}

// Errorf builds an Error from a format string.
func Errorf(format string, args ...any) *Error {
	return &Error{Msg: fmt.Sprintf(format, args...)}
}
