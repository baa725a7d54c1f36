package identity

import "errors"

// ErrNoExecutable is returned when a process executable cannot be resolved.
var ErrNoExecutable = errors.New("process executable cannot be resolved")
