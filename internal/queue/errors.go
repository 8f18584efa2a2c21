package queue

import "errors"

// ErrNotFound indicates the requested job does not exist.
var ErrNotFound = errors.New("job not found")

// ErrTerminalState indicates an attempt to move a job out of a final state.
var ErrTerminalState = errors.New("job is in a terminal state")
