package queue

import "errors"

// ErrNotFound indicates the requested task or file row does not exist.
var ErrNotFound = errors.New("not found")

// ErrNotCancelable indicates a cancel request arrived after the task left the
// pending state. Only pending tasks may be cancelled.
var ErrNotCancelable = errors.New("task is not cancelable")
