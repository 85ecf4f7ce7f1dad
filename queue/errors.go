package queue

import "errors"

// ErrClosed is returned by PutBulk against a closed queue, and by Get once
// a closed queue has been fully drained.
var ErrClosed = errors.New("queue: closed")
