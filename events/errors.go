package events

import "errors"

// ErrMalformedEvent indicates a payload the dispatcher does not recognize.
// It is logged and the event is dropped.
var ErrMalformedEvent = errors.New("malformed event")
