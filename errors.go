package slotbox

import "errors"

// Sentinel errors returned by [Store] and [Session] operations. Returned
// errors wrap one of these with context; test for them with [errors.Is].
var (
	// ErrInvalidArgument reports a zero channel id, an empty or oversized
	// message, an endpoint outside the configured range, or a malformed call.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrInvalidState reports a read or write on a session that is not bound
	// to a channel or has been closed, or a teardown with sessions still open.
	ErrInvalidState = errors.New("invalid state")

	// ErrNoMessage reports a read on a channel that holds no message.
	ErrNoMessage = errors.New("no message")

	// ErrBufferTooSmall reports a read whose destination is shorter than the
	// stored message. Nothing is copied; retry with a larger buffer.
	ErrBufferTooSmall = errors.New("buffer too small")

	// ErrOutOfMemory reports that a slot could not be allocated.
	ErrOutOfMemory = errors.New("out of memory")

	// ErrResourceExhausted reports that no further session can be opened.
	ErrResourceExhausted = errors.New("resource exhausted")

	// ErrIOFailure reports a transport failure while moving message bytes
	// between a caller and the store.
	ErrIOFailure = errors.New("i/o failure")

	// ErrClosed reports use of a store after [Store.Teardown].
	ErrClosed = errors.New("store torn down")
)

// ErrorCode returns a stable short name for the sentinel wrapped by err, or
// "internal" if err wraps none of them. Codes are used on the wire between
// the server and client packages.
func ErrorCode(err error) string {
	for _, c := range errorCodes {
		if errors.Is(err, c.err) {
			return c.code
		}
	}
	return "internal"
}

// ErrorForCode is the inverse of [ErrorCode]. Unknown codes yield nil.
func ErrorForCode(code string) error {
	for _, c := range errorCodes {
		if c.code == code {
			return c.err
		}
	}
	return nil
}

var errorCodes = []struct {
	code string
	err  error
}{
	{"invalid_argument", ErrInvalidArgument},
	{"invalid_state", ErrInvalidState},
	{"no_message", ErrNoMessage},
	{"buffer_too_small", ErrBufferTooSmall},
	{"out_of_memory", ErrOutOfMemory},
	{"resource_exhausted", ErrResourceExhausted},
	{"io_failure", ErrIOFailure},
	{"closed", ErrClosed},
}
