package memory

import "errors"

var (
	// ErrBadRequest is returned for a request with no size, or a non-empty
	// span without an address.
	ErrBadRequest = errors.New("memory: malformed request")

	// ErrShrink is returned when a resize asks for less than the current span.
	ErrShrink = errors.New("memory: spans cannot shrink in place")

	// ErrDiscontiguous is returned when new memory would not directly follow
	// the span being grown.
	ErrDiscontiguous = errors.New("memory: new memory is not contiguous")

	// ErrNotTop is returned when a program break release does not end at the
	// current break.
	ErrNotTop = errors.New("memory: span is not at the top of the break")

	// ErrUnsupported is returned for operations a backend cannot perform.
	ErrUnsupported = errors.New("memory: operation not supported by backend")

	// ErrSpanExhausted is returned when the emulated break reached MaxSpan.
	ErrSpanExhausted = errors.New("memory: emulated break span exhausted")

	// ErrExhausted is returned when no backend can satisfy a request. A real
	// host never lets it reach the caller.
	ErrExhausted = errors.New("memory: all memory allocation disciplines failed")

	// ErrUnknownBackend is returned by Probe for a name not in the table.
	ErrUnknownBackend = errors.New("memory: unknown backend")
)

// fatalMessage is written to the host's error channel before terminating.
const fatalMessage = "vmalloc: panic: all memory allocation disciplines failed\n"
