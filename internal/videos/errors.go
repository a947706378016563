package videos

import "errors"

var (
	// ErrFetcherUnavailable indicates the engine was built without a fetcher.
	ErrFetcherUnavailable = errors.New("catalog fetcher unavailable")
	// ErrSuperseded is returned when another query was requested before this
	// one resolved. The result was not applied.
	ErrSuperseded = errors.New("catalog query superseded")
	// ErrMissingID indicates an operation on a video without an identifier.
	ErrMissingID = errors.New("video id must be provided")
)
