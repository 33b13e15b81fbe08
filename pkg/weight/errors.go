package weight

import "errors"

var (
	// ErrNotFound is returned when the image path does not resolve.
	ErrNotFound = errors.New("image not found")
	// ErrDecode is returned when the bytes cannot be decoded into a raster.
	ErrDecode = errors.New("image decode failed")
	// ErrNoCandidate is returned when every variant and backend was tried without an in-range weight.
	ErrNoCandidate = errors.New("no weight detected")
	// ErrBackend marks a recognition backend that failed or panicked.
	ErrBackend = errors.New("ocr backend failed")
	// ErrTransport marks a failed call to the remote disambiguator.
	ErrTransport = errors.New("disambiguator transport failed")
)
