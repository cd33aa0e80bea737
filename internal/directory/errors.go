package directory

import "errors"

var (
	// ErrFetch reports a transport failure or an unexpected response status.
	ErrFetch = errors.New("fetch relay list")
	// ErrParse reports a relay list that could not be decoded.
	ErrParse = errors.New("parse relay list")
	// ErrCacheIO reports a cache that blocks progress: unreadable, or needed
	// but absent.
	ErrCacheIO = errors.New("relay cache")
)
