package machox

import "errors"

var (
	ErrFileRead             = errors.New("read file")
	ErrUnsupportedContainer = errors.New("unsupported container")
	ErrSegmentNotFound      = errors.New("segment not found")
	ErrSectionNotFound      = errors.New("section not found")
	ErrMalformed            = errors.New("malformed load command")
)
