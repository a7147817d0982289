package apis

import (
	"errors"
)

const (
	// HTTP Request Fields
	IfNoneMatch = "If-None-Match"

	// HTTP Response Fields
	ETag = "ETag"

	// Query Fields
	Filter = "filter"
	Class  = "class"
)

var (
	ErrMismatch = errors.New("resource mismatch")
	ErrInternal = errors.New("internal error")
)
