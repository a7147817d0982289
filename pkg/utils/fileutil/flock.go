// Package fileutil holds advisory file locks used by the file store.
package fileutil

import "errors"

// Releaser releases a lock taken with NewLock.
type Releaser interface {
	Release() error
}

var ErrLockUnsupported = errors.New("file locks are not supported on this platform")
