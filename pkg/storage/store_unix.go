//go:build !windows

package storage

import (
	"errors"
	"k8s.io/klog/v2"
	"os/user"
	"path/filepath"
	"syscall"
)

var (
	DefaultStorePath = getStorePath()
)

func getStorePath() string {
	if u, err := user.Current(); err == nil {
		return filepath.Join(u.HomeDir, ".harnsnode")
	} else {
		klog.ErrorS(err, "Failed to get home dir")
		return "./harnsnode"
	}
}

func isEphemeralError(err error) bool {
	return errors.Is(err, syscall.EAGAIN) || errors.Is(err, syscall.EINTR)
}
