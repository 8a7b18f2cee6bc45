//go:build !aix && !darwin && !dragonfly && !freebsd && !linux && !netbsd && !openbsd && !solaris

package rlimit

func raiseOpenFilesLimit() (int, error) {
	return 0, nil
}
