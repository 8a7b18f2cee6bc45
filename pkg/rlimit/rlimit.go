// Package rlimit raises the process limit on open files.  The merge holds
// one file handle per run, so sorts with many runs need a higher limit than
// most systems grant by default.
package rlimit

// RaiseOpenFilesLimit raises the soft limit on open files to the hard limit
// and returns the new soft limit.  It returns zero on systems without such
// a limit.
func RaiseOpenFilesLimit() (int, error) {
	return raiseOpenFilesLimit()
}
