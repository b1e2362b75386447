//go:build unix && !linux

package capture

import "golang.org/x/sys/unix"

// dup2 points newfd at oldfd's open file description.
func dup2(oldfd, newfd int) error {
	return unix.Dup2(oldfd, newfd)
}
