package capture

import "golang.org/x/sys/unix"

// dup2 points newfd at oldfd's open file description. Linux prefers dup3,
// which is also the only variant available on arm64.
func dup2(oldfd, newfd int) error {
	return unix.Dup3(oldfd, newfd, 0)
}
