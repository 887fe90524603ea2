//go:build linux

package carrier

import "golang.org/x/sys/unix"

// OSThread returns the kernel id of the OS thread the caller runs on.
func OSThread() int {
	return unix.Gettid()
}
