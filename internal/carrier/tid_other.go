//go:build !linux

package carrier

// OSThread is not available on this platform and always returns 0.
func OSThread() int {
	return 0
}
