//go:build !unix

package storelock

// processAlive cannot probe other processes here, so every holder counts as live.
func processAlive(pid int) bool {
	return pid > 0
}
