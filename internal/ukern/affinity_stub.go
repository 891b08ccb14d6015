//go:build !linux

package ukern

// pinToCore is a no-op outside Linux: SchedSetaffinity has no portable
// equivalent, and nothing in the scheduler depends on actual pinning.
// coreMask is recorded per fiber, but no wait primitive consults it.
func pinToCore(coreID uint16) {}
