//go:build linux

package ukern

import (
	"runtime"

	"golang.org/x/sys/unix"

	"github.com/vanerun/ukern/internal/constants"
)

// pinToCore locks the calling goroutine to its OS thread and restricts
// that thread to the given core. coreID of constants.AnyCore leaves the
// goroutine unlocked and its affinity untouched.
func pinToCore(coreID uint16) {
	if coreID == constants.AnyCore {
		return
	}

	runtime.LockOSThread()

	var set unix.CPUSet
	set.Zero()
	set.Set(int(coreID))

	// Best-effort: a container or restricted cgroup may reject the mask.
	// The fiber still runs, just without the requested pinning.
	_ = unix.SchedSetaffinity(0, &set)
}
