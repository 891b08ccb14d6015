package ukern

import "github.com/vanerun/ukern/internal/constants"

// Re-exported constants for callers that don't want to import the
// internal packages directly.
const (
	MinPriority                = constants.MinPriority
	MaxPriority                = constants.MaxPriority
	DefaultHandleTableCapacity = constants.DefaultHandleTableCapacity
	AnyCore                    = constants.AnyCore

	ControlPriorityMin = constants.ControlPriorityMin
	ControlPriorityMax = constants.ControlPriorityMax
	MemoryPriorityMin  = constants.MemoryPriorityMin
	MemoryPriorityMax  = constants.MemoryPriorityMax
	LoadPriorityMin    = constants.LoadPriorityMin
	LoadPriorityMax    = constants.LoadPriorityMax
)

// MaxTime represents an infinite timeout.
const MaxTime = constants.MaxTime
