//go:build !giouring

package uring

import "fmt"

// NewRealRing is unavailable without the giouring build tag; it exists so
// callers can reference it unconditionally and get a clear error instead
// of a build failure when the tag is forgotten.
func NewRealRing(cfg Config) (Ring, error) {
	return nil, fmt.Errorf("uring: giouring not enabled; build with -tags giouring")
}
