package resource

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"sync"

	"github.com/vanerun/ukern/internal/interfaces"
)

// Archive resolves member paths to readable content without going
// through the plain filesystem, e.g. a packed asset bundle.
type Archive interface {
	// Open returns the member's handle, or false if path isn't packed
	// into this archive.
	Open(ctx context.Context, path string) (interfaces.FileHandle, bool, error)
}

// ArchiveBinder resolves a load path through a chain of archives before
// falling back to the plain FileDevice. The process-wide default lives
// on Manager; a call-scoped override (the Go equivalent of the
// thread-local archive binder described in spec.md §4.H, since
// goroutines have no per-thread storage of their own) travels through
// context via WithArchiveBinder/archiveBinderFromContext instead.
type ArchiveBinder struct {
	mu       sync.RWMutex
	archives []Archive
}

// NewArchiveBinder creates an empty binder; archives are tried in the
// order they're bound, most-recently-bound first.
func NewArchiveBinder() *ArchiveBinder {
	return &ArchiveBinder{}
}

type archiveBinderCtxKey struct{}

// WithArchiveBinder returns a context carrying an override binder that
// resolvePath prefers over the Manager's default for the duration of one
// load call.
func WithArchiveBinder(ctx context.Context, b *ArchiveBinder) context.Context {
	return context.WithValue(ctx, archiveBinderCtxKey{}, b)
}

func archiveBinderFromContext(ctx context.Context, fallback *ArchiveBinder) *ArchiveBinder {
	if b, ok := ctx.Value(archiveBinderCtxKey{}).(*ArchiveBinder); ok && b != nil {
		return b
	}
	return fallback
}

// Bind registers archive to be searched ahead of the filesystem.
func (b *ArchiveBinder) Bind(archive Archive) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.archives = append([]Archive{archive}, b.archives...)
}

// Resolve walks bound archives in priority order and returns the first
// member match. Returns ErrArchiveMemberNotFound if none carries path.
func (b *ArchiveBinder) Resolve(ctx context.Context, path string) (interfaces.FileHandle, error) {
	b.mu.RLock()
	archives := append([]Archive(nil), b.archives...)
	b.mu.RUnlock()

	for _, a := range archives {
		if h, ok, err := a.Open(ctx, path); ok {
			return h, err
		}
	}
	return nil, ErrArchiveMemberNotFound
}

// CompressionTable maps a file extension (without the leading dot) to
// the compression convention its archive members use. The ".zs" suffix
// on a resolved path signals zstandard-compressed content per the
// per-extension table described in spec.md §4.H.
type CompressionTable struct {
	mu  sync.RWMutex
	ext map[string]interfaces.CompressionType
}

// NewCompressionTable creates an empty extension -> compression table;
// paths with no registered extension resolve to CompressionNone.
func NewCompressionTable() *CompressionTable {
	return &CompressionTable{ext: make(map[string]interfaces.CompressionType)}
}

// Set registers the compression convention used for files with the
// given extension (e.g. "tex", "mesh" — without the dot).
func (t *CompressionTable) Set(ext string, c interfaces.CompressionType) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.ext[strings.ToLower(ext)] = c
}

// Lookup resolves path's compression convention. A trailing ".zs" always
// forces zstandard regardless of the table, matching the archive
// member-naming convention; otherwise the table is consulted by the
// path's own extension, defaulting to CompressionNone.
func (t *CompressionTable) Lookup(path string) interfaces.CompressionType {
	if strings.HasSuffix(path, ".zs") {
		return interfaces.CompressionZstandard
	}
	ext := strings.TrimPrefix(filepath.Ext(path), ".")

	t.mu.RLock()
	defer t.mu.RUnlock()
	if c, ok := t.ext[strings.ToLower(ext)]; ok {
		return c
	}
	return interfaces.CompressionNone
}

// resolvePath opens path for reading, trying the bound archive chain
// first (preferring a context-scoped override binder over def) and
// falling back to the raw FileDevice.
func resolvePath(ctx context.Context, path string, def *ArchiveBinder, dev interfaces.FileDevice) (interfaces.FileHandle, error) {
	if binder := archiveBinderFromContext(ctx, def); binder != nil {
		h, err := binder.Resolve(ctx, path)
		switch {
		case err == nil:
			return h, nil
		case !errors.Is(err, ErrArchiveMemberNotFound):
			return nil, err
		}
	}
	return dev.OpenFile(ctx, path, interfaces.OpenRead)
}
