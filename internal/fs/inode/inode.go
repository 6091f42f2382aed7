package inode

import (
	"context"
	"sync"

	"github.com/jacobsa/fuse/fuseops"
)

// Inode is the common surface every node in the filesystem tree
// implements, ported from the teacher's fs/inode/inode.go. An Inode must
// be locked before any of its methods except ID are called.
type Inode interface {
	sync.Locker

	// ID returns the inode's ID. Immutable for the inode's lifetime.
	ID() fuseops.InodeID

	// Name returns the inode's leaf name, as last set by its parent.
	Name() string

	// IncrementLookupCount increments the kernel lookup count, acquired
	// each time the kernel is handed a reference to this inode (lookup,
	// mkdir, create, ...).
	IncrementLookupCount()

	// DecrementLookupCount decrements the lookup count by n, as
	// requested by a kernel forget message, and reports whether the
	// inode should now be destroyed. The decrement saturates at zero
	// rather than panicking on underflow: a replayed or duplicate
	// forget is a real condition a long-lived mount must tolerate, not
	// a programming error.
	DecrementLookupCount(n uint64) (destroyed bool)

	// Attributes returns the inode's POSIX-ish attributes.
	Attributes(ctx context.Context) (fuseops.InodeAttributes, error)
}
