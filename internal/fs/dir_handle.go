package fs

import (
	"context"
	"sync"

	"github.com/jacobsa/fuse"
	"github.com/jacobsa/fuse/fuseops"
	"github.com/jacobsa/fuse/fuseutil"
	"github.com/jiripospisil/mountpoint-s3/internal/fs/inode"
)

// dirHandle is the per-open-directory cursor a FUSE OpenDirOp mints and
// a ReadDirOp then drives. Ported from the teacher's fs/dir_handle.go:
// entries are buffered a page at a time and indexed by the kernel's
// opaque offset, so a ReadDirOp that re-asks for an offset already
// covered by the current page is served from the buffer rather than
// re-listing.
//
// Unlike the teacher (whose listing is exhaustive up front from a
// single GCS bucket walk), this handle must merge a paginated remote
// listing with the directory's local overlay: it tracks every name the
// remote side has already produced in seen, and only asks the inode for
// LocalEntries once the remote listing is exhausted, so a name that is
// both local and freshly visible remotely is never duplicated.
type dirHandle struct {
	Mu sync.Mutex

	in *inode.DirInode

	// entries and offset together form the current page: entries[i]
	// is returned for kernel offset baseOffset+i.
	entries    []fuseutil.Dirent
	baseOffset fuseops.DirOffset

	// token is the continuation token to fetch the next remote page;
	// remoteDone is true once the remote listing has been fully drained
	// and localDone is true once LocalEntries has been appended, so a
	// later ReadDir past the end of the buffer knows to return EOF
	// instead of re-listing.
	token      string
	remoteDone bool
	localDone  bool
	seen       map[string]bool

	nextOffset fuseops.DirOffset
}

func newDirHandle(in *inode.DirInode) *dirHandle {
	return &dirHandle{
		in:   in,
		seen: make(map[string]bool),
	}
}

// ReadDir serves a single ReadDirOp, fetching more of the listing as
// needed. LOCKS_REQUIRED(dh.Mu), per the dirHandle < inode < fileSystem
// lock ordering.
func (dh *dirHandle) ReadDir(ctx context.Context, op *fuseops.ReadDirOp) error {
	if op.Offset == 0 {
		// rewinddir: start the listing over.
		dh.entries = nil
		dh.baseOffset = 0
		dh.token = ""
		dh.remoteDone = false
		dh.localDone = false
		dh.seen = make(map[string]bool)
		dh.nextOffset = 0
	}

	if op.Offset > dh.nextOffset {
		return fuse.EINVAL
	}

	// A seek to an offset whose entries have already been compacted out
	// of the buffer is a seekdir we cannot support: there's no stable
	// offset in the remote listing to resume from, matching the
	// teacher's identical restriction.
	if op.Offset < dh.baseOffset {
		return fuse.EINVAL
	}

	// Fetch more of the listing until either we can serve op.Offset from
	// the buffer or we've genuinely run out of entries.
	for op.Offset >= dh.baseOffset+fuseops.DirOffset(len(dh.entries)) {
		more, err := dh.fetchMore(ctx)
		if err != nil {
			return err
		}
		if !more {
			break
		}
	}

	idx := int(op.Offset - dh.baseOffset)
	if idx < 0 || idx >= len(dh.entries) {
		// Nothing left to serve; EOF.
		return nil
	}

	for _, e := range dh.entries[idx:] {
		n := fuseutil.WriteDirent(op.Dst[op.BytesRead:], e)
		if n == 0 {
			break
		}
		op.BytesRead += n
	}
	return nil
}

// fetchMore appends the next page of entries (remote, then local once
// the remote listing is exhausted) to dh.entries, assigning each a
// monotonic offset. Returns false once there's nothing left to fetch.
func (dh *dirHandle) fetchMore(ctx context.Context) (bool, error) {
	if dh.localDone {
		return false, nil
	}

	if !dh.remoteDone {
		dh.in.Lock()
		page, next, err := dh.in.ReadEntries(ctx, dh.token, 0)
		dh.in.Unlock()
		if err != nil {
			return false, err
		}
		dh.token = next
		if next == "" {
			dh.remoteDone = true
		}
		if len(page) == 0 && !dh.remoteDone {
			// An empty page with more to come; keep pulling rather than
			// reporting false progress to the caller.
			return dh.fetchMore(ctx)
		}
		for _, e := range page {
			dh.seen[e.Name] = true
		}
		dh.appendEntries(page)
		if len(page) > 0 {
			return true, nil
		}
	}

	// Remote listing exhausted; append the local overlay once.
	dh.in.Lock()
	local := dh.in.LocalEntries(dh.seen)
	dh.in.Unlock()
	dh.localDone = true
	dh.appendEntries(local)
	return len(local) > 0, nil
}

func (dh *dirHandle) appendEntries(page []inode.DirEntry) {
	// Compact already-consumed entries out of the buffer so it doesn't
	// grow unboundedly across a long readdir loop: everything strictly
	// before the current nextOffset has already been handed to the
	// kernel and won't be asked for again outside of a rewind.
	if dh.baseOffset < dh.nextOffset {
		drop := int(dh.nextOffset - dh.baseOffset)
		if drop > len(dh.entries) {
			drop = len(dh.entries)
		}
		dh.entries = dh.entries[drop:]
		dh.baseOffset += fuseops.DirOffset(drop)
	}

	for _, e := range page {
		typ := fuseutil.DT_File
		if e.IsDir {
			typ = fuseutil.DT_Directory
		}
		dh.entries = append(dh.entries, fuseutil.Dirent{
			Offset: dh.nextOffset + 1,
			Name:   e.Name,
			Type:   typ,
		})
		dh.nextOffset++
	}
}
