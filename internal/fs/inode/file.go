package inode

import (
	"bytes"
	"context"
	"fmt"
	"sync"

	"github.com/jacobsa/fuse/fuseops"
	"github.com/jiripospisil/mountpoint-s3/internal/s3client"
)

// fileState tags a FileInode's provenance: Remote means its bytes live
// (only) in the bucket under etag/size; Local means this process is
// still holding the only copy, in buf, not yet flushed by a release.
type fileState int

const (
	stateRemote fileState = iota
	stateLocal
)

// FileInode is a regular file. The write path is grounded on the
// goofys-derived other_examples handles.go FileHandle (small-file,
// in-memory-buffer path): writes must be sequential and are only ever
// flushed as a single Put, on Release. The read path is grounded on
// mountpoint-s3-client's object_client.rs contract: a GetObjectStream
// yields parts in order and contiguously, and this inode's Read asserts
// that rather than silently tolerating a violation.
//
// LOCKS_REQUIRED on every method below except ID/Name/Lock/Unlock.
type FileInode struct {
	sync.Mutex

	id     fuseops.InodeID
	name   string
	key    string
	bucket string
	client s3client.Client

	attrs fuseops.InodeAttributes
	lc    lookupCount

	state fileState
	etag  s3client.ETag
	size  int64

	buf []byte // valid, and the sole source of truth, iff state == stateLocal
}

func NewFileInode(
	id fuseops.InodeID,
	name string,
	key string,
	bucket string,
	client s3client.Client,
	attrs fuseops.InodeAttributes,
	state fileState,
	etag s3client.ETag,
	size int64,
) *FileInode {
	return &FileInode{
		id: id, name: name, key: key, bucket: bucket, client: client,
		attrs: attrs, state: state, etag: etag, size: size,
	}
}

func NewLocalFileInode(id fuseops.InodeID, name, key, bucket string, client s3client.Client, attrs fuseops.InodeAttributes) *FileInode {
	return &FileInode{
		id: id, name: name, key: key, bucket: bucket, client: client,
		attrs: attrs, state: stateLocal, buf: []byte{},
	}
}

// NewRemoteFileInode wraps NewFileInode for callers outside this package,
// which have no way to name the unexported fileState values: every
// remote-backed file starts in stateRemote, so there's nothing for such
// a caller to choose.
func NewRemoteFileInode(id fuseops.InodeID, name, key, bucket string, client s3client.Client, attrs fuseops.InodeAttributes, etag s3client.ETag, size int64) *FileInode {
	return NewFileInode(id, name, key, bucket, client, attrs, stateRemote, etag, size)
}

func (f *FileInode) ID() fuseops.InodeID { return f.id }
func (f *FileInode) Name() string        { return f.name }
func (f *FileInode) Key() string         { return f.key }

func (f *FileInode) IncrementLookupCount()                       { f.lc.Inc() }
func (f *FileInode) DecrementLookupCount(n uint64) (destroyed bool) { return f.lc.Dec(n) }

func (f *FileInode) IsLocal() bool { return f.state == stateLocal }

func (f *FileInode) Attributes(ctx context.Context) (fuseops.InodeAttributes, error) {
	attrs := f.attrs
	attrs.Size = uint64(f.Size())
	return attrs, nil
}

func (f *FileInode) Size() int64 {
	if f.state == stateLocal {
		return int64(len(f.buf))
	}
	return f.size
}

// Read serves a Local inode from its buffer and a Remote inode entirely
// from the remote object; the write path never mutates a Remote inode's
// bytes in place; a file being actively written is always Local, so
// Read never needs to merge a local buffer with a partial remote object.
func (f *FileInode) Read(ctx context.Context, offset int64, size int) ([]byte, error) {
	if f.state == stateLocal {
		if offset >= int64(len(f.buf)) {
			return nil, nil
		}
		end := offset + int64(size)
		if end > int64(len(f.buf)) {
			end = int64(len(f.buf))
		}
		return f.buf[offset:end], nil
	}

	if offset >= f.size {
		return nil, nil
	}
	end := offset + int64(size) - 1
	if end >= f.size {
		end = f.size - 1
	}

	stream, err := f.client.Get(ctx, f.bucket, f.key, &s3client.ByteRange{Start: offset, End: end}, nil)
	if err != nil {
		return nil, err
	}
	defer stream.Close()

	var out bytes.Buffer
	wantOffset := offset
	for {
		part, ok, err := stream.Next(ctx)
		if err != nil {
			return nil, err
		}
		if !ok {
			break
		}
		if part.Offset != wantOffset {
			return nil, fmt.Errorf("inode: non-contiguous read stream for %s: got part at %d, wanted %d", f.key, part.Offset, wantOffset)
		}
		out.Write(part.Data)
		wantOffset += int64(len(part.Data))
	}
	return out.Bytes(), nil
}

// Write appends data at offset, which must equal the buffer's current
// length: this inode has no representation for a sparse or
// out-of-order write, matching the append-only write path and the
// "no concurrent overlapping writers" non-goal.
func (f *FileInode) Write(ctx context.Context, offset int64, data []byte) error {
	if f.state != stateLocal {
		// First write after open-for-write on a remote file starts a
		// fresh local buffer; the spec's write model has no partial
		// overwrite of remote content, only append-from-scratch.
		f.state = stateLocal
		f.buf = []byte{}
	}
	if offset != int64(len(f.buf)) {
		return fmt.Errorf("%w: write at %d, buffer length %d", ErrInvalidArgument, offset, len(f.buf))
	}
	f.buf = append(f.buf, data...)
	return nil
}

// Release flushes a Local file's buffer as a single Put. On success the
// inode becomes Remote with the returned etag/size. On failure the
// inode stays Local with its buffer intact, so a later Release (the
// kernel retries release on some errors, or a caller may reopen and
// flush again) can simply try again.
func (f *FileInode) Release(ctx context.Context) error {
	if f.state != stateLocal {
		return nil
	}

	result, err := f.client.Put(ctx, f.bucket, f.key, s3client.PutObjectParams{ContentLength: int64(len(f.buf))}, bytes.NewReader(f.buf))
	if err != nil {
		return err
	}

	f.state = stateRemote
	f.etag = result.ETag
	f.size = result.Size
	f.buf = nil
	return nil
}

// Truncate resizes the file to size, materializing a local buffer if
// the inode was still Remote: growing pads with zero bytes, shrinking
// discards the tail. Matches ftruncate(2)'s semantics, the only
// SetInodeAttributes case this module's write model supports (no mode
// or timestamp changes, since neither has a representation in the
// object store).
func (f *FileInode) Truncate(ctx context.Context, size int64) error {
	if f.state != stateLocal {
		current, err := f.Read(ctx, 0, int(f.size))
		if err != nil {
			return err
		}
		f.state = stateLocal
		f.buf = current
	}

	switch {
	case size < int64(len(f.buf)):
		f.buf = f.buf[:size]
	case size > int64(len(f.buf)):
		f.buf = append(f.buf, make([]byte, size-int64(len(f.buf)))...)
	}
	return nil
}

// ErrInvalidArgument marks a Write at an offset other than the current
// end of the buffer. The facade translates it to fuse.EINVAL.
var ErrInvalidArgument = fmt.Errorf("invalid argument")
