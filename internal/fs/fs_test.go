package fs

import (
	"context"
	"os"
	"testing"

	"github.com/jacobsa/bazilfuse"
	"github.com/jacobsa/fuse"
	"github.com/jacobsa/fuse/fuseops"
	"github.com/jiripospisil/mountpoint-s3/internal/s3client"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestFileSystem(t *testing.T, client s3client.Client) *fileSystem {
	t.Helper()
	out, err := NewFileSystem(&ServerConfig{
		Client:   client,
		Bucket:   "bucket",
		FileMode: 0644,
		DirMode:  0755,
	})
	require.NoError(t, err)
	return out.(*fileSystem)
}

func TestLookUpInode_RemoteFile(t *testing.T) {
	client := s3client.NewMockClient()
	client.PutDirect("foo.txt", []byte("hello"))
	f := newTestFileSystem(t, client)

	op := &fuseops.LookUpInodeOp{Parent: fuseops.RootInodeID, Name: "foo.txt"}
	require.NoError(t, f.LookUpInode(op))
	assert.Equal(t, uint64(5), op.Entry.Attributes.Size)
}

func TestLookUpInode_Missing(t *testing.T) {
	client := s3client.NewMockClient()
	f := newTestFileSystem(t, client)

	op := &fuseops.LookUpInodeOp{Parent: fuseops.RootInodeID, Name: "nope"}
	err := f.LookUpInode(op)
	assert.Equal(t, fuse.ENOENT, err)
}

func TestMkDir_ThenLookUp(t *testing.T) {
	client := s3client.NewMockClient()
	f := newTestFileSystem(t, client)

	mkdirOp := &fuseops.MkDirOp{Parent: fuseops.RootInodeID, Name: "sub", Mode: os.ModeDir | 0755}
	require.NoError(t, f.MkDir(mkdirOp))

	_, err := client.Head(context.Background(), "bucket", "sub/")
	require.NoError(t, err)

	lookupOp := &fuseops.LookUpInodeOp{Parent: fuseops.RootInodeID, Name: "sub"}
	require.NoError(t, f.LookUpInode(lookupOp))
	assert.Equal(t, mkdirOp.Entry.Child, lookupOp.Entry.Child)
}

func TestMkDir_AlreadyExists(t *testing.T) {
	client := s3client.NewMockClient()
	client.PutDirect("sub/", nil)
	f := newTestFileSystem(t, client)

	err := f.MkDir(&fuseops.MkDirOp{Parent: fuseops.RootInodeID, Name: "sub"})
	assert.Equal(t, fuse.EEXIST, err)
}

func TestCreateFile_WriteFlushRead(t *testing.T) {
	client := s3client.NewMockClient()
	f := newTestFileSystem(t, client)

	createOp := &fuseops.CreateFileOp{Parent: fuseops.RootInodeID, Name: "foo.txt", Mode: 0644}
	require.NoError(t, f.CreateFile(createOp))
	inodeID := createOp.Entry.Child

	writeOp := &fuseops.WriteFileOp{Inode: inodeID, Offset: 0, Data: []byte("hello world")}
	require.NoError(t, f.WriteFile(writeOp))

	require.NoError(t, f.FlushFile(&fuseops.FlushFileOp{Inode: inodeID}))

	head, err := client.Head(context.Background(), "bucket", "foo.txt")
	require.NoError(t, err)
	assert.Equal(t, int64(11), head.Size)

	readOp := &fuseops.ReadFileOp{Inode: inodeID, Offset: 0, Size: 11}
	require.NoError(t, f.ReadFile(readOp))
	assert.Equal(t, []byte("hello world"), readOp.Data)
}

func TestCreateFile_AlreadyExists(t *testing.T) {
	client := s3client.NewMockClient()
	client.PutDirect("foo.txt", []byte("x"))
	f := newTestFileSystem(t, client)

	err := f.CreateFile(&fuseops.CreateFileOp{Parent: fuseops.RootInodeID, Name: "foo.txt"})
	assert.Equal(t, fuse.EEXIST, err)
}

func TestOpenFile_RemoteReadOnlyAllowed(t *testing.T) {
	client := s3client.NewMockClient()
	client.PutDirect("foo.txt", []byte("hello"))
	f := newTestFileSystem(t, client)

	lookupOp := &fuseops.LookUpInodeOp{Parent: fuseops.RootInodeID, Name: "foo.txt"}
	require.NoError(t, f.LookUpInode(lookupOp))

	err := f.OpenFile(&fuseops.OpenFileOp{Inode: lookupOp.Entry.Child, Flags: bazilfuse.OpenReadOnly})
	assert.NoError(t, err)
}

func TestOpenFile_RemoteWriteOnlyRejected(t *testing.T) {
	client := s3client.NewMockClient()
	client.PutDirect("foo.txt", []byte("hello"))
	f := newTestFileSystem(t, client)

	lookupOp := &fuseops.LookUpInodeOp{Parent: fuseops.RootInodeID, Name: "foo.txt"}
	require.NoError(t, f.LookUpInode(lookupOp))

	err := f.OpenFile(&fuseops.OpenFileOp{Inode: lookupOp.Entry.Child, Flags: bazilfuse.OpenWriteOnly})
	assert.Equal(t, fuse.EACCES, err)
}

func TestOpenFile_LocalWriteOnlyAllowed(t *testing.T) {
	client := s3client.NewMockClient()
	f := newTestFileSystem(t, client)

	createOp := &fuseops.CreateFileOp{Parent: fuseops.RootInodeID, Name: "foo.txt", Mode: 0644}
	require.NoError(t, f.CreateFile(createOp))

	err := f.OpenFile(&fuseops.OpenFileOp{Inode: createOp.Entry.Child, Flags: bazilfuse.OpenWriteOnly})
	assert.NoError(t, err)
}

func TestOpenFile_LocalReadOnlyRejected(t *testing.T) {
	client := s3client.NewMockClient()
	f := newTestFileSystem(t, client)

	createOp := &fuseops.CreateFileOp{Parent: fuseops.RootInodeID, Name: "foo.txt", Mode: 0644}
	require.NoError(t, f.CreateFile(createOp))

	err := f.OpenFile(&fuseops.OpenFileOp{Inode: createOp.Entry.Child, Flags: bazilfuse.OpenReadOnly})
	assert.Equal(t, fuse.EACCES, err)
}

func TestOpenFile_ReadWriteRejected(t *testing.T) {
	client := s3client.NewMockClient()
	client.PutDirect("foo.txt", []byte("hello"))
	f := newTestFileSystem(t, client)

	lookupOp := &fuseops.LookUpInodeOp{Parent: fuseops.RootInodeID, Name: "foo.txt"}
	require.NoError(t, f.LookUpInode(lookupOp))

	err := f.OpenFile(&fuseops.OpenFileOp{Inode: lookupOp.Entry.Child, Flags: bazilfuse.OpenReadWrite})
	assert.Equal(t, fuse.EACCES, err)
}

func TestWriteFile_BadOffsetIsEINVAL(t *testing.T) {
	client := s3client.NewMockClient()
	f := newTestFileSystem(t, client)

	createOp := &fuseops.CreateFileOp{Parent: fuseops.RootInodeID, Name: "foo.txt", Mode: 0644}
	require.NoError(t, f.CreateFile(createOp))

	err := f.WriteFile(&fuseops.WriteFileOp{Inode: createOp.Entry.Child, Offset: 5, Data: []byte("x")})
	assert.Equal(t, fuse.EINVAL, err)
}

func TestSetInodeAttributes_Truncate(t *testing.T) {
	client := s3client.NewMockClient()
	client.PutDirect("foo.txt", []byte("0123456789"))
	f := newTestFileSystem(t, client)

	lookupOp := &fuseops.LookUpInodeOp{Parent: fuseops.RootInodeID, Name: "foo.txt"}
	require.NoError(t, f.LookUpInode(lookupOp))
	inodeID := lookupOp.Entry.Child

	size := uint64(3)
	setOp := &fuseops.SetInodeAttributesOp{Inode: inodeID, Size: &size}
	require.NoError(t, f.SetInodeAttributes(setOp))
	assert.Equal(t, uint64(3), setOp.Attributes.Size)

	readOp := &fuseops.ReadFileOp{Inode: inodeID, Offset: 0, Size: 3}
	require.NoError(t, f.ReadFile(readOp))
	assert.Equal(t, []byte("012"), readOp.Data)
}

func TestSetInodeAttributes_ModeUnsupported(t *testing.T) {
	client := s3client.NewMockClient()
	client.PutDirect("foo.txt", []byte("x"))
	f := newTestFileSystem(t, client)

	lookupOp := &fuseops.LookUpInodeOp{Parent: fuseops.RootInodeID, Name: "foo.txt"}
	require.NoError(t, f.LookUpInode(lookupOp))

	mode := os.FileMode(0600)
	err := f.SetInodeAttributes(&fuseops.SetInodeAttributesOp{Inode: lookupOp.Entry.Child, Mode: &mode})
	assert.Equal(t, fuse.ENOSYS, err)
}

func TestRmDir_EmptyThenNonEmpty(t *testing.T) {
	client := s3client.NewMockClient()
	client.PutDirect("empty/", nil)
	client.PutDirect("full/", nil)
	client.PutDirect("full/child.txt", []byte("x"))
	f := newTestFileSystem(t, client)

	require.NoError(t, f.RmDir(&fuseops.RmDirOp{Parent: fuseops.RootInodeID, Name: "empty"}))
	_, err := client.Head(context.Background(), "bucket", "empty/")
	assert.True(t, s3client.IsNotFound(err))

	err = f.RmDir(&fuseops.RmDirOp{Parent: fuseops.RootInodeID, Name: "full"})
	assert.Equal(t, fuse.ENOTEMPTY, err)
}

func TestUnlink(t *testing.T) {
	client := s3client.NewMockClient()
	client.PutDirect("foo.txt", []byte("x"))
	f := newTestFileSystem(t, client)

	require.NoError(t, f.Unlink(&fuseops.UnlinkOp{Parent: fuseops.RootInodeID, Name: "foo.txt"}))
	_, err := client.Head(context.Background(), "bucket", "foo.txt")
	assert.True(t, s3client.IsNotFound(err))
}

func TestOpenDirReadDir_PaginatesAcrossCalls(t *testing.T) {
	client := s3client.NewMockClient()
	client.ListPageSize = 1
	client.PutDirect("a.txt", []byte("1"))
	client.PutDirect("b.txt", []byte("2"))
	client.PutDirect("c.txt", []byte("3"))
	f := newTestFileSystem(t, client)

	openOp := &fuseops.OpenDirOp{Inode: fuseops.RootInodeID}
	require.NoError(t, f.OpenDir(openOp))

	// Drive ReadDir to exhaustion the way the kernel would, advancing by
	// entry count rather than bytes. ListPageSize=1 makes each call
	// return one entry, so every call crosses a MockClient list page
	// boundary.
	var entryCount int
	var offset fuseops.DirOffset
	for {
		op := &fuseops.ReadDirOp{Handle: openOp.Handle, Offset: offset, Dst: make([]byte, 4096)}
		require.NoError(t, f.ReadDir(op))
		if op.BytesRead == 0 {
			break
		}
		entryCount++
		offset++
	}
	assert.Equal(t, 3, entryCount)

	require.NoError(t, f.ReleaseDirHandle(&fuseops.ReleaseDirHandleOp{Handle: openOp.Handle}))
}
