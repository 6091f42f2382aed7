package inode

import (
	"context"
	"testing"

	"github.com/jacobsa/fuse/fuseops"
	"github.com/jacobsa/timeutil"
	"github.com/jiripospisil/mountpoint-s3/internal/s3client"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRoot(client s3client.Client) *DirInode {
	return NewRootInode("bucket", client, timeutil.RealClock(), fuseops.InodeAttributes{})
}

func TestDirInode_LookUpChild_RemoteFile(t *testing.T) {
	client := s3client.NewMockClient()
	client.PutDirect("foo.txt", []byte("hi"))
	d := newTestRoot(client)

	result, err := d.LookUpChild(context.Background(), "foo.txt")
	require.NoError(t, err)
	assert.True(t, result.Exists)
	assert.False(t, result.IsDir)
	assert.False(t, result.Local)
	assert.Equal(t, int64(2), result.Size)
}

func TestDirInode_LookUpChild_ImplicitDirectory(t *testing.T) {
	client := s3client.NewMockClient()
	client.PutDirect("sub/foo.txt", []byte("hi"))
	d := newTestRoot(client)

	result, err := d.LookUpChild(context.Background(), "sub")
	require.NoError(t, err)
	assert.True(t, result.Exists)
	assert.True(t, result.IsDir)
}

func TestDirInode_LookUpChild_DirectoryShadowsFile(t *testing.T) {
	client := s3client.NewMockClient()
	client.PutDirect("both", []byte("i'm a file"))
	client.PutDirect("both/child.txt", []byte("i'm under a directory"))
	d := newTestRoot(client)

	result, err := d.LookUpChild(context.Background(), "both")
	require.NoError(t, err)
	assert.True(t, result.Exists)
	assert.True(t, result.IsDir, "directory must win over same-named file")
}

func TestDirInode_LookUpChild_Missing(t *testing.T) {
	client := s3client.NewMockClient()
	d := newTestRoot(client)

	result, err := d.LookUpChild(context.Background(), "nope")
	require.NoError(t, err)
	assert.False(t, result.Exists)
}

func TestDirInode_LookUpChild_InvalidNameIsShadowed(t *testing.T) {
	client := s3client.NewMockClient()
	d := newTestRoot(client)

	result, err := d.LookUpChild(context.Background(), "..")
	require.NoError(t, err)
	assert.False(t, result.Exists)
}

func TestDirInode_ReadEntries_PaginatesAndMergesLocal(t *testing.T) {
	client := s3client.NewMockClient()
	client.ListPageSize = 1
	client.PutDirect("a.txt", []byte("1"))
	client.PutDirect("b.txt", []byte("2"))
	d := newTestRoot(client)
	d.CreateChildFile("c.txt")

	seen := make(map[string]bool)
	var all []DirEntry
	token := ""
	for {
		entries, next, err := d.ReadEntries(context.Background(), token, 0)
		require.NoError(t, err)
		for _, e := range entries {
			seen[e.Name] = true
		}
		all = append(all, entries...)
		if next == "" {
			break
		}
		token = next
	}
	all = append(all, d.LocalEntries(seen)...)

	names := make(map[string]bool)
	for _, e := range all {
		names[e.Name] = true
	}
	assert.True(t, names["a.txt"])
	assert.True(t, names["b.txt"])
	assert.True(t, names["c.txt"])
}
