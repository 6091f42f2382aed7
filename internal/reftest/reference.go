// Package reftest implements the pure in-memory reference model and the
// property-based harness that drives it side by side with the real
// internal/fs.fileSystem, asserting equivalence after every mutation.
// Ported from mountpoint-s3's tests/reftests/{harness,generators,reference}.rs.
package reftest

import (
	"sort"
	"strings"

	"github.com/jiripospisil/mountpoint-s3/internal/fs/inode"
)

// NodeKind distinguishes a reference tree entry as a file or directory.
type NodeKind int

const (
	KindFile NodeKind = iota
	KindDirectory
)

// Node is one entry in the reference tree. It has no notion of inode
// numbers: equivalence with the real filesystem is checked on name,
// kind, and byte content only.
type Node struct {
	Kind     NodeKind
	Content  []byte
	Children map[string]*Node
}

func newDirNode() *Node {
	return &Node{Kind: KindDirectory, Children: map[string]*Node{}}
}

// Reference is the pure in-memory tree mirroring expected filesystem
// state, used only by the property harness.
type Reference struct {
	root *Node
}

func NewReference() *Reference {
	return &Reference{root: newDirNode()}
}

func (r *Reference) Root() *Node { return r.root }

func splitPath(path string) []string {
	path = strings.Trim(path, "/")
	if path == "" {
		return nil
	}
	return strings.Split(path, "/")
}

func joinPath(prefix, name string) string {
	if prefix == "" {
		return name
	}
	return prefix + "/" + name
}

// Lookup resolves path from the root, applying the same per-segment
// validity rule as inode.IsValidSegment: an invalid segment anywhere
// along the way means there is nothing to find.
func (r *Reference) Lookup(path string) *Node {
	node := r.root
	for _, seg := range splitPath(path) {
		if !inode.IsValidSegment(seg) || node.Kind != KindDirectory {
			return nil
		}
		child, ok := node.Children[seg]
		if !ok {
			return nil
		}
		node = child
	}
	return node
}

// AddFile creates (or, on the overwrite regression's second write,
// would replace -- callers check Lookup first and refuse in that case)
// a file at path, creating any missing parent directories along the
// way. Matches mknod's semantics: a fresh local file always wins over
// nothing being there yet.
func (r *Reference) AddFile(path string, content []byte) {
	segs := splitPath(path)
	node := r.root
	for _, seg := range segs[:len(segs)-1] {
		node = ensureDir(node, seg)
	}
	node.Children[segs[len(segs)-1]] = &Node{Kind: KindFile, Content: content}
}

// AddDir creates (or confirms) an empty directory at path, creating any
// missing parent directories along the way. Mirrors MkDir.
func (r *Reference) AddDir(path string) {
	segs := splitPath(path)
	node := r.root
	for _, seg := range segs {
		node = ensureDir(node, seg)
	}
}

func ensureDir(node *Node, name string) *Node {
	child, ok := node.Children[name]
	if !ok || child.Kind != KindDirectory {
		child = newDirNode()
		node.Children[name] = child
	}
	return child
}

// Directories returns every directory path in the tree, root included
// (as the empty string), in pre-order. DirectoryIndex wraps an index
// into this list to pick an existing directory to mutate.
func (r *Reference) Directories() []string {
	var out []string
	var walk func(prefix string, n *Node)
	walk = func(prefix string, n *Node) {
		out = append(out, prefix)
		for _, name := range sortedKeys(n.Children) {
			if child := n.Children[name]; child.Kind == KindDirectory {
				walk(joinPath(prefix, name), child)
			}
		}
	}
	walk("", r.root)
	return out
}

// PathNode pairs a node with its full path from the root.
type PathNode struct {
	Path string
	Node *Node
}

// ListRecursive returns every node in the tree (files and directories,
// root excluded) paired with its path, in a stable pre-order walk.
func (r *Reference) ListRecursive() []PathNode {
	var out []PathNode
	var walk func(prefix string, n *Node)
	walk = func(prefix string, n *Node) {
		for _, name := range sortedKeys(n.Children) {
			child := n.Children[name]
			path := joinPath(prefix, name)
			out = append(out, PathNode{Path: path, Node: child})
			if child.Kind == KindDirectory {
				walk(path, child)
			}
		}
	}
	walk("", r.root)
	return out
}

func sortedKeys(m map[string]*Node) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// BuildReference derives ground truth from the same raw key/content
// namespace Seed puts into the mock object client, applying the real
// filesystem's key interpretation rules (inode.ParseKey's per-segment
// validity, directory-marker detection, directory-always-wins
// shadowing) rather than the tree's own shape -- so the reference
// matches what a real listing would show even when the generated tree
// deliberately contains shadow-provoking names.
func BuildReference(namespace map[string][]byte) *Reference {
	ref := NewReference()

	keys := make([]string, 0, len(namespace))
	for k := range namespace {
		keys = append(keys, k)
	}
	// Ascending byte order puts a bare key ("a") before its
	// directory-marker counterpart ("a/"), so inserting in this order
	// naturally gives the directory the last, winning write -- the same
	// precedence DirInode.LookUpChild gives it.
	sort.Strings(keys)

	for _, key := range keys {
		insertKey(ref, key, namespace[key])
	}
	return ref
}

func insertKey(ref *Reference, key string, content []byte) {
	isMarker := strings.HasSuffix(key, "/")
	trimmed := strings.TrimSuffix(key, "/")
	if trimmed == "" {
		return // the mount root's own marker; not a child of anything
	}
	segs := strings.Split(trimmed, "/")

	node := ref.root
	for i, seg := range segs {
		if !inode.IsValidSegment(seg) {
			return // shadowed: this name, and anything nested under it, is unreachable
		}
		last := i == len(segs)-1
		if !last {
			node = ensureDir(node, seg)
			continue
		}
		if isMarker {
			ensureDir(node, seg)
			return
		}
		if existing, ok := node.Children[seg]; !ok || existing.Kind != KindDirectory {
			node.Children[seg] = &Node{Kind: KindFile, Content: content}
		}
	}
}
