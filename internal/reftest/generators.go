package reftest

import (
	"fmt"

	"pgregory.net/rapid"
)

// Tree is the randomly generated initial-state shape seeded into both
// the mock object client and the reference model: a nested structure of
// either a file's content or a named set of children. Ported from
// harness.rs's TreeNode.
type Tree struct {
	IsDir    bool
	Content  []byte
	Children map[string]*Tree
}

func FileTree(content []byte) *Tree { return &Tree{Content: content} }

func DirTree(children map[string]*Tree) *Tree {
	return &Tree{IsDir: true, Children: children}
}

// Seed flattens tree into the raw key/content namespace a mock object
// client would hold, mirroring flatten_tree: a directory's raw key is
// its parent's key plus its own name plus "/"; a file's raw key is its
// parent's key plus its own name verbatim, deliberately not re-escaping
// a name that itself contains "/" or other shadow-provoking characters.
func Seed(tree *Tree) map[string][]byte {
	out := map[string][]byte{}
	var walk func(prefix string, n *Tree)
	walk = func(prefix string, n *Tree) {
		if !n.IsDir {
			out[prefix] = n.Content
			return
		}
		for name, child := range n.Children {
			sep := ""
			if child.IsDir {
				sep = "/"
			}
			walk(prefix+name+sep, child)
		}
	}
	walk("", tree)
	return out
}

// GenTree draws a random Tree bounded by maxDepth/maxFanout/maxFileSize,
// the Go analogue of gen_tree's depth/fanout/size knobs.
func GenTree(maxDepth, maxFileSize, maxFanout int) *rapid.Generator[*Tree] {
	return rapid.Custom(func(t *rapid.T) *Tree {
		return genNode(t, maxDepth, maxFileSize, maxFanout)
	})
}

func genNode(t *rapid.T, depth, maxFileSize, maxFanout int) *Tree {
	if depth <= 0 || !rapid.Bool().Draw(t, "isDir") {
		size := rapid.IntRange(0, maxFileSize).Draw(t, "size")
		fill := byte(rapid.IntRange(0, 255).Draw(t, "fill"))
		content := make([]byte, size)
		for i := range content {
			content[i] = fill
		}
		return FileTree(content)
	}

	fanout := rapid.IntRange(0, maxFanout).Draw(t, "fanout")
	children := make(map[string]*Tree, fanout)
	for i := 0; i < fanout; i++ {
		name := treeNameGen().Draw(t, fmt.Sprintf("name%d", i))
		children[name] = genNode(t, depth-1, maxFileSize, maxFanout)
	}
	return DirTree(children)
}

// treeNameGen draws tree-node names, occasionally one of the fixed edge
// cases (".", "..", "a/" with a trailing "/", and "-", "-a-", "-a")
// rather than only well-formed segments; it never draws an empty name
// or one with an embedded "/". Generated trees thereby
// exercise the shadowing invariant the way harness.rs's Name Arbitrary
// impl does.
func treeNameGen() *rapid.Generator[string] {
	return rapid.OneOf(
		rapid.StringMatching(`[a-zA-Z0-9_\-]{1,8}`),
		rapid.SampledFrom([]string{".", "..", "a/", "-", "-a-", "-a"}),
	)
}

// ValidNameGen draws a name guaranteed to be usable as a fresh mknod
// target: non-empty, not "."/"..", free of "/" and NUL. Matches
// valid_name_strategy, used for WriteFile/OpMkdir names so the mutation
// harness mostly exercises real creation rather than being swamped by
// shadowed-name noise.
func ValidNameGen() *rapid.Generator[string] {
	return rapid.StringMatching(`[a-zA-Z0-9_\-]{1,12}`)
}

// FileContentGen draws a small-to-medium byte slice, the Go analogue of
// FileContent/FileSize::Small.
func FileContentGen(maxSize int) *rapid.Generator[[]byte] {
	return rapid.Custom(func(t *rapid.T) []byte {
		size := rapid.IntRange(0, maxSize).Draw(t, "size")
		fill := byte(rapid.IntRange(0, 255).Draw(t, "fill"))
		buf := make([]byte, size)
		for i := range buf {
			buf[i] = fill
		}
		return buf
	})
}

// Op is one mutation the property harness can apply, mirroring
// harness.rs's Op enum. WriteFile mknods a file (asserting EEXIST on a
// name collision) and writes+releases its content. OpMkdir is the
// supplemental operation noted in SPEC_FULL.md §4.9: harness.rs's own
// TODO comment ("TODO: mkdir, unlink") flags it as intended but never
// added.
type Op struct {
	Kind    OpKind
	Name    string
	DirIdx  int
	Content []byte
}

type OpKind int

const (
	OpWriteFile OpKind = iota
	OpMkdir
)

func (o Op) String() string {
	switch o.Kind {
	case OpMkdir:
		return fmt.Sprintf("Mkdir(%q, dir=%d)", o.Name, o.DirIdx)
	default:
		return fmt.Sprintf("WriteFile(%q, dir=%d, %d bytes)", o.Name, o.DirIdx, len(o.Content))
	}
}

// GenOp draws a single random Op.
func GenOp(maxFileSize int) *rapid.Generator[Op] {
	return rapid.Custom(func(t *rapid.T) Op {
		name := ValidNameGen().Draw(t, "name")
		dirIdx := rapid.IntRange(0, 1<<20).Draw(t, "dirIdx")
		if rapid.Bool().Draw(t, "isMkdir") {
			return Op{Kind: OpMkdir, Name: name, DirIdx: dirIdx}
		}
		content := FileContentGen(maxFileSize).Draw(t, "content")
		return Op{Kind: OpWriteFile, Name: name, DirIdx: dirIdx, Content: content}
	})
}

// GenOps draws between min and max Ops.
func GenOps(min, max, maxFileSize int) *rapid.Generator[[]Op] {
	return rapid.SliceOfN(GenOp(maxFileSize), min, max)
}
