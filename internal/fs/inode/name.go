// Package inode implements the filesystem's inode table: the directory
// and file inodes, their lookup-count lifecycle, and the key<->path
// translation between a flat S3 key space and a hierarchical tree.
package inode

import "strings"

// ConflictingFileNameSuffix is the teacher's marker for a file that
// collides with a same-named directory, ported from its identical
// constant in fs/inode/dir.go. Nothing in this package appends it:
// LookUpChild and ReadEntries resolve such a collision in favour of the
// directory and leave the file unreachable. StripConflictSuffix only
// recognizes and removes it.
const ConflictingFileNameSuffix = "\n"

// IsValidSegment reports whether name is usable as a single path
// component: non-empty, not "." or "..", and free of NUL bytes and "/".
func IsValidSegment(name string) bool {
	if name == "" || name == "." || name == ".." {
		return false
	}
	if strings.ContainsRune(name, 0) || strings.ContainsRune(name, '/') {
		return false
	}
	return true
}

// IsDirName reports whether name (as stored as an object key suffix)
// denotes a directory marker, i.e. ends in "/", or is empty (the root).
func IsDirName(name string) bool {
	return name == "" || strings.HasSuffix(name, "/")
}

// ParseKey strips prefix from key and splits the remainder into path
// components, validating every component. ok is false if key doesn't
// start with prefix, or if any component is invalid -- in which case the
// key is shadowed and must be omitted from listings and lookups, per the
// shadowing invariant.
func ParseKey(prefix, key string) (components []string, isDirMarker bool, ok bool) {
	if !strings.HasPrefix(key, prefix) {
		return nil, false, false
	}
	rest := key[len(prefix):]
	if rest == "" {
		return nil, true, true
	}

	isDirMarker = strings.HasSuffix(rest, "/")
	trimmed := strings.TrimSuffix(rest, "/")
	if trimmed == "" {
		return nil, isDirMarker, true
	}

	parts := strings.Split(trimmed, "/")
	for _, p := range parts {
		if !IsValidSegment(p) {
			return nil, false, false
		}
	}
	return parts, isDirMarker, true
}

// JoinKey builds an object key from a directory prefix and a child name.
// isDir appends the trailing "/" directory-marker suffix.
func JoinKey(prefix, name string, isDir bool) string {
	var b strings.Builder
	b.WriteString(prefix)
	b.WriteString(name)
	if isDir && !strings.HasSuffix(name, "/") {
		b.WriteByte('/')
	}
	return b.String()
}

// StripConflictSuffix removes a trailing ConflictingFileNameSuffix, if
// present, returning the original name and whether it was present.
func StripConflictSuffix(name string) (string, bool) {
	if strings.HasSuffix(name, ConflictingFileNameSuffix) {
		return strings.TrimSuffix(name, ConflictingFileNameSuffix), true
	}
	return name, false
}
