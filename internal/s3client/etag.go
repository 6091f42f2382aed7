package s3client

import (
	"crypto/md5"
	"encoding/hex"
)

// ETag is an opaque entity tag. Most real backends hand back the MD5 of
// the object bytes in hex, quoted; the mock client computes the same MD5
// hex locally (without the surrounding quotes) so unit tests exercise
// the same comparison path a real bucket would.
type ETag struct {
	value string
}

func (e ETag) String() string { return e.value }
func (e ETag) IsZero() bool   { return e.value == "" }

func (e ETag) Equal(other ETag) bool { return e.value == other.value }

// NewETagFromBytes computes the MD5-derived ETag a single-part PUT of
// these bytes would receive, as unquoted hex.
func NewETagFromBytes(data []byte) ETag {
	sum := md5.Sum(data)
	return ETag{value: hex.EncodeToString(sum[:])}
}

// NewETagFromString wraps an already-opaque tag value, e.g. one returned
// by a real bucket for a multipart upload (which is not a plain MD5).
func NewETagFromString(s string) ETag {
	return ETag{value: s}
}
