// Package s3client defines the object-store contract this module talks to.
//
// The interface is a direct Go rendering of the ObjectClient trait in
// mountpoint-s3-client/src/object_client.rs: six operations, a split
// between service errors (the bucket said no) and client errors (the
// request never made it), and an opaque ETag. Go has no native async
// stream, so GetObjectStream replaces Stream<Item = ...> with a pull
// iterator that the caller drains with Next.
package s3client

import (
	"context"
	"errors"
	"fmt"
	"io"
)

// ByteRange is an inclusive [Start, End] range, matching the S3 Range header
// semantics. A nil *ByteRange means "the whole object".
type ByteRange struct {
	Start int64
	End   int64
}

// ObjectAttribute selects a field for GetObjectAttributes.
type ObjectAttribute int

const (
	AttributeETag ObjectAttribute = iota
	AttributeObjectSize
)

// ObjectInfo describes a single key returned by a List call.
type ObjectInfo struct {
	Key          string
	Size         int64
	ETag         ETag
	LastModified int64 // unix seconds
}

type ListObjectsRequest struct {
	Bucket            string
	Prefix            string
	Delimiter         string
	ContinuationToken string
	MaxKeys           int
}

type ListObjectsResult struct {
	Objects           []ObjectInfo
	CommonPrefixes    []string
	NextToken         string
	IsTruncated       bool
}

type HeadObjectResult struct {
	Size         int64
	ETag         ETag
	LastModified int64
}

type PutObjectParams struct {
	ContentLength int64
	IfNoneMatch   bool // true: PutObject only succeeds if the key does not already exist
}

type PutObjectResult struct {
	ETag ETag
	Size int64
}

type GetObjectAttributesResult struct {
	ETag       ETag
	ObjectSize int64
}

// Part is one chunk of a streamed GetObject response. Offset is absolute
// within the object, never relative to the previous part.
type Part struct {
	Offset int64
	Data   []byte
}

// GetObjectStream yields Parts in order and contiguously: the first part's
// Offset equals the requested range start, and every subsequent part's
// Offset equals the previous part's Offset+len(Data). A reader that
// observes anything else has hit a protocol violation, not a retryable
// condition.
type GetObjectStream interface {
	// Next returns the next part, or ok=false once the stream is
	// exhausted. err is non-nil only on a real failure; EOF is signaled
	// by ok=false, err=nil.
	Next(ctx context.Context) (part Part, ok bool, err error)
	Close() error
}

// ServiceErrorCode enumerates the bucket-reported failures this module
// distinguishes. Every other failure (timeouts, malformed responses, a
// closed connection mid-stream) is a ClientError instead.
type ServiceErrorCode int

const (
	ErrNoSuchBucket ServiceErrorCode = iota
	ErrNoSuchKey
	ErrPreconditionFailed
	ErrNotFound
)

func (c ServiceErrorCode) String() string {
	switch c {
	case ErrNoSuchBucket:
		return "NoSuchBucket"
	case ErrNoSuchKey:
		return "NoSuchKey"
	case ErrPreconditionFailed:
		return "PreconditionFailed"
	case ErrNotFound:
		return "NotFound"
	default:
		return "Unknown"
	}
}

// ServiceError is a well-formed, semantically meaningful response from the
// bucket: the key is missing, the bucket doesn't exist, a conditional
// write lost its race. Callers use errors.As to recover the Code.
type ServiceError struct {
	Code ServiceErrorCode
	Key  string
}

func (e *ServiceError) Error() string {
	if e.Key == "" {
		return e.Code.String()
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Key)
}

// ClientError wraps anything that isn't a clean service response: a
// transport failure, a context cancellation, a malformed payload.
type ClientError struct {
	Op  string
	Err error
}

func (e *ClientError) Error() string { return fmt.Sprintf("s3client: %s: %v", e.Op, e.Err) }
func (e *ClientError) Unwrap() error { return e.Err }

// IsNotFound reports whether err is a ServiceError for a missing key or
// bucket.
func IsNotFound(err error) bool {
	var se *ServiceError
	if errors.As(err, &se) {
		return se.Code == ErrNoSuchKey || se.Code == ErrNoSuchBucket || se.Code == ErrNotFound
	}
	return false
}

// IsPreconditionFailed reports whether err is a precondition-failed
// ServiceError (a conditional Put lost its race).
func IsPreconditionFailed(err error) bool {
	var se *ServiceError
	if errors.As(err, &se) {
		return se.Code == ErrPreconditionFailed
	}
	return false
}

// Client is the object-store contract the inode layer is built against.
// Implementations: RealClient (aws-sdk-go backed) and MockClient (in
// memory, used by the reference-model harness and unit tests).
type Client interface {
	Head(ctx context.Context, bucket, key string) (HeadObjectResult, error)
	Get(ctx context.Context, bucket, key string, byteRange *ByteRange, ifMatch *ETag) (GetObjectStream, error)
	List(ctx context.Context, req ListObjectsRequest) (ListObjectsResult, error)
	Put(ctx context.Context, bucket, key string, params PutObjectParams, body io.Reader) (PutObjectResult, error)
	// Delete removes key. It is idempotent: deleting a key with no
	// backing object is a success, not ErrNoSuchKey.
	Delete(ctx context.Context, bucket, key string) error
	GetObjectAttributes(ctx context.Context, bucket, key string, attrs []ObjectAttribute) (GetObjectAttributesResult, error)
}
