package s3client

import (
	"context"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
)

// MockClient is an in-memory Client used by the reference-model harness
// and by unit tests that don't want a real bucket. It mirrors the
// mountpoint-s3-client mock_client referenced from harness.rs: a flat
// sorted key space, delimiter-aware listing with common-prefix rollup,
// and conditional puts.
type MockClient struct {
	mu      sync.Mutex
	objects map[string]*mockObject
	// ListPageSize caps how many keys List returns per call, forcing
	// pagination in tests even for small trees; zero means unlimited.
	ListPageSize int
}

type mockObject struct {
	data []byte
	etag ETag
}

func NewMockClient() *MockClient {
	return &MockClient{objects: make(map[string]*mockObject)}
}

func (m *MockClient) Head(ctx context.Context, bucket, key string) (HeadObjectResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.objects[key]
	if !ok {
		return HeadObjectResult{}, &ServiceError{Code: ErrNoSuchKey, Key: key}
	}
	return HeadObjectResult{Size: int64(len(o.data)), ETag: o.etag}, nil
}

func (m *MockClient) Get(ctx context.Context, bucket, key string, byteRange *ByteRange, ifMatch *ETag) (GetObjectStream, error) {
	m.mu.Lock()
	o, ok := m.objects[key]
	m.mu.Unlock()
	if !ok {
		return nil, &ServiceError{Code: ErrNoSuchKey, Key: key}
	}
	if ifMatch != nil && !ifMatch.Equal(o.etag) {
		return nil, &ServiceError{Code: ErrPreconditionFailed, Key: key}
	}

	start, end := int64(0), int64(len(o.data))
	if byteRange != nil {
		start, end = byteRange.Start, byteRange.End+1
		if end > int64(len(o.data)) {
			end = int64(len(o.data))
		}
		if start > end {
			start = end
		}
	}
	return &mockGetStream{data: o.data[start:end], offset: start}, nil
}

// mockGetStream hands back the whole range as a single part; it is a
// faithful-if-degenerate implementation of the ordered/contiguous
// contract (a single part is trivially both).
type mockGetStream struct {
	data     []byte
	offset   int64
	consumed bool
}

func (s *mockGetStream) Next(ctx context.Context) (Part, bool, error) {
	if s.consumed {
		return Part{}, false, nil
	}
	s.consumed = true
	return Part{Offset: s.offset, Data: s.data}, true, nil
}

func (s *mockGetStream) Close() error { return nil }

func (m *MockClient) List(ctx context.Context, req ListObjectsRequest) (ListObjectsResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	keys := make([]string, 0, len(m.objects))
	for k := range m.objects {
		if strings.HasPrefix(k, req.Prefix) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)

	start := 0
	if req.ContinuationToken != "" {
		idx := sort.SearchStrings(keys, req.ContinuationToken)
		start = idx
	}

	pageSize := m.ListPageSize
	if req.MaxKeys > 0 && (pageSize == 0 || req.MaxKeys < pageSize) {
		pageSize = req.MaxKeys
	}

	var result ListObjectsResult
	seenPrefixes := make(map[string]bool)
	i := start
	for ; i < len(keys); i++ {
		key := keys[i]
		rest := key[len(req.Prefix):]

		prefix := ""
		if req.Delimiter != "" {
			if idx := strings.Index(rest, req.Delimiter); idx >= 0 {
				prefix = req.Prefix + rest[:idx+len(req.Delimiter)]
				if seenPrefixes[prefix] {
					continue
				}
			}
		}
		if pageSize > 0 && len(result.Objects)+len(result.CommonPrefixes) >= pageSize {
			result.IsTruncated = true
			result.NextToken = key
			break
		}
		if prefix != "" {
			seenPrefixes[prefix] = true
			result.CommonPrefixes = append(result.CommonPrefixes, prefix)
			continue
		}
		o := m.objects[key]
		result.Objects = append(result.Objects, ObjectInfo{
			Key:  key,
			Size: int64(len(o.data)),
			ETag: o.etag,
		})
	}

	return result, nil
}

func (m *MockClient) Put(ctx context.Context, bucket, key string, params PutObjectParams, body io.Reader) (PutObjectResult, error) {
	data, err := io.ReadAll(body)
	if err != nil {
		return PutObjectResult{}, &ClientError{Op: "Put", Err: err}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if params.IfNoneMatch {
		if _, exists := m.objects[key]; exists {
			return PutObjectResult{}, &ServiceError{Code: ErrPreconditionFailed, Key: key}
		}
	}
	etag := NewETagFromBytes(data)
	m.objects[key] = &mockObject{data: data, etag: etag}
	return PutObjectResult{ETag: etag, Size: int64(len(data))}, nil
}

// Delete is idempotent, matching S3's DeleteObject: removing an absent
// key is not an error.
func (m *MockClient) Delete(ctx context.Context, bucket, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.objects, key)
	return nil
}

func (m *MockClient) GetObjectAttributes(ctx context.Context, bucket, key string, attrs []ObjectAttribute) (GetObjectAttributesResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.objects[key]
	if !ok {
		return GetObjectAttributesResult{}, &ServiceError{Code: ErrNoSuchKey, Key: key}
	}
	return GetObjectAttributesResult{ETag: o.etag, ObjectSize: int64(len(o.data))}, nil
}

// PutDirect is a test helper that seeds an object without going through
// Put, used by property-harness setup to prepopulate a reference tree.
func (m *MockClient) PutDirect(key string, data []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[key] = &mockObject{data: data, etag: NewETagFromBytes(data)}
}
