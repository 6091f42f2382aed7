package s3client

import (
	"context"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
)

// RealClient talks to an actual S3-compatible endpoint via aws-sdk-go,
// the same SDK generation rclone's backend/s3 and the goofys-style
// reference implementation build on.
type RealClient struct {
	svc *s3.S3
}

// NewRealClient builds a RealClient from an aws-sdk-go session, the way
// goofys and rclone construct their backends: region/endpoint come from
// the session's config, credentials resolve through the SDK's normal
// chain (env vars, shared config, instance profile).
func NewRealClient(sess *session.Session) *RealClient {
	return &RealClient{svc: s3.New(sess)}
}

func NewSession(region, endpoint string, pathStyle bool) (*session.Session, error) {
	cfg := aws.NewConfig().WithRegion(region)
	if endpoint != "" {
		cfg = cfg.WithEndpoint(endpoint)
	}
	if pathStyle {
		cfg = cfg.WithS3ForcePathStyle(true)
	}
	return session.NewSessionWithOptions(session.Options{Config: *cfg, SharedConfigState: session.SharedConfigEnable})
}

func translateAWSErr(op, key string, err error) error {
	if err == nil {
		return nil
	}
	if aerr, ok := err.(awserr.Error); ok {
		switch aerr.Code() {
		case s3.ErrCodeNoSuchBucket:
			return &ServiceError{Code: ErrNoSuchBucket, Key: key}
		case s3.ErrCodeNoSuchKey:
			return &ServiceError{Code: ErrNoSuchKey, Key: key}
		case "NotFound", "404":
			return &ServiceError{Code: ErrNotFound, Key: key}
		case "PreconditionFailed":
			return &ServiceError{Code: ErrPreconditionFailed, Key: key}
		}
	}
	return &ClientError{Op: op, Err: err}
}

func (c *RealClient) Head(ctx context.Context, bucket, key string) (HeadObjectResult, error) {
	out, err := c.svc.HeadObjectWithContext(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return HeadObjectResult{}, translateAWSErr("Head", key, err)
	}
	return HeadObjectResult{
		Size:         aws.Int64Value(out.ContentLength),
		ETag:         NewETagFromString(aws.StringValue(out.ETag)),
		LastModified: out.LastModified.Unix(),
	}, nil
}

func (c *RealClient) Get(ctx context.Context, bucket, key string, byteRange *ByteRange, ifMatch *ETag) (GetObjectStream, error) {
	in := &s3.GetObjectInput{Bucket: aws.String(bucket), Key: aws.String(key)}
	if byteRange != nil {
		in.Range = aws.String(fmt.Sprintf("bytes=%d-%d", byteRange.Start, byteRange.End))
	}
	if ifMatch != nil {
		in.IfMatch = aws.String(ifMatch.String())
	}

	out, err := c.svc.GetObjectWithContext(ctx, in)
	if err != nil {
		return nil, translateAWSErr("Get", key, err)
	}

	start := int64(0)
	if byteRange != nil {
		start = byteRange.Start
	}
	return &realGetStream{body: out.Body, offset: start}, nil
}

// realGetStream reads the HTTP body in fixed-size chunks, each tagged
// with its absolute offset, matching the ordered/contiguous contract the
// inode read path depends on.
type realGetStream struct {
	body   io.ReadCloser
	offset int64
	done   bool
}

const getStreamChunkSize = 128 * 1024

func (s *realGetStream) Next(ctx context.Context) (Part, bool, error) {
	if s.done {
		return Part{}, false, nil
	}
	buf := make([]byte, getStreamChunkSize)
	n, err := s.body.Read(buf)
	if n > 0 {
		part := Part{Offset: s.offset, Data: buf[:n]}
		s.offset += int64(n)
		if err == io.EOF {
			s.done = true
		} else if err != nil {
			return part, true, &ClientError{Op: "Get", Err: err}
		}
		return part, true, nil
	}
	if err == io.EOF || err == nil {
		s.done = true
		return Part{}, false, nil
	}
	return Part{}, false, &ClientError{Op: "Get", Err: err}
}

func (s *realGetStream) Close() error { return s.body.Close() }

func (c *RealClient) List(ctx context.Context, req ListObjectsRequest) (ListObjectsResult, error) {
	in := &s3.ListObjectsV2Input{
		Bucket: aws.String(req.Bucket),
		Prefix: aws.String(req.Prefix),
	}
	if req.Delimiter != "" {
		in.Delimiter = aws.String(req.Delimiter)
	}
	if req.ContinuationToken != "" {
		in.ContinuationToken = aws.String(req.ContinuationToken)
	}
	if req.MaxKeys > 0 {
		in.MaxKeys = aws.Int64(int64(req.MaxKeys))
	}

	out, err := c.svc.ListObjectsV2WithContext(ctx, in)
	if err != nil {
		return ListObjectsResult{}, translateAWSErr("List", req.Prefix, err)
	}

	result := ListObjectsResult{
		IsTruncated: aws.BoolValue(out.IsTruncated),
		NextToken:   aws.StringValue(out.NextContinuationToken),
	}
	for _, o := range out.Contents {
		result.Objects = append(result.Objects, ObjectInfo{
			Key:          aws.StringValue(o.Key),
			Size:         aws.Int64Value(o.Size),
			ETag:         NewETagFromString(aws.StringValue(o.ETag)),
			LastModified: o.LastModified.Unix(),
		})
	}
	for _, p := range out.CommonPrefixes {
		result.CommonPrefixes = append(result.CommonPrefixes, aws.StringValue(p.Prefix))
	}
	return result, nil
}

func (c *RealClient) Put(ctx context.Context, bucket, key string, params PutObjectParams, body io.Reader) (PutObjectResult, error) {
	data, err := io.ReadAll(body)
	if err != nil {
		return PutObjectResult{}, &ClientError{Op: "Put", Err: err}
	}

	in := &s3.PutObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
		Body:   newSeekableReader(data),
	}
	if params.IfNoneMatch {
		in.SetIfNoneMatch("*")
	}

	out, err := c.svc.PutObjectWithContext(ctx, in)
	if err != nil {
		return PutObjectResult{}, translateAWSErr("Put", key, err)
	}
	return PutObjectResult{ETag: NewETagFromString(aws.StringValue(out.ETag)), Size: int64(len(data))}, nil
}

func (c *RealClient) Delete(ctx context.Context, bucket, key string) error {
	_, err := c.svc.DeleteObjectWithContext(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	return translateAWSErr("Delete", key, err)
}

func (c *RealClient) GetObjectAttributes(ctx context.Context, bucket, key string, attrs []ObjectAttribute) (GetObjectAttributesResult, error) {
	head, err := c.Head(ctx, bucket, key)
	if err != nil {
		return GetObjectAttributesResult{}, err
	}
	return GetObjectAttributesResult{ETag: head.ETag, ObjectSize: head.Size}, nil
}
