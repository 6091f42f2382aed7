package s3client

import "bytes"

// newSeekableReader adapts a byte slice to the io.ReadSeeker the SDK's
// PutObjectInput.Body requires (it needs to compute a Content-MD5 and
// potentially retry the upload).
func newSeekableReader(data []byte) *bytes.Reader {
	return bytes.NewReader(data)
}
