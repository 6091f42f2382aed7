package cfg

import "testing"

func TestValidate(t *testing.T) {
	c := &Config{}
	if err := Validate(c); err == nil {
		t.Error("expected error for missing bucket name")
	}

	c = &Config{Bucket: BucketConfig{Name: "my-bucket", Prefix: "data"}}
	if err := Validate(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if c.Bucket.Prefix != "data/" {
		t.Errorf("expected prefix to gain trailing slash, got %q", c.Bucket.Prefix)
	}

	c = &Config{Bucket: BucketConfig{Name: "b"}, FileSystem: FileSystemConfig{ReaddirLimit: -1}}
	if err := Validate(c); err == nil {
		t.Error("expected error for negative readdir-limit")
	}

	c = &Config{Bucket: BucketConfig{Name: "b"}, Logging: LoggingConfig{Format: "xml"}}
	if err := Validate(c); err == nil {
		t.Error("expected error for unknown log format")
	}
}
