package cfg

import "fmt"

// Validate checks invariants BindFlags/decoding can't express on their
// own (cross-field constraints), mirroring the role the teacher's
// validate.go plays after flag binding and before NewServer is called.
func Validate(c *Config) error {
	if c.Bucket.Name == "" {
		return fmt.Errorf("bucket name is required")
	}
	if c.Bucket.Prefix != "" && c.Bucket.Prefix[len(c.Bucket.Prefix)-1] != '/' {
		c.Bucket.Prefix += "/"
	}
	if c.FileSystem.ReaddirLimit < 0 {
		return fmt.Errorf("readdir-limit must be >= 0, got %d", c.FileSystem.ReaddirLimit)
	}
	if c.Logging.Format != "" && c.Logging.Format != "text" && c.Logging.Format != "json" {
		return fmt.Errorf("log-format must be text or json, got %q", c.Logging.Format)
	}
	return nil
}
