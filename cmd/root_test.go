package cmd

import (
	"os"
	"path"
	"testing"

	"github.com/jiripospisil/mountpoint-s3/cfg"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultBucketRegion(t *testing.T) {
	var actual *cfg.Config
	cmd, err := NewRootCmd(func(c *cfg.Config, _, _ string) error {
		actual = c
		return nil
	})
	require.NoError(t, err)
	cmd.SetArgs([]string{"abc", "pqr"})

	if assert.NoError(t, cmd.Execute()) {
		assert.Equal(t, "us-east-1", actual.Bucket.Region)
	}
}

func TestCobraArgsNumInRange(t *testing.T) {
	tests := []struct {
		name        string
		args        []string
		expectError bool
	}{
		{name: "Too many args", args: []string{"abc", "pqr", "xyz"}, expectError: true},
		{name: "Too few args", args: []string{}, expectError: true},
		{name: "One arg is okay", args: []string{"pqr"}, expectError: false},
		{name: "Two args is okay", args: []string{"abc", "pqr"}, expectError: false},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cmd, err := NewRootCmd(func(*cfg.Config, string, string) error { return nil })
			require.NoError(t, err)
			cmd.SetArgs(tc.args)

			err = cmd.Execute()
			if tc.expectError {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestArgsParsing(t *testing.T) {
	wd, err := os.Getwd()
	require.NoError(t, err)

	tests := []struct {
		name               string
		args               []string
		expectedBucket     string
		expectedMountpoint string
	}{
		{
			name:               "Both bucket and mountpoint specified",
			args:               []string{"abc", "pqr"},
			expectedBucket:     "abc",
			expectedMountpoint: path.Join(wd, "pqr"),
		},
		{
			name:               "Only mountpoint specified",
			args:               []string{"pqr"},
			expectedBucket:     "",
			expectedMountpoint: path.Join(wd, "pqr"),
		},
		{
			name:               "Absolute path for mountpoint specified",
			args:               []string{"/pqr"},
			expectedBucket:     "",
			expectedMountpoint: "/pqr",
		},
		{
			name:               "Bucket flag fills in bucket when only mountpoint given",
			args:               []string{"--bucket", "flagged", "pqr"},
			expectedBucket:     "flagged",
			expectedMountpoint: path.Join(wd, "pqr"),
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			var bucketName, mountPoint string
			cmd, err := NewRootCmd(func(_ *cfg.Config, b, m string) error {
				bucketName = b
				mountPoint = m
				return nil
			})
			require.NoError(t, err)
			cmd.SetArgs(tc.args)

			err = cmd.Execute()
			if assert.NoError(t, err) {
				assert.Equal(t, tc.expectedBucket, bucketName)
				assert.Equal(t, tc.expectedMountpoint, mountPoint)
			}
		})
	}
}
