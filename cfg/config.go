package cfg

import (
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Config is the fully resolved mount configuration: CLI flags and config
// file values merged by viper, then decoded into this struct via
// DecodeHook. Mirrors the shape of the teacher's generated cfg.Config,
// hand-written here since this module's flag surface is small enough not
// to need codegen from a params.yaml.
type Config struct {
	Bucket BucketConfig `yaml:"bucket"`

	// Foreground keeps the process attached to the terminal instead of
	// daemonizing. The daemonized child process is recognized by the
	// MOUNTPOINT_S3_IN_BACKGROUND_MODE environment variable, not by this
	// field, so it never re-daemonizes itself.
	Foreground bool `yaml:"foreground"`

	FileSystem FileSystemConfig `yaml:"file-system"`

	Logging LoggingConfig `yaml:"logging"`

	Debug DebugConfig `yaml:"debug"`

	Metrics MetricsConfig `yaml:"metrics"`
}

type BucketConfig struct {
	Name      string `yaml:"name"`
	Prefix    string `yaml:"prefix"`
	Region    string `yaml:"region"`
	Endpoint  string `yaml:"endpoint"`
	PathStyle bool   `yaml:"path-style"`
}

type FileSystemConfig struct {
	FileMode Octal `yaml:"file-mode"`
	DirMode  Octal `yaml:"dir-mode"`
	Uid      int   `yaml:"uid"`
	Gid      int   `yaml:"gid"`

	// ReaddirLimit is decoded and validated, but it is not passed to the
	// filesystem: a ReadDir reply is bounded only by the kernel-provided
	// response buffer, whatever this value is.
	ReaddirLimit int `yaml:"readdir-limit"`

	// FuseOptions holds repeated "-o name[=value]" mount options, passed
	// straight through to the kernel mount call.
	FuseOptions []string `yaml:"fuse-options"`
}

type LoggingConfig struct {
	Severity  LogSeverity            `yaml:"severity"`
	Format    string                 `yaml:"format"`
	FilePath  ResolvedPath           `yaml:"file-path"`
	LogRotate LogRotateLoggingConfig `yaml:"log-rotate"`
}

type LogRotateLoggingConfig struct {
	MaxFileSizeMb   int  `yaml:"max-file-size-mb"`
	BackupFileCount int  `yaml:"backup-file-count"`
	Compress        bool `yaml:"compress"`
}

type DebugConfig struct {
	ExitOnInvariantViolation bool `yaml:"exit-on-invariant-violation"`
	LogMutex                 bool `yaml:"log-mutex"`
}

type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Addr    string `yaml:"addr"`
}

// BindFlags registers the CLI surface and binds every flag to its viper
// key, following the teacher's BindFlags wiring idiom exactly
// (flagSet.XP + viper.BindPFlag, propagating the bind error).
func BindFlags(flagSet *pflag.FlagSet) error {
	var err error

	flagSet.BoolP("foreground", "f", false, "Stay attached to the terminal instead of daemonizing.")
	if err = viper.BindPFlag("foreground", flagSet.Lookup("foreground")); err != nil {
		return err
	}

	flagSet.StringP("bucket", "b", "", "Name of the S3 bucket to mount.")
	if err = viper.BindPFlag("bucket.name", flagSet.Lookup("bucket")); err != nil {
		return err
	}

	flagSet.StringP("prefix", "", "", "Key prefix within the bucket to mount as the filesystem root.")
	if err = viper.BindPFlag("bucket.prefix", flagSet.Lookup("prefix")); err != nil {
		return err
	}

	flagSet.StringP("region", "", "us-east-1", "AWS region of the bucket.")
	if err = viper.BindPFlag("bucket.region", flagSet.Lookup("region")); err != nil {
		return err
	}

	flagSet.StringP("endpoint", "", "", "Override endpoint URL, for S3-compatible stores.")
	if err = viper.BindPFlag("bucket.endpoint", flagSet.Lookup("endpoint")); err != nil {
		return err
	}

	flagSet.BoolP("path-style", "", false, "Use path-style bucket addressing instead of virtual-hosted.")
	if err = viper.BindPFlag("bucket.path-style", flagSet.Lookup("path-style")); err != nil {
		return err
	}

	flagSet.IntP("file-mode", "", 0644, "Permission bits for files, in octal.")
	if err = viper.BindPFlag("file-system.file-mode", flagSet.Lookup("file-mode")); err != nil {
		return err
	}

	flagSet.IntP("dir-mode", "", 0755, "Permission bits for directories, in octal.")
	if err = viper.BindPFlag("file-system.dir-mode", flagSet.Lookup("dir-mode")); err != nil {
		return err
	}

	flagSet.IntP("uid", "", -1, "UID owner of all inodes. -1 uses the mounting user's UID.")
	if err = viper.BindPFlag("file-system.uid", flagSet.Lookup("uid")); err != nil {
		return err
	}

	flagSet.IntP("gid", "", -1, "GID owner of all inodes. -1 uses the mounting user's GID.")
	if err = viper.BindPFlag("file-system.gid", flagSet.Lookup("gid")); err != nil {
		return err
	}

	flagSet.IntP("readdir-limit", "", 0, "Accepted and validated; not passed to the filesystem, whose ReadDir replies are bounded only by the kernel buffer.")
	if err = viper.BindPFlag("file-system.readdir-limit", flagSet.Lookup("readdir-limit")); err != nil {
		return err
	}

	flagSet.StringArrayP("o", "o", nil, "Additional mount options, in mount(8) -o style (may be repeated).")
	if err = viper.BindPFlag("file-system.fuse-options", flagSet.Lookup("o")); err != nil {
		return err
	}

	flagSet.StringP("log-severity", "", "INFO", "One of TRACE, DEBUG, INFO, WARNING, ERROR, OFF.")
	if err = viper.BindPFlag("logging.severity", flagSet.Lookup("log-severity")); err != nil {
		return err
	}

	flagSet.StringP("log-format", "", "text", "One of text, json.")
	if err = viper.BindPFlag("logging.format", flagSet.Lookup("log-format")); err != nil {
		return err
	}

	flagSet.StringP("log-file", "", "", "Path to a log file. Empty means stderr.")
	if err = viper.BindPFlag("logging.file-path", flagSet.Lookup("log-file")); err != nil {
		return err
	}

	flagSet.BoolP("debug_invariants", "", false, "Accepted but not read by the filesystem; an internal invariant violation always panics.")
	if err = viper.BindPFlag("debug.exit-on-invariant-violation", flagSet.Lookup("debug_invariants")); err != nil {
		return err
	}

	flagSet.BoolP("debug_mutex", "", false, "Accepted but not read by the filesystem; no mutex hold times are logged.")
	if err = viper.BindPFlag("debug.log-mutex", flagSet.Lookup("debug_mutex")); err != nil {
		return err
	}

	flagSet.BoolP("metrics", "", false, "Serve Prometheus metrics.")
	if err = viper.BindPFlag("metrics.enabled", flagSet.Lookup("metrics")); err != nil {
		return err
	}

	flagSet.StringP("metrics-addr", "", ":9100", "Address to serve /metrics on.")
	if err = viper.BindPFlag("metrics.addr", flagSet.Lookup("metrics-addr")); err != nil {
		return err
	}

	return nil
}
