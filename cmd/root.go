package cmd

import (
	"fmt"
	"os"
	"path"
	"path/filepath"

	"github.com/jiripospisil/mountpoint-s3/cfg"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// NewRootCmd builds the mount command, injecting runMount so tests can
// exercise flag/arg parsing without actually mounting anything -- the
// same dependency-injection shape the teacher's own NewRootCmd uses.
func NewRootCmd(runMount func(c *cfg.Config, bucketName, mountPoint string) error) (*cobra.Command, error) {
	var cfgFile string
	config := &cfg.Config{}

	cmd := &cobra.Command{
		Use:   "mountpoint-s3 [flags] bucket mount_point",
		Short: "Mount an S3 bucket locally as a POSIX-like file system",
		Long: `mountpoint-s3 is a FUSE adapter that exposes an S3 bucket (or a
prefix within one) as a local file system, translating directory
listings, reads, and writes into S3 API calls.`,
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if cfgFile != "" {
				viper.SetConfigFile(cfgFile)
				viper.SetConfigType("yaml")
				if err := viper.ReadInConfig(); err != nil {
					return fmt.Errorf("reading config file: %w", err)
				}
			}

			if err := viper.Unmarshal(config, viper.DecodeHook(cfg.DecodeHook())); err != nil {
				return fmt.Errorf("decoding config: %w", err)
			}

			bucketName, mountPoint, err := populateArgs(args, config)
			if err != nil {
				return err
			}
			config.Bucket.Name = bucketName

			if err := cfg.Validate(config); err != nil {
				return err
			}

			return runMount(config, bucketName, mountPoint)
		},
	}

	if err := cfg.BindFlags(cmd.Flags()); err != nil {
		return nil, err
	}
	cmd.PersistentFlags().StringVar(&cfgFile, "config-file", "", "Path to a YAML config file.")

	return cmd, nil
}

// populateArgs splits the positional arguments into a bucket name and a
// mount point, falling back to --bucket (or the config file's bucket
// name) when only the mount point is given, and resolves the mount
// point to an absolute path -- important since daemonizing changes the
// process's working directory before this code runs again.
func populateArgs(args []string, config *cfg.Config) (bucketName, mountPoint string, err error) {
	switch len(args) {
	case 1:
		bucketName = config.Bucket.Name
		mountPoint = args[0]
	case 2:
		bucketName = args[0]
		mountPoint = args[1]
	default:
		err = fmt.Errorf(
			"%s takes one or two arguments. Run `%s --help` for more info.",
			path.Base(os.Args[0]), path.Base(os.Args[0]))
		return
	}

	mountPoint, err = resolvePath(mountPoint)
	if err != nil {
		err = fmt.Errorf("canonicalizing mount point: %w", err)
		return
	}
	return
}

// resolvePath expands a leading "~" and makes the result absolute,
// mirroring the teacher's util.GetResolvedPath without its
// GCSFUSE_PARENT_PROCESS_DIR daemonization special-case, which has no
// equivalent env var in this module.
func resolvePath(p string) (string, error) {
	if p == "~" || len(p) >= 2 && p[:2] == "~/" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolving home directory: %w", err)
		}
		if p == "~" {
			p = home
		} else {
			p = filepath.Join(home, p[2:])
		}
	}
	return filepath.Abs(p)
}

// Execute runs the root command against os.Args, exiting the process on
// error the way the teacher's Execute does.
func Execute() {
	cmd, err := NewRootCmd(runMountCommand)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
