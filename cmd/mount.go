package cmd

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"

	"github.com/jacobsa/daemonize"
	"github.com/jacobsa/fuse"
	"github.com/jacobsa/fuse/fuseutil"
	"github.com/kardianos/osext"

	"github.com/jiripospisil/mountpoint-s3/cfg"
	internalfs "github.com/jiripospisil/mountpoint-s3/internal/fs"
	"github.com/jiripospisil/mountpoint-s3/internal/logger"
	"github.com/jiripospisil/mountpoint-s3/internal/metrics"
	"github.com/jiripospisil/mountpoint-s3/internal/s3client"
)

const inBackgroundModeEnvVar = "MOUNTPOINT_S3_IN_BACKGROUND_MODE"

// runMountCommand is the cfg.Config-driven entry point NewRootCmd's RunE
// hands off to. It daemonizes unless running in the foreground, mirroring
// the teacher's own runCLIApp/mountWithArgs split.
func runMountCommand(c *cfg.Config, bucketName, mountPoint string) error {
	if err := logger.InitLogFile(c.Logging); err != nil {
		return fmt.Errorf("init log file: %w", err)
	}
	c.Bucket.Name = bucketName

	reexeced := os.Getenv(inBackgroundModeEnvVar) == "true"
	if !c.Foreground && !reexeced {
		return daemonizeAndRun(mountPoint)
	}

	return mountForeground(c, mountPoint)
}

// daemonizeAndRun re-execs the current binary with the background-mode
// marker set and waits for it to signal success or failure, the way the
// teacher's legacy_main.go drives github.com/jacobsa/daemonize.
func daemonizeAndRun(mountPoint string) error {
	path, err := osext.Executable()
	if err != nil {
		return fmt.Errorf("osext.Executable: %w", err)
	}

	args := append([]string{}, os.Args[1:]...)
	args[len(args)-1] = mountPoint

	env := []string{
		fmt.Sprintf("PATH=%s", os.Getenv("PATH")),
		fmt.Sprintf("%s=true", inBackgroundModeEnvVar),
	}
	if home, herr := os.UserHomeDir(); herr == nil {
		env = append(env, fmt.Sprintf("HOME=%s", home))
	}

	if err := daemonize.Run(path, args, env, os.Stdout); err != nil {
		return fmt.Errorf("daemonize.Run: %w", err)
	}
	logger.Infof("File system mounted successfully.")
	return nil
}

// mountForeground builds the S3 client, the filesystem facade, and the
// optional metrics listener, mounts, signals the outcome to a parent
// daemonize process (a no-op if there isn't one), and blocks until
// unmounted.
func mountForeground(c *cfg.Config, mountPoint string) (err error) {
	defer func() {
		if sigErr := daemonize.SignalOutcome(err); sigErr != nil {
			logger.Errorf("signaling mount outcome to parent process: %v", sigErr)
		}
	}()

	sess, err := s3client.NewSession(c.Bucket.Region, c.Bucket.Endpoint, c.Bucket.PathStyle)
	if err != nil {
		return fmt.Errorf("NewSession: %w", err)
	}
	client := s3client.NewRealClient(sess)

	uid, gid := currentUserAndGroup(c)

	serverCfg := &internalfs.ServerConfig{
		Client:   client,
		Bucket:   c.Bucket.Name,
		Prefix:   c.Bucket.Prefix,
		Uid:      uid,
		Gid:      gid,
		FileMode: os.FileMode(c.FileSystem.FileMode),
		DirMode:  os.FileMode(c.FileSystem.DirMode),
	}

	fsImpl, err := internalfs.NewFileSystem(serverCfg)
	if err != nil {
		return fmt.Errorf("NewFileSystem: %w", err)
	}

	if c.Metrics.Enabled {
		go serveMetrics(c.Metrics.Addr)
	}

	fsName := "mountpoint-s3:" + c.Bucket.Name
	mountCfg := &fuse.MountConfig{
		FSName:               fsName,
		Subtype:              "mountpoint-s3",
		VolumeName:           fsName,
		Options:              parseFuseOptions(c.FileSystem.FuseOptions),
		EnableParallelDirOps: true,
	}

	logger.Infof("Mounting %q at %q...", c.Bucket.Name, mountPoint)
	mfs, err := fuse.Mount(mountPoint, fuseutil.NewFileSystemServer(fsImpl), mountCfg)
	if err != nil {
		return fmt.Errorf("mount: %w", err)
	}

	logger.Infof("File system mounted successfully.")
	registerSIGINTHandler(mfs.Dir())

	if err = mfs.Join(context.Background()); err != nil {
		return fmt.Errorf("MountedFileSystem.Join: %w", err)
	}
	return nil
}

func currentUserAndGroup(c *cfg.Config) (uid, gid uint32) {
	uid, gid = uint32(os.Getuid()), uint32(os.Getgid())
	if c.FileSystem.Uid >= 0 {
		uid = uint32(c.FileSystem.Uid)
	}
	if c.FileSystem.Gid >= 0 {
		gid = uint32(c.FileSystem.Gid)
	}
	return
}

// parseFuseOptions turns repeated "-o" values into the flat option map
// fuse.MountConfig expects, accepting both the comma-joined legacy
// mount(8) style ("rw,nodev") and one option per flag invocation.
func parseFuseOptions(raw []string) map[string]string {
	opts := make(map[string]string)
	for _, entry := range raw {
		for _, opt := range strings.Split(entry, ",") {
			if opt == "" {
				continue
			}
			if name, value, ok := strings.Cut(opt, "="); ok {
				opts[name] = value
			} else {
				opts[opt] = ""
			}
		}
	}
	return opts
}

func serveMetrics(addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	logger.Infof("Serving metrics on %s/metrics", addr)
	if err := http.ListenAndServe(addr, mux); err != nil {
		logger.Errorf("metrics server: %v", err)
	}
}

// registerSIGINTHandler lets the user unmount with Ctrl-C, the way the
// teacher's registerSIGINTHandler does.
func registerSIGINTHandler(mountPoint string) {
	signalChan := make(chan os.Signal, 1)
	signal.Notify(signalChan, os.Interrupt)

	go func() {
		for range signalChan {
			logger.Infof("Received SIGINT, attempting to unmount %q...", mountPoint)
			if err := fuse.Unmount(mountPoint); err != nil {
				logger.Errorf("Failed to unmount in response to SIGINT: %v", err)
			} else {
				logger.Infof("Successfully unmounted %q in response to SIGINT.", mountPoint)
				return
			}
		}
	}()
}
