package docker

import (
	"context"
	"fmt"
	"io"
	"net"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/api/types/network"
	"github.com/docker/docker/client"
	ocispec "github.com/opencontainers/image-spec/specs-go/v1"

	"github.com/shinji-kodama/fmrepl/internal/model"
)

// defaultPingTimeout is the maximum duration to wait for a Docker daemon
// response during a Ping operation. Docker Desktop on macOS can be slower
// than native Linux Docker.
const defaultPingTimeout = 5 * time.Second

// engineAPI is the subset of the Docker SDK client used by this package.
// *client.Client satisfies it; tests substitute a fake.
type engineAPI interface {
	Ping(ctx context.Context) (types.Ping, error)
	ContainerCreate(ctx context.Context, config *container.Config, hostConfig *container.HostConfig,
		networkingConfig *network.NetworkingConfig, platform *ocispec.Platform, containerName string) (container.CreateResponse, error)
	ContainerStart(ctx context.Context, containerID string, options container.StartOptions) error
	ContainerWait(ctx context.Context, containerID string, condition container.WaitCondition) (<-chan container.WaitResponse, <-chan error)
	ContainerLogs(ctx context.Context, containerID string, options container.LogsOptions) (io.ReadCloser, error)
	ContainerRemove(ctx context.Context, containerID string, options container.RemoveOptions) error
	ContainerList(ctx context.Context, options container.ListOptions) ([]container.Summary, error)
	ImagePull(ctx context.Context, refStr string, options image.PullOptions) (io.ReadCloser, error)
	Close() error
}

// Client wraps the Docker Engine SDK client. It handles automatic Docker
// socket detection across platforms and exposes only the operations fmrepl
// needs.
//
// Usage:
//
//	c, err := docker.NewClient("")
//	if err != nil { /* handle */ }
//	defer c.Close()
//	if err := c.Ping(ctx); err != nil { /* Docker not running */ }
type Client struct {
	inner engineAPI
}

// NewClient creates a Docker client. host overrides everything else when
// non-empty; otherwise the detection order is:
//  1. DOCKER_HOST environment variable
//  2. Platform-specific default socket paths:
//     - Linux: /var/run/docker.sock, then $XDG_RUNTIME_DIR/docker.sock
//     - macOS: /var/run/docker.sock, then ~/.docker/run/docker.sock
//     - Windows: npipe:////./pipe/docker_engine
//
// Returns a model.CLIError with ExitAnalyzerUnavailable if no socket is
// found or the client cannot be created.
func NewClient(host string) (*Client, error) {
	// Step 1: An explicit host from the config file or environment wins.
	if host != "" {
		return newClientWithHost(host)
	}

	// Step 2: Respect DOCKER_HOST unconditionally and let the Docker SDK
	// parse the connection string.
	if dockerHost := os.Getenv("DOCKER_HOST"); dockerHost != "" {
		return newClientWithHost(dockerHost)
	}

	// Step 3: Auto-detect the socket for the current platform.
	detected, err := detectDockerHost()
	if err != nil {
		return nil, model.WrapCLIError(
			model.ExitAnalyzerUnavailable,
			"Docker socket not found",
			err,
		)
	}

	return newClientWithHost(detected)
}

// newClientWithHost creates a Docker client connected to the specified
// host, e.g. "unix:///var/run/docker.sock".
func newClientWithHost(host string) (*Client, error) {
	// WithAPIVersionNegotiation lets the SDK agree on an API version with
	// whatever daemon is running instead of pinning one.
	c, err := client.NewClientWithOpts(
		client.WithHost(host),
		client.WithAPIVersionNegotiation(),
	)
	if err != nil {
		return nil, model.WrapCLIError(
			model.ExitAnalyzerUnavailable,
			fmt.Sprintf("failed to create Docker client for host %q", host),
			err,
		)
	}

	return &Client{inner: c}, nil
}

// windowsPipe is Docker Desktop's named pipe on Windows.
const windowsPipe = `//./pipe/docker_engine`

// detectDockerHost returns the first reachable entry of socketCandidates
// for the current platform.
func detectDockerHost() (string, error) {
	if runtime.GOOS == "windows" {
		// Named pipes cannot be stat'ed; check with a brief dial.
		conn, err := net.DialTimeout("pipe", windowsPipe, time.Second)
		if err != nil {
			return "", fmt.Errorf("Docker named pipe not found at %s: %w", windowsPipe, err)
		}
		conn.Close()
		return "npipe://" + windowsPipe, nil
	}

	home, _ := os.UserHomeDir()
	candidates := socketCandidates(runtime.GOOS, home, os.Getenv("XDG_RUNTIME_DIR"))
	if len(candidates) == 0 {
		return "", fmt.Errorf("unsupported platform: %s", runtime.GOOS)
	}
	for _, path := range candidates {
		// A successful Stat only proves the socket file exists; Ping
		// checks that a daemon is listening on it.
		if _, err := os.Stat(path); err == nil {
			return "unix://" + path, nil
		}
	}
	return "", fmt.Errorf("Docker socket not found at any of: %v (is Docker running?)", candidates)
}

// socketCandidates lists Unix socket paths to try, most common first.
// Rootless Docker listens under XDG_RUNTIME_DIR; Docker Desktop for macOS
// under the home directory.
func socketCandidates(goos, home, runtimeDir string) []string {
	var paths []string
	switch goos {
	case "linux":
		// Rootful Docker first; rootless Docker runs per user and puts its
		// socket in the user's runtime directory, e.g. /run/user/1000.
		paths = append(paths, "/var/run/docker.sock")
		if runtimeDir != "" {
			paths = append(paths, filepath.Join(runtimeDir, "docker.sock"))
		}
	case "darwin":
		// Docker Desktop links /var/run/docker.sock when it has the
		// privileges to; newer versions always listen under the home
		// directory.
		paths = append(paths, "/var/run/docker.sock")
		if home != "" {
			paths = append(paths, filepath.Join(home, ".docker", "run", "docker.sock"))
		}
	}
	return paths
}

// Ping verifies that the Docker daemon is reachable, waiting up to
// defaultPingTimeout.
//
// Returns a model.CLIError with ExitAnalyzerUnavailable if the daemon does
// not respond.
func (c *Client) Ping(ctx context.Context) error {
	// Bound the ping so a hung daemon does not stall startup; the caller's
	// ctx still applies on top.
	pingCtx, cancel := context.WithTimeout(ctx, defaultPingTimeout)
	defer cancel()

	if _, err := c.inner.Ping(pingCtx); err != nil {
		return model.WrapCLIError(
			model.ExitAnalyzerUnavailable,
			"Docker daemon is not responding (is Docker running?)",
			err,
		)
	}
	return nil
}

// Close releases all resources held by the Docker client.
// Close is safe to call multiple times.
func (c *Client) Close() error {
	if c.inner != nil {
		return c.inner.Close()
	}
	return nil
}
