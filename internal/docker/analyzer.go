package docker

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"path/filepath"
	"strings"
	"sync"
	"time"

	cerrdefs "github.com/containerd/errdefs"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/api/types/mount"
	"github.com/docker/docker/pkg/stdcopy"

	"github.com/shinji-kodama/fmrepl/internal/flamapy"
	"github.com/shinji-kodama/fmrepl/internal/logging"
	"github.com/shinji-kodama/fmrepl/internal/model"
)

// Mount points inside the analysis container.
const (
	ModelMount  = "/work/model"
	ConfigMount = "/work/config"
)

// AnalyzerOptions configures an Analyzer.
type AnalyzerOptions struct {
	// Image is the image providing the flamapy CLI. Required.
	Image string

	// Command is the flamapy launcher inside the image. Defaults to
	// flamapy.DefaultCommand.
	Command []string

	// Pull pulls Image once when the daemon does not have it.
	Pull bool
}

// Analyzer is a flamapy.Analyzer that runs each operation in a fresh
// container. The container is removed once its output has been read.
type Analyzer struct {
	client *Client
	opts   AnalyzerOptions
	now    func() time.Time

	pullOnce sync.Once
	pullErr  error
}

// NewAnalyzer creates an Analyzer using cli.
func NewAnalyzer(cli *Client, opts AnalyzerOptions) *Analyzer {
	if len(opts.Command) == 0 {
		opts.Command = flamapy.DefaultCommand
	}
	return &Analyzer{client: cli, opts: opts, now: time.Now}
}

// Open checks that path is a regular file on the host. The model is read by
// flamapy inside the container on every operation.
func (a *Analyzer) Open(ctx context.Context, path string) (flamapy.Model, error) {
	if err := flamapy.CheckModelFile(path); err != nil {
		return nil, err
	}
	logging.FromContext(ctx).Debug("model opened", "backend", "docker", "path", path, "image", a.opts.Image)
	return &containerModel{analyzer: a, path: path}, nil
}

type containerModel struct {
	analyzer *Analyzer
	path     string
}

func (m *containerModel) EstimatedNumberOfConfigurations(ctx context.Context) (flamapy.Result, error) {
	return m.analyzer.invoke(ctx, flamapy.OpEstimatedNumberOfConfigurations, m.path, "")
}

func (m *containerModel) ConfigurationsNumber(ctx context.Context) (flamapy.Result, error) {
	return m.analyzer.invoke(ctx, flamapy.OpConfigurationsNumber, m.path, "")
}

func (m *containerModel) SatisfiableConfiguration(ctx context.Context, configPath string) (flamapy.Result, error) {
	// A missing bind source makes the daemon reject the container, so the
	// configuration is checked on the host first.
	if err := flamapy.CheckModelFile(configPath); err != nil {
		detail := err.Error()
		if f, ok := flamapy.AsFailure(err); ok {
			detail = f.Detail
		}
		return flamapy.None(), &flamapy.Failure{
			Operation: flamapy.OpSatisfiableConfiguration,
			ModelPath: m.path,
			Detail:    detail,
		}
	}
	return m.analyzer.invoke(ctx, flamapy.OpSatisfiableConfiguration, m.path, configPath)
}

// runSpec is everything needed to create one analysis container.
type runSpec struct {
	Config     *container.Config
	HostConfig *container.HostConfig
}

// buildRunSpec maps an operation onto container configuration. The model
// and configuration directories are bind-mounted read-only and the flamapy
// arguments are rewritten to the in-container paths.
func buildRunSpec(opts AnalyzerOptions, op flamapy.Operation, modelPath, configPath string, now time.Time) (runSpec, error) {
	modelAbs, err := filepath.Abs(modelPath)
	if err != nil {
		return runSpec{}, fmt.Errorf("failed to resolve model path %q: %w", modelPath, err)
	}

	cmd := make([]string, 0, len(opts.Command)+3)
	cmd = append(cmd, opts.Command...)
	cmd = append(cmd, op.String(), path.Join(ModelMount, filepath.Base(modelAbs)))

	// Mounts rather than "src:dst:ro" bind strings, so host paths
	// containing ':' stay intact.
	mounts := []mount.Mount{readOnlyBind(filepath.Dir(modelAbs), ModelMount)}

	if configPath != "" {
		configAbs, err := filepath.Abs(configPath)
		if err != nil {
			return runSpec{}, fmt.Errorf("failed to resolve configuration path %q: %w", configPath, err)
		}
		cmd = append(cmd, path.Join(ConfigMount, filepath.Base(configAbs)))
		mounts = append(mounts, readOnlyBind(filepath.Dir(configAbs), ConfigMount))
	}

	return runSpec{
		Config: &container.Config{
			Image:      opts.Image,
			Cmd:        cmd,
			WorkingDir: "/work",
			Labels:     BuildLabels(modelAbs, op.String(), now),
		},
		HostConfig: &container.HostConfig{
			Mounts: mounts,
			// flamapy needs no network; keep the container offline.
			NetworkMode: "none",
		},
	}, nil
}

// readOnlyBind mounts the host directory source at target, read-only.
func readOnlyBind(source, target string) mount.Mount {
	return mount.Mount{
		Type:     mount.TypeBind,
		Source:   source,
		Target:   target,
		ReadOnly: true,
	}
}

// invoke runs one operation in a container and interprets its output the
// same way the exec backend does.
func (a *Analyzer) invoke(ctx context.Context, op flamapy.Operation, modelPath, configPath string) (flamapy.Result, error) {
	spec, err := buildRunSpec(a.opts, op, modelPath, configPath, a.now())
	if err != nil {
		return flamapy.None(), err
	}

	logger := logging.FromContext(ctx)
	logger.Debug("running flamapy container", "image", a.opts.Image, "cmd", spec.Config.Cmd)

	out, err := a.run(ctx, spec)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return flamapy.None(), ctxErr
		}
		return flamapy.None(), err
	}

	logger.Debug("flamapy container finished", "operation", op, "exit_code", out.ExitCode)
	return flamapy.ParseOutput(op, modelPath, out)
}

// run creates, starts and waits for one container, then collects its
// demultiplexed output. The container is always removed.
func (a *Analyzer) run(ctx context.Context, spec runSpec) (flamapy.Output, error) {
	// Step 1: Create the container. Nothing exists to clean up if this
	// fails.
	id, err := a.create(ctx, spec)
	if err != nil {
		return flamapy.Output{}, err
	}
	// From here on the container exists and is force-removed on every
	// path, including errors and interrupts.
	defer func() {
		// Cleanup must outlive a cancelled session context.
		rmCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 30*time.Second)
		defer cancel()
		if err := RemoveContainer(rmCtx, a.client, id, true); err != nil {
			logging.FromContext(ctx).Warn("failed to remove analysis container", "id", id, "error", err)
		}
	}()

	// Step 2: Start it. flamapy runs the single operation and exits.
	inner := a.client.inner
	if err := inner.ContainerStart(ctx, id, container.StartOptions{}); err != nil {
		return flamapy.Output{}, model.WrapCLIError(model.ExitAnalyzerUnavailable,
			fmt.Sprintf("failed to start container %s", shortID(id)), err)
	}

	// Step 3: Wait for the exit. WaitConditionNotRunning also returns for
	// a container that finished before the wait was registered. errCh
	// reports a failed wait, statusCh the container's own outcome.
	var exitCode int
	statusCh, errCh := inner.ContainerWait(ctx, id, container.WaitConditionNotRunning)
	select {
	case err := <-errCh:
		if err != nil {
			return flamapy.Output{}, fmt.Errorf("failed waiting for container %s: %w", shortID(id), err)
		}
	case status := <-statusCh:
		if status.Error != nil && status.Error.Message != "" {
			return flamapy.Output{}, fmt.Errorf("container %s: %s", shortID(id), status.Error.Message)
		}
		exitCode = int(status.StatusCode)
	}

	// Step 4: Collect the output. Without a TTY the daemon multiplexes
	// stdout and stderr into one stream with 8-byte frame headers, which
	// stdcopy splits apart again. The split matters: flamapy reports
	// failures on stderr.
	logs, err := inner.ContainerLogs(ctx, id, container.LogsOptions{ShowStdout: true, ShowStderr: true})
	if err != nil {
		return flamapy.Output{}, fmt.Errorf("failed to read logs of container %s: %w", shortID(id), err)
	}
	defer logs.Close()

	var stdout, stderr strings.Builder
	if _, err := stdcopy.StdCopy(&stdout, &stderr, logs); err != nil {
		return flamapy.Output{}, fmt.Errorf("failed to demultiplex logs of container %s: %w", shortID(id), err)
	}

	return flamapy.Output{Stdout: stdout.String(), Stderr: stderr.String(), ExitCode: exitCode}, nil
}

// create creates the container, pulling the image first when the daemon
// does not have it and pulling is enabled.
func (a *Analyzer) create(ctx context.Context, spec runSpec) (string, error) {
	name, err := NewContainerName(a.now())
	if err != nil {
		return "", err
	}

	inner := a.client.inner
	resp, err := inner.ContainerCreate(ctx, spec.Config, spec.HostConfig, nil, nil, name)
	// The daemon answers NotFound when the image is missing locally. Pull
	// it once and retry with the same name; the first attempt created
	// nothing.
	if err != nil && cerrdefs.IsNotFound(err) && a.opts.Pull {
		if pullErr := a.pull(ctx); pullErr != nil {
			return "", pullErr
		}
		resp, err = inner.ContainerCreate(ctx, spec.Config, spec.HostConfig, nil, nil, name)
	}
	if err != nil {
		if cerrdefs.IsNotFound(err) {
			return "", model.WrapCLIError(model.ExitAnalyzerUnavailable,
				fmt.Sprintf("image %q is not available", a.opts.Image), err)
		}
		return "", model.WrapCLIError(model.ExitAnalyzerUnavailable, "failed to create analysis container", err)
	}

	for _, w := range resp.Warnings {
		logging.FromContext(ctx).Warn("docker warning", "message", w)
	}
	return resp.ID, nil
}

// pull pulls the image at most once per Analyzer.
func (a *Analyzer) pull(ctx context.Context) error {
	a.pullOnce.Do(func() {
		logging.FromContext(ctx).Info("pulling image", "image", a.opts.Image)
		rc, err := a.client.inner.ImagePull(ctx, a.opts.Image, image.PullOptions{})
		if err != nil {
			a.pullErr = model.WrapCLIError(model.ExitAnalyzerUnavailable,
				fmt.Sprintf("failed to pull image %q", a.opts.Image), err)
			return
		}
		defer rc.Close()
		// The pull only completes once the progress stream is drained.
		if _, err := io.Copy(io.Discard, rc); err != nil && !errors.Is(err, io.EOF) {
			a.pullErr = model.WrapCLIError(model.ExitAnalyzerUnavailable,
				fmt.Sprintf("failed to pull image %q", a.opts.Image), err)
		}
	})
	return a.pullErr
}

func shortID(id string) string {
	if len(id) > 12 {
		return id[:12]
	}
	return id
}
