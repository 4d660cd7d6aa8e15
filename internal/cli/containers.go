// containers.go implements "fmrepl containers", which lists
// and prunes analysis containers left behind by the docker backend.
//
// Containers are discovered through the "fmrepl.managed-by=fmrepl" label;
// the model, operation and creation time shown come from the other
// fmrepl.* labels.

package cli

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/shinji-kodama/fmrepl/internal/docker"
	"github.com/shinji-kodama/fmrepl/internal/model"
)

// NewContainersCommand creates the "containers" cobra command group.
func NewContainersCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "containers",
		Short: "Manage analysis containers of the docker backend",
		Args:  cobra.NoArgs,
	}

	cmd.AddCommand(newContainersListCommand())
	cmd.AddCommand(newContainersPruneCommand())

	return cmd
}

func newContainersListCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List analysis containers",
		Long: `List containers created by the docker backend that still exist.

Analysis containers are removed as soon as their operation finishes, so
this normally prints nothing; leftovers come from interrupted sessions.

Examples:
  fmrepl containers list
  fmrepl containers list --json`,

		Args: cobra.NoArgs,

		RunE: func(cmd *cobra.Command, args []string) error {
			return runContainersList(cmd)
		},
	}
}

// pruneFlags holds the flag values for the prune command.
type pruneFlags struct {
	// force also removes containers that are still running.
	force bool
}

func newContainersPruneCommand() *cobra.Command {
	flags := &pruneFlags{}

	cmd := &cobra.Command{
		Use:   "prune",
		Short: "Remove leftover analysis containers",
		Long: `Remove analysis containers that are no longer running.

Running containers may belong to another fmrepl session and are kept unless
--force is given.

Examples:
  fmrepl containers prune
  fmrepl containers prune --force`,

		Args: cobra.NoArgs,

		RunE: func(cmd *cobra.Command, args []string) error {
			return runContainersPrune(cmd, flags)
		},
	}

	cmd.Flags().BoolVarP(&flags.force, "force", "f", false, "Also remove running containers")

	return cmd
}

// withDocker connects to the configured Docker daemon for the duration of
// fn.
func withDocker(ctx context.Context, fn func(*docker.Client) error) error {
	cli, err := docker.NewClient(appConfig.Docker.Host)
	if err != nil {
		return err
	}
	defer func() { _ = cli.Close() }()

	if err := cli.Ping(ctx); err != nil {
		return err
	}
	return fn(cli)
}

func runContainersList(cmd *cobra.Command) error {
	ctx := cmd.Context()

	return withDocker(ctx, func(cli *docker.Client) error {
		containers, err := docker.ListManagedContainers(ctx, cli)
		if err != nil {
			return err
		}
		loggerFrom(cmd).Debug("found analysis containers", "count", len(containers))

		out := cmd.OutOrStdout()
		if IsJSONOutput() {
			return printJSON(out, map[string]any{"containers": nonNil(containers)})
		}
		FormatContainerTable(out, containers, time.Now())
		return nil
	})
}

func runContainersPrune(cmd *cobra.Command, flags *pruneFlags) error {
	ctx := cmd.Context()
	logger := loggerFrom(cmd)

	return withDocker(ctx, func(cli *docker.Client) error {
		containers, err := docker.ListManagedContainers(ctx, cli)
		if err != nil {
			return err
		}

		targets := SelectPrunable(containers, flags.force)
		removed := make([]model.AnalysisContainer, 0, len(targets))
		for _, c := range targets {
			if err := docker.RemoveContainer(ctx, cli, c.ContainerID, flags.force); err != nil {
				// Keep going; one stuck container should not block the rest.
				logger.Warn("failed to remove container", "id", c.ContainerID, "error", err)
				continue
			}
			removed = append(removed, c)
		}

		out := cmd.OutOrStdout()
		if IsJSONOutput() {
			return printJSON(out, map[string]any{
				"removed": nonNil(removed),
				"skipped": len(containers) - len(targets),
			})
		}

		fmt.Fprintf(out, "Removed %d container(s).\n", len(removed))
		if skipped := len(containers) - len(targets); skipped > 0 {
			fmt.Fprintf(out, "Kept %d running container(s); use --force to remove them.\n", skipped)
		}
		if len(removed) < len(targets) {
			return model.NewCLIError(model.ExitGeneralError,
				fmt.Sprintf("%d container(s) could not be removed", len(targets)-len(removed)))
		}
		return nil
	})
}

// SelectPrunable returns the containers prune should remove: those not
// running, or all of them with force.
func SelectPrunable(containers []model.AnalysisContainer, force bool) []model.AnalysisContainer {
	var out []model.AnalysisContainer
	for _, c := range containers {
		if force || !c.IsRunning() {
			out = append(out, c)
		}
	}
	return out
}

// FormatContainerTable writes containers as an aligned text table:
//
//	CONTAINER     STATUS   AGE  OPERATION              MODEL
//	3f2a9c1b7d4e  exited   2h   configurations_number  /models/serde.uvl
func FormatContainerTable(w io.Writer, containers []model.AnalysisContainer, now time.Time) {
	if len(containers) == 0 {
		fmt.Fprintln(w, "No analysis containers found.")
		return
	}

	fmt.Fprintf(w, "%-12s  %-8s  %-5s  %-34s  %s\n", "CONTAINER", "STATUS", "AGE", "OPERATION", "MODEL")
	for _, c := range containers {
		fmt.Fprintf(w, "%-12s  %-8s  %-5s  %-34s  %s\n",
			shortID(c.ContainerID),
			c.Status,
			FormatAge(c.CreatedAt, now),
			dash(c.Operation),
			dash(c.ModelPath),
		)
	}
}

// FormatAge renders the time since t in its largest whole unit, or "-" for
// an unknown time.
func FormatAge(t, now time.Time) string {
	if t.IsZero() {
		return "-"
	}
	d := max(now.Sub(t), 0)
	switch {
	case d < time.Minute:
		return fmt.Sprintf("%ds", int(d.Seconds()))
	case d < time.Hour:
		return fmt.Sprintf("%dm", int(d.Minutes()))
	case d < 48*time.Hour:
		return fmt.Sprintf("%dh", int(d.Hours()))
	default:
		return fmt.Sprintf("%dd", int(d.Hours()/24))
	}
}

func shortID(id string) string {
	if len(id) > 12 {
		return id[:12]
	}
	return id
}

func dash(s string) string {
	if strings.TrimSpace(s) == "" {
		return "-"
	}
	return s
}

// nonNil makes empty lists encode as [] rather than null.
func nonNil(cs []model.AnalysisContainer) []model.AnalysisContainer {
	if cs == nil {
		return []model.AnalysisContainer{}
	}
	return cs
}
