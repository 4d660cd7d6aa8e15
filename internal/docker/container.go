package docker

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/filters"

	"github.com/shinji-kodama/fmrepl/internal/model"
)

// ListManagedContainers returns every container carrying the fmrepl
// management label, running or not, newest first.
//
// Containers whose labels cannot be parsed are still listed so they can be
// pruned; their model and operation fields are left empty.
func ListManagedContainers(ctx context.Context, cli *Client) ([]model.AnalysisContainer, error) {
	// Docker performs the label filtering server-side.
	args := filters.NewArgs()
	for k, v := range FilterLabels() {
		args.Add("label", k+"="+v)
	}

	containers, err := cli.inner.ContainerList(ctx, container.ListOptions{
		All:     true,
		Filters: args,
	})
	if err != nil {
		return nil, model.WrapCLIError(
			model.ExitAnalyzerUnavailable,
			"failed to list Docker containers",
			err,
		)
	}

	result := make([]model.AnalysisContainer, 0, len(containers))
	for _, c := range containers {
		result = append(result, summaryToContainer(c))
	}

	sort.SliceStable(result, func(i, j int) bool {
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})

	return result, nil
}

// summaryToContainer converts a Docker API container summary to an
// AnalysisContainer. This is a pure mapping function.
func summaryToContainer(c container.Summary) model.AnalysisContainer {
	info, _ := ParseLabels(c.Labels)

	// Docker returns names with a leading "/".
	if len(c.Names) > 0 {
		info.ContainerName = strings.TrimPrefix(c.Names[0], "/")
	}
	info.ContainerID = c.ID
	info.Status = string(c.State)

	return info
}

// RemoveContainer removes a container. With force set, a running container
// is killed first.
func RemoveContainer(ctx context.Context, cli *Client, containerID string, force bool) error {
	err := cli.inner.ContainerRemove(ctx, containerID, container.RemoveOptions{
		Force: force,
	})
	if err != nil {
		return model.WrapCLIError(
			model.ExitAnalyzerUnavailable,
			fmt.Sprintf("failed to remove container %q", containerID),
			err,
		)
	}
	return nil
}
