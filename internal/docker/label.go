package docker

import (
	"crypto/rand"
	"fmt"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/shinji-kodama/fmrepl/internal/model"
)

// Label key constants define the Docker label keys stored on analysis
// containers. Labels are the only record of what a container was doing;
// there is no external state file.
//
// All keys share the "fmrepl." prefix to avoid collisions with labels set
// by other tools.
const (
	// LabelPrefix is the common prefix for all fmrepl labels.
	LabelPrefix = "fmrepl."

	// LabelManagedBy identifies containers created by fmrepl. This is the
	// label used for server-side filtering.
	// Key: "fmrepl.managed-by", Value: always "fmrepl".
	LabelManagedBy = LabelPrefix + "managed-by"

	// LabelModel stores the absolute host path of the analysed model.
	LabelModel = LabelPrefix + "model"

	// LabelOperation stores the flamapy operation name.
	LabelOperation = LabelPrefix + "operation"

	// LabelCreatedAt stores the RFC3339 timestamp of container creation.
	LabelCreatedAt = LabelPrefix + "created-at"
)

// ManagedByValue is the constant value for the LabelManagedBy label.
const ManagedByValue = "fmrepl"

// ContainerNamePrefix starts the name of every analysis container.
const ContainerNamePrefix = "fmrepl-"

// NewContainerName returns a unique, time-ordered container name such as
// "fmrepl-01hx3m9k2f8r6v0yqz5d7c4b1a".
func NewContainerName(now time.Time) (string, error) {
	entropy := ulid.Monotonic(rand.Reader, 0)
	id, err := ulid.New(ulid.Timestamp(now), entropy)
	if err != nil {
		return "", fmt.Errorf("failed to generate container name: %w", err)
	}
	return ContainerNamePrefix + strings.ToLower(id.String()), nil
}

// BuildLabels constructs the label map applied to an analysis container.
func BuildLabels(modelPath, operation string, createdAt time.Time) map[string]string {
	return map[string]string{
		LabelManagedBy: ManagedByValue,
		LabelModel:     modelPath,
		LabelOperation: operation,
		// UTC keeps the value stable regardless of the host timezone.
		LabelCreatedAt: createdAt.UTC().Format(time.RFC3339),
	}
}

// ParseLabels reconstructs the label-derived fields of an AnalysisContainer.
// It is the inverse of BuildLabels. ContainerID, ContainerName and Status
// come from the Docker API and are left empty.
//
// All missing required labels are reported together.
func ParseLabels(labels map[string]string) (model.AnalysisContainer, error) {
	requiredKeys := []string{
		LabelManagedBy,
		LabelModel,
		LabelOperation,
		LabelCreatedAt,
	}

	var missing []string
	for _, key := range requiredKeys {
		if _, ok := labels[key]; !ok {
			missing = append(missing, key)
		}
	}
	if len(missing) > 0 {
		return model.AnalysisContainer{}, fmt.Errorf("missing required Docker labels: %s", strings.Join(missing, ", "))
	}

	if labels[LabelManagedBy] != ManagedByValue {
		return model.AnalysisContainer{}, fmt.Errorf(
			"label %s has unexpected value %q (expected %q)",
			LabelManagedBy, labels[LabelManagedBy], ManagedByValue,
		)
	}

	createdAt, err := time.Parse(time.RFC3339, labels[LabelCreatedAt])
	if err != nil {
		return model.AnalysisContainer{}, fmt.Errorf("invalid label %s: %w", LabelCreatedAt, err)
	}

	return model.AnalysisContainer{
		ModelPath: labels[LabelModel],
		Operation: labels[LabelOperation],
		CreatedAt: createdAt,
	}, nil
}

// FilterLabels returns the label filter matching every fmrepl container.
func FilterLabels() map[string]string {
	return map[string]string{
		LabelManagedBy: ManagedByValue,
	}
}
