package docker

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildLabels(t *testing.T) {
	createdAt := time.Date(2026, 2, 28, 10, 0, 0, 0, time.FixedZone("JST", 9*3600))

	labels := BuildLabels("/models/serde.uvl", "configurations_number", createdAt)

	assert.Equal(t, ManagedByValue, labels[LabelManagedBy])
	assert.Equal(t, "/models/serde.uvl", labels[LabelModel])
	assert.Equal(t, "configurations_number", labels[LabelOperation])
	assert.Equal(t, "2026-02-28T01:00:00Z", labels[LabelCreatedAt], "timestamp should be stored in UTC")
	assert.Len(t, labels, 4)
}

func TestParseLabels_RoundTrip(t *testing.T) {
	createdAt := time.Date(2026, 3, 1, 12, 30, 0, 0, time.UTC)
	labels := BuildLabels("/m/a.uvl", "estimated_number_of_configurations", createdAt)

	info, err := ParseLabels(labels)

	require.NoError(t, err)
	assert.Equal(t, "/m/a.uvl", info.ModelPath)
	assert.Equal(t, "estimated_number_of_configurations", info.Operation)
	assert.True(t, info.CreatedAt.Equal(createdAt))
	assert.Empty(t, info.ContainerID)
}

func TestParseLabels_Errors(t *testing.T) {
	tests := []struct {
		name    string
		labels  map[string]string
		wantErr string
	}{
		{
			name:    "all missing",
			labels:  map[string]string{},
			wantErr: "fmrepl.managed-by, fmrepl.model, fmrepl.operation, fmrepl.created-at",
		},
		{
			name: "foreign manager",
			labels: map[string]string{
				LabelManagedBy: "someone-else", LabelModel: "m", LabelOperation: "o",
				LabelCreatedAt: "2026-01-01T00:00:00Z",
			},
			wantErr: "unexpected value",
		},
		{
			name: "bad timestamp",
			labels: map[string]string{
				LabelManagedBy: ManagedByValue, LabelModel: "m", LabelOperation: "o",
				LabelCreatedAt: "yesterday",
			},
			wantErr: LabelCreatedAt,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseLabels(tt.labels)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestFilterLabels(t *testing.T) {
	assert.Equal(t, map[string]string{"fmrepl.managed-by": "fmrepl"}, FilterLabels())
}

func TestNewContainerName(t *testing.T) {
	now := time.Date(2026, 2, 28, 10, 0, 0, 0, time.UTC)

	a, err := NewContainerName(now)
	require.NoError(t, err)
	b, err := NewContainerName(now.Add(time.Millisecond))
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(a, ContainerNamePrefix))
	assert.Len(t, a, len(ContainerNamePrefix)+26)
	assert.Equal(t, strings.ToLower(a), a, "docker names are lowercase")
	assert.Less(t, a, b, "names sort by creation time")
}
