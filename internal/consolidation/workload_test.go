package consolidation

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestClassifyWorkloadBoundaries(t *testing.T) {
	require.Equal(t, WorkloadMicro, ClassifyWorkload(1, 100))
	require.Equal(t, WorkloadLight, ClassifyWorkload(4, 1000))
	require.Equal(t, WorkloadMedium, ClassifyWorkload(8, 1000))
	require.Equal(t, WorkloadHeavy, ClassifyWorkload(100, 4000))
}

func TestWorkloadBaseIntervalOrdering(t *testing.T) {
	require.Less(t, WorkloadMicro.BaseInterval(), WorkloadLight.BaseInterval())
	require.Less(t, WorkloadLight.BaseInterval(), WorkloadMedium.BaseInterval())
	require.Less(t, WorkloadMedium.BaseInterval(), WorkloadHeavy.BaseInterval())
}
