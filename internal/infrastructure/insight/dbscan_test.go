package insight

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDensityGroups(t *testing.T) {
	t.Parallel()

	// Two dense directions, one isolated point, and a pair too small to
	// count as a group.
	vectors := [][]float64{
		{1, 0}, {0.98, 0.2}, {0.95, 0.1}, {0.9, 0.15}, // group around (1,0)
		{0, 1}, {0.1, 0.99}, {0.05, 0.9}, // group around (0,1)
		{-1, 0.1},                    // isolated
		{0.5, -0.87}, {0.52, -0.85}, // pair below the size threshold
	}

	groups, noise := densityGroups(vectors)

	require.Len(t, groups, 2)
	assert.ElementsMatch(t, []int{0, 1, 2, 3}, groups[0])
	assert.ElementsMatch(t, []int{4, 5, 6}, groups[1])
	assert.ElementsMatch(t, []int{7, 8, 9}, noise)
}

func TestDensityGroupsAllNoise(t *testing.T) {
	t.Parallel()

	vectors := [][]float64{{1, 0, 0}, {0, 1, 0}, {0, 0, 1}}

	groups, noise := densityGroups(vectors)

	assert.Empty(t, groups)
	assert.ElementsMatch(t, []int{0, 1, 2}, noise)
}

func TestDensityGroupsEmptyInput(t *testing.T) {
	t.Parallel()

	groups, noise := densityGroups(nil)
	assert.Empty(t, groups)
	assert.Empty(t, noise)
}

func TestCosineDistance(t *testing.T) {
	t.Parallel()

	assert.InDelta(t, 0, cosineDistance([]float64{1, 2, 3}, []float64{1, 2, 3}), 1e-9)
	assert.InDelta(t, 1, cosineDistance([]float64{1, 0}, []float64{0, 1}), 1e-9)
	assert.InDelta(t, 2, cosineDistance([]float64{1, 0}, []float64{-1, 0}), 1e-9)
	assert.Equal(t, float64(1), cosineDistance([]float64{0, 0}, []float64{1, 1}))
	assert.Equal(t, float64(1), cosineDistance([]float64{1}, []float64{1, 2}))
	assert.Equal(t, float64(1), cosineDistance(nil, nil))
}
