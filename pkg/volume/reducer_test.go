package volume

import (
	"errors"
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"roiquant/internal/models"
	apperr "roiquant/pkg/errors"
)

func TestReduce_TwoLabels(t *testing.T) {
	// 100 voxels of label 1, 50 of label 2, 10 background
	vol := models.NewLabelVolume(160, 1, 1, models.VoxelSize{X: 1, Y: 1, Z: 1})
	for i := 0; i < 100; i++ {
		vol.Data[i] = 1
	}
	for i := 100; i < 150; i++ {
		vol.Data[i] = 2
	}

	got, err := Reduce(vol)
	require.NoError(t, err)
	assert.Equal(t, RegionVolumeMap{0: 10, 1: 100, 2: 50}, got)
	assert.Equal(t, []int{0, 1, 2}, got.Labels())
	assert.Equal(t, RegionVolumeMap{1: 100, 2: 50}, got.Foreground())
}

func TestReduce_ConservesMaskVolume(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	for trial := 0; trial < 20; trial++ {
		size := models.VoxelSize{X: 0.5 + rng.Float64(), Y: 0.5 + rng.Float64(), Z: 0.5 + rng.Float64()}
		vol := models.NewLabelVolume(8, 7, 6, size)
		for i := range vol.Data {
			vol.Data[i] = float64(rng.Intn(5))
		}

		regions, err := Reduce(vol)
		require.NoError(t, err)
		masked, err := MaskVolume(vol)
		require.NoError(t, err)

		assert.InDelta(t, masked, regions.Foreground().Total(), 1e-9)
		assert.InDelta(t, float64(vol.Len())*size.Volume(), regions.Total(), 1e-9)
	}
}

func TestReduce_TruncatesFractionalLabels(t *testing.T) {
	vol := models.NewLabelVolume(3, 1, 1, models.VoxelSize{X: 2, Y: 1, Z: 1})
	copy(vol.Data, []float64{4.0, 4.9, 0})

	got, err := Reduce(vol)
	require.NoError(t, err)
	assert.Equal(t, RegionVolumeMap{0: 2, 4: 4}, got)
}

func TestReduce_InputErrors(t *testing.T) {
	cases := map[string]*models.LabelVolume{
		"nil":      nil,
		"empty":    {},
		"spacing":  models.NewLabelVolume(2, 2, 2, models.VoxelSize{X: 1, Y: 0, Z: 1}),
		"negative": {Data: []float64{-1}, Width: 1, Height: 1, Depth: 1, VoxelSize: models.VoxelSize{X: 1, Y: 1, Z: 1}},
		"nan":      {Data: []float64{math.NaN()}, Width: 1, Height: 1, Depth: 1, VoxelSize: models.VoxelSize{X: 1, Y: 1, Z: 1}},
		"mismatch": {Data: []float64{1, 2}, Width: 1, Height: 1, Depth: 1, VoxelSize: models.VoxelSize{X: 1, Y: 1, Z: 1}},
	}
	for name, vol := range cases {
		_, err := Reduce(vol)
		assert.True(t, errors.Is(err, apperr.ErrInput), name)
	}
}

func TestMaskVolume(t *testing.T) {
	mask := models.NewLabelVolume(2, 2, 2, models.VoxelSize{X: 1, Y: 2, Z: 3})
	copy(mask.Data, []float64{0, 1, 1, 0.2, 0, -1, 0, 1})

	v, err := MaskVolume(mask)
	require.NoError(t, err)
	assert.Equal(t, 24.0, v)

	_, err = MaskVolume(models.NewLabelVolume(1, 1, 1, models.VoxelSize{X: -1, Y: 1, Z: 1}))
	assert.True(t, errors.Is(err, apperr.ErrInput))
}
