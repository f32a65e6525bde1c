package nifti

import (
	"bytes"
	"encoding/binary"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"roiquant/internal/models"
	apperr "roiquant/pkg/errors"
)

func testVolume() *models.LabelVolume {
	vol := models.NewLabelVolume(4, 3, 2, models.VoxelSize{X: 1, Y: 1.5, Z: 2})
	for i := range vol.Data {
		vol.Data[i] = float64(i % 7)
	}
	return vol
}

func TestWriteReadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	for _, tc := range []struct {
		name string
		dt   DataType
	}{
		{"labels.nii", Uint8},
		{"labels16.nii.gz", Int16},
		{"labels32.nii", Int32},
		{"mask.nii.gz", Float32},
		{"mask64.nii", Float64},
	} {
		t.Run(tc.name, func(t *testing.T) {
			path := filepath.Join(dir, tc.name)
			want := testVolume()
			require.NoError(t, WriteFile(path, want, tc.dt))

			got, err := ReadFile(path)
			require.NoError(t, err)
			assert.Equal(t, want.Width, got.Width)
			assert.Equal(t, want.Height, got.Height)
			assert.Equal(t, want.Depth, got.Depth)
			assert.InDelta(t, 1.5, got.VoxelSize.Y, 1e-6)
			assert.InDelta(t, 3.0, got.VoxelSize.Volume(), 1e-6)
			assert.Equal(t, want.Data, got.Data)
		})
	}
}

func TestReadFile_RejectsNonImage(t *testing.T) {
	path := filepath.Join(t.TempDir(), "notes.nii")
	require.NoError(t, os.WriteFile(path, []byte("short"), 0644))

	_, err := ReadFile(path)
	require.Error(t, err)
	assert.Equal(t, apperr.KindInput, apperr.KindOf(err))
}

func TestReadFile_RejectsTimeSeries(t *testing.T) {
	var buf bytes.Buffer
	vol := testVolume()
	require.NoError(t, Write(&buf, vol, Uint8))

	// dim[0] = 4, dim[4] = 2, with a second frame of voxels appended
	raw := append(buf.Bytes(), make([]byte, vol.Len())...)
	binary.LittleEndian.PutUint16(raw[40:], 4)
	binary.LittleEndian.PutUint16(raw[48:], 2)
	path := filepath.Join(t.TempDir(), "series.nii")
	require.NoError(t, os.WriteFile(path, raw, 0644))

	_, err := ReadFile(path)
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperr.ErrInput))
}

func TestReadFile_Missing(t *testing.T) {
	_, err := ReadFile(filepath.Join(t.TempDir(), "nope.nii.gz"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, os.ErrNotExist))
	assert.Equal(t, apperr.KindInput, apperr.KindOf(err))
}
