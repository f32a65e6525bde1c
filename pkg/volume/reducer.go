// Package volume converts voxel grids into physical volumes.
package volume

import (
	"math"
	"sort"

	"roiquant/internal/models"
	apperr "roiquant/pkg/errors"
)

// Background is the label of voxels outside every region
const Background = 0

// RegionVolumeMap maps an integer region label to its physical volume
type RegionVolumeMap map[int]float64

// Labels returns the labels in ascending order
func (m RegionVolumeMap) Labels() []int {
	labels := make([]int, 0, len(m))
	for l := range m {
		labels = append(labels, l)
	}
	sort.Ints(labels)
	return labels
}

// Total sums the volume of every label, background included
func (m RegionVolumeMap) Total() float64 {
	total := 0.0
	for _, l := range m.Labels() {
		total += m[l]
	}
	return total
}

// Foreground returns a copy without the background entry
func (m RegionVolumeMap) Foreground() RegionVolumeMap {
	out := make(RegionVolumeMap, len(m))
	for l, v := range m {
		if l != Background {
			out[l] = v
		}
	}
	return out
}

// Reduce counts the voxels of every distinct label and multiplies by the
// voxel volume. Non-integer values are truncated toward zero. The result
// includes the background label when present.
func Reduce(vol *models.LabelVolume) (RegionVolumeMap, error) {
	if err := validate(vol); err != nil {
		return nil, err
	}

	counts := make(map[int]int)
	for i, v := range vol.Data {
		if math.IsNaN(v) || v < 0 {
			return nil, apperr.Input("invalid label %v at voxel %d", v, i)
		}
		counts[int(v)]++
	}

	voxvol := vol.VoxelSize.Volume()
	out := make(RegionVolumeMap, len(counts))
	for label, n := range counts {
		out[label] = float64(n) * voxvol
	}
	return out, nil
}

// MaskVolume returns the physical volume of the strictly positive voxels of
// a single-region mask
func MaskVolume(mask *models.LabelVolume) (float64, error) {
	if err := validate(mask); err != nil {
		return 0, err
	}

	n := 0
	for _, v := range mask.Data {
		if v > 0 {
			n++
		}
	}
	return float64(n) * mask.VoxelSize.Volume(), nil
}

func validate(vol *models.LabelVolume) error {
	if vol == nil || len(vol.Data) == 0 {
		return apperr.Input("empty label volume")
	}
	if len(vol.Data) != vol.Len() {
		return apperr.Input("voxel count %d does not match grid %s", len(vol.Data), vol)
	}
	if !vol.VoxelSize.Valid() {
		return apperr.Input("voxel spacing must be positive, got %v", vol.VoxelSize)
	}
	return nil
}
