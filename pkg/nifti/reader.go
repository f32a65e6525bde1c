// Package nifti loads NIfTI-1 images (.nii and .nii.gz) holding 3D
// segmentation volumes and binary masks, and writes small images of the
// same kind.
package nifti

import (
	"os"

	"github.com/okieraised/gonii"

	"roiquant/internal/models"
	apperr "roiquant/pkg/errors"
)

// ReadFile loads a 3D NIfTI-1 volume from disk. Decoding, byte order and
// scl_slope/scl_inter are handled by gonii; the result is copied into a
// LabelVolume in x-fastest order.
func ReadFile(path string) (*models.LabelVolume, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, apperr.Wrap(err, apperr.KindInput, "failed to open image %s", path)
	}

	rd, err := gonii.NewNiiReader(gonii.WithReadImageFile(path))
	if err != nil {
		return nil, apperr.Wrap(err, apperr.KindInput, "failed to open image %s", path)
	}
	if err := rd.Parse(); err != nil {
		return nil, apperr.Wrap(err, apperr.KindInput, "failed to read image %s", path)
	}
	img := rd.GetNiiData()
	if img == nil {
		return nil, apperr.Input("failed to read image %s: no image data", path)
	}

	shape := img.GetImgShape()
	if shape[3] > 1 {
		return nil, apperr.Input("failed to read image %s: expected a 3D volume, got %d frames", path, shape[3])
	}
	width, height, depth := int(shape[0]), int(shape[1]), int(shape[2])
	if width <= 0 || height <= 0 || depth <= 0 {
		return nil, apperr.Input("failed to read image %s: invalid dimensions %dx%dx%d", path, width, height, depth)
	}

	pix := img.GetVoxelSize()
	vol := models.NewLabelVolume(width, height, depth, models.VoxelSize{X: pix[0], Y: pix[1], Z: pix[2]})
	for z := 0; z < depth; z++ {
		for y := 0; y < height; y++ {
			for x := 0; x < width; x++ {
				vol.Set(x, y, z, img.GetAt(int64(x), int64(y), int64(z), 0))
			}
		}
	}
	return vol, nil
}
