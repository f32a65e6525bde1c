// Package visualization renders quality-control snapshots of a segmentation
package visualization

import (
	"fmt"
	"image"
	"image/color"
	"image/png"
	"math"
	"os"

	"roiquant/internal/models"
	apperr "roiquant/pkg/errors"
)

// Viewer extracts colored 2D slices from a label volume
type Viewer struct {
	vol *models.LabelVolume
}

// NewViewer creates a viewer over vol
func NewViewer(vol *models.LabelVolume) *Viewer {
	return &Viewer{vol: vol}
}

// LabelColor returns the palette entry of a label. Background is black and
// every other label gets a fixed hue, so snapshots of different cases are
// comparable.
func LabelColor(label int) color.RGBA {
	if label <= 0 {
		return color.RGBA{A: 255}
	}
	// golden-angle hue steps keep neighbouring labels apart
	h := math.Mod(float64(label)*137.508, 360)
	s := 0.65 + 0.35*float64(label%3)/2
	v := 0.75 + 0.25*float64(label%2)
	r, g, b := hsvToRGB(h, s, v)
	return color.RGBA{R: r, G: g, B: b, A: 255}
}

func hsvToRGB(h, s, v float64) (uint8, uint8, uint8) {
	c := v * s
	x := c * (1 - math.Abs(math.Mod(h/60, 2)-1))
	m := v - c

	var r, g, b float64
	switch {
	case h < 60:
		r, g, b = c, x, 0
	case h < 120:
		r, g, b = x, c, 0
	case h < 180:
		r, g, b = 0, c, x
	case h < 240:
		r, g, b = 0, x, c
	case h < 300:
		r, g, b = x, 0, c
	default:
		r, g, b = c, 0, x
	}
	to8 := func(f float64) uint8 { return uint8(math.Round((f + m) * 255)) }
	return to8(r), to8(g), to8(b)
}

// Extent returns the number of slices along axis
func (v *Viewer) Extent(axis string) (int, error) {
	switch axis {
	case "x", "X":
		return v.vol.Width, nil
	case "y", "Y":
		return v.vol.Height, nil
	case "z", "Z":
		return v.vol.Depth, nil
	}
	return 0, apperr.Input("invalid axis: %s (must be x, y, or z)", axis)
}

// ExtractSlice renders the slice at position along axis
func (v *Viewer) ExtractSlice(axis string, position int) (*image.RGBA, error) {
	extent, err := v.Extent(axis)
	if err != nil {
		return nil, err
	}
	if position < 0 || position >= extent {
		return nil, apperr.Input("position %d outside [0, %d) along %s", position, extent, axis)
	}

	vol := v.vol
	var img *image.RGBA
	switch axis {
	case "x", "X":
		// YZ plane
		img = image.NewRGBA(image.Rect(0, 0, vol.Depth, vol.Height))
		for y := 0; y < vol.Height; y++ {
			for z := 0; z < vol.Depth; z++ {
				img.SetRGBA(z, y, LabelColor(int(vol.At(position, y, z))))
			}
		}
	case "y", "Y":
		// XZ plane
		img = image.NewRGBA(image.Rect(0, 0, vol.Width, vol.Depth))
		for z := 0; z < vol.Depth; z++ {
			for x := 0; x < vol.Width; x++ {
				img.SetRGBA(x, z, LabelColor(int(vol.At(x, position, z))))
			}
		}
	default:
		// XY (axial) plane
		img = image.NewRGBA(image.Rect(0, 0, vol.Width, vol.Height))
		for y := 0; y < vol.Height; y++ {
			for x := 0; x < vol.Width; x++ {
				img.SetRGBA(x, y, LabelColor(int(vol.At(x, y, position))))
			}
		}
	}
	return img, nil
}

// MiddleSlice renders the central slice along axis
func (v *Viewer) MiddleSlice(axis string) (*image.RGBA, error) {
	extent, err := v.Extent(axis)
	if err != nil {
		return nil, err
	}
	if extent == 0 {
		return nil, apperr.Input("volume is empty along %s", axis)
	}
	return v.ExtractSlice(axis, extent/2)
}

// SaveSlice writes img as PNG
func (v *Viewer) SaveSlice(img image.Image, filename string) error {
	file, err := os.Create(filename)
	if err != nil {
		return apperr.Wrap(err, apperr.KindIO, "create %s", filename)
	}
	defer file.Close()

	if err := png.Encode(file, img); err != nil {
		return apperr.Wrap(err, apperr.KindIO, "encode %s", filename)
	}
	return nil
}

// SaveAxialSnapshot writes the middle axial slice to filename
func (v *Viewer) SaveAxialSnapshot(filename string) error {
	img, err := v.MiddleSlice("z")
	if err != nil {
		return fmt.Errorf("axial snapshot: %w", err)
	}
	return v.SaveSlice(img, filename)
}
