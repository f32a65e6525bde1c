package models

import "fmt"

// LabelVolume represents a 3D voxel grid loaded from a segmentation or a
// binary mask. Values are kept as float64 exactly as stored in the image
// (after any intensity scaling), the same way the reconstruction volume did.
type LabelVolume struct {
	// Data is the voxel data as a 1D array, x varying fastest:
	// idx = z*Width*Height + y*Width + x
	Data []float64

	// Width, Height, Depth are the grid dimensions in voxels
	Width, Height, Depth int

	// VoxelSize is the physical edge length of each voxel in mm
	VoxelSize VoxelSize
}

// VoxelSize holds the three voxel edge lengths
type VoxelSize struct {
	X, Y, Z float64
}

// Volume returns the physical volume of a single voxel
func (s VoxelSize) Volume() float64 {
	return s.X * s.Y * s.Z
}

// Valid reports whether every spacing component is strictly positive
func (s VoxelSize) Valid() bool {
	return s.X > 0 && s.Y > 0 && s.Z > 0
}

// NewLabelVolume allocates a zero-filled volume of the given dimensions
func NewLabelVolume(width, height, depth int, size VoxelSize) *LabelVolume {
	return &LabelVolume{
		Data:      make([]float64, width*height*depth),
		Width:     width,
		Height:    height,
		Depth:     depth,
		VoxelSize: size,
	}
}

// Len returns the number of voxels in the grid
func (v *LabelVolume) Len() int {
	return v.Width * v.Height * v.Depth
}

// Index converts grid coordinates to a position in Data
func (v *LabelVolume) Index(x, y, z int) int {
	return z*v.Width*v.Height + y*v.Width + x
}

// At returns the value stored at (x, y, z)
func (v *LabelVolume) At(x, y, z int) float64 {
	return v.Data[v.Index(x, y, z)]
}

// Set stores a value at (x, y, z)
func (v *LabelVolume) Set(x, y, z int, value float64) {
	v.Data[v.Index(x, y, z)] = value
}

// String describes the grid geometry
func (v *LabelVolume) String() string {
	return fmt.Sprintf("%dx%dx%d @ %.3gx%.3gx%.3g mm", v.Width, v.Height, v.Depth,
		v.VoxelSize.X, v.VoxelSize.Y, v.VoxelSize.Z)
}
