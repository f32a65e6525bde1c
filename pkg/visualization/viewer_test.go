package visualization

import (
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"roiquant/internal/models"
)

// slabVolume labels every axial slice z with z+1, except a background border column
func slabVolume(width, height, depth int) *models.LabelVolume {
	vol := models.NewLabelVolume(width, height, depth, models.VoxelSize{X: 1, Y: 1, Z: 1})
	for z := 0; z < depth; z++ {
		for y := 0; y < height; y++ {
			for x := 1; x < width; x++ {
				vol.Set(x, y, z, float64(z+1))
			}
		}
	}
	return vol
}

func TestLabelColor(t *testing.T) {
	bg := LabelColor(0)
	if bg.R != 0 || bg.G != 0 || bg.B != 0 || bg.A != 255 {
		t.Errorf("Expected opaque black background, got %v", bg)
	}

	if LabelColor(47) != LabelColor(47) {
		t.Error("Palette must be deterministic")
	}

	seen := map[[3]uint8]int{}
	for label := 1; label <= 20; label++ {
		c := LabelColor(label)
		key := [3]uint8{c.R, c.G, c.B}
		if prev, ok := seen[key]; ok {
			t.Errorf("Labels %d and %d share color %v", prev, label, c)
		}
		seen[key] = label
	}
}

func TestExtractSlice(t *testing.T) {
	width, height, depth := 6, 4, 5
	viewer := NewViewer(slabVolume(width, height, depth))

	for z := 0; z < depth; z++ {
		img, err := viewer.ExtractSlice("z", z)
		if err != nil {
			t.Fatalf("Failed to extract Z slice at position %d: %v", z, err)
		}
		if b := img.Bounds(); b.Dx() != width || b.Dy() != height {
			t.Errorf("Expected %dx%d slice, got %dx%d", width, height, b.Dx(), b.Dy())
		}
		if got := img.RGBAAt(2, 1); got != LabelColor(z+1) {
			t.Errorf("Slice %d: expected label color %v, got %v", z, LabelColor(z+1), got)
		}
		if got := img.RGBAAt(0, 1); got != LabelColor(0) {
			t.Errorf("Slice %d: expected background at x=0, got %v", z, got)
		}
	}

	img, err := viewer.ExtractSlice("x", 3)
	if err != nil {
		t.Fatalf("Failed to extract X slice: %v", err)
	}
	if b := img.Bounds(); b.Dx() != depth || b.Dy() != height {
		t.Errorf("Expected %dx%d YZ slice, got %dx%d", depth, height, b.Dx(), b.Dy())
	}

	img, err = viewer.ExtractSlice("y", 0)
	if err != nil {
		t.Fatalf("Failed to extract Y slice: %v", err)
	}
	if b := img.Bounds(); b.Dx() != width || b.Dy() != depth {
		t.Errorf("Expected %dx%d XZ slice, got %dx%d", width, depth, b.Dx(), b.Dy())
	}
}

func TestExtractSlice_Invalid(t *testing.T) {
	viewer := NewViewer(slabVolume(4, 4, 4))

	if _, err := viewer.ExtractSlice("w", 0); err == nil {
		t.Error("Expected error for invalid axis")
	}
	if _, err := viewer.ExtractSlice("z", 4); err == nil {
		t.Error("Expected error for position beyond depth")
	}
	if _, err := viewer.ExtractSlice("z", -1); err == nil {
		t.Error("Expected error for negative position")
	}
}

func TestSaveAxialSnapshot(t *testing.T) {
	viewer := NewViewer(slabVolume(8, 6, 5))
	filename := filepath.Join(t.TempDir(), "qc.png")

	if err := viewer.SaveAxialSnapshot(filename); err != nil {
		t.Fatalf("Failed to save snapshot: %v", err)
	}

	f, err := os.Open(filename)
	if err != nil {
		t.Fatalf("Snapshot not written: %v", err)
	}
	defer f.Close()

	img, err := png.Decode(f)
	if err != nil {
		t.Fatalf("Snapshot is not a PNG: %v", err)
	}
	if b := img.Bounds(); b.Dx() != 8 || b.Dy() != 6 {
		t.Errorf("Expected 8x6 snapshot, got %dx%d", b.Dx(), b.Dy())
	}

	// middle slice of depth 5 is z=2, label 3
	r, g, b, _ := img.At(4, 3).RGBA()
	want := LabelColor(3)
	if uint8(r>>8) != want.R || uint8(g>>8) != want.G || uint8(b>>8) != want.B {
		t.Errorf("Expected middle slice color %v", want)
	}
}
