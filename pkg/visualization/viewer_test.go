package visualization

import (
	"fmt"
	"image/color"
	"os"
	"path/filepath"
	"testing"

	"dicomstack/internal/models"
)

// buildTestVolume creates a volume whose voxel intensity encodes its
// z index, so extracted slices can be verified by value
func buildTestVolume(width, height, depth int) *models.Volume {
	vol := &models.Volume{
		Data:   make([]float64, width*height*depth),
		Width:  width,
		Height: height,
		Depth:  depth,
	}
	for z := 0; z < depth; z++ {
		value := float64(z) / float64(depth-1)
		for i := 0; i < width*height; i++ {
			vol.Data[z*width*height+i] = value
		}
	}
	return vol
}

func TestExtractSliceZ(t *testing.T) {
	vol := buildTestVolume(6, 4, 5)
	viewer := NewViewer(vol)

	for z := 0; z < vol.Depth; z++ {
		img, err := viewer.ExtractSlice("z", z)
		if err != nil {
			t.Fatalf("ExtractSlice(z, %d) failed: %v", z, err)
		}

		bounds := img.Bounds()
		if bounds.Dx() != vol.Width || bounds.Dy() != vol.Height {
			t.Fatalf("slice %d: expected %dx%d image, got %dx%d",
				z, vol.Width, vol.Height, bounds.Dx(), bounds.Dy())
		}

		expected := uint16(float64(z) / float64(vol.Depth-1) * 65535)
		got := img.At(2, 2).(color.Gray16).Y
		diff := int(got) - int(expected)
		if diff < -1 || diff > 1 {
			t.Errorf("slice %d: expected gray %d, got %d", z, expected, got)
		}
	}
}

func TestExtractSliceXY(t *testing.T) {
	vol := buildTestVolume(6, 4, 5)
	viewer := NewViewer(vol)

	// An x-axis slice spans depth x height; each column z holds that
	// slab's value.
	img, err := viewer.ExtractSlice("x", 3)
	if err != nil {
		t.Fatalf("ExtractSlice(x, 3) failed: %v", err)
	}
	bounds := img.Bounds()
	if bounds.Dx() != vol.Depth || bounds.Dy() != vol.Height {
		t.Fatalf("expected %dx%d image, got %dx%d", vol.Depth, vol.Height, bounds.Dx(), bounds.Dy())
	}
	for z := 0; z < vol.Depth; z++ {
		expected := uint16(float64(z) / float64(vol.Depth-1) * 65535)
		got := img.At(z, 1).(color.Gray16).Y
		diff := int(got) - int(expected)
		if diff < -1 || diff > 1 {
			t.Errorf("x slice, column %d: expected gray %d, got %d", z, expected, got)
		}
	}

	// A y-axis slice spans width x depth; each row z holds that slab's value.
	img, err = viewer.ExtractSlice("y", 2)
	if err != nil {
		t.Fatalf("ExtractSlice(y, 2) failed: %v", err)
	}
	bounds = img.Bounds()
	if bounds.Dx() != vol.Width || bounds.Dy() != vol.Depth {
		t.Fatalf("expected %dx%d image, got %dx%d", vol.Width, vol.Depth, bounds.Dx(), bounds.Dy())
	}
	for z := 0; z < vol.Depth; z++ {
		expected := uint16(float64(z) / float64(vol.Depth-1) * 65535)
		got := img.At(1, z).(color.Gray16).Y
		diff := int(got) - int(expected)
		if diff < -1 || diff > 1 {
			t.Errorf("y slice, row %d: expected gray %d, got %d", z, expected, got)
		}
	}
}

func TestExtractSliceErrors(t *testing.T) {
	viewer := NewViewer(buildTestVolume(4, 4, 3))

	testCases := []struct {
		name     string
		axis     string
		position int
	}{
		{"negative position", "z", -1},
		{"position beyond depth", "z", 3},
		{"position beyond width", "x", 4},
		{"position beyond height", "y", 4},
		{"invalid axis", "w", 0},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := viewer.ExtractSlice(tc.axis, tc.position); err == nil {
				t.Errorf("expected error for axis %q position %d", tc.axis, tc.position)
			}
		})
	}
}

func TestSaveSliceSequence(t *testing.T) {
	vol := buildTestVolume(4, 4, 3)
	viewer := NewViewer(vol)
	dir := t.TempDir()

	expectedCounts := map[string]int{
		"x": vol.Width,
		"y": vol.Height,
		"z": vol.Depth,
	}

	for axis, want := range expectedCounts {
		axisDir := filepath.Join(dir, axis)
		if err := viewer.SaveSliceSequence(axis, axisDir); err != nil {
			t.Fatalf("SaveSliceSequence(%s) failed: %v", axis, err)
		}

		entries, err := os.ReadDir(axisDir)
		if err != nil {
			t.Fatalf("failed to read %s: %v", axisDir, err)
		}
		if len(entries) != want {
			t.Errorf("axis %s: expected %d files, got %d", axis, want, len(entries))
		}

		// Filenames follow slice_<axis>_NNN.jpg
		first := filepath.Join(axisDir, fmt.Sprintf("slice_%s_000.jpg", axis))
		if _, err := os.Stat(first); err != nil {
			t.Errorf("axis %s: missing first slice file: %v", axis, err)
		}
	}
}

func TestSaveSliceSequenceInvalidAxis(t *testing.T) {
	viewer := NewViewer(buildTestVolume(2, 2, 2))
	if err := viewer.SaveSliceSequence("q", t.TempDir()); err == nil {
		t.Error("expected error for invalid axis")
	}
}
