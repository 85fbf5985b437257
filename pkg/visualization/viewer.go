// Package visualization exports 2D preview images from a stacked volume.
package visualization

import (
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"math"
	"os"
	"path/filepath"

	"dicomstack/internal/models"
)

// Viewer extracts axis-aligned 2D slices from a stacked volume and writes
// them out as JPEG previews
type Viewer struct {
	vol *models.Volume
}

// NewViewer creates a viewer over a stacked volume
func NewViewer(vol *models.Volume) *Viewer {
	return &Viewer{vol: vol}
}

// ExtractSlice extracts a 2D slice from the volume along the specified axis.
// The z axis is the stack axis: position z yields the z-th input slice.
func (v *Viewer) ExtractSlice(axis string, position int) (image.Image, error) {
	if position < 0 {
		return nil, fmt.Errorf("position must be non-negative")
	}

	vol := v.vol
	var img *image.Gray16

	switch axis {
	case "x", "X":
		// YZ plane
		if position >= vol.Width {
			return nil, fmt.Errorf("position %d exceeds width %d", position, vol.Width)
		}
		img = image.NewGray16(image.Rect(0, 0, vol.Depth, vol.Height))
		for y := 0; y < vol.Height; y++ {
			for z := 0; z < vol.Depth; z++ {
				img.SetGray16(z, y, v.voxelGray(z*vol.Width*vol.Height+y*vol.Width+position))
			}
		}

	case "y", "Y":
		// XZ plane
		if position >= vol.Height {
			return nil, fmt.Errorf("position %d exceeds height %d", position, vol.Height)
		}
		img = image.NewGray16(image.Rect(0, 0, vol.Width, vol.Depth))
		for z := 0; z < vol.Depth; z++ {
			for x := 0; x < vol.Width; x++ {
				img.SetGray16(x, z, v.voxelGray(z*vol.Width*vol.Height+position*vol.Width+x))
			}
		}

	case "z", "Z":
		// XY plane, one original input slice
		if position >= vol.Depth {
			return nil, fmt.Errorf("position %d exceeds depth %d", position, vol.Depth)
		}
		img = image.NewGray16(image.Rect(0, 0, vol.Width, vol.Height))
		for y := 0; y < vol.Height; y++ {
			for x := 0; x < vol.Width; x++ {
				img.SetGray16(x, y, v.voxelGray(position*vol.Width*vol.Height+y*vol.Width+x))
			}
		}

	default:
		return nil, fmt.Errorf("invalid axis: %s (must be x, y, or z)", axis)
	}

	return img, nil
}

// voxelGray maps a [0, 1] voxel intensity to a 16-bit gray value
func (v *Viewer) voxelGray(idx int) color.Gray16 {
	if idx < 0 || idx >= len(v.vol.Data) {
		return color.Gray16{}
	}
	value := uint16(math.Max(0, math.Min(65535, v.vol.Data[idx]*65535)))
	return color.Gray16{Y: value}
}

// SaveSlice saves an extracted slice as a JPEG image
func (v *Viewer) SaveSlice(img image.Image, filename string) error {
	file, err := os.Create(filename)
	if err != nil {
		return err
	}
	defer file.Close()

	return jpeg.Encode(file, img, &jpeg.Options{Quality: 90})
}

// SaveSliceSequence extracts and saves every slice along the specified axis
func (v *Viewer) SaveSliceSequence(axis string, outputDir string) error {
	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return err
	}

	var maxPos int
	switch axis {
	case "x", "X":
		maxPos = v.vol.Width
	case "y", "Y":
		maxPos = v.vol.Height
	case "z", "Z":
		maxPos = v.vol.Depth
	default:
		return fmt.Errorf("invalid axis: %s (must be x, y, or z)", axis)
	}

	for pos := 0; pos < maxPos; pos++ {
		img, err := v.ExtractSlice(axis, pos)
		if err != nil {
			return err
		}

		filename := filepath.Join(outputDir, fmt.Sprintf("slice_%s_%03d.jpg", axis, pos))
		if err := v.SaveSlice(img, filename); err != nil {
			return err
		}
	}

	return nil
}
