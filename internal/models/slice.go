package models

import (
	"gonum.org/v1/gonum/spatial/r3"
)

// SliceGeometry describes the spatial placement of a single 2D image plane
// in patient/world coordinate space
type SliceGeometry struct {
	// ID is the slice identifier, unique within a scanned set.
	// For DICOM sources this is the SOPInstanceUID.
	ID string

	// SourcePath is the file the geometry was read from, if any
	SourcePath string

	// Position is the plane origin in patient space, in mm
	Position r3.Vec

	// RowAxis and ColAxis are the in-plane row and column directions.
	// They come from the 6-component orientation vector: the first three
	// components form the row axis, the last three the column axis.
	RowAxis r3.Vec
	ColAxis r3.Vec

	// HasPlaneGeometry reports whether both a full 3-component position
	// and a full 6-component orientation were present at the source.
	// Slices without it are excluded from orientation grouping.
	HasPlaneGeometry bool

	// PixelSpacing is the physical in-plane spacing in mm (row, col)
	PixelSpacing [2]float64

	// SliceThickness is the physical thickness of the slice in mm
	SliceThickness float64
}

// Volume represents a 3D intensity volume stacked from ordered 2D slices
type Volume struct {
	// Data is the 3D volume data as a 1D array, slice-major then row-major:
	// index = z*Width*Height + y*Width + x
	Data []float64

	// Width is the width of the volume in voxels
	Width int

	// Height is the height of the volume in voxels
	Height int

	// Depth is the number of stacked slices
	Depth int

	// VoxelSize is the physical size of each voxel in mm
	VoxelSize struct {
		X, Y, Z float64
	}
}
