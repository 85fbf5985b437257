// Package volume stacks an ordered coherent slice set into a 3D intensity
// volume and derives physical spacing along the stack axis.
package volume

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/spatial/r3"
	"gonum.org/v1/gonum/stat"

	"dicomstack/internal/models"
)

// DefaultSpacingTolerance is the relative deviation from the mean gap above
// which inter-slice spacing is reported as non-uniform.
const DefaultSpacingTolerance = 0.05

// PlaneReader supplies the per-slice data a Builder needs: the geometry
// record and the decoded intensity plane.
type PlaneReader interface {
	Geometry(id string) (models.SliceGeometry, bool)
	ReadIntensityPlane(id string) ([]float64, int, int, error)
}

// SpacingReport describes the gaps between consecutive slices measured
// along the unit stack normal.
type SpacingReport struct {
	// Gaps holds the signed distance between each consecutive pair, in mm
	Gaps []float64

	// Mean is the average gap; it becomes the voxel depth
	Mean float64

	// MaxDeviation is the largest absolute deviation of any gap from Mean
	MaxDeviation float64

	// Uniform is true when every gap stays within the spacing tolerance
	// of the mean, relative to the mean
	Uniform bool
}

// Builder stacks ordered slices into a models.Volume
type Builder struct {
	reader PlaneReader

	// DefaultSpacing is the voxel depth in mm used when a gap cannot be
	// derived (fewer than two slices, or zero mean gap)
	DefaultSpacing float64

	// SpacingTolerance is the relative deviation allowed before spacing
	// is flagged non-uniform
	SpacingTolerance float64
}

// NewBuilder creates a builder over the given plane reader
func NewBuilder(reader PlaneReader) *Builder {
	return &Builder{
		reader:           reader,
		DefaultSpacing:   1.0,
		SpacingTolerance: DefaultSpacingTolerance,
	}
}

// Stack reads the intensity plane of every slice in orderedIDs and stacks
// them, in order, into a single volume. The ids must already be ordered
// along normal (the slice selector's output). All planes must share the
// same dimensions; a mismatch is an error, unlike the selector's structured
// failures.
func (b *Builder) Stack(orderedIDs []string, normal r3.Vec) (*models.Volume, SpacingReport, error) {
	if len(orderedIDs) == 0 {
		return nil, SpacingReport{}, fmt.Errorf("no slices to stack")
	}

	geoms := make([]models.SliceGeometry, len(orderedIDs))
	for i, id := range orderedIDs {
		geom, ok := b.reader.Geometry(id)
		if !ok {
			return nil, SpacingReport{}, fmt.Errorf("unknown slice id %q", id)
		}
		geoms[i] = geom
	}

	report := b.MeasureSpacing(geoms, normal)

	vol := &models.Volume{Depth: len(orderedIDs)}
	for z, id := range orderedIDs {
		plane, width, height, err := b.reader.ReadIntensityPlane(id)
		if err != nil {
			return nil, report, fmt.Errorf("failed to read slice %q: %w", id, err)
		}
		if z == 0 {
			vol.Width = width
			vol.Height = height
			vol.Data = make([]float64, width*height*len(orderedIDs))
		} else if width != vol.Width || height != vol.Height {
			return nil, report, fmt.Errorf("slice %q is %dx%d, expected %dx%d",
				id, width, height, vol.Width, vol.Height)
		}
		copy(vol.Data[z*vol.Width*vol.Height:], plane)
	}

	// In-plane voxel size comes from the first slice carrying pixel
	// spacing; depth from the measured gap.
	vol.VoxelSize.X = 1.0
	vol.VoxelSize.Y = 1.0
	for _, geom := range geoms {
		if geom.PixelSpacing[0] > 0 && geom.PixelSpacing[1] > 0 {
			vol.VoxelSize.Y = geom.PixelSpacing[0]
			vol.VoxelSize.X = geom.PixelSpacing[1]
			break
		}
	}
	vol.VoxelSize.Z = report.Mean
	if vol.VoxelSize.Z <= 0 {
		vol.VoxelSize.Z = b.DefaultSpacing
	}

	return vol, report, nil
}

// MeasureSpacing computes the gaps between consecutive slices projected on
// the unit-normalized stack normal. With fewer than two slices the report
// is empty and Uniform is true.
func (b *Builder) MeasureSpacing(slices []models.SliceGeometry, normal r3.Vec) SpacingReport {
	report := SpacingReport{Uniform: true}
	if len(slices) < 2 || r3.Norm(normal) == 0 {
		return report
	}

	unit := r3.Unit(normal)
	report.Gaps = make([]float64, len(slices)-1)
	sum := 0.0
	for i := 1; i < len(slices); i++ {
		gap := r3.Dot(slices[i].Position, unit) - r3.Dot(slices[i-1].Position, unit)
		report.Gaps[i-1] = gap
		sum += gap
	}
	report.Mean = sum / float64(len(report.Gaps))

	for _, gap := range report.Gaps {
		dev := math.Abs(gap - report.Mean)
		if dev > report.MaxDeviation {
			report.MaxDeviation = dev
		}
	}
	tolerance := b.SpacingTolerance * math.Abs(report.Mean)
	if report.MaxDeviation > tolerance {
		report.Uniform = false
	}
	return report
}

// IntensityStats summarizes the voxel intensity distribution of a volume
type IntensityStats struct {
	Mean    float64
	StdDev  float64
	Min     float64
	Max     float64
	Entropy float64
}

// Stats computes intensity statistics over the whole volume. Entropy is
// measured over a 256-bin histogram of the [0, 1] intensity range, in bits.
func Stats(vol *models.Volume) IntensityStats {
	if vol == nil || len(vol.Data) == 0 {
		return IntensityStats{}
	}

	stats := IntensityStats{
		Mean:   stat.Mean(vol.Data, nil),
		StdDev: stat.StdDev(vol.Data, nil),
		Min:    vol.Data[0],
		Max:    vol.Data[0],
	}
	if len(vol.Data) < 2 {
		stats.StdDev = 0
	}

	hist := make([]float64, 256)
	for _, v := range vol.Data {
		if v < stats.Min {
			stats.Min = v
		}
		if v > stats.Max {
			stats.Max = v
		}
		bin := int(v * 255)
		if bin < 0 {
			bin = 0
		} else if bin > 255 {
			bin = 255
		}
		hist[bin]++
	}

	total := float64(len(vol.Data))
	for i := range hist {
		hist[i] /= total
	}
	// stat.Entropy uses natural log; report bits to match the usual
	// image-entropy convention.
	stats.Entropy = stat.Entropy(hist) / math.Ln2
	return stats
}
