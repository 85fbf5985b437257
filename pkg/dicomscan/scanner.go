// Package dicomscan indexes DICOM files on disk and resolves slice plane
// metadata for orientation grouping. Parsing happens in fixed-size concurrent
// batches; once a scan completes, lookups are synchronous against an
// in-memory cache.
package dicomscan

import (
	"fmt"
	"io/fs"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"
	"github.com/suyashkumar/dicom"
	"github.com/suyashkumar/dicom/pkg/tag"
	"gonum.org/v1/gonum/spatial/r3"

	"dicomstack/internal/models"
	"dicomstack/pkg/mpr"
)

var (
	logOnce sync.Once
	log     *logrus.Logger
)

// logger performs the one-time process-wide logging setup
func logger() *logrus.Logger {
	logOnce.Do(func() {
		log = logrus.New()
		log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	})
	return log
}

// Options controls how a Scanner reads metadata from disk
type Options struct {
	// BatchSize is the number of files parsed per batch. Each batch is
	// awaited independently before the next one starts.
	BatchSize int

	// Workers bounds the number of files parsed concurrently within a batch
	Workers int
}

// Scanner reads plane geometry from DICOM headers and serves it to the
// slice selector. Safe for concurrent lookups after a scan completes.
type Scanner struct {
	batchSize int
	workers   int

	mu   sync.Mutex
	byID map[string]models.SliceGeometry
}

// NewScanner creates a scanner. Zero or negative option fields fall back to
// defaults (batch size 32, one worker per CPU).
func NewScanner(opts *Options) *Scanner {
	s := &Scanner{
		batchSize: 32,
		workers:   runtime.NumCPU(),
		byID:      make(map[string]models.SliceGeometry),
	}
	if opts != nil {
		if opts.BatchSize > 0 {
			s.batchSize = opts.BatchSize
		}
		if opts.Workers > 0 {
			s.workers = opts.Workers
		}
	}
	return s
}

// ScanDirectory walks dir recursively, parses every regular file as a DICOM
// header and indexes the plane geometry it finds. It returns the discovered
// slice identifiers in path order. Files that fail to parse are logged and
// skipped; they never abort the scan. Files that parse but lack position or
// orientation are still indexed so the selector can count and reject them.
func (s *Scanner) ScanDirectory(dir string) ([]string, error) {
	var paths []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			paths = append(paths, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("error walking %s: %w", dir, err)
	}

	// results is indexed by path position so batch workers never contend
	// over ordering; skipped files leave an empty slot.
	results := make([]string, len(paths))
	for start := 0; start < len(paths); start += s.batchSize {
		end := start + s.batchSize
		if end > len(paths) {
			end = len(paths)
		}
		s.scanBatch(paths[start:end], results[start:end])
	}

	ids := make([]string, 0, len(paths))
	for _, id := range results {
		if id != "" {
			ids = append(ids, id)
		}
	}
	logger().WithFields(logrus.Fields{
		"dir":     dir,
		"files":   len(paths),
		"indexed": len(ids),
	}).Info("directory scan complete")
	return ids, nil
}

// scanBatch parses one batch of files and waits for all of them
func (s *Scanner) scanBatch(paths []string, results []string) {
	sem := make(chan struct{}, s.workers)
	var wg sync.WaitGroup
	for i, path := range paths {
		wg.Add(1)
		sem <- struct{}{}
		go func(idx int, path string) {
			defer wg.Done()
			defer func() { <-sem }()

			geom, err := readGeometry(path)
			if err != nil {
				logger().WithField("path", path).WithError(err).Debug("skipping unreadable file")
				return
			}
			s.mu.Lock()
			s.byID[geom.ID] = geom
			s.mu.Unlock()
			results[idx] = geom.ID
		}(i, path)
	}
	wg.Wait()
}

// PlaneMetadata implements mpr.MetadataSource. It reports false for unknown
// identifiers and for slices indexed without complete plane geometry.
func (s *Scanner) PlaneMetadata(id string) (mpr.PlaneMetadata, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	geom, ok := s.byID[id]
	if !ok || !geom.HasPlaneGeometry {
		return mpr.PlaneMetadata{}, false
	}
	return mpr.PlaneMetadata{
		Position: geom.Position,
		Row:      geom.RowAxis,
		Col:      geom.ColAxis,
	}, true
}

// Geometry returns the full indexed record for a slice identifier
func (s *Scanner) Geometry(id string) (models.SliceGeometry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	geom, ok := s.byID[id]
	return geom, ok
}

// ReadIntensityPlane re-reads the slice's source file including pixel data
// and returns the first frame as normalized intensities in [0, 1], row-major,
// together with the frame width and height.
func (s *Scanner) ReadIntensityPlane(id string) ([]float64, int, int, error) {
	geom, ok := s.Geometry(id)
	if !ok {
		return nil, 0, 0, fmt.Errorf("unknown slice id %q", id)
	}

	dataset, err := dicom.ParseFile(geom.SourcePath, nil)
	if err != nil {
		return nil, 0, 0, fmt.Errorf("error parsing %s: %w", geom.SourcePath, err)
	}

	element, err := dataset.FindElementByTag(tag.PixelData)
	if err != nil {
		return nil, 0, 0, fmt.Errorf("no pixel data in %s: %w", geom.SourcePath, err)
	}
	info, ok := element.Value.GetValue().(dicom.PixelDataInfo)
	if !ok || len(info.Frames) == 0 {
		return nil, 0, 0, fmt.Errorf("no frames in %s", geom.SourcePath)
	}

	img, err := info.Frames[0].GetImage()
	if err != nil {
		return nil, 0, 0, fmt.Errorf("error decoding frame from %s: %w", geom.SourcePath, err)
	}

	bounds := img.Bounds()
	width, height := bounds.Dx(), bounds.Dy()
	plane := make([]float64, width*height)
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			// Grayscale sources report the sample value on every channel,
			// scaled to the 16-bit color range.
			v, _, _, _ := img.At(bounds.Min.X+x, bounds.Min.Y+y).RGBA()
			plane[y*width+x] = float64(v) / 65535.0
		}
	}
	return plane, width, height, nil
}

// readGeometry parses a single DICOM header, skipping pixel data
func readGeometry(path string) (models.SliceGeometry, error) {
	dataset, err := dicom.ParseFile(path, nil, dicom.SkipPixelData())
	if err != nil {
		return models.SliceGeometry{}, err
	}

	geom := models.SliceGeometry{
		ID:         path,
		SourcePath: path,
	}
	if uid, ok := firstString(dataset, tag.SOPInstanceUID); ok && uid != "" {
		geom.ID = uid
	}

	pos, posOK := floatValues(dataset, tag.ImagePositionPatient)
	orient, orientOK := floatValues(dataset, tag.ImageOrientationPatient)
	if posOK && len(pos) == 3 && orientOK && len(orient) == 6 {
		geom.Position = r3.Vec{X: pos[0], Y: pos[1], Z: pos[2]}
		geom.RowAxis = r3.Vec{X: orient[0], Y: orient[1], Z: orient[2]}
		geom.ColAxis = r3.Vec{X: orient[3], Y: orient[4], Z: orient[5]}
		geom.HasPlaneGeometry = true
	}

	if spacing, ok := floatValues(dataset, tag.PixelSpacing); ok && len(spacing) == 2 {
		geom.PixelSpacing = [2]float64{spacing[0], spacing[1]}
	}
	if thickness, ok := floatValues(dataset, tag.SliceThickness); ok && len(thickness) >= 1 {
		geom.SliceThickness = thickness[0]
	}
	return geom, nil
}

// firstString returns the first string value of a tag, if present
func firstString(dataset dicom.Dataset, t tag.Tag) (string, bool) {
	element, err := dataset.FindElementByTag(t)
	if err != nil || element == nil {
		return "", false
	}
	values, ok := element.Value.GetValue().([]string)
	if !ok || len(values) == 0 {
		return "", false
	}
	return strings.TrimSpace(values[0]), true
}

// floatValues parses a decimal-string tag into floats. DICOM DS values may
// carry surrounding whitespace, which ParseFloat rejects.
func floatValues(dataset dicom.Dataset, t tag.Tag) ([]float64, bool) {
	element, err := dataset.FindElementByTag(t)
	if err != nil || element == nil {
		return nil, false
	}
	values, ok := element.Value.GetValue().([]string)
	if !ok || len(values) == 0 {
		return nil, false
	}
	out := make([]float64, len(values))
	for i, v := range values {
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return nil, false
		}
		out[i] = f
	}
	return out, true
}
