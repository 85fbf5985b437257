package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"

	"dicomstack/pkg/config"
	"dicomstack/pkg/dicomscan"
	"dicomstack/pkg/mpr"
	"dicomstack/pkg/visualization"
	"dicomstack/pkg/volume"
)

func main() {
	// Parse command line arguments
	inputDir := flag.String("input", "", "Directory containing DICOM slice files")
	configPath := flag.String("config", "dicomstack.yaml", "Path to YAML configuration file")
	tolerance := flag.Float64("tolerance", 0, "Orientation tolerance override (0 = use config)")
	workers := flag.Int("workers", 0, "Concurrent parse workers override (0 = use config)")
	savePreviews := flag.Bool("previews", false, "Save axis-aligned preview slices of the stacked volume")
	previewDir := flag.String("previews-dir", "", "Directory to save preview slices (default: from config)")
	flag.Parse()

	// Validate inputs
	if *inputDir == "" {
		flag.Usage()
		os.Exit(1)
	}

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	if *tolerance > 0 {
		cfg.Selection.Tolerance = *tolerance
	}
	if *workers > 0 {
		cfg.Scan.Workers = *workers
	}
	if *savePreviews {
		cfg.Output.SavePreviews = true
	}
	if *previewDir != "" {
		cfg.Output.PreviewDir = *previewDir
	}

	// Index plane geometry from the input directory
	scanner := dicomscan.NewScanner(&dicomscan.Options{
		BatchSize: cfg.Scan.BatchSize,
		Workers:   cfg.Scan.Workers,
	})
	ids, err := scanner.ScanDirectory(*inputDir)
	if err != nil {
		log.Fatalf("Failed to scan input directory: %v", err)
	}
	fmt.Printf("Indexed %d slices from %s\n", len(ids), *inputDir)

	// Select the dominant coherent orientation group
	selector := &mpr.Selector{
		Tolerance:    cfg.Selection.Tolerance,
		MinGroupSize: cfg.Selection.MinGroupSize,
	}
	result := selector.Select(ids, scanner)
	if !result.Success {
		// Expected degraded mode, not a crash: the caller of a viewer would
		// fall back to single-slice presentation here.
		fmt.Printf("Cannot build a volume: %s\n", result.Reason)
		fmt.Println("Falling back to non-volumetric presentation.")
		return
	}
	fmt.Printf("Selected %d coherent slices ordered along the plane normal\n", len(result.OrderedIDs))

	// Stack the ordered slices into a 3D volume
	builder := volume.NewBuilder(scanner)
	builder.DefaultSpacing = cfg.Stacking.DefaultSpacing
	builder.SpacingTolerance = cfg.Stacking.SpacingTolerance

	vol, spacing, err := builder.Stack(result.OrderedIDs, result.Normal)
	if err != nil {
		log.Fatalf("Failed to stack volume: %v", err)
	}

	fmt.Printf("\nVolume: %dx%dx%d voxels\n", vol.Width, vol.Height, vol.Depth)
	fmt.Printf("Voxel size: %.3f x %.3f x %.3f mm\n",
		vol.VoxelSize.X, vol.VoxelSize.Y, vol.VoxelSize.Z)
	fmt.Printf("Mean inter-slice gap: %.3f mm\n", spacing.Mean)
	if !spacing.Uniform {
		fmt.Printf("Warning: non-uniform slice spacing (max deviation %.3f mm)\n", spacing.MaxDeviation)
	}

	if cfg.Output.Verbose {
		stats := volume.Stats(vol)
		fmt.Printf("\nIntensity statistics:\n")
		fmt.Printf("  Mean: %.4f\n", stats.Mean)
		fmt.Printf("  StdDev: %.4f\n", stats.StdDev)
		fmt.Printf("  Range: [%.4f, %.4f]\n", stats.Min, stats.Max)
		fmt.Printf("  Entropy: %.3f bits\n", stats.Entropy)
	}

	// Export preview slices if requested
	if cfg.Output.SavePreviews {
		fmt.Printf("\nSaving preview slices to: %s\n", cfg.Output.PreviewDir)
		viewer := visualization.NewViewer(vol)
		for _, axis := range []string{"x", "y", "z"} {
			axisDir := filepath.Join(cfg.Output.PreviewDir, axis)
			if err := viewer.SaveSliceSequence(axis, axisDir); err != nil {
				log.Printf("Warning: failed to save %s-axis previews: %v", axis, err)
			}
		}
		fmt.Println("Preview export completed.")
	}
}
