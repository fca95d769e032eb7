package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"tilescan/pkg/combine"
	"tilescan/pkg/config"
	"tilescan/pkg/interpolation"
	"tilescan/pkg/tiffio"
)

func main() {
	// Parse command line arguments
	inputDir := flag.String("input", "", "Directory containing the separated c<channel>z<slice>_<name> images")
	configPath := flag.String("config", "tilescan.yaml", "YAML configuration file (defaults are used if it does not exist)")
	initConfig := flag.Bool("init-config", false, "Write the default configuration to -config and exit")
	needsRotation := flag.Bool("rotate", true, "Straighten and crop the tile scan")
	bestChannel := flag.Int("channel", 1, "Channel with the strongest signal, used to derive the rotation and crop")
	angle := flag.Float64("angle", 0, "Rotate by this many degrees clockwise instead of estimating the angle")
	numCores := flag.Int("cores", 0, "Number of channels to write in parallel (default: all available cores)")
	preview := flag.Bool("preview", false, "Save a contrast-stretched max projection of the best channel")
	reference := flag.String("reference", "", "Reference slice: middle or brightest")
	method := flag.String("interpolation", "", "Rotation interpolation: bilinear or nearest")
	compression := flag.String("compression", "", "Stack compression: deflate or none")
	flag.Parse()

	if *initConfig {
		if err := config.CreateDefaultConfigFile(*configPath); err != nil {
			log.Fatalf("Failed to write config: %v", err)
		}
		fmt.Printf("Default configuration written to %s\n", *configPath)
		return
	}

	// Validate inputs
	if *inputDir == "" {
		flag.Usage()
		os.Exit(1)
	}

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Flags given on the command line take precedence over the config file
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "rotate":
			cfg.Processing.NeedsRotation = *needsRotation
		case "channel":
			cfg.Processing.BestChannel = *bestChannel
		case "angle":
			cfg.Processing.ManualAngle = angle
		case "cores":
			cfg.Processing.NumCores = *numCores
		case "preview":
			cfg.Output.WritePreview = *preview
		case "reference":
			cfg.Processing.ReferenceSlice = *reference
		case "interpolation":
			cfg.Processing.Interpolation = *method
		case "compression":
			cfg.Output.Compression = *compression
		}
	})
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid parameters: %v", err)
	}

	interp, err := interpolation.ParseMethod(cfg.Processing.Interpolation)
	if err != nil {
		log.Fatalf("Invalid interpolation: %v", err)
	}
	codec, err := tiffio.ParseCompression(cfg.Output.Compression)
	if err != nil {
		log.Fatalf("Invalid compression: %v", err)
	}

	fmt.Println("================================")
	fmt.Println("COMBINE SEPARATED Z-SLICES OF A TILE SCAN")
	fmt.Println("================================")

	params := &combine.Params{
		InputDir:       *inputDir,
		NeedsRotation:  cfg.Processing.NeedsRotation,
		BestChannel:    cfg.Processing.BestChannel,
		ManualAngle:    cfg.Processing.ManualAngle,
		Interpolation:  interp,
		Compression:    codec,
		NumCores:       cfg.Processing.NumCores,
		ReferenceSlice: cfg.Processing.ReferenceSlice,
		WritePreview:   cfg.Output.WritePreview,
		PreviewSize:    cfg.Output.PreviewSize,
		Verbose:        cfg.Output.Verbose,
	}

	combiner := combine.NewCombiner(params)

	startTime := time.Now()
	if err := combiner.Process(); err != nil {
		log.Fatalf("Combining slices failed: %v", err)
	}
	processingTime := time.Since(startTime)

	res := combiner.Result()
	fmt.Printf("\nCombined %d channels x %d slices in %.2f seconds\n",
		len(res.Group.Channels), len(res.Group.Slices), processingTime.Seconds())
	if res.Estimate != nil {
		w, h := res.Estimate.Bounds.Size()
		fmt.Printf("Reference: %s_%s\n", res.Reference, res.Group.Base)
		fmt.Printf("Rotation: %.4f degrees clockwise\n", res.Estimate.Degrees)
		fmt.Printf("Crop: %v (%dx%d)\n", res.Estimate.Bounds, w, h)
		fmt.Printf("Angle saved to: %s\n", res.AngleFile)
	}
	fmt.Println("Stacks written:")
	for _, out := range res.Outputs {
		fmt.Printf("- %s\n", out)
	}
	if res.PreviewFile != "" {
		fmt.Printf("Preview saved to: %s\n", res.PreviewFile)
	}
}
