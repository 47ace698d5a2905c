// yoro converts 2D images and videos into stereoscopic side-by-side 3D.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/stevecastle/yoro/appconfig"
	"github.com/stevecastle/yoro/convert"
	"github.com/stevecastle/yoro/deps"
)

var videoExtensions = map[string]bool{
	".mp4": true, ".mkv": true, ".mov": true, ".avi": true,
	".webm": true, ".m4v": true, ".ts": true, ".wmv": true,
}

func main() {
	inPath := flag.String("in", "", "input image or video path")
	outPath := flag.String("out", "", "output path (default: <input>_sbs.<ext>)")
	mode := flag.String("mode", "", "conversion mode: quality|performance")
	scale := flag.Int("scale", 0, "depth downsample factor for performance mode (2, 4, 8, or 16)")
	ipd := flag.Float64("ipd", 0, "interpupillary distance in meters")
	fov := flag.Float64("fov", 0, "vertical field of view in degrees")
	modelPath := flag.String("model", "", "path to an ONNX depth model (default: downloaded model if present)")
	noModel := flag.Bool("no-model", false, "skip the depth model and use the gradient estimator")
	chunkSize := flag.Int("chunk-size", 0, "frames per video chunk")
	resume := flag.Bool("resume", true, "resume an interrupted video conversion from its checkpoint")
	workers := flag.Int("workers", -1, "worker goroutines (0 = CPU count)")
	setup := flag.Bool("setup", false, "download missing dependencies (ffmpeg, depth model) and exit")
	listDeps := flag.Bool("deps", false, "print dependency status and exit")
	flag.Parse()

	cfg, _, err := appconfig.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	appconfig.Set(cfg)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if *listDeps {
		printDeps(ctx)
		return
	}
	if *setup {
		if err := runSetup(ctx); err != nil {
			fmt.Fprintf(os.Stderr, "setup failed: %v\n", err)
			os.Exit(1)
		}
		return
	}

	if *inPath == "" {
		fmt.Fprintln(os.Stderr, "usage: yoro -in <image-or-video> [-out <path>] [flags]")
		flag.PrintDefaults()
		os.Exit(2)
	}

	// Command-line flags override the config file for this run only.
	if *mode != "" {
		cfg.Mode = *mode
	}
	if *scale > 0 {
		cfg.ReprojectionScale = *scale
	}
	if *ipd > 0 {
		cfg.IPD = *ipd
	}
	if *fov > 0 {
		cfg.FOVDegrees = *fov
	}
	if *chunkSize > 0 {
		cfg.ChunkSize = *chunkSize
	}
	if *workers >= 0 {
		cfg.Workers = *workers
	}
	switch {
	case *noModel:
		cfg.DepthModel.ModelPath = ""
	case *modelPath != "":
		cfg.DepthModel.ModelPath = *modelPath
	case cfg.DepthModel.ModelPath == "":
		// Use the managed model when setup has installed it.
		cfg.DepthModel.ModelPath = deps.GetDepthModelPath()
		if cfg.DepthModel.ORTSharedLibraryPath == "" {
			cfg.DepthModel.ORTSharedLibraryPath = deps.GetOnnxRuntimeLibPath()
		}
	}

	out := *outPath
	if out == "" {
		ext := filepath.Ext(*inPath)
		out = strings.TrimSuffix(*inPath, ext) + "_sbs" + ext
	}

	session, err := convert.NewSession(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}
	defer session.Close()
	session.Resume = *resume

	start := time.Now()
	if videoExtensions[strings.ToLower(filepath.Ext(*inPath))] {
		if missing := deps.MissingRequired(ctx); len(missing) > 0 {
			for _, d := range missing {
				fmt.Fprintf(os.Stderr, "missing dependency: %s\n", d.Name)
			}
			fmt.Fprintln(os.Stderr, "run yoro -setup to download missing dependencies")
			os.Exit(1)
		}
		err = session.ConvertVideo(ctx, *inPath, out)
	} else {
		err = session.ConvertImage(*inPath, out)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "conversion failed: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Wrote %s in %s\n", out, time.Since(start).Round(time.Millisecond))
}

func printDeps(ctx context.Context) {
	for _, d := range deps.All() {
		available, version, err := d.Check(ctx)
		status := "missing"
		switch {
		case err != nil:
			status = fmt.Sprintf("error: %v", err)
		case available && version != "":
			status = "installed (" + version + ")"
		case available:
			status = "installed"
		}
		optional := ""
		if d.Optional {
			optional = " [optional]"
		}
		fmt.Printf("%-14s %s%s\n", d.ID, status, optional)
	}
}

func runSetup(ctx context.Context) error {
	for _, d := range deps.All() {
		available, _, err := d.Check(ctx)
		if err == nil && available {
			fmt.Printf("%s: already installed\n", d.Name)
			continue
		}
		fmt.Printf("%s: downloading...\n", d.Name)
		err = d.Install(ctx, func(p deps.Progress) {
			switch {
			case p.Stage == deps.StageDownloading && p.Total > 0:
				fmt.Printf("\r  %s / %s (%s)    ",
					deps.FormatBytes(p.Done),
					deps.FormatBytes(p.Total),
					deps.FormatSpeed(p.Speed))
			case p.Message != "":
				fmt.Printf("\n  %s", p.Message)
			}
		})
		fmt.Println()
		if err != nil {
			return fmt.Errorf("%s: %w", d.Name, err)
		}
		fmt.Printf("%s: installed\n", d.Name)
	}
	return nil
}
