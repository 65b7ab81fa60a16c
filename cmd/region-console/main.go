package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	regionconsole "github.com/menta2k/region-console"
	"github.com/menta2k/region-console/internal/config"
	"github.com/menta2k/region-console/internal/server"
	"github.com/menta2k/region-console/internal/utils"
	"github.com/menta2k/region-console/pkg/cache"
	"github.com/menta2k/region-console/pkg/catalog"
	"github.com/menta2k/region-console/pkg/client"
	"github.com/menta2k/region-console/pkg/cropper"
	"github.com/menta2k/region-console/pkg/ollama"
	"github.com/menta2k/region-console/pkg/orchestrator"
	"github.com/menta2k/region-console/pkg/processing"
	"github.com/menta2k/region-console/pkg/regions"
	"github.com/menta2k/region-console/pkg/router"
	"github.com/menta2k/region-console/pkg/types"
)

func main() {
	var configPath, in, outDir, prompt, mode, segmentBox, logLevel string
	var expert int
	var serve, warmup bool
	var boxes boxList
	var picks pickList

	flag.StringVar(&configPath, "config", "", "config file (YAML); CONSOLE_* env vars override it")
	flag.StringVar(&in, "in", "", "input screenshot path or URL (jpg/png/gif/webp)")
	flag.Var(&boxes, "box", "region box in RU as x1,y1,x2,y2 (repeatable)")
	flag.Var(&picks, "pick", "catalog region as expert/screen[/element] (repeatable)")
	flag.StringVar(&prompt, "prompt", "", "prompt sent with every region (default: \""+orchestrator.DefaultPrompt+"\")")
	flag.StringVar(&mode, "mode", "auto", "inference mode: auto|ocr|segment|expert")
	flag.IntVar(&expert, "expert", -1, "expert label for -mode expert")
	flag.StringVar(&segmentBox, "segment-box", "", "box prompt in source RU for -mode segment")
	flag.StringVar(&outDir, "out", "out", "output directory for the overlay")
	flag.BoolVar(&serve, "serve", false, "serve the console API instead of a one-shot run")
	flag.BoolVar(&warmup, "warmup", false, "wake the backend before running")
	flag.StringVar(&logLevel, "log-level", "", "log level override (debug|info|warn|error)")
	flag.Parse()

	if !serve && in == "" {
		log.Fatalf("usage: %s -in screen.png [-box x1,y1,x2,y2]... [-pick expert/screen[/element]]... [-prompt text] [-mode auto|ocr|segment|expert] [-out dir] | -serve", filepath.Base(os.Args[0]))
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if logLevel != "" {
		cfg.Log.Level = logLevel
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid config: %v", err)
	}

	logger, err := utils.NewLogger(cfg.Log.Mode, cfg.Log.Level)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer utils.Sync(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	backend, rc, err := newBackend(cfg, logger)
	if err != nil {
		logger.Fatal("failed to create inference client", zap.Error(err))
	}

	var cat *catalog.Catalog
	if cfg.Catalog.Path != "" {
		if cat, err = catalog.LoadFile(cfg.Catalog.Path); err != nil {
			logger.Fatal("failed to load catalog", zap.String("path", cfg.Catalog.Path), zap.Error(err))
		}
	}

	resultCache, closeCache := newCache(ctx, cfg, logger)
	defer closeCache()

	format, _ := processing.ParseFormat(cfg.Crop.Format)
	console, err := regionconsole.New(regionconsole.Options{
		Catalog: cat,
		Client:  backend,
		Crop: cropper.CropConfig{
			Format:   format,
			Quality:  cfg.Crop.Quality,
			Lossless: cfg.Crop.Lossless,
			MaxDim:   cfg.Crop.MaxDim,
		},
		Cache:  resultCache,
		Logger: logger,
	})
	if err != nil {
		logger.Fatal("failed to create console", zap.Error(err))
	}

	var monitor *router.Monitor
	if rc != nil {
		monitor = router.NewMonitor(rc, cfg.Status.Interval, logger)
		if warmup {
			logger.Info("warming up backend")
			st := monitor.Warmup(ctx)
			logger.Info("backend warmup finished", zap.String("status", string(st)))
		}
	}

	if serve {
		gin.SetMode(cfg.Server.Mode)
		srv := server.New(server.Options{
			Console:      console,
			Router:       rc,
			Monitor:      monitor,
			Logger:       logger,
			MaxBodyBytes: cfg.Server.MaxBodyMB << 20,
			ReadTimeout:  cfg.Server.ReadTimeout,
			WriteTimeout: cfg.Server.WriteTimeout,
		})
		if err := srv.Run(ctx, cfg.Server.Addr); err != nil {
			logger.Fatal("server failed", zap.Error(err))
		}
		return
	}

	params := orchestrator.Params{Prompt: prompt, Mode: types.ParseMode(mode)}
	if expert >= 0 {
		params.Expert = &expert
	}
	if segmentBox != "" {
		b, err := parseBox(segmentBox)
		if err != nil {
			logger.Fatal("invalid -segment-box", zap.Error(err))
		}
		params.SegmentBox = &b
	}

	if err := runOnce(ctx, logger, console, in, outDir, boxes, picks, params); err != nil {
		logger.Error("run failed", zap.Error(err))
		utils.Sync(logger)
		os.Exit(1)
	}
}

func newBackend(cfg *config.Config, logger *zap.Logger) (client.InferenceClient, *router.Client, error) {
	switch cfg.Inference.Backend {
	case "ollama":
		oc, err := ollama.NewClient(ollama.Config{
			URL:          cfg.Inference.Ollama.URL,
			Model:        cfg.Inference.Ollama.Model,
			ExpertModels: cfg.Inference.Ollama.ExpertModels,
		}, logger)
		if err != nil {
			return nil, nil, err
		}
		return oc, nil, nil
	default:
		rc := router.NewClient(cfg.RouterConfig(), logger)
		return rc, rc, nil
	}
}

// newCache builds the configured result cache. An unreachable Redis is
// logged and the run continues uncached.
func newCache(ctx context.Context, cfg *config.Config, logger *zap.Logger) (cache.Cache, func()) {
	switch cfg.Cache.Backend {
	case "memory":
		return cache.NewMemory(), func() {}
	case "redis":
		rdb := cache.NewRedis(cache.RedisConfig{
			Addr:     cfg.Cache.Addr,
			Password: cfg.Cache.Password,
			DB:       cfg.Cache.DB,
			TTL:      cfg.Cache.TTL,
		}, logger)
		pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
		defer cancel()
		if err := rdb.Ping(pingCtx); err != nil {
			logger.Warn("redis unavailable, caching disabled", zap.String("addr", cfg.Cache.Addr), zap.Error(err))
			rdb.Close()
			return nil, func() {}
		}
		logger.Info("redis cache connected", zap.String("addr", cfg.Cache.Addr))
		return rdb, func() { rdb.Close() }
	}
	return nil, func() {}
}

func runOnce(ctx context.Context, logger *zap.Logger, console *regionconsole.Console, in, outDir string, boxes boxList, picks pickList, params orchestrator.Params) error {
	if !strings.HasPrefix(in, "http://") && !strings.HasPrefix(in, "https://") {
		if !utils.FileExists(in) {
			return fmt.Errorf("input %s does not exist", in)
		}
		if !utils.IsImageFile(in) {
			logger.Warn("input does not look like an image, trying anyway", zap.String("path", in))
		}
	}
	if err := console.LoadImage(ctx, in); err != nil {
		return err
	}
	if info, ok := console.Image(); ok {
		logger.Info("image loaded",
			zap.String("path", in),
			zap.Int("width", info.Width),
			zap.Int("height", info.Height),
			zap.String("format", info.Format))
	}

	for _, pk := range picks {
		if err := applyPick(console, pk); err != nil {
			return err
		}
	}
	for _, b := range boxes {
		i := nextFree(console)
		if i < 0 {
			return fmt.Errorf("no free region for box %v", b)
		}
		box := b
		console.SetBox(i, &box)
	}

	out := console.Run(ctx, params)
	logger.Info("run complete",
		zap.String("run_id", out.RunID),
		zap.Int("regions", len(out.Regions)),
		zap.Duration("duration", out.Duration.Round(time.Millisecond)))

	snap := console.Snapshot()
	for _, r := range out.Regions {
		line := fmt.Sprintf("R%d", r.Index+1)
		if r.Box != nil {
			line += " " + r.Box.String()
		} else {
			line += " (full image)"
		}
		line += fmt.Sprintf(" sent %dx%d", r.Sent.Width, r.Sent.Height)
		if r.Cached {
			line += " cached"
		}
		if r.Fallback {
			line += " fallback"
		}
		if r.Discarded {
			line += " discarded"
		}
		if r.Err != nil {
			line += " error: " + r.Err.Error()
		}
		fmt.Println(line)

		if r.Index >= len(snap.Regions) {
			continue
		}
		printRegion(snap.Regions[r.Index])
	}

	if img, err := console.Render(); err == nil && outDir != "" {
		if err := utils.EnsureDir(outDir); err != nil {
			return err
		}
		path := utils.OverlayFilename(in, outDir)
		if err := processing.NewProcessor().SaveImage(img, path, "png", 92, false); err != nil {
			return fmt.Errorf("failed to save overlay: %w", err)
		}
		if st, err := os.Stat(path); err == nil {
			logger.Info("overlay written", zap.String("path", path), zap.String("size", utils.FormatFileSize(st.Size())))
		}
	}
	return out.Err
}

func printRegion(rs regionconsole.RegionState) {
	a := rs.Annotation
	if a == nil {
		return
	}
	if a.Text != "" {
		fmt.Printf("  text: %s\n", a.Text)
	}
	if a.Point != nil {
		fmt.Printf("  point: [%d, %d]\n", a.Point.X, a.Point.Y)
	}
	if a.BBox != nil {
		fmt.Printf("  bbox_2d: %v\n", *a.BBox)
	}
	for _, d := range a.Detections {
		fmt.Printf("  detection: %v\n", d)
	}
	if rs.Response != nil {
		for _, t := range rs.Response.SortedTimings() {
			fmt.Printf("  %s: %s\n", t.Name, t.Milliseconds())
		}
	}
}

func applyPick(console *regionconsole.Console, pk pick) error {
	i := nextFree(console)
	if i < 0 {
		return fmt.Errorf("no free region for %s/%s", pk.Expert, pk.Screen)
	}
	console.SetActive(i)
	console.SelectExpert(pk.Expert)
	var out regions.AssignOutcome
	if pk.Element == "" {
		out = console.SelectScreen(pk.Screen)
	} else {
		if !console.BrowseScreen(pk.Screen) {
			return fmt.Errorf("unknown screen %s/%s", pk.Expert, pk.Screen)
		}
		out = console.SelectElement(pk.Element)
	}
	if !out.Assigned {
		return fmt.Errorf("catalog entry %s/%s/%s not assigned", pk.Expert, pk.Screen, pk.Element)
	}
	return nil
}

// nextFree returns the first region with neither box nor assignment,
// adding one when all are taken, or -1 when the set is full.
func nextFree(console *regionconsole.Console) int {
	snap := console.Snapshot()
	for _, r := range snap.Regions {
		if r.Box == nil && r.Assignment == nil {
			return r.Index
		}
	}
	if !console.AddRegion() {
		return -1
	}
	return console.Snapshot().Active
}
