package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/mapforge/spatialkit/internal/analysis"
	"github.com/mapforge/spatialkit/internal/config"
	"github.com/mapforge/spatialkit/internal/dataset"
	"github.com/mapforge/spatialkit/internal/engine"
	"github.com/mapforge/spatialkit/internal/geom"
	"github.com/mapforge/spatialkit/internal/methods/geostat"
	"github.com/mapforge/spatialkit/internal/methods/interpolate"
	"github.com/mapforge/spatialkit/internal/methods/network"
	"github.com/mapforge/spatialkit/internal/methods/pattern"
	"github.com/mapforge/spatialkit/internal/methods/regression"
)

func main() {
	configPath := flag.String("config", "", "yaml config file")
	dataPath := flag.String("dataset", "", "geojson FeatureCollection to analyze")
	category := flag.String("category", "", "analysis category")
	method := flag.String("method", "", "analysis method")
	paramsJSON := flag.String("params", "{}", "method parameters as json")
	crs := flag.String("crs", string(geom.WGS84), "dataset coordinate reference system")
	listMethods := flag.Bool("methods", false, "list the method catalog and exit")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	config.LoadFromEnv(cfg)

	logger := buildLogger(cfg.Log.Level)
	defer func() { _ = logger.Sync() }()

	store := dataset.NewMemStore()
	eng, err := buildEngine(cfg, store, logger)
	if err != nil {
		logger.Fatal("engine setup failed", zap.Error(err))
	}

	if *listMethods {
		printCatalog(eng)
		return
	}

	if *dataPath == "" || *category == "" || *method == "" {
		fmt.Fprintln(os.Stderr, "usage: spatialkit -dataset file.geojson -category NAME -method NAME [-params JSON]")
		fmt.Fprintln(os.Stderr, "       spatialkit -methods")
		os.Exit(2)
	}

	// Cancel the run on SIGINT/SIGTERM; in-flight partitions stop
	// cooperatively.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := runAnalysis(ctx, eng, store, logger,
		*dataPath, *category, *method, *paramsJSON, *crs); err != nil {
		logger.Fatal("analysis failed", zap.Error(err))
	}
}

func buildLogger(level string) *zap.Logger {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		lvl = zapcore.InfoLevel
	}
	zcfg := zap.NewProductionConfig()
	zcfg.Level = zap.NewAtomicLevelAt(lvl)
	logger, err := zcfg.Build()
	if err != nil {
		logger, _ = zap.NewProduction()
	}
	return logger
}

func buildEngine(cfg *config.Config, store dataset.Store, logger *zap.Logger) (*engine.Engine, error) {
	eng, err := engine.New(cfg, store, logger, engine.Options{})
	if err != nil {
		return nil, err
	}

	for _, register := range []func(*analysis.Registry) error{
		network.Register,
		interpolate.Register,
		pattern.Register,
		geostat.Register,
		regression.Register,
	} {
		if err := register(eng.Registry()); err != nil {
			return nil, err
		}
	}
	return eng, nil
}

func printCatalog(eng *engine.Engine) {
	for _, m := range eng.Methods() {
		mode := "sync"
		if m.LongRunning {
			mode = "async"
		}
		fmt.Printf("%-14s %-18s %-5s  %s\n", m.Category, m.Name, mode, m.Description)
	}
}

func runAnalysis(ctx context.Context, eng *engine.Engine, store *dataset.MemStore, logger *zap.Logger,
	dataPath, category, method, paramsJSON, crs string) error {

	raw, err := os.ReadFile(dataPath) // #nosec G304 - operator-supplied path
	if err != nil {
		return fmt.Errorf("read dataset %s: %w", dataPath, err)
	}
	d, err := dataset.FromGeoJSON(raw, geom.CRS(crs))
	if err != nil {
		return err
	}
	store.Put(d)

	var params map[string]any
	if err := json.Unmarshal([]byte(paramsJSON), &params); err != nil {
		return fmt.Errorf("parse params: %w", err)
	}

	logger.Info("dataset loaded",
		zap.String("id", d.ID()),
		zap.Int("features", d.Len()),
		zap.String("geometry", string(d.GeometryType())))

	job, err := eng.Submit(ctx, analysis.Request{
		Category:  category,
		Method:    method,
		DatasetID: d.ID(),
		Params:    params,
	}, func(fraction float64, status string) {
		logger.Info("progress", zap.Float64("fraction", fraction), zap.String("status", status))
	})
	if err != nil {
		return err
	}

	result, err := job.Wait(ctx)
	if err != nil {
		return err
	}

	out, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}
