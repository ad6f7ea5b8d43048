package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"

	"github.com/ironsheep/landcover-mcp/internal/config"
	"github.com/ironsheep/landcover-mcp/internal/logging"
	"github.com/ironsheep/landcover-mcp/internal/mlc"
	"github.com/ironsheep/landcover-mcp/internal/raster"
	"github.com/ironsheep/landcover-mcp/internal/server"
	"github.com/ironsheep/landcover-mcp/internal/store"
)

// Version information - set by ldflags during build
var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

func main() {
	// Handle --version and -v flags
	if len(os.Args) > 1 {
		switch os.Args[1] {
		case "--version", "-v", "version":
			fmt.Printf("landcover-mcp %s\n", Version)
			fmt.Printf("  Build time: %s\n", BuildTime)
			fmt.Printf("  Git commit: %s\n", GitCommit)
			return
		case "--help", "-h", "help":
			printHelp()
			return
		}
	}

	env := config.FromEnv(os.LookupEnv)
	// Logs go to stderr (stdout is for MCP protocol)
	log := logging.NewConsole(env.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if len(os.Args) > 1 && os.Args[1] == "classify" {
		if len(os.Args) != 3 {
			fmt.Fprintln(os.Stderr, "usage: landcover-mcp classify <config.json>")
			os.Exit(2)
		}
		if err := classify(ctx, log, env, os.Args[2]); err != nil {
			log.Fatal().Err(err).Msg("classification failed")
		}
		return
	}

	log.Debug().
		Str("version", Version).
		Str("build_time", BuildTime).
		Str("commit", GitCommit).
		Msg("Landcover MCP Server starting")

	st, err := store.Open(env.DBPath)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open run store")
	}
	defer st.Close()

	srv := server.New(server.Config{
		Store:   st,
		Logger:  logging.Component(log, "server"),
		Version: Version,
	})
	if err := srv.Run(ctx); err != nil && ctx.Err() == nil {
		log.Error().Err(err).Msg("server error")
		st.Close()
		os.Exit(1)
	}
	if ctx.Err() != nil {
		// Restore default signal handling so a second signal terminates immediately.
		stop()
		log.Info().Msg("shutting down")
	}
}

// classify runs one configuration file end to end and records it when a
// database path is configured.
func classify(ctx context.Context, log zerolog.Logger, env config.Env, path string) error {
	cfg, err := config.LoadRunConfig(path)
	if err != nil {
		return err
	}

	src, err := raster.Load(cfg.Input, cfg.GetBandMode())
	if err != nil {
		return &mlc.DataError{Reason: "cannot read input raster", Err: err}
	}
	log.Info().
		Str("input", cfg.Input).
		Int("rows", src.Rows()).
		Int("cols", src.Cols()).
		Int("bands", src.Bands()).
		Msg("raster loaded")

	mlcLog := logging.Component(log, "mlc")
	p := &mlc.Pipeline{Workers: cfg.GetWorkers(), Logger: &mlcLog}
	sink := &raster.PNGSink{
		Path:           cfg.Output,
		PreviewPath:    cfg.Preview,
		PreviewMaxSize: cfg.GetPreviewMaxSize(),
		Classes:        len(cfg.Seeds),
	}
	res, err := p.Run(ctx, src, sink, cfg.Seeds, cfg.Threshold)
	if err != nil {
		return err
	}

	for i, n := range res.ClassCounts {
		log.Info().
			Int("class", i).
			Str("name", cfg.Seeds[i].Name).
			Int("training_pixels", res.Models[i].Pixels).
			Int("cells", n).
			Msg("class summary")
	}
	log.Info().Str("output", cfg.Output).Msg("label raster written")

	if env.DBPath == "" {
		return nil
	}
	st, err := store.Open(env.DBPath)
	if err != nil {
		return err
	}
	defer st.Close()

	run := store.NewRun(res, cfg.Input, string(cfg.GetBandMode()), src.Bands())
	run.OutputPath = cfg.Output
	run.PreviewPath = cfg.Preview
	id, err := st.SaveRun(ctx, run)
	if err != nil {
		return err
	}
	log.Info().Str("run_id", id).Msg("run recorded")
	return nil
}

func printHelp() {
	fmt.Println("landcover-mcp - seeded maximum-likelihood land-cover classification")
	fmt.Println()
	fmt.Println("Usage:")
	fmt.Println("  landcover-mcp                      Run the MCP server on stdin/stdout")
	fmt.Println("  landcover-mcp classify <run.json>  Classify a raster offline")
	fmt.Println()
	fmt.Println("Options:")
	fmt.Println("  --version, -v    Print version information")
	fmt.Println("  --help, -h       Print this help message")
	fmt.Println()
	fmt.Println("Environment variables:")
	fmt.Println("  LANDCOVER_MCP_LOG_LEVEL=debug    Log level (debug, info, warn, error)")
	fmt.Println("  LANDCOVER_MCP_DB=/path/runs.db   SQLite run history (default: in-memory)")
	fmt.Println()
	fmt.Println("The server communicates via MCP protocol over stdin/stdout.")
	fmt.Println("Configure it in your MCP client.")
}
