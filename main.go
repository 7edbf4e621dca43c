package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/sepj/geodataviz/pipeline"
)

// Version is set at build time via -ldflags
var Version = "dev"

var (
	configFile = flag.String("config", "", "Path to YAML configuration file")
	httpPort   = flag.Int("http-port", 0, "Override HTTP server port")
	inputFile  = flag.String("input", "", "Process a GeoJSON file and exit instead of serving")
	outputFile = flag.String("output", "-", "Output path for -input mode (default stdout)")
	scriptID   = flag.String("script", "", "Run the named script on the input instead of the pipeline")
)

func main() {
	flag.Parse()

	// A missing .env file is fine; variables may come from the environment.
	_ = godotenv.Load()

	cfg, err := pipeline.LoadConfig(*configFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config error: %v\n", err)
		os.Exit(1)
	}
	if *httpPort > 0 {
		cfg.HTTP.Port = *httpPort
	}

	log, err := newLogger(cfg.Logging.Level)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger error: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()
	log.Info("geodataviz starting", zap.String("version", Version))

	app := NewApp(cfg, log)
	defer app.Close()

	if *inputFile != "" {
		if err := app.RunOneShot(context.Background(), *inputFile, *outputFile, *scriptID); err != nil {
			log.Fatal("processing failed", zap.Error(err))
		}
		return
	}

	ctx := context.Background()
	if err := app.ConnectDatabase(ctx); err != nil {
		log.Fatal("database setup failed", zap.Error(err))
	}
	if err := app.ConnectMQTT(); err != nil {
		log.Warn("MQTT unavailable, publishing disabled", zap.Error(err))
	}

	if err := app.RunServer(); err != nil {
		log.Fatal("server failed", zap.Error(err))
	}
	log.Info("service stopped")
}

func newLogger(level string) (*zap.Logger, error) {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, err
	}
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(lvl)
	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	return cfg.Build()
}
