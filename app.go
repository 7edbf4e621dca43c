package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/paulmach/orb/geojson"
	"go.uber.org/zap"

	"github.com/sepj/geodataviz/pipeline"
)

// App encapsulates the service state and dependencies.
type App struct {
	Config    *pipeline.Config
	Log       *zap.Logger
	Processor *pipeline.Processor
	Store     *pipeline.Store
	Publisher *pipeline.Publisher

	pool       *pgxpool.Pool
	mqttClient mqtt.Client
}

// NewApp wires the processing pipeline from the loaded configuration.
func NewApp(cfg *pipeline.Config, log *zap.Logger) *App {
	timeout := time.Duration(cfg.Lookup.TimeoutSeconds) * time.Second

	resolver := &pipeline.PlaceResolver{
		Admin: pipeline.NewOverpassClient(cfg.Lookup.OverpassURL,
			pipeline.WithTimeout(timeout),
			pipeline.WithUserAgent(cfg.Lookup.UserAgent),
		),
		Geocoder: pipeline.NewNominatimClient(cfg.Lookup.NominatimURL,
			pipeline.WithTimeout(timeout),
			pipeline.WithUserAgent(cfg.Lookup.UserAgent),
		),
		LookupTimeout:     timeout,
		MaxLookupFeatures: cfg.Lookup.MaxFeatures,
		MaxLookupArea:     cfg.Lookup.MaxBBoxArea,
		Log:               log,
	}

	return &App{
		Config:    cfg,
		Log:       log,
		Processor: &pipeline.Processor{Resolver: resolver, Log: log},
	}
}

// ConnectDatabase opens the connection pool and prepares the schema. An
// empty database URL leaves persistence disabled.
func (a *App) ConnectDatabase(ctx context.Context) error {
	if a.Config.Database.URL == "" {
		a.Log.Info("no database configured, persistence disabled")
		return nil
	}

	pool, err := pgxpool.New(ctx, a.Config.Database.URL)
	if err != nil {
		return fmt.Errorf("opening database pool: %w", err)
	}
	a.pool = pool
	a.Store = pipeline.NewStore(pool, a.Log)

	if err := a.Store.EnsureSchema(ctx); err != nil {
		return fmt.Errorf("preparing schema: %w", err)
	}
	a.Log.Info("database connected")
	return nil
}

// ConnectMQTT connects the result publisher. An empty broker URL leaves
// publishing disabled.
func (a *App) ConnectMQTT() error {
	client, err := pipeline.ConnectMQTT(
		a.Config.MQTT.Broker,
		a.Config.MQTT.ClientID,
		a.Config.MQTT.Username,
		a.Config.MQTT.Password,
	)
	if err != nil {
		return err
	}
	a.mqttClient = client
	a.Publisher = pipeline.NewPublisher(client, a.Config.MQTT.Topic, a.Log)
	if client != nil {
		a.Log.Info("MQTT connected", zap.String("broker", a.Config.MQTT.Broker))
	}
	return nil
}

// RunServer starts the HTTP server and blocks until an interrupt signal or
// a server failure.
func (a *App) RunServer() error {
	addr := fmt.Sprintf(":%d", a.Config.HTTP.Port)
	server := &http.Server{
		Addr:              addr,
		Handler:           a.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		a.Log.Info("HTTP server starting", zap.String("addr", addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return fmt.Errorf("HTTP server: %w", err)
	case sig := <-sigCh:
		a.Log.Info("shutting down", zap.String("signal", sig.String()))
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("HTTP shutdown: %w", err)
	}
	return nil
}

// RunOneShot processes a single GeoJSON file and writes the result. With a
// script ID the named transform runs instead of the classification pipeline.
func (a *App) RunOneShot(ctx context.Context, inputPath, outputPath, scriptID string) error {
	data, err := os.ReadFile(inputPath)
	if err != nil {
		return fmt.Errorf("reading input: %w", err)
	}

	var payload []byte
	if scriptID != "" {
		script, ok := pipeline.ScriptByID(scriptID)
		if !ok {
			return fmt.Errorf("unknown script %q", scriptID)
		}
		fc, err := geojson.UnmarshalFeatureCollection(data)
		if err != nil {
			return fmt.Errorf("parsing input collection: %w", err)
		}
		payload, err = script.Run(fc).MarshalJSON()
		if err != nil {
			return fmt.Errorf("encoding result: %w", err)
		}
	} else {
		req, skipped, err := pipeline.DecodeRequest(data)
		if err != nil {
			return fmt.Errorf("parsing input: %w", err)
		}
		if skipped > 0 {
			a.Log.Warn("features skipped during parse", zap.Int("skipped", skipped))
		}
		result := a.Processor.Process(ctx, req)
		payload, err = encodeResult(result)
		if err != nil {
			return fmt.Errorf("encoding result: %w", err)
		}
	}

	if outputPath == "" || outputPath == "-" {
		_, err = os.Stdout.Write(append(payload, '\n'))
		return err
	}
	if err := os.WriteFile(outputPath, payload, 0644); err != nil {
		return fmt.Errorf("writing output: %w", err)
	}
	a.Log.Info("result written", zap.String("path", outputPath))
	return nil
}

// Close releases external connections.
func (a *App) Close() {
	if a.mqttClient != nil {
		a.mqttClient.Disconnect(250)
	}
	if a.pool != nil {
		a.pool.Close()
	}
}
