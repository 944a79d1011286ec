// main.go
package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"stockscan/internal/api"
	"stockscan/internal/capture"
	"stockscan/internal/cleanup"
	"stockscan/internal/config"
	"stockscan/internal/dashboard"
	"stockscan/internal/data"
	"stockscan/internal/detection"
	"stockscan/internal/inventory"
	"stockscan/internal/logger"
	"stockscan/internal/middleware"
	"stockscan/internal/notify"
	"stockscan/internal/scan"
	"stockscan/internal/security"
)

type App struct {
	addr          string
	handler       http.Handler
	connections   sync.WaitGroup
	totalRequests int64
}

func main() {
	// Step 1: Setup configuration first
	config.LoadEnv()
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	// Step 2: Setup logging
	if err := logger.SetupLogger(cfg.Logger); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Close()

	// Only NOW is logging safe to use!
	logger.LogInfo("Environment loaded. Logger ready.")
	config.LogCurrentEnvironment(cfg)

	ctx, stopBackground := context.WithCancel(context.Background())
	defer stopBackground()

	// Step 3: Notifications
	hub := notify.NewHub()
	recent := notify.NewRecent(notify.DefaultRecentSize)
	hub.Subscribe(recent.Add)
	hub.Subscribe(notify.LogSink)

	if cfg.MQTT.Broker != "" {
		sink := notify.NewMQTTSink(cfg.MQTT.Broker, cfg.MQTT.Topic, cfg.MQTT.ClientID)
		if err := sink.Connect(ctx); err != nil {
			logger.LogWarn("MQTT broker %s not reachable yet, will keep retrying: %v", cfg.MQTT.Broker, err)
		}
		hub.Subscribe(sink.Notify)
		defer sink.Close()
	}

	// Step 4: Inventory and detection catalog
	items := inventory.DefaultItems()
	var samples []detection.Result
	if cfg.CatalogFile != "" {
		catalog, err := inventory.LoadCatalog(cfg.CatalogFile)
		if err != nil {
			logger.LogFatal("Failed to load catalog: %v", err)
		}
		if len(catalog.Items) > 0 {
			items = catalog.Items
		}
		samples = catalog.DetectionSamples
	}
	inv, err := inventory.NewSeededService(items)
	if err != nil {
		logger.LogFatal("Failed to seed inventory: %v", err)
	}

	detector := detection.NewClient(detection.Config{
		Endpoint:         cfg.Detection.URL,
		UseRealAPI:       cfg.Detection.UseRealAPI,
		Timeout:          cfg.Detection.Timeout,
		SimulatedLatency: cfg.Detection.SimulatedLatency,
		SimulatedMode:    cfg.Detection.SimulatedMode,
		Catalog:          samples,
	}, hub)
	detectionMode := "simulated"
	if detector.UsesRealAPI() {
		detectionMode = "remote"
		if err := detector.CheckHealth(ctx); err != nil {
			logger.LogWarn("Detection service at %s is not healthy: %v", cfg.Detection.URL, err)
		}
	}

	// Step 5: Optional scan history
	var history *data.History
	var activity dashboard.ActivitySource
	var recorder scan.Recorder
	var pruner cleanup.HistoryPruner
	var historyStore api.HistoryStore
	if cfg.HistoryDBPath != "" {
		history, err = data.Open(cfg.HistoryDBPath)
		if err != nil {
			logger.LogFatal("Failed to open scan history: %v", err)
		}
		defer history.Close()
		activity, recorder, pruner, historyStore = history, history, history, history
	}

	// Step 6: Scan sessions
	device := capture.NewDevice(cfg.CameraSource)
	logger.LogInfo("Camera source: %s", device.Name())
	scans := scan.NewManager(scan.Deps{
		Device:    device,
		Detector:  detector,
		Inventory: inv,
		History:   recorder,
		Notifier:  hub,
	})
	defer scans.Shutdown()

	// Step 7: Start background tasks
	janitor := &cleanup.Janitor{
		Sessions:    scans,
		SessionIdle: cfg.SessionIdleTimeout,
		History:     pruner,
		Retention:   cfg.HistoryRetention,
	}
	janitor.Start(ctx)

	// Step 8: Setup app
	server := &api.Server{
		Inventory:     inv,
		Scans:         scans,
		Dashboard:     dashboard.NewBuilder(inv, activity),
		History:       historyStore,
		Recent:        recent,
		Notifier:      hub,
		DetectionMode: detectionMode,
	}
	app := &App{addr: cfg.Address()}
	app.handler = app.Handler(server.Routes(), cfg.AllowedOrigin)

	// Step 9: Run server
	app.Run()
}

// Run starts the HTTP server and blocks until SIGINT or SIGTERM.
func (a *App) Run() {
	server := &http.Server{
		Addr:         a.addr,
		Handler:      a.handler,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Channel to listen for shutdown signals
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	// Start server in a separate goroutine
	go func() {
		logger.LogInfo("Starting server on %s", a.addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.LogFatal("Server failed: %v", err)
		}
	}()

	// Wait for a shutdown signal
	<-stop
	logger.LogInfo("Shutdown signal received")

	// Create context with timeout for shutdown
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	// Shutdown the server gracefully
	if err := server.Shutdown(ctx); err != nil {
		logger.LogError("Server shutdown error: %v", err)
	}

	logger.LogInfo("Waiting for active connections to finish...")
	a.connections.Wait()
	logger.LogInfo("All connections closed. Total requests handled: %d", atomic.LoadInt64(&a.totalRequests))
	logger.LogInfo("Server shut down gracefully")
}

// Handler assembles all middleware around the routes
func (a *App) Handler(routes http.Handler, allowedOrigin string) http.Handler {
	handler := withJSON404(routes)
	handler = middleware.APIMiddleware(handler)
	handler = security.CORS(allowedOrigin)(handler)
	handler = security.SecurityHeaders(handler)
	handler = a.trackConnections(handler)
	handler = withTimeout(handler, 25*time.Second)

	return handler
}

// Middleware: timeout handler
func withTimeout(h http.Handler, timeout time.Duration) http.Handler {
	return http.TimeoutHandler(h, timeout, `{"code":"timeout","message":"Request timed out"}`)
}

// Middleware: track active connections and total requests
func (a *App) trackConnections(h http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		a.connections.Add(1)
		atomic.AddInt64(&a.totalRequests, 1)
		defer a.connections.Done()

		h.ServeHTTP(w, r)
	})
}

// Middleware: the mux's plain-text 404 becomes the JSON error envelope.
// Handler-written JSON 404s pass through untouched.
func withJSON404(h http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		crw := &captureResponseWriter{ResponseWriter: w}

		h.ServeHTTP(crw, r)

		if crw.intercepted {
			logger.LogInfo("404 not found: %s", r.URL.Path)
			middleware.WriteAPIError(w, r, http.StatusNotFound, "not_found", "Route not found", r.URL.Path)
		}
	})
}

// captureResponseWriter swallows a non-JSON 404 so it can be rewritten
type captureResponseWriter struct {
	http.ResponseWriter
	intercepted bool
	written     bool
}

func (crw *captureResponseWriter) WriteHeader(code int) {
	if crw.written {
		return
	}
	crw.written = true
	if code == http.StatusNotFound && !strings.HasPrefix(crw.Header().Get("Content-Type"), "application/json") {
		crw.intercepted = true
		return
	}
	crw.ResponseWriter.WriteHeader(code)
}

func (crw *captureResponseWriter) Write(b []byte) (int, error) {
	if !crw.written {
		crw.WriteHeader(http.StatusOK)
	}
	if crw.intercepted {
		return len(b), nil
	}
	return crw.ResponseWriter.Write(b)
}
