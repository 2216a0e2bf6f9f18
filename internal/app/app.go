package app

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/byteom/scanstation/internal/adapters/media/v4l"
	"github.com/byteom/scanstation/internal/adapters/storage"
	"github.com/byteom/scanstation/internal/adapters/verification"
	webserver "github.com/byteom/scanstation/internal/adapters/web/server"
	"github.com/byteom/scanstation/internal/config"
	"github.com/byteom/scanstation/internal/core/domain"
	"github.com/byteom/scanstation/internal/core/ports"
	"github.com/byteom/scanstation/internal/core/services/camera"
	"github.com/byteom/scanstation/internal/core/services/history"
	"github.com/byteom/scanstation/internal/core/services/scanner"
	"github.com/byteom/scanstation/internal/mock"
	"github.com/byteom/scanstation/internal/telemetry"
)

// Application holds the core components of the station.
// It wires storage, camera, verification and presentation around one scan session.
type Application struct {
	Config         *config.Config
	Profile        domain.Profile
	Store          *storage.SQLiteAdapter
	HistoryService *history.HistoryService
	Controller     *scanner.Controller
	WebServer      *webserver.Server

	media   ports.MediaDevices
	decoder ports.Decoder
}

// New creates a new Application instance and bootstraps its components.
func New(cfg *config.Config) (*Application, error) {
	app := &Application{
		Config: cfg,
	}

	if err := app.bootstrap(); err != nil {
		app.cleanup()
		return nil, fmt.Errorf("application bootstrap failed: %w", err)
	}

	return app, nil
}

// bootstrap orchestrates the initialization sequence.
func (app *Application) bootstrap() error {
	// 1. Foundation & Infrastructure
	telemetry.InitMetrics()

	profile, err := domain.ParseProfile(app.Config.Profile)
	if err != nil {
		return err
	}
	app.Profile = profile

	store, err := app.initStorage()
	if err != nil {
		return err
	}
	app.Store = store
	app.HistoryService = history.NewHistoryService(store)

	// 2. Camera stack
	app.initMedia()

	// 3. Verification backend
	verifier, err := verification.NewClient(verification.Config{
		BaseURL: app.Config.VerifyURL,
		Token:   app.Config.APIToken,
		Profile: profile,
		Timeout: app.Config.VerifyTimeout,
	}, nil)
	if err != nil {
		return fmt.Errorf("verification client: %w", err)
	}

	// 4. Scan session
	app.Controller = scanner.NewController(app.sessionConfig(), scanner.Dependencies{
		Enumerator: camera.NewDeviceEnumerator(app.media),
		Capture:    camera.NewSession(app.media, app.decoder),
		Verifier:   verifier,
		Recorder:   app.HistoryService,
		Profile:    profile,
	})

	// 5. Servers
	app.WebServer = webserver.NewServer(
		app.Config.Addr,
		app.Controller,
		app.HistoryService,
		app.Config.CommandRate,
		app.Config.CommandBurst,
	)

	return nil
}

func (app *Application) initStorage() (*storage.SQLiteAdapter, error) {
	if err := os.MkdirAll(filepath.Dir(app.Config.DBPath), 0755); err != nil {
		return nil, fmt.Errorf("failed to create DB directory: %w", err)
	}

	store, err := storage.NewSQLiteAdapter(app.Config.DBPath)
	if err != nil {
		return nil, fmt.Errorf("failed to init scan history storage: %w", err)
	}
	return store, nil
}

func (app *Application) initMedia() {
	if app.Config.MockMode {
		m := mock.NewMedia(mock.MediaOptions{
			BusyFailures: app.Config.MockBusy,
			Interval:     app.Config.MockInterval,
			Profile:      app.Config.Profile,
			Script:       app.Config.MockScript,
		})
		app.media = m
		app.decoder = m
		log.Println("Mock Mode Active: Simulating cameras and decodes")
		return
	}

	app.media = v4l.NewDevices(app.Config.SysfsRoot, app.Config.DevRoot)
	app.decoder = v4l.NewZbarDecoder(app.Config.DecoderPath, app.Config.DecoderGrace)
}

func (app *Application) sessionConfig() scanner.Config {
	return scanner.Config{
		Cooldown:     app.Config.Cooldown,
		SettleDelay:  app.Config.SettleDelay,
		RetryDelay:   app.Config.RetryDelay,
		MaxRetries:   app.Config.MaxRetries,
		SuccessDwell: app.Config.SuccessDwell,
		FailureDwell: app.Config.FailureDwell,
	}
}

// Run starts the application components and manages their execution lifecycle.
func (app *Application) Run(ctx context.Context) error {
	slog.Info("Starting scanstation components...", "profile", app.Profile, "session", app.Controller.SessionID())

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	errChan := make(chan error, 2)
	sessionDone := make(chan struct{})

	go func() {
		defer close(sessionDone)
		if err := app.Controller.Run(ctx); err != nil {
			errChan <- fmt.Errorf("scan session error: %w", err)
		}
	}()

	go func() {
		if err := app.WebServer.Run(ctx); err != nil {
			errChan <- fmt.Errorf("web server error: %w", err)
		}
	}()

	slog.Info("Scanstation Ready. Press Ctrl+C to terminate.")

	var runErr error
	select {
	case <-ctx.Done():
		slog.Info("Termination signal received")
	case runErr = <-errChan:
	}

	cancel()
	app.Controller.Teardown()
	<-sessionDone

	app.cleanup()
	return runErr
}

func (app *Application) cleanup() {
	slog.Info("Cleaning up resources...")
	if app.Store != nil {
		if err := app.Store.Close(); err != nil {
			log.Printf("Error closing storage: %v", err)
		}
		app.Store = nil
	}
}
