// Package main provides the player entry point.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/exec"
	"os/signal"
	"syscall"
	"time"

	"connectrpc.com/connect"
	"github.com/alecthomas/kingpin/v2"
	"github.com/joho/godotenv"
	zlog "github.com/rs/zerolog/log"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"

	apiconnect "github.com/osa030/moodbox/internal/api/connect"
	"github.com/osa030/moodbox/internal/app/session"
	"github.com/osa030/moodbox/internal/domain/mood"
	moodsession "github.com/osa030/moodbox/internal/domain/session"
	"github.com/osa030/moodbox/internal/infra/config"
	"github.com/osa030/moodbox/internal/infra/logger"
	"github.com/osa030/moodbox/internal/infra/metrics"
	"github.com/osa030/moodbox/internal/infra/recommender"
	"github.com/osa030/moodbox/internal/infra/simengine"
	"github.com/osa030/moodbox/internal/infra/spotify"
)

var (
	app        = kingpin.New("moodbox-player", "moodbox mood-driven player")
	configPath = app.Flag("config", "Path to config file").Default("config/player.yaml").String()
	verbose    = app.Flag("verbose", "Enable verbose (DEBUG) logging").Short('v').Bool()
	logfile    = app.Flag("logfile", "Path to log file (default: stdout)").String()
	authToken  = app.Flag("auth-token", "Token forwarded to the recommendation service (default: Spotify access token)").Envar("MOODBOX_AUTH_TOKEN").String()

	// start command (default)
	startCmd    = app.Command("start", "Start playing a mood (default)").Default()
	startMood   = startCmd.Arg("mood", "Mood key, e.g. \"sad bops\" or sad-bops").Default("upbeat").String()
	startSource = startCmd.Arg("source", "Track source: library or catalog").Default("library").String()

	// list-moods command
	listMoodsCmd = app.Command("list-moods", "List available moods and exit")

	// list-devices command
	listDevicesCmd = app.Command("list-devices", "List Spotify Connect devices and exit")
)

func main() {
	// Load .env file if it exists (errors are ignored)
	_ = godotenv.Load()

	// Parse command
	command := kingpin.MustParse(app.Parse(os.Args[1:]))

	if command == listMoodsCmd.FullCommand() {
		printMoods()
		return
	}

	// Initialize logger
	loggerConfig := logger.Config{
		Output: "stdout",
		Level:  "info",
	}
	if *verbose {
		loggerConfig.Level = "debug"
	}
	if *logfile != "" {
		loggerConfig.Output = *logfile
	}
	closer, err := logger.Init(loggerConfig)
	if err != nil {
		panic(fmt.Sprintf("Failed to initialize logger: %v", err))
	}
	defer closer.Close()

	// Load config
	zlog.Info().Msgf("Loading config from %s", *configPath)
	cfg, err := config.Load(*configPath)
	if err != nil {
		zlog.Fatal().Msgf("Failed to load config: %v", err)
	}

	if command == listDevicesCmd.FullCommand() {
		if err := printDevices(cfg); err != nil {
			zlog.Error().Msgf("Failed to list devices: %v", err)
			os.Exit(1)
		}
		return
	}

	// Run player (defer ensures shutdown hooks are called)
	if err := run(cfg, *startMood, *startSource); err != nil {
		zlog.Error().Msgf("Player error: %v", err)
		os.Exit(1)
	}
}

// run executes the main player logic. Using a separate function ensures
// defer statements are executed even when returning with an error.
func run(cfg *config.Config, moodKey, source string) error {
	ctx := context.Background()

	deps, token, err := buildDependencies(ctx, cfg)
	if err != nil {
		return err
	}
	if *authToken != "" {
		token = *authToken
	}

	sess, err := moodsession.New(token, moodKey, source)
	if err != nil {
		return fmt.Errorf("failed to create session: %w", err)
	}

	recorder := metrics.New()
	deps.Metrics = recorder

	// Create session manager
	sessionMgr, err := session.NewManager(cfg, sess, deps)
	if err != nil {
		return fmt.Errorf("failed to create session manager: %w", err)
	}

	// Create HTTP mux
	mux := http.NewServeMux()
	playerPath, playerHandler := apiconnect.NewPlayerServiceHandler(
		apiconnect.NewPlayerService(sessionMgr),
		connect.WithInterceptors(apiconnect.NewControlAuthInterceptor(cfg)),
	)
	mux.Handle(playerPath, playerHandler)
	mux.Handle("/metrics", recorder.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	// Create server with h2c (HTTP/2 cleartext) support
	server := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           h2c.NewHandler(mux, &http2.Server{}),
		ReadHeaderTimeout: 10 * time.Second,
	}

	serverErrCh := make(chan error, 1)
	go func() {
		zlog.Info().Msgf("Starting control server: addr=%s", cfg.Server.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErrCh <- err
		}
	}()

	defer shutdown(server, sessionMgr, cfg)

	// Initialization failure is fatal
	if err := sessionMgr.Start(ctx); err != nil {
		return fmt.Errorf("failed to start session: %w", err)
	}

	zlog.Info().Msgf("Playing: mood=%q source=%s session_id=%s", sess.Mood.Label, sess.Source, sess.ID)

	// Execute startup hooks if configured (after the session is running)
	executeHooks(cfg.Server.Hooks.OnStarted, "on_started")

	// Wait for shutdown signal, session end, or server error
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-sigCh:
		zlog.Info().Msg("Received shutdown signal...")
	case <-sessionMgr.Done():
		zlog.Info().Msg("Session ended, shutting down...")
	case err := <-serverErrCh:
		return fmt.Errorf("server error: %w", err)
	}
	return nil
}

// buildDependencies selects the catalog resolver and playback engine.
// Without Spotify credentials metadata comes from a placeholder catalog.
func buildDependencies(ctx context.Context, cfg *config.Config) (session.Dependencies, string, error) {
	var (
		deps          session.Dependencies
		token         string
		spotifyClient *spotify.Client
	)

	if cfg.HasSpotifyCredentials() {
		client, err := newSpotifyClient(ctx, cfg)
		if err != nil {
			return deps, "", err
		}
		spotifyClient = client
		deps.Resolver = client

		token, err = client.AccessToken()
		if err != nil {
			zlog.Warn().Err(err).Msg("Could not obtain Spotify access token")
		}
	} else {
		zlog.Warn().Msg("Spotify credentials not configured, using placeholder track metadata")
		deps.Resolver = simengine.Catalog{}
	}

	switch cfg.Playback.Engine.Type {
	case config.EngineSpotify:
		if spotifyClient == nil {
			return deps, "", fmt.Errorf("spotify engine requires spotify credentials")
		}
		deps.Engine = spotifyClient
	case config.EngineSimulated:
		engine, err := simengine.New(deps.Resolver, cfg.Playback.Engine.Settings)
		if err != nil {
			return deps, "", fmt.Errorf("failed to create simulated engine: %w", err)
		}
		deps.Engine = engine
	default:
		return deps, "", fmt.Errorf("unknown engine type: %s", cfg.Playback.Engine.Type)
	}
	zlog.Info().Msgf("Playback engine: type=%s", cfg.Playback.Engine.Type)

	rec, err := recommender.New(recommender.Config{
		BaseURL:       cfg.Recommender.BaseURL,
		Timeout:       cfg.Recommender.Timeout(),
		RatePerSecond: cfg.Recommender.RatePerSec,
		MaxRetries:    cfg.Recommender.MaxRetries,
	})
	if err != nil {
		return deps, "", fmt.Errorf("failed to create recommendation client: %w", err)
	}
	deps.Recommender = rec

	return deps, token, nil
}

func newSpotifyClient(ctx context.Context, cfg *config.Config) (*spotify.Client, error) {
	client, err := spotify.New(ctx, spotify.Config{
		ClientID:     cfg.Spotify.ClientID,
		ClientSecret: cfg.Spotify.ClientSecret,
		RefreshToken: cfg.Spotify.RefreshToken,
		Market:       cfg.Spotify.Market,
		DeviceID:     cfg.Spotify.DeviceID,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Spotify client: %w", err)
	}
	return client, nil
}

// shutdown stops the session, then the server, then runs the stop hooks.
func shutdown(server *http.Server, sessionMgr *session.Manager, cfg *config.Config) {
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	// Stop the session first to terminate active watch streams
	if err := sessionMgr.Stop(shutdownCtx); err != nil {
		zlog.Error().Msgf("Failed to stop session: %v", err)
	}

	if err := server.Shutdown(shutdownCtx); err != nil {
		zlog.Error().Msgf("Failed to shutdown server: %v", err)
	}

	zlog.Info().Msg("Player stopped")

	executeHooks(cfg.Server.Hooks.OnStopped, "on_stopped")
}

// printMoods prints the mood catalogue.
func printMoods() {
	fmt.Println("Available Moods:")
	for _, m := range mood.All() {
		fmt.Printf("  %-16s - %s (valence=%.0f energy=%.0f danceability=%.0f)\n",
			m.Key, m.Label, m.Valence, m.Energy, m.Danceability)
	}
}

// printDevices prints the Spotify Connect devices of the account.
func printDevices(cfg *config.Config) error {
	if !cfg.HasSpotifyCredentials() {
		return fmt.Errorf("spotify credentials are not configured")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	client, err := newSpotifyClient(ctx, cfg)
	if err != nil {
		return err
	}
	devices, err := client.Devices(ctx)
	if err != nil {
		return err
	}

	fmt.Println("Spotify Connect Devices:")
	for _, d := range devices {
		active := ""
		if d.Active {
			active = " (active)"
		}
		fmt.Printf("  %s  %-24s %s%s\n", d.ID, d.Name, d.Type, active)
	}
	return nil
}

// executeHooks runs a list of shell commands.
func executeHooks(hooks []string, stage string) {
	if len(hooks) == 0 {
		return
	}

	zlog.Info().Msgf("Executing %s hooks (%d commands)", stage, len(hooks))

	for _, hook := range hooks {
		zlog.Info().Msgf("Executing hook: %s", hook)
		// Use sh -c to allow shell features like redirection or pipes
		cmd := exec.Command("sh", "-c", hook)
		cmd.Stdout = os.Stdout
		cmd.Stderr = os.Stderr

		if err := cmd.Run(); err != nil {
			zlog.Error().Err(err).Msgf("Failed to execute hook: %s", hook)
		}
	}
}
