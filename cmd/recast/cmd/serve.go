package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/jmylchreest/recast/internal/config"
	"github.com/jmylchreest/recast/internal/database"
	"github.com/jmylchreest/recast/internal/ecp"
	"github.com/jmylchreest/recast/internal/ffmpeg"
	internalhttp "github.com/jmylchreest/recast/internal/http"
	"github.com/jmylchreest/recast/internal/http/handlers"
	"github.com/jmylchreest/recast/internal/keepalive"
	"github.com/jmylchreest/recast/internal/logbuffer"
	"github.com/jmylchreest/recast/internal/metrics"
	"github.com/jmylchreest/recast/internal/observability"
	"github.com/jmylchreest/recast/internal/pool"
	"github.com/jmylchreest/recast/internal/recorder"
	"github.com/jmylchreest/recast/internal/repository"
	"github.com/jmylchreest/recast/internal/session"
	"github.com/jmylchreest/recast/internal/stream"
	"github.com/jmylchreest/recast/internal/tuner"
	"github.com/jmylchreest/recast/internal/version"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the recast server",
	Long: `Run the recast server: the receiver pool, the recording engine, and
the HTTP surface DVR clients talk to.

Useful paths once it is up:
- /channels.m3u, /epg_channels.m3u, /ondemand.m3u lineups for DVR clients
- MPEG-TS streaming endpoints backed by the receiver pool
- /api for sessions, recordings, lineup management, and logs
- Prometheus metrics at /metrics`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	// Overrides applied on top of the loaded config, Changed()-gated like
	// the global logging flags.
	serveCmd.Flags().String("host", "0.0.0.0", "address to bind the HTTP server to")
	serveCmd.Flags().Int("port", 7300, "port to listen on")
	serveCmd.Flags().String("lineup", "lineup.yaml", "lineup file path")
	serveCmd.Flags().String("recordings-dir", "./recordings", "directory for recording captures")
}

func runServe(cmd *cobra.Command, args []string) error {
	// Tee log records into the ring buffer behind /api/logs before
	// anything else logs.
	buffer := logbuffer.New()
	slog.SetDefault(slog.New(buffer.WrapHandler(slog.Default().Handler())))
	logger := slog.Default()

	cfg, err := config.Load(cfgFile)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	applyServeFlags(cmd, cfg)

	// A broken lineup document logs and leaves the pool empty; the API
	// stays up so the operator can fix it over PUT /api/config.
	store := config.NewStore(cfg.Lineup.File)
	if err := store.Load(); err != nil {
		logger.Error("loading lineup failed, starting with no receivers",
			slog.String("file", cfg.Lineup.File),
			slog.String("error", err.Error()),
		)
	}

	// Every subsystem gets a component-scoped logger so the log buffer's
	// per-component statistics line up with the architecture.
	fleet := ecp.NewFleet(observability.WithComponent(logger, "ecp"), ecp.WithTimeout(cfg.Control.Timeout))
	keepAlive := keepalive.NewManager(fleet, cfg.Control.KeepAliveJoinTimeout, observability.WithComponent(logger, "keepalive"))
	registry := session.NewRegistry()
	receiverPool := pool.New(store.Current().Receivers, registry, keepAlive, fleet, observability.WithComponent(logger, "pool"))

	ffmpegBin, err := ffmpeg.FindBinary(cfg.FFmpeg.BinaryPath)
	if err != nil {
		logger.Warn("ffmpeg not found, remux, reencode and recording are unavailable",
			slog.String("error", err.Error()),
		)
		ffmpegBin = ""
	} else {
		ffmpegVersion, err := ffmpeg.Version(cmd.Context(), ffmpegBin)
		if err != nil {
			ffmpegVersion = "unknown"
		}
		logger.Info("ffmpeg resolved",
			slog.String("binary", ffmpegBin),
			slog.String("version", ffmpegVersion),
		)
	}

	coordinator := stream.NewCoordinator(cfg.Streaming, ffmpegBin, observability.WithComponent(logger, "stream"))

	plugins := tuner.NewRegistry()
	plugins.Register("fubo", tuner.FuboPlugin{})
	deviceTuner := tuner.New(cfg.Tuning, fleet, plugins, observability.WithComponent(logger, "tuner"))

	db, err := database.New(cfg.Database, observability.WithComponent(logger, "catalog"))
	if err != nil {
		return fmt.Errorf("opening recordings catalog: %w", err)
	}
	defer func() {
		if err := db.Close(); err != nil {
			logger.Warn("closing recordings catalog", slog.String("error", err.Error()))
		}
	}()
	migrateDone := observability.TimedOperation(context.Background(), logger, "migrate catalog")
	if err := db.Migrate(context.Background()); err != nil {
		return fmt.Errorf("migrating recordings catalog: %w", err)
	}
	migrateDone()

	recordingRepo := repository.NewRecordingRepository(db.DB)
	capture := recorder.New(cfg.Recordings, recordingRepo, receiverPool, ffmpegBin, observability.WithComponent(logger, "recorder"))
	if err := capture.Start(); err != nil {
		return fmt.Errorf("starting recorder: %w", err)
	}

	sessions := session.NewManager(registry, receiverPool, capture, observability.WithComponent(logger, "session"))
	m := metrics.New()

	server := internalhttp.NewServer(cfg.Server, logger, m, version.Version)

	healthHandler := handlers.NewHealthHandler().WithDB(db)
	healthHandler.Register(server.API())

	streamHandler := handlers.NewStreamHandler(store, receiverPool, coordinator, deviceTuner, keepAlive, m, cfg.Streaming)
	streamHandler.Register(server.API())

	sessionHandler := handlers.NewSessionHandler(sessions, receiverPool, coordinator, m, cfg.Streaming)
	sessionHandler.Register(server.API())

	playlistHandler := handlers.NewPlaylistHandler(store, receiverPool)
	playlistHandler.Register(server.API())

	configHandler := handlers.NewConfigHandler(store, receiverPool)
	configHandler.Register(server.API())

	receiverHandler := handlers.NewReceiverHandler(receiverPool, fleet)
	receiverHandler.Register(server.API())

	recordingsHandler := handlers.NewRecordingsHandler(recordingRepo, capture)
	recordingsHandler.Register(server.API())

	statusHandler := handlers.NewStatusHandler(receiverPool, sessions, coordinator, capture)
	statusHandler.Register(server.API())

	logsHandler := handlers.NewLogsHandler(buffer)
	logsHandler.Register(server.API())

	versionHandler := handlers.NewVersionHandler()
	versionHandler.Register(server.API())

	metricsHandler := handlers.NewMetricsHandler(m, receiverPool, coordinator, capture)

	// Raw chi routes last: they override the documented paths with
	// handlers that write response bytes directly.
	streamHandler.RegisterChiRoutes(server.Router())
	sessionHandler.RegisterChiRoutes(server.Router())
	playlistHandler.RegisterChiRoutes(server.Router())
	logsHandler.RegisterChiRoutes(server.Router())
	metricsHandler.RegisterChiRoutes(server.Router())

	// Graceful shutdown on SIGINT/SIGTERM.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigChan
		logger.Info("shutdown requested", slog.String("signal", sig.String()))
		cancel()
	}()

	logger.Info("starting recast server",
		slog.String("addr", server.Addr()),
		slog.Int("receivers", receiverPool.Size()),
		slog.String("lineup", store.Path()),
		slog.String("version", version.Version),
	)

	serveErr := server.ListenAndServe(ctx)

	// Captures stop before the pool shuts down so their catalog rows are
	// settled before the receivers release.
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()
	if err := capture.Stop(shutdownCtx); err != nil {
		logger.Warn("stopping recorder", slog.String("error", err.Error()))
	}
	if err := receiverPool.Shutdown(shutdownCtx); err != nil {
		logger.Warn("stopping receiver pool", slog.String("error", err.Error()))
	}

	return serveErr
}

// applyServeFlags overrides loaded config values with flags the user set
// explicitly.
func applyServeFlags(cmd *cobra.Command, cfg *config.Config) {
	if cmd.Flags().Changed("host") {
		cfg.Server.Host, _ = cmd.Flags().GetString("host")
	}
	if cmd.Flags().Changed("port") {
		cfg.Server.Port, _ = cmd.Flags().GetInt("port")
	}
	if cmd.Flags().Changed("lineup") {
		cfg.Lineup.File, _ = cmd.Flags().GetString("lineup")
	}
	if cmd.Flags().Changed("recordings-dir") {
		cfg.Recordings.Dir, _ = cmd.Flags().GetString("recordings-dir")
	}
}
