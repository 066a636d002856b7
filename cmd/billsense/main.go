// billsense: Mexican bill recognition service
// Serves browser camera clients over WebSocket, or runs one session against
// a local webcam or a frame stream, and announces confirmed bills.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	fiberlogger "github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"github.com/teslashibe/go-billsense/internal/config"
	"github.com/teslashibe/go-billsense/internal/log"
	"github.com/teslashibe/go-billsense/internal/providers"
	"github.com/teslashibe/go-billsense/pkg/announce"
	"github.com/teslashibe/go-billsense/pkg/cloud"
	"github.com/teslashibe/go-billsense/pkg/dashboard"
	"github.com/teslashibe/go-billsense/pkg/session"
)

var (
	version    = "1.0.0"
	configPath = flag.String("config", os.Getenv("BILLSENSE_CONFIG"), "YAML config file")
	port       = flag.Int("port", 0, "HTTP server port (overrides config)")
	logLevel   = flag.String("log-level", "", "Log level: debug, info, warn, error")
	source     = flag.String("source", "", "Camera source: client, webcam, stream")
	profile    = flag.String("profile", "", "Engine profile: strict, permissive")
	autoStart  = flag.Bool("auto-start", false, "Start detection as soon as possible")
	debug      = flag.Bool("debug", false, "Enable request logging")
)

func main() {
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	applyFlags(cfg)
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	log.Init(cfg.LogLevel)
	logger := log.L()

	if err := run(cfg, logger); err != nil {
		logger.Error("billsense failed", "error", err)
		os.Exit(1)
	}
}

func applyFlags(cfg *config.Config) {
	if *port > 0 {
		cfg.Server.Port = *port
	}
	if *logLevel != "" {
		cfg.LogLevel = *logLevel
	}
	if *source != "" {
		cfg.Camera.Source = *source
	}
	if *profile != "" {
		cfg.Engine.Profile = *profile
	}
	if *autoStart {
		cfg.Server.AutoStart = true
	}
}

func run(cfg *config.Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	engineCfg, err := cfg.EngineSettings()
	if err != nil {
		return err
	}

	classifier, err := providers.NewClassifier(cfg.Inference, logger)
	if err != nil {
		return fmt.Errorf("classifier: %w", err)
	}
	defer classifier.Close()

	synth, err := providers.NewSynthesizer(ctx, cfg.Speech, logger)
	if err != nil {
		return fmt.Errorf("speech: %w", err)
	}
	if synth != nil {
		defer synth.Close()
	}

	opts := []session.Option{
		session.WithEngineConfig(engineCfg),
		session.WithFacing(cfg.Camera.Facing),
		session.WithJPEGQuality(cfg.Camera.Quality),
		session.WithPhrases(announce.Phrases(cfg.Speech.Locale)),
		session.WithLogger(logger),
	}

	app := fiber.New(fiber.Config{
		AppName:               "billsense",
		DisableStartupMessage: true,
	})

	app.Use(recover.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowMethods: "GET,POST,PUT,DELETE,OPTIONS",
		AllowHeaders: "Content-Type,Authorization",
	}))
	if *debug {
		app.Use(fiberlogger.New())
	}

	api := app.Group("/api")
	api.Get("/engine", func(c *fiber.Ctx) error {
		return c.JSON(engineCfg)
	})

	dash := dashboard.New(logger)
	go dash.Run(ctx)

	var metrics func() string

	if cfg.Camera.Source == config.SourceClient {
		hub := cloud.NewHub(cloud.Config{
			Classifier:     classifier,
			Synthesizer:    synth,
			Locale:         cfg.Speech.Locale,
			Debounce:       cfg.Speech.Debounce,
			Camera:         cfg.Camera.Config,
			SessionOptions: opts,
			AutoStart:      cfg.Server.AutoStart,
			Events:         dash,
			Logger:         logger,
		})
		hub.RegisterRoutes(app)
		hub.RegisterAPIRoutes(api)
		dash.RegisterClient(app)
		metrics = func() string { return hubMetrics(hub.GetStats()) }

		app.Get("/health", func(c *fiber.Ctx) error {
			return c.JSON(fiber.Map{
				"status":  "ok",
				"version": version,
				"clients": hub.ClientCount(),
			})
		})
	} else {
		src, err := providers.NewSource(cfg.Camera, logger)
		if err != nil {
			return err
		}
		speaker := providers.NewLocalSpeaker(cfg.Speech, synth, func(u announce.Utterance) {
			dash.RecordAnnouncement(localSource, u.Text)
		}, logger)
		logLine := logStatus(logger)
		sess, err := session.New(src, classifier, speaker,
			append(opts, session.WithObserver(func(st session.Status) {
				logLine(st)
				dash.RecordStatus(localSource, st)
			}))...)
		if err != nil {
			return err
		}
		defer sess.Close()

		runner := &localRunner{session: sess, speaker: speaker, ctx: ctx, logger: logger}
		runner.registerRoutes(api)
		metrics = func() string { return sessionMetrics(sess.Status()) }

		app.Get("/health", func(c *fiber.Ctx) error {
			st := sess.Status()
			return c.JSON(fiber.Map{
				"status":  "ok",
				"version": version,
				"running": st.Running,
				"phase":   st.Phase,
			})
		})

		if cfg.Server.AutoStart {
			if err := sess.Start(ctx); err != nil {
				logger.Warn("camera did not start", "error", err)
			}
		}
	}

	dash.RegisterRoutes(app)

	app.Get("/metrics", func(c *fiber.Ctx) error {
		return c.SendString(metrics())
	})

	errc := make(chan error, 1)
	go func() {
		logger.Info("starting server",
			"addr", cfg.Addr(),
			"source", cfg.Camera.Source,
			"model", cfg.Inference.Model,
			"speech", cfg.Speech.Provider,
			"profile", cfg.Engine.Profile,
		)
		errc <- app.Listen(cfg.Addr())
	}()

	select {
	case err := <-errc:
		return fmt.Errorf("server: %w", err)
	case <-ctx.Done():
	}

	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		logger.Warn("shutdown error", "error", err)
	}
	return nil
}

func hubMetrics(stats cloud.Stats) string {
	return fmt.Sprintf(`# HELP billsense_clients Connected client count
# TYPE billsense_clients gauge
billsense_clients %d

# HELP billsense_sessions_active Sessions with an open camera
# TYPE billsense_sessions_active gauge
billsense_sessions_active %d

# HELP billsense_messages_received Total messages received
# TYPE billsense_messages_received counter
billsense_messages_received %d

# HELP billsense_messages_sent Total messages sent
# TYPE billsense_messages_sent counter
billsense_messages_sent %d

# HELP billsense_frames_received Total camera frames received
# TYPE billsense_frames_received counter
billsense_frames_received %d

# HELP billsense_frames_rejected Frames received while no camera was open
# TYPE billsense_frames_rejected counter
billsense_frames_rejected %d

# HELP billsense_announcements Total announcements sent
# TYPE billsense_announcements counter
billsense_announcements %d
`, stats.ClientCount, stats.ActiveSessions, stats.MessagesReceived, stats.MessagesSent,
		stats.FramesReceived, stats.FramesRejected, stats.Announcements)
}

func sessionMetrics(st session.Status) string {
	running := 0
	if st.Running {
		running = 1
	}
	return fmt.Sprintf(`# HELP billsense_running Whether the camera is open
# TYPE billsense_running gauge
billsense_running %d

# HELP billsense_ticks Total detection ticks
# TYPE billsense_ticks counter
billsense_ticks %d

# HELP billsense_ticks_skipped Ticks skipped while one was in flight
# TYPE billsense_ticks_skipped counter
billsense_ticks_skipped %d

# HELP billsense_inference_errors Total failed classifications
# TYPE billsense_inference_errors counter
billsense_inference_errors %d

# HELP billsense_decode_errors Total frame capture failures
# TYPE billsense_decode_errors counter
billsense_decode_errors %d

# HELP billsense_announcements Total announcements
# TYPE billsense_announcements counter
billsense_announcements %d
`, running, st.Ticks, st.Skipped, st.InferenceErrors, st.DecodeErrors, st.Announcements)
}
