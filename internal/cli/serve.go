package cli

import (
	"fmt"
	"os/signal"
	"syscall"

	"github.com/dl-alexandre/batfiles/internal/logging"
	"github.com/dl-alexandre/batfiles/internal/server"
	"github.com/dl-alexandre/batfiles/pkg/version"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API",
	Long: `Authenticate against Drive and serve the BAT folder API until interrupted.
Debug listing routes are mounted unless APP_ENV=production.`,
	RunE: runServe,
}

var (
	servePort   int
	serveNoWarm bool
)

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "Listen port (overrides PORT)")
	serveCmd.Flags().BoolVar(&serveNoWarm, "no-warm", false, "Skip acquiring a token before listening")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	out := newOutput()

	cfg, err := loadConfig()
	if err != nil {
		return out.WriteError("serve", invalidConfig(err))
	}
	if servePort != 0 {
		cfg.Port = servePort
		if err := cfg.Validate(); err != nil {
			return out.WriteError("serve", invalidConfig(err))
		}
	}

	logFile := globalFlags.LogFile
	if logFile == "" {
		logFile = cfg.LogFile
	}
	level := cfg.GetLogLevel()
	if globalFlags.Verbose {
		level = logging.DEBUG
	}
	log, err := logging.NewLogger(logging.LogConfig{
		Level:           level,
		OutputFile:      logFile,
		EnableConsole:   !globalFlags.Quiet,
		EnableDebug:     globalFlags.Debug,
		RedactSensitive: true,
		EnableColor:     !cfg.IsProduction(),
		EnableTimestamp: true,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer log.Close()

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, cfg, log, appOverrides)
	if err != nil {
		return out.WriteError("serve", err)
	}

	if a.provider != nil && !serveNoWarm {
		log.Info("acquiring drive credential", logging.F("source", a.provider.SourceName()))
		if _, err := a.provider.TokenContext(ctx); err != nil {
			return out.WriteError("serve", err)
		}
	}

	opts := server.Options{
		RootFolderID:    cfg.RootFolderID,
		Version:         version.Version,
		AllowedOrigins:  cfg.CORSAllowedOrigins,
		RateLimitRPS:    cfg.RateLimitRPS,
		RateLimitBurst:  cfg.RateLimitBurst,
		Debug:           !cfg.IsProduction(),
		ShutdownTimeout: cfg.ShutdownTimeout,
		Logger:          log,
	}
	srv := server.New(cfg.ListenAddr(), server.NewRouter(a.service, a.folders, opts), opts)

	log.Info("batfiles ready",
		logging.F("addr", cfg.ListenAddr()),
		logging.F("env", string(cfg.AppEnv)),
		logging.F("rootFolderId", cfg.RootFolderID),
		logging.F("debugRoutes", opts.Debug),
	)
	return srv.Run(ctx)
}
