package cli

import (
	"github.com/spf13/cobra"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Configuration inspection",
	Long:  "Configuration is read from the environment; these commands show what batfiles sees",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the effective configuration",
	Long:  "Display the configuration after defaults are applied. Secrets are reported as set or unset only.",
	RunE:  runConfigShow,
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configShowCmd)
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	out := newOutput()

	cfg, err := loadConfig()
	if err != nil {
		return out.WriteError("config.show", invalidConfig(err))
	}

	return out.WriteSuccess("config.show", map[string]interface{}{
		"appEnv":             string(cfg.AppEnv),
		"clientSecretsSet":   cfg.ClientSecretsJSON != "",
		"oauthTokenSet":      cfg.OAuthTokenJSON != "",
		"tokenStore":         string(cfg.TokenStore),
		"credentialsDir":     cfg.CredentialsDir,
		"credentialProfile":  cfg.CredentialProfile,
		"rootFolderId":       cfg.RootFolderID,
		"listenAddr":         cfg.ListenAddr(),
		"requestTimeout":     cfg.RequestTimeout.String(),
		"shutdownTimeout":    cfg.ShutdownTimeout.String(),
		"maxRetries":         cfg.MaxRetries,
		"retryBaseDelay":     cfg.RetryBaseDelay.String(),
		"driveQps":           cfg.DriveQPS,
		"driveBurst":         cfg.DriveBurst,
		"rateLimitRps":       cfg.RateLimitRPS,
		"rateLimitBurst":     cfg.RateLimitBurst,
		"corsAllowedOrigins": cfg.CORSAllowedOrigins,
		"logLevel":           cfg.LogLevel,
		"logFile":            cfg.LogFile,
		"debugRoutes":        !cfg.IsProduction(),
	})
}
