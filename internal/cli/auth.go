package cli

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dl-alexandre/batfiles/internal/api"
	"github.com/dl-alexandre/batfiles/internal/auth"
	"github.com/dl-alexandre/batfiles/internal/config"
	"github.com/dl-alexandre/batfiles/internal/types"
	"github.com/dl-alexandre/batfiles/internal/utils"
	"github.com/spf13/cobra"
	"golang.org/x/oauth2"
)

var authCmd = &cobra.Command{
	Use:   "auth",
	Short: "Authentication commands",
	Long:  "Manage the Google Drive credential used by the service",
}

var authLoginCmd = &cobra.Command{
	Use:   "login",
	Short: "Authenticate with Google Drive",
	Long: `Run the OAuth2 flow with the client in CLIENT_SECRETS_JSON, store the token
in TOKEN_STORE and verify that Drive can be read with it.`,
	RunE: runAuthLogin,
}

var authLogoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Remove the stored credential",
	RunE:  runAuthLogout,
}

var authStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show authentication status",
	Long:  "Display the token store in use and the stored token's expiry",
	RunE:  runAuthStatus,
}

var (
	authNoBrowser bool
	authTimeout   time.Duration
)

func init() {
	authLoginCmd.Flags().BoolVar(&authNoBrowser, "no-browser", false, "Print the consent URL and read the code from stdin")
	authLoginCmd.Flags().DurationVar(&authTimeout, "timeout", 5*time.Minute, "How long to wait for consent")

	authCmd.AddCommand(authLoginCmd)
	authCmd.AddCommand(authLogoutCmd)
	authCmd.AddCommand(authStatusCmd)
	rootCmd.AddCommand(authCmd)
}

func runAuthLogin(cmd *cobra.Command, args []string) error {
	out := newOutput()
	ctx := cmd.Context()

	cfg, err := loadConfig()
	if err != nil {
		return out.WriteError("auth.login", invalidConfig(err))
	}
	mgr, err := newAuthManager(cfg)
	if err != nil {
		return out.WriteError("auth.login", err)
	}
	if cfg.TokenStore == config.TokenStoreMemory {
		out.AddWarning("EPHEMERAL_STORE",
			"TOKEN_STORE=memory keeps the token only until this command exits; use keyring or encrypted-file", "warning")
	}

	creds, err := auth.Login(ctx, mgr.GetOAuthConfig(), auth.LoginOptions{
		NoBrowser: authNoBrowser,
		Out:       cmd.ErrOrStderr(),
		In:        cmd.InOrStdin(),
		Timeout:   authTimeout,
	})
	if err != nil {
		return out.WriteError("auth.login", asAuthError(err))
	}
	if err := mgr.SaveCredentials(cfg.CredentialProfile, creds); err != nil {
		return out.WriteError("auth.login", err)
	}

	folderCount, err := verifyDriveAccess(ctx, cfg, creds)
	if err != nil {
		return out.WriteError("auth.login", err)
	}

	out.Log("Successfully authenticated!")
	return out.WriteSuccess("auth.login", map[string]interface{}{
		"profile":        cfg.CredentialProfile,
		"scopes":         creds.Scopes,
		"expiry":         formatExpiry(creds.ExpiryDate),
		"storageBackend": mgr.GetStorageBackend(),
		"batFolders":     folderCount,
	})
}

// verifyDriveAccess lists BAT folders with the fresh token, proving the scope works
func verifyDriveAccess(ctx context.Context, cfg *config.Config, creds *types.Credentials) (int, error) {
	opts := appOverrides
	if opts.TokenSource == nil {
		opts.TokenSource = oauth2.StaticTokenSource(&oauth2.Token{
			AccessToken: creds.AccessToken,
			TokenType:   creds.TokenType,
			Expiry:      creds.ExpiryDate,
		})
	}
	a, err := newApp(ctx, cfg, logger, opts)
	if err != nil {
		return 0, err
	}
	reqCtx := api.NewRequestContext(ctx, cfg.RootFolderID, types.RequestTypeListOrSearch)
	folders, err := a.folders.ListBatFolders(ctx, reqCtx, cfg.RootFolderID)
	if err != nil {
		return 0, err
	}
	return len(folders), nil
}

func runAuthLogout(cmd *cobra.Command, args []string) error {
	out := newOutput()

	cfg, err := loadConfig()
	if err != nil {
		return out.WriteError("auth.logout", invalidConfig(err))
	}
	mgr, err := newStoreManager(cfg, nil)
	if err != nil {
		return out.WriteError("auth.logout", err)
	}

	if err := mgr.DeleteCredentials(cfg.CredentialProfile); err != nil {
		if errors.Is(err, auth.ErrCredentialsNotFound) {
			return out.WriteError("auth.logout", utils.NewAppError(utils.NewServiceError(utils.ErrCodeAuthRequired,
				fmt.Sprintf("No credentials found for profile '%s'", cfg.CredentialProfile)).Build()).WithCause(err))
		}
		return out.WriteError("auth.logout", err)
	}

	out.Log("Credentials removed for profile: %s", cfg.CredentialProfile)
	return out.WriteSuccess("auth.logout", map[string]interface{}{
		"profile": cfg.CredentialProfile,
		"status":  "logged_out",
	})
}

func runAuthStatus(cmd *cobra.Command, args []string) error {
	out := newOutput()

	cfg, err := loadConfig()
	if err != nil {
		return out.WriteError("auth.status", invalidConfig(err))
	}
	mgr, err := newStoreManager(cfg, nil)
	if err != nil {
		return out.WriteError("auth.status", err)
	}

	status := map[string]interface{}{
		"profile":        cfg.CredentialProfile,
		"storageBackend": mgr.GetStorageBackend(),
		"inlineToken":    cfg.OAuthTokenJSON != "",
	}

	var creds *types.Credentials
	if cfg.OAuthTokenJSON != "" {
		creds, err = auth.ParseTokenJSON(cfg.OAuthTokenJSON)
	} else {
		creds, err = mgr.LoadCredentials(cfg.CredentialProfile)
	}
	if err != nil {
		status["authenticated"] = false
		return out.WriteSuccess("auth.status", status)
	}

	status["authenticated"] = creds.AccessToken != "" || creds.RefreshToken != ""
	status["scopes"] = creds.Scopes
	status["expiry"] = formatExpiry(creds.ExpiryDate)
	status["expired"] = !creds.ExpiryDate.IsZero() && time.Now().After(creds.ExpiryDate)
	status["needsRefresh"] = mgr.NeedsRefresh(creds)
	status["canRefresh"] = creds.RefreshToken != ""
	return out.WriteSuccess("auth.status", status)
}

func formatExpiry(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(time.RFC3339)
}

// asAuthError classifies a failed login; already classified errors pass through
func asAuthError(err error) error {
	var appErr *utils.AppError
	if errors.As(err, &appErr) {
		return err
	}
	return utils.NewAppError(utils.NewServiceError(utils.ErrCodeAuthRequired, err.Error()).Build()).WithCause(err)
}
