package cli

import (
	"context"

	"github.com/dl-alexandre/batfiles/internal/api"
	"github.com/dl-alexandre/batfiles/internal/auth"
	"github.com/dl-alexandre/batfiles/internal/bat"
	"github.com/dl-alexandre/batfiles/internal/config"
	"github.com/dl-alexandre/batfiles/internal/files"
	"github.com/dl-alexandre/batfiles/internal/folders"
	"github.com/dl-alexandre/batfiles/internal/logging"
	"github.com/dl-alexandre/batfiles/internal/types"
	"github.com/dl-alexandre/batfiles/internal/utils"
	"golang.org/x/oauth2"
	"golang.org/x/time/rate"
	"google.golang.org/api/option"
)

// app is the wired object graph shared by every Drive-backed command
type app struct {
	cfg      *config.Config
	logger   logging.Logger
	auth     *auth.Manager
	provider *auth.Provider
	client   *api.Client
	folders  *folders.Manager
	files    *files.Manager
	service  *bat.Service
}

// appOptions overrides pieces of the graph; tests point Drive at a fake server
type appOptions struct {
	TokenSource  oauth2.TokenSource
	DriveOptions []option.ClientOption
	Login        auth.LoginFunc
}

// newAuthManager builds the token store and OAuth client from cfg
func newAuthManager(cfg *config.Config) (*auth.Manager, error) {
	oauthCfg, err := auth.ParseClientSecrets(cfg.ClientSecretsJSON)
	if err != nil {
		return nil, err
	}
	return newStoreManager(cfg, oauthCfg)
}

// newStoreManager opens the token store; oauthCfg may be nil when no refresh is needed
func newStoreManager(cfg *config.Config, oauthCfg *oauth2.Config) (*auth.Manager, error) {
	storage, err := auth.NewStorage(cfg.TokenStore, cfg.CredentialsDir)
	if err != nil {
		return nil, invalidConfig(err)
	}
	return auth.NewManager(storage, oauthCfg), nil
}

func invalidConfig(err error) error {
	return utils.NewAppError(utils.NewServiceError(utils.ErrCodeInvalidArgument, err.Error()).Build()).WithCause(err)
}

func newApp(ctx context.Context, cfg *config.Config, log logging.Logger, opts appOptions) (*app, error) {
	a := &app{cfg: cfg, logger: log}

	ts := opts.TokenSource
	var invalidator api.Invalidator
	if ts == nil {
		mgr, err := newAuthManager(cfg)
		if err != nil {
			return nil, err
		}
		login := opts.Login
		if login == nil {
			login = func(ctx context.Context) (*types.Credentials, error) {
				return auth.Login(ctx, mgr.GetOAuthConfig(), auth.LoginOptions{})
			}
		}
		source := auth.NewCredentialSource(cfg, mgr, login, log)
		a.auth = mgr
		a.provider = auth.NewProvider(source, mgr, auth.ProviderOptions{
			Profile: cfg.CredentialProfile,
			Timeout: cfg.RequestTimeout,
			Logger:  log,
		})
		ts, invalidator = a.provider, a.provider
	}

	svc, err := auth.NewDriveService(ctx, ts, opts.DriveOptions...)
	if err != nil {
		return nil, err
	}

	a.client = api.NewClient(svc, api.ClientOptions{
		MaxRetries:  cfg.MaxRetries,
		RetryDelay:  cfg.RetryBaseDelay,
		Timeout:     cfg.RequestTimeout,
		Limiter:     rate.NewLimiter(rate.Limit(cfg.DriveQPS), cfg.DriveBurst),
		Invalidator: invalidator,
		Logger:      log,
	})
	a.folders = folders.NewManager(a.client)
	a.files = files.NewManager(a.client)
	a.service = bat.NewService(a.folders, a.folders, a.files, bat.Options{
		RootFolderID: cfg.RootFolderID,
		Logger:       log,
	})
	return a, nil
}

// driveApp loads configuration and builds the app for a command
func driveApp(ctx context.Context) (*app, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, invalidConfig(err)
	}
	return newApp(ctx, cfg, logger, appOverrides)
}

// appOverrides is empty in production
var appOverrides appOptions
