package auth

import (
	"context"
	"errors"

	"github.com/dl-alexandre/batfiles/internal/config"
	"github.com/dl-alexandre/batfiles/internal/logging"
	"github.com/dl-alexandre/batfiles/internal/types"
	"github.com/dl-alexandre/batfiles/internal/utils"
)

// CredentialSource produces the initial credential the Provider starts from
type CredentialSource interface {
	Name() string
	Initial(ctx context.Context) (*types.Credentials, error)
}

// InlineSecretSource never interacts with a user. The token comes from an
// inline blob or, failing that, from the token store.
type InlineSecretSource struct {
	inline  string
	manager *Manager
	profile string
}

// NewInlineSecretSource creates a non-interactive source
func NewInlineSecretSource(inline string, manager *Manager, profile string) *InlineSecretSource {
	return &InlineSecretSource{inline: inline, manager: manager, profile: profile}
}

func (s *InlineSecretSource) Name() string {
	return "inline-secret"
}

func (s *InlineSecretSource) Initial(ctx context.Context) (*types.Credentials, error) {
	if s.inline != "" {
		return ParseTokenJSON(s.inline)
	}
	return s.manager.LoadCredentials(s.profile)
}

// LoginFunc runs an interactive login and returns the obtained credentials
type LoginFunc func(ctx context.Context) (*types.Credentials, error)

// InteractiveFlowSource reads the token store and, when it is empty, runs an
// interactive login and saves the result.
type InteractiveFlowSource struct {
	manager *Manager
	profile string
	login   LoginFunc
	logger  logging.Logger
}

// NewInteractiveFlowSource creates an interactive source
func NewInteractiveFlowSource(manager *Manager, profile string, login LoginFunc, logger logging.Logger) *InteractiveFlowSource {
	return &InteractiveFlowSource{manager: manager, profile: profile, login: login, logger: logger}
}

func (s *InteractiveFlowSource) Name() string {
	return "interactive-flow"
}

func (s *InteractiveFlowSource) Initial(ctx context.Context) (*types.Credentials, error) {
	creds, err := s.manager.LoadCredentials(s.profile)
	if err == nil {
		return creds, nil
	}
	if !errors.Is(err, ErrCredentialsNotFound) {
		return nil, err
	}

	s.logger.Info("No stored credentials, starting interactive login",
		logging.F("profile", s.profile),
		logging.F("store", s.manager.GetStorageBackend()),
	)
	creds, err = s.login(ctx)
	if err != nil {
		return nil, utils.NewAppError(utils.NewServiceError(utils.ErrCodeAuthRequired,
			"interactive login failed: "+err.Error()).Build()).WithCause(err)
	}
	if err := s.manager.SaveCredentials(s.profile, creds); err != nil {
		s.logger.Warn("Failed to save credentials", logging.F("error", err))
	}
	return creds, nil
}

// NewCredentialSource picks the source for cfg. Production and inline tokens
// never prompt; development falls back to the interactive flow.
func NewCredentialSource(cfg *config.Config, manager *Manager, login LoginFunc, logger logging.Logger) CredentialSource {
	if cfg.OAuthTokenJSON != "" || cfg.IsProduction() || login == nil {
		return NewInlineSecretSource(cfg.OAuthTokenJSON, manager, cfg.CredentialProfile)
	}
	return NewInteractiveFlowSource(manager, cfg.CredentialProfile, login, logger)
}
