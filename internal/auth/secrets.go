package auth

import (
	"encoding/json"
	"strings"

	"github.com/dl-alexandre/batfiles/internal/utils"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
)

// ParseClientSecrets builds an OAuth config from a Google client secrets blob.
// Only "installed" and "web" clients are accepted.
func ParseClientSecrets(blob string, scopes ...string) (*oauth2.Config, error) {
	if strings.TrimSpace(blob) == "" {
		return nil, utils.NewAppError(utils.NewServiceError(utils.ErrCodeAuthClientMissing,
			"CLIENT_SECRETS_JSON is not set").Build())
	}

	var probe map[string]json.RawMessage
	if err := json.Unmarshal([]byte(blob), &probe); err != nil {
		return nil, utils.NewAppError(utils.NewServiceError(utils.ErrCodeAuthClientInvalid,
			"client secrets are not valid JSON").Build()).WithCause(err)
	}
	_, installed := probe["installed"]
	_, web := probe["web"]
	if !installed && !web {
		return nil, utils.NewAppError(utils.NewServiceError(utils.ErrCodeAuthClientInvalid,
			"client secrets must contain an 'installed' or 'web' section").Build())
	}

	if len(scopes) == 0 {
		scopes = utils.ServiceScopes
	}
	cfg, err := google.ConfigFromJSON([]byte(blob), scopes...)
	if err != nil {
		return nil, utils.NewAppError(utils.NewServiceError(utils.ErrCodeAuthClientInvalid,
			err.Error()).Build()).WithCause(err)
	}
	return cfg, nil
}
