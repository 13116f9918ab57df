package bat

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/dl-alexandre/batfiles/internal/types"
	"github.com/dl-alexandre/batfiles/internal/utils"
)

// ValidateKey rejects keys that cannot name a folder
func ValidateKey(key types.FolderKey) error {
	switch {
	case key.Server <= 0:
		return invalidKey("server", strconv.Itoa(key.Server), "must be a positive integer")
	case key.Client <= 0:
		return invalidKey("client", strconv.Itoa(key.Client), "must be a positive integer")
	case strings.TrimSpace(key.BatID) == "":
		return invalidKey("batId", key.BatID, "must not be empty")
	case strings.ContainsAny(key.BatID, "/\x00"):
		return invalidKey("batId", key.BatID, "must not contain '/' or NUL")
	}
	return nil
}

// ParseKey builds a FolderKey from raw request parameters. A leading "BAT"
// on the id is stripped; the rest is kept verbatim.
func ParseKey(server, client, batID string) (types.FolderKey, error) {
	s, err := parsePositive("server", server)
	if err != nil {
		return types.FolderKey{}, err
	}
	c, err := parsePositive("client", client)
	if err != nil {
		return types.FolderKey{}, err
	}
	key := types.FolderKey{Server: s, Client: c, BatID: NormalizeBatID(batID)}
	if err := ValidateKey(key); err != nil {
		return types.FolderKey{}, err
	}
	return key, nil
}

// NormalizeBatID strips the BAT prefix (BAT121 -> 121)
func NormalizeBatID(raw string) string {
	if strings.HasPrefix(raw, utils.BatIDPrefix) && len(raw) > len(utils.BatIDPrefix) {
		return raw[len(utils.BatIDPrefix):]
	}
	return raw
}

func parsePositive(field, raw string) (int, error) {
	if raw == "" {
		return 0, invalidKey(field, raw, "is required")
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return 0, invalidKey(field, raw, "must be a positive integer")
	}
	return n, nil
}

func invalidKey(field, value, reason string) error {
	return utils.NewAppError(utils.NewServiceError(utils.ErrCodeInvalidArgument,
		fmt.Sprintf("Invalid %s %q: %s", field, value, reason)).
		WithContext("field", field).
		WithContext("value", value).
		Build())
}
