package bat

import (
	"context"
	"fmt"
	"sort"

	"github.com/dl-alexandre/batfiles/internal/api"
	"github.com/dl-alexandre/batfiles/internal/logging"
	"github.com/dl-alexandre/batfiles/internal/types"
	"github.com/dl-alexandre/batfiles/internal/utils"
)

// FolderSearcher finds folders by name
type FolderSearcher interface {
	FindByName(ctx context.Context, reqCtx *types.RequestContext, name, parentID string) ([]*types.RemoteFolder, error)
}

// Resolver maps a FolderKey to exactly one Drive folder
type Resolver struct {
	folders FolderSearcher
	rootID  string
	logger  logging.Logger
}

// NewResolver creates a resolver. rootID limits the search to one parent
// folder; empty searches everything the credentials can see.
func NewResolver(folders FolderSearcher, rootID string, logger logging.Logger) *Resolver {
	if logger == nil {
		logger = logging.NewNoOpLogger()
	}
	return &Resolver{folders: folders, rootID: rootID, logger: logger}
}

// Resolve returns the single folder named after key. Zero matches is a
// NotFound error, more than one is an AmbiguousMatch error.
func (r *Resolver) Resolve(ctx context.Context, key types.FolderKey) (*types.RemoteFolder, error) {
	if err := ValidateKey(key); err != nil {
		return nil, err
	}

	name := key.FolderName()
	reqCtx := api.NewRequestContext(ctx, r.rootID, types.RequestTypeListOrSearch)
	logger := r.logger.WithTraceID(reqCtx.TraceID)

	candidates, err := r.folders.FindByName(ctx, reqCtx, name, r.rootID)
	if err != nil {
		return nil, err
	}

	// Drive may match names loosely
	var matches []*types.RemoteFolder
	for _, f := range candidates {
		if f.Name == name {
			matches = append(matches, f)
		}
	}

	logger.Debug("Folder lookup finished",
		logging.F("folderName", name),
		logging.F("candidates", len(candidates)),
		logging.F("matches", len(matches)),
	)

	switch len(matches) {
	case 1:
		return matches[0], nil
	case 0:
		return nil, utils.NewAppError(utils.NewServiceError(utils.ErrCodeFolderNotFound,
			fmt.Sprintf("Folder not found: %s", name)).
			WithContext("folderName", name).
			WithContext("server", key.Server).
			WithContext("client", key.Client).
			WithContext("batId", key.BatID).
			WithContext("traceId", reqCtx.TraceID).
			Build())
	default:
		ids := make([]string, len(matches))
		for i, f := range matches {
			ids[i] = f.ID
		}
		sort.Strings(ids)
		logger.Warn("Ambiguous folder name", logging.F("folderName", name), logging.F("folderIds", ids))
		return nil, utils.NewAppError(utils.NewServiceError(utils.ErrCodeAmbiguousMatch,
			fmt.Sprintf("%d folders are named %s", len(ids), name)).
			WithContext("folderName", name).
			WithContext("candidateIds", ids).
			WithContext("traceId", reqCtx.TraceID).
			Build())
	}
}
