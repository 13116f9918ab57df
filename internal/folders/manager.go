package folders

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/dl-alexandre/batfiles/internal/api"
	"github.com/dl-alexandre/batfiles/internal/types"
	"github.com/dl-alexandre/batfiles/internal/utils"
	"google.golang.org/api/drive/v3"
	"google.golang.org/api/googleapi"
)

const (
	folderFields = "nextPageToken,files(id,name,modifiedTime)"
	childFields  = "nextPageToken,files(id,name,mimeType,size,md5Checksum,modifiedTime)"
)

// Manager handles folder lookups
type Manager struct {
	client   *api.Client
	pageSize int64
}

// NewManager creates a new folder manager
func NewManager(client *api.Client) *Manager {
	return &Manager{
		client:   client,
		pageSize: utils.DefaultPageSize,
	}
}

// FindByName returns every non-trashed folder whose name matches name, limited
// to children of parentID when it is set. Drive's name comparison is loose, so
// callers needing exact matches must filter the result.
func (m *Manager) FindByName(ctx context.Context, reqCtx *types.RequestContext, name, parentID string) ([]*types.RemoteFolder, error) {
	query := fmt.Sprintf("name = '%s' and mimeType = '%s' and trashed = false",
		escapeQueryString(name), utils.MimeTypeFolder)
	if parentID != "" {
		reqCtx.InvolvedParentIDs = append(reqCtx.InvolvedParentIDs, parentID)
		query += fmt.Sprintf(" and '%s' in parents", escapeQueryString(parentID))
	}
	return m.listFolders(ctx, reqCtx, query)
}

// ListBatFolders returns all folders named like SERVER{n}_CLIENT{m}_{id},
// sorted by name
func (m *Manager) ListBatFolders(ctx context.Context, reqCtx *types.RequestContext, parentID string) ([]*types.RemoteFolder, error) {
	query := fmt.Sprintf("name contains 'SERVER' and mimeType = '%s' and trashed = false", utils.MimeTypeFolder)
	if parentID != "" {
		reqCtx.InvolvedParentIDs = append(reqCtx.InvolvedParentIDs, parentID)
		query += fmt.Sprintf(" and '%s' in parents", escapeQueryString(parentID))
	}

	all, err := m.listFolders(ctx, reqCtx, query)
	if err != nil {
		return nil, err
	}
	folders := make([]*types.RemoteFolder, 0, len(all))
	for _, f := range all {
		if utils.BatFolderPattern.MatchString(f.Name) {
			folders = append(folders, f)
		}
	}
	sort.Slice(folders, func(i, j int) bool {
		if folders[i].Name != folders[j].Name {
			return folders[i].Name < folders[j].Name
		}
		return folders[i].ID < folders[j].ID
	})
	return folders, nil
}

// ListChildren returns every non-trashed child of folderID. Use "root" for My Drive.
func (m *Manager) ListChildren(ctx context.Context, reqCtx *types.RequestContext, folderID string) ([]*types.FileHandle, error) {
	reqCtx.InvolvedParentIDs = append(reqCtx.InvolvedParentIDs, folderID)
	query := fmt.Sprintf("'%s' in parents and trashed = false", escapeQueryString(folderID))

	var children []*types.FileHandle
	err := m.eachPage(ctx, reqCtx, query, childFields, func(files []*drive.File) {
		for _, f := range files {
			children = append(children, convertDriveFile(f))
		}
	})
	if err != nil {
		return nil, err
	}
	return children, nil
}

func (m *Manager) listFolders(ctx context.Context, reqCtx *types.RequestContext, query string) ([]*types.RemoteFolder, error) {
	var folders []*types.RemoteFolder
	err := m.eachPage(ctx, reqCtx, query, folderFields, func(files []*drive.File) {
		for _, f := range files {
			folders = append(folders, &types.RemoteFolder{
				ID:           f.Id,
				Name:         f.Name,
				ModifiedTime: f.ModifiedTime,
			})
		}
	})
	if err != nil {
		return nil, err
	}
	return folders, nil
}

// eachPage runs a files.list query to exhaustion, retrying each page independently
func (m *Manager) eachPage(ctx context.Context, reqCtx *types.RequestContext, query, fields string, fn func([]*drive.File)) error {
	pageToken := ""
	for {
		call := m.client.Service().Files.List().
			Q(query).
			PageSize(m.pageSize).
			Spaces("drive").
			Fields(googleapi.Field(fields))
		if pageToken != "" {
			call = call.PageToken(pageToken)
		}

		result, err := api.ExecuteWithRetry(ctx, m.client, reqCtx, func(ctx context.Context) (*drive.FileList, error) {
			return call.Context(ctx).Do()
		})
		if err != nil {
			return err
		}

		fn(result.Files)

		if result.NextPageToken == "" {
			return nil
		}
		pageToken = result.NextPageToken
	}
}

// escapeQueryString escapes a literal for a Drive query string
func escapeQueryString(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	return strings.ReplaceAll(s, `'`, `\'`)
}

func convertDriveFile(f *drive.File) *types.FileHandle {
	return &types.FileHandle{
		ID:           f.Id,
		Name:         f.Name,
		MimeType:     f.MimeType,
		Size:         f.Size,
		MD5Checksum:  f.Md5Checksum,
		ModifiedTime: f.ModifiedTime,
	}
}
