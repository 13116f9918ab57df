package files

import (
	"context"
	"io"
	"net/http"

	"github.com/dl-alexandre/batfiles/internal/api"
	"github.com/dl-alexandre/batfiles/internal/types"
	"github.com/dl-alexandre/batfiles/internal/utils"
	"google.golang.org/api/drive/v3"
	"google.golang.org/api/googleapi"
)

const metadataFields = "id,name,mimeType,size,md5Checksum,modifiedTime,trashed"

// Manager handles file metadata and content retrieval
type Manager struct {
	client *api.Client
}

// NewManager creates a new file manager
func NewManager(client *api.Client) *Manager {
	return &Manager{client: client}
}

// Get retrieves file metadata. Trashed files are reported as not found.
func (m *Manager) Get(ctx context.Context, reqCtx *types.RequestContext, fileID string) (*types.FileHandle, error) {
	reqCtx.InvolvedFileIDs = append(reqCtx.InvolvedFileIDs, fileID)

	call := m.client.Service().Files.Get(fileID).Fields(googleapi.Field(metadataFields))
	result, err := api.ExecuteWithRetry(ctx, m.client, reqCtx, func(ctx context.Context) (*drive.File, error) {
		return call.Context(ctx).Do()
	})
	if err != nil {
		return nil, err
	}
	if result.Trashed {
		return nil, utils.NewAppError(utils.NewServiceError(utils.ErrCodeFileNotFound,
			"File is in the trash: "+fileID).
			WithContext("fileId", fileID).
			WithContext("traceId", reqCtx.TraceID).
			Build())
	}
	return convertDriveFile(result), nil
}

// Open starts streaming the binary content of fileID. The caller must close
// the returned body; it stays readable for as long as ctx is alive.
func (m *Manager) Open(ctx context.Context, reqCtx *types.RequestContext, fileID string) (io.ReadCloser, error) {
	reqCtx.InvolvedFileIDs = append(reqCtx.InvolvedFileIDs, fileID)

	call := m.client.Service().Files.Get(fileID)
	resp, err := api.OpenWithRetry(ctx, m.client, reqCtx, func(ctx context.Context) (*http.Response, error) {
		return call.Context(ctx).Download()
	})
	if err != nil {
		return nil, err
	}
	return resp.Body, nil
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
