package bat

import (
	"context"
	"fmt"
	"io"

	"github.com/dl-alexandre/batfiles/internal/api"
	"github.com/dl-alexandre/batfiles/internal/logging"
	"github.com/dl-alexandre/batfiles/internal/types"
	"github.com/dl-alexandre/batfiles/internal/utils"
)

// FileFetcher reads file metadata and content
type FileFetcher interface {
	Get(ctx context.Context, reqCtx *types.RequestContext, fileID string) (*types.FileHandle, error)
	Open(ctx context.Context, reqCtx *types.RequestContext, fileID string) (io.ReadCloser, error)
}

// Download is an open content stream plus what the caller needs to serve it.
// Body must be closed.
type Download struct {
	Handle      *types.FileHandle
	Filename    string
	ContentType string
	// Size is the byte length reported by Drive, or -1 when unknown
	Size int64
	Body io.ReadCloser
}

// Options configures a Service
type Options struct {
	RootFolderID string
	Logger       logging.Logger
}

// Service answers "which artifacts does this BAT have" and streams them
type Service struct {
	resolver  *Resolver
	validator *Validator
	files     FileFetcher
	rootID    string
	logger    logging.Logger
}

// NewService wires the resolver, validator and file fetcher together
func NewService(folders FolderSearcher, children ChildLister, files FileFetcher, opts Options) *Service {
	if opts.Logger == nil {
		opts.Logger = logging.NewNoOpLogger()
	}
	return &Service{
		resolver:  NewResolver(folders, opts.RootFolderID, opts.Logger),
		validator: NewValidator(children, opts.RootFolderID, opts.Logger),
		files:     files,
		rootID:    opts.RootFolderID,
		logger:    opts.Logger,
	}
}

// ListFiles resolves the folder for key and reports which required files it holds
func (s *Service) ListFiles(ctx context.Context, key types.FolderKey) (*types.CatalogReport, error) {
	folder, err := s.resolver.Resolve(ctx, key)
	if err != nil {
		return nil, err
	}
	return s.validator.Validate(ctx, folder)
}

// DownloadFile opens the content of fileID. expectedName only names the
// download and picks its content type; it never affects the lookup.
func (s *Service) DownloadFile(ctx context.Context, fileID, expectedName string) (*Download, error) {
	if fileID == "" {
		return nil, utils.NewAppError(utils.NewServiceError(utils.ErrCodeInvalidArgument,
			"File ID is required").Build())
	}

	reqCtx := api.NewRequestContext(ctx, s.rootID, types.RequestTypeDownload)
	logger := s.logger.WithTraceID(reqCtx.TraceID)

	handle, err := s.files.Get(ctx, reqCtx, fileID)
	if err != nil {
		return nil, err
	}
	if utils.IsWorkspaceMimeType(handle.MimeType) {
		return nil, utils.NewAppError(utils.NewServiceError(utils.ErrCodeUnsupportedFile,
			fmt.Sprintf("%s has no binary content (%s)", handle.Name, handle.MimeType)).
			WithContext("fileId", fileID).
			WithContext("mimeType", handle.MimeType).
			Build())
	}

	body, err := s.files.Open(ctx, reqCtx, fileID)
	if err != nil {
		return nil, err
	}

	filename := expectedName
	if filename == "" {
		filename = handle.Name
	}
	if expectedName != "" && expectedName != handle.Name {
		logger.Debug("Requested name differs from Drive name",
			logging.F("fileId", fileID),
			logging.F("expectedName", expectedName),
			logging.F("driveName", handle.Name),
		)
	}

	size := int64(-1)
	if handle.Size > 0 || handle.MD5Checksum != "" {
		size = handle.Size
	}

	logger.Info("Download started",
		logging.F("fileId", fileID),
		logging.F("size", size),
	)

	return &Download{
		Handle:      handle,
		Filename:    filename,
		ContentType: ContentTypeFor(filename, handle.MimeType),
		Size:        size,
		Body:        newVerifyingReader(body, fileID, size, handle.MD5Checksum),
	}, nil
}
